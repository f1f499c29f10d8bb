package cachestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ferrors "github.com/logflow/actorflow/pkg/errors"
)

// exerciseBackend checks the Backend contract every implementation shares.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	key := "bpic/decomposed_actor_behavior/actor_behavior_A_B_0011aabb.parquet"

	_, err := b.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := b.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Put(ctx, key, []byte("v1")))
	require.NoError(t, b.Put(ctx, key, []byte("v2")))
	require.NoError(t, b.Put(ctx, "other/x.parquet", []byte("x")))

	data, err := b.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	ok, err = b.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	keys, err := b.List(ctx, "bpic/")
	require.NoError(t, err)
	assert.Equal(t, []string{key}, keys)

	all, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, b.Delete(ctx, key))
	require.NoError(t, b.Delete(ctx, key), "deleting a missing key")

	_, err = b.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, b.Put(ctx, "../escape", []byte("x")))
	assert.NoError(t, b.Close())
}

func TestLocal(t *testing.T) {
	dir := t.TempDir()
	b, err := NewLocal(dir)
	require.NoError(t, err)
	assert.Equal(t, "local", b.Name())

	exerciseBackend(t, b)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Join(dir, "other"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "x.parquet", entries[0].Name())
}

func TestLocal_RequiresDir(t *testing.T) {
	_, err := NewLocal("")
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	b := NewMemory()
	assert.Equal(t, "memory", b.Name())
	exerciseBackend(t, b)
	assert.Equal(t, 3, b.Puts())
}

func TestMemory_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	b := NewMemory()
	require.NoError(t, b.Put(ctx, "k", []byte("abc")))

	data, _ := b.Get(ctx, "k")
	data[0] = 'z'

	again, _ := b.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), again)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	b, err := Open(ctx, Config{Backend: "memory"})
	require.NoError(t, err)
	assert.Equal(t, "memory", b.Name())

	b, err = Open(ctx, DefaultConfig(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, "local", b.Name())

	_, err = Open(ctx, Config{Backend: "ftp"})
	assert.True(t, ferrors.IsCode(err, ferrors.CodeInvalidConfig))

	_, err = Open(ctx, Config{Backend: "s3"})
	assert.Error(t, err, "bucket is required")
}

func TestCleanKey(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"a/b.parquet", "a/b.parquet", false},
		{"/a/b", "a/b", false},
		{"", "", true},
		{"a/../b", "", true},
		{"a//b", "", true},
		{"./a", "", true},
	}
	for _, tt := range tests {
		got, err := cleanKey(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `actorflow:cache:ds\[1\]/a\*b\?`, escapeGlob("actorflow:cache:ds[1]/a*b?"))
}
