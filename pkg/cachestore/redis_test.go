package cachestore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, ttl time.Duration) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cfg := DefaultRedisConfig(mr.Addr())
	cfg.TTL = ttl
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisWithClient(client, cfg), mr
}

func TestRedis(t *testing.T) {
	b, mr := newTestRedis(t, 0)
	assert.Equal(t, "redis", b.Name())

	require.NoError(t, b.Put(context.Background(), "bpic/a.parquet", []byte("a")))
	assert.True(t, mr.Exists("actorflow:cache:bpic/a.parquet"), "values live under the prefix")
	require.NoError(t, b.Delete(context.Background(), "bpic/a.parquet"))

	exerciseBackend(t, b)
}

func TestNewRedis_Ping(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	b, err := NewRedis(context.Background(), DefaultRedisConfig(addr))
	require.NoError(t, err)
	require.NoError(t, b.Put(context.Background(), "k", []byte("v")))
	require.NoError(t, b.Close())

	mr.Close()
	cfg := DefaultRedisConfig(addr)
	cfg.Timeout = time.Second
	_, err = NewRedis(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRedis_ZeroTTLNeverExpires(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestRedis(t, 0)

	require.NoError(t, b.Put(ctx, "bpic/a.parquet", []byte("a")))
	assert.Equal(t, time.Duration(0), mr.TTL("actorflow:cache:bpic/a.parquet"))

	mr.FastForward(365 * 24 * time.Hour)
	data, err := b.Get(ctx, "bpic/a.parquet")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), data)
}

func TestRedis_TTLExpires(t *testing.T) {
	ctx := context.Background()
	b, mr := newTestRedis(t, time.Hour)

	require.NoError(t, b.Put(ctx, "bpic/a.parquet", []byte("a")))
	assert.Equal(t, time.Hour, mr.TTL("actorflow:cache:bpic/a.parquet"))

	mr.FastForward(2 * time.Hour)
	_, err := b.Get(ctx, "bpic/a.parquet")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedis_ListMatchesPrefixLiterally(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestRedis(t, 0)

	for _, k := range []string{"ds[1]/a.parquet", "ds1/b.parquet", "ds*/c.parquet", "ds?/d.parquet"} {
		require.NoError(t, b.Put(ctx, k, []byte("x")))
	}

	keys, err := b.List(ctx, "ds[1]/")
	require.NoError(t, err)
	assert.Equal(t, []string{"ds[1]/a.parquet"}, keys)

	keys, err = b.List(ctx, "ds*/")
	require.NoError(t, err)
	assert.Equal(t, []string{"ds*/c.parquet"}, keys)

	keys, err = b.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 4)
}
