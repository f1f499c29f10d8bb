package edge

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/actorflow/pkg/errors"
)

func TestParseSchema(t *testing.T) {
	tests := []struct {
		in      string
		want    Schema
		wantErr bool
	}{
		{"activity", SchemaActivity, false},
		{"", SchemaActivity, false},
		{"activity_lifecycle", SchemaActivityLifecycle, false},
		{"Activity-Lifecycle", SchemaActivityLifecycle, false},
		{"bpic2017", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseSchema(tt.in)
		if tt.wantErr {
			assert.True(t, errors.IsCode(err, errors.CodeInvalidConfig), tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSchema_FromParts(t *testing.T) {
	tests := []struct {
		name    string
		schema  Schema
		parts   [][]string
		want    Key
		wantErr bool
	}{
		{
			name:   "activity pair",
			schema: SchemaActivity,
			parts:  [][]string{{"A_Create"}, {"A_Submit"}},
			want:   Key{Source: Endpoint{Activity: "A_Create"}, Sink: Endpoint{Activity: "A_Submit"}},
		},
		{
			name:   "lifecycle pair",
			schema: SchemaActivityLifecycle,
			parts:  [][]string{{"W_Validate", "start"}, {"W_Validate", "complete"}},
			want: Key{
				Source: Endpoint{Activity: "W_Validate", Lifecycle: "start"},
				Sink:   Endpoint{Activity: "W_Validate", Lifecycle: "complete"},
			},
		},
		{name: "single endpoint", schema: SchemaActivity, parts: [][]string{{"A"}}, wantErr: true},
		{name: "three endpoints", schema: SchemaActivity, parts: [][]string{{"A"}, {"B"}, {"C"}}, wantErr: true},
		{name: "missing lifecycle", schema: SchemaActivityLifecycle, parts: [][]string{{"A", "start"}, {"B"}}, wantErr: true},
		{name: "unexpected lifecycle", schema: SchemaActivity, parts: [][]string{{"A", "start"}, {"B"}}, wantErr: true},
		{name: "empty activity", schema: SchemaActivity, parts: [][]string{{"A"}, {""}}, wantErr: true},
		{name: "empty lifecycle", schema: SchemaActivityLifecycle, parts: [][]string{{"A", ""}, {"B", "start"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.schema.FromParts(tt.parts)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsCode(err, errors.CodeMalformedEdgeKey))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSchema_ParseKey(t *testing.T) {
	k, err := SchemaActivityLifecycle.ParseKey("O_Create Offer|complete -> O_Sent (mail and online)|complete")
	require.NoError(t, err)
	assert.Equal(t, "O_Create Offer", k.Source.Activity)
	assert.Equal(t, "complete", k.Source.Lifecycle)
	assert.Equal(t, "O_Sent (mail and online)", k.Sink.Activity)

	_, err = SchemaActivity.ParseKey("A B")
	assert.True(t, errors.IsCode(err, errors.CodeMalformedEdgeKey))

	_, err = SchemaActivityLifecycle.ParseKey("A->B")
	assert.True(t, errors.IsCode(err, errors.CodeMalformedEdgeKey))
}

func TestSchema_EndpointLabel(t *testing.T) {
	e := Endpoint{Activity: "Approve", Lifecycle: "complete"}
	assert.Equal(t, "Approve-complete", SchemaActivityLifecycle.EndpointLabel(e))
	assert.Equal(t, "Approve", SchemaActivity.EndpointLabel(Endpoint{Activity: "Approve"}))
}

var safeName = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

func TestKey_Slug(t *testing.T) {
	keys := []Key{
		{Source: Endpoint{Activity: "A/B"}, Sink: Endpoint{Activity: "C"}},
		{Source: Endpoint{Activity: "A:B"}, Sink: Endpoint{Activity: "C"}},
		{Source: Endpoint{Activity: "A B"}, Sink: Endpoint{Activity: "C"}},
		{Source: Endpoint{Activity: `Check "urgent"*`}, Sink: Endpoint{Activity: `..\secret`}},
		{Source: Endpoint{Activity: "A", Lifecycle: "start"}, Sink: Endpoint{Activity: "C"}},
		{Source: Endpoint{Activity: "A-start"}, Sink: Endpoint{Activity: "C"}},
		{Source: Endpoint{Activity: ".hidden"}, Sink: Endpoint{Activity: "Ünïcode"}},
	}

	seen := make(map[string]Key)
	for _, k := range keys {
		slug := k.Slug()
		assert.Regexp(t, safeName, slug, k.String())
		assert.NotEqual(t, '.', rune(slug[0]), k.String())
		if prev, dup := seen[slug]; dup {
			t.Errorf("Slug collision: %v and %v both map to %q", prev, k, slug)
		}
		seen[slug] = k
	}

	// Deterministic.
	assert.Equal(t, keys[0].Slug(), keys[0].Slug())
}

func TestKey_SlugLength(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	k := Key{Source: Endpoint{Activity: string(long)}, Sink: Endpoint{Activity: "y"}}
	assert.LessOrEqual(t, len(k.Slug()), maxSlugBody+9)
}
