package graph

import (
	"context"
	"math"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logflow/actorflow/pkg/errors"
)

func TestQuery_Render(t *testing.T) {
	tests := []struct {
		name     string
		query    Query
		wantStmt string
		wantArgs []any
	}{
		{
			name:     "no params",
			query:    Query{Text: "SELECT 1"},
			wantStmt: "SELECT 1",
		},
		{
			name: "repeated param binds twice",
			query: Query{
				Text:   "UPDATE rel SET actor_behavior = $label WHERE actor_behavior IS NULL OR actor_behavior = $label",
				Params: map[string]any{"label": "continuation"},
			},
			wantStmt: "UPDATE rel SET actor_behavior = ? WHERE actor_behavior IS NULL OR actor_behavior = ?",
			wantArgs: []any{"continuation", "continuation"},
		},
		{
			name: "order follows text",
			query: Query{
				Text:   "WHERE type = $df_case AND kind = $resource_node_label AND n > $min_freq",
				Params: map[string]any{"min_freq": 10, "df_case": "DF_CASE", "resource_node_label": "Resource"},
			},
			wantStmt: "WHERE type = ? AND kind = ? AND n > ?",
			wantArgs: []any{"DF_CASE", "Resource", 10},
		},
		{
			name: "quotes stay in args",
			query: Query{
				Text:   "WHERE activity = $activity1",
				Params: map[string]any{"activity1": `Check "urgent" order`},
			},
			wantStmt: "WHERE activity = ?",
			wantArgs: []any{`Check "urgent" order`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt, args, err := tt.query.Render()
			require.NoError(t, err)
			assert.Equal(t, tt.wantStmt, stmt)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestQuery_RenderUnbound(t *testing.T) {
	q := Query{Name: "top_edges", Text: "WHERE count > $min_freq AND type = $df_case", Params: map[string]any{"df_case": "DF"}}

	_, _, err := q.Render()
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeQueryTemplate))
	assert.Contains(t, err.Error(), "min_freq")
}

func TestRow_Int64Range(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 70)
	tests := []struct {
		name  string
		value any
		want  int64
		ok    bool
	}{
		{"max uint64 within range", uint64(math.MaxInt64), math.MaxInt64, true},
		{"uint64 overflow", uint64(math.MaxInt64) + 1, 0, false},
		{"integral float", 12.0, 12, true},
		{"negative integral float", -3.0, -3, true},
		{"min int64 float", float64(math.MinInt64), math.MinInt64, true},
		{"fractional float", 1.5, 0, false},
		{"float overflow", math.Pow(2, 63), 0, false},
		{"float underflow", -math.Pow(2, 64), 0, false},
		{"NaN", math.NaN(), 0, false},
		{"infinity", math.Inf(1), 0, false},
		{"big int overflow", huge, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, ok := Row{"v": tt.value}.Int64("v")
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestRow_Accessors(t *testing.T) {
	ts := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	row := Row{
		"label":    "continuation",
		"count":    int64(42),
		"big":      big.NewInt(7),
		"duration": 3.5,
		"start":    ts,
		"missing":  nil,
	}

	s, ok := row.String("label")
	assert.True(t, ok)
	assert.Equal(t, "continuation", s)

	n, ok := row.Int64("count")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)

	n, ok = row.Int64("big")
	assert.True(t, ok)
	assert.Equal(t, int64(7), n)

	f, ok := row.Float64("duration")
	assert.True(t, ok)
	assert.Equal(t, 3.5, f)

	f, ok = row.Float64("count")
	assert.True(t, ok)
	assert.Equal(t, 42.0, f)

	got, ok := row.Time("start")
	assert.True(t, ok)
	assert.True(t, got.Equal(ts))

	_, ok = row.String("missing")
	assert.False(t, ok)
	_, ok = row.Float64("missing")
	assert.False(t, ok)
	_, ok = row.Time("nope")
	assert.False(t, ok)
}

func TestExecutorFunc(t *testing.T) {
	var seen string
	exec := ExecutorFunc(func(_ context.Context, q Query) ([]Row, error) {
		seen = q.Name
		return []Row{{"affected": int64(1)}}, nil
	})

	rows, err := exec.Execute(context.Background(), Query{Name: "probe"})
	require.NoError(t, err)
	assert.Equal(t, "probe", seen)
	assert.Len(t, rows, 1)
}

func TestNewEntity(t *testing.T) {
	e := NewEntity("resource", "Resource")
	assert.Equal(t, "Resource", e.NodeType())
	assert.Equal(t, "DF_RESOURCE", e.DFRelationship())
	assert.Equal(t, "DF_TI_RESOURCE", e.DFTaskInstanceRelationship())

	custom := Entity{Type: "Application", DFLabel: "DF_C_APP"}.WithDefaults()
	assert.Equal(t, "Application", custom.Name)
	assert.Equal(t, "DF_C_APP", custom.DFRelationship())
	assert.Equal(t, "DF_TI_APPLICATION", custom.DFTaskInstanceRelationship())
}
