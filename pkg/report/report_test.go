package report

import (
	"bytes"
	"context"
	stderrors "errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/logflow/actorflow/pkg/aggregate"
	"github.com/logflow/actorflow/pkg/behavior"
	"github.com/logflow/actorflow/pkg/cachestore"
	"github.com/logflow/actorflow/pkg/edge"
	"github.com/logflow/actorflow/pkg/errors"
	"github.com/logflow/actorflow/pkg/graph"
	"github.com/logflow/actorflow/pkg/instances"
	"github.com/logflow/actorflow/pkg/telemetry"
)

var (
	caseEntity     = graph.NewEntity("application", "Application")
	resourceEntity = graph.NewEntity("resource", "Resource")
	t0             = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
)

func key(src, sink string) edge.Key {
	return edge.Key{Source: edge.Endpoint{Activity: src}, Sink: edge.Endpoint{Activity: sink}}
}

func dur(v float64) *float64 { return &v }

func nanValue() float64 { return math.NaN() }

// fakeSource serves one instance per edge with the given label, or an error
// for edges listed in fail.
type fakeSource struct {
	mu    sync.Mutex
	calls []edge.Key
	fail  map[edge.Key]error
	unit  instances.TimeUnit
}

func (s *fakeSource) InstancesFor(_ context.Context, k edge.Key) (*instances.Table, error) {
	s.mu.Lock()
	s.calls = append(s.calls, k)
	s.mu.Unlock()
	if err := s.fail[k]; err != nil {
		return nil, err
	}
	one := instances.Instance{Start: t0, End: t0.Add(time.Hour), Duration: dur(1), Label: behavior.Continuation}
	all := one
	all.Label = behavior.All
	unit := s.unit
	if unit == "" {
		unit = instances.Hours
	}
	return &instances.Table{TimeUnit: unit, Instances: []instances.Instance{one, all}}, nil
}

type countingProgress struct{ n atomic.Int64 }

func (p *countingProgress) Add(n int) error {
	p.n.Add(int64(n))
	return nil
}

func noQueries(t *testing.T) graph.Executor {
	return graph.ExecutorFunc(func(context.Context, graph.Query) ([]graph.Row, error) {
		t.Fatal("unexpected query")
		return nil, nil
	})
}

func newAssembler(exec graph.Executor, src InstanceSource, opts ...AssemblerOption) *Assembler {
	opts = append([]AssemblerOption{WithLogger(telemetry.DiscardLogger())}, opts...)
	return NewAssembler(exec, src, edge.SchemaActivity, caseEntity, opts...)
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("")
	require.NoError(t, err)
	assert.Equal(t, FailAbort, p)

	p, err = ParseFailurePolicy("Skip")
	require.NoError(t, err)
	assert.Equal(t, FailSkip, p)
	assert.Equal(t, "skip", p.String())

	_, err = ParseFailurePolicy("retry")
	assert.True(t, errors.IsCode(err, errors.CodeInvalidConfig))
}

func TestBuild_ExplicitEdgesKeepOrder(t *testing.T) {
	src := &fakeSource{}
	progress := &countingProgress{}
	a := newAssembler(noQueries(t), src, WithWorkers(4), WithProgress(progress))

	keys := []edge.Key{key("C", "D"), key("A", "B"), key("B", "C")}
	rep, err := a.Build(context.Background(), Options{
		Selector:  Edges(keys...),
		Aggregate: aggregate.Options{Stats: []aggregate.Stat{aggregate.Mean}},
	})
	require.NoError(t, err)

	assert.Equal(t, keys, rep.Edges)
	assert.EqualValues(t, 3, progress.n.Load())
	require.Len(t, rep.Rows, 6)

	var order []string
	for _, row := range rep.Rows {
		order = append(order, row.Source+">"+row.Sink+":"+string(row.Label))
	}
	assert.Equal(t, []string{
		"C>D:all", "C>D:continuation",
		"A>B:all", "A>B:continuation",
		"B>C:all", "B>C:continuation",
	}, order)
	assert.Equal(t, []float64{1, 1, 1}, rep.Rows[0].Values)
	assert.Len(t, rep.Columns, 3)
}

func TestBuild_MalformedKeyRejectedBeforeCaching(t *testing.T) {
	src := &fakeSource{}
	a := newAssembler(noQueries(t), src)

	_, err := a.Build(context.Background(), Options{
		Selector: Edges(key("A", "B"), key("", "C")),
	})
	assert.True(t, errors.IsCode(err, errors.CodeMalformedEdgeKey))
	assert.Empty(t, src.calls)
}

func TestBuild_AbortOnFailure(t *testing.T) {
	boom := errors.QueryFailed("edge_instances", stderrors.New("connection reset"))
	src := &fakeSource{fail: map[edge.Key]error{key("B", "C"): boom}}
	a := newAssembler(noQueries(t), src)

	_, err := a.Build(context.Background(), Options{
		Selector: Edges(key("A", "B"), key("B", "C"), key("C", "D")),
	})
	assert.True(t, errors.IsCode(err, errors.CodeQueryFailed))
	assert.Equal(t, []edge.Key{key("A", "B"), key("B", "C")}, src.calls, "later edges not processed")
}

func TestBuild_SkipOnFailure(t *testing.T) {
	boom := errors.QueryFailed("edge_instances", stderrors.New("connection reset"))
	src := &fakeSource{fail: map[edge.Key]error{key("B", "C"): boom}}
	metrics := telemetry.NewMetrics()
	a := newAssembler(noQueries(t), src, WithFailurePolicy(FailSkip), WithMetrics(metrics))

	rep, err := a.Build(context.Background(), Options{
		Selector: Edges(key("A", "B"), key("B", "C"), key("C", "D")),
	})
	require.NoError(t, err)
	assert.Equal(t, []edge.Key{key("A", "B"), key("C", "D")}, rep.Edges)
	require.Len(t, rep.Skipped, 1)
	assert.Equal(t, key("B", "C"), rep.Skipped[0].Key)
	assert.ErrorIs(t, rep.Skipped[0].Err, boom)
	assert.Len(t, rep.Rows, 4)
}

func TestBuild_ColumnsMustMatchReport(t *testing.T) {
	opts := Options{
		Selector:  Edges(key("A", "B"), key("B", "C")),
		TimeUnit:  instances.Minutes,
		Aggregate: aggregate.Options{Stats: []aggregate.Stat{aggregate.Mean}},
	}

	a := newAssembler(noQueries(t), &fakeSource{unit: instances.Hours})
	_, err := a.Build(context.Background(), opts)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeAggregationFailed), "got %v", err)

	a = newAssembler(noQueries(t), &fakeSource{unit: instances.Hours}, WithFailurePolicy(FailSkip))
	rep, err := a.Build(context.Background(), opts)
	require.NoError(t, err)
	assert.Empty(t, rep.Edges)
	assert.Len(t, rep.Skipped, 2)

	a = newAssembler(noQueries(t), &fakeSource{unit: instances.Minutes})
	rep, err = a.Build(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, "duration_minutes", rep.Columns[2].Level0)
	assert.Len(t, rep.Rows, 4)
}

func TestBuild_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := newAssembler(noQueries(t), &fakeSource{}, WithFailurePolicy(FailSkip))
	_, err := a.Build(ctx, Options{Selector: Edges(key("A", "B"))})
	assert.True(t, errors.IsCode(err, errors.CodeContextCanceled))
}

func TestResolveEdges_All(t *testing.T) {
	var got graph.Query
	exec := graph.ExecutorFunc(func(_ context.Context, q graph.Query) ([]graph.Row, error) {
		got = q
		return []graph.Row{
			{"activity1": "A", "activity2": "B", "frequency": int64(5000)},
			{"activity1": nil, "activity2": "B", "frequency": int64(4000)},
			{"activity1": "B", "activity2": "C", "frequency": int64(1200)},
		}, nil
	})
	a := newAssembler(exec, &fakeSource{})

	keys, err := a.ResolveEdges(context.Background(), AllEdges(), 1000)
	require.NoError(t, err)
	assert.Equal(t, []edge.Key{key("A", "B"), key("B", "C")}, keys)
	assert.Equal(t, "frequent_edges", got.Name)
	assert.EqualValues(t, 1000, got.Params["min_freq"])
	assert.Equal(t, "DF_APPLICATION", got.Params["df_case"])
}

func TestEdgeFrequencies_DuckDB(t *testing.T) {
	ctx := context.Background()
	store, err := graph.OpenStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	step := func(a, b, lc string) {
		e1, err := store.AddEvent(ctx, graph.Event{Activity: a, Lifecycle: lc, Timestamp: t0})
		require.NoError(t, err)
		e2, err := store.AddEvent(ctx, graph.Event{Activity: b, Lifecycle: lc, Timestamp: t0.Add(time.Minute)})
		require.NoError(t, err)
		_, err = store.Relate(ctx, caseEntity.DFRelationship(), e1, e2)
		require.NoError(t, err)
	}
	for i := 0; i < 3; i++ {
		step("A", "B", "complete")
	}
	for i := 0; i < 5; i++ {
		step("B", "C", "complete")
	}
	step("C", "D", "complete")

	a := newAssembler(store, &fakeSource{})
	freqs, err := a.EdgeFrequencies(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []EdgeFrequency{
		{Key: key("B", "C"), Frequency: 5},
		{Key: key("A", "B"), Frequency: 3},
	}, freqs)

	q := NewAssembler(store, &fakeSource{}, edge.SchemaActivityLifecycle, caseEntity,
		WithLogger(telemetry.DiscardLogger()))
	freqs, err = q.EdgeFrequencies(ctx, 4)
	require.NoError(t, err)
	require.Len(t, freqs, 1)
	assert.Equal(t, "complete", freqs[0].Key.Source.Lifecycle)
}

func TestWriteCSV(t *testing.T) {
	rep := &Report{
		Columns: aggregate.Columns(instances.Hours, []aggregate.Stat{aggregate.Mean, aggregate.Std}),
		Rows: []Row{
			{Source: "A", Sink: "B", Label: behavior.All, Values: []float64{1, 1, 1.5, nanValue()}},
			{Source: "A", Sink: "B", Label: behavior.Continuation, Values: []float64{1, 1, 1.5, nanValue()}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rep))

	want := strings.Join([]string{
		",,,actor_behavior,actor_behavior,duration_hours,duration_hours",
		",,,count,percentage,mean,std",
		"source,sink,actor_behavior,,,,",
		"A,B,all,1,1,1.5,",
		"A,B,continuation,1,1,1.5,",
		"",
	}, "\n")
	assert.Equal(t, want, buf.String())
}

func TestSaveCSVAndXLSX(t *testing.T) {
	root := t.TempDir()
	rep := &Report{
		Columns: aggregate.Columns(instances.Hours, []aggregate.Stat{aggregate.Mean}),
		Rows: []Row{
			{Source: "A", Sink: "B", Label: behavior.All, Values: []float64{2, 1, 0.25}},
		},
	}

	path := Path(root, "bpic17")
	assert.Equal(t, filepath.Join(root, "bpic17", "decomposed_actor_behavior",
		"performance_decomposed_by_actor_behavior.csv"), path)
	require.NoError(t, SaveCSV(path, rep))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "A,B,all,2,1,0.25")

	xlsx := XLSXPath(root, "bpic17")
	require.NoError(t, SaveXLSX(xlsx, rep))

	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer f.Close()
	v, err := f.GetCellValue(sheetName, "D1")
	require.NoError(t, err)
	assert.Equal(t, "actor_behavior", v)
	v, err = f.GetCellValue(sheetName, "F4")
	require.NoError(t, err)
	assert.Equal(t, "0.25", v)
	merged, err := f.GetMergeCells(sheetName)
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.Equal(t, "D1", merged[0].GetStartAxis())
	assert.Equal(t, "E1", merged[0].GetEndAxis())
}

// continuationGraph builds and classifies a graph with one Submit->Review
// edge handled by a single resource, gap apart.
func continuationGraph(t *testing.T, gap time.Duration) *graph.Store {
	t.Helper()
	ctx := context.Background()
	store, err := graph.OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r, err := store.AddEntity(ctx, resourceEntity.NodeType(), "R")
	require.NoError(t, err)
	e1, err := store.AddEvent(ctx, graph.Event{Activity: "Submit", Timestamp: t0})
	require.NoError(t, err)
	e2, err := store.AddEvent(ctx, graph.Event{Activity: "Review", Timestamp: t0.Add(gap)})
	require.NoError(t, err)
	for _, rel := range []struct {
		typ      string
		src, dst int64
	}{
		{graph.RelCorrelates, e1, r},
		{graph.RelCorrelates, e2, r},
		{caseEntity.DFRelationship(), e1, e2},
		{resourceEntity.DFRelationship(), e1, e2},
	} {
		_, err := store.Relate(ctx, rel.typ, rel.src, rel.dst)
		require.NoError(t, err)
	}

	_, err = behavior.NewClassifier(store, caseEntity, resourceEntity,
		behavior.WithLogger(telemetry.DiscardLogger())).Classify(ctx)
	require.NoError(t, err)
	return store
}

func newCache(store *graph.Store, backend cachestore.Backend, unit instances.TimeUnit) *instances.Cache {
	return instances.NewCache(store, backend, instances.CacheConfig{
		Dataset:  "synthetic",
		Schema:   edge.SchemaActivity,
		Case:     caseEntity,
		TimeUnit: unit,
	}, instances.WithCacheLogger(telemetry.DiscardLogger()))
}

// TestEndToEnd_SingleContinuation classifies a one-edge graph, caches its
// instances and checks the report rows.
func TestEndToEnd_SingleContinuation(t *testing.T) {
	ctx := context.Background()
	store := continuationGraph(t, 3*time.Hour)

	backend := cachestore.NewMemory()
	a := newAssembler(store, newCache(store, backend, instances.Hours))
	rep, err := a.Build(ctx, Options{
		Selector:     AllEdges(),
		MinFrequency: 0,
		TimeUnit:     instances.Hours,
		Aggregate:    aggregate.Options{Stats: []aggregate.Stat{aggregate.Mean}},
	})
	require.NoError(t, err)
	require.Len(t, rep.Rows, 2)

	for i, label := range []behavior.Label{behavior.All, behavior.Continuation} {
		row := rep.Rows[i]
		assert.Equal(t, "Submit", row.Source)
		assert.Equal(t, "Review", row.Sink)
		assert.Equal(t, label, row.Label)
		assert.Equal(t, 1.0, row.Values[0], "count")
		assert.Equal(t, 1.0, row.Values[1], "percentage")
		assert.InDelta(t, 3.0, row.Values[2], 1e-9, "mean hours")
	}
	assert.Equal(t, 1, backend.Puts())
}

// A table cached under one time unit is reported in the unit of the run
// that reads it.
func TestEndToEnd_CacheHitInOtherTimeUnit(t *testing.T) {
	ctx := context.Background()
	store := continuationGraph(t, 2*time.Hour)
	backend := cachestore.NewMemory()

	build := func(unit instances.TimeUnit) *Report {
		rep, err := newAssembler(store, newCache(store, backend, unit)).Build(ctx, Options{
			Selector:  AllEdges(),
			TimeUnit:  unit,
			Aggregate: aggregate.Options{Stats: []aggregate.Stat{aggregate.Mean}},
		})
		require.NoError(t, err)
		require.Len(t, rep.Rows, 2)
		return rep
	}

	rep := build(instances.Hours)
	assert.InDelta(t, 2.0, rep.Rows[1].Values[2], 1e-9)

	rep = build(instances.Minutes)
	assert.Equal(t, aggregate.Column{Level0: "duration_minutes", Level1: "mean"}, rep.Columns[2])
	assert.Equal(t, behavior.Continuation, rep.Rows[1].Label)
	assert.InDelta(t, 120.0, rep.Rows[1].Values[2], 1e-9)
	assert.Equal(t, 1, backend.Puts(), "second run is served from the cache")
}
