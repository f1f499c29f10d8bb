// Package report assembles the performance report: for every selected
// edge it fetches the edge's instances, aggregates them per actor behavior
// and stacks the per-edge tables under (source, sink) index levels.
package report

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/logflow/actorflow/pkg/aggregate"
	"github.com/logflow/actorflow/pkg/behavior"
	"github.com/logflow/actorflow/pkg/edge"
	"github.com/logflow/actorflow/pkg/errors"
	"github.com/logflow/actorflow/pkg/graph"
	"github.com/logflow/actorflow/pkg/instances"
	"github.com/logflow/actorflow/pkg/telemetry"
)

// InstanceSource returns the instance table of an edge.
// *instances.Cache implements it.
type InstanceSource interface {
	InstancesFor(ctx context.Context, k edge.Key) (*instances.Table, error)
}

// Progress is notified once per finished edge.
// *progressbar.ProgressBar satisfies it.
type Progress interface {
	Add(n int) error
}

// Row is one label row of one edge.
type Row struct {
	Source string
	Sink   string
	Label  behavior.Label
	Values []float64
}

// SkippedEdge records an edge left out under FailSkip.
type SkippedEdge struct {
	Key edge.Key
	Err error
}

// Report is the merged per-edge aggregation.
type Report struct {
	Columns []aggregate.Column
	Rows    []Row
	Edges   []edge.Key
	Skipped []SkippedEdge

	Duration time.Duration
}

// Options configures one Build.
type Options struct {
	Selector Selector

	// MinFrequency is the exclusive occurrence threshold of AllEdges.
	MinFrequency int64

	// TimeUnit names the duration columns. It should match the unit the
	// instance source converts durations to.
	TimeUnit instances.TimeUnit

	Aggregate aggregate.Options
}

// Assembler builds reports.
type Assembler struct {
	exec       graph.Executor
	source     InstanceSource
	schema     edge.Schema
	caseEntity graph.Entity

	workers  int
	policy   FailurePolicy
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	progress Progress
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithWorkers processes up to n edges concurrently. Output order is not
// affected. Values below 1 mean 1.
func WithWorkers(n int) AssemblerOption {
	return func(a *Assembler) {
		a.workers = n
	}
}

// WithFailurePolicy sets the per-edge failure policy. Defaults to FailAbort.
func WithFailurePolicy(p FailurePolicy) AssemblerOption {
	return func(a *Assembler) {
		a.policy = p
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) AssemblerOption {
	return func(a *Assembler) {
		a.logger = l
	}
}

// WithMetrics records queries and edge outcomes on m.
func WithMetrics(m *telemetry.Metrics) AssemblerOption {
	return func(a *Assembler) {
		a.metrics = m
	}
}

// WithProgress reports finished edges to p.
func WithProgress(p Progress) AssemblerOption {
	return func(a *Assembler) {
		a.progress = p
	}
}

// NewAssembler creates an assembler that resolves edges with exec and reads
// instances from source.
func NewAssembler(exec graph.Executor, source InstanceSource, schema edge.Schema, caseEntity graph.Entity, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		exec:       exec,
		source:     source,
		schema:     schema,
		caseEntity: caseEntity,
		workers:    1,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.workers < 1 {
		a.workers = 1
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	return a
}

// Build resolves the selected edges and assembles their report. Rows follow
// the edge order, and within an edge the label order of the aggregation.
func (a *Assembler) Build(ctx context.Context, opts Options) (*Report, error) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "report.Build",
		attribute.String("selector", opts.Selector.String()),
		attribute.String("failure_policy", a.policy.String()),
		attribute.Int("workers", a.workers),
	)
	logger := telemetry.LoggerWithTrace(ctx, a.logger)

	unit := opts.TimeUnit
	if unit == "" {
		unit = instances.Hours
	}
	rep := &Report{Columns: aggregate.Columns(unit, opts.Aggregate.Stats), Rows: []Row{}}

	keys, err := a.ResolveEdges(ctx, opts.Selector, opts.MinFrequency)
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("edges", len(keys)))
	logger.Info("building report", "edges", len(keys), "selector", opts.Selector.String())

	results := make([]*aggregate.Result, len(keys))
	failures := make([]error, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, k := range keys {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res, err := a.processEdge(gctx, k, opts.Aggregate, rep.Columns)
			a.tick()
			if err == nil {
				results[i] = res
				a.metrics.EdgeProcessed("ok")
				return nil
			}
			if a.policy == FailSkip && ctx.Err() == nil {
				failures[i] = err
				a.metrics.EdgeProcessed("skipped")
				logger.Warn("skipping edge", "edge", k.String(), "error", err)
				return nil
			}
			a.metrics.EdgeProcessed("failed")
			return err
		})
	}
	err = g.Wait()
	if ctx.Err() != nil {
		err = errors.Wrap(ctx.Err(), errors.CodeContextCanceled, "report canceled")
	}
	if err != nil {
		telemetry.EndSpan(span, err)
		return nil, err
	}

	for i, k := range keys {
		if failures[i] != nil {
			rep.Skipped = append(rep.Skipped, SkippedEdge{Key: k, Err: failures[i]})
			continue
		}
		rep.Edges = append(rep.Edges, k)
		src, sink := a.schema.EndpointLabel(k.Source), a.schema.EndpointLabel(k.Sink)
		for _, row := range results[i].Rows {
			rep.Rows = append(rep.Rows, Row{Source: src, Sink: sink, Label: row.Label, Values: row.Values})
		}
	}

	rep.Duration = time.Since(start)
	span.SetAttributes(attribute.Int("rows", len(rep.Rows)), attribute.Int("skipped", len(rep.Skipped)))
	telemetry.EndSpan(span, nil)
	logger.Info("report built",
		"edges", len(rep.Edges),
		"skipped", len(rep.Skipped),
		"rows", len(rep.Rows),
		"duration", rep.Duration)
	return rep, nil
}

// processEdge aggregates the instances of k. A result whose columns differ
// from want, e.g. durations in another time unit, is an error.
func (a *Assembler) processEdge(ctx context.Context, k edge.Key, opts aggregate.Options, want []aggregate.Column) (*aggregate.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t, err := a.source.InstancesFor(ctx, k)
	if err != nil {
		return nil, err
	}
	res, err := aggregate.Aggregate(t, opts)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeAggregationFailed, "aggregation failed").
			WithContext("edge", k.String())
	}
	if !slices.Equal(res.Columns, want) {
		return nil, errors.New(errors.CodeAggregationFailed, "edge columns do not match the report columns").
			WithContext("edge", k.String()).
			WithContext("columns", res.Columns).
			WithContext("expected", want)
	}
	return res, nil
}

func (a *Assembler) tick() {
	if a.progress != nil {
		_ = a.progress.Add(1)
	}
}
