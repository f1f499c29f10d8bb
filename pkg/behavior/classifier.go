package behavior

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/logflow/actorflow/pkg/errors"
	"github.com/logflow/actorflow/pkg/graph"
	"github.com/logflow/actorflow/pkg/telemetry"
)

// Classifier labels case-level DF edges with their actor behavior. It is the
// only writer of the actor_behavior property.
type Classifier struct {
	exec       graph.Executor
	caseEntity graph.Entity
	resource   graph.Entity
	rules      []Rule

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// ClassifierOption configures a Classifier.
type ClassifierOption func(*Classifier)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ClassifierOption {
	return func(c *Classifier) {
		c.logger = l
	}
}

// WithMetrics records per-label edge counts on m.
func WithMetrics(m *telemetry.Metrics) ClassifierOption {
	return func(c *Classifier) {
		c.metrics = m
	}
}

// WithRules replaces the classification passes. Intended for tests.
func WithRules(rules []Rule) ClassifierOption {
	return func(c *Classifier) {
		c.rules = rules
	}
}

// NewClassifier creates a classifier for the given case and resource entities.
func NewClassifier(exec graph.Executor, caseEntity, resource graph.Entity, opts ...ClassifierOption) *Classifier {
	c := &Classifier{
		exec:       exec,
		caseEntity: caseEntity,
		resource:   resource,
		rules:      Rules(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Summary reports what one classification run wrote.
type Summary struct {
	// Affected is the number of edges each pass wrote. Edges already owned
	// by an earlier pass are not counted again.
	Affected map[Label]int64
	Duration time.Duration
}

// Total returns the number of edges labeled across all passes.
func (s Summary) Total() int64 {
	var n int64
	for _, v := range s.Affected {
		n += v
	}
	return n
}

// Classify runs every pass in order. The first failing pass aborts the run;
// passes that already ran keep their labels.
func (c *Classifier) Classify(ctx context.Context) (Summary, error) {
	ctx, span := telemetry.StartSpan(ctx, "behavior.Classify",
		attribute.String("df_case", c.caseEntity.DFRelationship()),
		attribute.String("df_resource", c.resource.DFRelationship()),
	)

	start := time.Now()
	summary := Summary{Affected: make(map[Label]int64, len(c.rules))}

	for _, rule := range c.rules {
		if err := ctx.Err(); err != nil {
			cerr := errors.Wrap(err, errors.CodeContextCanceled, "classification canceled").
				WithContext("actor_behavior", rule.Label)
			telemetry.EndSpan(span, cerr)
			return summary, cerr
		}

		n, err := c.runPass(ctx, rule)
		if err != nil {
			telemetry.EndSpan(span, err)
			return summary, err
		}
		summary.Affected[rule.Label] = n
	}

	summary.Duration = time.Since(start)
	span.SetAttributes(attribute.Int64("edges_labeled", summary.Total()))
	telemetry.EndSpan(span, nil)

	telemetry.LoggerWithTrace(ctx, c.logger).Info("classification complete",
		"edges_labeled", summary.Total(),
		"duration", summary.Duration,
	)
	return summary, nil
}

func (c *Classifier) runPass(ctx context.Context, rule Rule) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "behavior.pass",
		attribute.String("actor_behavior", string(rule.Label)))

	q := rule.Build(c.caseEntity, c.resource)
	rows, err := c.exec.Execute(ctx, q)
	c.metrics.ObserveQuery(q.Name, err)
	if err != nil {
		werr := errors.Wrap(err, errors.CodeClassificationFailed, "classification pass failed").
			WithContext("actor_behavior", rule.Label)
		telemetry.EndSpan(span, werr)
		return 0, werr
	}

	n := affected(rows)
	c.metrics.Classified(string(rule.Label), n)
	span.SetAttributes(attribute.Int64("edges_labeled", n))
	telemetry.EndSpan(span, nil)

	telemetry.LoggerWithTrace(ctx, c.logger).Debug("classification pass",
		"actor_behavior", rule.Label,
		"edges_labeled", n,
	)
	return n, nil
}

// Reset removes every actor_behavior label from case-level DF edges, so the
// next Classify starts from an unlabeled graph.
func (c *Classifier) Reset(ctx context.Context) (int64, error) {
	q := resetQuery(c.caseEntity)
	rows, err := c.exec.Execute(ctx, q)
	c.metrics.ObserveQuery(q.Name, err)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeClassificationFailed, "failed to reset labels")
	}

	n := affected(rows)
	c.logger.Info("labels cleared", "df_case", c.caseEntity.DFRelationship(), "edges", n)
	return n, nil
}

func affected(rows []graph.Row) int64 {
	if len(rows) == 0 {
		return 0
	}
	n, ok := rows[0].Int64("affected")
	if !ok || n < 0 {
		return 0
	}
	return n
}
