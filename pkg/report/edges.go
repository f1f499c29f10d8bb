package report

import (
	"context"
	"fmt"

	"github.com/logflow/actorflow/pkg/edge"
	"github.com/logflow/actorflow/pkg/graph"
)

// Selector chooses the edges of a report: an explicit ordered list, or every
// case-level edge above a frequency threshold.
type Selector struct {
	all  bool
	keys []edge.Key
}

// AllEdges selects every case-level edge occurring more than the minimum
// frequency, most frequent first.
func AllEdges() Selector {
	return Selector{all: true}
}

// Edges selects keys in the given order.
func Edges(keys ...edge.Key) Selector {
	return Selector{keys: append([]edge.Key(nil), keys...)}
}

// IsAll reports whether s is the AllEdges selector.
func (s Selector) IsAll() bool { return s.all }

// Keys returns the explicit keys of s.
func (s Selector) Keys() []edge.Key {
	return append([]edge.Key(nil), s.keys...)
}

func (s Selector) String() string {
	if s.all {
		return "all"
	}
	return fmt.Sprintf("%d explicit edges", len(s.keys))
}

const edgeFrequencyQuery = `
SELECT e1.activity AS activity1,
       e2.activity AS activity2,%s
       COUNT(*) AS frequency
FROM rel df
JOIN node e1 ON e1.id = df.src
JOIN node e2 ON e2.id = df.dst
WHERE df.type = $df_case
GROUP BY %s
HAVING COUNT(*) > $min_freq
ORDER BY frequency DESC, %s`

// frequentEdges lists the case-level edges occurring more than minFreq times.
func frequentEdges(schema edge.Schema, caseEntity graph.Entity, minFreq int64) graph.Query {
	lifecycles := ""
	groupBy := "e1.activity, e2.activity"
	if schema.Qualified() {
		lifecycles = `
       e1.lifecycle AS lifecycle1,
       e2.lifecycle AS lifecycle2,`
		groupBy = "e1.activity, e1.lifecycle, e2.activity, e2.lifecycle"
	}
	return graph.Query{
		Name: "frequent_edges",
		Text: fmt.Sprintf(edgeFrequencyQuery, lifecycles, groupBy, groupBy),
		Params: map[string]any{
			"df_case":  caseEntity.DFRelationship(),
			"min_freq": minFreq,
		},
	}
}

// EdgeFrequency is an edge with its number of case-level occurrences.
type EdgeFrequency struct {
	Key       edge.Key
	Frequency int64
}

// ResolveEdges turns sel into a validated edge list. Explicit keys are
// checked against the schema and the first malformed key fails the call.
// For AllEdges the graph is queried; pairs with a missing component are
// logged and left out.
func (a *Assembler) ResolveEdges(ctx context.Context, sel Selector, minFreq int64) ([]edge.Key, error) {
	if !sel.IsAll() {
		keys := sel.Keys()
		for _, k := range keys {
			if err := a.schema.Validate(k); err != nil {
				return nil, err
			}
		}
		return keys, nil
	}

	freqs, err := a.EdgeFrequencies(ctx, minFreq)
	if err != nil {
		return nil, err
	}
	keys := make([]edge.Key, len(freqs))
	for i, f := range freqs {
		keys[i] = f.Key
	}
	return keys, nil
}

// EdgeFrequencies returns the case-level edges occurring more than minFreq
// times, most frequent first.
func (a *Assembler) EdgeFrequencies(ctx context.Context, minFreq int64) ([]EdgeFrequency, error) {
	q := frequentEdges(a.schema, a.caseEntity, minFreq)
	rows, err := a.exec.Execute(ctx, q)
	a.metrics.ObserveQuery(q.Name, err)
	if err != nil {
		return nil, err
	}

	out := make([]EdgeFrequency, 0, len(rows))
	for _, row := range rows {
		var k edge.Key
		k.Source.Activity, _ = row.String("activity1")
		k.Sink.Activity, _ = row.String("activity2")
		if a.schema.Qualified() {
			k.Source.Lifecycle, _ = row.String("lifecycle1")
			k.Sink.Lifecycle, _ = row.String("lifecycle2")
		}
		if err := a.schema.Validate(k); err != nil {
			a.logger.Warn("ignoring incomplete edge", "edge", k.String(), "error", err)
			continue
		}
		freq, _ := row.Int64("frequency")
		out = append(out, EdgeFrequency{Key: k, Frequency: freq})
	}
	return out, nil
}
