// Package aggregate summarizes an edge instance table per actor behavior:
// how often each label occurs, its share of the edge, and statistics over
// the durations of its instances.
package aggregate

import (
	"math"
	"sort"

	"github.com/logflow/actorflow/pkg/behavior"
	"github.com/logflow/actorflow/pkg/errors"
	"github.com/logflow/actorflow/pkg/instances"
)

// Column is a two-level column name, e.g. (actor_behavior, count) or
// (duration_hours, mean).
type Column struct {
	Level0 string
	Level1 string
}

const behaviorLevel = "actor_behavior"

// Row holds the values of one label, aligned with Result.Columns.
type Row struct {
	Label  behavior.Label
	Values []float64
}

// Result is an aggregated table indexed by label.
type Result struct {
	Columns []Column
	Rows    []Row
}

// Value returns the value of column col for label. ok is false when either
// is absent.
func (r *Result) Value(label behavior.Label, col Column) (float64, bool) {
	ci := -1
	for i, c := range r.Columns {
		if c == col {
			ci = i
			break
		}
	}
	if ci < 0 {
		return 0, false
	}
	for _, row := range r.Rows {
		if row.Label == label {
			return row.Values[ci], true
		}
	}
	return 0, false
}

// Labels returns the row labels in order.
func (r *Result) Labels() []behavior.Label {
	out := make([]behavior.Label, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.Label
	}
	return out
}

// Options controls aggregation.
type Options struct {
	// Stats lists the duration statistics to compute, in column order.
	Stats []Stat

	// ExcludeZeroDuration drops instances whose duration is not strictly
	// positive. Missing durations count as zero.
	ExcludeZeroDuration bool
}

// Columns returns the column schema of an aggregation over unit.
func Columns(unit instances.TimeUnit, stats []Stat) []Column {
	cols := []Column{
		{Level0: behaviorLevel, Level1: "count"},
		{Level0: behaviorLevel, Level1: "percentage"},
	}
	durCol := instances.DurationColumn(unit)
	for _, s := range stats {
		cols = append(cols, Column{Level0: durCol, Level1: string(s)})
	}
	return cols
}

// CountColumn and PercentageColumn address the per-label frequency columns.
var (
	CountColumn      = Column{Level0: behaviorLevel, Level1: "count"}
	PercentageColumn = Column{Level0: behaviorLevel, Level1: "percentage"}
)

// Aggregate summarizes t per label.
//
// Every instance counts toward the percentage denominator, which is half the
// filtered row count (at least 1) since each instance appears once under its
// own label and once under "all". Instances without a label only appear
// under "all". Labels whose instances were all filtered out have no row.
func Aggregate(t *instances.Table, opts Options) (*Result, error) {
	for _, s := range opts.Stats {
		if !s.Valid() {
			return nil, errors.New(errors.CodeAggregationFailed, "unsupported statistic").
				WithContext("stat", string(s))
		}
	}

	unit := instances.Hours
	if t != nil && t.TimeUnit != "" {
		unit = t.TimeUnit
	}
	res := &Result{Columns: Columns(unit, opts.Stats), Rows: []Row{}}
	if t == nil {
		return res, nil
	}

	n := 0
	groups := make(map[behavior.Label][]float64)
	counts := make(map[behavior.Label]int)
	for _, inst := range t.Instances {
		if opts.ExcludeZeroDuration && durationOrZero(inst) <= 0 {
			continue
		}
		n++
		if inst.Label == "" {
			continue
		}
		counts[inst.Label]++
		if inst.Duration != nil && !math.IsNaN(*inst.Duration) {
			groups[inst.Label] = append(groups[inst.Label], *inst.Duration)
		} else if _, ok := groups[inst.Label]; !ok {
			groups[inst.Label] = nil
		}
	}
	if n == 0 {
		return res, nil
	}

	total := math.Max(1, float64(n)/2)

	labels := make([]behavior.Label, 0, len(counts))
	for l := range counts {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })

	for _, l := range labels {
		values := make([]float64, 0, len(res.Columns))
		values = append(values, float64(counts[l]), float64(counts[l])/total)
		for _, s := range opts.Stats {
			values = append(values, s.Compute(groups[l]))
		}
		res.Rows = append(res.Rows, Row{Label: l, Values: values})
	}
	return res, nil
}

func durationOrZero(inst instances.Instance) float64 {
	if inst.Duration == nil || math.IsNaN(*inst.Duration) {
		return 0
	}
	return *inst.Duration
}
