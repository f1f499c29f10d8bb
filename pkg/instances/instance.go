// Package instances materializes the occurrences of one activity-pair edge
// as a table of (start, end, duration, actor behavior) rows, and caches those
// tables on a cachestore backend.
package instances

import (
	"fmt"
	"strings"
	"time"

	"github.com/logflow/actorflow/pkg/behavior"
	"github.com/logflow/actorflow/pkg/errors"
)

// TimeUnit is the unit durations are expressed in.
type TimeUnit string

const (
	Seconds TimeUnit = "seconds"
	Minutes TimeUnit = "minutes"
	Hours   TimeUnit = "hours"
	Days    TimeUnit = "days"
)

// ParseTimeUnit parses a time unit name.
func ParseTimeUnit(s string) (TimeUnit, error) {
	switch u := TimeUnit(strings.ToLower(strings.TrimSpace(s))); u {
	case Seconds, Minutes, Hours, Days:
		return u, nil
	case "":
		return Hours, nil
	default:
		return "", errors.InvalidConfig("time_unit", s, "unknown time unit")
	}
}

// Seconds returns the length of one unit in seconds.
func (u TimeUnit) Seconds() float64 {
	switch u {
	case Minutes:
		return 60
	case Hours:
		return 3600
	case Days:
		return 86400
	default:
		return 1
	}
}

// Convert expresses a duration given in seconds in unit u.
func (u TimeUnit) Convert(seconds float64) float64 {
	return seconds / u.Seconds()
}

// Instance is one occurrence of an edge. A zero Start or End means the
// timestamp was missing; a nil Duration means it could not be computed. An
// empty Label marks an edge the classifier left unlabeled.
type Instance struct {
	Start    time.Time
	End      time.Time
	Duration *float64
	Label    behavior.Label
}

// Table is the instance table of one edge. Tables are immutable once
// returned by the cache; callers must not modify Instances.
type Table struct {
	TimeUnit  TimeUnit
	Instances []Instance
}

// Len returns the number of rows, including the duplicated "all" rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Instances)
}

// DurationColumn returns the name of the duration column, e.g. duration_hours.
func (t *Table) DurationColumn() string {
	return DurationColumn(t.TimeUnit)
}

// DurationColumn returns the duration column name for unit.
func DurationColumn(unit TimeUnit) string {
	return fmt.Sprintf("duration_%s", unit)
}

// In returns the table with durations expressed in unit. The receiver is
// returned as is when it already uses unit.
func (t *Table) In(unit TimeUnit) *Table {
	if t == nil || t.TimeUnit == unit {
		return t
	}
	out := &Table{TimeUnit: unit, Instances: make([]Instance, len(t.Instances))}
	for i, inst := range t.Instances {
		if inst.Duration != nil {
			inst.Duration = float64Ptr(unit.Convert(*inst.Duration * t.TimeUnit.Seconds()))
		}
		out.Instances[i] = inst
	}
	return out
}

// withAll returns rows followed by a copy of every row labeled All.
func withAll(rows []Instance) []Instance {
	out := make([]Instance, 0, 2*len(rows))
	out = append(out, rows...)
	for _, r := range rows {
		r.Label = behavior.All
		out = append(out, r)
	}
	return out
}

func float64Ptr(v float64) *float64 { return &v }
