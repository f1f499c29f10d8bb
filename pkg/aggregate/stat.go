package aggregate

import (
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/logflow/actorflow/pkg/errors"
)

// Stat names a duration statistic.
type Stat string

const (
	Mean   Stat = "mean"
	Median Stat = "median"
	Min    Stat = "min"
	Max    Stat = "max"
	Std    Stat = "std"
	Var    Stat = "var"
	Count  Stat = "count"
	Sum    Stat = "sum"
)

var statFuncs = map[Stat]func([]float64) float64{
	Mean: func(x []float64) float64 {
		if len(x) == 0 {
			return math.NaN()
		}
		return stat.Mean(x, nil)
	},
	Median: median,
	Min: func(x []float64) float64 {
		if len(x) == 0 {
			return math.NaN()
		}
		return floats.Min(x)
	},
	Max: func(x []float64) float64 {
		if len(x) == 0 {
			return math.NaN()
		}
		return floats.Max(x)
	},
	Std: func(x []float64) float64 {
		if len(x) < 2 {
			return math.NaN()
		}
		return stat.StdDev(x, nil)
	},
	Var: func(x []float64) float64 {
		if len(x) < 2 {
			return math.NaN()
		}
		return stat.Variance(x, nil)
	},
	Count: func(x []float64) float64 { return float64(len(x)) },
	Sum:   floats.Sum,
}

// median averages the middle pair for even-sized input.
func median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return math.NaN()
	}
	s := append([]float64(nil), x...)
	sort.Float64s(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}

// Valid reports whether s is a supported statistic.
func (s Stat) Valid() bool {
	_, ok := statFuncs[s]
	return ok
}

// Compute applies s to x. Statistics undefined for x return NaN.
func (s Stat) Compute(x []float64) float64 {
	fn, ok := statFuncs[s]
	if !ok {
		return math.NaN()
	}
	return fn(x)
}

// ParseStats parses statistic names. Aliases "average", "stddev" and
// "variance" are accepted. An empty list is valid and yields no duration
// columns.
func ParseStats(names []string) ([]Stat, error) {
	out := make([]Stat, 0, len(names))
	for _, name := range names {
		s := Stat(strings.ToLower(strings.TrimSpace(name)))
		switch s {
		case "average":
			s = Mean
		case "stddev", "stdev":
			s = Std
		case "variance":
			s = Var
		}
		if !s.Valid() {
			return nil, errors.InvalidConfig("agg_funcs", name, "unsupported statistic")
		}
		out = append(out, s)
	}
	return out, nil
}
