// Package graph provides access to the process-execution graph: parameterized
// query templates, the Executor capability every analysis component goes
// through, entity descriptors, and a DuckDB-backed property-graph store.
package graph

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"time"

	"github.com/logflow/actorflow/pkg/errors"
)

// Query is a parameterized query template.
//
// Text may reference template parameters as $name. Render binds every
// occurrence positionally, so values are never spliced into the statement.
type Query struct {
	// Name identifies the query in logs, spans and metrics.
	Name string

	// Text is the statement template.
	Text string

	// Params maps template parameter names to values.
	Params map[string]any

	// Write marks statements that mutate the graph.
	Write bool
}

var paramPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// Render returns the positional statement and its ordered arguments.
func (q Query) Render() (string, []any, error) {
	var (
		args    []any
		missing []string
	)

	stmt := paramPattern.ReplaceAllStringFunc(q.Text, func(tok string) string {
		name := tok[1:]
		v, ok := q.Params[name]
		if !ok {
			missing = append(missing, name)
			return tok
		}
		args = append(args, v)
		return "?"
	})

	if len(missing) > 0 {
		return "", nil, errors.New(errors.CodeQueryTemplate, "unbound template parameter").
			WithContext("query", q.Name).
			WithContext("params", missing)
	}
	return stmt, args, nil
}

// Row is one result row keyed by column name.
type Row map[string]any

// String returns a string column value. ok is false for NULL or missing columns.
func (r Row) String(col string) (string, bool) {
	switch v := r[col].(type) {
	case string:
		return v, true
	case []byte:
		return string(v), true
	case nil:
		return "", false
	default:
		return fmt.Sprint(v), true
	}
}

// Int64 returns an integer column value. Values that do not fit an int64
// or have a fractional part report false.
func (r Row) Int64(col string) (int64, bool) {
	switch v := r[col].(type) {
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case int:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case uint32:
		return int64(v), true
	case float64:
		// -2^63 is exact in float64; 2^63 is the first value past MaxInt64.
		if v != math.Trunc(v) || v < math.MinInt64 || v >= math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case *big.Int:
		if !v.IsInt64() {
			return 0, false
		}
		return v.Int64(), true
	default:
		return 0, false
	}
}

// Float64 returns a numeric column value as float64.
func (r Row) Float64(col string) (float64, bool) {
	switch v := r[col].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case nil:
		return 0, false
	default:
		n, ok := r.Int64(col)
		return float64(n), ok
	}
}

// Time returns a timestamp column value.
func (r Row) Time(col string) (time.Time, bool) {
	v, ok := r[col].(time.Time)
	return v, ok
}

// Executor runs queries against the graph. It is the only way the analysis
// components touch graph state.
type Executor interface {
	// Execute runs q and returns its rows in order. Write queries return a
	// single row with an "affected" column.
	Execute(ctx context.Context, q Query) ([]Row, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, q Query) ([]Row, error)

// Execute calls f(ctx, q).
func (f ExecutorFunc) Execute(ctx context.Context, q Query) ([]Row, error) {
	return f(ctx, q)
}
