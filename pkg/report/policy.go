package report

import (
	"strings"

	"github.com/logflow/actorflow/pkg/errors"
)

// FailurePolicy determines what happens when one edge of a report fails.
type FailurePolicy int

const (
	// FailAbort stops the report at the first failed edge.
	FailAbort FailurePolicy = iota
	// FailSkip logs the failed edge, records it in Report.Skipped and
	// continues with the remaining edges.
	FailSkip
)

func (p FailurePolicy) String() string {
	switch p {
	case FailAbort:
		return "abort"
	case FailSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// ParseFailurePolicy parses "abort" or "skip". The empty string selects
// FailAbort.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort", "strict":
		return FailAbort, nil
	case "skip":
		return FailSkip, nil
	default:
		return FailAbort, errors.InvalidConfig("report.failure_policy", s, "unknown failure policy")
	}
}
