// Package behavior classifies case-level directly-follows edges by what the
// resource that performed the two events was doing in between.
package behavior

import (
	"fmt"
	"strings"
)

// Label is an actor-behavior class.
type Label string

// Behavior classes, in classification order.
const (
	Continuation          Label = "continuation"
	Interruption          Label = "interruption"
	HandoverIdle          Label = "handover_idle"
	HandoverPrioritized   Label = "handover_prioritized"
	HandoverDeprioritized Label = "handover_deprioritized"
)

// All is the pseudo label carried by the duplicated "any behavior" rows of an
// edge instance table. It is never written to the graph.
const All Label = "all"

var labels = []Label{
	Continuation,
	Interruption,
	HandoverIdle,
	HandoverPrioritized,
	HandoverDeprioritized,
}

// Labels returns the behavior classes in classification order.
func Labels() []Label {
	out := make([]Label, len(labels))
	copy(out, labels)
	return out
}

// Valid reports whether l is one of the five behavior classes.
func (l Label) Valid() bool {
	for _, x := range labels {
		if l == x {
			return true
		}
	}
	return false
}

func (l Label) String() string { return string(l) }

// ParseLabel parses a behavior class name. "all" is accepted.
func ParseLabel(s string) (Label, error) {
	l := Label(strings.ToLower(strings.TrimSpace(s)))
	if l.Valid() || l == All {
		return l, nil
	}
	return "", fmt.Errorf("unknown actor behavior %q", s)
}
