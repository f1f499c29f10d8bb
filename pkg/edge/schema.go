package edge

import (
	"fmt"
	"strings"

	"github.com/logflow/actorflow/pkg/errors"
)

// Schema is the shape edge keys take for a dataset. It is chosen once, at
// configuration time, and passed to every component that builds or reads keys.
type Schema int

const (
	// SchemaActivity keys are plain activity pairs.
	SchemaActivity Schema = iota
	// SchemaActivityLifecycle keys qualify both endpoints with a lifecycle.
	SchemaActivityLifecycle
)

// ParseSchema parses "activity" or "activity_lifecycle".
func ParseSchema(s string) (Schema, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "activity":
		return SchemaActivity, nil
	case "activity_lifecycle", "activity-lifecycle":
		return SchemaActivityLifecycle, nil
	default:
		return 0, errors.InvalidConfig("edge_key_schema", s, "unknown edge key schema")
	}
}

func (s Schema) String() string {
	if s == SchemaActivityLifecycle {
		return "activity_lifecycle"
	}
	return "activity"
}

// Qualified reports whether keys carry lifecycles.
func (s Schema) Qualified() bool {
	return s == SchemaActivityLifecycle
}

// Validate checks that k has every component the schema requires.
func (s Schema) Validate(k Key) error {
	switch {
	case k.Source.Activity == "":
		return errors.MalformedEdgeKey(k.String(), "source activity is empty")
	case k.Sink.Activity == "":
		return errors.MalformedEdgeKey(k.String(), "sink activity is empty")
	}

	if s.Qualified() {
		switch {
		case k.Source.Lifecycle == "":
			return errors.MalformedEdgeKey(k.String(), "source lifecycle is empty")
		case k.Sink.Lifecycle == "":
			return errors.MalformedEdgeKey(k.String(), "sink lifecycle is empty")
		}
	} else if k.Source.Lifecycle != "" || k.Sink.Lifecycle != "" {
		return errors.MalformedEdgeKey(k.String(), "activity schema keys carry no lifecycle")
	}
	return nil
}

// FromParts builds a key from its configuration form: two endpoints, each
// [activity] under the activity schema or [activity, lifecycle] under the
// lifecycle schema.
func (s Schema) FromParts(parts [][]string) (Key, error) {
	if len(parts) != 2 {
		return Key{}, errors.MalformedEdgeKey(fmt.Sprint(parts),
			fmt.Sprintf("expected 2 endpoints, got %d", len(parts)))
	}

	want := 1
	if s.Qualified() {
		want = 2
	}

	var ends [2]Endpoint
	for i, p := range parts {
		if len(p) != want {
			return Key{}, errors.MalformedEdgeKey(fmt.Sprint(parts),
				fmt.Sprintf("endpoint %d has %d components, %s schema needs %d", i, len(p), s, want))
		}
		ends[i].Activity = p[0]
		if want == 2 {
			ends[i].Lifecycle = p[1]
		}
	}

	k := Key{Source: ends[0], Sink: ends[1]}
	if err := s.Validate(k); err != nil {
		return Key{}, err
	}
	return k, nil
}

// ParseKey parses the command-line form "source->sink", where each endpoint
// is "activity" or, under the lifecycle schema, "activity|lifecycle".
func (s Schema) ParseKey(text string) (Key, error) {
	src, sink, ok := strings.Cut(text, "->")
	if !ok {
		return Key{}, errors.MalformedEdgeKey(text, `missing "->" separator`)
	}

	parts := make([][]string, 0, 2)
	for _, end := range []string{src, sink} {
		comps := strings.Split(strings.TrimSpace(end), "|")
		for i := range comps {
			comps[i] = strings.TrimSpace(comps[i])
		}
		parts = append(parts, comps)
	}
	return s.FromParts(parts)
}

// EndpointLabel renders an endpoint for the report index: the activity, or
// "activity-lifecycle" under the lifecycle schema.
func (s Schema) EndpointLabel(e Endpoint) string {
	if s.Qualified() {
		return e.Activity + "-" + e.Lifecycle
	}
	return e.Activity
}
