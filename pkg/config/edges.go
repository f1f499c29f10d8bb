package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/logflow/actorflow/pkg/edge"
	"github.com/logflow/actorflow/pkg/errors"
	"github.com/logflow/actorflow/pkg/report"
)

// CaseEdges is the case_edges setting: the scalar "all", or a list whose
// items are either "source->sink" strings or endpoint lists such as
// [A, B] and [[A, complete], [B, start]].
type CaseEdges struct {
	All   bool
	Edges []EdgeSpec
}

// EdgeSpec is one configured edge in either form.
type EdgeSpec struct {
	Text  string
	Parts [][]string
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *CaseEdges) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if !strings.EqualFold(strings.TrimSpace(node.Value), "all") {
			return fmt.Errorf("line %d: case_edges must be \"all\" or a list, got %q", node.Line, node.Value)
		}
		*c = CaseEdges{All: true}
		return nil

	case yaml.SequenceNode:
		out := CaseEdges{Edges: make([]EdgeSpec, 0, len(node.Content))}
		for _, item := range node.Content {
			spec, err := decodeEdge(item)
			if err != nil {
				return err
			}
			out.Edges = append(out.Edges, spec)
		}
		*c = out
		return nil

	default:
		return fmt.Errorf("line %d: case_edges must be \"all\" or a list", node.Line)
	}
}

func decodeEdge(node *yaml.Node) (EdgeSpec, error) {
	if node.Kind == yaml.ScalarNode {
		return EdgeSpec{Text: node.Value}, nil
	}
	if node.Kind != yaml.SequenceNode {
		return EdgeSpec{}, fmt.Errorf("line %d: edge must be a string or a list", node.Line)
	}

	parts := make([][]string, 0, len(node.Content))
	for _, end := range node.Content {
		switch end.Kind {
		case yaml.ScalarNode:
			parts = append(parts, []string{end.Value})
		case yaml.SequenceNode:
			var comps []string
			if err := end.Decode(&comps); err != nil {
				return EdgeSpec{}, err
			}
			parts = append(parts, comps)
		default:
			return EdgeSpec{}, fmt.Errorf("line %d: edge endpoint must be a string or a list", end.Line)
		}
	}
	return EdgeSpec{Parts: parts}, nil
}

// MarshalYAML implements yaml.Marshaler.
func (c CaseEdges) MarshalYAML() (any, error) {
	if c.All {
		return "all", nil
	}
	out := make([]any, len(c.Edges))
	for i, e := range c.Edges {
		if e.Parts == nil {
			out[i] = e.Text
		} else {
			out[i] = e.Parts
		}
	}
	return out, nil
}

func (c CaseEdges) String() string {
	if c.All {
		return "all"
	}
	return fmt.Sprintf("%d edges", len(c.Edges))
}

// Keys converts the configured edges to keys of schema. The first malformed
// edge fails the call.
func (c CaseEdges) Keys(schema edge.Schema) ([]edge.Key, error) {
	keys := make([]edge.Key, 0, len(c.Edges))
	for i, e := range c.Edges {
		var (
			k   edge.Key
			err error
		)
		if e.Parts == nil {
			k, err = schema.ParseKey(e.Text)
		} else {
			k, err = schema.FromParts(e.Parts)
		}
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeMalformedEdgeKey, "invalid case_edges entry").
				WithContext("index", i)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// Selector returns the report selector of the setting.
func (c CaseEdges) Selector(schema edge.Schema) (report.Selector, error) {
	if c.All {
		return report.AllEdges(), nil
	}
	keys, err := c.Keys(schema)
	if err != nil {
		return report.Selector{}, err
	}
	return report.Edges(keys...), nil
}
