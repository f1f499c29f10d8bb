package graph

import "strings"

// Relationship types every graph carries regardless of entity configuration.
const (
	RelCorrelates = "CORR"
	RelContains   = "CONTAINS"
)

// Node kinds that are not entity types.
const (
	KindEvent        = "Event"
	KindTaskInstance = "TaskInstance"
)

// Entity describes how an entity (case notion or resource) is represented in
// the graph: the node type events correlate to, and the names of its
// directly-follows relationships at event and task-instance level.
type Entity struct {
	Name                string `yaml:"name"`
	Type                string `yaml:"type"`
	DFLabel             string `yaml:"df_label"`
	DFTaskInstanceLabel string `yaml:"df_ti_label"`
}

// NewEntity returns a descriptor with the conventional DF_<TYPE> and
// DF_TI_<TYPE> relationship names.
func NewEntity(name, nodeType string) Entity {
	upper := strings.ToUpper(nodeType)
	return Entity{
		Name:                name,
		Type:                nodeType,
		DFLabel:             "DF_" + upper,
		DFTaskInstanceLabel: "DF_TI_" + upper,
	}
}

// WithDefaults fills empty relationship names with the conventional ones.
func (e Entity) WithDefaults() Entity {
	d := NewEntity(e.Name, e.Type)
	if e.DFLabel == "" {
		e.DFLabel = d.DFLabel
	}
	if e.DFTaskInstanceLabel == "" {
		e.DFTaskInstanceLabel = d.DFTaskInstanceLabel
	}
	if e.Name == "" {
		e.Name = e.Type
	}
	return e
}

// NodeType returns the node kind entity nodes are stored under.
func (e Entity) NodeType() string { return e.Type }

// DFRelationship returns the event-level directly-follows relationship name.
func (e Entity) DFRelationship() string { return e.DFLabel }

// DFTaskInstanceRelationship returns the task-instance-level directly-follows
// relationship name.
func (e Entity) DFTaskInstanceRelationship() string { return e.DFTaskInstanceLabel }
