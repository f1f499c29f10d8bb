package graph

// DirectlyFollowsEdge is a read-only view of a directly-follows relationship.
//
// The actor_behavior property has a single writer: the behavior classifier,
// which sets it through mutation queries. Everything else observes it through
// this type's accessors.
type DirectlyFollowsEdge struct {
	id       int64
	relType  string
	source   int64
	target   int64
	behavior string
}

// ID returns the relationship id.
func (e DirectlyFollowsEdge) ID() int64 { return e.id }

// Type returns the relationship type, e.g. DF_APPLICATION.
func (e DirectlyFollowsEdge) Type() string { return e.relType }

// Source returns the id of the preceding event.
func (e DirectlyFollowsEdge) Source() int64 { return e.source }

// Target returns the id of the following event.
func (e DirectlyFollowsEdge) Target() int64 { return e.target }

// ActorBehavior returns the behavior label; ok is false while unlabeled.
func (e DirectlyFollowsEdge) ActorBehavior() (string, bool) {
	return e.behavior, e.behavior != ""
}
