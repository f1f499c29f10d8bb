package behavior

import (
	"fmt"

	"github.com/logflow/actorflow/pkg/graph"
)

// Rule is one classification pass: a mutation query that sets Label on every
// case-level DF edge matching the rule's predicate.
type Rule struct {
	Label Label
	Build func(caseEntity, resource graph.Entity) graph.Query
}

// Rules returns the classification passes in the order they must run.
//
// Every pass only writes edges that are still unlabeled or already carry the
// pass's own label. An edge matched by an earlier pass keeps that label, and
// re-running the sequence is a no-op on an already labeled graph.
func Rules() []Rule {
	return []Rule{
		{Label: Continuation, Build: continuationQuery},
		{Label: Interruption, Build: interruptionQuery},
		{Label: HandoverIdle, Build: handoverIdleQuery},
		{Label: HandoverPrioritized, Build: handoverPrioritizedQuery},
		{Label: HandoverDeprioritized, Build: handoverDeprioritizedQuery},
	}
}

// labelUpdate wraps a selection of df.id values into the guarded update.
const labelUpdate = `
UPDATE rel SET actor_behavior = $label
WHERE id IN (%s)
  AND (actor_behavior IS NULL OR actor_behavior = $label)`

// e1 and e2 (df.src, df.dst) are both correlated to one resource node.
const sharedResource = `EXISTS (
    SELECT 1
    FROM rel c1
    JOIN rel c2 ON c2.dst = c1.dst AND c2.type = $corr
    JOIN node r ON r.id = c1.dst AND r.kind = $resource_node_label
    WHERE c1.type = $corr AND c1.src = df.src AND c2.src = df.dst)`

// e1 -> e2 also exists at resource scope.
const resourceStep = `EXISTS (
    SELECT 1 FROM rel rdf
    WHERE rdf.type = $df_resource AND rdf.src = df.src AND rdf.dst = df.dst)`

// Joins tic (task instance containing e1), ti (containing e2) and tir (the
// resource-scope predecessor task instance of ti).
const taskInstanceJoin = `
    SELECT df.id
    FROM rel df
    JOIN rel ctic ON ctic.type = $contains AND ctic.dst = df.src
    JOIN node tic ON tic.id = ctic.src
    JOIN rel cti  ON cti.type = $contains AND cti.dst = df.dst
    JOIN rel dfti ON dfti.type = $df_ti_resource AND dfti.dst = cti.src
    JOIN node tir ON tir.id = dfti.src
    WHERE df.type = $df_case
      AND NOT ` + sharedResource

func classification(label Label, selection string, c, r graph.Entity) graph.Query {
	return graph.Query{
		Name: "classify_" + string(label),
		Text: fmt.Sprintf(labelUpdate, selection),
		Params: map[string]any{
			"label":               string(label),
			"df_case":             c.DFRelationship(),
			"df_resource":         r.DFRelationship(),
			"df_ti_resource":      r.DFTaskInstanceRelationship(),
			"resource_node_label": r.NodeType(),
			"corr":                graph.RelCorrelates,
			"contains":            graph.RelContains,
		},
		Write: true,
	}
}

func continuationQuery(c, r graph.Entity) graph.Query {
	sel := `
    SELECT df.id FROM rel df
    WHERE df.type = $df_case
      AND ` + resourceStep
	return classification(Continuation, sel, c, r)
}

func interruptionQuery(c, r graph.Entity) graph.Query {
	sel := `
    SELECT df.id FROM rel df
    WHERE df.type = $df_case
      AND ` + sharedResource + `
      AND NOT ` + resourceStep
	return classification(Interruption, sel, c, r)
}

func handoverIdleQuery(c, r graph.Entity) graph.Query {
	sel := taskInstanceJoin + `
      AND tir.end_time < tic.end_time
    UNION
    SELECT df.id FROM rel df
    WHERE df.type = $df_case
      AND NOT EXISTS (
        SELECT 1 FROM rel rdf
        WHERE rdf.type = $df_resource AND rdf.dst = df.dst)`
	return classification(HandoverIdle, sel, c, r)
}

func handoverPrioritizedQuery(c, r graph.Entity) graph.Query {
	sel := taskInstanceJoin + `
      AND tir.start_time < tic.end_time
      AND tic.end_time < tir.end_time`
	return classification(HandoverPrioritized, sel, c, r)
}

func handoverDeprioritizedQuery(c, r graph.Entity) graph.Query {
	sel := taskInstanceJoin + `
      AND tic.end_time < tir.start_time`
	return classification(HandoverDeprioritized, sel, c, r)
}

// resetQuery clears every label on case-level DF edges.
func resetQuery(c graph.Entity) graph.Query {
	return graph.Query{
		Name: "classify_reset",
		Text: `UPDATE rel SET actor_behavior = NULL
WHERE type = $df_case AND actor_behavior IS NOT NULL`,
		Params: map[string]any{"df_case": c.DFRelationship()},
		Write:  true,
	}
}
