package instances

import (
	"context"
	"fmt"

	"github.com/logflow/actorflow/pkg/behavior"
	"github.com/logflow/actorflow/pkg/edge"
	"github.com/logflow/actorflow/pkg/graph"
)

const instanceQueryText = `
SELECT e1.ts AS start_time,
       e2.ts AS complete_time,
       CAST(epoch_ms(e2.ts) - epoch_ms(e1.ts) AS DOUBLE) / 1000 AS duration,
       df.actor_behavior AS actor_behavior
FROM rel df
JOIN node e1 ON e1.id = df.src
JOIN node e2 ON e2.id = df.dst
WHERE df.type = $df_case
  AND e1.activity = $activity1
  AND e2.activity = $activity2%s
ORDER BY df.id`

const lifecycleFilter = `
  AND e1.lifecycle = $lifecycle1
  AND e2.lifecycle = $lifecycle2`

// instanceQuery selects every case-level DF occurrence of k.
func instanceQuery(schema edge.Schema, caseEntity graph.Entity, k edge.Key) graph.Query {
	params := map[string]any{
		"df_case":   caseEntity.DFRelationship(),
		"activity1": k.Source.Activity,
		"activity2": k.Sink.Activity,
	}

	filter := ""
	if schema.Qualified() {
		filter = lifecycleFilter
		params["lifecycle1"] = k.Source.Lifecycle
		params["lifecycle2"] = k.Sink.Lifecycle
	}

	return graph.Query{
		Name:   "edge_instances",
		Text:   fmt.Sprintf(instanceQueryText, filter),
		Params: params,
	}
}

// fetch runs the instance query and converts durations to unit.
func fetch(ctx context.Context, exec graph.Executor, q graph.Query, unit TimeUnit) ([]Instance, error) {
	rows, err := exec.Execute(ctx, q)
	if err != nil {
		return nil, err
	}

	out := make([]Instance, 0, len(rows))
	for _, row := range rows {
		var inst Instance
		inst.Start, _ = row.Time("start_time")
		inst.End, _ = row.Time("complete_time")
		if secs, ok := row.Float64("duration"); ok {
			inst.Duration = float64Ptr(unit.Convert(secs))
		}
		if label, ok := row.String("actor_behavior"); ok {
			inst.Label = behavior.Label(label)
		}
		out = append(out, inst)
	}
	return out, nil
}
