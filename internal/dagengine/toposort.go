// Package dagengine implements the pure, side-effect-free graph operations
// over a plan's DAG: topological ordering, convention checks, and patch
// application. None of it touches the filesystem or executes anything.
package dagengine

import (
	"fmt"
	"sort"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

// ValidationError reports structural problems found by ValidateDAG.
type ValidationError struct {
	Reasons []string
}

func (e *ValidationError) Error() string {
	if len(e.Reasons) == 0 {
		return "dag validation failed"
	}
	return fmt.Sprintf("dag validation failed: %s", e.Reasons[0])
}

// ValidateDAG topologically sorts dag using Kahn's algorithm, breaking ties
// by lexical node id so that execution order is deterministic across runs.
// It reports duplicate ids, edges referencing unknown nodes, and cycles
// (listing the nodes that could not be ordered).
func ValidateDAG(dag *planmodel.PlanDAG) ([]string, error) {
	var reasons []string

	seen := make(map[string]bool, len(dag.Nodes))
	for _, n := range dag.Nodes {
		if seen[n.ID] {
			reasons = append(reasons, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		seen[n.ID] = true
	}

	for _, e := range dag.Edges {
		if !seen[e.From] {
			reasons = append(reasons, fmt.Sprintf("edge references unknown node %q", e.From))
		}
		if !seen[e.To] {
			reasons = append(reasons, fmt.Sprintf("edge references unknown node %q", e.To))
		}
	}
	if len(reasons) > 0 {
		return nil, &ValidationError{Reasons: reasons}
	}

	inDegree := make(map[string]int, len(dag.Nodes))
	adj := make(map[string][]string, len(dag.Nodes))
	for _, n := range dag.Nodes {
		inDegree[n.ID] = 0
	}
	for _, e := range dag.Edges {
		adj[e.From] = append(adj[e.From], e.To)
		inDegree[e.To]++
	}

	ready := make([]string, 0, len(dag.Nodes))
	for _, n := range dag.Nodes {
		if inDegree[n.ID] == 0 {
			ready = append(ready, n.ID)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(dag.Nodes))
	for len(ready) > 0 {
		sort.Strings(ready)
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, to := range adj[id] {
			inDegree[to]--
			if inDegree[to] == 0 {
				ready = append(ready, to)
			}
		}
	}

	if len(order) != len(dag.Nodes) {
		ordered := make(map[string]bool, len(order))
		for _, id := range order {
			ordered[id] = true
		}
		var remaining []string
		for _, n := range dag.Nodes {
			if !ordered[n.ID] {
				remaining = append(remaining, n.ID)
			}
		}
		sort.Strings(remaining)
		return nil, &ValidationError{
			Reasons: []string{fmt.Sprintf("cycle detected among nodes: %v", remaining)},
		}
	}

	return order, nil
}
