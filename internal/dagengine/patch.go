package dagengine

import (
	"fmt"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

// PatchOpKind tags one mutation in a patch.
type PatchOpKind string

const (
	OpAddNode     PatchOpKind = "addNode"
	OpRemoveNode  PatchOpKind = "removeNode"
	OpReplaceNode PatchOpKind = "replaceNode"
	OpAddEdge     PatchOpKind = "addEdge"
	OpRemoveEdge  PatchOpKind = "removeEdge"
)

// PatchOp is one tagged mutation applied by ApplyPatch. Exactly one of Node /
// Edge is populated, depending on Kind.
type PatchOp struct {
	Kind PatchOpKind       `json:"kind"`
	Node *planmodel.Node   `json:"node,omitempty"`
	Edge *planmodel.Edge   `json:"edge,omitempty"`
}

// coreNodeIDs can never be removed by a patch: they are the execution
// backbone every plan is expected to have.
var coreNodeIDs = map[string]bool{
	"setup.venv":   true,
	"install.deps": true,
	"train.run":    true,
	"eval.run":     true,
	"report.write": true,
}

// ApplyPatch applies ops to dag in order, returning a new DAG (the input is
// left untouched) or the first error encountered.
func ApplyPatch(dag *planmodel.PlanDAG, ops []PatchOp) (*planmodel.PlanDAG, error) {
	out := &planmodel.PlanDAG{
		SchemaVersion: dag.SchemaVersion,
		Nodes:         append([]planmodel.Node(nil), dag.Nodes...),
		Edges:         append([]planmodel.Edge(nil), dag.Edges...),
	}

	for _, op := range ops {
		var err error
		switch op.Kind {
		case OpAddNode:
			err = addNode(out, op)
		case OpRemoveNode:
			err = removeNode(out, op)
		case OpReplaceNode:
			err = replaceNode(out, op)
		case OpAddEdge:
			err = addEdge(out, op)
		case OpRemoveEdge:
			err = removeEdge(out, op)
		default:
			err = fmt.Errorf("unknown patch op kind %q", op.Kind)
		}
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func addNode(dag *planmodel.PlanDAG, op PatchOp) error {
	if op.Node == nil {
		return fmt.Errorf("addNode requires a node")
	}
	if dag.NodeByID(op.Node.ID) != nil {
		return fmt.Errorf("addNode: node %q already exists", op.Node.ID)
	}
	dag.Nodes = append(dag.Nodes, *op.Node)
	return nil
}

func removeNode(dag *planmodel.PlanDAG, op PatchOp) error {
	if op.Node == nil {
		return fmt.Errorf("removeNode requires a node id")
	}
	if coreNodeIDs[op.Node.ID] {
		return fmt.Errorf("removeNode: %q is a core node and cannot be removed", op.Node.ID)
	}
	idx := -1
	for i, n := range dag.Nodes {
		if n.ID == op.Node.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("removeNode: node %q not found", op.Node.ID)
	}
	dag.Nodes = append(dag.Nodes[:idx], dag.Nodes[idx+1:]...)

	kept := dag.Edges[:0:0]
	for _, e := range dag.Edges {
		if e.From == op.Node.ID || e.To == op.Node.ID {
			continue
		}
		kept = append(kept, e)
	}
	dag.Edges = kept
	return nil
}

func replaceNode(dag *planmodel.PlanDAG, op PatchOp) error {
	if op.Node == nil {
		return fmt.Errorf("replaceNode requires a node")
	}
	// Replacing a core node's contents (commands, env, etc.) is allowed; only
	// its removal via removeNode is forbidden.
	for i, n := range dag.Nodes {
		if n.ID == op.Node.ID {
			dag.Nodes[i] = *op.Node
			return nil
		}
	}
	return fmt.Errorf("replaceNode: node %q not found", op.Node.ID)
}

func addEdge(dag *planmodel.PlanDAG, op PatchOp) error {
	if op.Edge == nil {
		return fmt.Errorf("addEdge requires an edge")
	}
	if dag.NodeByID(op.Edge.From) == nil {
		return fmt.Errorf("addEdge: unknown from-node %q", op.Edge.From)
	}
	if dag.NodeByID(op.Edge.To) == nil {
		return fmt.Errorf("addEdge: unknown to-node %q", op.Edge.To)
	}
	dag.Edges = append(dag.Edges, *op.Edge)
	return nil
}

func removeEdge(dag *planmodel.PlanDAG, op PatchOp) error {
	if op.Edge == nil {
		return fmt.Errorf("removeEdge requires an edge")
	}
	kept := dag.Edges[:0:0]
	removed := false
	for _, e := range dag.Edges {
		if e.From == op.Edge.From && e.To == op.Edge.To {
			removed = true
			continue
		}
		kept = append(kept, e)
	}
	if !removed {
		return fmt.Errorf("removeEdge: edge %s->%s not found", op.Edge.From, op.Edge.To)
	}
	dag.Edges = kept
	return nil
}
