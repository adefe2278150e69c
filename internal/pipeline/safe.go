package pipeline

import (
	"context"
	"fmt"

	"github.com/danshapiro/openclaw/internal/credentials"
	"github.com/danshapiro/openclaw/internal/execengine"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

// safeNodeTypes are the node types run-safe is willing to execute before a
// human has reviewed review.needs_confirm: read-only discovery and static
// analysis, never training or anything requiring GPU. fetch_dataset_kaggle
// is included here but gated on credentials below rather than unconditional
// execution, since it is the one "safe" node type that can require a secret.
var safeNodeTypes = map[string]bool{
	planmodel.NodeTypeFetchRepo:          true,
	planmodel.NodeTypeStaticChecks:       true,
	planmodel.NodeTypeFetchDatasetSample: true,
	planmodel.NodeTypeFetchDatasetKaggle: true,
	planmodel.NodeTypeNoop:               true,
}

// skippedNode records a safe node run-safe deliberately did not execute.
type skippedNode struct {
	NodeID string `json:"nodeId"`
	Reason string `json:"reason"`
}

// safeRunResult is the detail payload attached to a "run_safe" StageResult.
type safeRunResult struct {
	Ran     []string      `json:"ran"`
	Skipped []skippedNode `json:"skipped,omitempty"`
	Failed  []string      `json:"failed,omitempty"`
}

// runSafeSubset executes only the DAG's safe-node-type members, in
// topological order, so an obviously broken repo/dataset reference surfaces
// before refine/execute spend any GPU budget. It never runs a node whose
// tool isn't "shell" (manual/gateway_rpc nodes are skipped here too). A
// fetch_dataset_kaggle node without resolved Kaggle credentials is recorded
// as skipped rather than attempted, per spec.md §8 scenario 2.
func runSafeSubset(ctx context.Context, order []string, dag *planmodel.PlanDAG, sandbox execengine.Sandbox, workdir string, creds credentials.Set) (safeRunResult, error) {
	var res safeRunResult
	for _, id := range order {
		node := dag.NodeByID(id)
		if node == nil || !safeNodeTypes[node.Type] || node.Tool != planmodel.ToolShell || len(node.Commands) == 0 {
			continue
		}
		if node.Type == planmodel.NodeTypeFetchDatasetKaggle && !creds.HasKaggle() {
			res.Skipped = append(res.Skipped, skippedNode{
				NodeID: id,
				Reason: "missing Kaggle credentials (set KAGGLE_USERNAME and KAGGLE_KEY)",
			})
			continue
		}
		result, err := sandbox.Run(ctx, workdir, node.Commands, node.Env, 0)
		if err != nil || result.TimedOut || result.ExitCode != 0 {
			res.Failed = append(res.Failed, id)
			if err != nil {
				return res, fmt.Errorf("run-safe node %q: %w", id, err)
			}
			return res, fmt.Errorf("run-safe node %q exited %d", id, result.ExitCode)
		}
		res.Ran = append(res.Ran, id)
	}
	return res, nil
}
