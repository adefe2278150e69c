package pipeline

import (
	"fmt"
	"os"
	"strings"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

// refineResult is the detail payload attached to a "refine" StageResult.
type refineResult struct {
	ScriptsWritten []string `json:"scriptsWritten"`
}

// refinePlan implements plan.dag.json's promise that "plan/scripts/<nodeId>.sh"
// exists for every tool=shell node with commands: it materializes each such
// node's command list as a standalone bash script the sandbox runner invokes
// by path, rather than re-joining commands inline at execute time. A node
// whose sole command is already a script invocation (e.g. train.run's
// "plan/scripts/train.run.sh") still gets its script written here — the DAG
// only ever names the path, refine is what makes the path exist.
func refinePlan(layout planmodel.Layout, dag *planmodel.PlanDAG) (refineResult, error) {
	var res refineResult
	for _, node := range dag.Nodes {
		if node.Tool != planmodel.ToolShell || len(node.Commands) == 0 {
			continue
		}
		path := layout.PlanScript(node.ID)
		if err := os.WriteFile(path, []byte(renderScript(node)), 0o755); err != nil {
			return res, fmt.Errorf("write script for node %q: %w", node.ID, err)
		}
		res.ScriptsWritten = append(res.ScriptsWritten, path)
	}
	return res, nil
}

func renderScript(node planmodel.Node) string {
	var b strings.Builder
	b.WriteString("#!/usr/bin/env bash\n")
	b.WriteString("set -euo pipefail\n\n")
	fmt.Fprintf(&b, "# node: %s (%s)\n", node.ID, node.Type)
	for _, cmd := range node.Commands {
		b.WriteString(cmd)
		b.WriteString("\n")
	}
	return b.String()
}
