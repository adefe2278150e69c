package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/danshapiro/openclaw/internal/execengine"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

// finalizeResult is the detail payload attached to a "finalize" StageResult.
type finalizeResult struct {
	FinalMetrics string `json:"finalMetrics"`
	FinalReport  string `json:"finalReport"`
}

// finalizeRun implements the gap between execute and accept: it promotes
// report/eval_metrics.json to report/final_metrics.json (accept's and a
// future run's baseline both read the "final" name, not the raw eval
// output) and writes a human-readable report/final_report.md summarizing
// every node's terminal status from report/execute_log.json. Training
// already wrote report/eval_metrics.json via its own command; this stage
// never recomputes a metric, it only packages what execute already
// produced.
func finalizeRun(layout planmodel.Layout) (finalizeResult, error) {
	res := finalizeResult{FinalMetrics: layout.FinalMetrics(), FinalReport: layout.FinalReport()}

	metricsPath := layout.EvalMetrics()
	b, err := os.ReadFile(metricsPath)
	if err != nil {
		return res, fmt.Errorf("read eval metrics: %w", err)
	}
	if err := os.WriteFile(layout.FinalMetrics(), b, 0o644); err != nil {
		return res, fmt.Errorf("write final metrics: %w", err)
	}

	var log execengine.ExecuteLog
	if b, err := os.ReadFile(layout.ExecuteLog()); err == nil {
		_ = json.Unmarshal(b, &log)
	}
	if err := os.WriteFile(layout.FinalReport(), []byte(renderFinalReport(log)), 0o644); err != nil {
		return res, fmt.Errorf("write final report: %w", err)
	}

	return res, nil
}

func renderFinalReport(log execengine.ExecuteLog) string {
	var b strings.Builder
	b.WriteString("# Run Summary\n\n")
	b.WriteString("| Node | Status | Attempts |\n|---|---|---|\n")
	for _, r := range log.Results {
		fmt.Fprintf(&b, "| %s | %s | %d |\n", r.NodeID, r.Status, len(r.Attempts))
	}
	return b.String()
}
