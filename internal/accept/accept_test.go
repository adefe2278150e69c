package accept

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func newValidPlan(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	layout := planmodel.NewLayout(root)

	writeJSON(t, layout.PlanDAG(), map[string]any{
		"schemaVersion": 1,
		"nodes": []map[string]any{
			{"id": "train.run", "type": "train.run", "tool": "shell"},
		},
		"edges": []map[string]any{},
	})
	if err := os.MkdirAll(filepath.Dir(layout.InputProposal()), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(layout.InputProposal(), []byte("# proposal\n"), 0o644); err != nil {
		t.Fatalf("write proposal: %v", err)
	}
	return root
}

func TestAcceptProposalResults_FatalValidationShortCircuits(t *testing.T) {
	root := t.TempDir()
	report, err := AcceptProposalResults(root, Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != StatusFail {
		t.Fatalf("status = %q, want fail", report.Status)
	}
	if report.RunID != "" {
		t.Fatalf("expected no run id to be assigned on fatal short-circuit, got %q", report.RunID)
	}
}

func TestAcceptProposalResults_AllPassProducesPassAndArchive(t *testing.T) {
	root := newValidPlan(t)
	layout := planmodel.NewLayout(root)

	writeJSON(t, layout.PlanAcceptance(), map[string]any{
		"schemaVersion": 1,
		"checks": []map[string]any{
			{
				"id": "loss-ok", "type": "metric_threshold", "selector": "loss",
				"op": "<=", "value": 1.0, "needs_confirm": false, "suggested_by": "proposal",
			},
		},
	})
	writeJSON(t, layout.FinalMetrics(), map[string]any{"loss": 0.5})

	report, err := AcceptProposalResults(root, Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("AcceptProposalResults: %v", err)
	}
	if report.Status != StatusPass {
		t.Fatalf("status = %q, want pass (checks=%+v)", report.Status, report.Checks)
	}
	if report.RunID == "" {
		t.Fatalf("expected a run id")
	}
	if _, err := os.Stat(filepath.Join(root, "report", "runs", report.RunID, "manifest.json")); err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	if _, err := os.Stat(layout.AcceptanceReport("json")); err != nil {
		t.Fatalf("acceptance_report.json not written: %v", err)
	}
	if _, err := os.Stat(layout.AcceptanceReport("md")); err != nil {
		t.Fatalf("acceptance_report.md not written: %v", err)
	}
}

func TestAcceptProposalResults_FailingMetricFailsRun(t *testing.T) {
	root := newValidPlan(t)
	layout := planmodel.NewLayout(root)

	writeJSON(t, layout.PlanAcceptance(), map[string]any{
		"schemaVersion": 1,
		"checks": []map[string]any{
			{
				"id": "loss-ok", "type": "metric_threshold", "selector": "loss",
				"op": "<=", "value": 0.1, "needs_confirm": false, "suggested_by": "proposal",
			},
		},
	})
	writeJSON(t, layout.FinalMetrics(), map[string]any{"loss": 0.5})

	report, err := AcceptProposalResults(root, Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("AcceptProposalResults: %v", err)
	}
	if report.Status != StatusFail {
		t.Fatalf("status = %q, want fail", report.Status)
	}
	if report.Status.ExitCode() != 1 {
		t.Fatalf("exit code = %d, want 1", report.Status.ExitCode())
	}
}

func TestAcceptProposalResults_ManualApprovalMissingNeedsConfirm(t *testing.T) {
	root := newValidPlan(t)
	layout := planmodel.NewLayout(root)

	writeJSON(t, layout.PlanAcceptance(), map[string]any{
		"schemaVersion": 1,
		"checks": []map[string]any{
			{
				"id": "sign-off", "type": "manual_approval", "selector": "sign-off",
				"needs_confirm": false, "suggested_by": "proposal",
			},
		},
	})

	report, err := AcceptProposalResults(root, Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("AcceptProposalResults: %v", err)
	}
	if report.Status != StatusNeedsConfirm {
		t.Fatalf("status = %q, want needs_confirm", report.Status)
	}
	if report.Status.ExitCode() != 2 {
		t.Fatalf("exit code = %d, want 2", report.Status.ExitCode())
	}
}

func TestAcceptProposalResults_PassWithNeedsConfirmFlagIsDowngraded(t *testing.T) {
	root := newValidPlan(t)
	layout := planmodel.NewLayout(root)

	writeJSON(t, layout.PlanAcceptance(), map[string]any{
		"schemaVersion": 1,
		"checks": []map[string]any{
			{
				"id": "loss-ok", "type": "metric_threshold", "selector": "loss",
				"op": "<=", "value": 1.0, "needs_confirm": true, "suggested_by": "proposal",
			},
		},
	})
	writeJSON(t, layout.FinalMetrics(), map[string]any{"loss": 0.5})

	report, err := AcceptProposalResults(root, Options{Now: fixedNow})
	if err != nil {
		t.Fatalf("AcceptProposalResults: %v", err)
	}
	if report.Status != StatusNeedsConfirm {
		t.Fatalf("status = %q, want needs_confirm (pass should be downgraded)", report.Status)
	}
}

func fixedNow() time.Time {
	return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
}
