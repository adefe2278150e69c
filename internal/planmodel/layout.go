package planmodel

import (
	"os"
	"path/filepath"
	"strconv"
)

// Layout resolves every path inside a plan package relative to its root
// directory. All plan-relative paths used elsewhere in the system are
// produced through this type so that the on-disk tree stays in one place.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout { return Layout{Root: root} }

func (l Layout) join(parts ...string) string {
	return filepath.Join(append([]string{l.Root}, parts...)...)
}

func (l Layout) InputProposal() string   { return l.join("input", "proposal.md") }
func (l Layout) InputContext() string    { return l.join("input", "context.json") }
func (l Layout) IRExtracted() string     { return l.join("ir", "extracted.entities.json") }
func (l Layout) IRDiscovery() string     { return l.join("ir", "discovery.json") }
func (l Layout) IRRepoProfile(label string) string {
	return l.join("ir", "repo_profiles", label+".json")
}
func (l Layout) PlanDAG() string        { return l.join("plan", "plan.dag.json") }
func (l Layout) PlanAcceptance() string { return l.join("plan", "acceptance.json") }
func (l Layout) PlanRetry() string      { return l.join("plan", "retry.json") }
func (l Layout) PlanScript(nodeID string) string {
	return l.join("plan", "scripts", nodeID+".sh")
}
func (l Layout) CompileReport() string  { return l.join("report", "compile_report.json") }
func (l Layout) NeedsConfirm() string   { return l.join("report", "needs_confirm.md") }
func (l Layout) Runbook() string        { return l.join("report", "runbook.md") }
func (l Layout) ExecuteLog() string     { return l.join("report", "execute_log.json") }
func (l Layout) ExecuteSummary() string { return l.join("report", "execute_summary.md") }
func (l Layout) Progress() string       { return l.join("report", "progress.ndjson") }
func (l Layout) EvalMetrics() string    { return l.join("report", "eval_metrics.json") }
func (l Layout) FinalMetrics() string   { return l.join("report", "final_metrics.json") }
func (l Layout) FinalReport() string    { return l.join("report", "final_report.md") }
func (l Layout) CheckpointManifest() string { return l.join("report", "checkpoint_manifest.json") }
func (l Layout) ManualApprovals() string    { return l.join("report", "manual_approvals.json") }
func (l Layout) AcceptanceReport(ext string) string {
	return l.join("report", "acceptance_report."+ext)
}

func (l Layout) RepairDir(nodeID string, attempt int) string {
	return l.join("report", "repairs", nodeID, attemptDir(attempt))
}
func (l Layout) RepairEvidence(nodeID string, attempt int) string {
	return l.join(l.RepairDir(nodeID, attempt), "repair_evidence.json")
}

func attemptDir(attempt int) string {
	return "attempt-" + strconv.Itoa(attempt)
}

func (l Layout) RunDir(runID string) string       { return l.join("report", "runs", runID) }
func (l Layout) RunManifest(runID string) string  { return l.join(l.RunDir(runID), "manifest.json") }

func (l Layout) CacheGit(repoKey string) string  { return l.join("cache", "git", repoKey) }
func (l Layout) CacheVenv(repoKey string) string { return l.join("cache", "venv", repoKey) }
func (l Layout) CachePip() string                { return l.join("cache", "pip") }
func (l Layout) CacheHF() string                 { return l.join("cache", "hf") }
func (l Layout) ArtifactsModel(repoKey string) string {
	return l.join("artifacts", "model", repoKey)
}

// Ensure creates the fixed top-level directory skeleton for a fresh plan
// package. Stages that write into a subtree (refine into plan/scripts,
// execute into report/) create their own leaf directories on demand.
func (l Layout) Ensure() error {
	dirs := []string{
		l.join("input"),
		l.join("ir", "repo_profiles"),
		l.join("plan", "scripts"),
		l.join("report", "repairs"),
		l.join("report", "runs"),
		l.join("cache", "git"),
		l.join("cache", "venv"),
		l.CachePip(),
		l.CacheHF(),
		l.join("artifacts", "model"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
