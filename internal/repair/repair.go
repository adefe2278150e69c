package repair

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/danshapiro/openclaw/internal/gitutil"
	"github.com/danshapiro/openclaw/internal/llmcontract"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

const snippetRadius = 20

// Hook drives the repair loop for one plan and satisfies
// execengine.RepairHook. One Hook instance is shared across all nodes in a
// run; its pending map is keyed by nodeID since at most one repair is ever
// outstanding per node at a time.
type Hook struct {
	layout    planmodel.Layout
	repoRoot  string
	completer llmcontract.Completer
	provider  string
	model     string
	nowFn     func() time.Time

	mu      sync.Mutex
	pending map[string]*pending
}

// New creates a Hook. repoRoot confines patch application and file:line
// resolution; the pipeline's execute mode passes the plan directory itself.
func New(layout planmodel.Layout, repoRoot string, completer llmcontract.Completer, provider, model string) *Hook {
	return &Hook{
		layout:    layout,
		repoRoot:  repoRoot,
		completer: completer,
		provider:  provider,
		model:     model,
		nowFn:     time.Now,
		pending:   make(map[string]*pending),
	}
}

// BeginRepair implements execengine.RepairHook. It locates the first
// file:line reference in the failure output, asks the LLM for a minimal
// patch, applies it, and records a pending before-evidence snapshot. It
// returns applied=false (not an error) whenever repair isn't possible:
// no reference found, the model refused, or the patch didn't apply.
func (h *Hook) BeginRepair(ctx context.Context, nodeID string, attempt int, stdout, stderr string) (bool, error) {
	combined := stdout + "\n" + stderr
	ref, ok := extractFileRef(combined, h.repoRoot)
	if !ok {
		return false, nil
	}
	snippet, err := readSnippet(h.repoRoot, ref, snippetRadius)
	if err != nil {
		return false, nil
	}

	prompt := buildRepairPrompt(ref, snippet, combined)
	raw, err := h.completer.Complete(ctx, llmcontract.CompletionRequest{
		Provider: h.provider, Model: h.model, Prompt: prompt,
	})
	if err != nil {
		return false, fmt.Errorf("repair completion: %w", err)
	}
	patchText, ok := extractPatchBlock(raw)
	if !ok {
		return false, nil
	}
	beforeSHA, _ := gitutil.HeadSHA(h.repoRoot)

	touched, err := applyPatch(h.repoRoot, patchText)
	if err != nil || len(touched) == 0 {
		return false, nil
	}

	before := pending{
		attempt:      attempt,
		fileRef:      fmt.Sprintf("%s:%d", ref.Path, ref.Line),
		patchSummary: patchSummary(touched),
		beforeSHA:    beforeSHA,
		beforeStdout: stdout,
		beforeStderr: stderr,
		beforeMetric: snapshotMetrics(h.layout.EvalMetrics(), h.layout.FinalMetrics()),
	}
	dir := h.layout.RepairDir(nodeID, attempt)
	if err := writeEvidenceFile(filepath.Join(dir, "before.stdout.txt"), stdout); err != nil {
		return false, err
	}
	if err := writeEvidenceFile(filepath.Join(dir, "before.stderr.txt"), stderr); err != nil {
		return false, err
	}

	h.mu.Lock()
	h.pending[nodeID] = &before
	h.mu.Unlock()
	return true, nil
}

// FinalizeRepair implements execengine.RepairHook: it writes after-evidence,
// computes metric deltas against the before snapshot, and records
// repair_evidence.json. A nodeID with no pending repair is a no-op.
func (h *Hook) FinalizeRepair(ctx context.Context, nodeID string, attempt int, status string, stdout, stderr string) error {
	h.mu.Lock()
	p, ok := h.pending[nodeID]
	if ok {
		delete(h.pending, nodeID)
	}
	h.mu.Unlock()
	if !ok {
		return nil
	}

	dir := h.layout.RepairDir(nodeID, p.attempt)
	if status != string(StatusAppliedOnly) {
		if err := writeEvidenceFile(filepath.Join(dir, "after.stdout.txt"), stdout); err != nil {
			return err
		}
		if err := writeEvidenceFile(filepath.Join(dir, "after.stderr.txt"), stderr); err != nil {
			return err
		}
	}

	after := snapshotMetrics(h.layout.EvalMetrics(), h.layout.FinalMetrics())
	ev := Evidence{
		SchemaVersion: schemaVersion,
		NodeID:        nodeID,
		Attempt:       p.attempt,
		Status:        Status(status),
		FileRef:       p.fileRef,
		PatchSummary:  p.patchSummary,
		FilesChanged:  filesChangedSince(h.repoRoot, p.beforeSHA),
		MetricDeltas:  metricDeltas(p.beforeMetric, after),
		CreatedAtMs:   h.nowFn().UnixMilli(),
	}
	return writeEvidenceJSON(h.layout.RepairEvidence(nodeID, p.attempt), ev)
}

// filesChangedSince lists files that differ between beforeSHA and the
// current working tree of repoRoot. Evidence for patches applied outside a
// git checkout (repoRoot empty, or beforeSHA unresolvable) omits the field
// rather than erroring, since the diff is informational, not load-bearing.
func filesChangedSince(repoRoot, beforeSHA string) []string {
	if repoRoot == "" || beforeSHA == "" {
		return nil
	}
	files, err := gitutil.DiffNameOnly(repoRoot, beforeSHA)
	if err != nil {
		return nil
	}
	return files
}

func patchSummary(touched []string) string {
	if len(touched) == 1 {
		return fmt.Sprintf("edited %s", touched[0])
	}
	return fmt.Sprintf("edited %d files", len(touched))
}

func buildRepairPrompt(ref FileRef, snippet, failureOutput string) string {
	return fmt.Sprintf(`A command failed. The first referenced source location is %s:%d.

Failure output (may be truncated):
%s

Source around the failing line:
%s

Produce the smallest possible unified diff that fixes this failure, touching
only files inside this repository. Respond with nothing but the patch,
bracketed exactly as:
*** Begin Patch
<unified diff>
*** End Patch

If you cannot produce a safe, minimal fix, respond with no patch block at all.`,
		ref.Path, ref.Line, truncate(failureOutput, 4000), snippet)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "\n...(truncated)"
}
