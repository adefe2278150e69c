package repair

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/danshapiro/openclaw/internal/llmcontract"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

func initGitRepo(t *testing.T, dir string) {
	t.Helper()
	run := func(args ...string) {
		t.Helper()
		cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@test",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@test",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("git %v failed: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.name", "test")
	run("config", "user.email", "test@test")
	run("add", "-A")
	run("commit", "-m", "initial")
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestExtractFileRef_RejectsPathOutsideRoot(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "main.go"), "package main\n")
	if _, ok := extractFileRef("see /etc/passwd:3 for details", root); ok {
		t.Fatalf("expected no match for a path outside the root")
	}
}

func TestExtractFileRef_FindsFirstCodeReference(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "train.py"), "line1\nline2\nboom\nline4\n")
	ref, ok := extractFileRef("Traceback: train.py:3: ValueError: boom", root)
	if !ok {
		t.Fatalf("expected a match")
	}
	if ref.Path != "train.py" || ref.Line != 3 {
		t.Fatalf("ref = %+v", ref)
	}
}

func TestApplyPatch_SimpleReplacement(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.py"), "x = 1\ny = 2\nz = 3\n")

	patch := "--- a/a.py\n+++ b/a.py\n@@ -1,3 +1,3 @@\n x = 1\n-y = 2\n+y = 20\n z = 3\n"
	touched, err := applyPatch(root, patch)
	if err != nil {
		t.Fatalf("applyPatch: %v", err)
	}
	if len(touched) != 1 || touched[0] != "a.py" {
		t.Fatalf("touched = %v", touched)
	}
	got, _ := os.ReadFile(filepath.Join(root, "a.py"))
	want := "x = 1\ny = 20\nz = 3\n"
	if string(got) != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestApplyPatch_RejectsEscapingPath(t *testing.T) {
	root := t.TempDir()
	patch := "--- a/../outside.py\n+++ b/../outside.py\n@@ -1,1 +1,1 @@\n-x\n+y\n"
	if _, err := applyPatch(root, patch); err == nil {
		t.Fatalf("expected error for a path escaping the repo root")
	}
}

func TestExtractPatchBlock_RequiresBothMarkers(t *testing.T) {
	if _, ok := extractPatchBlock("no markers here"); ok {
		t.Fatalf("expected no patch block")
	}
	block, ok := extractPatchBlock("preamble\n*** Begin Patch\n--- a/x\n*** End Patch\ntrailer")
	if !ok || block != "--- a/x" {
		t.Fatalf("block = %q ok=%v", block, ok)
	}
}

func TestRedactAndCap_ScrubsSecretsAndCaps(t *testing.T) {
	in := "token: sk-abc123\nnormal line\n"
	out := redactAndCap(in)
	if out == in {
		t.Fatalf("expected redaction to change the content")
	}
	big := make([]byte, maxEvidenceBytes+100)
	for i := range big {
		big[i] = 'x'
	}
	capped := redactAndCap(string(big))
	if len(capped) != maxEvidenceBytes {
		t.Fatalf("capped length = %d, want %d", len(capped), maxEvidenceBytes)
	}
}

func TestMetricDeltas_OnlyNumericSharedKeys(t *testing.T) {
	before := map[string]float64{"loss": 1.0, "dropped": 5}
	after := map[string]float64{"loss": 0.5, "new": 9}
	deltas := metricDeltas(before, after)
	if len(deltas) != 1 || deltas["loss"] != -0.5 {
		t.Fatalf("deltas = %+v", deltas)
	}
}

func TestHook_BeginThenFinalizeRerunOK(t *testing.T) {
	planRoot := t.TempDir()
	repoRoot := filepath.Join(planRoot, "cache", "git", "repo")
	writeFile(t, filepath.Join(repoRoot, "train.py"), "x = 1\ny = 2\nz = 3\n")
	writeFile(t, filepath.Join(planRoot, "report", "eval_metrics.json"), `{"loss": 1.0}`)

	layout := planmodel.NewLayout(planRoot)
	completer := llmcontract.CompleterFunc(func(ctx context.Context, req llmcontract.CompletionRequest) (string, error) {
		return "*** Begin Patch\n--- a/train.py\n+++ b/train.py\n@@ -1,3 +1,3 @@\n x = 1\n-y = 2\n+y = 20\n z = 3\n*** End Patch", nil
	})
	h := New(layout, repoRoot, completer, "test", "test-model")

	applied, err := h.BeginRepair(context.Background(), "train.run", 1, "", "train.py:2: AssertionError: bad value")
	if err != nil {
		t.Fatalf("BeginRepair: %v", err)
	}
	if !applied {
		t.Fatalf("expected repair to be applied")
	}
	got, _ := os.ReadFile(filepath.Join(repoRoot, "train.py"))
	if string(got) != "x = 1\ny = 20\nz = 3\n" {
		t.Fatalf("patch not applied, got %q", got)
	}

	writeFile(t, filepath.Join(planRoot, "report", "eval_metrics.json"), `{"loss": 0.2}`)
	if err := h.FinalizeRepair(context.Background(), "train.run", 1, string(StatusRerunOK), "ok", ""); err != nil {
		t.Fatalf("FinalizeRepair: %v", err)
	}

	evBytes, err := os.ReadFile(layout.RepairEvidence("train.run", 1))
	if err != nil {
		t.Fatalf("read evidence: %v", err)
	}
	if len(evBytes) == 0 {
		t.Fatalf("evidence file is empty")
	}
}

func TestHook_FinalizeRepair_RecordsFilesChangedInsideGitCheckout(t *testing.T) {
	planRoot := t.TempDir()
	repoRoot := filepath.Join(planRoot, "cache", "git", "repo")
	writeFile(t, filepath.Join(repoRoot, "train.py"), "x = 1\ny = 2\nz = 3\n")
	initGitRepo(t, repoRoot)

	layout := planmodel.NewLayout(planRoot)
	completer := llmcontract.CompleterFunc(func(ctx context.Context, req llmcontract.CompletionRequest) (string, error) {
		return "*** Begin Patch\n--- a/train.py\n+++ b/train.py\n@@ -1,3 +1,3 @@\n x = 1\n-y = 2\n+y = 20\n z = 3\n*** End Patch", nil
	})
	h := New(layout, repoRoot, completer, "test", "test-model")

	applied, err := h.BeginRepair(context.Background(), "train.run", 1, "", "train.py:2: AssertionError: bad value")
	if err != nil || !applied {
		t.Fatalf("BeginRepair: applied=%v err=%v", applied, err)
	}

	if err := h.FinalizeRepair(context.Background(), "train.run", 1, string(StatusRerunOK), "ok", ""); err != nil {
		t.Fatalf("FinalizeRepair: %v", err)
	}

	evBytes, err := os.ReadFile(layout.RepairEvidence("train.run", 1))
	if err != nil {
		t.Fatalf("read evidence: %v", err)
	}
	var ev Evidence
	if err := json.Unmarshal(evBytes, &ev); err != nil {
		t.Fatalf("unmarshal evidence: %v", err)
	}
	if len(ev.FilesChanged) != 1 || ev.FilesChanged[0] != "train.py" {
		t.Fatalf("FilesChanged = %v, want [train.py]", ev.FilesChanged)
	}
}

func TestHook_BeginRepair_NoReferenceFound(t *testing.T) {
	planRoot := t.TempDir()
	layout := planmodel.NewLayout(planRoot)
	h := New(layout, planRoot, llmcontract.CompleterFunc(func(ctx context.Context, req llmcontract.CompletionRequest) (string, error) {
		t.Fatalf("completer should not be called when no file ref is found")
		return "", nil
	}), "test", "test-model")

	applied, err := h.BeginRepair(context.Background(), "n", 1, "", "no file reference in this text")
	if err != nil || applied {
		t.Fatalf("applied=%v err=%v, want false/nil", applied, err)
	}
}
