package accept

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// ManifestEntry is one archived file's path (relative to the plan root) and
// content digest.
type ManifestEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Bytes  int64  `json:"bytes"`
}

// archivePatterns is the canonical set of paths acceptProposalResults
// archives into report/runs/<runId>/, per spec.md §4.8 step 2. The repairs
// tree uses a doublestar glob since its directory names are per-node,
// per-attempt and not known in advance.
var archivePatterns = []string{
	"input/proposal.md",
	"plan/plan.dag.json",
	"plan/acceptance.json",
	"plan/retry.json",
	"report/compile_report.json",
	"report/execute_log.json",
	"report/execute_summary.md",
	"report/final_metrics.json",
	"report/eval_metrics.json",
	"report/final_report.md",
	"report/checkpoint_manifest.json",
	"report/static_checks.json",
	"report/repairs/**/*",
}

// newRunID builds the spec's <YYYYMMDD-HHMMSS>-<6hex> run identifier.
func newRunID(now time.Time) (string, error) {
	var b [3]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generate run id suffix: %w", err)
	}
	return fmt.Sprintf("%s-%s", now.UTC().Format("20060102-150405"), hex.EncodeToString(b[:])), nil
}

// archiveRun copies every path matching archivePatterns (relative to
// planRoot) into report/runs/<runId>/ with the same relative layout, and
// writes a SHA-256 manifest of what it copied. Missing optional files (most
// patterns are "if present") are skipped without error; a glob that matches
// nothing is not itself an error.
func archiveRun(planRoot, runID string) ([]ManifestEntry, error) {
	runDir := filepath.Join(planRoot, "report", "runs", runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, err
	}

	var manifest []ManifestEntry
	seen := map[string]bool{}
	for _, pattern := range archivePatterns {
		matches, err := doublestar.Glob(os.DirFS(planRoot), pattern)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
		for _, rel := range matches {
			if seen[rel] {
				continue
			}
			seen[rel] = true
			entry, err := copyIntoArchive(planRoot, runDir, rel)
			if err != nil {
				return nil, err
			}
			if entry != nil {
				manifest = append(manifest, *entry)
			}
		}
	}

	manifestPath := filepath.Join(runDir, "manifest.json")
	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}
	b = append(b, '\n')
	if err := os.WriteFile(manifestPath, b, 0o644); err != nil {
		return nil, err
	}
	return manifest, nil
}

func copyIntoArchive(planRoot, runDir, rel string) (*ManifestEntry, error) {
	src := filepath.Join(planRoot, rel)
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if info.IsDir() {
		return nil, nil
	}

	dst := filepath.Join(runDir, rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return nil, err
	}

	in, err := os.Open(src)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return nil, err
	}
	defer out.Close()

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, h), in)
	if err != nil {
		return nil, err
	}

	return &ManifestEntry{Path: rel, SHA256: hex.EncodeToString(h.Sum(nil)), Bytes: n}, nil
}
