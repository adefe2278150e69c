package accept

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danshapiro/openclaw/internal/dagengine"
	"github.com/danshapiro/openclaw/internal/execengine"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

const reportSchemaVersion = 1

// Options configures AcceptProposalResults.
type Options struct {
	// BaselinePath overrides the automatic "most recent prior run" baseline
	// lookup with an explicit final_metrics.json path.
	BaselinePath string
	// Now is injectable for deterministic tests; defaults to time.Now.
	Now func() time.Time
}

// AcceptProposalResults implements spec.md §4.8: it validates the plan
// package, archives the run's canonical artifacts with a SHA-256 manifest,
// evaluates every acceptance check, and writes report/acceptance_report.{json,md}.
// The returned Report is always non-nil when err is nil, even for a fail
// verdict — only a filesystem, archival, or acceptance-spec parse error
// returns a non-nil err.
func AcceptProposalResults(planRoot string, opts Options) (*Report, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	layout := planmodel.NewLayout(planRoot)
	if reasons := validatePlanPackage(layout); len(reasons) > 0 {
		return &Report{
			SchemaVersion: reportSchemaVersion,
			Status:        StatusFail,
			Checks: []CheckResult{{
				Type:   "plan_validation",
				Status: StatusFail,
				Detail: strings.Join(reasons, "; "),
			}},
			CreatedAtMs: now().UnixMilli(),
		}, nil
	}

	baseline := loadBaselineMetrics(planRoot, opts.BaselinePath)

	runID, err := newRunID(now())
	if err != nil {
		return nil, err
	}
	manifest, err := archiveRun(planRoot, runID)
	if err != nil {
		return nil, fmt.Errorf("archive run: %w", err)
	}

	current := loadCurrentMetrics(planRoot)

	var log execengine.ExecuteLog
	if b, err := os.ReadFile(layout.ExecuteLog()); err == nil {
		_ = json.Unmarshal(b, &log)
	}

	var approvals ManualApprovals
	if b, err := os.ReadFile(layout.ManualApprovals()); err == nil {
		_ = json.Unmarshal(b, &approvals)
	}

	var spec planmodel.AcceptanceSpec
	specBytes, err := os.ReadFile(layout.PlanAcceptance())
	if err != nil {
		return nil, fmt.Errorf("read acceptance spec: %w", err)
	}
	if err := json.Unmarshal(specBytes, &spec); err != nil {
		return nil, fmt.Errorf("parse acceptance spec: %w", err)
	}

	ctx := evalContext{planRoot: planRoot, metrics: current, log: log, approved: approvals}
	checks := make([]CheckResult, 0, len(spec.Checks))
	for _, c := range spec.Checks {
		checks = append(checks, evaluateCheck(c, ctx))
	}

	report := &Report{
		SchemaVersion: reportSchemaVersion,
		RunID:         runID,
		Status:        aggregateStatus(checks),
		Checks:        checks,
		MetricDeltas:  numericDeltas(baseline, current),
		CreatedAtMs:   now().UnixMilli(),
	}

	jsonPath := layout.AcceptanceReport("json")
	mdPath := layout.AcceptanceReport("md")
	if err := writeReportJSON(jsonPath, report); err != nil {
		return nil, err
	}
	if err := os.WriteFile(mdPath, []byte(renderMarkdown(report)), 0o644); err != nil {
		return nil, err
	}

	if err := appendToRunManifest(planRoot, runID, manifest, jsonPath, mdPath); err != nil {
		return nil, err
	}

	return report, nil
}

// validatePlanPackage loads and structurally validates plan.dag.json. A
// non-empty return short-circuits AcceptProposalResults with status=fail,
// per spec.md §4.8 step 1.
func validatePlanPackage(layout planmodel.Layout) []string {
	b, err := os.ReadFile(layout.PlanDAG())
	if err != nil {
		return []string{fmt.Sprintf("read plan dag: %v", err)}
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return []string{fmt.Sprintf("parse plan dag: %v", err)}
	}
	if err := planmodel.ValidateDocument(planmodel.DocPlanDAG, generic); err != nil {
		return []string{fmt.Sprintf("schema: %v", err)}
	}

	var dag planmodel.PlanDAG
	if err := json.Unmarshal(b, &dag); err != nil {
		return []string{fmt.Sprintf("parse plan dag: %v", err)}
	}
	if _, err := dagengine.ValidateDAG(&dag); err != nil {
		return []string{fmt.Sprintf("dag: %v", err)}
	}
	return nil
}

func aggregateStatus(checks []CheckResult) Status {
	needsConfirm := false
	for _, c := range checks {
		switch c.Status {
		case StatusFail:
			return StatusFail
		case StatusNeedsConfirm:
			needsConfirm = true
		}
	}
	if needsConfirm {
		return StatusNeedsConfirm
	}
	return StatusPass
}

func numericDeltas(baseline, current map[string]any) map[string]float64 {
	out := map[string]float64{}
	for k, bv := range baseline {
		cv, ok := current[k]
		if !ok {
			continue
		}
		bf, bok := asFloat(bv)
		cf, cok := asFloat(cv)
		if bok && cok {
			out[k] = cf - bf
		}
	}
	return out
}

func writeReportJSON(path string, report *Report) error {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}

func renderMarkdown(report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Acceptance Report\n\nRun: %s\nStatus: **%s**\n\n", report.RunID, report.Status)
	fmt.Fprintf(&b, "| Check | Type | Status | Detail |\n|---|---|---|---|\n")
	for _, c := range report.Checks {
		id := c.ID
		if id == "" {
			id = c.Selector
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", id, c.Type, c.Status, c.Detail)
	}
	if len(report.MetricDeltas) > 0 {
		fmt.Fprintf(&b, "\n## Metric deltas vs baseline\n\n")
		for k, v := range report.MetricDeltas {
			fmt.Fprintf(&b, "- %s: %+.4f\n", k, v)
		}
	}
	return b.String()
}

// appendToRunManifest copies the freshly written acceptance report files
// into the run archive and rewrites manifest.json to include them, per
// spec.md §4.8 step 7 ("archive them into the run").
func appendToRunManifest(planRoot, runID string, manifest []ManifestEntry, paths ...string) error {
	runDir := filepath.Join(planRoot, "report", "runs", runID)
	for _, p := range paths {
		rel, err := filepath.Rel(planRoot, p)
		if err != nil {
			return err
		}
		entry, err := copyIntoArchive(planRoot, runDir, rel)
		if err != nil {
			return err
		}
		if entry != nil {
			manifest = append(manifest, *entry)
		}
	}
	b, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(filepath.Join(runDir, "manifest.json"), b, 0o644)
}
