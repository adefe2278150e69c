// Package accept evaluates a plan's acceptance checks against its execute
// results, archives the run's canonical artifacts with a SHA-256 manifest,
// and reports a pass/fail/needs_confirm verdict.
package accept

import "github.com/danshapiro/openclaw/internal/planmodel"

// Status is the aggregate verdict of an acceptance run.
type Status string

const (
	StatusPass         Status = "pass"
	StatusFail         Status = "fail"
	StatusNeedsConfirm Status = "needs_confirm"
)

// ExitCode maps a Status to the process exit code the caller should use.
func (s Status) ExitCode() int {
	switch s {
	case StatusPass:
		return 0
	case StatusNeedsConfirm:
		return 2
	default:
		return 1
	}
}

// CheckResult is one evaluated AcceptanceCheck.
type CheckResult struct {
	ID          string             `json:"id,omitempty"`
	Type        planmodel.CheckType `json:"type"`
	Selector    string             `json:"selector"`
	Status      Status             `json:"status"`
	Detail      string             `json:"detail,omitempty"`
	Actual      any                `json:"actual,omitempty"`
	Expected    any                `json:"expected,omitempty"`
}

// Report is the full report/acceptance_report.json document.
type Report struct {
	SchemaVersion int           `json:"schemaVersion"`
	RunID         string        `json:"runId"`
	Status        Status        `json:"status"`
	Checks        []CheckResult `json:"checks"`
	MetricDeltas  map[string]float64 `json:"metricDeltas,omitempty"`
	CreatedAtMs   int64         `json:"createdAtMs"`
}

// ManualApprovals is report/manual_approvals.json, accepted in any of the
// three shapes spec.md allows: {"approved": [...], "notes": "..."},
// a bare array of ids/selectors, or a record<string,bool>.
type ManualApprovals struct {
	Approved map[string]bool
	Notes    string
}

// IsApproved reports whether id or selector was approved.
func (m ManualApprovals) IsApproved(id, selector string) bool {
	if m.Approved == nil {
		return false
	}
	if id != "" && m.Approved[id] {
		return true
	}
	if selector != "" && m.Approved[selector] {
		return true
	}
	return false
}
