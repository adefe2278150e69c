// Package repair implements the LLM-driven patch-and-retry loop between
// execute engine attempts: given a failing attempt's combined output, it
// locates the offending file:line, asks an LLM for a minimal unified patch,
// applies it with path confinement, and captures before/after evidence
// including metric deltas.
package repair

// Status is repair_evidence.json's terminal classification for one repair.
type Status string

const (
	StatusAppliedOnly Status = "applied_only"
	StatusRerunOK     Status = "rerun_ok"
	StatusRerunFailed Status = "rerun_failed"
)

const schemaVersion = 1

// Evidence is the on-disk audit trail for one repair attempt.
type Evidence struct {
	SchemaVersion int                `json:"schemaVersion"`
	NodeID        string             `json:"nodeId"`
	Attempt       int                `json:"attempt"`
	Status        Status             `json:"status"`
	FileRef       string             `json:"fileRef,omitempty"`
	PatchSummary  string             `json:"patchSummary,omitempty"`
	FilesChanged  []string           `json:"filesChanged,omitempty"`
	MetricDeltas  map[string]float64 `json:"metricDeltas,omitempty"`
	CreatedAtMs   int64              `json:"createdAtMs"`
}

// pending is the in-memory record kept between BeginRepair and
// FinalizeRepair for one node's most recent repair.
type pending struct {
	attempt      int
	fileRef      string
	patchSummary string
	beforeSHA    string
	beforeStdout string
	beforeStderr string
	beforeMetric map[string]float64
}
