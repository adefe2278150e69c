// Package gpuscheduler is the gateway's single authoritative GPU job queue:
// it multiplexes GpuJobs over whatever worker nodes internal/noderegistry
// currently has connected, with pause/resume/cancel, policy-window
// auto-pause, and a level-triggered wait keyed on terminal state.
package gpuscheduler

import "github.com/danshapiro/openclaw/internal/planmodel"

// JobState is a GpuJob's lifecycle state.
type JobState string

const (
	StateQueued    JobState = "queued"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateCanceled  JobState = "canceled"
)

func (s JobState) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCanceled
}

// PauseReason distinguishes an operator pause from a policy-window pause.
type PauseReason string

const (
	PauseManual PauseReason = "manual"
	PausePolicy PauseReason = "policy"
)

// TimeWindow is one auto-pause/auto-resume window. Days empty means every
// day. Start/End are "HH:MM" 24h; End < Start wraps past midnight. TZ is an
// IANA zone name; empty means the host's local zone.
type TimeWindow struct {
	Days  []string `json:"days,omitempty" yaml:"days,omitempty"`
	Start string   `json:"start" yaml:"start"`
	End   string   `json:"end" yaml:"end"`
	TZ    string   `json:"tz,omitempty" yaml:"tz,omitempty"`
}

// Policy controls auto-pause/auto-resume behaviour for one job.
type Policy struct {
	AutoPause  bool         `json:"autoPause,omitempty" yaml:"autoPause,omitempty"`
	AutoResume bool         `json:"autoResume,omitempty" yaml:"autoResume,omitempty"`
	Windows    []TimeWindow `json:"windows,omitempty" yaml:"windows,omitempty"`
}

// ExecSpec is the command a job's attempts invoke on an assigned node.
type ExecSpec struct {
	Command          []string          `json:"command" yaml:"command"`
	Cwd              string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	Env              map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	CommandTimeoutMs int64             `json:"commandTimeoutMs,omitempty" yaml:"commandTimeoutMs,omitempty"`
	InvokeTimeoutMs  int64             `json:"invokeTimeoutMs,omitempty" yaml:"invokeTimeoutMs,omitempty"`
	Approved         bool              `json:"approved,omitempty" yaml:"approved,omitempty"`
	ApprovalDecision string            `json:"approvalDecision,omitempty" yaml:"approvalDecision,omitempty"`
}

// Attempt is one dispatch of a job onto a node.
type Attempt struct {
	Attempt      int    `json:"attempt" yaml:"attempt"`
	NodeID       string `json:"nodeId" yaml:"nodeId"`
	StartedAtMs  int64  `json:"startedAtMs" yaml:"startedAtMs"`
	FinishedAtMs *int64 `json:"finishedAtMs,omitempty" yaml:"finishedAtMs,omitempty"`
	OK           *bool  `json:"ok,omitempty" yaml:"ok,omitempty"`
	ExitCode     *int   `json:"exitCode,omitempty" yaml:"exitCode,omitempty"`
	TimedOut     bool   `json:"timedOut,omitempty" yaml:"timedOut,omitempty"`
	StdoutTail   string `json:"stdoutTail,omitempty" yaml:"stdoutTail,omitempty"`
	StderrTail   string `json:"stderrTail,omitempty" yaml:"stderrTail,omitempty"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is a job's final outcome, set once it reaches a terminal state.
type Result struct {
	OK       bool   `json:"ok"`
	ExitCode int    `json:"exitCode,omitempty" yaml:"exitCode,omitempty"`
	TimedOut bool   `json:"timedOut,omitempty" yaml:"timedOut,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Job is a GpuJob: a scheduler-managed work unit whose execution is an
// invoke on a worker node. At most one attempt is ever in flight; state
// running implies AssignedNodeID is set and the last attempt has no
// FinishedAtMs.
type Job struct {
	JobID           string              `json:"jobId" yaml:"jobId"`
	CreatedAtMs     int64               `json:"createdAtMs" yaml:"createdAtMs"`
	UpdatedAtMs     int64               `json:"updatedAtMs" yaml:"updatedAtMs"`
	State           JobState            `json:"state" yaml:"state"`
	Paused          bool                `json:"paused,omitempty" yaml:"paused,omitempty"`
	PausedReason    PauseReason         `json:"pausedReason,omitempty" yaml:"pausedReason,omitempty"`
	PauseRequested  bool                `json:"pauseRequested,omitempty" yaml:"pauseRequested,omitempty"`
	NotBeforeMs     int64               `json:"notBeforeMs,omitempty" yaml:"notBeforeMs,omitempty"`
	Policy          Policy              `json:"policy,omitempty" yaml:"policy,omitempty"`
	Resources       planmodel.Resources `json:"resources" yaml:"resources"`
	Exec            ExecSpec            `json:"exec" yaml:"exec"`
	MaxAttempts     int                 `json:"maxAttempts" yaml:"maxAttempts"`
	AssignedNodeID  string              `json:"assignedNodeId,omitempty" yaml:"assignedNodeId,omitempty"`
	Attempts        []Attempt           `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Result          *Result             `json:"result,omitempty" yaml:"result,omitempty"`
	CancelRequested bool                `json:"cancelRequested,omitempty" yaml:"cancelRequested,omitempty"`
}

func (j *Job) clone() *Job {
	cp := *j
	cp.Attempts = append([]Attempt(nil), j.Attempts...)
	if j.Result != nil {
		r := *j.Result
		cp.Result = &r
	}
	return &cp
}

// SubmitRequest is the input to Submit.
type SubmitRequest struct {
	Resources   planmodel.Resources
	Exec        ExecSpec
	MaxAttempts int
	Policy      Policy
}
