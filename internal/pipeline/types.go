// Package pipeline sequences a plan package through compile, validate,
// run-safe, refine, execute, finalize, and accept, honouring per-stage
// enable flags and terminating at the first stage that returns ok=false.
package pipeline

import (
	"time"

	"github.com/danshapiro/openclaw/internal/compiler"
	"github.com/danshapiro/openclaw/internal/execengine"
	"github.com/danshapiro/openclaw/internal/llmcontract"
)

// Mode selects which stage sequence Run drives.
type Mode string

const (
	ModePlan     Mode = "plan"
	ModeExecute  Mode = "execute"
	ModePipeline Mode = "pipeline"
)

// Options configures one orchestrator invocation. Most fields are only
// consulted by the stages a given Mode actually runs.
type Options struct {
	Mode Mode

	// plan-mode / pipeline-mode inputs
	Proposal     string
	WorkspaceDir string
	Discovery    compiler.DiscoveryMode

	// execute-mode / pipeline-mode inputs
	PlanDir string

	// shared collaborators
	Completer llmcontract.Completer
	Provider  string
	Model     string
	AgentID   string
	Sandbox   execengine.Sandbox
	Gateway   execengine.GatewayCall

	// per-stage enable flags (default true unless noted)
	EnableRefine bool // default true
	EnableRefineSet bool // internal: true once EnableRefine has been explicitly set
	EnableBootstrap bool // default false
	BootstrapCommands []string

	MaxRepairAttempts int
	DirectGPUNodeID   string
	GPUWaitTimeout    time.Duration

	BaselinePath string
	Now          func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// refineEnabled returns whether the optional refine stage should run.
// Refine defaults to enabled; EnableRefineSet lets a caller turn it off
// without needing a pointer field.
func (o Options) refineEnabled() bool {
	if o.EnableRefineSet {
		return o.EnableRefine
	}
	return true
}

// StageResult captures one stage's outcome for the aggregate Result.
type StageResult struct {
	Stage   string `json:"stage"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Detail  any    `json:"detail,omitempty"`
}

// Result is the orchestrator's aggregate outcome across every stage it ran.
type Result struct {
	Mode    Mode          `json:"mode"`
	PlanID  string        `json:"planId,omitempty"`
	PlanDir string        `json:"planDir"`
	OK      bool          `json:"ok"`
	Stages  []StageResult `json:"stages"`
}

func (r *Result) record(stage string, ok bool, err error, detail any) StageResult {
	sr := StageResult{Stage: stage, OK: ok, Detail: detail}
	if err != nil {
		sr.Error = err.Error()
	}
	r.Stages = append(r.Stages, sr)
	if !ok {
		r.OK = false
	}
	return sr
}
