package execengine

import (
	"context"
	"time"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

// GatewayCall is the execute engine's view of the gateway: direct node
// invocation for the gateway-direct GPU path, and job submission/wait/cancel
// for the scheduler-queued GPU path. The WebSocket transport and
// authentication that back a real implementation are out of scope here; the
// execute engine only ever calls through this interface, so tests can wire a
// deterministic stub and the gateway package wires the real node registry and
// scheduler.
type GatewayCall interface {
	NodeList(ctx context.Context) ([]NodeInfo, error)
	NodeInvoke(ctx context.Context, nodeID, command string, params map[string]any, timeoutMS int64) (InvokeResult, error)
	GPUJobSubmit(ctx context.Context, req GPUJobSubmitRequest) (GPUJobSnapshot, error)
	GPUJobWait(ctx context.Context, jobID string, timeoutMS int64) (GPUJobSnapshot, bool, error)
	GPUJobCancel(ctx context.Context, jobID string) error
}

// NodeInfo is the execute engine's view of node.list's per-node entry.
type NodeInfo struct {
	NodeID    string
	Commands  []string
	Resources planmodel.Resources
	Connected bool
}

// InvokeResult is the result of a node.invoke RPC.
type InvokeResult struct {
	OK      bool
	Payload map[string]any
	Error   string
}

// GPUJobSubmitRequest is the request body of gpu.job.submit.
type GPUJobSubmitRequest struct {
	Resources   planmodel.Resources
	Command     []string
	Cwd         string
	Env         map[string]string
	CommandTimeoutMS int64
	InvokeTimeoutMS  int64
	MaxAttempts int
}

// GPUJobSnapshot is the execute engine's view of a GpuJob: just enough to
// decide whether to keep waiting and to fill in the node's attempt record.
type GPUJobSnapshot struct {
	JobID      string
	State      string // queued, running, succeeded, failed, canceled
	ExitCode   *int
	TimedOut   bool
	StdoutTail string
	StderrTail string
	Error      string
}

// Terminal reports whether a job snapshot's state will never change again.
func (s GPUJobSnapshot) Terminal() bool {
	switch s.State {
	case "succeeded", "failed", "canceled":
		return true
	default:
		return false
	}
}

// invokeCommand is the RPC name the execute engine invokes on a worker for
// direct-GPU shell execution.
const invokeCommand = "system.run"

func millis(d time.Duration) int64 { return d.Milliseconds() }
