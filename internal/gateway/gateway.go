package gateway

import (
	"context"
	"time"

	"github.com/danshapiro/openclaw/internal/execengine"
	"github.com/danshapiro/openclaw/internal/gpuscheduler"
	"github.com/danshapiro/openclaw/internal/noderegistry"
)

// Gateway wires internal/noderegistry and internal/gpuscheduler into the
// RPC table spec.md §6 names, and satisfies execengine.GatewayCall so the
// pipeline's execute stage can run against a live Gateway exactly as it runs
// against a test double.
type Gateway struct {
	registry  *noderegistry.Registry
	scheduler *gpuscheduler.Scheduler
	transport Transport
	sandbox   execengine.Sandbox
	methods   map[string]handlerFunc
}

// New builds a Gateway over an already-constructed registry/scheduler pair.
// transport is the Sender used for direct node.invoke calls; the scheduler
// was already given its own Sender at construction for job dispatch. sandbox
// backs proposal.execute's local (non-GPU) node commands; it may be nil if
// this gateway only ever executes plans with no CPU-sandbox nodes.
func New(registry *noderegistry.Registry, scheduler *gpuscheduler.Scheduler, transport Transport, sandbox execengine.Sandbox) *Gateway {
	g := &Gateway{registry: registry, scheduler: scheduler, transport: transport, sandbox: sandbox}
	g.methods = map[string]handlerFunc{
		"node.list":            handleNodeList,
		"node.invoke":          handleNodeInvoke,
		"gpu.job.submit":       handleGPUJobSubmit,
		"gpu.job.get":          handleGPUJobGet,
		"gpu.job.list":         handleGPUJobList,
		"gpu.job.cancel":       handleGPUJobCancel,
		"gpu.job.pause":        handleGPUJobPause,
		"gpu.job.resume":       handleGPUJobResume,
		"gpu.job.wait":         handleGPUJobWait,
		"proposal.compile":     handleProposalCompile,
		"proposal.run":         handleProposalRun,
		"proposal.refine":      handleProposalRefine,
		"proposal.execute":     handleProposalExecute,
		"proposal.finalize":    handleProposalFinalize,
		"proposal.accept":      handleProposalAccept,
	}
	return g
}

// --- execengine.GatewayCall ---

func (g *Gateway) NodeList(ctx context.Context) ([]execengine.NodeInfo, error) {
	sessions := g.registry.List()
	out := make([]execengine.NodeInfo, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, execengine.NodeInfo{
			NodeID:    s.NodeID,
			Commands:  s.Commands,
			Resources: s.Resources,
			Connected: true,
		})
	}
	return out, nil
}

func (g *Gateway) NodeInvoke(ctx context.Context, nodeID, command string, params map[string]any, timeoutMS int64) (execengine.InvokeResult, error) {
	res, err := g.registry.Invoke(ctx, g.transport, nodeID, command, params, time.Duration(timeoutMS)*time.Millisecond)
	if err != nil {
		return execengine.InvokeResult{}, err
	}
	return execengine.InvokeResult{OK: res.OK, Payload: res.Payload, Error: res.Error}, nil
}

func (g *Gateway) GPUJobSubmit(ctx context.Context, req execengine.GPUJobSubmitRequest) (execengine.GPUJobSnapshot, error) {
	job, err := g.scheduler.Submit(gpuscheduler.SubmitRequest{
		Resources:   req.Resources,
		MaxAttempts: req.MaxAttempts,
		Exec: gpuscheduler.ExecSpec{
			Command:          req.Command,
			Cwd:              req.Cwd,
			Env:              req.Env,
			CommandTimeoutMs: req.CommandTimeoutMS,
			InvokeTimeoutMs:  req.InvokeTimeoutMS,
		},
	})
	if err != nil {
		return execengine.GPUJobSnapshot{}, err
	}
	return snapshotFromJob(job), nil
}

func (g *Gateway) GPUJobWait(ctx context.Context, jobID string, timeoutMS int64) (execengine.GPUJobSnapshot, bool, error) {
	job, done, err := g.scheduler.Wait(ctx, jobID, time.Duration(timeoutMS)*time.Millisecond)
	if err != nil {
		return execengine.GPUJobSnapshot{}, false, err
	}
	return snapshotFromJob(job), done, nil
}

func (g *Gateway) GPUJobCancel(ctx context.Context, jobID string) error {
	return g.scheduler.Cancel(jobID)
}

func snapshotFromJob(job *gpuscheduler.Job) execengine.GPUJobSnapshot {
	snap := execengine.GPUJobSnapshot{JobID: job.JobID, State: string(job.State)}
	if job.Result != nil {
		snap.TimedOut = job.Result.TimedOut
		snap.Error = job.Result.Error
		if job.Result.ExitCode != 0 || job.Result.OK {
			ec := job.Result.ExitCode
			snap.ExitCode = &ec
		}
	}
	if len(job.Attempts) > 0 {
		last := job.Attempts[len(job.Attempts)-1]
		snap.StdoutTail = last.StdoutTail
		snap.StderrTail = last.StderrTail
	}
	return snap
}

func jobToJSON(job *gpuscheduler.Job) map[string]any {
	return map[string]any{"job": job}
}

func nodeInfoToJSON(sessions []noderegistry.Session, now time.Time) map[string]any {
	nodes := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		nodes = append(nodes, map[string]any{
			"nodeId":        s.NodeID,
			"displayName":   s.DisplayName,
			"caps":          s.Caps,
			"commands":      s.Commands,
			"resources":     s.Resources,
			"connected":     true,
			"connectedAtMs": s.ConnectedAtMS,
		})
	}
	return map[string]any{"ts": now.UnixMilli(), "nodes": nodes}
}
