package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/danshapiro/openclaw/internal/accept"
	"github.com/danshapiro/openclaw/internal/compiler"
	"github.com/danshapiro/openclaw/internal/gpuscheduler"
	"github.com/danshapiro/openclaw/internal/pipeline"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

// Dispatch is the gateway.Dispatch(method, params) seam spec.md §1 refers
// to: it looks up method in the RPC table and runs its handler, wrapping
// any non-*Error failure into UNAVAILABLE per spec.md §7's gateway
// propagation policy.
func (g *Gateway) Dispatch(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	h, ok := g.methods[method]
	if !ok {
		return nil, invalidRequest(fmt.Sprintf("unknown method %q", method))
	}
	result, err := h(ctx, g, params)
	if err != nil {
		if gwErr, ok := err.(*Error); ok {
			return nil, gwErr
		}
		return nil, unavailable(err.Error())
	}
	return json.Marshal(result)
}

func decode[T any](params []byte) (T, error) {
	var v T
	if len(params) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(params, &v); err != nil {
		return v, invalidRequest(fmt.Sprintf("invalid params: %v", err))
	}
	return v, nil
}

func handleNodeList(ctx context.Context, g *Gateway, params []byte) (any, error) {
	return nodeInfoToJSON(g.registry.List(), time.Now()), nil
}

func handleNodeInvoke(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[nodeInvokeRequest](params)
	if err != nil {
		return nil, err
	}
	if req.NodeID == "" || req.Command == "" {
		return nil, invalidRequest("nodeId and command are required")
	}
	timeout := time.Duration(req.TimeoutMS) * time.Millisecond
	res, err := g.registry.Invoke(ctx, g.transport, req.NodeID, req.Command, req.Params, timeout)
	if err != nil {
		return nil, classifyInvokeErr(err)
	}
	return map[string]any{"ok": res.OK, "payload": res.Payload}, nil
}

func handleGPUJobSubmit(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[gpuJobSubmitRequest](params)
	if err != nil {
		return nil, err
	}
	job, err := g.scheduler.Submit(gpuscheduler.SubmitRequest{
		Resources: toResources(req.Resources),
		Exec:      toExecSpec(req.Exec),
		MaxAttempts: req.MaxAttempts,
		Policy:      toPolicy(req.Policy),
	})
	if err != nil {
		return nil, invalidRequest(err.Error())
	}
	return jobToJSON(job), nil
}

func handleGPUJobGet(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[jobIDRequest](params)
	if err != nil {
		return nil, err
	}
	job, err := g.scheduler.Get(req.JobID)
	if err != nil {
		return nil, invalidRequest(err.Error())
	}
	return jobToJSON(job), nil
}

func handleGPUJobList(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[gpuJobListRequest](params)
	if err != nil {
		return nil, err
	}
	jobs := g.scheduler.List(gpuscheduler.JobState(req.State))
	return map[string]any{"jobs": jobs}, nil
}

func handleGPUJobCancel(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[jobIDRequest](params)
	if err != nil {
		return nil, err
	}
	if err := g.scheduler.Cancel(req.JobID); err != nil {
		return nil, invalidRequest(err.Error())
	}
	return map[string]any{"ok": true}, nil
}

func handleGPUJobPause(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[jobIDRequest](params)
	if err != nil {
		return nil, err
	}
	if err := g.scheduler.Pause(req.JobID); err != nil {
		return nil, invalidRequest(err.Error())
	}
	return map[string]any{"ok": true}, nil
}

func handleGPUJobResume(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[jobIDRequest](params)
	if err != nil {
		return nil, err
	}
	if err := g.scheduler.Resume(req.JobID); err != nil {
		return nil, invalidRequest(err.Error())
	}
	return map[string]any{"ok": true}, nil
}

func handleGPUJobWait(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[gpuJobWaitRequest](params)
	if err != nil {
		return nil, err
	}
	// An omitted timeoutMs defaults to 30 s; an explicit 0 is a zero-length
	// poll, so presence is read from the raw params.
	timeoutMS := req.TimeoutMS
	var fields map[string]json.RawMessage
	_ = json.Unmarshal(params, &fields)
	if _, present := fields["timeoutMs"]; !present {
		timeoutMS = 30_000
	}
	job, done, err := g.scheduler.Wait(ctx, req.JobID, time.Duration(timeoutMS)*time.Millisecond)
	if err != nil {
		return nil, invalidRequest(err.Error())
	}
	return map[string]any{"done": done, "job": job}, nil
}

func handleProposalCompile(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[proposalCompileRequest](params)
	if err != nil {
		return nil, err
	}
	if req.Proposal == "" || req.WorkspaceDir == "" {
		return nil, invalidRequest("proposal and workspaceDir are required")
	}
	res, err := compiler.Compile(ctx, req.Proposal, compiler.Options{
		WorkspaceDir: req.WorkspaceDir,
		Discovery:    compiler.DiscoveryMode(req.Discovery),
	})
	if err != nil {
		return nil, invalidRequest(err.Error())
	}
	return res, nil
}

func handleProposalRun(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[proposalCompileRequest](params)
	if err != nil {
		return nil, err
	}
	res, err := pipeline.Run(ctx, pipeline.Options{
		Mode:         pipeline.ModePlan,
		Proposal:     req.Proposal,
		WorkspaceDir: req.WorkspaceDir,
		Discovery:    compiler.DiscoveryMode(req.Discovery),
		Sandbox:      g.sandbox,
	})
	if err != nil {
		return nil, invalidRequest(err.Error())
	}
	return res, nil
}

func handleProposalRefine(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[planDirRequest](params)
	if err != nil {
		return nil, err
	}
	if req.PlanDir == "" {
		return nil, invalidRequest("planDir is required")
	}
	res, err := pipeline.Refine(req.PlanDir)
	if err != nil {
		return nil, invalidRequest(err.Error())
	}
	return res, nil
}

func handleProposalExecute(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[planDirRequest](params)
	if err != nil {
		return nil, err
	}
	if req.PlanDir == "" {
		return nil, invalidRequest("planDir is required")
	}
	res, err := pipeline.Run(ctx, pipeline.Options{
		Mode:            pipeline.ModeExecute,
		PlanDir:         req.PlanDir,
		Sandbox:         g.sandbox,
		Gateway:         g,
		DirectGPUNodeID: "",
	})
	if err != nil {
		return nil, invalidRequest(err.Error())
	}
	return res, nil
}

func handleProposalFinalize(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[planDirRequest](params)
	if err != nil {
		return nil, err
	}
	if req.PlanDir == "" {
		return nil, invalidRequest("planDir is required")
	}
	res, err := pipeline.Finalize(req.PlanDir)
	if err != nil {
		return nil, invalidRequest(err.Error())
	}
	return res, nil
}

func handleProposalAccept(ctx context.Context, g *Gateway, params []byte) (any, error) {
	req, err := decode[planDirRequest](params)
	if err != nil {
		return nil, err
	}
	if req.PlanDir == "" {
		return nil, invalidRequest("planDir is required")
	}
	report, err := accept.AcceptProposalResults(req.PlanDir, accept.Options{})
	if err != nil {
		return nil, invalidRequest(err.Error())
	}
	return report, nil
}

func classifyInvokeErr(err error) error {
	switch err.Error() {
	case "NOT_CONNECTED":
		return &Error{Code: CodeNotConnected, Message: "node is not connected"}
	case "TIMEOUT":
		return &Error{Code: CodeTimeout, Message: "invoke timed out"}
	default:
		return unavailable(err.Error())
	}
}

func toResources(r resourcesJSON) planmodel.Resources {
	return planmodel.Resources{
		GPUCount: r.GPUCount,
		GPUMemGB: r.GPUMemGB,
		CPUCores: r.CPUCores,
		RAMGB:    r.RAMGB,
	}
}

func toExecSpec(e execSpecJSON) gpuscheduler.ExecSpec {
	return gpuscheduler.ExecSpec{
		Command:          e.Command,
		Cwd:              e.Cwd,
		Env:              e.Env,
		CommandTimeoutMs: e.CommandTimeoutMS,
		InvokeTimeoutMs:  e.InvokeTimeoutMS,
		Approved:         e.Approved,
		ApprovalDecision: e.ApprovalDecision,
	}
}

func toPolicy(p policyJSON) gpuscheduler.Policy {
	windows := make([]gpuscheduler.TimeWindow, 0, len(p.Windows))
	for _, w := range p.Windows {
		windows = append(windows, gpuscheduler.TimeWindow{Days: w.Days, Start: w.Start, End: w.End, TZ: w.TZ})
	}
	return gpuscheduler.Policy{AutoPause: p.AutoPause, AutoResume: p.AutoResume, Windows: windows}
}
