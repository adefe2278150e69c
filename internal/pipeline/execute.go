package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/danshapiro/openclaw/internal/accept"
	"github.com/danshapiro/openclaw/internal/execengine"
	"github.com/danshapiro/openclaw/internal/planmodel"
	"github.com/danshapiro/openclaw/internal/repair"
)

// runExecute implements spec.md §4.9's execute mode: validate with
// strictResume=true, an optional bootstrap command list, then
// execute -> finalize -> accept.
func runExecute(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{Mode: ModeExecute, PlanID: filepath.Base(opts.PlanDir), PlanDir: opts.PlanDir, OK: true}
	layout := planmodel.NewLayout(opts.PlanDir)

	dag, vr, err := validatePlan(layout, true)
	res.record("validate", err == nil, err, vr)
	if err != nil {
		return res, fmt.Errorf("validate: %w", err)
	}

	if opts.EnableBootstrap && len(opts.BootstrapCommands) > 0 {
		result, err := opts.Sandbox.Run(ctx, opts.PlanDir, opts.BootstrapCommands, nil, 0)
		ok := err == nil && !result.TimedOut && result.ExitCode == 0
		res.record("bootstrap", ok, err, result)
		if err != nil {
			return res, fmt.Errorf("bootstrap: %w", err)
		}
		if !ok {
			return res, fmt.Errorf("bootstrap exited %d", result.ExitCode)
		}
	}

	var retrySpec planmodel.RetrySpec
	retryBytes, err := os.ReadFile(layout.PlanRetry())
	if err != nil {
		res.record("execute", false, err, nil)
		return res, fmt.Errorf("read retry spec: %w", err)
	}
	if err := json.Unmarshal(retryBytes, &retrySpec); err != nil {
		res.record("execute", false, err, nil)
		return res, fmt.Errorf("parse retry spec: %w", err)
	}

	var repairHook execengine.RepairHook
	if opts.Completer != nil {
		repairHook = repair.New(layout, opts.PlanDir, opts.Completer, opts.Provider, opts.Model)
	}

	engine := execengine.New(execengine.Options{
		RunID:             res.PlanID,
		Layout:            layout,
		DAG:               dag,
		RetrySpec:         &retrySpec,
		Sandbox:           opts.Sandbox,
		Gateway:           opts.Gateway,
		Repair:            repairHook,
		MaxRepairAttempts: opts.MaxRepairAttempts,
		DirectGPUNodeID:   opts.DirectGPUNodeID,
		GPUWaitTimeout:    opts.GPUWaitTimeout,
	})
	executeLog, err := engine.Run(ctx)
	res.record("execute", err == nil, err, executeLog)
	if err != nil {
		return res, fmt.Errorf("execute: %w", err)
	}

	finalizeResult, err := finalizeRun(layout)
	res.record("finalize", err == nil, err, finalizeResult)
	if err != nil {
		return res, fmt.Errorf("finalize: %w", err)
	}

	acceptOpts := accept.Options{BaselinePath: opts.BaselinePath, Now: opts.Now}
	report, err := accept.AcceptProposalResults(opts.PlanDir, acceptOpts)
	ok := err == nil && report != nil && report.Status == accept.StatusPass
	res.record("accept", ok, err, report)
	if err != nil {
		return res, fmt.Errorf("accept: %w", err)
	}

	return res, nil
}
