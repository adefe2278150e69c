package pipeline

import (
	"context"
	"fmt"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

// Run dispatches to the stage sequence opts.Mode names. It is the
// orchestrator's only exported entrypoint.
func Run(ctx context.Context, opts Options) (*Result, error) {
	switch opts.Mode {
	case ModePlan:
		return runPlan(ctx, opts)
	case ModeExecute:
		return runExecute(ctx, opts)
	case ModePipeline:
		return runPipeline(ctx, opts)
	default:
		return nil, fmt.Errorf("pipeline: unknown mode %q", opts.Mode)
	}
}

// runPipeline runs plan mode to completion, then feeds its plan dir into
// execute mode. The first stage that fails terminates the whole sequence;
// plan mode's own stage failures are reported without ever reaching execute.
func runPipeline(ctx context.Context, opts Options) (*Result, error) {
	planOpts := opts
	planOpts.Mode = ModePlan
	planRes, err := runPlan(ctx, planOpts)
	if planRes == nil {
		planRes = &Result{Mode: ModePipeline}
	}
	planRes.Mode = ModePipeline
	if err != nil || !planRes.OK {
		return planRes, err
	}

	executeOpts := opts
	executeOpts.Mode = ModeExecute
	executeOpts.PlanDir = planRes.PlanDir
	executeRes, err := runExecute(ctx, executeOpts)

	combined := &Result{
		Mode:    ModePipeline,
		PlanID:  planRes.PlanID,
		PlanDir: planRes.PlanDir,
		OK:      true,
	}
	combined.Stages = append(combined.Stages, planRes.Stages...)
	if executeRes != nil {
		combined.Stages = append(combined.Stages, executeRes.Stages...)
		if !executeRes.OK {
			combined.OK = false
		}
	}
	if err != nil {
		combined.OK = false
	}
	return combined, err
}

// Refine runs the refine stage against an already-compiled plan directory,
// re-validating (strictResume=false) afterwards. It exists so a caller that
// already has a plan dir (the gateway's proposal.refine RPC, in particular)
// doesn't need to re-run compile to reach this one stage.
func Refine(planDir string) (*Result, error) {
	res := &Result{Mode: "refine", PlanDir: planDir, OK: true}
	layout := planmodel.NewLayout(planDir)

	dag, vr, err := validatePlan(layout, false)
	res.record("validate", err == nil, err, vr)
	if err != nil {
		return res, fmt.Errorf("validate: %w", err)
	}

	refineResult, err := refinePlan(layout, dag)
	res.record("refine", err == nil, err, refineResult)
	if err != nil {
		return res, fmt.Errorf("refine: %w", err)
	}

	_, vr, err = validatePlan(layout, false)
	res.record("validate_post_refine", err == nil, err, vr)
	if err != nil {
		return res, fmt.Errorf("validate after refine: %w", err)
	}
	return res, nil
}

// Finalize runs the finalize stage against an already-executed plan
// directory, for the gateway's proposal.finalize RPC.
func Finalize(planDir string) (*Result, error) {
	res := &Result{Mode: "finalize", PlanDir: planDir, OK: true}
	layout := planmodel.NewLayout(planDir)

	finalizeResult, err := finalizeRun(layout)
	res.record("finalize", err == nil, err, finalizeResult)
	if err != nil {
		return res, fmt.Errorf("finalize: %w", err)
	}
	return res, nil
}
