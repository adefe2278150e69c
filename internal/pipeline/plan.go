package pipeline

import (
	"context"
	"fmt"

	"github.com/danshapiro/openclaw/internal/compiler"
	"github.com/danshapiro/openclaw/internal/credentials"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

// runPlan implements spec.md §4.9's plan mode: compile, validate, run the
// safe node-type subset, optionally refine, then re-validate. The two
// validate calls both run with strictResume=false — a plan isn't required
// to be resume-safe until execute mode's pre-execute check, which is the
// only strictResume=true validation in the system.
func runPlan(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{Mode: ModePlan, OK: true}

	compileResult, err := compiler.Compile(ctx, opts.Proposal, compiler.Options{
		WorkspaceDir: opts.WorkspaceDir,
		Discovery:    opts.Discovery,
		Completer:    opts.Completer,
		Provider:     opts.Provider,
		Model:        opts.Model,
		AgentID:      opts.AgentID,
		Now:          opts.Now,
	})
	res.record("compile", compileResult != nil && compileResult.OK, err, compileResult)
	if err != nil {
		return res, err
	}
	res.PlanID = compileResult.PlanID
	res.PlanDir = compileResult.RootDir
	if !compileResult.OK {
		return res, fmt.Errorf("compile did not succeed")
	}

	layout := planmodel.NewLayout(res.PlanDir)

	dag, vr, err := validatePlan(layout, false)
	res.record("validate", err == nil, err, vr)
	if err != nil {
		return res, fmt.Errorf("validate: %w", err)
	}

	safeResult, err := runSafeSubset(ctx, vr.Order, dag, opts.Sandbox, res.PlanDir, credentials.Resolve())
	res.record("run_safe", err == nil, err, safeResult)
	if err != nil {
		return res, fmt.Errorf("run-safe: %w", err)
	}

	if opts.refineEnabled() {
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
	}

	return res, nil
}
