package sandbox

import (
	"context"
	"time"

	"github.com/danshapiro/openclaw/internal/execengine"
)

// PlanSandbox binds a Runner to one plan/agent pair and adapts it to
// execengine.Sandbox's (ctx, workdir, commands, env, timeout) shape. This is
// the only file in the package that imports execengine; Runner itself stays
// free of that dependency so it can be reused outside the execute engine
// (e.g. a future interactive debug shell into a plan's container).
type PlanSandbox struct {
	runner   *Runner
	planID   string
	agentID  string
	planRoot string
}

// NewPlanSandbox returns a PlanSandbox for one plan's execution.
func NewPlanSandbox(runner *Runner, planID, agentID, planRoot string) *PlanSandbox {
	return &PlanSandbox{runner: runner, planID: planID, agentID: agentID, planRoot: planRoot}
}

// Run satisfies execengine.Sandbox.
func (p *PlanSandbox) Run(ctx context.Context, workdir string, commands []string, env map[string]string, timeout time.Duration) (execengine.CommandResult, error) {
	res, err := p.runner.Run(ctx, p.planID, p.agentID, p.planRoot, workdir, commands, env, timeout)
	if err != nil {
		return execengine.CommandResult{}, err
	}
	return execengine.CommandResult{Stdout: res.Stdout, Stderr: res.Stderr, ExitCode: res.ExitCode, TimedOut: res.Killed}, nil
}
