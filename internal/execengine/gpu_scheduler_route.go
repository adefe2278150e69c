package execengine

import (
	"context"
	"fmt"
	"time"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

// runGPUNodeViaScheduler submits a single-attempt gpu.job (the execute
// engine does its own retries at the node level) and polls gpu.job.wait in
// bounded slices until the job reaches a terminal state or the overall
// deadline elapses, per the scheduler GPU path's timeout formula.
func (e *Engine) runGPUNodeViaScheduler(ctx context.Context, node *planmodel.Node) (CommandResult, error) {
	commandTimeout := e.commandTimeout(node)
	invokeTimeout := e.opts.GPUWaitTimeout

	req := GPUJobSubmitRequest{
		Command:          node.Commands,
		Cwd:              e.resolveWorkdir(node),
		Env:              node.Env,
		CommandTimeoutMS: millis(commandTimeout),
		InvokeTimeoutMS:  millis(invokeTimeout),
		MaxAttempts:      1,
	}
	if node.Resources != nil {
		req.Resources = *node.Resources
	} else {
		req.Resources = planmodel.Resources{GPUCount: 1}
	}

	job, err := e.opts.Gateway.GPUJobSubmit(ctx, req)
	if err != nil {
		return CommandResult{}, fmt.Errorf("gpu.job.submit: %w", err)
	}

	deadline := time.Now().Add(invokeTimeout + commandTimeout + 60*time.Second)
	const pollSlice = 15 * time.Second

	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			_ = e.opts.Gateway.GPUJobCancel(ctx, job.JobID)
			return CommandResult{}, fmt.Errorf("gpu job %s timed out waiting for completion", job.JobID)
		}
		wait := pollSlice
		if remaining < wait {
			wait = remaining
		}
		snapshot, done, err := e.opts.Gateway.GPUJobWait(ctx, job.JobID, millis(wait))
		if err != nil {
			return CommandResult{}, fmt.Errorf("gpu.job.wait: %w", err)
		}
		if done && snapshot.Terminal() {
			return commandResultFromSnapshot(snapshot), nil
		}
		select {
		case <-ctx.Done():
			_ = e.opts.Gateway.GPUJobCancel(ctx, job.JobID)
			return CommandResult{}, ctx.Err()
		default:
		}
	}
}

func commandResultFromSnapshot(s GPUJobSnapshot) CommandResult {
	res := CommandResult{
		Stdout:   s.StdoutTail,
		Stderr:   s.StderrTail,
		TimedOut: s.TimedOut,
	}
	if s.ExitCode != nil {
		res.ExitCode = *s.ExitCode
	} else if s.State != "succeeded" {
		res.ExitCode = 1
	}
	if s.Error != "" {
		res.Stderr = s.Error + "\n" + res.Stderr
	}
	return res
}
