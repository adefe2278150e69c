// Package execengine drives a plan's DAG to completion: topological
// scheduling, routing each node to the sandbox or a GPU worker, per-attempt
// retry/backoff, optional repair-hook invocation between attempts, and
// writing report/execute_log.json + report/execute_summary.md.
package execengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danshapiro/openclaw/internal/dagengine"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

// Sandbox is the execute engine's view of the sandbox runner (C5): run a
// node's commands to completion or timeout inside the plan's container.
type Sandbox interface {
	Run(ctx context.Context, workdir string, commands []string, env map[string]string, timeout time.Duration) (CommandResult, error)
}

// RepairHook is invoked between attempts on a classified failure. BeginRepair
// extracts and applies a patch, recording before-evidence, and reports
// whether a patch was applied. FinalizeRepair is called with the next
// attempt's outcome (status is one of rerun_ok, rerun_failed, or
// applied_only if the loop ended before a rerun occurred) to write
// after-evidence and the evidence record.
type RepairHook interface {
	BeginRepair(ctx context.Context, nodeID string, attempt int, stdout, stderr string) (applied bool, err error)
	FinalizeRepair(ctx context.Context, nodeID string, attempt int, status string, stdout, stderr string) error
}

const (
	maxLogTailChars      = 1200
	defaultGPUWaitPollMS = 1000
)

// Options configures one Engine.Run invocation.
type Options struct {
	RunID              string
	Layout             planmodel.Layout
	DAG                *planmodel.PlanDAG
	RetrySpec          *planmodel.RetrySpec
	Sandbox            Sandbox
	Gateway            GatewayCall
	Repair             RepairHook // optional
	MaxRepairAttempts  int        // default 1
	CallerMaxAttempts  int        // 0 = no extra cap beyond policy.MaxAttempts
	DirectGPUNodeID    string     // if set, GPU nodes use the direct invoke path
	GPUWaitTimeout     time.Duration
}

// Engine executes a plan's DAG once.
type Engine struct {
	opts    Options
	results []NodeResult
	// repairBudget tracks remaining repair attempts per node.
	repairBudget map[string]int
	// pendingRepair maps a node id to the attempt number a repair was applied
	// after, for nodes whose repair has not yet been evaluated against a rerun.
	pendingRepair map[string]int
	progress      *progressWriter
}

func New(opts Options) *Engine {
	if opts.MaxRepairAttempts <= 0 {
		opts.MaxRepairAttempts = 1
	}
	if opts.GPUWaitTimeout <= 0 {
		opts.GPUWaitTimeout = 15 * time.Second
	}
	var progressPath string
	if opts.Layout.Root != "" {
		progressPath = opts.Layout.Progress()
	}
	return &Engine{
		opts:          opts,
		repairBudget:  map[string]int{},
		pendingRepair: map[string]int{},
		progress:      newProgressWriter(progressPath, nil),
	}
}

// Run executes every node in topological order and writes the execute log.
func (e *Engine) Run(ctx context.Context) (*ExecuteLog, error) {
	order, err := dagengine.ValidateDAG(e.opts.DAG)
	if err != nil {
		return nil, fmt.Errorf("execute: dag invalid: %w", err)
	}

	skippedUpstream := map[string]bool{}
	for _, id := range order {
		node := e.opts.DAG.NodeByID(id)
		if node == nil {
			continue
		}
		if skippedUpstream[id] {
			e.results = append(e.results, NodeResult{
				NodeID: id, Type: node.Type, Tool: string(node.Tool),
				Status: "skipped", Executor: "upstream_failed",
			})
			e.propagateSkip(id, skippedUpstream)
			continue
		}
		result := e.runNode(ctx, node)
		e.results = append(e.results, result)
		if result.Status == "failed" {
			e.propagateSkip(id, skippedUpstream)
		}
	}

	log := &ExecuteLog{Results: e.results}
	if err := e.writeExecuteLog(log); err != nil {
		return log, err
	}
	if err := e.writeExecuteSummary(log); err != nil {
		return log, err
	}
	return log, nil
}

func (e *Engine) propagateSkip(id string, skipped map[string]bool) {
	for _, edge := range e.opts.DAG.Edges {
		if edge.From == id {
			skipped[edge.To] = true
		}
	}
}

func (e *Engine) runNode(ctx context.Context, node *planmodel.Node) NodeResult {
	result := NodeResult{NodeID: node.ID, Type: node.Type, Tool: string(node.Tool)}

	if node.Skipped() {
		result.Status = "skipped"
		result.Executor = "manual"
		return result
	}

	switch {
	case node.IsGPUNode():
		result.Executor = "gpu"
	default:
		result.Executor = "sandbox"
	}

	policy := e.opts.RetrySpec.PolicyByID(node.RetryPolicyID)
	maxAttempts := policy.MaxAttempts
	if e.opts.CallerMaxAttempts > 0 && e.opts.CallerMaxAttempts < maxAttempts {
		maxAttempts = e.opts.CallerMaxAttempts
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		e.progress.attemptStart(node.ID, attempt, maxAttempts)
		start := time.Now()
		var cmdResult CommandResult
		var err error

		switch {
		case node.IsGPUNode() && e.opts.DirectGPUNodeID != "":
			cmdResult, err = e.runGPUNodeViaGateway(ctx, node)
		case node.IsGPUNode():
			cmdResult, err = e.runGPUNodeViaScheduler(ctx, node)
		default:
			cmdResult, err = e.runCPUShellNode(ctx, node)
		}

		rec := AttemptRecord{Attempt: attempt, DurationMS: time.Since(start).Milliseconds()}
		if err != nil {
			rec.OK = false
			rec.Error = err.Error()
			rec.StderrTail = tail(err.Error(), maxLogTailChars)
		} else {
			rec.OK = cmdResult.ExitCode == 0 && !cmdResult.TimedOut
			code := cmdResult.ExitCode
			rec.ExitCode = &code
			rec.TimedOut = cmdResult.TimedOut
			rec.StdoutTail = tail(cmdResult.Stdout, maxLogTailChars)
			rec.StderrTail = tail(cmdResult.Stderr, maxLogTailChars)
		}

		if rec.OK {
			e.progress.attemptEnd(node.ID, "success", attempt, maxAttempts)
			if pendingAttempt, ok := e.pendingRepair[node.ID]; ok {
				_ = e.opts.Repair.FinalizeRepair(ctx, node.ID, pendingAttempt, "rerun_ok", cmdResult.Stdout, cmdResult.Stderr)
				delete(e.pendingRepair, node.ID)
			}
			result.Attempts = append(result.Attempts, rec)
			result.Status = "ok"
			return result
		}
		e.progress.attemptEnd(node.ID, "fail", attempt, maxAttempts)

		classification := ClassifyFailure(e.opts.RetrySpec, policy, cmdResult.Stdout, cmdResult.Stderr)
		rec.Category = string(classification.Category)
		if pendingAttempt, ok := e.pendingRepair[node.ID]; ok {
			_ = e.opts.Repair.FinalizeRepair(ctx, node.ID, pendingAttempt, "rerun_failed", cmdResult.Stdout, cmdResult.Stderr)
			delete(e.pendingRepair, node.ID)
		}
		result.Attempts = append(result.Attempts, rec)

		shouldRepair := e.opts.Repair != nil &&
			classification.Category != planmodel.CategoryNetwork &&
			classification.Category != planmodel.CategoryRateLimit &&
			e.repairBudget[node.ID] < e.opts.MaxRepairAttempts &&
			attempt < maxAttempts
		if shouldRepair {
			applied, rerr := e.opts.Repair.BeginRepair(ctx, node.ID, attempt, cmdResult.Stdout, cmdResult.Stderr)
			if rerr == nil && applied {
				e.repairBudget[node.ID]++
				result.Attempts[len(result.Attempts)-1].RepairApplied = true
				e.pendingRepair[node.ID] = attempt
			}
		}

		if attempt < maxAttempts {
			delay := DelayForNodeAttempt(e.opts.RunID, node.ID, attempt, policy)
			select {
			case <-ctx.Done():
				result.Status = "failed"
				return result
			case <-time.After(delay):
			}
		}
	}

	result.Status = "failed"
	if pendingAttempt, ok := e.pendingRepair[node.ID]; ok {
		// Loop exited with a repair applied but never rerun: finalize as
		// applied_only per the repair evidence lifecycle.
		_ = e.opts.Repair.FinalizeRepair(ctx, node.ID, pendingAttempt, "applied_only", "", "")
		delete(e.pendingRepair, node.ID)
	}
	return result
}

func (e *Engine) runCPUShellNode(ctx context.Context, node *planmodel.Node) (CommandResult, error) {
	workdir := e.resolveWorkdir(node)
	script := "set -e\n" + strings.Join(node.Commands, "\n") + "\n"
	return e.opts.Sandbox.Run(ctx, workdir, []string{script}, node.Env, e.commandTimeout(node))
}

func (e *Engine) resolveWorkdir(node *planmodel.Node) string {
	for _, in := range node.Inputs {
		if strings.HasPrefix(in, "cache/git/") {
			return filepath.Join(e.opts.Layout.Root, in)
		}
	}
	return e.opts.Layout.Root
}

func (e *Engine) commandTimeout(node *planmodel.Node) time.Duration {
	if node.Resources != nil && node.Resources.EstimatedMinutes > 0 {
		return time.Duration(node.Resources.EstimatedMinutes*3) * time.Minute
	}
	return 30 * time.Minute
}

func tail(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}

func (e *Engine) writeExecuteLog(log *ExecuteLog) error {
	return writeJSONFile(e.opts.Layout.ExecuteLog(), log)
}

func (e *Engine) writeExecuteSummary(log *ExecuteLog) error {
	var b strings.Builder
	b.WriteString("# Execute Summary\n\n")
	for _, r := range log.Results {
		fmt.Fprintf(&b, "- **%s** (%s): %s after %d attempt(s)\n", r.NodeID, r.Type, r.Status, len(r.Attempts))
	}
	return os.WriteFile(e.opts.Layout.ExecuteSummary(), []byte(b.String()), 0o644)
}
