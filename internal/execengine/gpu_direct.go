package execengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

// runGPUNodeViaGateway waits for an eligible connected worker and invokes
// system.run on it directly. Used when the caller pinned a specific
// DirectGPUNodeID instead of letting the scheduler pick a worker.
func (e *Engine) runGPUNodeViaGateway(ctx context.Context, node *planmodel.Node) (CommandResult, error) {
	deadline := time.Now().Add(e.opts.GPUWaitTimeout)
	var chosen NodeInfo
	for {
		nodes, err := e.opts.Gateway.NodeList(ctx)
		if err != nil {
			return CommandResult{}, fmt.Errorf("node.list: %w", err)
		}
		if n, ok := pickEligibleNode(nodes, node, e.opts.DirectGPUNodeID); ok {
			chosen = n
			break
		}
		if time.Now().After(deadline) {
			return CommandResult{}, fmt.Errorf("no eligible gpu node connected within %s", e.opts.GPUWaitTimeout)
		}
		select {
		case <-ctx.Done():
			return CommandResult{}, ctx.Err()
		case <-time.After(defaultGPUWaitPollMS * time.Millisecond):
		}
	}

	params := map[string]any{
		"command": node.Commands,
		"cwd":     e.resolveWorkdir(node),
		"env":     node.Env,
	}
	res, err := e.opts.Gateway.NodeInvoke(ctx, chosen.NodeID, invokeCommand, params, millis(e.commandTimeout(node)))
	if err != nil {
		return CommandResult{}, err
	}
	if !res.OK {
		return CommandResult{}, fmt.Errorf("node.invoke failed: %s", res.Error)
	}
	return commandResultFromPayload(res.Payload), nil
}

// pickEligibleNode filters node.list by the invoke command the execute
// engine needs (system.run), the node's required gpu resources, and an
// optional exact node id / gpu type + minimum memory.
func pickEligibleNode(nodes []NodeInfo, node *planmodel.Node, pinnedNodeID string) (NodeInfo, bool) {
	required := 1
	var requiredType string
	var requiredMemGB float64
	if node.Resources != nil {
		if node.Resources.GPUCount > 0 {
			required = node.Resources.GPUCount
		}
		requiredType = node.Resources.GPUType
		requiredMemGB = node.Resources.GPUMemGB
	}

	for _, n := range nodes {
		if !n.Connected {
			continue
		}
		if pinnedNodeID != "" && n.NodeID != pinnedNodeID {
			continue
		}
		if !hasCommand(n.Commands, invokeCommand) {
			continue
		}
		if n.Resources.GPUCount < required {
			continue
		}
		if requiredType != "" && !strings.EqualFold(n.Resources.GPUType, requiredType) {
			continue
		}
		if requiredMemGB > 0 && n.Resources.GPUMemGB < requiredMemGB {
			continue
		}
		return n, true
	}
	return NodeInfo{}, false
}

func hasCommand(commands []string, want string) bool {
	for _, c := range commands {
		if c == want {
			return true
		}
	}
	return false
}

func commandResultFromPayload(payload map[string]any) CommandResult {
	res := CommandResult{}
	if v, ok := payload["stdout"].(string); ok {
		res.Stdout = v
	}
	if v, ok := payload["stderr"].(string); ok {
		res.Stderr = v
	}
	if v, ok := payload["exitCode"].(float64); ok {
		res.ExitCode = int(v)
	}
	if v, ok := payload["timedOut"].(bool); ok {
		res.TimedOut = v
	}
	return res
}
