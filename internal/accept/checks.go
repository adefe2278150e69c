package accept

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/danshapiro/openclaw/internal/execengine"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

// evalContext bundles everything a check needs to resolve itself, mirroring
// the teacher's cond.Evaluate(outcome, ctx) split of "what happened" from
// "what can a clause reference".
type evalContext struct {
	planRoot string
	metrics  map[string]any
	log      execengine.ExecuteLog
	approved ManualApprovals
}

// evaluateCheck resolves one AcceptanceCheck to a CheckResult. It never
// returns an error: an unevaluable check resolves to fail or needs_confirm,
// per spec.md's explicit missing-data rules, so the whole run can always
// produce a report.
func evaluateCheck(c planmodel.AcceptanceCheck, ctx evalContext) CheckResult {
	res := CheckResult{ID: c.ID, Type: c.Type, Selector: c.Selector}

	var status Status
	switch c.Type {
	case planmodel.CheckArtifactExists:
		status, res.Detail = evalArtifactExists(c, ctx)
	case planmodel.CheckMetricThreshold:
		status, res.Actual, res.Expected, res.Detail = evalMetricThreshold(c, ctx)
	case planmodel.CheckCommandExitCode:
		status, res.Actual, res.Expected, res.Detail = evalCommandExitCode(c, ctx)
	case planmodel.CheckManualApproval:
		status, res.Detail = evalManualApproval(c, ctx)
	default:
		status, res.Detail = StatusFail, fmt.Sprintf("unknown check type %q", c.Type)
	}

	// A pass on a needs_confirm check is always downgraded, never the
	// other direction: needs_confirm/fail stand regardless of the flag.
	if status == StatusPass && c.NeedsConfirm {
		status = StatusNeedsConfirm
	}
	res.Status = status
	return res
}

func evalArtifactExists(c planmodel.AcceptanceCheck, ctx evalContext) (Status, string) {
	if c.Selector == "" {
		return StatusFail, "artifact_exists check has no selector"
	}
	path := filepath.Join(ctx.planRoot, c.Selector)
	if _, err := os.Stat(path); err != nil {
		return StatusFail, fmt.Sprintf("artifact %q not found", c.Selector)
	}
	return StatusPass, ""
}

func evalMetricThreshold(c planmodel.AcceptanceCheck, ctx evalContext) (Status, any, any, string) {
	actual, ok := ctx.metrics[c.Selector]
	if !ok {
		if c.NeedsConfirm {
			return StatusNeedsConfirm, nil, c.Value, fmt.Sprintf("metric %q missing", c.Selector)
		}
		return StatusFail, nil, c.Value, fmt.Sprintf("metric %q missing", c.Selector)
	}
	if c.Value == nil {
		return StatusNeedsConfirm, actual, nil, "check has no expected value"
	}

	actualNum, actualIsNum := asFloat(actual)
	expectedNum, expectedIsNum := asFloat(c.Value)
	if actualIsNum && expectedIsNum {
		ok, err := compareNumeric(actualNum, expectedNum, c.Op)
		if err != nil {
			return StatusFail, actual, c.Value, err.Error()
		}
		if ok {
			return StatusPass, actual, c.Value, ""
		}
		return StatusFail, actual, c.Value, fmt.Sprintf("%v %s %v is false", actual, c.Op, c.Value)
	}

	actualStr := fmt.Sprintf("%v", actual)
	expectedStr := fmt.Sprintf("%v", c.Value)
	switch c.Op {
	case planmodel.OpEQ, "":
		if actualStr == expectedStr {
			return StatusPass, actual, c.Value, ""
		}
		return StatusFail, actual, c.Value, "string values differ"
	case planmodel.OpNE:
		if actualStr != expectedStr {
			return StatusPass, actual, c.Value, ""
		}
		return StatusFail, actual, c.Value, "string values are equal"
	default:
		return StatusFail, actual, c.Value, fmt.Sprintf("operator %q is not supported for string values", c.Op)
	}
}

func compareNumeric(actual, expected float64, op planmodel.CheckOp) (bool, error) {
	switch op {
	case planmodel.OpGE:
		return actual >= expected, nil
	case planmodel.OpLE:
		return actual <= expected, nil
	case planmodel.OpEQ, "":
		return actual == expected, nil
	case planmodel.OpGT:
		return actual > expected, nil
	case planmodel.OpLT:
		return actual < expected, nil
	case planmodel.OpNE:
		return actual != expected, nil
	default:
		return false, fmt.Errorf("unsupported operator %q", op)
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func evalCommandExitCode(c planmodel.AcceptanceCheck, ctx evalContext) (Status, any, any, string) {
	nr := findNodeResult(ctx.log, c.Selector)
	if nr == nil {
		return StatusFail, nil, c.Value, fmt.Sprintf("no execute_log entry for %q", c.Selector)
	}
	if len(nr.Attempts) == 0 {
		return StatusFail, nil, c.Value, fmt.Sprintf("node %q has no attempts", nr.NodeID)
	}
	last := nr.Attempts[len(nr.Attempts)-1]
	exitCode := 1
	switch {
	case last.ExitCode != nil:
		exitCode = *last.ExitCode
	case last.OK:
		exitCode = 0
	}

	expected := 0
	if n, ok := asFloat(c.Value); ok {
		expected = int(n)
	}
	op := c.Op
	if op == "" {
		op = planmodel.OpEQ
	}
	ok, err := compareNumeric(float64(exitCode), float64(expected), op)
	if err != nil {
		return StatusFail, exitCode, expected, err.Error()
	}
	if ok {
		return StatusPass, exitCode, expected, ""
	}
	return StatusFail, exitCode, expected, fmt.Sprintf("exit code %d %s %d is false", exitCode, op, expected)
}

func findNodeResult(log execengine.ExecuteLog, selector string) *execengine.NodeResult {
	for i := range log.Results {
		if log.Results[i].NodeID == selector || log.Results[i].Type == selector {
			return &log.Results[i]
		}
	}
	return nil
}

func evalManualApproval(c planmodel.AcceptanceCheck, ctx evalContext) (Status, string) {
	if ctx.approved.IsApproved(c.ID, c.Selector) {
		return StatusPass, ""
	}
	return StatusNeedsConfirm, "no matching manual approval recorded"
}
