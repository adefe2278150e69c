package execengine

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

type stubSandbox struct {
	results []CommandResult
	errs    []error
	calls   int
}

func (s *stubSandbox) Run(ctx context.Context, workdir string, commands []string, env map[string]string, timeout time.Duration) (CommandResult, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return CommandResult{}, s.errs[i]
	}
	if i < len(s.results) {
		return s.results[i], nil
	}
	return s.results[len(s.results)-1], nil
}

type noopGateway struct{}

func (noopGateway) NodeList(ctx context.Context) ([]NodeInfo, error) { return nil, nil }
func (noopGateway) NodeInvoke(ctx context.Context, nodeID, command string, params map[string]any, timeoutMS int64) (InvokeResult, error) {
	return InvokeResult{}, nil
}
func (noopGateway) GPUJobSubmit(ctx context.Context, req GPUJobSubmitRequest) (GPUJobSnapshot, error) {
	return GPUJobSnapshot{}, nil
}
func (noopGateway) GPUJobWait(ctx context.Context, jobID string, timeoutMS int64) (GPUJobSnapshot, bool, error) {
	return GPUJobSnapshot{}, false, nil
}
func (noopGateway) GPUJobCancel(ctx context.Context, jobID string) error { return nil }

func testRetrySpec() *planmodel.RetrySpec {
	return &planmodel.RetrySpec{
		DefaultPolicyID: "retry.unknown",
		Policies: []planmodel.RetryPolicy{
			{ID: "retry.unknown", Category: planmodel.CategoryUnknown, MaxAttempts: 3,
				Backoff: planmodel.Backoff{Kind: planmodel.BackoffFixed, BaseMS: 1, MaxMS: 1}},
		},
	}
}

func newTestLayout(t *testing.T) planmodel.Layout {
	t.Helper()
	root := t.TempDir()
	l := planmodel.NewLayout(root)
	if err := l.Ensure(); err != nil {
		t.Fatalf("ensure layout: %v", err)
	}
	if err := os.MkdirAll(root+"/report", 0o755); err != nil {
		t.Fatalf("mkdir report: %v", err)
	}
	return l
}

func TestEngine_Run_SucceedsOnFirstAttempt(t *testing.T) {
	dag := &planmodel.PlanDAG{Nodes: []planmodel.Node{
		{ID: "a", Type: "noop", Tool: planmodel.ToolShell, Commands: []string{"echo hi"}},
	}}
	sb := &stubSandbox{results: []CommandResult{{ExitCode: 0}}}
	eng := New(Options{
		Layout: newTestLayout(t), DAG: dag, RetrySpec: testRetrySpec(),
		Sandbox: sb, Gateway: noopGateway{},
	})
	log, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(log.Results) != 1 || log.Results[0].Status != "ok" {
		t.Fatalf("results = %+v", log.Results)
	}
	if sb.calls != 1 {
		t.Fatalf("expected 1 sandbox call, got %d", sb.calls)
	}
}

func TestEngine_Run_AppendsProgressEvents(t *testing.T) {
	layout := newTestLayout(t)
	dag := &planmodel.PlanDAG{Nodes: []planmodel.Node{
		{ID: "a", Type: "noop", Tool: planmodel.ToolShell, Commands: []string{"echo hi"}},
	}}
	sb := &stubSandbox{results: []CommandResult{{ExitCode: 0}}}
	eng := New(Options{
		Layout: layout, DAG: dag, RetrySpec: testRetrySpec(),
		Sandbox: sb, Gateway: noopGateway{},
	})
	if _, err := eng.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	b, err := os.ReadFile(layout.Progress())
	if err != nil {
		t.Fatalf("read progress.ndjson: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 progress lines (start+end), got %d: %q", len(lines), string(b))
	}
	var start, end map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &start); err != nil {
		t.Fatalf("unmarshal start event: %v", err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &end); err != nil {
		t.Fatalf("unmarshal end event: %v", err)
	}
	if start["event"] != "stage_attempt_start" || start["node_id"] != "a" {
		t.Fatalf("start event = %+v", start)
	}
	if end["event"] != "stage_attempt_end" || end["node_id"] != "a" || end["status"] != "success" {
		t.Fatalf("end event = %+v", end)
	}
}

func TestEngine_Run_RetriesThenSucceeds(t *testing.T) {
	dag := &planmodel.PlanDAG{Nodes: []planmodel.Node{
		{ID: "a", Type: "noop", Tool: planmodel.ToolShell, Commands: []string{"echo hi"}},
	}}
	sb := &stubSandbox{results: []CommandResult{{ExitCode: 1, Stderr: "boom"}, {ExitCode: 0}}}
	eng := New(Options{
		Layout: newTestLayout(t), DAG: dag, RetrySpec: testRetrySpec(),
		Sandbox: sb, Gateway: noopGateway{},
	})
	log, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.Results[0].Status != "ok" || len(log.Results[0].Attempts) != 2 {
		t.Fatalf("results = %+v", log.Results[0])
	}
}

func TestEngine_Run_FailsAfterMaxAttemptsAndSkipsDependents(t *testing.T) {
	dag := &planmodel.PlanDAG{
		Nodes: []planmodel.Node{
			{ID: "a", Type: "noop", Tool: planmodel.ToolShell, Commands: []string{"false"}},
			{ID: "b", Type: "noop", Tool: planmodel.ToolShell, Commands: []string{"echo hi"}},
		},
		Edges: []planmodel.Edge{{From: "a", To: "b"}},
	}
	sb := &stubSandbox{results: []CommandResult{{ExitCode: 1}, {ExitCode: 1}, {ExitCode: 1}}}
	eng := New(Options{
		Layout: newTestLayout(t), DAG: dag, RetrySpec: testRetrySpec(),
		Sandbox: sb, Gateway: noopGateway{},
	})
	log, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.Results[0].Status != "failed" || len(log.Results[0].Attempts) != 3 {
		t.Fatalf("node a result = %+v", log.Results[0])
	}
	if log.Results[1].Status != "skipped" {
		t.Fatalf("node b result = %+v, want skipped", log.Results[1])
	}
}

func TestEngine_Run_ManualToolNodeIsSkipped(t *testing.T) {
	dag := &planmodel.PlanDAG{Nodes: []planmodel.Node{
		{ID: "review", Type: planmodel.NodeTypeManualReview, Tool: planmodel.ToolManual},
	}}
	eng := New(Options{
		Layout: newTestLayout(t), DAG: dag, RetrySpec: testRetrySpec(),
		Sandbox: &stubSandbox{}, Gateway: noopGateway{},
	})
	log, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if log.Results[0].Status != "skipped" || log.Results[0].Executor != "manual" {
		t.Fatalf("result = %+v", log.Results[0])
	}
}
