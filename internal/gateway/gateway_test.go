package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/danshapiro/openclaw/internal/gpuscheduler"
	"github.com/danshapiro/openclaw/internal/noderegistry"
)

// fakeSender answers every invoke immediately with an ok=true result, so
// tests never need to race the registry's reply channel against a timer.
type fakeSender struct {
	mu       sync.Mutex
	registry *noderegistry.Registry
}

func (f *fakeSender) SendInvoke(connID, reqID, command string, params map[string]any) error {
	go f.registry.HandleInvokeResult(reqID, "worker-1", true, map[string]any{"exitCode": 0.0}, "")
	return nil
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	registry := noderegistry.New(5 * time.Second)
	sender := &fakeSender{registry: registry}
	registry.Register("conn1", noderegistry.ConnectFrame{NodeID: "worker-1", Commands: []string{"system.run"}})
	scheduler := gpuscheduler.New(registry, sender)
	return New(registry, scheduler, sender, nil)
}

func TestDispatch_NodeList(t *testing.T) {
	g := newTestGateway(t)
	raw, err := g.Dispatch(context.Background(), "node.list", nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var resp struct {
		Nodes []map[string]any `json:"nodes"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Nodes) != 1 || resp.Nodes[0]["nodeId"] != "worker-1" {
		t.Fatalf("unexpected nodes: %+v", resp.Nodes)
	}
}

func TestDispatch_NodeInvoke(t *testing.T) {
	g := newTestGateway(t)
	params, _ := json.Marshal(map[string]any{"nodeId": "worker-1", "command": "system.run"})
	raw, err := g.Dispatch(context.Background(), "node.invoke", params)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	var resp struct {
		OK bool `json:"ok"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.OK {
		t.Fatalf("expected ok=true, got %s", raw)
	}
}

func TestDispatch_NodeInvoke_MissingFieldsIsInvalidRequest(t *testing.T) {
	g := newTestGateway(t)
	_, err := g.Dispatch(context.Background(), "node.invoke", []byte(`{}`))
	gwErr, ok := err.(*Error)
	if !ok || gwErr.Code != CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestDispatch_UnknownMethod(t *testing.T) {
	g := newTestGateway(t)
	_, err := g.Dispatch(context.Background(), "bogus.method", nil)
	gwErr, ok := err.(*Error)
	if !ok || gwErr.Code != CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestDispatch_GPUJobSubmitGetWait(t *testing.T) {
	g := newTestGateway(t)
	submitParams, _ := json.Marshal(map[string]any{
		"resources": map[string]any{"gpuCount": 1},
		"exec":      map[string]any{"command": []string{"echo", "hi"}},
	})
	raw, err := g.Dispatch(context.Background(), "gpu.job.submit", submitParams)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	var submitResp struct {
		Job struct {
			JobID string `json:"jobId"`
		} `json:"job"`
	}
	if err := json.Unmarshal(raw, &submitResp); err != nil {
		t.Fatal(err)
	}
	if submitResp.Job.JobID == "" {
		t.Fatalf("expected a jobId, got %s", raw)
	}

	waitParams, _ := json.Marshal(map[string]any{"jobId": submitResp.Job.JobID, "timeoutMs": 2000})
	raw, err = g.Dispatch(context.Background(), "gpu.job.wait", waitParams)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	var waitResp struct {
		Done bool `json:"done"`
		Job  struct {
			State string `json:"state"`
		} `json:"job"`
	}
	if err := json.Unmarshal(raw, &waitResp); err != nil {
		t.Fatal(err)
	}
	if !waitResp.Done || waitResp.Job.State != "succeeded" {
		t.Fatalf("expected job to succeed, got %+v", waitResp)
	}
}

func TestDispatch_GPUJobGet_UnknownIDIsInvalidRequest(t *testing.T) {
	g := newTestGateway(t)
	params, _ := json.Marshal(map[string]any{"jobId": "does-not-exist"})
	_, err := g.Dispatch(context.Background(), "gpu.job.get", params)
	gwErr, ok := err.(*Error)
	if !ok || gwErr.Code != CodeInvalidRequest {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
}
