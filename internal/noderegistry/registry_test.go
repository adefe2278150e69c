package noderegistry

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	fn   func(connID, reqID, command string) error
}

func (f *fakeSender) SendInvoke(connID, reqID, command string, params map[string]any) error {
	f.mu.Lock()
	f.sent = append(f.sent, reqID)
	f.mu.Unlock()
	if f.fn != nil {
		return f.fn(connID, reqID, command)
	}
	return nil
}

func (f *fakeSender) lastReqID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func TestRegistry_InvokeResolvesOnHandleInvokeResult(t *testing.T) {
	r := New(5 * time.Second)
	r.Register("conn1", ConnectFrame{NodeID: "n1", Commands: []string{"system.run"}})
	sender := &fakeSender{}

	done := make(chan InvokeResult, 1)
	go func() {
		res, err := r.Invoke(context.Background(), sender, "n1", "system.run", nil, time.Second)
		if err != nil {
			t.Errorf("invoke error: %v", err)
		}
		done <- res
	}()

	var reqID string
	for i := 0; i < 100 && reqID == ""; i++ {
		reqID = sender.lastReqID()
		time.Sleep(time.Millisecond)
	}
	if reqID == "" {
		t.Fatalf("sender never received invoke")
	}
	if !r.HandleInvokeResult(reqID, "n1", true, map[string]any{"stdout": "ok"}, "") {
		t.Fatalf("HandleInvokeResult returned false")
	}

	select {
	case res := <-done:
		if !res.OK || res.Payload["stdout"] != "ok" {
			t.Fatalf("unexpected result: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for invoke to resolve")
	}
}

func TestRegistry_InvokeUnknownNodeFailsFast(t *testing.T) {
	r := New(time.Second)
	_, err := r.Invoke(context.Background(), &fakeSender{}, "ghost", "system.run", nil, 0)
	if err != ErrNotConnected {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
}

func TestRegistry_UnregisterFailsPendingInvokes(t *testing.T) {
	r := New(5 * time.Second)
	r.Register("conn1", ConnectFrame{NodeID: "n1"})

	resultCh := make(chan error, 1)
	go func() {
		_, err := r.Invoke(context.Background(), &fakeSender{}, "n1", "system.run", nil, 5*time.Second)
		resultCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	r.Unregister("conn1")

	select {
	case err := <-resultCh:
		if err != nil {
			t.Fatalf("invoke returned transport error %v, want a failed result not an error", err)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatalf("disconnect did not fail pending invoke within 100ms (took > %v)", time.Since(start))
	}

	if _, ok := r.Get("n1"); ok {
		t.Fatalf("session for n1 should have been removed")
	}
}

func TestRegistry_InvokeTimesOut(t *testing.T) {
	r := New(30 * time.Millisecond)
	r.Register("conn1", ConnectFrame{NodeID: "n1"})
	res, err := r.Invoke(context.Background(), &fakeSender{}, "n1", "system.run", nil, 0)
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}
	if res.OK || res.Error != ErrTimeout.Error() {
		t.Fatalf("result = %+v, want timeout failure", res)
	}
}

func TestRegistry_SendInvokeFailureClearsPending(t *testing.T) {
	r := New(time.Second)
	r.Register("conn1", ConnectFrame{NodeID: "n1"})
	sender := &fakeSender{fn: func(connID, reqID, command string) error {
		return fmt.Errorf("socket closed")
	}}
	_, err := r.Invoke(context.Background(), sender, "n1", "system.run", nil, time.Second)
	if err == nil {
		t.Fatalf("expected send error")
	}
	r.mu.RLock()
	n := len(r.pending)
	r.mu.RUnlock()
	if n != 0 {
		t.Fatalf("pending table leaked an entry after send failure: %d", n)
	}
}
