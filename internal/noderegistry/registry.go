package noderegistry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ErrNotConnected is returned when invoke targets a node with no live session.
var ErrNotConnected = errors.New("NOT_CONNECTED")

// ErrTimeout is returned when an invoke's timer fires before a result arrives.
var ErrTimeout = errors.New("TIMEOUT")

// errDisconnected is used to fail pending invokes when their session drops.
var errDisconnected = errors.New("node disconnected before reply")

// Sender delivers an invoke request frame to a node's live socket. The
// transport and wire format are out of scope; the registry only needs "send
// this frame to this connection".
type Sender interface {
	SendInvoke(connID string, requestID, command string, params map[string]any) error
}

// InvokeResult is the outcome of one invoke call.
type InvokeResult struct {
	OK      bool
	Payload map[string]any
	Error   string
}

type pendingInvoke struct {
	nodeID string
	replyCh chan InvokeResult
	timer   *time.Timer
}

// Registry is the concurrent map from nodeId/connId to Session, plus the
// pending-invoke table keyed by request id. All three structures are guarded
// by one mutex; every public method is a single atomic step over them.
type Registry struct {
	mu          sync.RWMutex
	byNodeID    map[string]Session
	connToNode  map[string]string
	pending     map[string]*pendingInvoke
	nodePending map[string]map[string]bool // nodeID -> set of requestIDs
	defaultTimeout time.Duration
}

// New creates an empty Registry. defaultTimeout is used by Invoke when the
// caller does not supply one (defaults to 30s per the gateway contract).
func New(defaultTimeout time.Duration) *Registry {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}
	return &Registry{
		byNodeID:       make(map[string]Session),
		connToNode:     make(map[string]string),
		pending:        make(map[string]*pendingInvoke),
		nodePending:    make(map[string]map[string]bool),
		defaultTimeout: defaultTimeout,
	}
}

// Register builds a Session from a connect frame and adds it to both
// indices, replacing any prior session for the same connId.
func (r *Registry) Register(connID string, f ConnectFrame) Session {
	s := sessionFromConnect(connID, f, time.Now())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byNodeID[s.NodeID] = s
	r.connToNode[connID] = s.NodeID
	return s
}

// Unregister removes both indices for connID and fails every pending invoke
// bound to that node with ErrNotConnected-equivalent semantics, cancelling
// each one's timer. O(pending invokes for that node), not O(all pending).
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	nodeID, ok := r.connToNode[connID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.connToNode, connID)
	delete(r.byNodeID, nodeID)
	reqIDs := r.nodePending[nodeID]
	delete(r.nodePending, nodeID)

	var toFail []*pendingInvoke
	for reqID := range reqIDs {
		if p, ok := r.pending[reqID]; ok {
			delete(r.pending, reqID)
			toFail = append(toFail, p)
		}
	}
	r.mu.Unlock()

	for _, p := range toFail {
		p.timer.Stop()
		select {
		case p.replyCh <- InvokeResult{OK: false, Error: errDisconnected.Error()}:
		default:
		}
	}
}

// List returns a snapshot of all connected sessions.
func (r *Registry) List() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.byNodeID))
	for _, s := range r.byNodeID {
		out = append(out, s)
	}
	return out
}

// Get returns the session for nodeID, if connected.
func (r *Registry) Get(nodeID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.byNodeID[nodeID]
	return s, ok
}

// Invoke sends command to nodeID and blocks until a matching
// HandleInvokeResult call, ctx cancellation, or timeout (default 30s).
func (r *Registry) Invoke(ctx context.Context, sender Sender, nodeID, command string, params map[string]any, timeout time.Duration) (InvokeResult, error) {
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	r.mu.Lock()
	if _, ok := r.byNodeID[nodeID]; !ok {
		r.mu.Unlock()
		return InvokeResult{}, ErrNotConnected
	}
	connID := r.byNodeID[nodeID].ConnID
	reqID := newRequestID()
	replyCh := make(chan InvokeResult, 1)
	p := &pendingInvoke{nodeID: nodeID, replyCh: replyCh}
	r.pending[reqID] = p
	if r.nodePending[nodeID] == nil {
		r.nodePending[nodeID] = map[string]bool{}
	}
	r.nodePending[nodeID][reqID] = true
	p.timer = time.AfterFunc(timeout, func() { r.resolveTimeout(reqID) })
	r.mu.Unlock()

	if err := sender.SendInvoke(connID, reqID, command, params); err != nil {
		r.clearPending(nodeID, reqID)
		return InvokeResult{}, fmt.Errorf("send invoke: %w", err)
	}

	select {
	case res := <-replyCh:
		return res, nil
	case <-ctx.Done():
		r.clearPending(nodeID, reqID)
		return InvokeResult{}, ctx.Err()
	}
}

func (r *Registry) resolveTimeout(reqID string) {
	r.mu.Lock()
	p, ok := r.pending[reqID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.pending, reqID)
	delete(r.nodePending[p.nodeID], reqID)
	r.mu.Unlock()

	select {
	case p.replyCh <- InvokeResult{OK: false, Error: ErrTimeout.Error()}:
	default:
	}
}

func (r *Registry) clearPending(nodeID, reqID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pending[reqID]; ok {
		p.timer.Stop()
		delete(r.pending, reqID)
		delete(r.nodePending[nodeID], reqID)
	}
}

// HandleInvokeResult dispatches a reply frame to its pending invoke in O(1).
// It returns true iff a pending entry was consumed; mismatched nodeId or an
// already-resolved/timed-out request id are ignored.
func (r *Registry) HandleInvokeResult(requestID, nodeID string, ok bool, payload map[string]any, errMsg string) bool {
	r.mu.Lock()
	p, found := r.pending[requestID]
	if !found || p.nodeID != nodeID {
		r.mu.Unlock()
		return false
	}
	delete(r.pending, requestID)
	delete(r.nodePending[nodeID], requestID)
	r.mu.Unlock()

	p.timer.Stop()
	select {
	case p.replyCh <- InvokeResult{OK: ok, Payload: payload, Error: errMsg}:
	default:
	}
	return true
}

func newRequestID() string {
	return ulid.Make().String()
}
