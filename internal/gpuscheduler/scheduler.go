package gpuscheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/danshapiro/openclaw/internal/noderegistry"
)

// ErrNotFound is returned when a jobId is unknown.
var ErrNotFound = errors.New("INVALID_REQUEST: unknown jobId")

// ErrInvalidRequest covers request-shape validation failures (submit with
// gpuCount < 1, empty command, etc).
var ErrInvalidRequest = errors.New("INVALID_REQUEST")

const invokeCommand = "system.run"

// Scheduler is the single authoritative GPU job queue for one gateway
// process. All state lives behind one mutex; the dispatch loop runs as a
// background goroutine started by Run, matching the "one exclusive lock per
// structure" option for serialising scheduler mutation.
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*Job
	queue   []string // queued job ids, FIFO order preserved across pause/resume
	waiters map[string][]chan struct{}

	policyPaused map[string]bool // jobId -> currently policy-paused (tracked across ticks to detect edges)
	cancelFns    map[string]context.CancelFunc

	registry *noderegistry.Registry
	sender   noderegistry.Sender
	nowFn    func() time.Time
}

// New creates an empty Scheduler bound to a node registry and the transport
// Sender used to deliver invoke frames.
func New(registry *noderegistry.Registry, sender noderegistry.Sender) *Scheduler {
	return &Scheduler{
		jobs:         make(map[string]*Job),
		waiters:      make(map[string][]chan struct{}),
		policyPaused: make(map[string]bool),
		cancelFns:    make(map[string]context.CancelFunc),
		registry:     registry,
		sender:       sender,
		nowFn:        time.Now,
	}
}

// Run drives the dispatch loop until ctx is done: re-evaluate policy windows
// and attempt dispatch every interval. Callers normally run this once per
// gateway process lifetime in its own goroutine.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick()
		}
	}
}

// Submit validates req and enqueues a new GpuJob in the queued state.
func (s *Scheduler) Submit(req SubmitRequest) (*Job, error) {
	if req.Resources.GPUCount < 1 {
		return nil, fmt.Errorf("%w: resources.gpuCount must be >= 1", ErrInvalidRequest)
	}
	if len(req.Exec.Command) == 0 {
		return nil, fmt.Errorf("%w: exec.command must be non-empty", ErrInvalidRequest)
	}
	id := newJobID()
	maxAttempts := req.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	now := s.nowFn().UnixMilli()
	job := &Job{
		JobID:       id,
		CreatedAtMs: now,
		UpdatedAtMs: now,
		State:       StateQueued,
		Policy:      req.Policy,
		Resources:   req.Resources,
		Exec:        req.Exec,
		MaxAttempts: maxAttempts,
	}

	s.mu.Lock()
	s.jobs[id] = job
	s.queue = append(s.queue, id)
	s.mu.Unlock()

	s.tick()
	return s.Get(id)
}

// Get returns a snapshot of one job.
func (s *Scheduler) Get(jobID string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return j.clone(), nil
}

// List returns a snapshot of all jobs, optionally filtered by state.
func (s *Scheduler) List(state JobState) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if state != "" && j.State != state {
			continue
		}
		out = append(out, j.clone())
	}
	return out
}

// Pause marks a queued job paused=true, or requests preemption of a running
// job; the dispatch loop or the in-flight attempt goroutine completes the
// transition back to queued.
func (s *Scheduler) Pause(jobID string) error {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	switch j.State {
	case StateQueued:
		j.Paused = true
		j.PausedReason = PauseManual
		j.UpdatedAtMs = s.nowFn().UnixMilli()
		s.mu.Unlock()
	case StateRunning:
		j.PauseRequested = true
		cancel := s.cancelFns[jobID]
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	default:
		s.mu.Unlock()
	}
	return nil
}

// Resume clears pause/pauseRequested/notBeforeMs so the job becomes
// dispatch-eligible again, retaining its original queue slot.
func (s *Scheduler) Resume(jobID string) error {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	j.Paused = false
	j.PausedReason = ""
	j.PauseRequested = false
	j.NotBeforeMs = 0
	j.UpdatedAtMs = s.nowFn().UnixMilli()
	delete(s.policyPaused, jobID)
	s.mu.Unlock()
	s.tick()
	return nil
}

// Cancel transitions a job to canceled and best-effort-cancels its active
// attempt; future dispatch is blocked.
func (s *Scheduler) Cancel(jobID string) error {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	if j.State.Terminal() {
		s.mu.Unlock()
		return nil
	}
	j.CancelRequested = true
	wasRunning := j.State == StateRunning
	cancel := s.cancelFns[jobID]
	if !wasRunning {
		s.finalizeLocked(j, StateCanceled, Result{OK: false, Error: "canceled"})
		s.removeFromQueueLocked(jobID)
	}
	s.mu.Unlock()
	if wasRunning && cancel != nil {
		cancel()
	}
	return nil
}

// Wait blocks until jobID reaches a terminal state or timeout elapses.
// Level-triggered: a job already terminal resolves immediately.
func (s *Scheduler) Wait(ctx context.Context, jobID string, timeout time.Duration) (*Job, bool, error) {
	s.mu.Lock()
	j, ok := s.jobs[jobID]
	if !ok {
		s.mu.Unlock()
		return nil, false, ErrNotFound
	}
	if j.State.Terminal() || timeout <= 0 {
		snap := j.clone()
		s.mu.Unlock()
		return snap, snap.State.Terminal(), nil
	}
	done := make(chan struct{})
	s.waiters[jobID] = append(s.waiters[jobID], done)
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		snap, err := s.Get(jobID)
		return snap, true, err
	case <-timer.C:
		s.removeWaiter(jobID, done)
		snap, err := s.Get(jobID)
		return snap, false, err
	case <-ctx.Done():
		s.removeWaiter(jobID, done)
		snap, err := s.Get(jobID)
		return snap, false, err
	}
}

func (s *Scheduler) removeWaiter(jobID string, ch chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws := s.waiters[jobID]
	for i, c := range ws {
		if c == ch {
			s.waiters[jobID] = append(ws[:i], ws[i+1:]...)
			return
		}
	}
}

func (s *Scheduler) tick() {
	s.mu.Lock()
	now := s.nowFn()
	nowMs := now.UnixMilli()

	for _, id := range s.queue {
		j := s.jobs[id]
		if j == nil || j.State != StateQueued {
			continue
		}
		if j.NotBeforeMs > nowMs {
			continue
		}
		wasPolicyPaused := s.policyPaused[id]
		pause, _ := effectivePause(now, j.Policy, wasPolicyPaused)
		s.policyPaused[id] = pause
		if pause && !wasPolicyPaused {
			j.Paused = true
			j.PausedReason = PausePolicy
			j.UpdatedAtMs = nowMs
		} else if !pause && wasPolicyPaused && j.PausedReason == PausePolicy {
			j.Paused = false
			j.PausedReason = ""
			j.UpdatedAtMs = nowMs
		}
	}

	var ready []string
	for _, id := range s.queue {
		j := s.jobs[id]
		if j != nil && j.State == StateQueued && !j.Paused {
			ready = append(ready, id)
		}
	}
	busyNodes := map[string]bool{}
	for _, j := range s.jobs {
		if j.State == StateRunning && j.AssignedNodeID != "" {
			busyNodes[j.AssignedNodeID] = true
		}
	}
	s.mu.Unlock()

	if len(ready) == 0 {
		return
	}
	sessions := s.registry.List()
	for _, id := range ready {
		s.mu.Lock()
		j := s.jobs[id]
		if j == nil || j.State != StateQueued || j.Paused {
			s.mu.Unlock()
			continue
		}
		nodeID, ok := pickNode(sessions, j.Resources, busyNodes)
		if !ok {
			s.mu.Unlock()
			continue
		}
		busyNodes[nodeID] = true
		attemptN := len(j.Attempts) + 1
		j.State = StateRunning
		j.AssignedNodeID = nodeID
		j.UpdatedAtMs = s.nowFn().UnixMilli()
		j.Attempts = append(j.Attempts, Attempt{Attempt: attemptN, NodeID: nodeID, StartedAtMs: j.UpdatedAtMs})
		s.removeFromQueueLocked(id)
		attemptCtx, cancel := context.WithCancel(context.Background())
		s.cancelFns[id] = cancel
		s.mu.Unlock()

		go s.runAttempt(attemptCtx, id, attemptN, nodeID, j.Exec)
	}
}

func (s *Scheduler) runAttempt(ctx context.Context, jobID string, attemptN int, nodeID string, exec ExecSpec) {
	timeout := time.Duration(exec.InvokeTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	params := map[string]any{
		"command":        exec.Command,
		"cwd":            exec.Cwd,
		"env":            exec.Env,
		"timeoutMs":      exec.CommandTimeoutMs,
		"idempotencyKey": fmt.Sprintf("%s:%d", jobID, attemptN),
	}
	res, err := s.registry.Invoke(ctx, s.sender, nodeID, invokeCommand, params, timeout)
	s.completeAttempt(jobID, attemptN, res, err)
}

func (s *Scheduler) completeAttempt(jobID string, attemptN int, res noderegistry.InvokeResult, invokeErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.jobs[jobID]
	if j == nil {
		return
	}
	delete(s.cancelFns, jobID)
	now := s.nowFn().UnixMilli()

	var idx = -1
	for i := range j.Attempts {
		if j.Attempts[i].Attempt == attemptN {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	a := &j.Attempts[idx]
	a.FinishedAtMs = &now
	ok := invokeErr == nil && res.OK
	a.OK = &ok
	if !ok {
		msg := res.Error
		if invokeErr != nil {
			msg = invokeErr.Error()
		}
		a.Error = msg
		a.TimedOut = errors.Is(invokeErr, noderegistry.ErrTimeout) || msg == noderegistry.ErrTimeout.Error()
	}
	switch ec := res.Payload["exitCode"].(type) {
	case int:
		a.ExitCode = &ec
	case float64:
		v := int(ec)
		a.ExitCode = &v
	}
	if out, ok := res.Payload["stdout"].(string); ok {
		a.StdoutTail = out
	}
	if errOut, ok := res.Payload["stderr"].(string); ok {
		a.StderrTail = errOut
	}

	j.UpdatedAtMs = now

	wasPreempted := j.PauseRequested && !ok
	switch {
	case j.CancelRequested:
		s.finalizeLocked(j, StateCanceled, Result{OK: false, Error: "canceled"})
	case wasPreempted:
		j.State = StateQueued
		j.Paused = true
		j.PausedReason = PauseManual
		j.PauseRequested = false
		j.AssignedNodeID = ""
		s.queue = append([]string{jobID}, s.queue...)
	case ok:
		s.finalizeLocked(j, StateSucceeded, resultFromAttempt(*a))
	case idx+1 >= j.MaxAttempts:
		s.finalizeLocked(j, StateFailed, resultFromAttempt(*a))
	default:
		j.State = StateQueued
		j.AssignedNodeID = ""
		s.queue = append(s.queue, jobID)
	}
}

func resultFromAttempt(a Attempt) Result {
	r := Result{OK: a.OK != nil && *a.OK, TimedOut: a.TimedOut, Error: a.Error}
	if a.ExitCode != nil {
		r.ExitCode = *a.ExitCode
	}
	return r
}

// finalizeLocked sets a job terminal and wakes every waiter. Caller holds s.mu.
func (s *Scheduler) finalizeLocked(j *Job, state JobState, res Result) {
	j.State = state
	j.Result = &res
	j.UpdatedAtMs = s.nowFn().UnixMilli()
	for _, ch := range s.waiters[j.JobID] {
		close(ch)
	}
	delete(s.waiters, j.JobID)
}

// removeFromQueueLocked drops jobID from the FIFO queue slice. Caller holds s.mu.
func (s *Scheduler) removeFromQueueLocked(jobID string) {
	for i, id := range s.queue {
		if id == jobID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return
		}
	}
}

func newJobID() string {
	return ulid.Make().String()
}
