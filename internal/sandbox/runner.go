// Package sandbox runs a plan's CPU-tool commands inside a long-lived Docker
// container, one container per (planId, agentId), reusing it across attempts
// instead of paying container start-up cost per node.
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danshapiro/openclaw/internal/procutil"
)

const (
	defaultImage   = "ubuntu:22.04"
	containerRoot  = "/workspace"
	dockerfileName = "Dockerfile.sandbox"
)

// Result is one command batch's outcome.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Killed   bool
}

// container tracks the long-lived docker container backing one key.
type container struct {
	name string
	pid  int // host PID of the container's init process, from `docker inspect`
}

// Runner ensures one container per (planId, agentId) and injects commands
// into it via `docker exec`.
type Runner struct {
	mu         sync.Mutex
	containers map[string]*container
	workdir    string // caller's working directory, used to look for Dockerfile.sandbox
}

// New creates a Runner that looks for an optional Dockerfile.sandbox under
// callerWorkdir when a plan's container needs to be built from scratch.
func New(callerWorkdir string) *Runner {
	return &Runner{
		containers: make(map[string]*container),
		workdir:    callerWorkdir,
	}
}

// key identifies one plan's container: proposal:<planId>[:<agentId>].
func key(planID, agentID string) string {
	if agentID == "" {
		return "proposal:" + planID
	}
	return "proposal:" + planID + ":" + agentID
}

// Run executes commands inside the container for (planID, agentID),
// ensuring it exists first. workdir is an absolute host path under the
// plan's layout root; it is mapped to a container path by keeping only the
// plan-relative fragment under containerRoot — paths outside the plan never
// leak a host absolute path into the container.
func (r *Runner) Run(ctx context.Context, planID, agentID, planRoot, workdir string, commands []string, env map[string]string, timeout time.Duration) (Result, error) {
	name, err := r.ensureContainer(ctx, planID, agentID)
	if err != nil {
		return Result{}, fmt.Errorf("ensure container: %w", err)
	}

	cwd := containerWorkdir(planRoot, workdir)
	script := strings.Join(commands, "\n")

	args := []string{"exec", "-i", "-w", cwd}
	for k, v := range env {
		args = append(args, "-e", k+"="+v)
	}
	args = append(args, name, "sh", "-lc", script)

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "docker", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	runErr := cmd.Run()

	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if runCtx.Err() == context.DeadlineExceeded {
		res.Killed = true
		res.ExitCode = -1
		return res, nil
	}
	if exitErr, ok := runErr.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if runErr != nil {
		return res, fmt.Errorf("docker exec: %w", runErr)
	}
	return res, nil
}

// containerWorkdir maps a host path under planRoot to a path under
// containerRoot, keeping only the plan-relative fragment. A workdir outside
// planRoot maps to the container root itself.
func containerWorkdir(planRoot, workdir string) string {
	rel, err := filepath.Rel(planRoot, workdir)
	if err != nil || strings.HasPrefix(rel, "..") {
		return containerRoot
	}
	if rel == "." {
		return containerRoot
	}
	return filepath.Join(containerRoot, rel)
}

func (r *Runner) ensureContainer(ctx context.Context, planID, agentID string) (string, error) {
	k := key(planID, agentID)
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.containers[k]; ok {
		if r.isRunning(ctx, c) {
			return c.name, nil
		}
		delete(r.containers, k)
	}

	name := containerName(k)
	if pid, ok := r.inspectPID(ctx, name); ok {
		c := &container{name: name, pid: pid}
		r.containers[k] = c
		return name, nil
	}

	image, err := r.resolveImage(ctx)
	if err != nil {
		return "", err
	}
	startArgs := []string{"run", "-d", "--name", name, "-w", containerRoot, image, "sleep", "infinity"}
	if out, err := exec.CommandContext(ctx, "docker", startArgs...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("docker run: %w: %s", err, strings.TrimSpace(string(out)))
	}
	pid, _ := r.inspectPID(ctx, name)
	r.containers[k] = &container{name: name, pid: pid}
	return name, nil
}

// isRunning prefers a fast /proc liveness check against the container's
// cached init PID over shelling out to `docker inspect` again; it falls
// back to inspect whenever procfs is unavailable or the cached PID looks
// dead, since a restarted container gets a new PID docker must report.
func (r *Runner) isRunning(ctx context.Context, c *container) bool {
	if c.pid > 0 && procutil.ProcFSAvailable() {
		if procutil.PIDAlive(c.pid) {
			return true
		}
	}
	_, ok := r.inspectPID(ctx, c.name)
	return ok
}

// inspectPID returns the container's init process host PID if it is
// currently running, or ok=false if it is absent or stopped.
func (r *Runner) inspectPID(ctx context.Context, name string) (int, bool) {
	out, err := exec.CommandContext(ctx, "docker", "inspect",
		"-f", "{{.State.Running}} {{.State.Pid}}", name).Output()
	if err != nil {
		return 0, false
	}
	fields := strings.Fields(strings.TrimSpace(string(out)))
	if len(fields) != 2 || fields[0] != "true" {
		return 0, false
	}
	pid, err := strconv.Atoi(fields[1])
	if err != nil {
		return 0, false
	}
	return pid, true
}

// resolveImage builds Dockerfile.sandbox from the caller's working directory
// if present, else falls back to defaultImage.
func (r *Runner) resolveImage(ctx context.Context) (string, error) {
	dockerfile := filepath.Join(r.workdir, dockerfileName)
	if _, err := os.Stat(dockerfile); err != nil {
		return defaultImage, nil
	}
	tag := "openclaw-sandbox:local"
	buildArgs := []string{"build", "-f", dockerfile, "-t", tag, r.workdir}
	if out, err := exec.CommandContext(ctx, "docker", buildArgs...).CombinedOutput(); err != nil {
		return "", fmt.Errorf("docker build %s: %w: %s", dockerfile, err, strings.TrimSpace(string(out)))
	}
	return tag, nil
}

func containerName(k string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, k)
	return "openclaw-" + safe
}

