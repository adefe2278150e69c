// Command openclaw is the control-plane CLI: it wires internal/pipeline's
// stage orchestration and internal/gateway's RPC surface into a small set of
// subcommands. Full flag coverage for every stage (spec.md §6's CLI surface
// reference) is out of scope here; this binary exists to make the two
// library packages reachable from a terminal, in the same manual
// switch-dispatch style cmd/kilroy/main.go uses for its own subcommands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danshapiro/openclaw/internal/compiler"
	"github.com/danshapiro/openclaw/internal/gateway"
	"github.com/danshapiro/openclaw/internal/gpuscheduler"
	"github.com/danshapiro/openclaw/internal/noderegistry"
	"github.com/danshapiro/openclaw/internal/pipeline"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		serve(os.Args[2:])
	case "proposal":
		proposal(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  openclaw serve [--addr host:port]")
	fmt.Fprintln(os.Stderr, "  openclaw proposal compile <proposal.md> --workspace <dir> [--discovery off|plan|sample]")
	fmt.Fprintln(os.Stderr, "  openclaw proposal run <proposal.md> --workspace <dir> [--discovery off|plan|sample]")
	fmt.Fprintln(os.Stderr, "  openclaw proposal execute <planDir>")
}

func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, func() { signal.Stop(sigCh); cancel() }
}

func serve(args []string) {
	addr := ":8088"
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--addr":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--addr requires a value")
				os.Exit(1)
			}
			addr = args[i]
		default:
			fmt.Fprintf(os.Stderr, "unknown arg: %s\n", args[i])
			os.Exit(1)
		}
	}

	registry := noderegistry.New(0)
	// The real worker-facing WebSocket transport is out of scope (spec.md
	// §1's Non-goals); sender is nil until that transport is wired in, so no
	// worker can connect: node.invoke fails with NOT_CONNECTED and jobs from
	// gpu.job.submit stay queued until then.
	scheduler := gpuscheduler.New(registry, nil)
	gw := gateway.New(registry, scheduler, nil, nil)

	ctx, cleanup := signalContext()
	defer cleanup()
	go scheduler.Run(ctx, 0)

	srv := gateway.NewServer(gw, gateway.ServerConfig{Addr: addr})
	go func() {
		<-ctx.Done()
		srv.Shutdown()
	}()
	if err := srv.ListenAndServe(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func proposal(args []string) {
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}
	switch args[0] {
	case "compile":
		proposalCompile(args[1:])
	case "run":
		proposalRun(args[1:])
	case "execute":
		proposalExecute(args[1:])
	default:
		usage()
		os.Exit(1)
	}
}

func parseWorkspaceFlags(args []string) (positional []string, workspace string, discovery string) {
	discovery = string(compiler.DiscoveryOff)
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--workspace":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--workspace requires a value")
				os.Exit(1)
			}
			workspace = args[i]
		case "--discovery":
			i++
			if i >= len(args) {
				fmt.Fprintln(os.Stderr, "--discovery requires a value")
				os.Exit(1)
			}
			discovery = args[i]
		default:
			positional = append(positional, args[i])
		}
	}
	return
}

func readProposal(positional []string) string {
	if len(positional) != 1 {
		usage()
		os.Exit(1)
	}
	b, err := os.ReadFile(positional[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return string(b)
}

func proposalCompile(args []string) {
	positional, workspace, discovery := parseWorkspaceFlags(args)
	proposalText := readProposal(positional)
	if workspace == "" {
		usage()
		os.Exit(1)
	}

	res, err := compiler.Compile(context.Background(), proposalText, compiler.Options{
		WorkspaceDir: workspace,
		Discovery:    compiler.DiscoveryMode(discovery),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("plan_id=%s\n", res.PlanID)
	fmt.Printf("plan_dir=%s\n", res.RootDir)
	for _, nc := range res.Report.NeedsConfirm {
		fmt.Fprintf(os.Stderr, "needs_confirm: %s\n", nc)
	}
	if !res.OK {
		os.Exit(1)
	}
}

func proposalRun(args []string) {
	positional, workspace, discovery := parseWorkspaceFlags(args)
	proposalText := readProposal(positional)
	if workspace == "" {
		usage()
		os.Exit(1)
	}

	res, err := pipeline.Run(context.Background(), pipeline.Options{
		Mode:         pipeline.ModePlan,
		Proposal:     proposalText,
		WorkspaceDir: workspace,
		Discovery:    compiler.DiscoveryMode(discovery),
	})
	printStageResult(res, err)
}

func proposalExecute(args []string) {
	if len(args) != 1 {
		usage()
		os.Exit(1)
	}
	res, err := pipeline.Run(context.Background(), pipeline.Options{
		Mode:    pipeline.ModeExecute,
		PlanDir: args[0],
	})
	printStageResult(res, err)
}

func printStageResult(res *pipeline.Result, err error) {
	if res != nil {
		fmt.Printf("plan_dir=%s\n", res.PlanDir)
		for _, s := range res.Stages {
			status := "ok"
			if !s.OK {
				status = "failed"
			}
			fmt.Printf("stage=%s status=%s\n", s.Stage, status)
			if s.Error != "" {
				fmt.Fprintf(os.Stderr, "  %s: %s\n", s.Stage, s.Error)
			}
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if res == nil || !res.OK {
		os.Exit(1)
	}
}
