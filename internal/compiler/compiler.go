package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/danshapiro/openclaw/internal/llmcontract"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

// Options configures Compile.
type Options struct {
	WorkspaceDir string
	Discovery    DiscoveryMode
	Completer    llmcontract.Completer // nil disables LLM extraction/suggestion
	Provider     string
	Model        string
	AgentID      string
	Now          func() time.Time // defaults to time.Now
}

// Compile implements spec.md §4.1: it turns proposal markdown into a fully
// populated plan package under opts.WorkspaceDir/<planId>/ and returns a
// CompileProposalResult. Any I/O error writing a required artifact is
// fatal and both returns ok=false in the result and a non-nil error; an LLM
// failure degrades to heuristics with a warning and is never fatal.
func Compile(ctx context.Context, proposal string, opts Options) (*CompileProposalResult, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	planID := planmodel.NewPlanID(now(), string(opts.Discovery), opts.Model, []byte(proposal))
	rootDir := filepath.Join(opts.WorkspaceDir, planID)
	layout := planmodel.NewLayout(rootDir)

	fail := func(err error) (*CompileProposalResult, error) {
		return &CompileProposalResult{OK: false, PlanID: planID, RootDir: rootDir}, err
	}

	if err := layout.Ensure(); err != nil {
		return fail(fmt.Errorf("create plan layout: %w", err))
	}
	if err := os.WriteFile(layout.InputProposal(), []byte(proposal), 0o644); err != nil {
		return fail(fmt.Errorf("write proposal: %w", err))
	}
	inputCtx := planmodel.InputContext{
		PlanID: planID, DiscoveryMode: string(opts.Discovery), ModelKey: opts.Model, AgentID: opts.AgentID,
	}
	if err := writeJSONFile(layout.InputContext(), inputCtx); err != nil {
		return fail(fmt.Errorf("write input context: %w", err))
	}

	var warnings, errs []string

	entities, extractWarnings := ExtractEntities(ctx, proposal, opts.Completer, opts.Provider, opts.Model)
	warnings = append(warnings, extractWarnings...)
	if err := writeJSONFile(layout.IRExtracted(), entities); err != nil {
		return fail(fmt.Errorf("write extracted entities: %w", err))
	}

	discovery := Discover(ctx, entities, opts.Discovery)
	if err := writeJSONFile(layout.IRDiscovery(), discovery); err != nil {
		return fail(fmt.Errorf("write discovery: %w", err))
	}

	dag := BuildSkeletonDAG(entities)
	if err := writeJSONFile(layout.PlanDAG(), dag); err != nil {
		return fail(fmt.Errorf("write plan dag: %w", err))
	}

	acceptanceSpec, acceptanceWarnings := BuildAcceptanceSpec(ctx, entities, opts.Completer, opts.Provider, opts.Model)
	warnings = append(warnings, acceptanceWarnings...)
	if err := writeJSONFile(layout.PlanAcceptance(), acceptanceSpec); err != nil {
		return fail(fmt.Errorf("write acceptance spec: %w", err))
	}

	retrySpec := BuildRetrySpec()
	if err := writeJSONFile(layout.PlanRetry(), retrySpec); err != nil {
		return fail(fmt.Errorf("write retry spec: %w", err))
	}

	needsConfirm := aggregateNeedsConfirm(discovery, acceptanceSpec, dag)
	if err := os.WriteFile(layout.NeedsConfirm(), []byte(renderNeedsConfirm(needsConfirm)), 0o644); err != nil {
		return fail(fmt.Errorf("write needs_confirm.md: %w", err))
	}
	if err := os.WriteFile(layout.Runbook(), []byte(renderRunbook(dag)), 0o644); err != nil {
		return fail(fmt.Errorf("write runbook.md: %w", err))
	}

	report := planmodel.CompileReport{
		PlanID:       planID,
		CreatedAt:    now().UTC().Format(time.RFC3339),
		Model:        opts.Model,
		Discovery:    string(opts.Discovery),
		Warnings:     warnings,
		Errors:       errs,
		NeedsConfirm: needsConfirm,
	}
	if err := writeJSONFile(layout.CompileReport(), report); err != nil {
		return fail(fmt.Errorf("write compile report: %w", err))
	}

	return &CompileProposalResult{
		OK:      true,
		PlanID:  planID,
		RootDir: rootDir,
		Report:  report,
		Paths: map[string]string{
			"proposal":     layout.InputProposal(),
			"planDAG":      layout.PlanDAG(),
			"acceptance":   layout.PlanAcceptance(),
			"retry":        layout.PlanRetry(),
			"report":       layout.CompileReport(),
			"needsConfirm": layout.NeedsConfirm(),
			"runbook":      layout.Runbook(),
		},
	}, nil
}

func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return os.WriteFile(path, b, 0o644)
}
