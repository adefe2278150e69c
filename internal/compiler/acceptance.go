package compiler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danshapiro/openclaw/internal/llmcontract"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

// BuildAcceptanceSpec implements spec.md §4.1 step 5: heuristic defaults
// (the two standard report artifacts), one metric_threshold check per
// extracted metric, and, if an LLM is configured, supplementary checks it
// suggests. Any metric without a concrete numeric target is written with
// needs_confirm=true, never silently dropped.
func BuildAcceptanceSpec(ctx context.Context, entities Entities, completer llmcontract.Completer, provider, model string) (planmodel.AcceptanceSpec, []string) {
	var warnings []string
	spec := planmodel.AcceptanceSpec{SchemaVersion: 1}

	spec.Checks = append(spec.Checks,
		planmodel.AcceptanceCheck{
			ID: "artifact.final_metrics", Type: planmodel.CheckArtifactExists,
			Selector: "report/final_metrics.json", SuggestedBy: planmodel.SuggestedByCompiler,
		},
		planmodel.AcceptanceCheck{
			ID: "artifact.final_report", Type: planmodel.CheckArtifactExists,
			Selector: "report/final_report.md", SuggestedBy: planmodel.SuggestedByCompiler,
		},
	)

	for _, m := range entities.Metrics {
		check := planmodel.AcceptanceCheck{
			ID: "metric." + m.Name, Type: planmodel.CheckMetricThreshold,
			Selector: m.Name, Unit: m.Unit, SuggestedBy: planmodel.SuggestedByProposal,
		}
		if m.Target == nil {
			check.NeedsConfirm = true
		} else {
			check.Value = *m.Target
			op := m.Op
			if op == "" {
				op = string(planmodel.OpGE)
			}
			check.Op = planmodel.CheckOp(op)
		}
		spec.Checks = append(spec.Checks, check)
	}

	if completer != nil {
		suggested, err := suggestAcceptanceChecks(ctx, entities, completer, provider, model)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("LLM acceptance suggestion failed: %v", err))
		} else {
			spec.Checks = append(spec.Checks, suggested...)
		}
	}

	return spec, warnings
}

const suggestAcceptancePrompt = `Given these extracted experiment metrics and deliverables, suggest any
additional acceptance checks (beyond artifact existence and the metrics
already listed) that should gate this run. Respond with a JSON array of
{"id": "...", "selector": "...", "description": "..."} objects, or [] if
there is nothing to add.

Metrics: %v
Deliverables: %v`

func suggestAcceptanceChecks(ctx context.Context, entities Entities, completer llmcontract.Completer, provider, model string) ([]planmodel.AcceptanceCheck, error) {
	raw, err := completer.Complete(ctx, llmcontract.CompletionRequest{
		Provider: provider, Model: model,
		Prompt: fmt.Sprintf(suggestAcceptancePrompt, entities.Metrics, entities.Deliverables),
	})
	if err != nil {
		return nil, err
	}
	raw = extractJSONArray(raw)

	var suggestions []struct {
		ID          string `json:"id"`
		Selector    string `json:"selector"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal([]byte(raw), &suggestions); err != nil {
		return nil, err
	}

	var out []planmodel.AcceptanceCheck
	for _, s := range suggestions {
		if s.Selector == "" {
			continue
		}
		out = append(out, planmodel.AcceptanceCheck{
			ID: s.ID, Type: planmodel.CheckArtifactExists, Selector: s.Selector,
			Description: s.Description, SuggestedBy: planmodel.SuggestedByLLM, NeedsConfirm: true,
		})
	}
	return out, nil
}
