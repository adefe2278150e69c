package pipeline

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danshapiro/openclaw/internal/dagengine"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

// validateResult is the detail payload attached to a "validate" StageResult.
type validateResult struct {
	Order       []string              `json:"order,omitempty"`
	Diagnostics []dagengine.Diagnostic `json:"diagnostics,omitempty"`
}

// validatePlan implements the validate stage shared by plan and execute
// modes: schema validation, cycle/dup/edge-endpoint checks, and convention
// checks (strict resume only under execute mode's pre-execute validation).
func validatePlan(layout planmodel.Layout, strictResume bool) (*planmodel.PlanDAG, validateResult, error) {
	b, err := os.ReadFile(layout.PlanDAG())
	if err != nil {
		return nil, validateResult{}, fmt.Errorf("read plan dag: %w", err)
	}

	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, validateResult{}, fmt.Errorf("parse plan dag: %w", err)
	}
	if err := planmodel.ValidateDocument(planmodel.DocPlanDAG, generic); err != nil {
		return nil, validateResult{}, fmt.Errorf("schema: %w", err)
	}

	var dag planmodel.PlanDAG
	if err := json.Unmarshal(b, &dag); err != nil {
		return nil, validateResult{}, fmt.Errorf("parse plan dag: %w", err)
	}

	order, err := dagengine.ValidateDAG(&dag)
	if err != nil {
		return &dag, validateResult{}, fmt.Errorf("dag: %w", err)
	}

	diags := dagengine.ValidateConventions(&dag, dagengine.ConventionOptions{StrictResume: strictResume})
	if dagengine.HasErrors(diags) {
		return &dag, validateResult{Order: order, Diagnostics: diags}, fmt.Errorf("conventions: %d error-level diagnostic(s)", countErrors(diags))
	}

	return &dag, validateResult{Order: order, Diagnostics: diags}, nil
}

func countErrors(diags []dagengine.Diagnostic) int {
	n := 0
	for _, d := range diags {
		if d.Severity == dagengine.SeverityError {
			n++
		}
	}
	return n
}
