package dagengine

import (
	"testing"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

func assertHasRule(t *testing.T, diags []Diagnostic, rule string) {
	t.Helper()
	for _, d := range diags {
		if d.Rule == rule {
			return
		}
	}
	t.Fatalf("expected a diagnostic with rule %q, got %+v", rule, diags)
}

func baseDag() *planmodel.PlanDAG {
	return &planmodel.PlanDAG{
		Nodes: []planmodel.Node{
			{ID: "setup.venv", Type: planmodel.NodeTypeSetupVenv, Tool: planmodel.ToolShell,
				Outputs: []string{"cache/venv/foo", "cache/hf", "cache/pip"}},
			{ID: "train.run", Type: planmodel.NodeTypeTrain, Tool: planmodel.ToolShell,
				Outputs: []string{"artifacts/model/foo"}, Env: map[string]string{}},
		},
	}
}

func TestValidateConventions_PassesOnWellFormedDag(t *testing.T) {
	diags := ValidateConventions(baseDag(), ConventionOptions{})
	if HasErrors(diags) {
		t.Fatalf("unexpected errors: %+v", diags)
	}
}

func TestValidateConventions_FlagsMissingSetupOutputs(t *testing.T) {
	dag := baseDag()
	dag.Nodes[0].Outputs = nil
	diags := ValidateConventions(dag, ConventionOptions{})
	assertHasRule(t, diags, "setup.venv.outputs")
}

func TestValidateConventions_FlagsMissingTrainOutput(t *testing.T) {
	dag := baseDag()
	dag.Nodes[1].Outputs = nil
	diags := ValidateConventions(dag, ConventionOptions{})
	assertHasRule(t, diags, "train.run.outputs")
}

func TestValidateConventions_StrictResumeRequiresCheckpointScriptAndEnv(t *testing.T) {
	dag := baseDag()
	diags := ValidateConventions(dag, ConventionOptions{StrictResume: true})
	assertHasRule(t, diags, "strict_resume.checkpoint_manifest")
	assertHasRule(t, diags, "strict_resume.entrypoint")
	assertHasRule(t, diags, "strict_resume.env")
}

func TestValidateConventions_FlagsGlobMetacharsInOutputs(t *testing.T) {
	dag := baseDag()
	dag.Nodes[0].Outputs = append(dag.Nodes[0].Outputs, "cache/venv/*")
	diags := ValidateConventions(dag, ConventionOptions{})
	assertHasRule(t, diags, "no_glob_metachars")
}

func TestValidateConventions_StrictResumeSatisfied(t *testing.T) {
	dag := baseDag()
	dag.Nodes[1].Outputs = append(dag.Nodes[1].Outputs, "report/checkpoint_manifest.json")
	dag.Nodes[1].Commands = []string{"bash plan/scripts/train.run.sh"}
	dag.Nodes[1].Env = map[string]string{
		"OPENCLAW_PLAN_DIR":       "/plan",
		"OPENCLAW_CHECKPOINT_DIR": "/plan/checkpoints",
	}
	diags := ValidateConventions(dag, ConventionOptions{StrictResume: true})
	if HasErrors(diags) {
		t.Fatalf("unexpected errors: %+v", diags)
	}
}
