package dagengine

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

// globMetaChars are the characters doublestar gives special meaning to.
// Node inputs/outputs are plain relative paths this system writes and reads
// directly, never patterns, so any of these only ever appears by a
// compiler/refine bug emitting a glob instead of a concrete path.
const globMetaChars = `*?[]{}`

// Severity classifies a Diagnostic's impact on the validate stage's outcome.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one finding from ValidateConventions.
type Diagnostic struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// ConventionOptions controls which conventions are enforced.
type ConventionOptions struct {
	// StrictResume additionally requires the training node to be
	// restart-safe: a checkpoint manifest output, an entry-point script
	// invocation, and the two checkpoint-related env vars.
	StrictResume bool
}

const (
	envPlanDir       = "OPENCLAW_PLAN_DIR"
	envCheckpointDir = "OPENCLAW_CHECKPOINT_DIR"
	trainScriptPath  = "plan/scripts/train.run.sh"
)

// ValidateConventions checks the node-naming and output conventions the rest
// of the system (and strict resume) depend on. It never mutates dag.
func ValidateConventions(dag *planmodel.PlanDAG, opts ConventionOptions) []Diagnostic {
	var diags []Diagnostic

	setupVenv := findNodeByType(dag, planmodel.NodeTypeSetupVenv)
	if setupVenv != nil {
		required := map[string]string{
			"cache_venv": "cache/venv/",
			"cache_hf":   "cache/hf",
			"cache_pip":  "cache/pip",
		}
		for name, prefix := range required {
			if !anyOutputHasPrefix(setupVenv.Outputs, prefix) {
				diags = append(diags, Diagnostic{
					Rule:     "setup.venv.outputs",
					Severity: SeverityError,
					Message:  fmt.Sprintf("setup.venv node %q is missing a %s output (expected prefix %q)", setupVenv.ID, name, prefix),
				})
			}
		}
	}

	trainRun := findNodeByType(dag, planmodel.NodeTypeTrain)
	if trainRun != nil {
		if !anyOutputHasPrefix(trainRun.Outputs, "artifacts/model/") {
			diags = append(diags, Diagnostic{
				Rule:     "train.run.outputs",
				Severity: SeverityError,
				Message:  fmt.Sprintf("train node %q is missing an artifacts/model/ output", trainRun.ID),
			})
		}
		if opts.StrictResume {
			diags = append(diags, validateStrictResume(trainRun)...)
		}
	}

	diags = append(diags, validateNoGlobMetachars(dag)...)

	return diags
}

// validateNoGlobMetachars rejects any node input/output containing a glob
// metacharacter, using doublestar.Match (the same matcher internal/accept's
// archival globbing uses) to distinguish a well-formed-but-forbidden
// pattern from outright malformed glob syntax in the diagnostic message.
func validateNoGlobMetachars(dag *planmodel.PlanDAG) []Diagnostic {
	var diags []Diagnostic
	check := func(nodeID, field, path string) {
		if !strings.ContainsAny(path, globMetaChars) {
			return
		}
		if _, err := doublestar.Match(path, path); err != nil {
			diags = append(diags, Diagnostic{
				Rule:     "no_glob_metachars",
				Severity: SeverityError,
				Message:  fmt.Sprintf("node %q %s %q is not even a valid glob pattern: %v", nodeID, field, path, err),
			})
			return
		}
		diags = append(diags, Diagnostic{
			Rule:     "no_glob_metachars",
			Severity: SeverityError,
			Message:  fmt.Sprintf("node %q %s %q contains a glob metacharacter (%s); inputs/outputs must be literal paths", nodeID, field, path, globMetaChars),
		})
	}
	for _, n := range dag.Nodes {
		for _, p := range n.Inputs {
			check(n.ID, "input", p)
		}
		for _, p := range n.Outputs {
			check(n.ID, "output", p)
		}
	}
	return diags
}

func validateStrictResume(trainRun *planmodel.Node) []Diagnostic {
	var diags []Diagnostic
	if !anyOutputHasPrefix(trainRun.Outputs, "report/checkpoint_manifest.json") {
		diags = append(diags, Diagnostic{
			Rule:     "strict_resume.checkpoint_manifest",
			Severity: SeverityError,
			Message:  fmt.Sprintf("train node %q must output report/checkpoint_manifest.json under strict resume", trainRun.ID),
		})
	}
	if !anyCommandInvokes(trainRun.Commands, trainScriptPath) {
		diags = append(diags, Diagnostic{
			Rule:     "strict_resume.entrypoint",
			Severity: SeverityError,
			Message:  fmt.Sprintf("train node %q must invoke %s under strict resume", trainRun.ID, trainScriptPath),
		})
	}
	for _, envVar := range []string{envPlanDir, envCheckpointDir} {
		if _, ok := trainRun.Env[envVar]; !ok {
			diags = append(diags, Diagnostic{
				Rule:     "strict_resume.env",
				Severity: SeverityError,
				Message:  fmt.Sprintf("train node %q must set env %s under strict resume", trainRun.ID, envVar),
			})
		}
	}
	return diags
}

func findNodeByType(dag *planmodel.PlanDAG, typ string) *planmodel.Node {
	for i := range dag.Nodes {
		if dag.Nodes[i].Type == typ {
			return &dag.Nodes[i]
		}
	}
	return nil
}

func anyOutputHasPrefix(outputs []string, prefix string) bool {
	for _, o := range outputs {
		if strings.HasPrefix(o, prefix) {
			return true
		}
	}
	return false
}

func anyCommandInvokes(commands []string, script string) bool {
	for _, c := range commands {
		if strings.Contains(c, script) {
			return true
		}
	}
	return false
}

// HasErrors reports whether any diagnostic is an error (as opposed to a
// warning).
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == SeverityError {
			return true
		}
	}
	return false
}
