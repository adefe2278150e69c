package planmodel

// InputContext is input/context.json: the parameters the plan was compiled
// with, recorded so later stages and humans reading the plan package don't
// need to reconstruct them from the CLI invocation.
type InputContext struct {
	PlanID        string `json:"planId"`
	DiscoveryMode string `json:"discoveryMode"`
	ModelKey      string `json:"modelKey,omitempty"`
	AgentID       string `json:"agentId,omitempty"`
}

// CompileReport is the summary written to report/compile_report.json.
type CompileReport struct {
	PlanID       string   `json:"planId"`
	CreatedAt    string   `json:"createdAt"`
	Model        string   `json:"model,omitempty"`
	Discovery    string   `json:"discovery"`
	Warnings     []string `json:"warnings,omitempty"`
	Errors       []string `json:"errors,omitempty"`
	NeedsConfirm []string `json:"needsConfirm,omitempty"`
}
