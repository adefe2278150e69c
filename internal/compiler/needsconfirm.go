package compiler

import (
	"fmt"
	"strings"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

// aggregateNeedsConfirm implements spec.md §4.1 step 7: unverified repos,
// Kaggle datasets, acceptance checks with needs_confirm, and a train node
// with no inferred GPU constraint all surface as needs-confirm items.
func aggregateNeedsConfirm(discovery Discovery, acceptance planmodel.AcceptanceSpec, dag planmodel.PlanDAG) []string {
	var items []string

	for _, r := range discovery.Repos {
		if !r.Exists {
			items = append(items, fmt.Sprintf("repo %q could not be verified to exist", r.Ref))
		}
	}
	for _, d := range discovery.Datasets {
		if d.NeedsConfirm {
			if d.Source == DatasetKaggle {
				items = append(items, fmt.Sprintf("dataset %q requires confirmed Kaggle credentials", d.Ref))
			} else {
				items = append(items, fmt.Sprintf("dataset %q could not be sampled and needs confirmation", d.Ref))
			}
		}
	}
	for _, c := range acceptance.Checks {
		if c.NeedsConfirm {
			items = append(items, fmt.Sprintf("acceptance check %q needs confirmation", checkLabel(c)))
		}
	}

	if trainRun := dag.NodeByID("train.run"); trainRun != nil && (trainRun.Resources == nil || trainRun.Resources.GPUCount <= 0) {
		items = append(items, "train.run has no inferred GPU resource constraint")
	}

	return items
}

func checkLabel(c planmodel.AcceptanceCheck) string {
	if c.ID != "" {
		return c.ID
	}
	return c.Selector
}

// renderNeedsConfirm writes report/needs_confirm.md: one bullet per item
// aggregateNeedsConfirm surfaced, so a human reviewer has something to read
// before a plan's safe-subset/refine stages proceed unattended.
func renderNeedsConfirm(items []string) string {
	var b strings.Builder
	b.WriteString("# Needs Confirmation\n\n")
	if len(items) == 0 {
		b.WriteString("Nothing needs confirmation.\n")
		return b.String()
	}
	for _, item := range items {
		fmt.Fprintf(&b, "- %s\n", item)
	}
	return b.String()
}

// renderRunbook writes report/runbook.md: the compiled DAG's nodes in
// declaration order, one section per node naming its type, tool, and the
// shell commands (if any) a human would run by hand to reproduce it.
func renderRunbook(dag planmodel.PlanDAG) string {
	var b strings.Builder
	b.WriteString("# Runbook\n\n")
	for _, n := range dag.Nodes {
		fmt.Fprintf(&b, "## %s\n\ntype: %s, tool: %s\n\n", n.ID, n.Type, n.Tool)
		if len(n.Commands) == 0 {
			b.WriteString("(no commands; reviewed or invoked out of band)\n\n")
			continue
		}
		b.WriteString("```\n")
		for _, c := range n.Commands {
			b.WriteString(c)
			b.WriteString("\n")
		}
		b.WriteString("```\n\n")
	}
	return b.String()
}
