package compiler

import (
	"fmt"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

const reviewNodeID = "review.needs_confirm"

// BuildSkeletonDAG implements spec.md §4.1 step 4: a review gate, one
// fetch/check pair per repo, one sample (and, for Kaggle, fetch) node per
// dataset, and the fixed execution chain, all gated behind the review node.
func BuildSkeletonDAG(entities Entities) planmodel.PlanDAG {
	dag := planmodel.PlanDAG{SchemaVersion: 1}
	dag.Nodes = append(dag.Nodes, planmodel.Node{
		ID: reviewNodeID, Type: planmodel.NodeTypeManualReview, Tool: planmodel.ToolManual,
	})

	for _, r := range entities.Repos {
		repoKey := planmodel.RepoKey(r.Ref)
		fetchID := "repo.fetch." + r.Label
		checkID := "repo.check." + r.Label
		dag.Nodes = append(dag.Nodes, planmodel.Node{
			ID: fetchID, Type: planmodel.NodeTypeFetchRepo, Tool: planmodel.ToolShell,
			Commands: []string{fmt.Sprintf("git clone --depth 1 %s cache/git/%s", repoCloneURL(r.Ref), repoKey)},
			Outputs:  []string{"cache/git/" + repoKey},
		})
		dag.Nodes = append(dag.Nodes, planmodel.Node{
			ID: checkID, Type: planmodel.NodeTypeStaticChecks, Tool: planmodel.ToolShell,
			Inputs:   []string{"cache/git/" + repoKey},
			Commands: []string{fmt.Sprintf("openclaw static-checks --repo cache/git/%s", repoKey)},
			Outputs:  []string{"ir/repo_profiles/" + r.Label + ".json"},
		})
		dag.Edges = append(dag.Edges,
			planmodel.Edge{From: fetchID, To: checkID},
			planmodel.Edge{From: checkID, To: reviewNodeID},
		)
	}

	for _, d := range entities.Datasets {
		sampleID := "data.sample." + d.Label
		dag.Nodes = append(dag.Nodes, planmodel.Node{
			ID: sampleID, Type: planmodel.NodeTypeFetchDatasetSample, Tool: planmodel.ToolShell,
			Commands: []string{fmt.Sprintf("openclaw dataset-sample --ref %s --source %s --out cache/hf/%s.json", d.Ref, d.Source, d.Label)},
			Outputs:  []string{"cache/hf/" + d.Label + ".json"},
		})
		dag.Edges = append(dag.Edges, planmodel.Edge{From: sampleID, To: reviewNodeID})

		if d.Source == DatasetKaggle {
			fetchID := "data.fetch." + d.Label
			dag.Nodes = append(dag.Nodes, planmodel.Node{
				ID: fetchID, Type: planmodel.NodeTypeFetchDatasetKaggle, Tool: planmodel.ToolShell,
				Commands: []string{fmt.Sprintf("openclaw dataset-fetch --ref %s --source kaggle --out cache/hf/%s", d.Ref, d.Label)},
				Outputs:  []string{"cache/hf/" + d.Label},
			})
			dag.Edges = append(dag.Edges, planmodel.Edge{From: fetchID, To: reviewNodeID, Reason: "requires confirmed Kaggle credentials"})
		}
	}

	resources := inferResources(entities.Constraints)
	setupID, installID, trainID, evalID, reportID := "setup.venv", "install.deps", "train.run", "eval.run", "report.write"

	dag.Nodes = append(dag.Nodes,
		planmodel.Node{
			ID: setupID, Type: planmodel.NodeTypeSetupVenv, Tool: planmodel.ToolShell,
			Commands: []string{"python3 -m venv cache/venv/main"},
			Outputs:  []string{"cache/venv/main", "cache/hf", "cache/pip"},
		},
		planmodel.Node{
			ID: installID, Type: planmodel.NodeTypeInstallDeps, Tool: planmodel.ToolShell,
			Inputs:   []string{"cache/venv/main"},
			Commands: []string{"cache/venv/main/bin/pip install -r requirements.txt"},
		},
		planmodel.Node{
			ID: trainID, Type: planmodel.NodeTypeTrain, Tool: planmodel.ToolShell,
			Inputs:    []string{"cache/venv/main"},
			Commands:  []string{"plan/scripts/train.run.sh"},
			Outputs:   []string{"artifacts/model/main", "report/checkpoint_manifest.json"},
			Resources: resources,
			Env: map[string]string{
				"OPENCLAW_PLAN_DIR":       ".",
				"OPENCLAW_CHECKPOINT_DIR": "artifacts/model/main/checkpoints",
			},
		},
		planmodel.Node{
			ID: evalID, Type: planmodel.NodeTypeEval, Tool: planmodel.ToolShell,
			Inputs:   []string{"artifacts/model/main"},
			Commands: []string{"plan/scripts/eval.run.sh"},
			Outputs:  []string{"report/eval_metrics.json"},
		},
		planmodel.Node{
			ID: reportID, Type: planmodel.NodeTypeReport, Tool: planmodel.ToolShell,
			Inputs:   []string{"report/eval_metrics.json"},
			Commands: []string{"openclaw report-write --out report/final_report.md --metrics-out report/final_metrics.json"},
			Outputs:  []string{"report/final_report.md", "report/final_metrics.json"},
		},
	)
	dag.Edges = append(dag.Edges,
		planmodel.Edge{From: reviewNodeID, To: setupID},
		planmodel.Edge{From: setupID, To: installID},
		planmodel.Edge{From: installID, To: trainID},
		planmodel.Edge{From: trainID, To: evalID},
		planmodel.Edge{From: evalID, To: reportID},
	)

	return dag
}

// inferResources builds train.run's Resources from extracted constraints,
// per spec.md §4.1 step 4 ("train.run receives inferred resources from
// entity constraints"). Returns nil (no resources block) when nothing was
// extracted, which internal/compiler's needs-confirm aggregation flags.
func inferResources(c *Constraints) *planmodel.Resources {
	if c == nil || c.GPUCount <= 0 {
		return nil
	}
	return &planmodel.Resources{
		GPUCount:         c.GPUCount,
		GPUType:          c.GPUType,
		GPUMemGB:         c.GPUMemGB,
		EstimatedMinutes: c.EstimatedMinutes,
	}
}
