package compiler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danshapiro/openclaw/internal/dagengine"
	"github.com/danshapiro/openclaw/internal/llmcontract"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

const sampleProposal = `# Train a classifier

Use https://github.com/acme/widgets as the base repo.
Fine-tune on huggingface.co/datasets/acme/widget-images.
Target accuracy >= 0.9.
`

func TestExtractHeuristically_FindsRepoAndDataset(t *testing.T) {
	entities := extractHeuristically(sampleProposal)
	if len(entities.Repos) != 1 || entities.Repos[0].Ref != "acme/widgets" {
		t.Fatalf("repos = %+v", entities.Repos)
	}
	if len(entities.Datasets) != 1 || entities.Datasets[0].Ref != "acme/widget-images" {
		t.Fatalf("datasets = %+v", entities.Datasets)
	}
	if entities.Datasets[0].Source != DatasetHuggingFace {
		t.Fatalf("dataset source = %q, want huggingface", entities.Datasets[0].Source)
	}
}

func TestExtractHeuristically_FindsBareRepoRef(t *testing.T) {
	entities := extractHeuristically("# X\nRepo: foo/bar\n")
	if len(entities.Repos) != 1 || entities.Repos[0].Ref != "foo/bar" {
		t.Fatalf("repos = %+v", entities.Repos)
	}
}

func TestExtractEntities_LLMFailureFallsBackToHeuristics(t *testing.T) {
	completer := llmcontract.CompleterFunc(func(ctx context.Context, req llmcontract.CompletionRequest) (string, error) {
		return "", context.DeadlineExceeded
	})
	entities, warnings := ExtractEntities(context.Background(), sampleProposal, completer, "test", "m")
	if len(warnings) == 0 {
		t.Fatalf("expected a warning about the LLM failure")
	}
	if len(entities.Repos) != 1 {
		t.Fatalf("expected heuristic fallback to still find the repo, got %+v", entities.Repos)
	}
}

func TestExtractEntities_LLMSuccessIsUsedVerbatim(t *testing.T) {
	completer := llmcontract.CompleterFunc(func(ctx context.Context, req llmcontract.CompletionRequest) (string, error) {
		return `{"repos":[{"ref":"foo/bar"}],"metrics":[{"name":"f1","target":0.8,"op":">="}],"deliverables":["model card"]}`, nil
	})
	entities, warnings := ExtractEntities(context.Background(), sampleProposal, completer, "test", "m")
	if len(warnings) != 0 {
		t.Fatalf("unexpected warnings: %v", warnings)
	}
	if len(entities.Repos) != 1 || entities.Repos[0].Ref != "foo/bar" {
		t.Fatalf("repos = %+v", entities.Repos)
	}
	if len(entities.Metrics) != 1 || entities.Metrics[0].Target == nil || *entities.Metrics[0].Target != 0.8 {
		t.Fatalf("metrics = %+v", entities.Metrics)
	}
}

func TestDiscover_OffModeNeverProbes(t *testing.T) {
	entities := Entities{
		Repos:    []RepoRef{{Ref: "acme/widgets", Label: "acme-widgets"}},
		Datasets: []DatasetRef{{Ref: "acme/widget-images", Label: "acme-widget-images", Source: DatasetHuggingFace}},
	}
	d := Discover(context.Background(), entities, DiscoveryOff)
	if d.Repos[0].Exists {
		t.Fatalf("discovery-off must not mark a repo as verified")
	}
	if !d.Datasets[0].NeedsConfirm {
		t.Fatalf("discovery-off dataset must be needs-confirm")
	}
}

func TestDiscover_KaggleAlwaysDeferred(t *testing.T) {
	entities := Entities{
		Datasets: []DatasetRef{{Ref: "acme/kaggle-set", Label: "acme-kaggle-set", Source: DatasetKaggle}},
	}
	d := Discover(context.Background(), entities, DiscoverySample)
	if !d.Datasets[0].NeedsConfirm {
		t.Fatalf("Kaggle dataset must always be needs-confirm, even at sample discovery")
	}
}

func TestBuildSkeletonDAG_IsStructurallyValid(t *testing.T) {
	entities := Entities{
		Repos:    []RepoRef{{Ref: "acme/widgets", Label: "acme-widgets"}},
		Datasets: []DatasetRef{{Ref: "acme/widget-images", Label: "acme-widget-images", Source: DatasetHuggingFace}},
	}
	dag := BuildSkeletonDAG(entities)

	if _, err := dagengine.ValidateDAG(&dag); err != nil {
		t.Fatalf("ValidateDAG: %v", err)
	}
	for _, id := range []string{reviewNodeID, "repo.fetch.acme-widgets", "repo.check.acme-widgets",
		"data.sample.acme-widget-images", "setup.venv", "install.deps", "train.run", "eval.run", "report.write"} {
		if dag.NodeByID(id) == nil {
			t.Fatalf("expected node %q in skeleton DAG", id)
		}
	}
}

func TestBuildSkeletonDAG_KaggleDatasetGetsFetchNode(t *testing.T) {
	entities := Entities{
		Datasets: []DatasetRef{{Ref: "acme/kset", Label: "acme-kset", Source: DatasetKaggle}},
	}
	dag := BuildSkeletonDAG(entities)
	if dag.NodeByID("data.fetch.acme-kset") == nil {
		t.Fatalf("expected a data.fetch node for a Kaggle dataset")
	}
}

func TestBuildAcceptanceSpec_MissingTargetNeedsConfirm(t *testing.T) {
	entities := Entities{Metrics: []MetricTarget{{Name: "novel_metric"}}}
	spec, _ := BuildAcceptanceSpec(context.Background(), entities, nil, "", "")
	var found bool
	for _, c := range spec.Checks {
		if c.Selector == "novel_metric" {
			found = true
			if !c.NeedsConfirm {
				t.Fatalf("metric with no target must be needs_confirm")
			}
		}
	}
	if !found {
		t.Fatalf("expected a check for novel_metric")
	}
}

func TestBuildRetrySpec_HasEightPoliciesAndDefault(t *testing.T) {
	spec := BuildRetrySpec()
	if len(spec.Policies) != 8 {
		t.Fatalf("expected 8 policies, got %d", len(spec.Policies))
	}
	if spec.DefaultPolicyID != DefaultRetryPolicyID {
		t.Fatalf("default policy id = %q, want %q", spec.DefaultPolicyID, DefaultRetryPolicyID)
	}
	found := false
	for _, p := range spec.Policies {
		if p.ID == spec.DefaultPolicyID {
			found = true
		}
	}
	if !found {
		t.Fatalf("default policy id must name an actual policy")
	}
}

func TestAggregateNeedsConfirm_FlagsMissingGPUResources(t *testing.T) {
	dag := BuildSkeletonDAG(Entities{})
	items := aggregateNeedsConfirm(Discovery{}, planmodel.AcceptanceSpec{}, dag)
	var sawGPU bool
	for _, item := range items {
		if item == "train.run has no inferred GPU resource constraint" {
			sawGPU = true
		}
	}
	if !sawGPU {
		t.Fatalf("expected a needs-confirm item for the missing GPU constraint, got %v", items)
	}
}

func TestCompile_WritesAFullPlanPackage(t *testing.T) {
	workspace := t.TempDir()
	result, err := Compile(context.Background(), sampleProposal, Options{
		WorkspaceDir: workspace,
		Discovery:    DiscoveryOff,
		Now:          func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected ok=true")
	}

	layout := planmodel.NewLayout(result.RootDir)
	for _, path := range []string{
		layout.InputProposal(), layout.InputContext(), layout.IRExtracted(), layout.IRDiscovery(),
		layout.PlanDAG(), layout.PlanAcceptance(), layout.PlanRetry(), layout.CompileReport(),
		layout.NeedsConfirm(), layout.Runbook(),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s to exist: %v", path, err)
		}
	}

	if b, err := os.ReadFile(layout.Runbook()); err != nil || !strings.Contains(string(b), "# Runbook") {
		t.Fatalf("expected runbook.md to contain a heading, err=%v", err)
	}

	b, err := os.ReadFile(layout.PlanDAG())
	if err != nil {
		t.Fatalf("read plan dag: %v", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		t.Fatalf("unmarshal plan dag: %v", err)
	}
	if err := planmodel.ValidateDocument(planmodel.DocPlanDAG, generic); err != nil {
		t.Fatalf("plan dag fails schema validation: %v", err)
	}

	if result.Report.PlanID != result.PlanID {
		t.Fatalf("report plan id %q != result plan id %q", result.Report.PlanID, result.PlanID)
	}
	if filepath.Base(result.RootDir) != result.PlanID {
		t.Fatalf("root dir %q should end in plan id %q", result.RootDir, result.PlanID)
	}
}
