package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/danshapiro/openclaw/internal/llmcontract"
	"github.com/danshapiro/openclaw/internal/planmodel"
)

var (
	githubRepoRe  = regexp.MustCompile(`github\.com/([\w.-]+/[\w.-]+?)(?:\.git)?(?:[/?#]|\s|$)`)
	bareRepoRe    = regexp.MustCompile(`(?im)^\s*repo(?:sitory)?\s*:\s*([\w.-]+/[\w.-]+?)(?:\.git)?\s*$`)
	hfDatasetRe   = regexp.MustCompile(`huggingface\.co/datasets/([\w.-]+/[\w.-]+)`)
	kaggleDataset = regexp.MustCompile(`kaggle\.com/datasets/([\w.-]+/[\w.-]+)`)
)

// extractionPrompt is sent to the LLM when a Completer is configured. The
// model is asked for exactly this JSON shape; a response that fails to
// parse or validate degrades to the heuristic extraction with a warning,
// per spec.md §4.1 step 2.
const extractionPrompt = `Extract structured entities from the following experiment proposal.
Respond with nothing but JSON matching this shape:
{"repos": [{"ref": "owner/repo"}], "datasets": [{"ref": "owner/dataset", "source": "huggingface"|"kaggle"}], "metrics": [{"name": "...", "target": 0.9, "op": ">="}], "constraints": {"gpuCount": 1, "gpuType": "A100", "gpuMemGB": 40}, "deliverables": ["..."], "notes": "..."}
Omit any field you cannot determine. Use null, not a guess, for an unknown numeric target.

Proposal:
%s`

// ExtractEntities implements spec.md §4.1 step 2. completer may be nil, in
// which case heuristic extraction runs unconditionally.
func ExtractEntities(ctx context.Context, proposal string, completer llmcontract.Completer, provider, model string) (Entities, []string) {
	var warnings []string
	if completer != nil {
		entities, err := extractWithLLM(ctx, proposal, completer, provider, model)
		if err == nil {
			return entities, warnings
		}
		warnings = append(warnings, fmt.Sprintf("LLM entity extraction failed, falling back to heuristics: %v", err))
	}
	return extractHeuristically(proposal), warnings
}

func extractWithLLM(ctx context.Context, proposal string, completer llmcontract.Completer, provider, model string) (Entities, error) {
	raw, err := completer.Complete(ctx, llmcontract.CompletionRequest{
		Provider: provider,
		Model:    model,
		Prompt:   fmt.Sprintf(extractionPrompt, proposal),
	})
	if err != nil {
		return Entities{}, fmt.Errorf("completion: %w", err)
	}
	raw = extractJSONObject(raw)

	var parsed struct {
		Repos []struct {
			Ref string `json:"ref"`
		} `json:"repos"`
		Datasets []struct {
			Ref    string `json:"ref"`
			Source string `json:"source"`
		} `json:"datasets"`
		Metrics []struct {
			Name   string   `json:"name"`
			Target *float64 `json:"target"`
			Op     string   `json:"op"`
			Unit   string   `json:"unit"`
		} `json:"metrics"`
		Constraints  *Constraints `json:"constraints"`
		Deliverables []string     `json:"deliverables"`
		Notes        string       `json:"notes"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return Entities{}, fmt.Errorf("parse model JSON: %w", err)
	}

	var out Entities
	for _, r := range parsed.Repos {
		if r.Ref == "" {
			continue
		}
		out.Repos = append(out.Repos, RepoRef{Ref: r.Ref, Label: planmodel.SanitiseID(r.Ref)})
	}
	for _, d := range parsed.Datasets {
		if d.Ref == "" {
			continue
		}
		source := DatasetHuggingFace
		if strings.EqualFold(d.Source, string(DatasetKaggle)) {
			source = DatasetKaggle
		}
		out.Datasets = append(out.Datasets, DatasetRef{Ref: d.Ref, Label: planmodel.SanitiseID(d.Ref), Source: source})
	}
	for _, m := range parsed.Metrics {
		if m.Name == "" {
			continue
		}
		out.Metrics = append(out.Metrics, MetricTarget{Name: m.Name, Target: m.Target, Op: m.Op, Unit: m.Unit})
	}
	out.Constraints = parsed.Constraints
	out.Deliverables = parsed.Deliverables
	out.Notes = parsed.Notes
	return out, nil
}

// extractJSONObject trims any prose the model wraps its JSON in, taking the
// substring between the first '{' and the last '}'.
func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}

// extractJSONArray trims any prose the model wraps its JSON array in,
// taking the substring between the first '[' and the last ']'.
func extractJSONArray(raw string) string {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end < 0 || end < start {
		return raw
	}
	return raw[start : end+1]
}

// extractHeuristically recognizes GitHub repo references, Hugging Face and
// Kaggle dataset references by URL pattern. It never fails.
func extractHeuristically(proposal string) Entities {
	var out Entities

	seenRepos := map[string]bool{}
	for _, m := range githubRepoRe.FindAllStringSubmatch(proposal, -1) {
		ref := strings.TrimSuffix(m[1], "/")
		if seenRepos[ref] {
			continue
		}
		seenRepos[ref] = true
		out.Repos = append(out.Repos, RepoRef{Ref: ref, Label: planmodel.SanitiseID(ref)})
	}
	// A bare "Repo: owner/repo" line, with no github.com/ substring at all
	// (spec.md §8 scenario 1's literal proposal text), never matches
	// githubRepoRe; repoCloneURL (discover.go) already assumes refs may
	// arrive in this bare form, so recognize it here too.
	for _, m := range bareRepoRe.FindAllStringSubmatch(proposal, -1) {
		ref := strings.TrimSuffix(m[1], "/")
		if seenRepos[ref] {
			continue
		}
		seenRepos[ref] = true
		out.Repos = append(out.Repos, RepoRef{Ref: ref, Label: planmodel.SanitiseID(ref)})
	}

	seenDatasets := map[string]bool{}
	for _, m := range hfDatasetRe.FindAllStringSubmatch(proposal, -1) {
		ref := strings.TrimRight(m[1], ".")
		if seenDatasets[ref] {
			continue
		}
		seenDatasets[ref] = true
		out.Datasets = append(out.Datasets, DatasetRef{Ref: ref, Label: planmodel.SanitiseID(ref), Source: DatasetHuggingFace})
	}
	for _, m := range kaggleDataset.FindAllStringSubmatch(proposal, -1) {
		ref := strings.TrimRight(m[1], ".")
		if seenDatasets[ref] {
			continue
		}
		seenDatasets[ref] = true
		out.Datasets = append(out.Datasets, DatasetRef{Ref: ref, Label: planmodel.SanitiseID(ref), Source: DatasetKaggle})
	}

	return out
}
