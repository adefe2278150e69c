package compiler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danshapiro/openclaw/internal/gitutil"
)

const discoveryHTTPTimeout = 15 * time.Second

// Discover implements spec.md §4.1 step 3. At DiscoveryOff nothing is
// probed and every entry is recorded unverified. Repo probing happens at
// DiscoveryPlan and above; dataset sampling only at DiscoverySample. Kaggle
// datasets are always deferred to manual confirmation regardless of mode,
// since they require credentials this package never holds.
func Discover(ctx context.Context, entities Entities, mode DiscoveryMode) Discovery {
	out := Discovery{Mode: mode}

	for _, r := range entities.Repos {
		rd := RepoDiscovery{Ref: r.Ref}
		if mode == DiscoveryPlan || mode == DiscoverySample {
			if head, err := gitutil.LsRemoteHead(repoCloneURL(r.Ref)); err == nil {
				rd.Exists = head.Exists
				rd.DefaultBranch = head.DefaultBranch
			}
		}
		out.Repos = append(out.Repos, rd)
	}

	for _, d := range entities.Datasets {
		if d.Source == DatasetKaggle {
			out.Datasets = append(out.Datasets, DatasetDiscovery{
				Ref: d.Ref, Source: DatasetKaggle, NeedsConfirm: true,
			})
			continue
		}
		dd := DatasetDiscovery{Ref: d.Ref, Source: DatasetHuggingFace}
		if mode == DiscoverySample {
			splits, rows, err := sampleHFDataset(ctx, d.Ref)
			if err != nil {
				dd.NeedsConfirm = true
			} else {
				dd.Splits = splits
				dd.SampleRows = rows
			}
		} else {
			dd.NeedsConfirm = true
		}
		out.Datasets = append(out.Datasets, dd)
	}

	return out
}

// repoCloneURL turns "owner/repo" into a full GitHub URL; a ref that already
// looks like a URL is passed through unchanged.
func repoCloneURL(ref string) string {
	if strings.Contains(ref, "://") {
		return ref
	}
	return "https://github.com/" + strings.TrimPrefix(ref, "github.com/")
}

type hfSplitsResponse struct {
	Splits []struct {
		Split string `json:"split"`
	} `json:"splits"`
}

type hfFirstRowsResponse struct {
	Rows []struct {
		Row map[string]any `json:"row"`
	} `json:"rows"`
}

// sampleHFDataset fetches the Hugging Face datasets-server's splits and
// first-rows endpoints. Either call failing degrades the dataset to
// needs-confirm rather than failing the whole compile, per spec.md §4.1's
// "LLM/discovery failures degrade, don't abort" posture.
func sampleHFDataset(ctx context.Context, ref string) ([]string, []map[string]any, error) {
	splitsURL := "https://datasets-server.huggingface.co/splits?dataset=" + url.QueryEscape(ref)
	var splitsResp hfSplitsResponse
	if err := fetchJSON(ctx, splitsURL, &splitsResp); err != nil {
		return nil, nil, err
	}
	var splits []string
	for _, s := range splitsResp.Splits {
		splits = append(splits, s.Split)
	}
	if len(splits) == 0 {
		return nil, nil, fmt.Errorf("dataset %q has no splits", ref)
	}

	rowsURL := fmt.Sprintf("https://datasets-server.huggingface.co/first-rows?dataset=%s&config=default&split=%s",
		url.QueryEscape(ref), url.QueryEscape(splits[0]))
	var rowsResp hfFirstRowsResponse
	if err := fetchJSON(ctx, rowsURL, &rowsResp); err != nil {
		return splits, nil, nil
	}
	var rows []map[string]any
	for _, r := range rowsResp.Rows {
		rows = append(rows, r.Row)
	}
	return splits, rows, nil
}

func fetchJSON(ctx context.Context, rawURL string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, discoveryHTTPTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", rawURL, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
