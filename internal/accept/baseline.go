package accept

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
)

// loadMetrics reads a metrics JSON file into a string-keyed map, accepting
// any scalar (number or string) value and dropping anything else, per
// spec.md §4.8 step 3 ("ignoring non-scalars with a warning"). A missing
// file yields an empty map, not an error.
func loadMetrics(path string) map[string]any {
	b, err := os.ReadFile(path)
	if err != nil {
		return map[string]any{}
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	for k, v := range raw {
		switch v.(type) {
		case float64, string:
			out[k] = v
		}
	}
	return out
}

// loadCurrentMetrics loads report/final_metrics.json, falling back to
// report/eval_metrics.json.
func loadCurrentMetrics(planRoot string) map[string]any {
	final := loadMetrics(filepath.Join(planRoot, "report", "final_metrics.json"))
	if len(final) > 0 {
		return final
	}
	return loadMetrics(filepath.Join(planRoot, "report", "eval_metrics.json"))
}

// loadBaselineMetrics resolves the comparison baseline: an explicit path if
// given, else the most recent report/runs/*/report/final_metrics.json by
// run id (run ids sort lexically by their leading timestamp). Returns an
// empty map if neither is available; a missing baseline is not fatal.
func loadBaselineMetrics(planRoot, explicitPath string) map[string]any {
	if explicitPath != "" {
		return loadMetrics(explicitPath)
	}
	runsDir := filepath.Join(planRoot, "report", "runs")
	entries, err := os.ReadDir(runsDir)
	if err != nil {
		return map[string]any{}
	}
	var runIDs []string
	for _, e := range entries {
		if e.IsDir() {
			runIDs = append(runIDs, e.Name())
		}
	}
	if len(runIDs) == 0 {
		return map[string]any{}
	}
	sort.Strings(runIDs)
	latest := runIDs[len(runIDs)-1]
	return loadMetrics(filepath.Join(runsDir, latest, "report", "final_metrics.json"))
}
