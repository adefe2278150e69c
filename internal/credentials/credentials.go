// Package credentials resolves the external-service secrets spec.md §6
// names (HF_TOKEN/HUGGINGFACE_HUB_TOKEN, KAGGLE_USERNAME/KAGGLE_KEY) from
// either the process environment or a JSON secrets file under
// OPENCLAW_STATE_DIR, the way a node's worker process resolves credentials
// before exporting them into a command's env. Loading, storing, and config
// beyond this resolver are out of scope; this package only answers "what
// value, if any, does this credential currently have".
package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
)

const stateDirEnv = "OPENCLAW_STATE_DIR"
const secretsFileName = "secrets.json"

// Set holds the resolved values for every credential this system consumes.
// Empty string means unresolved, not an error: the pipeline's run-safe stage
// records a Kaggle fetch node as skipped when the Kaggle credential is
// unresolved rather than failing.
type Set struct {
	HFToken         string
	KaggleUsername  string
	KaggleKey       string
}

// Resolve reads the environment first, then fills any still-empty field from
// $OPENCLAW_STATE_DIR/secrets.json if that file exists. Environment wins over
// the file, matching the teacher's own env-overlay-over-file convention in
// `attractor/engine/config.go`.
func Resolve() Set {
	s := Set{
		HFToken:        firstNonEmpty(os.Getenv("HF_TOKEN"), os.Getenv("HUGGINGFACE_HUB_TOKEN")),
		KaggleUsername: os.Getenv("KAGGLE_USERNAME"),
		KaggleKey:      os.Getenv("KAGGLE_KEY"),
	}

	stateDir := os.Getenv(stateDirEnv)
	if stateDir == "" {
		return s
	}
	var file secretsFile
	b, err := os.ReadFile(filepath.Join(stateDir, secretsFileName))
	if err != nil {
		return s
	}
	if err := json.Unmarshal(b, &file); err != nil {
		return s
	}

	if s.HFToken == "" {
		s.HFToken = firstNonEmpty(file.HFToken, file.HuggingFaceHubToken)
	}
	if s.KaggleUsername == "" {
		s.KaggleUsername = file.KaggleUsername
	}
	if s.KaggleKey == "" {
		s.KaggleKey = file.KaggleKey
	}
	return s
}

// secretsFile is $OPENCLAW_STATE_DIR/secrets.json's shape.
type secretsFile struct {
	HFToken             string `json:"hfToken,omitempty"`
	HuggingFaceHubToken string `json:"huggingFaceHubToken,omitempty"`
	KaggleUsername      string `json:"kaggleUsername,omitempty"`
	KaggleKey           string `json:"kaggleKey,omitempty"`
}

// HasKaggle reports whether both Kaggle credentials are present.
func (s Set) HasKaggle() bool {
	return s.KaggleUsername != "" && s.KaggleKey != ""
}

// HasHF reports whether an HF token is present.
func (s Set) HasHF() bool {
	return s.HFToken != ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
