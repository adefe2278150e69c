package planmodel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overlay is an optional authoring-time source for retry and acceptance
// data: an operator can hand-write plan/overlay.yaml (or .json) holding
// retry policies and acceptance checks. LoadOverlay only decodes such a
// file; the compiler does not call it, so an overlay does not change the
// retry.json or acceptance.json a compile writes. A .json path is decoded
// as JSON and any other path as YAML, both strictly, so a typo'd key is a
// load error rather than a silently ignored field.
type Overlay struct {
	RetryPolicies    []RetryPolicy     `json:"retryPolicies,omitempty" yaml:"retryPolicies,omitempty"`
	AcceptanceChecks []AcceptanceCheck `json:"acceptanceChecks,omitempty" yaml:"acceptanceChecks,omitempty"`
}

// LoadOverlay reads an overlay file if present at path. A missing file is
// not an error: it returns a zero-value Overlay.
func LoadOverlay(path string) (Overlay, error) {
	var ov Overlay
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ov, nil
		}
		return ov, fmt.Errorf("read overlay %s: %w", path, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ov); err != nil {
			return Overlay{}, fmt.Errorf("parse overlay %s: %w", path, err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&ov); err != nil {
			return Overlay{}, fmt.Errorf("parse overlay %s: %w", path, err)
		}
	}
	return ov, nil
}
