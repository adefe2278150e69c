// Package compiler turns a proposal document into a fully-populated plan
// package: extracted entities, discovery results, a skeleton task DAG,
// acceptance checks, and the built-in retry policy table.
package compiler

import "github.com/danshapiro/openclaw/internal/planmodel"

// DiscoveryMode controls how much network/subprocess probing the compiler
// does for extracted repos and datasets.
type DiscoveryMode string

const (
	DiscoveryOff    DiscoveryMode = "off"
	DiscoveryPlan   DiscoveryMode = "plan"
	DiscoverySample DiscoveryMode = "sample"
)

// RepoRef is one extracted source-code repository reference.
type RepoRef struct {
	Ref   string `json:"ref"`   // "owner/repo" or a full URL
	Label string `json:"label"` // filesystem-safe, derived from Ref
}

// DatasetSource distinguishes the dataset hosts the compiler knows about.
type DatasetSource string

const (
	DatasetHuggingFace DatasetSource = "huggingface"
	DatasetKaggle      DatasetSource = "kaggle"
)

// DatasetRef is one extracted dataset reference.
type DatasetRef struct {
	Ref    string        `json:"ref"`
	Label  string        `json:"label"`
	Source DatasetSource `json:"source"`
}

// MetricTarget is one extracted success metric, with an optional numeric
// target (absent when the proposal names a metric without a threshold).
type MetricTarget struct {
	Name   string   `json:"name"`
	Target *float64 `json:"target,omitempty"`
	Op     string   `json:"op,omitempty"` // ">=", "<=", "==", etc; default ">="
	Unit   string   `json:"unit,omitempty"`
}

// Entities is ir/extracted.entities.json: everything the compiler could
// pull out of a proposal, either heuristically or via an LLM.
type Entities struct {
	Repos        []RepoRef      `json:"repos"`
	Datasets     []DatasetRef   `json:"datasets"`
	Metrics      []MetricTarget `json:"metrics"`
	Constraints  *Constraints   `json:"constraints,omitempty"`
	Deliverables []string       `json:"deliverables"`
	Notes        string         `json:"notes,omitempty"`
}

// Constraints is the free-form resource/requirement hints a proposal or LLM
// extraction step can supply, feeding train.run's inferred Resources.
type Constraints struct {
	GPUCount         int     `json:"gpuCount,omitempty"`
	GPUType          string  `json:"gpuType,omitempty"`
	GPUMemGB         float64 `json:"gpuMemGB,omitempty"`
	EstimatedMinutes float64 `json:"estimatedMinutes,omitempty"`
}

// RepoDiscovery is one repo's discovery result.
type RepoDiscovery struct {
	Ref           string `json:"ref"`
	Exists        bool   `json:"exists"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
}

// DatasetDiscovery is one dataset's discovery result. Kaggle datasets are
// always recorded with NeedsConfirm=true and no profile, per spec.md §4.1
// step 3 ("Kaggle is always deferred to a manual-confirm item").
type DatasetDiscovery struct {
	Ref          string         `json:"ref"`
	Source       DatasetSource  `json:"source"`
	NeedsConfirm bool           `json:"needsConfirm"`
	Splits       []string       `json:"splits,omitempty"`
	SampleRows   []map[string]any `json:"sampleRows,omitempty"`
}

// Discovery is ir/discovery.json.
type Discovery struct {
	Mode     DiscoveryMode      `json:"mode"`
	Repos    []RepoDiscovery    `json:"repos"`
	Datasets []DatasetDiscovery `json:"datasets"`
}

// CompileProposalResult is Compile's return value.
type CompileProposalResult struct {
	OK      bool                     `json:"ok"`
	PlanID  string                   `json:"planId"`
	RootDir string                   `json:"rootDir"`
	Report  planmodel.CompileReport  `json:"report"`
	Paths   map[string]string        `json:"paths"`
}
