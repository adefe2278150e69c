package planmodel

import (
	"bytes"
	"embed"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.json
var schemaFS embed.FS

// DocumentKind names one of the plan package's schema-versioned, evolving
// documents.
type DocumentKind string

const (
	DocPlanDAG         DocumentKind = "plan_dag"
	DocRetrySpec       DocumentKind = "retry_spec"
	DocAcceptanceSpec  DocumentKind = "acceptance_spec"
	DocRepairEvidence  DocumentKind = "repair_evidence"
)

var schemaFiles = map[DocumentKind]string{
	DocPlanDAG:        "schema/plan_dag.schema.json",
	DocRetrySpec:      "schema/retry_spec.schema.json",
	DocAcceptanceSpec: "schema/acceptance_spec.schema.json",
	DocRepairEvidence: "schema/repair_evidence.schema.json",
}

var (
	compileOnce sync.Once
	compiled    map[DocumentKind]*jsonschema.Schema
	compileErr  error
)

func compileAll() (map[DocumentKind]*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		c := jsonschema.NewCompiler()
		for _, path := range schemaFiles {
			b, err := schemaFS.ReadFile(path)
			if err != nil {
				compileErr = fmt.Errorf("read embedded schema %s: %w", path, err)
				return
			}
			if err := c.AddResource(path, bytes.NewReader(b)); err != nil {
				compileErr = fmt.Errorf("add schema resource %s: %w", path, err)
				return
			}
		}
		compiled = make(map[DocumentKind]*jsonschema.Schema, len(schemaFiles))
		for kind, path := range schemaFiles {
			s, err := c.Compile(path)
			if err != nil {
				compileErr = fmt.Errorf("compile schema %s: %w", path, err)
				return
			}
			compiled[kind] = s
		}
	})
	return compiled, compileErr
}

// ValidateDocument validates decoded JSON (as produced by encoding/json's
// generic map[string]any/[]any unmarshal) against the named document's
// schema.
func ValidateDocument(kind DocumentKind, doc any) error {
	schemas, err := compileAll()
	if err != nil {
		return err
	}
	s, ok := schemas[kind]
	if !ok {
		return fmt.Errorf("unknown document kind %q", kind)
	}
	return s.Validate(doc)
}
