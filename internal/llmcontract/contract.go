// Package llmcontract is the narrow boundary between the control plane and
// an LLM: a single Complete call used by the proposal compiler (entity
// extraction) and the repair loop (patch generation). Building, wiring, and
// authenticating an actual model client is out of scope; production callers
// supply their own Completer, tests supply a deterministic stub.
package llmcontract

import (
	"context"

	"github.com/danshapiro/openclaw/internal/providerspec"
)

// CompletionRequest is one turn of a single-shot completion call.
type CompletionRequest struct {
	Provider  string
	Model     string
	Prompt    string
	MaxTokens int
}

// Completer is the seam production code and tests implement independently.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CanonicalProviderKey normalises a provider name (e.g. "Claude" or
// "anthropic-api") to its registry key, so callers can accept whatever
// spelling a proposal or CLI flag used.
func CanonicalProviderKey(provider string) string {
	return providerspec.CanonicalProviderKey(provider)
}

// CompleterFunc adapts a plain function to Completer, mirroring the
// stdlib's http.HandlerFunc pattern for trivial test stubs.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	return f(ctx, req)
}
