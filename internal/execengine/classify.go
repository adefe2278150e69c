package execengine

import (
	"strings"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

// FailureClassification is the result of matching an attempt's combined
// output against a node's retry policy table.
type FailureClassification struct {
	Category  planmodel.RetryCategory
	Signature string
	Reason    string
}

// ClassifyFailure searches every policy's retryablePatterns (case-insensitive
// substring match) against stdout and stderr combined, in policy-table
// order. The first match wins. With no match it falls back to the node's own
// policy category (policy.Category), or CategoryUnknown if even that policy
// has no informative category.
func ClassifyFailure(spec *planmodel.RetrySpec, nodePolicy planmodel.RetryPolicy, stdout, stderr string) FailureClassification {
	haystack := strings.ToLower(stdout + "\n" + stderr)

	for _, policy := range spec.Policies {
		for _, pattern := range policy.RetryablePatterns {
			p := strings.ToLower(pattern)
			if p == "" {
				continue
			}
			if strings.Contains(haystack, p) {
				return FailureClassification{
					Category:  policy.Category,
					Signature: "pattern:" + policy.ID + ":" + pattern,
					Reason:    firstNonEmptyLine(stderr, stdout),
				}
			}
		}
	}

	category := nodePolicy.Category
	if category == "" {
		category = planmodel.CategoryUnknown
	}
	return FailureClassification{
		Category:  category,
		Signature: "fallback:" + string(category),
		Reason:    firstNonEmptyLine(stderr, stdout),
	}
}

func firstNonEmptyLine(texts ...string) string {
	for _, text := range texts {
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				return line
			}
		}
	}
	return ""
}
