package execengine

import (
	"testing"

	"github.com/danshapiro/openclaw/internal/planmodel"
)

func TestClassifyFailure_MatchesPatternCaseInsensitive(t *testing.T) {
	spec := &planmodel.RetrySpec{Policies: []planmodel.RetryPolicy{
		{ID: "retry.network", Category: planmodel.CategoryNetwork, RetryablePatterns: []string{"Connection Reset"}},
		{ID: "retry.unknown", Category: planmodel.CategoryUnknown},
	}}
	c := ClassifyFailure(spec, spec.Policies[1], "", "connection reset by peer")
	if c.Category != planmodel.CategoryNetwork {
		t.Fatalf("category = %v, want network", c.Category)
	}
}

func TestClassifyFailure_FallsBackToNodePolicyCategory(t *testing.T) {
	spec := &planmodel.RetrySpec{Policies: []planmodel.RetryPolicy{
		{ID: "retry.oom", Category: planmodel.CategoryOOM, RetryablePatterns: []string{"out of memory"}},
	}}
	nodePolicy := planmodel.RetryPolicy{ID: "retry.build", Category: planmodel.CategoryBuildFail}
	c := ClassifyFailure(spec, nodePolicy, "", "some unrelated failure text")
	if c.Category != planmodel.CategoryBuildFail {
		t.Fatalf("category = %v, want build_fail fallback", c.Category)
	}
}

func TestClassifyFailure_FallsBackToUnknownWhenNoPolicyCategory(t *testing.T) {
	spec := &planmodel.RetrySpec{}
	c := ClassifyFailure(spec, planmodel.RetryPolicy{}, "", "mystery error")
	if c.Category != planmodel.CategoryUnknown {
		t.Fatalf("category = %v, want unknown", c.Category)
	}
}
