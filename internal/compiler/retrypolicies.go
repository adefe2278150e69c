package compiler

import "github.com/danshapiro/openclaw/internal/planmodel"

// DefaultRetryPolicyID is spec.md §4.1 step 6's required defaultPolicyId.
const DefaultRetryPolicyID = "retry.unknown"

// BuildRetrySpec returns the built-in 8-policy table every compiled plan
// starts with, one policy per planmodel.RetryCategory. Backoff curves and
// retryablePatterns are tuned per category: network/rate_limit get
// exponential backoff and the most retries since they're usually transient;
// build/test/data failures get a single extra attempt on the theory that a
// repair (internal/repair) is what should fix them, not a bare retry; oom
// and divergence get zero retries since repeating the same command
// reproduces the same failure.
func BuildRetrySpec() planmodel.RetrySpec {
	policies := []planmodel.RetryPolicy{
		{
			ID: "retry.network", Category: planmodel.CategoryNetwork, MaxAttempts: 4,
			Backoff: planmodel.Backoff{Kind: planmodel.BackoffExponential, BaseMS: 1000, MaxMS: 30000, Jitter: true},
			RetryablePatterns: []string{"connection reset", "connection refused", "timeout", "could not resolve host", "network is unreachable"},
		},
		{
			ID: "retry.rate_limit", Category: planmodel.CategoryRateLimit, MaxAttempts: 5,
			Backoff: planmodel.Backoff{Kind: planmodel.BackoffExponential, BaseMS: 2000, MaxMS: 60000, Jitter: true},
			RetryablePatterns: []string{"rate limit", "429", "too many requests"},
		},
		{
			ID: "retry.build_fail", Category: planmodel.CategoryBuildFail, MaxAttempts: 2,
			Backoff:           planmodel.Backoff{Kind: planmodel.BackoffFixed, BaseMS: 500, MaxMS: 500},
			RetryablePatterns: []string{"error: failed to build", "compilation error", "module not found", "no matching distribution"},
			RepairActions:     []string{"patch"},
		},
		{
			ID: "retry.test_fail", Category: planmodel.CategoryTestFail, MaxAttempts: 2,
			Backoff:           planmodel.Backoff{Kind: planmodel.BackoffFixed, BaseMS: 500, MaxMS: 500},
			RetryablePatterns: []string{"assertionerror", "test failed", "failures:"},
			RepairActions:     []string{"patch"},
		},
		{
			ID: "retry.oom", Category: planmodel.CategoryOOM, MaxAttempts: 1,
			Backoff:           planmodel.Backoff{Kind: planmodel.BackoffFixed, BaseMS: 0, MaxMS: 0},
			RetryablePatterns: []string{"out of memory", "cuda out of memory", "oom-killed", "killed process"},
		},
		{
			ID: "retry.divergence", Category: planmodel.CategoryDivergence, MaxAttempts: 1,
			Backoff:           planmodel.Backoff{Kind: planmodel.BackoffFixed, BaseMS: 0, MaxMS: 0},
			RetryablePatterns: []string{"loss is nan", "loss diverged", "gradient overflow"},
		},
		{
			ID: "retry.data_missing", Category: planmodel.CategoryDataMissing, MaxAttempts: 2,
			Backoff:           planmodel.Backoff{Kind: planmodel.BackoffFixed, BaseMS: 1000, MaxMS: 1000},
			RetryablePatterns: []string{"no such file or directory", "404", "dataset not found"},
			RepairActions:     []string{"patch"},
		},
		{
			ID: DefaultRetryPolicyID, Category: planmodel.CategoryUnknown, MaxAttempts: 1,
			Backoff: planmodel.Backoff{Kind: planmodel.BackoffFixed, BaseMS: 0, MaxMS: 0},
		},
	}
	return planmodel.RetrySpec{
		SchemaVersion:   1,
		Policies:        policies,
		DefaultPolicyID: DefaultRetryPolicyID,
	}
}
