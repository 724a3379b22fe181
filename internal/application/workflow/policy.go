package workflow

import "time"

// Policy is the per-step retry and timeout policy selected by processor
// category. Step retries happen inside one activity execution and never
// count toward the job's whole-pipeline attempts.
type Policy struct {
	MaxAttempts    int
	AttemptTimeout time.Duration
	InitialBackoff time.Duration
}

// policies maps processor categories to their step policy. Categories absent
// from the map use defaultPolicy.
var policies = map[string]Policy{
	"ocr":        {MaxAttempts: 3, AttemptTimeout: 300 * time.Second, InitialBackoff: 5 * time.Second},
	"extraction": {MaxAttempts: 3, AttemptTimeout: 120 * time.Second, InitialBackoff: 3 * time.Second},
	"ekyc":       {MaxAttempts: 3, AttemptTimeout: 120 * time.Second, InitialBackoff: 3 * time.Second},
}

var defaultPolicy = Policy{MaxAttempts: 3, AttemptTimeout: 60 * time.Second, InitialBackoff: 2 * time.Second}

// PolicyFor returns the step policy for a processor category.
func PolicyFor(category string) Policy {
	if p, ok := policies[category]; ok {
		return p
	}
	return defaultPolicy
}

// BackoffFor returns the delay before the given retry attempt, doubling per
// attempt. Attempt numbering starts at 1 for the first execution, so the
// first retry (attempt 2) waits InitialBackoff.
func (p Policy) BackoffFor(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 2; i < attempt; i++ {
		d *= 2
	}
	return d
}
