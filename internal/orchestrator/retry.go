package orchestrator

import (
	"math"
	"time"
)

// RetryPolicy is an explicit, inspectable bounded-exponential-backoff schedule, replacing the
// decorator-driven retry wrapping the original system hid inside a library annotation — every
// caller here can ask a policy what it will do next rather than trust an opaque decorator.
type RetryPolicy struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// Wait returns the backoff duration before the given attempt number (1-indexed: attempt 1 is
// the first retry after the initial send). The result is capped at MaxWait.
func (p RetryPolicy) Wait(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := float64(p.MinWait) * math.Pow(p.Multiplier, float64(attempt-1))
	if d > float64(p.MaxWait) {
		return p.MaxWait
	}
	return time.Duration(d)
}

// Exhausted reports whether attemptCount has used up the policy's budget.
func (p RetryPolicy) Exhausted(attemptCount int) bool {
	return attemptCount >= p.MaxAttempts
}
