// Package resilience provides the per-dependency circuit breakers and the preference cache
// that every synchronous outbound call in the orchestrator goes through.
package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/praiz001/notifab/internal/apperr"
)

// BreakerRegistry owns one gobreaker.CircuitBreaker per dependency name (user-service,
// template-service, gateway, and one per provider family), per spec §4.4.
type BreakerRegistry struct {
	failureThreshold uint32
	openTimeout      time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

func NewBreakerRegistry(failureThreshold int, openTimeout time.Duration) *BreakerRegistry {
	return &BreakerRegistry{
		failureThreshold: uint32(failureThreshold),
		openTimeout:      openTimeout,
		breakers:         make(map[string]*gobreaker.CircuitBreaker),
	}
}

// For returns (creating if necessary) the breaker for the named dependency. Breaker creation
// is serialized by mu; once obtained, gobreaker itself serializes state mutations on that
// breaker, satisfying the per-breaker mutual-exclusion requirement in spec §5.
func (r *BreakerRegistry) For(name string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	threshold := r.failureThreshold
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: r.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	})
	r.breakers[name] = b
	return b
}

// IsOpen reports whether the named dependency's breaker is currently open, used by the
// orchestrator to decide whether to synthesize a conservative preference default (spec §4.2
// step 1) instead of calling through.
func (r *BreakerRegistry) IsOpen(name string) bool {
	return r.For(name).State() == gobreaker.StateOpen
}

// Call executes fn through the named breaker, translating gobreaker's own
// ErrOpenState/ErrTooManyRequests into our apperr.TypeBreakerOpen so callers only ever see
// one "breaker open" shape regardless of which half-open edge case tripped it.
func Call[T any](ctx context.Context, r *BreakerRegistry, name string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	result, err := r.For(name).Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return zero, apperr.NewBreakerOpenError(name)
	}
	// gobreaker still returns fn's own result alongside fn's own error (it only ever
	// substitutes nil for the open-state cases above), so callers that pack a typed failure
	// into their return value — like a provider SendResult carrying its own error code — get
	// it back intact rather than a zeroed-out value.
	if result == nil {
		return zero, err
	}
	return result.(T), err
}
