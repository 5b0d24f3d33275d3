package resilience

import (
	"context"
	"sort"
	"sync"
	"time"
)

// CircuitBreakerRegistry manages one circuit breaker per upstream.
type CircuitBreakerRegistry struct {
	mu            sync.RWMutex
	breakers      map[string]*CircuitBreaker
	config        CircuitBreakerConfig
	onStateChange func(name string, from, to CircuitState)
}

// NewCircuitBreakerRegistry creates a new registry with default config.
func NewCircuitBreakerRegistry(config CircuitBreakerConfig) *CircuitBreakerRegistry {
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*CircuitBreaker),
		config:   config,
	}
}

// OnStateChange sets the transition callback for breakers created afterwards.
func (r *CircuitBreakerRegistry) OnStateChange(fn func(name string, from, to CircuitState)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onStateChange = fn
}

// Get returns or creates a circuit breaker for the given name.
func (r *CircuitBreakerRegistry) Get(name string) *CircuitBreaker {
	return r.GetWithConfig(name, r.config)
}

// GetWithConfig returns or creates a circuit breaker with custom config.
func (r *CircuitBreakerRegistry) GetWithConfig(name string, config CircuitBreakerConfig) *CircuitBreaker {
	r.mu.RLock()
	if cb, ok := r.breakers[name]; ok {
		r.mu.RUnlock()
		return cb
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Double-check after acquiring write lock
	if cb, ok := r.breakers[name]; ok {
		return cb
	}

	cb := NewCircuitBreaker(name, config)
	if r.onStateChange != nil {
		cb.OnStateChange(r.onStateChange)
	}
	r.breakers[name] = cb
	return cb
}

// AllStats returns statistics for all circuit breakers, sorted by name.
func (r *CircuitBreakerRegistry) AllStats() []CircuitBreakerStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]CircuitBreakerStats, 0, len(r.breakers))
	for _, cb := range r.breakers {
		stats = append(stats, cb.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// TotalTrips sums the number of closed-to-open transitions across breakers.
func (r *CircuitBreakerRegistry) TotalTrips() int64 {
	var total int64
	for _, s := range r.AllStats() {
		total += s.Trips
	}
	return total
}

// ResetAll resets all circuit breakers.
func (r *CircuitBreakerRegistry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, cb := range r.breakers {
		cb.Reset()
	}
}

// RetryWithBackoff configures capped exponential backoff.
type RetryWithBackoff struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
	// Retryable decides whether an error is worth another attempt; nil retries every error
	Retryable func(error) bool
	// Sleep overrides waiting between attempts
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryWithBackoff returns default retry configuration: one call
// plus three retries waiting 1s, 2s and 4s.
func DefaultRetryWithBackoff() RetryWithBackoff {
	return RetryWithBackoff{
		MaxAttempts:   4,
		InitialDelay:  time.Second,
		MaxDelay:      4 * time.Second,
		BackoffFactor: 2.0,
	}
}

// Delays returns the waits between consecutive attempts.
func (r RetryWithBackoff) Delays() []time.Duration {
	if r.MaxAttempts <= 1 {
		return nil
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2.0
	}
	delays := make([]time.Duration, 0, r.MaxAttempts-1)
	delay := r.InitialDelay
	for i := 0; i < r.MaxAttempts-1; i++ {
		d := delay
		if r.MaxDelay > 0 && d > r.MaxDelay {
			d = r.MaxDelay
		}
		if r.Jitter {
			// up to 12.5% extra
			d += time.Duration(float64(d) * 0.125)
		}
		delays = append(delays, d)
		delay = time.Duration(float64(delay) * factor)
	}
	return delays
}

// Execute runs the function with retry and backoff.
func (r RetryWithBackoff) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := Retry(ctx, r, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Retry runs fn until it succeeds, returns a non-retryable error, or runs
// out of attempts. The last error is returned unchanged.
func Retry[T any](ctx context.Context, r RetryWithBackoff, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	delays := r.Delays()

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if r.Retryable != nil && !r.Retryable(err) {
			return zero, err
		}
		if attempt < attempts-1 {
			if err := sleep(ctx, delays[attempt]); err != nil {
				return zero, err
			}
		}
	}

	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
