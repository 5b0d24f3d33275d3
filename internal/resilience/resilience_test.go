package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trading-core/internal/errors"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errUpstream = errors.New("upstream 503")

func failing(context.Context) error { return errUpstream }
func succeeding(context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker("finnhub", CircuitBreakerConfig{FailureThreshold: 5, Timeout: time.Minute, Now: clock.Now})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	}
	assert.Equal(t, CircuitClosed, cb.State())

	assert.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(ctx, succeeding)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, apperrors.ErrServiceUnavailable)
	assert.Equal(t, int64(1), cb.Stats().Trips)
	assert.Equal(t, int64(1), cb.Stats().TotalRejected)
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb := NewCircuitBreaker("kite", DefaultCircuitBreakerConfig())
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_ = cb.Execute(ctx, failing)
	}
	require.NoError(t, cb.Execute(ctx, succeeding))
	for i := 0; i < 4; i++ {
		_ = cb.Execute(ctx, failing)
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterTimeout(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker("finnhub", CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute, Now: clock.Now})
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	require.Equal(t, CircuitOpen, cb.State())

	clock.Advance(59 * time.Second)
	assert.ErrorIs(t, cb.Execute(ctx, succeeding), ErrCircuitOpen)

	clock.Advance(time.Second)
	require.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenAdmitsOneTrial(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker("finnhub", CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute, Now: clock.Now})
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	clock.Advance(time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	trial := make(chan error, 1)
	go func() {
		trial <- cb.Execute(ctx, func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started
	require.Equal(t, CircuitHalfOpen, cb.State())

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Execute(ctx, succeeding), ErrCircuitOpen)
	}

	close(release)
	require.NoError(t, <-trial)
	assert.Equal(t, CircuitClosed, cb.State())
	assert.NoError(t, cb.Execute(ctx, succeeding))
	assert.Equal(t, int64(3), cb.Stats().TotalRejected)
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := &testClock{now: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker("finnhub", CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Minute, Now: clock.Now})
	ctx := context.Background()

	var transitions []CircuitState
	cb.OnStateChange(func(_ string, _, to CircuitState) { transitions = append(transitions, to) })

	_ = cb.Execute(ctx, failing)
	clock.Advance(time.Minute)
	_ = cb.Execute(ctx, failing)

	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, []CircuitState{CircuitOpen, CircuitHalfOpen, CircuitOpen}, transitions)
	assert.Equal(t, int64(2), cb.Stats().Trips)
}

func TestCircuitBreaker_IgnoresNonFailures(t *testing.T) {
	cb := NewCircuitBreaker("finnhub", CircuitBreakerConfig{
		FailureThreshold: 2,
		IsFailure:        func(err error) bool { return !errors.Is(err, apperrors.ErrNoData) },
	})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return apperrors.ErrNoData })
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreaker_ContextCancellation(t *testing.T) {
	cb := NewCircuitBreaker("slow", DefaultCircuitBreakerConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	v, err := ExecuteWithResult(cb, ctx, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(5 * time.Millisecond)
		return 1, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Zero(t, v)
	assert.Equal(t, int64(1), cb.Stats().TotalTimeouts)
}

func TestRegistry_SharesBreakersAndCountsTrips(t *testing.T) {
	reg := NewCircuitBreakerRegistry(CircuitBreakerConfig{FailureThreshold: 1})
	assert.Same(t, reg.Get("a"), reg.Get("a"))

	_ = reg.Get("a").Execute(context.Background(), failing)
	_ = reg.Get("b").Execute(context.Background(), failing)

	assert.Equal(t, int64(2), reg.TotalTrips())
	stats := reg.AllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "a", stats[0].Name)

	reg.ResetAll()
	assert.Equal(t, CircuitClosed, reg.Get("b").State())
}

func TestRetry_DelaysAreCappedExponential(t *testing.T) {
	r := DefaultRetryWithBackoff()
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, r.Delays())

	r.MaxAttempts = 5
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 4 * time.Second}, r.Delays())
}

func TestRetry_RetriesTransientOnly(t *testing.T) {
	var slept []time.Duration
	r := DefaultRetryWithBackoff()
	r.Retryable = apperrors.IsTransient
	r.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	calls := 0
	_, err := Retry(context.Background(), r, func(context.Context) (int, error) {
		calls++
		return 0, apperrors.NewTransientError("finnhub", "candles", errUpstream)
	})
	assert.True(t, apperrors.IsTransient(err))
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, slept)

	calls = 0
	_, err = Retry(context.Background(), r, func(context.Context) (int, error) {
		calls++
		return 0, apperrors.NewValidationError("symbol", "", "required")
	})
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, 1, calls)
}

func TestRetry_SucceedsAfterFailure(t *testing.T) {
	r := RetryWithBackoff{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	calls := 0
	v, err := Retry(context.Background(), r, func(context.Context) (string, error) {
		calls++
		if calls < 2 {
			return "", errUpstream
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestRetry_StopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := DefaultRetryWithBackoff().Execute(ctx, succeeding)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHealthMonitor_Aggregates(t *testing.T) {
	m := NewHealthMonitor()
	m.RegisterComponent("store", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: HealthStatusHealthy}
	})
	health := m.Check(context.Background())
	assert.Equal(t, HealthStatusHealthy, health.Status)
	assert.Equal(t, 1.0, health.Status.Score())

	m.RegisterComponent("quotes", func(context.Context) ComponentHealth {
		return ComponentHealth{Status: HealthStatusDegraded}
	})
	assert.Equal(t, HealthStatusDegraded, m.Check(context.Background()).Status)

	m.RegisterComponent("broken", func(context.Context) ComponentHealth {
		panic("boom")
	})
	health = m.Check(context.Background())
	assert.Equal(t, HealthStatusUnhealthy, health.Status)
	assert.Equal(t, 0.0, health.Status.Score())
}

func TestBreakerHealthCheck(t *testing.T) {
	reg := NewCircuitBreakerRegistry(CircuitBreakerConfig{FailureThreshold: 1})
	check := BreakerHealthCheck(reg)
	ctx := context.Background()

	reg.Get("quotes")
	reg.Get("history")
	assert.Equal(t, HealthStatusHealthy, check(ctx).Status)

	_ = reg.Get("quotes").Execute(ctx, failing)
	assert.Equal(t, HealthStatusDegraded, check(ctx).Status)

	_ = reg.Get("history").Execute(ctx, failing)
	assert.Equal(t, HealthStatusUnhealthy, check(ctx).Status)
}
