package telemetry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trading-core/internal/execution"
	"trading-core/internal/resilience"
)

func sampleSnapshot() Snapshot {
	return Snapshot{
		Execution: execution.Stats{
			OrdersSubmitted: 3,
			OrdersFilled:    2,
			OrdersRejected:  1,
			Notional:        2500.5,
			AvgSlippageBps:  5,
			AvgLatencyMs:    12,
			LastLatencyMs:   9,
		},
		SignalsGenerated: 7,
		BreakerTrips:     1,
		Breakers: []resilience.CircuitBreakerStats{
			{Name: "quote:finnhub", State: resilience.CircuitOpen},
			{Name: "history:synthetic", State: resilience.CircuitClosed},
		},
		PortfolioValue: 101234.5,
		Health:         resilience.HealthStatusDegraded,
	}
}

func TestExporter_Observe(t *testing.T) {
	e := NewExporter()
	e.Observe(sampleSnapshot())

	assert.Equal(t, 3.0, testutil.ToFloat64(e.gauges[OrdersSubmitted]))
	assert.Equal(t, 2.0, testutil.ToFloat64(e.gauges[OrdersFilled]))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.gauges[OrdersRejected]))
	assert.Equal(t, 2500.5, testutil.ToFloat64(e.gauges[ExecutionNotional]))
	assert.Equal(t, 7.0, testutil.ToFloat64(e.gauges[SignalsGenerated]))
	assert.Equal(t, 0.5, testutil.ToFloat64(e.gauges[HealthStatus]))
	assert.Equal(t, 1.0, testutil.ToFloat64(e.breakerState.WithLabelValues("quote:finnhub")))
	assert.Equal(t, 0.0, testutil.ToFloat64(e.breakerState.WithLabelValues("history:synthetic")))

	count, err := testutil.GatherAndCount(e.Registry())
	require.NoError(t, err)
	assert.Equal(t, len(help)+2, count)
}

func TestExporter_ExpositionNames(t *testing.T) {
	e := NewExporter()
	e.Observe(sampleSnapshot())

	expected := `
# HELP orders_submitted Orders submitted to the broker adapter
# TYPE orders_submitted gauge
orders_submitted 3
# HELP health_status 1 healthy, 0.5 degraded, 0 unhealthy
# TYPE health_status gauge
health_status 0.5
`
	err := testutil.GatherAndCompare(e.Registry(), strings.NewReader(expected), OrdersSubmitted, HealthStatus)
	assert.NoError(t, err)
}

func TestExporter_HandlerRefreshesOnScrape(t *testing.T) {
	e := NewExporter()
	calls := 0
	srv := httptest.NewServer(e.Handler(func(ctx context.Context) Snapshot {
		calls++
		s := sampleSnapshot()
		s.SignalsGenerated = int64(calls * 10)
		return s
	}))
	defer srv.Close()

	for i := 0; i < 2; i++ {
		resp, err := http.Get(srv.URL)
		require.NoError(t, err)
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Contains(t, string(body), "portfolio_value 101234.5")
		if i == 1 {
			assert.Contains(t, string(body), "signals_generated 20")
		}
	}
	assert.Equal(t, 2, calls)
}

func TestSnapshot_Values(t *testing.T) {
	v := sampleSnapshot().Values()
	assert.Len(t, v, len(help))
	assert.Equal(t, 12.0, v[LatencyMsAvg])
	assert.Equal(t, 9.0, v[LatencyMsLast])
	assert.Equal(t, 1.0, v[CircuitBreakerTrips])
}

func TestNames_CoverEveryGauge(t *testing.T) {
	names := Names()
	assert.Len(t, names, len(help))
	values := sampleSnapshot().Values()
	for _, name := range names {
		assert.Contains(t, help, name)
		assert.Contains(t, values, name)
	}
}
