// Package telemetry exports pipeline telemetry as Prometheus metrics.
package telemetry

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trading-core/internal/execution"
	"trading-core/internal/resilience"
)

// Metric names.
const (
	OrdersSubmitted     = "orders_submitted"
	OrdersFilled        = "orders_filled"
	OrdersRejected      = "orders_rejected"
	ExecutionNotional   = "execution_notional"
	SlippageBpsAvg      = "execution_slippage_bps_avg"
	LatencyMsAvg        = "execution_latency_ms_avg"
	LatencyMsLast       = "execution_latency_ms_last"
	SignalsGenerated    = "signals_generated"
	CircuitBreakerTrips = "circuit_breaker_trips"
	PortfolioValue      = "portfolio_value"
	HealthStatus        = "health_status"
)

// Names returns every metric name in a stable display order.
func Names() []string {
	return []string{
		OrdersSubmitted, OrdersFilled, OrdersRejected, ExecutionNotional,
		SlippageBpsAvg, LatencyMsAvg, LatencyMsLast, SignalsGenerated,
		CircuitBreakerTrips, PortfolioValue, HealthStatus,
	}
}

// Snapshot is a point-in-time view of pipeline telemetry.
type Snapshot struct {
	Execution        execution.Stats                  `json:"execution"`
	SignalsGenerated int64                            `json:"signals_generated"`
	BreakerTrips     int64                            `json:"circuit_breaker_trips"`
	Breakers         []resilience.CircuitBreakerStats `json:"breakers,omitempty"`
	PortfolioValue   float64                          `json:"portfolio_value"`
	Health           resilience.HealthStatus          `json:"health"`
	Timestamp        time.Time                        `json:"timestamp"`
}

// Values flattens the snapshot into the exported metric names.
func (s Snapshot) Values() map[string]float64 {
	return map[string]float64{
		OrdersSubmitted:     float64(s.Execution.OrdersSubmitted),
		OrdersFilled:        float64(s.Execution.OrdersFilled),
		OrdersRejected:      float64(s.Execution.OrdersRejected),
		ExecutionNotional:   s.Execution.Notional,
		SlippageBpsAvg:      s.Execution.AvgSlippageBps,
		LatencyMsAvg:        s.Execution.AvgLatencyMs,
		LatencyMsLast:       s.Execution.LastLatencyMs,
		SignalsGenerated:    float64(s.SignalsGenerated),
		CircuitBreakerTrips: float64(s.BreakerTrips),
		PortfolioValue:      s.PortfolioValue,
		HealthStatus:        s.Health.Score(),
	}
}

var help = map[string]string{
	OrdersSubmitted:     "Orders submitted to the broker adapter",
	OrdersFilled:        "Orders filled",
	OrdersRejected:      "Orders rejected",
	ExecutionNotional:   "Cumulative filled notional",
	SlippageBpsAvg:      "Average fill slippage in basis points",
	LatencyMsAvg:        "Average submission latency in milliseconds",
	LatencyMsLast:       "Latency of the most recent submission in milliseconds",
	SignalsGenerated:    "Trading signals generated",
	CircuitBreakerTrips: "Circuit breaker trips across all upstreams",
	PortfolioValue:      "Cash plus marked positions",
	HealthStatus:        "1 healthy, 0.5 degraded, 0 unhealthy",
}

// Exporter publishes snapshots on a dedicated registry.
type Exporter struct {
	registry     *prometheus.Registry
	gauges       map[string]prometheus.Gauge
	breakerState *prometheus.GaugeVec
}

// NewExporter creates an exporter with every metric registered.
func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	e := &Exporter{
		registry: reg,
		gauges:   make(map[string]prometheus.Gauge, len(help)),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "circuit_breaker_open",
			Help: "1 while the named circuit breaker is open",
		}, []string{"breaker"}),
	}
	for name, h := range help {
		e.gauges[name] = factory.NewGauge(prometheus.GaugeOpts{Name: name, Help: h})
	}
	return e
}

// Observe sets every metric from s.
func (e *Exporter) Observe(s Snapshot) {
	for name, v := range s.Values() {
		e.gauges[name].Set(v)
	}
	for _, b := range s.Breakers {
		open := 0.0
		if b.State == resilience.CircuitOpen {
			open = 1
		}
		e.breakerState.WithLabelValues(b.Name).Set(open)
	}
}

// Registry returns the exporter's registry.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves /metrics, refreshing from snapshot on every scrape when
// snapshot is non-nil.
func (e *Exporter) Handler(snapshot func(ctx context.Context) Snapshot) http.Handler {
	metrics := promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if snapshot != nil {
			e.Observe(snapshot(r.Context()))
		}
		metrics.ServeHTTP(w, r)
	})
}
