// Package execution turns target positions into orders, submits them
// through a broker and tracks execution quality.
package execution

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trading-core/internal/models"
)

// Record is one submission/result pair.
type Record struct {
	OrderID        string             `json:"order_id"`
	Symbol         string             `json:"symbol"`
	Side           models.OrderSide   `json:"side"`
	Quantity       float64            `json:"quantity"`
	Status         models.OrderStatus `json:"status"`
	ReferencePrice float64            `json:"reference_price"`
	FillPrice      float64            `json:"fill_price"`
	Notional       float64            `json:"notional"`
	SlippageBps    float64            `json:"slippage_bps"`
	LatencyMs      float64            `json:"latency_ms"`
	Reason         string             `json:"reason,omitempty"`
	SubmittedAt    time.Time          `json:"submitted_at"`
}

// Filled reports whether the record describes a fill.
func (r Record) Filled() bool {
	return r.Status == models.OrderStatusFilled || r.Status == models.OrderStatusPartial
}

// Sink receives every execution record, e.g. a persistent ledger.
type Sink interface {
	RecordExecution(ctx context.Context, rec Record) error
}

// SlippageBps is the adverse deviation of fill from reference in basis
// points: positive when a BUY paid more or a SELL received less.
func SlippageBps(side models.OrderSide, reference, fill float64) float64 {
	if reference <= 0 || fill <= 0 {
		return 0
	}
	bps := (fill - reference) / reference * 10_000
	if side == models.OrderSideSell {
		return -bps
	}
	return bps
}

// MonitorConfig holds execution monitor settings.
type MonitorConfig struct {
	SlippageAlertBps float64
	LatencyAlertMs   float64
	WindowSize       int
}

// DefaultMonitorConfig returns default configuration.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		SlippageAlertBps: 50,
		LatencyAlertMs:   1000,
		WindowSize:       100,
	}
}

// Stats is the monitor's running telemetry.
type Stats struct {
	OrdersSubmitted int64   `json:"orders_submitted"`
	OrdersFilled    int64   `json:"orders_filled"`
	OrdersRejected  int64   `json:"orders_rejected"`
	Notional        float64 `json:"execution_notional"`
	AvgSlippageBps  float64 `json:"execution_slippage_bps_avg"`
	LastSlippageBps float64 `json:"execution_slippage_bps_last"`
	MaxSlippageBps  float64 `json:"execution_slippage_bps_max"`
	AvgLatencyMs    float64 `json:"execution_latency_ms_avg"`
	LastLatencyMs   float64 `json:"execution_latency_ms_last"`
	MaxLatencyMs    float64 `json:"execution_latency_ms_max"`
}

// FillRate returns filled orders as a percentage of results seen.
func (s Stats) FillRate() float64 {
	done := s.OrdersFilled + s.OrdersRejected
	if done == 0 {
		return 0
	}
	return float64(s.OrdersFilled) / float64(done) * 100
}

// AlertType represents the type of execution alert.
type AlertType string

const (
	AlertHighSlippage  AlertType = "HIGH_SLIPPAGE"
	AlertHighLatency   AlertType = "HIGH_LATENCY"
	AlertOrderRejected AlertType = "ORDER_REJECTED"
)

// Alert is raised when an execution breaches a threshold.
type Alert struct {
	Type      AlertType
	OrderID   string
	Symbol    string
	Value     float64
	Threshold float64
	Message   string
}

// Monitor accumulates execution telemetry.
type Monitor struct {
	config MonitorConfig

	mu          sync.RWMutex
	stats       Stats
	slippageSum float64
	latencySum  float64
	results     int64
	recent      []Record
	onAlert     func(Alert)
}

// NewMonitor creates a new execution monitor.
func NewMonitor(config MonitorConfig) *Monitor {
	if config.WindowSize <= 0 {
		config.WindowSize = DefaultMonitorConfig().WindowSize
	}
	return &Monitor{
		config: config,
		recent: make([]Record, 0, config.WindowSize),
	}
}

// OnAlert sets the callback for threshold breaches.
func (m *Monitor) OnAlert(fn func(Alert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onAlert = fn
}

// RecordSubmission counts an order handed to the broker.
func (m *Monitor) RecordSubmission(req models.OrderRequest) {
	m.mu.Lock()
	m.stats.OrdersSubmitted++
	m.mu.Unlock()
}

// RecordResult folds one result into the running statistics.
func (m *Monitor) RecordResult(rec Record) {
	m.mu.Lock()
	m.results++
	m.latencySum += rec.LatencyMs
	m.stats.LastLatencyMs = rec.LatencyMs
	m.stats.AvgLatencyMs = m.latencySum / float64(m.results)
	m.stats.MaxLatencyMs = max(m.stats.MaxLatencyMs, rec.LatencyMs)

	var alerts []Alert
	if rec.Filled() {
		m.stats.OrdersFilled++
		m.stats.Notional += rec.Notional
		m.slippageSum += rec.SlippageBps
		m.stats.LastSlippageBps = rec.SlippageBps
		m.stats.AvgSlippageBps = m.slippageSum / float64(m.stats.OrdersFilled)
		m.stats.MaxSlippageBps = max(m.stats.MaxSlippageBps, rec.SlippageBps)
		if m.config.SlippageAlertBps > 0 && rec.SlippageBps > m.config.SlippageAlertBps {
			alerts = append(alerts, Alert{
				Type:      AlertHighSlippage,
				OrderID:   rec.OrderID,
				Symbol:    rec.Symbol,
				Value:     rec.SlippageBps,
				Threshold: m.config.SlippageAlertBps,
				Message:   fmt.Sprintf("High slippage: %.1f bps (threshold: %.1f bps)", rec.SlippageBps, m.config.SlippageAlertBps),
			})
		}
	} else if rec.Status == models.OrderStatusRejected {
		m.stats.OrdersRejected++
		alerts = append(alerts, Alert{
			Type:    AlertOrderRejected,
			OrderID: rec.OrderID,
			Symbol:  rec.Symbol,
			Message: fmt.Sprintf("Order rejected: %s", rec.Reason),
		})
	}
	if m.config.LatencyAlertMs > 0 && rec.LatencyMs > m.config.LatencyAlertMs {
		alerts = append(alerts, Alert{
			Type:      AlertHighLatency,
			OrderID:   rec.OrderID,
			Symbol:    rec.Symbol,
			Value:     rec.LatencyMs,
			Threshold: m.config.LatencyAlertMs,
			Message:   fmt.Sprintf("High latency: %.0fms (threshold: %.0fms)", rec.LatencyMs, m.config.LatencyAlertMs),
		})
	}

	m.recent = append(m.recent, rec)
	if len(m.recent) > m.config.WindowSize {
		m.recent = m.recent[1:]
	}
	onAlert := m.onAlert
	m.mu.Unlock()

	if onAlert != nil {
		for _, a := range alerts {
			onAlert(a)
		}
	}
}

// Stats returns a copy of the running statistics.
func (m *Monitor) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Recent returns up to limit of the most recent records, oldest first.
func (m *Monitor) Recent(limit int) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.recent) {
		limit = len(m.recent)
	}
	out := make([]Record, limit)
	copy(out, m.recent[len(m.recent)-limit:])
	return out
}

// SymbolStats summarizes fills for one symbol in the recent window.
type SymbolStats struct {
	Symbol         string
	Fills          int
	Notional       float64
	AvgSlippageBps float64
}

// BySymbol groups the recent window's fills by symbol.
func (m *Monitor) BySymbol() []SymbolStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bySymbol := make(map[string]*SymbolStats)
	for _, r := range m.recent {
		if !r.Filled() {
			continue
		}
		s, ok := bySymbol[r.Symbol]
		if !ok {
			s = &SymbolStats{Symbol: r.Symbol}
			bySymbol[r.Symbol] = s
		}
		s.AvgSlippageBps = (s.AvgSlippageBps*float64(s.Fills) + r.SlippageBps) / float64(s.Fills+1)
		s.Fills++
		s.Notional += r.Notional
	}

	out := make([]SymbolStats, 0, len(bySymbol))
	for _, s := range bySymbol {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
