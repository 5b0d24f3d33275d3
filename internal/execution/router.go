package execution

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"trading-core/internal/broker"
	"trading-core/internal/logging"
	"trading-core/internal/models"
)

// minDelta is the smallest position change worth an order.
const minDelta = 1e-6

// BuildPlan returns the orders that move current positions to target.
// Symbols held but absent from target are flattened. Orders are sorted by
// symbol; prices, when known, become price hints.
func BuildPlan(target, current, prices map[string]float64) []models.OrderRequest {
	symbols := make([]string, 0, len(target)+len(current))
	for sym := range target {
		symbols = append(symbols, sym)
	}
	for sym := range current {
		if _, ok := target[sym]; !ok {
			symbols = append(symbols, sym)
		}
	}
	sort.Strings(symbols)

	plan := make([]models.OrderRequest, 0, len(symbols))
	for _, sym := range symbols {
		delta := target[sym] - current[sym]
		if math.Abs(delta) < minDelta {
			continue
		}
		side := models.OrderSideBuy
		if delta < 0 {
			side = models.OrderSideSell
		}
		plan = append(plan, models.OrderRequest{
			Symbol:    sym,
			Side:      side,
			Quantity:  math.Abs(delta),
			PriceHint: prices[sym],
		})
	}
	return plan
}

// Router submits plans through a broker and feeds the monitor.
type Router struct {
	broker  broker.Broker
	monitor *Monitor
	sink    Sink
	logger  zerolog.Logger
	now     func() time.Time
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithSink forwards every record to sink.
func WithSink(sink Sink) RouterOption {
	return func(r *Router) { r.sink = sink }
}

// WithClock overrides the latency clock.
func WithClock(now func() time.Time) RouterOption {
	return func(r *Router) { r.now = now }
}

// NewRouter creates a router. A nil monitor gets a default one.
func NewRouter(b broker.Broker, monitor *Monitor, logger zerolog.Logger, opts ...RouterOption) *Router {
	if monitor == nil {
		monitor = NewMonitor(DefaultMonitorConfig())
	}
	r := &Router{
		broker:  b,
		monitor: monitor,
		logger:  logger.With().Str("component", "router").Logger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Monitor returns the router's execution monitor.
func (r *Router) Monitor() *Monitor {
	return r.monitor
}

// ExecutePlan submits every order in plan, in order. A failed submission is
// recorded as a rejection and does not stop the rest of the plan; the
// submission errors are returned joined.
func (r *Router) ExecutePlan(ctx context.Context, plan []models.OrderRequest) ([]models.OrderResult, error) {
	results := make([]models.OrderResult, 0, len(plan))
	var errs []error

	for _, req := range plan {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if req.PriceHint <= 0 {
			if price, ok := r.broker.CurrentPrice(ctx, req.Symbol); ok {
				req.PriceHint = price
			}
		}

		r.monitor.RecordSubmission(req)
		start := r.now()
		res, err := r.broker.SubmitOrder(ctx, req)
		latency := float64(r.now().Sub(start).Microseconds()) / 1000

		rec := Record{
			OrderID:     res.OrderID,
			Symbol:      req.Symbol,
			Side:        req.Side,
			Quantity:    req.Quantity,
			Status:      res.Status,
			LatencyMs:   latency,
			Reason:      res.Reason,
			SubmittedAt: start,
		}
		if err != nil {
			rec.Status = models.OrderStatusRejected
			rec.Reason = err.Error()
			res = models.OrderResult{Symbol: req.Symbol, Side: req.Side, Quantity: req.Quantity, Status: models.OrderStatusRejected, Reason: err.Error()}
			errs = append(errs, err)
		} else {
			rec.ReferencePrice = res.ReferencePrice
			if rec.ReferencePrice <= 0 {
				rec.ReferencePrice = req.PriceHint
			}
			rec.FillPrice = res.AvgFillPrice
			rec.Notional = res.Notional()
			if rec.Filled() {
				rec.SlippageBps = SlippageBps(req.Side, rec.ReferencePrice, rec.FillPrice)
			}
		}

		r.monitor.RecordResult(rec)
		if r.sink != nil {
			if err := r.sink.RecordExecution(ctx, rec); err != nil {
				r.logger.Warn().Err(err).Str("order_id", rec.OrderID).Msg("Execution sink failed")
			}
		}
		log := logging.WithSymbol(r.logger, req.Symbol)
		log.Debug().
			Str("side", string(req.Side)).
			Float64("quantity", req.Quantity).
			Str("status", string(rec.Status)).
			Float64("slippage_bps", rec.SlippageBps).
			Float64("latency_ms", latency).
			Msg("Order routed")

		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Rebalance reads current positions from the broker, builds a plan towards
// target and executes it.
func (r *Router) Rebalance(ctx context.Context, target, prices map[string]float64) ([]models.OrderResult, error) {
	positions, err := r.broker.Positions(ctx)
	if err != nil {
		return nil, err
	}
	current := make(map[string]float64, len(positions))
	for _, p := range positions {
		current[p.Symbol] = p.Quantity
	}
	plan := BuildPlan(target, current, prices)
	r.logger.Info().Int("orders", len(plan)).Msg("Rebalance plan built")
	return r.ExecutePlan(ctx, plan)
}
