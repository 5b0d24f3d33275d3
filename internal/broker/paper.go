package broker

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/logging"
	"trading-core/internal/models"
)

// PaperBrokerConfig holds configuration for the paper broker.
type PaperBrokerConfig struct {
	InitialCash  float64
	SlippageBps  float64
	DefaultPrice float64
	Now          func() time.Time
}

// DefaultPaperBrokerConfig returns the paper broker defaults.
func DefaultPaperBrokerConfig() PaperBrokerConfig {
	return PaperBrokerConfig{
		InitialCash:  100_000,
		SlippageBps:  5,
		DefaultPrice: 100,
	}
}

// PaperBroker simulates fills in memory. Every order fills completely at the
// resolved price plus slippage, or is rejected without touching state.
type PaperBroker struct {
	config PaperBrokerConfig
	now    func() time.Time
	logger zerolog.Logger

	mu        sync.Mutex
	cash      decimal.Decimal
	positions map[string]decimal.Decimal
	marks     map[string]float64
	orders    map[string]*models.OrderResult
	sequence  []string
}

var _ Broker = (*PaperBroker)(nil)

// NewPaperBroker creates a new paper trading broker.
func NewPaperBroker(cfg PaperBrokerConfig, logger zerolog.Logger) *PaperBroker {
	def := DefaultPaperBrokerConfig()
	if cfg.InitialCash <= 0 {
		cfg.InitialCash = def.InitialCash
	}
	if cfg.SlippageBps < 0 {
		cfg.SlippageBps = 0
	}
	if cfg.DefaultPrice <= 0 {
		cfg.DefaultPrice = def.DefaultPrice
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &PaperBroker{
		config:    cfg,
		now:       now,
		logger:    logger.With().Str("component", "paper_broker").Logger(),
		cash:      decimal.NewFromFloat(cfg.InitialCash),
		positions: make(map[string]decimal.Decimal),
		marks:     make(map[string]float64),
		orders:    make(map[string]*models.OrderResult),
	}
}

// Positions returns non-flat positions sorted by symbol.
func (p *PaperBroker) Positions(ctx context.Context) ([]models.PositionSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ts := p.now()
	out := make([]models.PositionSnapshot, 0, len(p.positions))
	for sym, qty := range p.positions {
		if qty.IsZero() {
			continue
		}
		out = append(out, models.PositionSnapshot{
			Symbol:    sym,
			Quantity:  qty.InexactFloat64(),
			MarkPrice: p.marks[sym],
			Timestamp: ts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

// CashBalance returns available cash.
func (p *PaperBroker) CashBalance(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash.InexactFloat64(), nil
}

// PortfolioValue returns cash plus every position at its mark.
func (p *PaperBroker) PortfolioValue(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := p.cash
	for sym, qty := range p.positions {
		total = total.Add(qty.Mul(decimal.NewFromFloat(p.marks[sym])))
	}
	return total.InexactFloat64(), nil
}

// SubmitOrder fills or rejects the order atomically.
func (p *PaperBroker) SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return models.OrderResult{}, err
	}
	if req.Symbol == "" || req.Quantity <= 0 {
		return models.OrderResult{}, apperrors.NewOrderError("", req.Symbol, string(req.Side), "quantity must be positive", apperrors.ErrInvalidOrder)
	}
	if req.Side != models.OrderSideBuy && req.Side != models.OrderSideSell {
		return models.OrderResult{}, apperrors.NewOrderError("", req.Symbol, string(req.Side), "unknown side", apperrors.ErrInvalidOrder)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ts := p.now()
	result := &models.OrderResult{
		OrderID:     uuid.New().String(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Status:      models.OrderStatusSubmitted,
		SubmittedAt: ts,
		UpdatedAt:   ts,
	}

	ref := p.resolvePrice(req)
	fill := p.applySlippage(ref, req.Side)
	result.ReferencePrice = ref

	qty := decimal.NewFromFloat(req.Quantity)
	notional := qty.Mul(decimal.NewFromFloat(fill))

	if req.Side == models.OrderSideBuy && p.cash.LessThan(notional) {
		result.Status = models.OrderStatusRejected
		result.Reason = fmt.Sprintf("%v: need %s, have %s", apperrors.ErrInsufficientFunds, notional.StringFixed(2), p.cash.StringFixed(2))
		p.record(result)
		p.logger.Warn().
			Str("order_id", result.OrderID).
			Str("symbol", req.Symbol).
			Float64("quantity", req.Quantity).
			Float64("price", fill).
			Msg("Order rejected: insufficient funds")
		return *result, nil
	}

	position := p.positions[req.Symbol]
	if req.Side == models.OrderSideBuy {
		p.cash = p.cash.Sub(notional)
		position = position.Add(qty)
	} else {
		p.cash = p.cash.Add(notional)
		position = position.Sub(qty)
	}
	if position.IsZero() {
		delete(p.positions, req.Symbol)
	} else {
		p.positions[req.Symbol] = position
	}
	if _, ok := p.marks[req.Symbol]; !ok {
		p.marks[req.Symbol] = ref
	}

	result.Status = models.OrderStatusFilled
	result.FilledQuantity = req.Quantity
	result.AvgFillPrice = fill
	result.UpdatedAt = p.now()
	p.record(result)

	logging.LogOrder(p.logger, result.OrderID, result.Symbol, string(result.Side), string(result.Status), result.FilledQuantity, fill)
	return *result, nil
}

// CancelOrder cancels an open order. Terminal orders are left as they are.
func (p *PaperBroker) CancelOrder(ctx context.Context, orderID string) (models.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	order, ok := p.orders[orderID]
	if !ok {
		return models.OrderResult{}, fmt.Errorf("cancel %s: %w", orderID, apperrors.ErrOrderNotFound)
	}
	if order.Status.IsTerminal() {
		return *order, nil
	}
	order.Status = models.OrderStatusCancelled
	order.UpdatedAt = p.now()
	return *order, nil
}

// Order returns a submitted order by id.
func (p *PaperBroker) Order(orderID string) (models.OrderResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return models.OrderResult{}, false
	}
	return *o, true
}

// Orders returns every order in submission order.
func (p *PaperBroker) Orders() []models.OrderResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.OrderResult, 0, len(p.sequence))
	for _, id := range p.sequence {
		out = append(out, *p.orders[id])
	}
	return out
}

// CurrentPrice returns the last mark for symbol.
func (p *PaperBroker) CurrentPrice(ctx context.Context, symbol string) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.marks[symbol]
	return price, ok
}

// UpdateMarketPrice records a new mark. Non-positive prices are ignored.
func (p *PaperBroker) UpdateMarketPrice(symbol string, price float64) {
	if price <= 0 {
		return
	}
	p.mu.Lock()
	p.marks[symbol] = price
	p.mu.Unlock()
}

// Reset restores the initial cash and drops all positions and orders.
func (p *PaperBroker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash = decimal.NewFromFloat(p.config.InitialCash)
	p.positions = make(map[string]decimal.Decimal)
	p.marks = make(map[string]float64)
	p.orders = make(map[string]*models.OrderResult)
	p.sequence = nil
}

// resolvePrice picks hint, then last mark, then limit, then the default.
func (p *PaperBroker) resolvePrice(req models.OrderRequest) float64 {
	if req.PriceHint > 0 {
		return req.PriceHint
	}
	if mark, ok := p.marks[req.Symbol]; ok && mark > 0 {
		return mark
	}
	if req.LimitPrice > 0 {
		return req.LimitPrice
	}
	return p.config.DefaultPrice
}

func (p *PaperBroker) applySlippage(price float64, side models.OrderSide) float64 {
	slip := price * p.config.SlippageBps / 10_000
	if side == models.OrderSideBuy {
		return price + slip
	}
	return price - slip
}

func (p *PaperBroker) record(result *models.OrderResult) {
	p.orders[result.OrderID] = result
	p.sequence = append(p.sequence, result.OrderID)
}
