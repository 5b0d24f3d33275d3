package broker

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "trading-core/internal/errors"
	"trading-core/internal/models"
)

func newTestBroker(cash, bps float64) *PaperBroker {
	return NewPaperBroker(PaperBrokerConfig{InitialCash: cash, SlippageBps: bps, DefaultPrice: 100}, zerolog.Nop())
}

// Property: a BUY whose notional exceeds available cash is rejected and
// leaves cash and positions untouched.
func TestProperty_InsufficientFundsLeavesStateUnchanged(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("oversized buys are rejected without mutation", prop.ForAll(
		func(cash, price, excess float64) bool {
			ctx := context.Background()
			b := newTestBroker(cash, 0)
			b.UpdateMarketPrice("AAPL", price)

			qty := (cash/price)*(1+excess) + 1
			res, err := b.SubmitOrder(ctx, models.OrderRequest{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: qty})
			if err != nil || res.Status != models.OrderStatusRejected {
				return false
			}
			after, _ := b.CashBalance(ctx)
			positions, _ := b.Positions(ctx)
			return after == cash && len(positions) == 0
		},
		gen.Float64Range(1_000, 1_000_000),
		gen.Float64Range(1, 5_000),
		gen.Float64Range(0, 2),
	))

	properties.TestingRun(t)
}

// Property: a buy followed by a sell of the same quantity at the same mark
// flattens the position and loses exactly the round-trip slippage.
func TestProperty_RoundTripCostsSlippage(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("round trip loses 2*bps of notional", prop.ForAll(
		func(qty, price, bps float64) bool {
			ctx := context.Background()
			b := newTestBroker(10_000_000, bps)
			b.UpdateMarketPrice("MSFT", price)

			if _, err := b.SubmitOrder(ctx, models.OrderRequest{Symbol: "MSFT", Side: models.OrderSideBuy, Quantity: qty}); err != nil {
				return false
			}
			if _, err := b.SubmitOrder(ctx, models.OrderRequest{Symbol: "MSFT", Side: models.OrderSideSell, Quantity: qty}); err != nil {
				return false
			}
			cash, _ := b.CashBalance(ctx)
			positions, _ := b.Positions(ctx)
			want := 10_000_000 - 2*qty*price*bps/10_000
			diff := cash - want
			return len(positions) == 0 && diff < 1e-4 && diff > -1e-4
		},
		gen.Float64Range(1, 100),
		gen.Float64Range(10, 500),
		gen.Float64Range(0, 50),
	))

	properties.TestingRun(t)
}

func TestPaperBroker_FillAppliesSlippage(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(100_000, 10)

	buy, err := b.SubmitOrder(ctx, models.OrderRequest{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 10, PriceHint: 200})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, buy.Status)
	assert.InDelta(t, 200.2, buy.AvgFillPrice, 1e-9)
	assert.Equal(t, 200.0, buy.ReferencePrice)
	assert.Equal(t, 10.0, buy.FilledQuantity)
	assert.NotEmpty(t, buy.OrderID)

	cash, _ := b.CashBalance(ctx)
	assert.InDelta(t, 100_000-2002, cash, 1e-6)

	sell, err := b.SubmitOrder(ctx, models.OrderRequest{Symbol: "AAPL", Side: models.OrderSideSell, Quantity: 4, PriceHint: 200})
	require.NoError(t, err)
	assert.InDelta(t, 199.8, sell.AvgFillPrice, 1e-9)

	positions, _ := b.Positions(ctx)
	require.Len(t, positions, 1)
	assert.Equal(t, 6.0, positions[0].Quantity)
}

func TestPaperBroker_PriceResolutionOrder(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(1_000_000, 0)

	res, _ := b.SubmitOrder(ctx, models.OrderRequest{Symbol: "X", Side: models.OrderSideBuy, Quantity: 1})
	assert.Equal(t, 100.0, res.AvgFillPrice, "default price")

	res, _ = b.SubmitOrder(ctx, models.OrderRequest{Symbol: "Y", Side: models.OrderSideBuy, Quantity: 1, LimitPrice: 50})
	assert.Equal(t, 50.0, res.AvgFillPrice, "limit price")

	b.UpdateMarketPrice("Y", 55)
	res, _ = b.SubmitOrder(ctx, models.OrderRequest{Symbol: "Y", Side: models.OrderSideBuy, Quantity: 1, LimitPrice: 50})
	assert.Equal(t, 55.0, res.AvgFillPrice, "mark beats limit")

	res, _ = b.SubmitOrder(ctx, models.OrderRequest{Symbol: "Y", Side: models.OrderSideBuy, Quantity: 1, PriceHint: 60, LimitPrice: 50})
	assert.Equal(t, 60.0, res.AvgFillPrice, "hint beats mark")
}

func TestPaperBroker_RejectedBuyIsRecorded(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(1_000, 0)

	res, err := b.SubmitOrder(ctx, models.OrderRequest{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 100, PriceHint: 200})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusRejected, res.Status)
	assert.Contains(t, res.Reason, apperrors.ErrInsufficientFunds.Error())
	assert.Zero(t, res.FilledQuantity)

	stored, ok := b.Order(res.OrderID)
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusRejected, stored.Status)
}

func TestPaperBroker_CancelIsNoOpOnTerminalOrders(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(100_000, 0)

	res, err := b.SubmitOrder(ctx, models.OrderRequest{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 1, PriceHint: 10})
	require.NoError(t, err)

	cancelled, err := b.CancelOrder(ctx, res.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusFilled, cancelled.Status)

	_, err = b.CancelOrder(ctx, "missing")
	assert.ErrorIs(t, err, apperrors.ErrOrderNotFound)
}

func TestPaperBroker_InvalidOrders(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(100_000, 0)

	_, err := b.SubmitOrder(ctx, models.OrderRequest{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 0})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)

	_, err = b.SubmitOrder(ctx, models.OrderRequest{Symbol: "AAPL", Side: "HOLD", Quantity: 1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrder)
	assert.Empty(t, b.Orders())
}

func TestPaperBroker_PortfolioValueAndReset(t *testing.T) {
	ctx := context.Background()
	b := newTestBroker(10_000, 0)

	_, err := b.SubmitOrder(ctx, models.OrderRequest{Symbol: "AAPL", Side: models.OrderSideBuy, Quantity: 10, PriceHint: 100})
	require.NoError(t, err)
	b.UpdateMarketPrice("AAPL", 110)

	value, err := b.PortfolioValue(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10_100, value, 1e-6)

	price, ok := b.CurrentPrice(ctx, "AAPL")
	assert.True(t, ok)
	assert.Equal(t, 110.0, price)

	b.Reset()
	cash, _ := b.CashBalance(ctx)
	assert.Equal(t, 10_000.0, cash)
	assert.Empty(t, b.Orders())
}
