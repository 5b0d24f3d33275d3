// Package broker provides the execution adapter interface and an in-memory
// paper trading implementation.
package broker

import (
	"context"

	"trading-core/internal/models"
)

// Broker defines the operations the order router needs from an execution venue.
type Broker interface {
	// Positions returns a snapshot of every non-flat position.
	Positions(ctx context.Context) ([]models.PositionSnapshot, error)
	// CashBalance returns available cash.
	CashBalance(ctx context.Context) (float64, error)
	// SubmitOrder submits an order. A rejected order is reported through
	// the result status, not the error.
	SubmitOrder(ctx context.Context, req models.OrderRequest) (models.OrderResult, error)
	// CancelOrder cancels an open order; terminal orders are returned unchanged.
	CancelOrder(ctx context.Context, orderID string) (models.OrderResult, error)
	// CurrentPrice returns the last known mark for symbol.
	CurrentPrice(ctx context.Context, symbol string) (float64, bool)
	// UpdateMarketPrice records a new mark for symbol.
	UpdateMarketPrice(symbol string, price float64)
}
