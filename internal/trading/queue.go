package trading

import (
	"context"
	"sync"
	"time"
)

// PendingTrade is a buy or sell intent awaiting external confirmation.
type PendingTrade struct {
	OrderID   string      `json:"order_id"`
	Intent    TradeIntent `json:"intent"`
	CreatedAt time.Time   `json:"created_at"`
}

// ConfirmationQueue receives pending trades. Confirming and routing them to
// a broker happens outside this package.
type ConfirmationQueue interface {
	Enqueue(ctx context.Context, trade PendingTrade) error
}

// MemoryQueue holds pending trades in arrival order.
type MemoryQueue struct {
	mu      sync.Mutex
	pending []PendingTrade
}

var _ ConfirmationQueue = (*MemoryQueue)(nil)

// NewMemoryQueue creates an empty queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, trade PendingTrade) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, trade)
	return nil
}

// Pending returns a copy of the queued trades.
func (q *MemoryQueue) Pending() []PendingTrade {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]PendingTrade, len(q.pending))
	copy(out, q.pending)
	return out
}

// Take removes and returns the trade with orderID.
func (q *MemoryQueue) Take(orderID string) (PendingTrade, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, t := range q.pending {
		if t.OrderID == orderID {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			return t, true
		}
	}
	return PendingTrade{}, false
}
