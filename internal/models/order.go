package models

import "time"

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "NEW"
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusFilled    OrderStatus = "FILLED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRejected  OrderStatus = "REJECTED"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCancelled, OrderStatusRejected:
		return true
	}
	return false
}

// OrderRequest is an order to be submitted to a broker adapter.
type OrderRequest struct {
	Symbol     string    `json:"symbol"`
	Side       OrderSide `json:"side"`
	Quantity   float64   `json:"quantity"`
	LimitPrice float64   `json:"limit_price,omitempty"` // 0 for market orders
	PriceHint  float64   `json:"price_hint,omitempty"`
}

// OrderResult is the broker's view of a submitted order.
type OrderResult struct {
	OrderID        string      `json:"order_id"`
	Symbol         string      `json:"symbol"`
	Side           OrderSide   `json:"side"`
	Quantity       float64     `json:"quantity"`
	FilledQuantity float64     `json:"filled_quantity"`
	AvgFillPrice   float64     `json:"avg_fill_price"`
	ReferencePrice float64     `json:"reference_price"`
	Status         OrderStatus `json:"status"`
	Reason         string      `json:"reason,omitempty"`
	SubmittedAt    time.Time   `json:"submitted_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Notional returns the filled value of the order.
func (r OrderResult) Notional() float64 {
	return r.FilledQuantity * r.AvgFillPrice
}

// PositionSnapshot is a point-in-time position owned by a broker adapter.
type PositionSnapshot struct {
	Symbol    string    `json:"symbol"`
	Quantity  float64   `json:"quantity"`
	MarkPrice float64   `json:"mark_price"`
	Timestamp time.Time `json:"timestamp"`
}

// MarketValue returns quantity times mark price.
func (p PositionSnapshot) MarketValue() float64 {
	return p.Quantity * p.MarkPrice
}
