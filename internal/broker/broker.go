// Package broker defines the order execution abstraction and its two
// backends: a simulated broker that fills instantly and a live broker backed
// by the KIS Open API.
package broker

import (
	"context"
	"errors"
	"time"
)

// Side of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide normalizes a side string; returns false for anything else.
func ParseSide(s string) (Side, bool) {
	switch Side(s) {
	case SideBuy, "buy", "Buy":
		return SideBuy, true
	case SideSell, "sell", "Sell":
		return SideSell, true
	default:
		return "", false
	}
}

// Order lifecycle states. StatusFilled is the only state the ledger treats as
// success.
const (
	StatusFilled    = "filled"
	StatusCancelled = "cancelled"
)

// ErrRejected marks a remote order failure. The wrapped message carries the
// remote error text.
var ErrRejected = errors.New("broker rejected order")

// OrderRequest describes an order to place.
type OrderRequest struct {
	Symbol    string
	Quantity  float64
	Side      Side
	OrderType string  // "market" or "limit"
	Price     float64 // limit price, or the reference fill price; 0 lets the backend resolve it
}

// OrderResult is the normalized response of every backend.
type OrderResult struct {
	OrderID    string
	Status     string
	Symbol     string
	Quantity   float64
	Price      float64
	ExecutedAt time.Time
}

// Filled reports whether the order reached the only success state.
func (r OrderResult) Filled() bool {
	return r.Status == StatusFilled
}

// Balance is an informational account snapshot from the backend. The ledger
// never derives its own accounting from it.
type Balance struct {
	Cash     float64
	Currency string
	Equity   float64
}

// Broker is the capability set shared by the simulated and live backends.
// Failures are returned as errors, never panics; callers must treat any
// result without StatusFilled as a non-success uniformly across backends.
type Broker interface {
	Name() string
	GetBalance(ctx context.Context) (Balance, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetOrderStatus(ctx context.Context, orderID string) (OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (OrderResult, error)
}
