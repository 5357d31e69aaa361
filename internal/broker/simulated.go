package broker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"stockpilot/internal/logger"
	"stockpilot/internal/market"
)

// Compile-time interface check.
var _ Broker = (*Simulated)(nil)

// Simulated fills every order instantly at the requested price, or at the
// live quote when no price is supplied. It never talks to a real brokerage.
type Simulated struct {
	source market.Source
}

func NewSimulated(source market.Source) *Simulated {
	return &Simulated{source: source}
}

func (b *Simulated) Name() string { return "simulated" }

// GetBalance reports a fixed paper balance; the ledger owns real accounting.
func (b *Simulated) GetBalance(ctx context.Context) (Balance, error) {
	return Balance{Cash: 100000, Currency: "USD", Equity: 100000}, nil
}

func (b *Simulated) PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return OrderResult{}, fmt.Errorf("%w: symbol cannot be empty", ErrRejected)
	}
	if req.Quantity <= 0 {
		return OrderResult{}, fmt.Errorf("%w: quantity must be positive", ErrRejected)
	}
	price := req.Price
	if price <= 0 {
		if b.source == nil {
			return OrderResult{}, fmt.Errorf("%w: no price supplied and no quote source configured", ErrRejected)
		}
		quote, err := b.source.GetQuote(ctx, symbol)
		if err != nil {
			return OrderResult{}, fmt.Errorf("%w: resolving fill price: %v", ErrRejected, err)
		}
		price = quote.Price
	}
	orderID := "sim-" + uuid.NewString()
	logger.Infof("simulated fill: %s %s qty=%g price=%.4f order=%s", req.Side, symbol, req.Quantity, price, orderID)
	return OrderResult{
		OrderID:    orderID,
		Status:     StatusFilled,
		Symbol:     symbol,
		Quantity:   req.Quantity,
		Price:      price,
		ExecutedAt: time.Now(),
	}, nil
}

// GetOrderStatus reports filled; simulated fills are synchronous so there is
// never an open order to inspect.
func (b *Simulated) GetOrderStatus(ctx context.Context, orderID string) (OrderResult, error) {
	return OrderResult{OrderID: orderID, Status: StatusFilled}, nil
}

// CancelOrder reports cancelled for the same reason.
func (b *Simulated) CancelOrder(ctx context.Context, orderID string) (OrderResult, error) {
	return OrderResult{OrderID: orderID, Status: StatusCancelled}, nil
}
