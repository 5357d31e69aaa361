// Package market defines the quote and candle source abstraction consumed by
// the ledger, the indicator engine and the worker.
package market

import (
	"context"
	"time"
)

// Quote is the current price snapshot for a symbol.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Name          string    `json:"name,omitempty"`
	Price         float64   `json:"price"`
	PreviousClose float64   `json:"previous_close"`
	Currency      string    `json:"currency"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Change returns the absolute move versus the previous close.
func (q Quote) Change() float64 {
	return q.Price - q.PreviousClose
}

// ChangePercent returns the move versus the previous close as a percentage.
func (q Quote) ChangePercent() float64 {
	if q.PreviousClose == 0 {
		return 0
	}
	return (q.Price - q.PreviousClose) / q.PreviousClose * 100
}

// Candle is one OHLCV bar, oldest-first when returned in a series.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// SymbolMatch is a ticker search hit.
type SymbolMatch struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
}

// Source provides quotes and historical candles for equity symbols.
type Source interface {
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	FindTicker(ctx context.Context, query string) (SymbolMatch, error)
}
