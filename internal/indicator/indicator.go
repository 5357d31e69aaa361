// Package indicator computes RSI, MACD and Bollinger Bands from a candle
// series. The full rolling series is always computed internally; warm-up
// values are reported as absent (nil), never as zero.
package indicator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/markcheno/go-talib"

	"stockpilot/internal/market"
)

// Default parameters, matching the common textbook settings.
const (
	DefaultRSIPeriod       = 14
	DefaultMACDFast        = 12
	DefaultMACDSlow        = 26
	DefaultMACDSignal      = 9
	DefaultBollingerPeriod = 20
	DefaultBollingerStdDev = 2.0

	// minCandles keeps the slowest indicator (MACD signal line) out of its
	// warm-up region with some margin.
	minCandles = 60
)

// MACD holds the latest MACD line, signal line and histogram values.
type MACD struct {
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// Bollinger holds the latest band values.
type Bollinger struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
}

// Snapshot carries the latest indicator values for one symbol. Nil pointers
// mean the series has not left its warm-up window yet.
type Snapshot struct {
	Symbol    string     `json:"symbol"`
	Interval  string     `json:"interval"`
	Price     float64    `json:"price"`
	RSI       *float64   `json:"rsi,omitempty"`
	MACD      *MACD      `json:"macd,omitempty"`
	Bollinger *Bollinger `json:"bollinger,omitempty"`
	At        time.Time  `json:"at"`
}

// Engine computes indicator snapshots from a market source.
type Engine struct {
	source market.Source
}

func NewEngine(source market.Source) *Engine {
	return &Engine{source: source}
}

// GetIndicators fetches candles for symbol and computes the latest indicator
// values. lookback bounds the number of candles requested; values below the
// internal minimum are raised so slow indicators can warm up.
func (e *Engine) GetIndicators(ctx context.Context, symbol, interval string, lookback int) (Snapshot, error) {
	if lookback < minCandles {
		lookback = minCandles
	}
	candles, err := e.source.GetCandles(ctx, symbol, interval, lookback)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetching candles for %s: %w", symbol, err)
	}
	if len(candles) == 0 {
		return Snapshot{}, fmt.Errorf("no candles returned for %s", symbol)
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	snap := Compute(closes)
	snap.Symbol = symbol
	snap.Interval = interval
	snap.At = candles[len(candles)-1].OpenTime
	return snap, nil
}

// Compute derives the latest indicator values from a close series ordered
// oldest to newest.
func Compute(closes []float64) Snapshot {
	snap := Snapshot{}
	if len(closes) == 0 {
		return snap
	}
	snap.Price = closes[len(closes)-1]

	rsi := RSISeries(closes, DefaultRSIPeriod)
	if last := rsi[len(rsi)-1]; !math.IsNaN(last) {
		snap.RSI = &last
	}

	if len(closes) >= DefaultMACDSlow+DefaultMACDSignal {
		macd, signal, hist := talib.Macd(closes, DefaultMACDFast, DefaultMACDSlow, DefaultMACDSignal)
		snap.MACD = &MACD{
			Value:     macd[len(macd)-1],
			Signal:    signal[len(signal)-1],
			Histogram: hist[len(hist)-1],
		}
	}

	if len(closes) >= DefaultBollingerPeriod {
		upper, middle, lower := talib.BBands(closes, DefaultBollingerPeriod,
			DefaultBollingerStdDev, DefaultBollingerStdDev, talib.SMA)
		snap.Bollinger = &Bollinger{
			Upper:  upper[len(upper)-1],
			Middle: middle[len(middle)-1],
			Lower:  lower[len(lower)-1],
		}
	}
	return snap
}

// RSISeries computes the rolling-mean RSI over period-over-period deltas.
// The first period entries are NaN (warm-up). When average gain and loss are
// both zero the value is 50 rather than a division by zero.
//
// Note this is the simple rolling-mean variant, not Wilder smoothing; the
// two converge on trending series but differ slightly on choppy ones.
func RSISeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}
	if period <= 0 || len(closes) <= period {
		return out
	}
	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))
	for i := 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}
	for i := period; i < len(closes); i++ {
		var gain, loss float64
		for j := i - period + 1; j <= i; j++ {
			gain += gains[j]
			loss += losses[j]
		}
		gain /= float64(period)
		loss /= float64(period)
		switch {
		case gain == 0 && loss == 0:
			out[i] = 50
		case loss == 0:
			out[i] = 100
		case gain == 0:
			out[i] = 0
		default:
			rs := gain / loss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}
