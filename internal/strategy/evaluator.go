// Package strategy evaluates persisted trading rules against indicator
// snapshots and emits buy, sell or hold signals.
package strategy

import (
	"context"
	"fmt"

	"github.com/mitchellh/mapstructure"

	"stockpilot/internal/indicator"
	"stockpilot/internal/logger"
	"stockpilot/internal/store"
)

// Signal is the outcome of one evaluation.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

// Strategy types.
const (
	TypeRSILimit = "rsi_limit"
)

// Defaults for the rsi_limit strategy.
const (
	defaultRSILower = 30
	defaultRSIUpper = 70
)

// Evaluation is a signal with the context it was derived from.
type Evaluation struct {
	StrategyID int64    `json:"strategy_id"`
	Symbol     string   `json:"symbol"`
	Signal     Signal   `json:"signal"`
	Reason     string   `json:"reason"`
	RSI        *float64 `json:"rsi,omitempty"`
}

// IndicatorProvider supplies indicator snapshots for evaluation.
type IndicatorProvider interface {
	GetIndicators(ctx context.Context, symbol, interval string, lookback int) (indicator.Snapshot, error)
}

// Evaluator turns strategies into signals. It never returns an error for a
// data problem; anything that prevents a confident decision becomes a hold.
type Evaluator struct {
	indicators IndicatorProvider
	interval   string
	lookback   int
}

func NewEvaluator(indicators IndicatorProvider) *Evaluator {
	return &Evaluator{
		indicators: indicators,
		interval:   "1d",
		lookback:   120,
	}
}

type rsiLimitParams struct {
	Lower float64 `mapstructure:"lower"`
	Upper float64 `mapstructure:"upper"`
}

// Evaluate computes the signal for one strategy.
func (e *Evaluator) Evaluate(ctx context.Context, strat store.Strategy) Evaluation {
	ev := Evaluation{
		StrategyID: strat.ID,
		Symbol:     strat.Symbol,
		Signal:     SignalHold,
	}
	switch strat.Type {
	case TypeRSILimit:
		return e.evaluateRSILimit(ctx, strat, ev)
	default:
		ev.Reason = fmt.Sprintf("unknown strategy type %q", strat.Type)
		logger.Warnf("strategy %d: %s", strat.ID, ev.Reason)
		return ev
	}
}

func (e *Evaluator) evaluateRSILimit(ctx context.Context, strat store.Strategy, ev Evaluation) Evaluation {
	params := rsiLimitParams{Lower: defaultRSILower, Upper: defaultRSIUpper}
	if err := decodeParams(strat.Params, &params); err != nil {
		ev.Reason = fmt.Sprintf("bad params: %v", err)
		logger.Warnf("strategy %d: %s", strat.ID, ev.Reason)
		return ev
	}

	snap, err := e.indicators.GetIndicators(ctx, strat.Symbol, e.interval, e.lookback)
	if err != nil {
		ev.Reason = fmt.Sprintf("indicators unavailable: %v", err)
		logger.Warnf("strategy %d (%s): %s", strat.ID, strat.Symbol, ev.Reason)
		return ev
	}
	if snap.RSI == nil {
		ev.Reason = "rsi still warming up"
		return ev
	}
	ev.RSI = snap.RSI

	switch {
	case *snap.RSI <= params.Lower:
		ev.Signal = SignalBuy
		ev.Reason = fmt.Sprintf("rsi %.2f at or below %.2f", *snap.RSI, params.Lower)
	case *snap.RSI >= params.Upper:
		ev.Signal = SignalSell
		ev.Reason = fmt.Sprintf("rsi %.2f at or above %.2f", *snap.RSI, params.Upper)
	default:
		ev.Reason = fmt.Sprintf("rsi %.2f between %.2f and %.2f", *snap.RSI, params.Lower, params.Upper)
	}
	return ev
}

// QuantityFor returns the order size for a strategy's signals. Strategies may
// carry a "quantity" param; fallback covers strategies created without one.
func QuantityFor(strat store.Strategy, fallback float64) float64 {
	if q, ok := strat.Params["quantity"]; ok && q > 0 {
		return q
	}
	if fallback > 0 {
		return fallback
	}
	return 1
}

func decodeParams(params map[string]float64, out interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(params)
}
