// Package worker drives the scheduled trading cycle: snapshot every account's
// equity, evaluate every active strategy, and execute the resulting signals.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"stockpilot/internal/broker"
	"stockpilot/internal/ledger"
	"stockpilot/internal/logger"
	"stockpilot/internal/notifier"
	"stockpilot/internal/store"
	"stockpilot/internal/strategy"
)

// Trader is the ledger surface the worker drives.
type Trader interface {
	ListAccounts(ctx context.Context) ([]store.Account, error)
	RecordEquitySnapshot(ctx context.Context, accountID int64) (store.EquityPoint, error)
	ExecuteTrade(ctx context.Context, accountID int64, symbol string, side broker.Side, quantity float64) (ledger.TradeResult, error)
}

// Evaluator turns one strategy into a signal.
type Evaluator interface {
	Evaluate(ctx context.Context, strat store.Strategy) strategy.Evaluation
}

// StrategyLister supplies the strategies to run each tick.
type StrategyLister interface {
	ListActiveStrategies(ctx context.Context) ([]store.Strategy, error)
}

// TickReport summarizes one cycle. Errors carries per-item failures; one bad
// account or strategy never aborts the rest of the tick.
type TickReport struct {
	StartedAt           time.Time     `json:"started_at"`
	Duration            time.Duration `json:"duration"`
	Accounts            int           `json:"accounts"`
	SnapshotsRecorded   int           `json:"snapshots_recorded"`
	StrategiesEvaluated int           `json:"strategies_evaluated"`
	TradesExecuted      int           `json:"trades_executed"`
	Errors              []string      `json:"errors,omitempty"`
}

// Worker runs the trading cycle on a fixed interval.
type Worker struct {
	trader     Trader
	strategies StrategyLister
	evaluator  Evaluator
	notify     notifier.Notifier

	interval   time.Duration
	defaultQty float64

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

type Option func(*Worker)

// WithDefaultQuantity sets the order size for strategies without a quantity
// param.
func WithDefaultQuantity(q float64) Option {
	return func(w *Worker) {
		if q > 0 {
			w.defaultQty = q
		}
	}
}

func New(trader Trader, strategies StrategyLister, evaluator Evaluator, notify notifier.Notifier, interval time.Duration, opts ...Option) *Worker {
	if notify == nil {
		notify = notifier.Noop{}
	}
	if interval <= 0 {
		interval = time.Minute
	}
	w := &Worker{
		trader:     trader,
		strategies: strategies,
		evaluator:  evaluator,
		notify:     notify,
		interval:   interval,
		defaultQty: 1,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the tick loop. Returns an error if already running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("worker already running")
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	stop, done := w.stop, w.done
	w.mu.Unlock()

	go w.loop(ctx, stop, done)
	logger.Infof("worker started, interval %s", w.interval)
	return nil
}

// Stop halts the loop and waits for an in-flight tick to finish.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()

	<-done
	logger.Infof("worker stopped")
}

// Running reports whether the tick loop is active.
func (w *Worker) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Worker) loop(ctx context.Context, stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := w.RunOnce(ctx)
			if len(report.Errors) > 0 {
				logger.Warnf("tick finished with %d errors: %v", len(report.Errors), report.Errors)
			}
		}
	}
}

// RunOnce executes one full cycle and reports what happened.
func (w *Worker) RunOnce(ctx context.Context) TickReport {
	report := TickReport{StartedAt: time.Now()}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		logger.Debugf("tick done in %s: %d accounts, %d snapshots, %d strategies, %d trades",
			report.Duration, report.Accounts, report.SnapshotsRecorded,
			report.StrategiesEvaluated, report.TradesExecuted)
	}()

	accounts, err := w.trader.ListAccounts(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("listing accounts: %v", err))
		return report
	}
	report.Accounts = len(accounts)

	autoTrade := make(map[int64]bool, len(accounts))
	for _, acct := range accounts {
		autoTrade[acct.ID] = acct.AutoTrade
		if _, err := w.trader.RecordEquitySnapshot(ctx, acct.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("snapshot account %d: %v", acct.ID, err))
			continue
		}
		report.SnapshotsRecorded++
	}

	strategies, err := w.strategies.ListActiveStrategies(ctx)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("listing strategies: %v", err))
		return report
	}

	for _, strat := range strategies {
		// The master switch gates trading, not evaluation bookkeeping;
		// a disabled account's strategies are skipped entirely.
		if !autoTrade[strat.AccountID] {
			continue
		}
		ev := w.evaluator.Evaluate(ctx, strat)
		report.StrategiesEvaluated++
		if ev.Signal == strategy.SignalHold {
			continue
		}

		side := broker.SideBuy
		if ev.Signal == strategy.SignalSell {
			side = broker.SideSell
		}
		qty := strategy.QuantityFor(strat, w.defaultQty)
		result, err := w.trader.ExecuteTrade(ctx, strat.AccountID, strat.Symbol, side, qty)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("strategy %d trade: %v", strat.ID, err))
			continue
		}
		report.TradesExecuted++
		w.notifyTrade(strat, ev, result)
	}
	return report
}

func (w *Worker) notifyTrade(strat store.Strategy, ev strategy.Evaluation, result ledger.TradeResult) {
	msg := notifier.Message{
		Title: fmt.Sprintf("%s %s", result.Side, result.Symbol),
		Text: fmt.Sprintf("strategy %q: %s\n%.4f @ %.4f (total %.2f), cash %.2f",
			strat.Name, ev.Reason, result.Quantity, result.Price, result.TotalAmount, result.CashAfter),
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := w.notify.Notify(ctx, msg); err != nil {
			logger.Warnf("trade notification failed: %v", err)
		}
	}()
}
