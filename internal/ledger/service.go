// Package ledger owns all account, position and trade accounting. Every
// balance or position mutation in the system goes through ExecuteTrade; the
// broker result only confirms execution, it never drives accounting on its
// own.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"stockpilot/internal/broker"
	"stockpilot/internal/logger"
	"stockpilot/internal/market"
	"stockpilot/internal/pkg/keymutex"
	"stockpilot/internal/store"
)

// DefaultInitialBalance is the paper cash a new account is funded with when
// the caller does not specify an amount.
const DefaultInitialBalance = 100000

// TradeResult describes one settled trade.
type TradeResult struct {
	TradeID     int64     `json:"trade_id"`
	OrderID     string    `json:"order_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	TotalAmount float64   `json:"total_amount"`
	CashAfter   float64   `json:"cash_after"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// PositionView is one holding valued at the current market price. Stale is
// set when the quote could not be fetched and the average cost was used as
// the price instead.
type PositionView struct {
	Symbol           string  `json:"symbol"`
	Quantity         float64 `json:"quantity"`
	AvgCost          float64 `json:"avg_cost"`
	Price            float64 `json:"price"`
	MarketValue      float64 `json:"market_value"`
	CostBasis        float64 `json:"cost_basis"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
	Stale            bool    `json:"stale,omitempty"`
}

// Portfolio is an account snapshot with every position valued at market.
type Portfolio struct {
	AccountID      int64          `json:"account_id"`
	Username       string         `json:"username"`
	Cash           float64        `json:"cash"`
	PositionsValue float64        `json:"positions_value"`
	Equity         float64        `json:"equity"`
	InitialBalance float64        `json:"initial_balance"`
	TotalProfit    float64        `json:"total_profit"`
	TotalProfitPct float64        `json:"total_profit_pct"`
	AutoTrade      bool           `json:"auto_trade"`
	Positions      []PositionView `json:"positions"`
	At             time.Time      `json:"at"`
}

// Service implements the trade ledger.
type Service struct {
	store  store.Store
	equity store.EquityStore
	broker broker.Broker
	source market.Source

	locks        *keymutex.KeyMutex
	quoteTimeout time.Duration
	maxParallel  int
}

// Option configures a Service.
type Option func(*Service)

// WithQuoteTimeout bounds each quote fetch during valuation and trading.
func WithQuoteTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.quoteTimeout = d
		}
	}
}

// WithMaxParallelQuotes bounds concurrent quote fetches during valuation.
func WithMaxParallelQuotes(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxParallel = n
		}
	}
}

func NewService(st store.Store, eq store.EquityStore, br broker.Broker, src market.Source, opts ...Option) *Service {
	s := &Service{
		store:        st,
		equity:       eq,
		broker:       br,
		source:       src,
		locks:        keymutex.New(),
		quoteTimeout: 5 * time.Second,
		maxParallel:  4,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpenAccount creates a funded account. A non-positive initialCash falls back
// to the default funding.
func (s *Service) OpenAccount(ctx context.Context, username string, initialCash float64) (store.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return store.Account{}, fmt.Errorf("%w: username required", ErrInvalidOrder)
	}
	if initialCash <= 0 {
		initialCash = DefaultInitialBalance
	}
	acct, err := s.store.CreateAccount(ctx, store.Account{
		Username:       username,
		CashBalance:    initialCash,
		InitialBalance: initialCash,
		AutoTrade:      false,
	})
	if err != nil {
		return store.Account{}, err
	}
	logger.Infof("opened account %d (%s) with %.2f cash", acct.ID, acct.Username, acct.CashBalance)
	return acct, nil
}

// GetAccount returns one account row.
func (s *Service) GetAccount(ctx context.Context, accountID int64) (store.Account, error) {
	acct, ok, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return store.Account{}, err
	}
	if !ok {
		return store.Account{}, ErrAccountNotFound
	}
	return acct, nil
}

// ListAccounts returns every account.
func (s *Service) ListAccounts(ctx context.Context) ([]store.Account, error) {
	return s.store.ListAccounts(ctx)
}

// SetAutoTrade flips the per-account master switch.
func (s *Service) SetAutoTrade(ctx context.Context, accountID int64, enabled bool) error {
	err := s.store.SetAutoTrade(ctx, accountID, enabled)
	if err != nil {
		if isNotFound(err) {
			return ErrAccountNotFound
		}
		return err
	}
	logger.Infof("account %d auto-trade set to %v", accountID, enabled)
	return nil
}

// ExecuteTrade runs the full trade pipeline for one account: price the
// symbol, check funds or holdings, submit the order to the broker, and only
// then commit cash, position and trade record in a single transaction. The
// per-account lock is held across the whole check-submit-commit sequence so
// two concurrent trades for the same account cannot both pass the same
// balance check.
func (s *Service) ExecuteTrade(ctx context.Context, accountID int64, symbol string, side broker.Side, quantity float64) (TradeResult, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return TradeResult{}, fmt.Errorf("%w: symbol required", ErrInvalidOrder)
	}
	if quantity <= 0 {
		return TradeResult{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidOrder)
	}
	if side != broker.SideBuy && side != broker.SideSell {
		return TradeResult{}, fmt.Errorf("%w: unknown side %q", ErrInvalidOrder, side)
	}

	key := fmt.Sprintf("account:%d", accountID)
	s.locks.Lock(key)
	defer s.locks.Unlock(key)

	acct, ok, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return TradeResult{}, err
	}
	if !ok {
		return TradeResult{}, ErrAccountNotFound
	}

	quote, err := s.fetchQuote(ctx, symbol)
	if err != nil {
		return TradeResult{}, fmt.Errorf("%w: %s: %v", ErrQuoteUnavailable, symbol, err)
	}
	price := decimal.NewFromFloat(quote.Price)
	qty := decimal.NewFromFloat(quantity)
	total := price.Mul(qty)

	// Pre-checks before touching the broker. Rechecked inside the commit
	// transaction; the lock makes a failure there a bug, not a race.
	switch side {
	case broker.SideBuy:
		if total.GreaterThan(decimal.NewFromFloat(acct.CashBalance)) {
			return TradeResult{}, fmt.Errorf("%w: need %s, have %.2f", ErrInsufficientFunds, total.StringFixed(2), acct.CashBalance)
		}
	case broker.SideSell:
		pos, held, err := s.store.GetPosition(ctx, accountID, symbol)
		if err != nil {
			return TradeResult{}, err
		}
		if !held || decimal.NewFromFloat(pos.Quantity).LessThan(qty) {
			return TradeResult{}, fmt.Errorf("%w: %s", ErrInsufficientQuantity, symbol)
		}
	}

	result, err := s.broker.PlaceOrder(ctx, broker.OrderRequest{
		Symbol:    symbol,
		Quantity:  quantity,
		Side:      side,
		OrderType: "market",
		Price:     quote.Price,
	})
	if err != nil {
		return TradeResult{}, fmt.Errorf("placing %s order for %s: %w", side, symbol, err)
	}
	if !result.Filled() {
		return TradeResult{}, fmt.Errorf("%w: order %s status %q", broker.ErrRejected, result.OrderID, result.Status)
	}
	fillPrice := decimal.NewFromFloat(result.Price)
	if result.Price <= 0 {
		fillPrice = price
	}
	fillTotal := fillPrice.Mul(qty)

	var committed TradeResult
	commit := func(tx store.Store) error {
		acct, ok, err := tx.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAccountNotFound
		}
		cash := decimal.NewFromFloat(acct.CashBalance)

		switch side {
		case broker.SideBuy:
			if fillTotal.GreaterThan(cash) {
				return ErrInsufficientFunds
			}
			cash = cash.Sub(fillTotal)
			pos, held, err := tx.GetPosition(ctx, accountID, symbol)
			if err != nil {
				return err
			}
			oldQty := decimal.Zero
			oldCost := decimal.Zero
			if held {
				oldQty = decimal.NewFromFloat(pos.Quantity)
				oldCost = decimal.NewFromFloat(pos.AvgCost)
			}
			newQty := oldQty.Add(qty)
			newAvg := oldQty.Mul(oldCost).Add(fillTotal).Div(newQty)
			if err := tx.UpsertPosition(ctx, store.Position{
				AccountID: accountID,
				Symbol:    symbol,
				Quantity:  newQty.InexactFloat64(),
				AvgCost:   newAvg.InexactFloat64(),
			}); err != nil {
				return err
			}

		case broker.SideSell:
			pos, held, err := tx.GetPosition(ctx, accountID, symbol)
			if err != nil {
				return err
			}
			if !held {
				return ErrInsufficientQuantity
			}
			remaining := decimal.NewFromFloat(pos.Quantity).Sub(qty)
			if remaining.IsNegative() {
				return ErrInsufficientQuantity
			}
			cash = cash.Add(fillTotal)
			if remaining.IsZero() {
				if err := tx.DeletePosition(ctx, accountID, symbol); err != nil {
					return err
				}
			} else {
				// Average cost is unchanged by a sell.
				if err := tx.UpsertPosition(ctx, store.Position{
					AccountID: accountID,
					Symbol:    symbol,
					Quantity:  remaining.InexactFloat64(),
					AvgCost:   pos.AvgCost,
				}); err != nil {
					return err
				}
			}
		}

		acct.CashBalance = cash.InexactFloat64()
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
		trade, err := tx.AppendTrade(ctx, store.Trade{
			AccountID:   accountID,
			Symbol:      symbol,
			Side:        string(side),
			Quantity:    quantity,
			Price:       fillPrice.InexactFloat64(),
			TotalAmount: fillTotal.InexactFloat64(),
			OrderID:     result.OrderID,
			ExecutedAt:  result.ExecutedAt,
		})
		if err != nil {
			return err
		}
		committed = TradeResult{
			TradeID:     trade.ID,
			OrderID:     trade.OrderID,
			Symbol:      trade.Symbol,
			Side:        trade.Side,
			Quantity:    trade.Quantity,
			Price:       trade.Price,
			TotalAmount: trade.TotalAmount,
			CashAfter:   acct.CashBalance,
			ExecutedAt:  trade.ExecutedAt,
		}
		return nil
	}

	err = s.store.Transaction(ctx, commit)
	if err != nil && isBusy(err) {
		logger.Warnf("trade commit for account %d hit a busy database, retrying once: %v", accountID, err)
		err = s.store.Transaction(ctx, commit)
	}
	if err != nil {
		// The order already filled at the broker. Surface loudly so the
		// operator can reconcile.
		logger.Errorf("order %s filled but ledger commit failed for account %d: %v", result.OrderID, accountID, err)
		return TradeResult{}, fmt.Errorf("committing trade (order %s): %w", result.OrderID, err)
	}

	logger.Infof("account %d %s %.4f %s @ %.4f via %s (order %s)",
		accountID, side, quantity, symbol, committed.Price, s.broker.Name(), committed.OrderID)
	return committed, nil
}

// GetUserPortfolio values every position at the current market price. Quote
// failures degrade that position to its average cost instead of failing the
// whole snapshot.
func (s *Service) GetUserPortfolio(ctx context.Context, accountID int64) (Portfolio, error) {
	acct, ok, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return Portfolio{}, err
	}
	if !ok {
		return Portfolio{}, ErrAccountNotFound
	}
	positions, err := s.store.ListPositions(ctx, accountID)
	if err != nil {
		return Portfolio{}, err
	}

	views := make([]PositionView, len(positions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i, pos := range positions {
		i, pos := i, pos
		g.Go(func() error {
			view := PositionView{
				Symbol:   pos.Symbol,
				Quantity: pos.Quantity,
				AvgCost:  pos.AvgCost,
				Price:    pos.AvgCost,
			}
			quote, err := s.fetchQuote(gctx, pos.Symbol)
			if err != nil {
				logger.Warnf("valuing %s at avg cost, quote failed: %v", pos.Symbol, err)
				view.Stale = true
			} else {
				view.Price = quote.Price
			}
			qty := decimal.NewFromFloat(view.Quantity)
			value := decimal.NewFromFloat(view.Price).Mul(qty)
			basis := decimal.NewFromFloat(view.AvgCost).Mul(qty)
			view.MarketValue = value.InexactFloat64()
			view.CostBasis = basis.InexactFloat64()
			view.UnrealizedPnL = value.Sub(basis).InexactFloat64()
			if !basis.IsZero() {
				view.UnrealizedPnLPct = value.Sub(basis).Div(basis).Mul(decimal.NewFromInt(100)).InexactFloat64()
			}
			views[i] = view
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Portfolio{}, err
	}

	positionsValue := decimal.Zero
	for _, v := range views {
		positionsValue = positionsValue.Add(decimal.NewFromFloat(v.MarketValue))
	}
	equity := decimal.NewFromFloat(acct.CashBalance).Add(positionsValue)
	profit := equity.Sub(decimal.NewFromFloat(acct.InitialBalance))

	p := Portfolio{
		AccountID:      acct.ID,
		Username:       acct.Username,
		Cash:           acct.CashBalance,
		PositionsValue: positionsValue.InexactFloat64(),
		Equity:         equity.InexactFloat64(),
		InitialBalance: acct.InitialBalance,
		TotalProfit:    profit.InexactFloat64(),
		AutoTrade:      acct.AutoTrade,
		Positions:      views,
		At:             time.Now(),
	}
	if acct.InitialBalance > 0 {
		p.TotalProfitPct = profit.Div(decimal.NewFromFloat(acct.InitialBalance)).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return p, nil
}

// RecordEquitySnapshot appends the current equity of one account to the
// snapshot log and returns the recorded point.
func (s *Service) RecordEquitySnapshot(ctx context.Context, accountID int64) (store.EquityPoint, error) {
	portfolio, err := s.GetUserPortfolio(ctx, accountID)
	if err != nil {
		return store.EquityPoint{}, err
	}
	point := store.EquityPoint{
		AccountID: accountID,
		Cash:      portfolio.Cash,
		Equity:    portfolio.Equity,
		At:        portfolio.At,
	}
	if err := s.equity.AppendSnapshot(ctx, point); err != nil {
		return store.EquityPoint{}, err
	}
	return point, nil
}

// GetTradeHistory returns the account's trades, newest first.
func (s *Service) GetTradeHistory(ctx context.Context, accountID int64, limit int) ([]store.Trade, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListTrades(ctx, accountID, limit)
}

// GetEquityHistory returns the account's equity snapshots, oldest first.
func (s *Service) GetEquityHistory(ctx context.Context, accountID int64, limit int) ([]store.EquityPoint, error) {
	if _, err := s.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	return s.equity.ListSnapshots(ctx, accountID, limit)
}

func (s *Service) fetchQuote(ctx context.Context, symbol string) (market.Quote, error) {
	qctx, cancel := context.WithTimeout(ctx, s.quoteTimeout)
	defer cancel()
	return s.source.GetQuote(qctx, symbol)
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "record not found")
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY")
}
