package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stockpilot/internal/broker"
	"stockpilot/internal/market"
	"stockpilot/internal/store"
)

// ---------------------------- fakes --------------------------------------

type memStore struct {
	mu         sync.Mutex
	accounts   map[int64]store.Account
	positions  map[string]store.Position
	trades     []store.Trade
	strategies map[int64]store.Strategy
	nextID     int64
}

func newMemStore() *memStore {
	return &memStore{
		accounts:   make(map[int64]store.Account),
		positions:  make(map[string]store.Position),
		strategies: make(map[int64]store.Strategy),
	}
}

func posKey(accountID int64, symbol string) string {
	return fmt.Sprintf("%d|%s", accountID, symbol)
}

func (m *memStore) CreateAccount(_ context.Context, a store.Account) (store.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	m.accounts[a.ID] = a
	return a, nil
}

func (m *memStore) GetAccount(_ context.Context, id int64) (store.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	return a, ok, nil
}

func (m *memStore) ListAccounts(_ context.Context) ([]store.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Account
	for _, a := range m.accounts {
		out = append(out, a)
	}
	return out, nil
}

func (m *memStore) SaveAccount(_ context.Context, a store.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.accounts[a.ID]
	if !ok {
		return errors.New("record not found")
	}
	cur.CashBalance = a.CashBalance
	cur.AutoTrade = a.AutoTrade
	m.accounts[a.ID] = cur
	return nil
}

func (m *memStore) SetAutoTrade(_ context.Context, id int64, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return errors.New("record not found")
	}
	a.AutoTrade = enabled
	m.accounts[id] = a
	return nil
}

func (m *memStore) GetPosition(_ context.Context, accountID int64, symbol string) (store.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[posKey(accountID, symbol)]
	return p, ok, nil
}

func (m *memStore) ListPositions(_ context.Context, accountID int64) ([]store.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Position
	for _, p := range m.positions {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) UpsertPosition(_ context.Context, p store.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[posKey(p.AccountID, p.Symbol)] = p
	return nil
}

func (m *memStore) DeletePosition(_ context.Context, accountID int64, symbol string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.positions, posKey(accountID, symbol))
	return nil
}

func (m *memStore) AppendTrade(_ context.Context, t store.Trade) (store.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	t.ID = m.nextID
	m.trades = append(m.trades, t)
	return t, nil
}

func (m *memStore) ListTrades(_ context.Context, accountID int64, limit int) ([]store.Trade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Trade
	for i := len(m.trades) - 1; i >= 0; i-- {
		if m.trades[i].AccountID == accountID {
			out = append(out, m.trades[i])
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) CreateStrategy(_ context.Context, s store.Strategy) (store.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	m.strategies[s.ID] = s
	return s, nil
}

func (m *memStore) GetStrategy(_ context.Context, id int64) (store.Strategy, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.strategies[id]
	return s, ok, nil
}

func (m *memStore) UpdateStrategy(_ context.Context, s store.Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.strategies[s.ID]; !ok {
		return errors.New("record not found")
	}
	m.strategies[s.ID] = s
	return nil
}

func (m *memStore) DeleteStrategy(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.strategies, id)
	return nil
}

func (m *memStore) ListStrategies(_ context.Context, accountID int64) ([]store.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Strategy
	for _, s := range m.strategies {
		if s.AccountID == accountID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) ListActiveStrategies(_ context.Context) ([]store.Strategy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Strategy
	for _, s := range m.strategies {
		if s.Active {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memStore) Transaction(_ context.Context, fn func(store.Store) error) error {
	return fn(m)
}

type memEquity struct {
	mu     sync.Mutex
	points []store.EquityPoint
}

func (m *memEquity) AppendSnapshot(_ context.Context, p store.EquityPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.points = append(m.points, p)
	return nil
}

func (m *memEquity) ListSnapshots(_ context.Context, accountID int64, _ int) ([]store.EquityPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.EquityPoint
	for _, p := range m.points {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	return out, nil
}

type fakeBroker struct {
	mu     sync.Mutex
	orders []broker.OrderRequest
	reject bool
}

func (b *fakeBroker) Name() string { return "fake" }

func (b *fakeBroker) GetBalance(context.Context) (broker.Balance, error) {
	return broker.Balance{Cash: 0, Currency: "USD"}, nil
}

func (b *fakeBroker) PlaceOrder(_ context.Context, req broker.OrderRequest) (broker.OrderResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.reject {
		return broker.OrderResult{}, fmt.Errorf("%w: margin call", broker.ErrRejected)
	}
	b.orders = append(b.orders, req)
	return broker.OrderResult{
		OrderID:    fmt.Sprintf("ord-%d", len(b.orders)),
		Status:     broker.StatusFilled,
		Symbol:     req.Symbol,
		Quantity:   req.Quantity,
		Price:      req.Price,
		ExecutedAt: time.Now(),
	}, nil
}

func (b *fakeBroker) GetOrderStatus(_ context.Context, orderID string) (broker.OrderResult, error) {
	return broker.OrderResult{OrderID: orderID, Status: broker.StatusFilled}, nil
}

func (b *fakeBroker) CancelOrder(_ context.Context, orderID string) (broker.OrderResult, error) {
	return broker.OrderResult{OrderID: orderID, Status: broker.StatusCancelled}, nil
}

type fakeSource struct {
	mu     sync.Mutex
	prices map[string]float64
	fail   bool
}

func (f *fakeSource) GetQuote(_ context.Context, symbol string) (market.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return market.Quote{}, errors.New("feed down")
	}
	price, ok := f.prices[symbol]
	if !ok {
		return market.Quote{}, fmt.Errorf("unknown symbol %s", symbol)
	}
	return market.Quote{Symbol: symbol, Price: price, UpdatedAt: time.Now()}, nil
}

func (f *fakeSource) GetCandles(context.Context, string, string, int) ([]market.Candle, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeSource) FindTicker(context.Context, string) (market.SymbolMatch, error) {
	return market.SymbolMatch{}, errors.New("not implemented")
}

func (f *fakeSource) setPrice(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = price
}

func newTestService(t *testing.T) (*Service, *memStore, *memEquity, *fakeBroker, *fakeSource) {
	t.Helper()
	st := newMemStore()
	eq := &memEquity{}
	br := &fakeBroker{}
	src := &fakeSource{prices: map[string]float64{}}
	svc := NewService(st, eq, br, src, WithQuoteTimeout(time.Second))
	return svc, st, eq, br, src
}

// ---------------------------- tests --------------------------------------

func TestBuyAveragesCost(t *testing.T) {
	svc, st, _, _, src := newTestService(t)
	ctx := context.Background()
	acct, err := svc.OpenAccount(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, float64(DefaultInitialBalance), acct.CashBalance)

	src.setPrice("AAPL", 150)
	_, err = svc.ExecuteTrade(ctx, acct.ID, "AAPL", broker.SideBuy, 10)
	require.NoError(t, err)

	src.setPrice("AAPL", 160)
	_, err = svc.ExecuteTrade(ctx, acct.ID, "AAPL", broker.SideBuy, 5)
	require.NoError(t, err)

	pos, ok, err := st.GetPosition(ctx, acct.ID, "AAPL")
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 15, pos.Quantity, 1e-9)
	assert.InDelta(t, 153.3333333, pos.AvgCost, 1e-6)

	got, err := svc.GetAccount(ctx, acct.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100000-1500-800, got.CashBalance, 1e-9)
}

func TestSellFullPositionDeletesRow(t *testing.T) {
	svc, st, _, _, src := newTestService(t)
	ctx := context.Background()
	acct, _ := svc.OpenAccount(ctx, "bob", 0)

	src.setPrice("MSFT", 100)
	_, err := svc.ExecuteTrade(ctx, acct.ID, "MSFT", broker.SideBuy, 4)
	require.NoError(t, err)

	src.setPrice("MSFT", 110)
	res, err := svc.ExecuteTrade(ctx, acct.ID, "MSFT", broker.SideSell, 4)
	require.NoError(t, err)
	assert.InDelta(t, 440, res.TotalAmount, 1e-9)

	_, ok, err := st.GetPosition(ctx, acct.ID, "MSFT")
	require.NoError(t, err)
	assert.False(t, ok, "fully sold position should be deleted")
}

func TestSellPartialKeepsAvgCost(t *testing.T) {
	svc, st, _, _, src := newTestService(t)
	ctx := context.Background()
	acct, _ := svc.OpenAccount(ctx, "carol", 0)

	src.setPrice("NVDA", 200)
	_, err := svc.ExecuteTrade(ctx, acct.ID, "NVDA", broker.SideBuy, 10)
	require.NoError(t, err)

	src.setPrice("NVDA", 250)
	_, err = svc.ExecuteTrade(ctx, acct.ID, "NVDA", broker.SideSell, 4)
	require.NoError(t, err)

	pos, ok, _ := st.GetPosition(ctx, acct.ID, "NVDA")
	require.True(t, ok)
	assert.InDelta(t, 6, pos.Quantity, 1e-9)
	assert.InDelta(t, 200, pos.AvgCost, 1e-9)
}

func TestInsufficientFundsMutatesNothing(t *testing.T) {
	svc, st, _, br, src := newTestService(t)
	ctx := context.Background()
	acct, _ := svc.OpenAccount(ctx, "dave", 100)

	src.setPrice("AMZN", 150)
	_, err := svc.ExecuteTrade(ctx, acct.ID, "AMZN", broker.SideBuy, 1)
	require.ErrorIs(t, err, ErrInsufficientFunds)

	assert.Empty(t, br.orders, "no order should reach the broker")
	got, _ := svc.GetAccount(ctx, acct.ID)
	assert.Equal(t, 100.0, got.CashBalance)
	_, ok, _ := st.GetPosition(ctx, acct.ID, "AMZN")
	assert.False(t, ok)
	trades, _ := st.ListTrades(ctx, acct.ID, 10)
	assert.Empty(t, trades)
}

func TestInsufficientQuantityMutatesNothing(t *testing.T) {
	svc, st, _, br, src := newTestService(t)
	ctx := context.Background()
	acct, _ := svc.OpenAccount(ctx, "erin", 0)

	src.setPrice("TSLA", 300)
	_, err := svc.ExecuteTrade(ctx, acct.ID, "TSLA", broker.SideBuy, 2)
	require.NoError(t, err)

	_, err = svc.ExecuteTrade(ctx, acct.ID, "TSLA", broker.SideSell, 5)
	require.ErrorIs(t, err, ErrInsufficientQuantity)

	assert.Len(t, br.orders, 1, "only the buy should reach the broker")
	pos, ok, _ := st.GetPosition(ctx, acct.ID, "TSLA")
	require.True(t, ok)
	assert.InDelta(t, 2, pos.Quantity, 1e-9)
}

func TestQuoteUnavailableFailsTrade(t *testing.T) {
	svc, _, _, br, src := newTestService(t)
	ctx := context.Background()
	acct, _ := svc.OpenAccount(ctx, "frank", 0)

	src.fail = true
	_, err := svc.ExecuteTrade(ctx, acct.ID, "AAPL", broker.SideBuy, 1)
	require.ErrorIs(t, err, ErrQuoteUnavailable)
	assert.Empty(t, br.orders)
}

func TestBrokerRejectionMutatesNothing(t *testing.T) {
	svc, st, _, br, src := newTestService(t)
	ctx := context.Background()
	acct, _ := svc.OpenAccount(ctx, "grace", 0)

	src.setPrice("AAPL", 150)
	br.reject = true
	_, err := svc.ExecuteTrade(ctx, acct.ID, "AAPL", broker.SideBuy, 1)
	require.ErrorIs(t, err, broker.ErrRejected)

	got, _ := svc.GetAccount(ctx, acct.ID)
	assert.Equal(t, float64(DefaultInitialBalance), got.CashBalance)
	trades, _ := st.ListTrades(ctx, acct.ID, 10)
	assert.Empty(t, trades)
}

func TestInvalidOrderRejected(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	ctx := context.Background()
	acct, _ := svc.OpenAccount(ctx, "heidi", 0)

	_, err := svc.ExecuteTrade(ctx, acct.ID, "", broker.SideBuy, 1)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = svc.ExecuteTrade(ctx, acct.ID, "AAPL", broker.SideBuy, 0)
	assert.ErrorIs(t, err, ErrInvalidOrder)

	_, err = svc.ExecuteTrade(ctx, acct.ID, "AAPL", broker.Side("SHORT"), 1)
	assert.ErrorIs(t, err, ErrInvalidOrder)
}

func TestFullTradeCycle(t *testing.T) {
	svc, st, _, _, src := newTestService(t)
	ctx := context.Background()
	acct, _ := svc.OpenAccount(ctx, "ivan", 0)

	src.setPrice("AAPL", 150)
	_, err := svc.ExecuteTrade(ctx, acct.ID, "AAPL", broker.SideBuy, 10)
	require.NoError(t, err)

	src.setPrice("AAPL", 160)
	_, err = svc.ExecuteTrade(ctx, acct.ID, "AAPL", broker.SideBuy, 5)
	require.NoError(t, err)

	src.setPrice("AAPL", 170)
	res, err := svc.ExecuteTrade(ctx, acct.ID, "AAPL", broker.SideSell, 15)
	require.NoError(t, err)

	// 100000 - 1500 - 800 + 2550
	assert.InDelta(t, 100250, res.CashAfter, 1e-9)

	_, ok, _ := st.GetPosition(ctx, acct.ID, "AAPL")
	assert.False(t, ok)

	trades, err := svc.GetTradeHistory(ctx, acct.ID, 10)
	require.NoError(t, err)
	require.Len(t, trades, 3)
	assert.Equal(t, "SELL", trades[0].Side, "history is newest first")
}

func TestPortfolioValuationAndDegradation(t *testing.T) {
	svc, _, _, _, src := newTestService(t)
	ctx := context.Background()
	acct, _ := svc.OpenAccount(ctx, "judy", 0)

	src.setPrice("AAPL", 100)
	_, err := svc.ExecuteTrade(ctx, acct.ID, "AAPL", broker.SideBuy, 10)
	require.NoError(t, err)

	src.setPrice("AAPL", 120)
	p, err := svc.GetUserPortfolio(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, p.Positions, 1)
	assert.InDelta(t, 1200, p.Positions[0].MarketValue, 1e-9)
	assert.InDelta(t, 200, p.Positions[0].UnrealizedPnL, 1e-9)
	assert.InDelta(t, 100000-1000+1200, p.Equity, 1e-9)
	assert.InDelta(t, 200, p.TotalProfit, 1e-9)
	assert.False(t, p.Positions[0].Stale)

	// Feed down: value at average cost instead of failing.
	src.fail = true
	p, err = svc.GetUserPortfolio(ctx, acct.ID)
	require.NoError(t, err)
	require.Len(t, p.Positions, 1)
	assert.True(t, p.Positions[0].Stale)
	assert.InDelta(t, 1000, p.Positions[0].MarketValue, 1e-9)
	assert.InDelta(t, 0, p.Positions[0].UnrealizedPnL, 1e-9)
}

func TestRecordEquitySnapshot(t *testing.T) {
	svc, _, eq, _, src := newTestService(t)
	ctx := context.Background()
	acct, _ := svc.OpenAccount(ctx, "kate", 0)

	src.setPrice("AAPL", 100)
	_, err := svc.ExecuteTrade(ctx, acct.ID, "AAPL", broker.SideBuy, 10)
	require.NoError(t, err)

	point, err := svc.RecordEquitySnapshot(ctx, acct.ID)
	require.NoError(t, err)
	assert.InDelta(t, 100000, point.Equity, 1e-9)

	points, err := svc.GetEquityHistory(ctx, acct.ID, 10)
	require.NoError(t, err)
	require.Len(t, points, 1)
	require.Len(t, eq.points, 1)
}

func TestConcurrentBuysNeverOverspend(t *testing.T) {
	svc, _, _, _, src := newTestService(t)
	ctx := context.Background()
	acct, _ := svc.OpenAccount(ctx, "leo", 1000)

	src.setPrice("AAPL", 300)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ExecuteTrade(ctx, acct.ID, "AAPL", broker.SideBuy, 1)
		}(i)
	}
	wg.Wait()

	var filled int
	for _, err := range errs {
		if err == nil {
			filled++
		} else {
			require.ErrorIs(t, err, ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 3, filled, "only three 300-unit buys fit into 1000 cash")

	got, _ := svc.GetAccount(ctx, acct.ID)
	assert.GreaterOrEqual(t, got.CashBalance, 0.0)
	assert.InDelta(t, 100, got.CashBalance, 1e-9)
}
