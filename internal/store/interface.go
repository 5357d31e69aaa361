// Package store defines the persistence records and interfaces for accounts,
// positions, trades, strategies and equity snapshots. The ledger is the only
// component that mutates account state through these interfaces.
package store

import (
	"context"
	"time"
)

// Account is a user's cash ledger row. InitialBalance is the funding baseline
// total profit is measured against. AutoTrade is the master switch gating all
// automated trading for the account.
type Account struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	CashBalance    float64   `json:"cash_balance"`
	InitialBalance float64   `json:"initial_balance"`
	AutoTrade      bool      `json:"auto_trade"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Position is a held quantity of a symbol with its weighted-average cost.
// Quantity is always > 0; a position that reaches zero is deleted, never
// stored with quantity 0.
type Position struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Symbol    string    `json:"symbol"`
	Quantity  float64   `json:"quantity"`
	AvgCost   float64   `json:"avg_cost"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Trade is one append-only executed trade record. Never mutated after
// creation; positions could be rebuilt from the full sequence.
type Trade struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	Symbol      string    `json:"symbol"`
	Side        string    `json:"side"`
	Quantity    float64   `json:"quantity"`
	Price       float64   `json:"price"`
	TotalAmount float64   `json:"total_amount"`
	OrderID     string    `json:"order_id"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// Strategy is a persisted trading rule. Params is an opaque numeric map
// interpreted by the evaluator for the given Type.
type Strategy struct {
	ID        int64              `json:"id"`
	AccountID int64              `json:"account_id"`
	Name      string             `json:"name"`
	Symbol    string             `json:"symbol"`
	Type      string             `json:"type"`
	Params    map[string]float64 `json:"params"`
	Active    bool               `json:"active"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// EquityPoint is one append-only equity snapshot.
type EquityPoint struct {
	ID        int64     `json:"id"`
	AccountID int64     `json:"account_id"`
	Cash      float64   `json:"cash"`
	Equity    float64   `json:"equity"`
	At        time.Time `json:"at"`
}

// Store is the transactional persistence surface for the mutable tables.
type Store interface {
	CreateAccount(ctx context.Context, a Account) (Account, error)
	GetAccount(ctx context.Context, id int64) (Account, bool, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	SaveAccount(ctx context.Context, a Account) error
	SetAutoTrade(ctx context.Context, id int64, enabled bool) error

	GetPosition(ctx context.Context, accountID int64, symbol string) (Position, bool, error)
	ListPositions(ctx context.Context, accountID int64) ([]Position, error)
	UpsertPosition(ctx context.Context, p Position) error
	DeletePosition(ctx context.Context, accountID int64, symbol string) error

	AppendTrade(ctx context.Context, t Trade) (Trade, error)
	ListTrades(ctx context.Context, accountID int64, limit int) ([]Trade, error)

	CreateStrategy(ctx context.Context, s Strategy) (Strategy, error)
	GetStrategy(ctx context.Context, id int64) (Strategy, bool, error)
	UpdateStrategy(ctx context.Context, s Strategy) error
	DeleteStrategy(ctx context.Context, id int64) error
	ListStrategies(ctx context.Context, accountID int64) ([]Strategy, error)
	ListActiveStrategies(ctx context.Context) ([]Strategy, error)

	// Transaction runs fn against a store view bound to one database
	// transaction; either every write in fn lands or none do.
	Transaction(ctx context.Context, fn func(Store) error) error
}

// EquityStore is the append-only snapshot log, kept separate from the
// mutable tables.
type EquityStore interface {
	AppendSnapshot(ctx context.Context, p EquityPoint) error
	ListSnapshots(ctx context.Context, accountID int64, limit int) ([]EquityPoint, error)
}
