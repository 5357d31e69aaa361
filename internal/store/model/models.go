package model

import (
	"gorm.io/datatypes"
)

type AccountModel struct {
	ID             int64   `gorm:"column:id;primaryKey"`
	Username       string  `gorm:"column:username;uniqueIndex"`
	CashBalance    float64 `gorm:"column:cash_balance"`
	InitialBalance float64 `gorm:"column:initial_balance"`
	AutoTrade      bool    `gorm:"column:auto_trade"`
	CreatedAtUnix  int64   `gorm:"column:created_at"`
	UpdatedAtUnix  int64   `gorm:"column:updated_at"`
}

func (AccountModel) TableName() string { return "accounts" }

type PositionModel struct {
	ID            int64   `gorm:"column:id;primaryKey"`
	AccountID     int64   `gorm:"column:account_id;uniqueIndex:idx_account_symbol,priority:1"`
	Symbol        string  `gorm:"column:symbol;uniqueIndex:idx_account_symbol,priority:2"`
	Quantity      float64 `gorm:"column:quantity"`
	AvgCost       float64 `gorm:"column:avg_cost"`
	UpdatedAtUnix int64   `gorm:"column:updated_at"`
}

func (PositionModel) TableName() string { return "positions" }

type TradeModel struct {
	ID             int64   `gorm:"column:id;primaryKey"`
	AccountID      int64   `gorm:"column:account_id;index"`
	Symbol         string  `gorm:"column:symbol;index"`
	Side           string  `gorm:"column:side"`
	Quantity       float64 `gorm:"column:quantity"`
	Price          float64 `gorm:"column:price"`
	TotalAmount    float64 `gorm:"column:total_amount"`
	OrderID        string  `gorm:"column:order_id"`
	ExecutedAtUnix int64   `gorm:"column:executed_at;index"`
}

func (TradeModel) TableName() string { return "trades" }

type StrategyModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	AccountID     int64          `gorm:"column:account_id;index"`
	Name          string         `gorm:"column:name"`
	Symbol        string         `gorm:"column:symbol"`
	Type          string         `gorm:"column:type"`
	ParamsJSON    datatypes.JSON `gorm:"column:params_json;type:TEXT"`
	Active        bool           `gorm:"column:active;index"`
	CreatedAtUnix int64          `gorm:"column:created_at"`
	UpdatedAtUnix int64          `gorm:"column:updated_at"`
}

func (StrategyModel) TableName() string { return "strategies" }
