// Package gormstore implements store.Store on Gorm + SQLite.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"stockpilot/internal/store"
	storemodel "stockpilot/internal/store/model"
)

type GormStore struct {
	db *gorm.DB
}

var _ store.Store = (*GormStore)(nil)

// NewGormStore opens (or creates) the SQLite database at path and migrates
// the mutable tables.
func NewGormStore(path string) (*GormStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&storemodel.AccountModel{},
		&storemodel.PositionModel{},
		&storemodel.TradeModel{},
		&storemodel.StrategyModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: allow a little read parallelism while keeping write lock
	// contention low.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &GormStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *GormStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Transaction runs fn against a store view bound to one gorm transaction.
func (s *GormStore) Transaction(ctx context.Context, fn func(store.Store) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("gorm store not initialized")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

// --------------------------- Accounts ------------------------------------

func (s *GormStore) CreateAccount(ctx context.Context, a store.Account) (store.Account, error) {
	now := time.Now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	if a.InitialBalance == 0 {
		a.InitialBalance = a.CashBalance
	}
	m := newAccountModel(a)
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return store.Account{}, err
	}
	a.ID = m.ID
	return a, nil
}

func (s *GormStore) GetAccount(ctx context.Context, id int64) (store.Account, bool, error) {
	var m storemodel.AccountModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.Account{}, false, nil
		}
		return store.Account{}, false, err
	}
	return accountModelToRecord(m), true, nil
}

func (s *GormStore) ListAccounts(ctx context.Context) ([]store.Account, error) {
	var models []storemodel.AccountModel
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.Account, 0, len(models))
	for _, m := range models {
		out = append(out, accountModelToRecord(m))
	}
	return out, nil
}

func (s *GormStore) SaveAccount(ctx context.Context, a store.Account) error {
	if a.ID <= 0 {
		return fmt.Errorf("account id required")
	}
	res := s.db.WithContext(ctx).Model(&storemodel.AccountModel{}).
		Where("id = ?", a.ID).
		Updates(map[string]interface{}{
			"cash_balance": a.CashBalance,
			"auto_trade":   a.AutoTrade,
			"updated_at":   time.Now().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) SetAutoTrade(ctx context.Context, id int64, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&storemodel.AccountModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"auto_trade": enabled,
			"updated_at": time.Now().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// --------------------------- Positions -----------------------------------

func (s *GormStore) GetPosition(ctx context.Context, accountID int64, symbol string) (store.Position, bool, error) {
	var m storemodel.PositionModel
	err := s.db.WithContext(ctx).
		Where("account_id = ? AND symbol = ?", accountID, normalizeSymbol(symbol)).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.Position{}, false, nil
		}
		return store.Position{}, false, err
	}
	return positionModelToRecord(m), true, nil
}

func (s *GormStore) ListPositions(ctx context.Context, accountID int64) ([]store.Position, error) {
	var models []storemodel.PositionModel
	if err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("symbol ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.Position, 0, len(models))
	for _, m := range models {
		out = append(out, positionModelToRecord(m))
	}
	return out, nil
}

func (s *GormStore) UpsertPosition(ctx context.Context, p store.Position) error {
	if p.AccountID <= 0 || strings.TrimSpace(p.Symbol) == "" {
		return fmt.Errorf("position requires account_id and symbol")
	}
	m := storemodel.PositionModel{
		AccountID:     p.AccountID,
		Symbol:        normalizeSymbol(p.Symbol),
		Quantity:      p.Quantity,
		AvgCost:       p.AvgCost,
		UpdatedAtUnix: time.Now().Unix(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "account_id"}, {Name: "symbol"}},
			DoUpdates: clause.AssignmentColumns([]string{"quantity", "avg_cost", "updated_at"}),
		}).
		Create(&m).Error
}

func (s *GormStore) DeletePosition(ctx context.Context, accountID int64, symbol string) error {
	return s.db.WithContext(ctx).
		Where("account_id = ? AND symbol = ?", accountID, normalizeSymbol(symbol)).
		Delete(&storemodel.PositionModel{}).Error
}

// --------------------------- Trades --------------------------------------

func (s *GormStore) AppendTrade(ctx context.Context, t store.Trade) (store.Trade, error) {
	if t.ExecutedAt.IsZero() {
		t.ExecutedAt = time.Now()
	}
	m := storemodel.TradeModel{
		AccountID:      t.AccountID,
		Symbol:         normalizeSymbol(t.Symbol),
		Side:           strings.ToUpper(strings.TrimSpace(t.Side)),
		Quantity:       t.Quantity,
		Price:          t.Price,
		TotalAmount:    t.TotalAmount,
		OrderID:        t.OrderID,
		ExecutedAtUnix: t.ExecutedAt.Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return store.Trade{}, err
	}
	t.ID = m.ID
	return t, nil
}

func (s *GormStore) ListTrades(ctx context.Context, accountID int64, limit int) ([]store.Trade, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var models []storemodel.TradeModel
	if err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("executed_at DESC, id DESC").
		Limit(limit).
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.Trade, 0, len(models))
	for _, m := range models {
		out = append(out, tradeModelToRecord(m))
	}
	return out, nil
}

// --------------------------- Strategies ----------------------------------

func (s *GormStore) CreateStrategy(ctx context.Context, rec store.Strategy) (store.Strategy, error) {
	now := time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m := storemodel.StrategyModel{
		AccountID:     rec.AccountID,
		Name:          strings.TrimSpace(rec.Name),
		Symbol:        normalizeSymbol(rec.Symbol),
		Type:          strings.TrimSpace(rec.Type),
		ParamsJSON:    paramsToJSON(rec.Params),
		Active:        rec.Active,
		CreatedAtUnix: rec.CreatedAt.Unix(),
		UpdatedAtUnix: rec.UpdatedAt.Unix(),
	}
	if err := s.db.WithContext(ctx).Create(&m).Error; err != nil {
		return store.Strategy{}, err
	}
	rec.ID = m.ID
	return rec, nil
}

func (s *GormStore) GetStrategy(ctx context.Context, id int64) (store.Strategy, bool, error) {
	var m storemodel.StrategyModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return store.Strategy{}, false, nil
		}
		return store.Strategy{}, false, err
	}
	return strategyModelToRecord(m), true, nil
}

func (s *GormStore) UpdateStrategy(ctx context.Context, rec store.Strategy) error {
	if rec.ID <= 0 {
		return fmt.Errorf("strategy id required")
	}
	res := s.db.WithContext(ctx).Model(&storemodel.StrategyModel{}).
		Where("id = ?", rec.ID).
		Updates(map[string]interface{}{
			"name":        strings.TrimSpace(rec.Name),
			"symbol":      normalizeSymbol(rec.Symbol),
			"type":        strings.TrimSpace(rec.Type),
			"params_json": paramsToJSON(rec.Params),
			"active":      rec.Active,
			"updated_at":  time.Now().Unix(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (s *GormStore) DeleteStrategy(ctx context.Context, id int64) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&storemodel.StrategyModel{}).Error
}

func (s *GormStore) ListStrategies(ctx context.Context, accountID int64) ([]store.Strategy, error) {
	var models []storemodel.StrategyModel
	if err := s.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.Strategy, 0, len(models))
	for _, m := range models {
		out = append(out, strategyModelToRecord(m))
	}
	return out, nil
}

func (s *GormStore) ListActiveStrategies(ctx context.Context) ([]store.Strategy, error) {
	var models []storemodel.StrategyModel
	if err := s.db.WithContext(ctx).
		Where("active = ?", true).
		Order("id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	out := make([]store.Strategy, 0, len(models))
	for _, m := range models {
		out = append(out, strategyModelToRecord(m))
	}
	return out, nil
}

// --------------------------- Model Helpers -------------------------------

func newAccountModel(a store.Account) storemodel.AccountModel {
	return storemodel.AccountModel{
		ID:             a.ID,
		Username:       strings.TrimSpace(a.Username),
		CashBalance:    a.CashBalance,
		InitialBalance: a.InitialBalance,
		AutoTrade:      a.AutoTrade,
		CreatedAtUnix:  a.CreatedAt.Unix(),
		UpdatedAtUnix:  a.UpdatedAt.Unix(),
	}
}

func accountModelToRecord(m storemodel.AccountModel) store.Account {
	return store.Account{
		ID:             m.ID,
		Username:       m.Username,
		CashBalance:    m.CashBalance,
		InitialBalance: m.InitialBalance,
		AutoTrade:      m.AutoTrade,
		CreatedAt:      time.Unix(m.CreatedAtUnix, 0),
		UpdatedAt:      time.Unix(m.UpdatedAtUnix, 0),
	}
}

func positionModelToRecord(m storemodel.PositionModel) store.Position {
	return store.Position{
		ID:        m.ID,
		AccountID: m.AccountID,
		Symbol:    m.Symbol,
		Quantity:  m.Quantity,
		AvgCost:   m.AvgCost,
		UpdatedAt: time.Unix(m.UpdatedAtUnix, 0),
	}
}

func tradeModelToRecord(m storemodel.TradeModel) store.Trade {
	return store.Trade{
		ID:          m.ID,
		AccountID:   m.AccountID,
		Symbol:      m.Symbol,
		Side:        m.Side,
		Quantity:    m.Quantity,
		Price:       m.Price,
		TotalAmount: m.TotalAmount,
		OrderID:     m.OrderID,
		ExecutedAt:  time.Unix(m.ExecutedAtUnix, 0),
	}
}

func strategyModelToRecord(m storemodel.StrategyModel) store.Strategy {
	var params map[string]float64
	if len(m.ParamsJSON) > 0 {
		_ = json.Unmarshal(m.ParamsJSON, &params)
	}
	if params == nil {
		params = map[string]float64{}
	}
	return store.Strategy{
		ID:        m.ID,
		AccountID: m.AccountID,
		Name:      m.Name,
		Symbol:    m.Symbol,
		Type:      m.Type,
		Params:    params,
		Active:    m.Active,
		CreatedAt: time.Unix(m.CreatedAtUnix, 0),
		UpdatedAt: time.Unix(m.UpdatedAtUnix, 0),
	}
}

func paramsToJSON(params map[string]float64) datatypes.JSON {
	if len(params) == 0 {
		return datatypes.JSON([]byte("{}"))
	}
	data, err := json.Marshal(params)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(data)
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
