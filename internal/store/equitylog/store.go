// Package equitylog persists append-only equity snapshots in its own SQLite
// database, kept separate from the mutable tables so snapshot volume never
// contends with trading writes.
package equitylog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"stockpilot/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS equity_snapshots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    account_id  INTEGER NOT NULL,
    cash        REAL    NOT NULL,
    equity      REAL    NOT NULL,
    at          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_equity_account_at ON equity_snapshots (account_id, at);
`

type Store struct {
	db *sql.DB
}

var _ store.EquityStore = (*Store)(nil)

// New opens (or creates) the snapshot database at path.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("equity log: database path cannot be empty")
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("equity log: migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) AppendSnapshot(ctx context.Context, p store.EquityPoint) error {
	if p.AccountID <= 0 {
		return fmt.Errorf("equity log: account id required")
	}
	at := p.At
	if at.IsZero() {
		at = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO equity_snapshots (account_id, cash, equity, at) VALUES (?, ?, ?, ?)`,
		p.AccountID, p.Cash, p.Equity, at.Unix())
	return err
}

// ListSnapshots returns the most recent snapshots for an account in
// chronological order (oldest first).
func (s *Store) ListSnapshots(ctx context.Context, accountID int64, limit int) ([]store.EquityPoint, error) {
	if limit <= 0 || limit > 5000 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, cash, equity, at
		   FROM equity_snapshots
		  WHERE account_id = ?
		  ORDER BY at DESC, id DESC
		  LIMIT ?`,
		accountID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var points []store.EquityPoint
	for rows.Next() {
		var p store.EquityPoint
		var at int64
		if err := rows.Scan(&p.ID, &p.AccountID, &p.Cash, &p.Equity, &at); err != nil {
			return nil, err
		}
		p.At = time.Unix(at, 0)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Flip the DESC page back into chronological order.
	for i, j := 0, len(points)-1; i < j; i, j = i+1, j-1 {
		points[i], points[j] = points[j], points[i]
	}
	return points, nil
}
