package storage

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"
)

// DB is the SQLite history of observed items and detected changes. It
// complements the JSON seen sets, which remain the source of truth for
// classification.
type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS registry_items (
  number        TEXT PRIMARY KEY,
  operator      TEXT NOT NULL,
  trade_name    TEXT,
  period        TEXT,
  status        TEXT,
  first_seen_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  last_seen_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_items_operator ON registry_items(operator);
CREATE TABLE IF NOT EXISTS registry_changes (
  id          INTEGER PRIMARY KEY,
  occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  operator    TEXT NOT NULL,
  number      TEXT NOT NULL,
  trade_name  TEXT,
  period      TEXT,
  change_type TEXT NOT NULL CHECK (change_type IN ('new-operator','new-item-existing-operator'))
);
CREATE INDEX IF NOT EXISTS idx_changes_time ON registry_changes(occurred_at);
CREATE INDEX IF NOT EXISTS idx_changes_operator ON registry_changes(operator, occurred_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// UpsertItems records the items seen in a run, keeping first_seen_at of
// known items and refreshing everything else.
func (d *DB) UpsertItems(ctx context.Context, items []Item) (err error) {
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO registry_items(number, operator, trade_name, period, status, first_seen_at, last_seen_at)
VALUES(?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
ON CONFLICT(number) DO UPDATE SET
  operator = excluded.operator,
  trade_name = excluded.trade_name,
  period = excluded.period,
  status = excluded.status,
  last_seen_at = CURRENT_TIMESTAMP`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, it := range items {
		if it.Number == "" {
			continue
		}
		if _, err = stmt.ExecContext(ctx, it.Number, it.Operator, nullIfEmpty(it.TradeName), nullIfEmpty(it.Period), nullIfEmpty(it.Status)); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LogChanges appends detected changes to the history.
func (d *DB) LogChanges(ctx context.Context, changes []Change) (err error) {
	if len(changes) == 0 {
		return nil
	}
	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, c := range changes {
		at := c.OccurredAt
		if at.IsZero() {
			at = time.Now()
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO registry_changes(occurred_at, operator, number, trade_name, period, change_type) VALUES(?,?,?,?,?,?)`,
			at.UTC().Format(time.RFC3339), c.Operator, c.Number, nullIfEmpty(c.TradeName), nullIfEmpty(c.Period), c.ChangeType)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListRecentChanges returns the most recent N changes, newest first.
func (d *DB) ListRecentChanges(ctx context.Context, limit int) ([]Change, error) {
	if limit <= 0 {
		limit = 50
	}
	q := "SELECT occurred_at, operator, number, trade_name, period, change_type FROM registry_changes ORDER BY occurred_at DESC, id DESC LIMIT ?"
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var c Change
		var occurredAtStr string
		var trade, period sql.NullString
		if err := rows.Scan(&occurredAtStr, &c.Operator, &c.Number, &trade, &period, &c.ChangeType); err != nil {
			return nil, err
		}
		c.OccurredAt = parseTimestamp(occurredAtStr)
		c.TradeName = trade.String
		c.Period = period.String
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return changes, nil
}

// GetStats counts operators and items observed and changes recorded.
func (d *DB) GetStats(ctx context.Context) (Stats, error) {
	var s Stats
	var last sql.NullString
	err := d.sql.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(DISTINCT operator) FROM registry_items),
			(SELECT COUNT(*) FROM registry_items),
			(SELECT COUNT(*) FROM registry_changes),
			(SELECT MAX(last_seen_at) FROM registry_items)
	`).Scan(&s.Operators, &s.Items, &s.Changes, &last)
	if err != nil {
		return s, err
	}
	if last.Valid {
		s.LastRun = parseTimestamp(last.String)
	}
	return s, nil
}

// parseTimestamp accepts SQLite's CURRENT_TIMESTAMP format and RFC3339.
func parseTimestamp(v string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", v); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
