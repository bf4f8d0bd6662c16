package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"market_watch/internal/model"
	"market_watch/migrations"
)

// SQLite implements Ledger backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases
	// shared between callers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Ping implements Ledger.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// WasPosted checks whether an item has already been posted for a query.
func (s *SQLite) WasPosted(ctx context.Context, query, itemID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posted_items WHERE query_name = ? AND item_id = ?`,
		query, itemID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check posted: %w", err)
	}
	return count > 0, nil
}

// MarkPosted records that an item has been posted for a query.
func (s *SQLite) MarkPosted(ctx context.Context, query, itemID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO posted_items (query_name, item_id, posted_at) VALUES (?, ?, ?)`,
		query, itemID, at.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("mark posted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// ListPosted returns the records of a query ordered by posting time.
func (s *SQLite) ListPosted(ctx context.Context, query string) ([]model.PostedRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query_name, item_id, posted_at FROM posted_items
		 WHERE query_name = ? ORDER BY posted_at, item_id`, query,
	)
	if err != nil {
		return nil, fmt.Errorf("query posted: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []model.PostedRecord
	for rows.Next() {
		var r model.PostedRecord
		var postedAt int64
		if err := rows.Scan(&r.Query, &r.ItemID, &postedAt); err != nil {
			return nil, fmt.Errorf("scan posted: %w", err)
		}
		r.PostedAt = time.Unix(postedAt, 0).UTC()
		records = append(records, r)
	}
	return records, rows.Err()
}
