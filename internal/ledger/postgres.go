package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS posted_items (
	query_name TEXT   NOT NULL,
	item_id    TEXT   NOT NULL,
	posted_at  BIGINT NOT NULL,
	PRIMARY KEY (query_name, item_id)
)`

// Postgres implements Ledger backed by a PostgreSQL table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to the database and creates the table if needed.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// Ping implements Ledger.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

// WasPosted checks whether an item has already been posted for a query.
func (p *Postgres) WasPosted(ctx context.Context, query, itemID string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM posted_items WHERE query_name = $1 AND item_id = $2)`,
		query, itemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check posted: %w", err)
	}
	return exists, nil
}

// MarkPosted records the pair unless it already exists.
func (p *Postgres) MarkPosted(ctx context.Context, query, itemID string, at time.Time) (bool, error) {
	tag, err := p.pool.Exec(ctx,
		`INSERT INTO posted_items (query_name, item_id, posted_at) VALUES ($1, $2, $3)
		 ON CONFLICT (query_name, item_id) DO NOTHING`,
		query, itemID, at.Unix(),
	)
	if err != nil {
		return false, fmt.Errorf("mark posted: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
