package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"market_watch/internal/config"
)

// Open returns the ledger selected by the storage configuration.
func Open(ctx context.Context, cfg config.Storage) (Ledger, error) {
	switch cfg.Backend {
	case config.BackendSQLite, "":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("create data directory: %w", err)
			}
		}
		return NewSQLite(cfg.SQLitePath)
	case config.BackendRedis:
		return DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword)
	case config.BackendPostgres:
		return NewPostgres(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
