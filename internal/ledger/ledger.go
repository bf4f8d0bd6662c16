// Package ledger records which listings have already been notified per query.
package ledger

import (
	"context"
	"time"
)

// Ledger is the persistent set of (query, item) pairs already posted.
//
// Implementations enforce uniqueness in the backing store, so concurrent
// MarkPosted calls for the same pair collapse to a single record.
type Ledger interface {
	// WasPosted reports whether the pair has a record.
	WasPosted(ctx context.Context, query, itemID string) (bool, error)

	// MarkPosted records the pair. It returns false without error when the
	// pair was already present.
	MarkPosted(ctx context.Context, query, itemID string, at time.Time) (bool, error)

	// Ping checks that the backing store is reachable.
	Ping(ctx context.Context) error

	Close() error
}
