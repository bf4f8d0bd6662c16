package ledger

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"

	"market_watch/internal/model"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func backends(t *testing.T) map[string]Ledger {
	t.Helper()
	ls := map[string]Ledger{
		"sqlite": newTestSQLite(t),
		"redis":  newTestRedis(t),
	}
	if dsn := os.Getenv("LEDGER_POSTGRES_DSN"); dsn != "" {
		p, err := NewPostgres(context.Background(), dsn)
		if err != nil {
			t.Fatalf("new postgres: %v", err)
		}
		if _, err := p.pool.Exec(context.Background(), `TRUNCATE posted_items`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		t.Cleanup(func() { _ = p.Close() })
		ls["postgres"] = p
	}
	return ls
}

func TestMarkPostedIdempotent(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			posted, err := l.WasPosted(ctx, "lego", "v1|123|0")
			if err != nil {
				t.Fatalf("was posted: %v", err)
			}
			if posted {
				t.Fatal("expected fresh pair to be unposted")
			}

			var inserted []bool
			for range 3 {
				ok, err := l.MarkPosted(ctx, "lego", "v1|123|0", at)
				if err != nil {
					t.Fatalf("mark posted: %v", err)
				}
				inserted = append(inserted, ok)
			}
			if diff := cmp.Diff([]bool{true, false, false}, inserted); diff != "" {
				t.Errorf("insert results mismatch (-want +got):\n%s", diff)
			}

			posted, err = l.WasPosted(ctx, "lego", "v1|123|0")
			if err != nil {
				t.Fatalf("was posted: %v", err)
			}
			if !posted {
				t.Error("expected pair to be posted after mark")
			}
		})
	}
}

func TestPairsAreScopedByQuery(t *testing.T) {
	ctx := context.Background()

	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := l.MarkPosted(ctx, "query-a", "item-1", time.Now()); err != nil {
				t.Fatalf("mark posted: %v", err)
			}

			tests := []struct {
				query, item string
				want        bool
			}{
				{"query-a", "item-1", true},
				{"query-b", "item-1", false},
				{"query-a", "item-2", false},
			}
			for _, tt := range tests {
				got, err := l.WasPosted(ctx, tt.query, tt.item)
				if err != nil {
					t.Fatalf("was posted: %v", err)
				}
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("WasPosted(%q, %q) mismatch (-want +got):\n%s", tt.query, tt.item, diff)
				}
			}
		})
	}
}

func TestConcurrentMarkPostedCollapses(t *testing.T) {
	ctx := context.Background()

	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			const workers = 16
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				inserted int
			)
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					ok, err := l.MarkPosted(ctx, "race", "item", time.Now())
					if err != nil {
						t.Errorf("mark posted: %v", err)
						return
					}
					if ok {
						mu.Lock()
						inserted++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()

			if diff := cmp.Diff(1, inserted); diff != "" {
				t.Errorf("inserted count mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSQLiteListPosted(t *testing.T) {
	ctx := context.Background()
	s := newTestSQLite(t)

	first := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	second := first.Add(time.Minute)
	for _, r := range []model.PostedRecord{
		{Query: "q", ItemID: "b", PostedAt: second},
		{Query: "q", ItemID: "a", PostedAt: first},
		{Query: "other", ItemID: "c", PostedAt: first},
	} {
		if _, err := s.MarkPosted(ctx, r.Query, r.ItemID, r.PostedAt); err != nil {
			t.Fatalf("mark posted: %v", err)
		}
	}
	// A duplicate mark must not overwrite the original timestamp.
	if _, err := s.MarkPosted(ctx, "q", "a", second.Add(time.Hour)); err != nil {
		t.Fatalf("mark posted: %v", err)
	}

	got, err := s.ListPosted(ctx, "q")
	if err != nil {
		t.Fatalf("list posted: %v", err)
	}
	want := []model.PostedRecord{
		{Query: "q", ItemID: "a", PostedAt: first},
		{Query: "q", ItemID: "b", PostedAt: second},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListPosted mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir() + "/ledger.db"

	s, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := s.MarkPosted(ctx, "q", "item", time.Now()); err != nil {
		t.Fatalf("mark posted: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	posted, err := s.WasPosted(ctx, "q", "item")
	if err != nil {
		t.Fatalf("was posted: %v", err)
	}
	if !posted {
		t.Error("expected record to survive reopen")
	}
}

func TestSQLiteErrorsAfterClose(t *testing.T) {
	s, err := NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	_ = s.Close()

	if _, err := s.WasPosted(context.Background(), "q", "i"); err == nil {
		t.Error("expected error from closed database")
	}
	if _, err := s.MarkPosted(context.Background(), "q", "i", time.Now()); err == nil {
		t.Error("expected error from closed database")
	}
}

func TestPing(t *testing.T) {
	for name, l := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if err := l.Ping(context.Background()); err != nil {
				t.Errorf("ping: %v", err)
			}
		})
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	r := NewRedis(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = r.Close() })
	mr.Close()
	if err := r.Ping(context.Background()); err == nil {
		t.Error("expected ping to fail once redis is gone")
	}
}
