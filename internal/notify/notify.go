// Package notify delivers listing notifications to chat sinks.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"market_watch/internal/model"
)

// ErrRateLimited is wrapped by errors returned when a sink asks the caller to
// slow down. Callers treat it as a failed dispatch and retry on a later run.
var ErrRateLimited = errors.New("rate limited")

// RateLimitError reports a rate-limit response and how long the sink asked
// to wait.
type RateLimitError struct {
	Sink       string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limited, retry after %s", e.Sink, e.RetryAfter)
}

// Unwrap lets errors.Is match ErrRateLimited.
func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Notifier sends one notification.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}

// Target is one destination of a query. Each target keeps its own ledger
// records, so a listing delivered to one target is not sent there again while
// another target is still failing.
type Target struct {
	// Name labels the sink in logs and errors.
	Name string
	// Key separates the target's ledger records from the other targets of the
	// same query. The empty key uses the query name alone.
	Key string
	Notifier
}

// LedgerKey returns the ledger query key for this target of query.
func (t Target) LedgerKey(query string) string {
	if t.Key == "" {
		return query
	}
	return query + "#" + t.Key
}

// Resolver builds the targets of a query. Discord notifiers are
// shared per webhook URL so their pacing holds across queries.
type Resolver struct {
	client      HTTPClient
	discordRate float64
	timeout     time.Duration
	telegram    *Telegram

	mu      sync.Mutex
	discord map[string]*Discord
}

// NewResolver creates a Resolver. telegram may be nil when no query targets
// Telegram.
func NewResolver(client HTTPClient, discordRate float64, timeout time.Duration, telegram *Telegram) *Resolver {
	return &Resolver{
		client:      client,
		discordRate: discordRate,
		timeout:     timeout,
		telegram:    telegram,
		discord:     make(map[string]*Discord),
	}
}

// Targets returns the targets configured for q, Discord first. Discord records
// use the bare query name.
func (r *Resolver) Targets(q model.Query) ([]Target, error) {
	var targets []Target
	if url := q.Discord.WebhookURL; url != "" {
		targets = append(targets, Target{Name: "discord", Notifier: r.discordFor(url)})
	}
	if chatID := q.Telegram.ChatID; chatID != 0 {
		if r.telegram == nil {
			return nil, fmt.Errorf("query %q targets telegram but no bot is configured", q.Name)
		}
		targets = append(targets, Target{Name: "telegram", Key: "telegram", Notifier: r.telegram.Chat(chatID)})
	}
	if len(targets) == 0 {
		return nil, fmt.Errorf("query %q has no notification target", q.Name)
	}
	return targets, nil
}

func (r *Resolver) discordFor(url string) *Discord {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.discord[url]
	if !ok {
		d = NewDiscord(r.client, url, r.discordRate, r.timeout)
		r.discord[url] = d
	}
	return d
}
