// Package runner executes one polling run of one query: fetch, filter, rank,
// deduplicate, dispatch and record.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"market_watch/internal/filter"
	"market_watch/internal/format"
	"market_watch/internal/ledger"
	"market_watch/internal/marketplace"
	"market_watch/internal/metrics"
	"market_watch/internal/model"
	"market_watch/internal/notify"
	"market_watch/internal/rank"
)

// State is the terminal state of a run.
type State string

// Run states.
const (
	StateDone   State = "done"
	StateFailed State = "failed"
)

// Kind classifies why a run failed.
type Kind string

// Failure kinds.
const (
	KindNone      Kind = ""
	KindFetch     Kind = "fetch"
	KindDispatch  Kind = "dispatch"
	KindLedger    Kind = "ledger"
	KindCancelled Kind = "cancelled"
	KindPanic     Kind = "panic"
)

// Policy decides what a run does after a failed dispatch.
type Policy string

// Dispatch failure policies.
const (
	// PolicyAbort stops the run at the first failed dispatch.
	PolicyAbort Policy = "abort"
	// PolicyContinue skips the failed listing and dispatches the rest.
	PolicyContinue Policy = "continue"
)

// Result reports what a run did.
type Result struct {
	Query      string
	State      State
	Kind       Kind
	Err        error
	Fetched    int
	Posted     int
	Duplicates int
	Failed     int
	Skipped    map[filter.Reason]int
	StartedAt  time.Time
	Duration   time.Duration
}

// TargetResolver returns the notification targets of a query.
type TargetResolver interface {
	Targets(q model.Query) ([]notify.Target, error)
}

// Config tunes a Runner.
type Config struct {
	Policy      Policy
	CallTimeout time.Duration
	Metrics     *metrics.Metrics
	Now         func() time.Time
}

// Runner runs queries against shared marketplace, ledger and notifier
// handles. It is safe for concurrent use by different queries.
type Runner struct {
	market    marketplace.Searcher
	ledger    ledger.Ledger
	targets   TargetResolver
	log       *slog.Logger
	cfg       Config
}

// New creates a Runner.
func New(market marketplace.Searcher, l ledger.Ledger, targets TargetResolver, log *slog.Logger, cfg Config) *Runner {
	if cfg.Policy == "" {
		cfg.Policy = PolicyAbort
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 30 * time.Second
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{market: market, ledger: l, targets: targets, log: log, cfg: cfg}
}

// Run executes one run of q. It never panics and never returns an error;
// failures are reported in the Result.
func (r *Runner) Run(ctx context.Context, q model.Query) (res Result) {
	log := r.log.With("query", q.Name)
	res = Result{Query: q.Name, Skipped: map[filter.Reason]int{}, StartedAt: r.cfg.Now()}

	defer func() {
		if p := recover(); p != nil {
			res = res.fail(KindPanic, fmt.Errorf("panic: %v", p))
		}
		res.Duration = r.cfg.Now().Sub(res.StartedAt)
		r.report(log, res)
	}()

	log.Info("run start", "keywords", q.Keywords, "interval", q.Interval())

	// Fetching
	fetchCtx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	listings, err := r.market.Search(fetchCtx, q.SearchParams())
	cancel()
	if err != nil {
		return res.fail(KindFetch, fmt.Errorf("search: %w", err))
	}
	res.Fetched = len(listings)
	log.Debug("fetched listings", "count", len(listings))

	// Filtering
	kept, skipped := filter.Apply(listings, q)
	res.Skipped = skipped
	ranked := rank.Sort(kept, rank.ParseOrder(q.Rank))

	// Dispatching
	targets, err := r.targets.Targets(q)
	if err != nil {
		return res.fail(KindDispatch, fmt.Errorf("resolve targets: %w", err))
	}

	var dispatchErr error
	for _, l := range ranked {
		if err := ctx.Err(); err != nil {
			return res.fail(KindCancelled, err)
		}

		todo, err := r.unsent(ctx, q, targets, l.ID)
		if err != nil {
			return res.fail(KindLedger, err)
		}
		if len(todo) == 0 {
			res.Duplicates++
			log.Debug("duplicate", "item_id", l.ID)
			continue
		}

		log.Info("posting", "item_id", l.ID, "title", l.Title, "total", rank.TotalCost(l))
		msg := format.Build(q.Name, l)
		var itemErr error
		for _, t := range todo {
			if err := r.dispatch(ctx, t, msg); err != nil {
				if errors.Is(err, notify.ErrRateLimited) && r.cfg.Metrics != nil {
					r.cfg.Metrics.DispatchLimited.WithLabelValues(q.Name).Inc()
				}
				if itemErr == nil {
					itemErr = fmt.Errorf("dispatch %s to %s: %w", l.ID, t.Name, err)
				}
				continue
			}

			inserted, err := r.ledger.MarkPosted(ctx, t.LedgerKey(q.Name), l.ID, r.cfg.Now())
			if err != nil {
				return res.fail(KindLedger, err)
			}
			if !inserted {
				log.Warn("ledger already had item after dispatch", "item_id", l.ID, "target", t.Name)
			}
		}

		if itemErr != nil {
			res.Failed++
			if r.cfg.Policy == PolicyAbort {
				return res.fail(KindDispatch, itemErr)
			}
			log.Warn("dispatch failed, continuing", "item_id", l.ID, "error", itemErr)
			if dispatchErr == nil {
				dispatchErr = itemErr
			}
			continue
		}
		res.Posted++
	}

	if dispatchErr != nil {
		return res.fail(KindDispatch, dispatchErr)
	}
	res.State = StateDone
	return res
}

// unsent returns the targets that have no ledger record for itemID yet.
func (r *Runner) unsent(ctx context.Context, q model.Query, targets []notify.Target, itemID string) ([]notify.Target, error) {
	var todo []notify.Target
	for _, t := range targets {
		posted, err := r.ledger.WasPosted(ctx, t.LedgerKey(q.Name), itemID)
		if err != nil {
			return nil, err
		}
		if !posted {
			todo = append(todo, t)
		}
	}
	return todo, nil
}

func (r *Runner) dispatch(ctx context.Context, n notify.Notifier, msg model.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.CallTimeout)
	defer cancel()
	return n.Notify(ctx, msg)
}

func (res Result) fail(kind Kind, err error) Result {
	res.State = StateFailed
	res.Kind = kind
	res.Err = err
	return res
}

func (r *Runner) report(log *slog.Logger, res Result) {
	if res.State == StateFailed {
		log.Error("run failed", "kind", res.Kind, "error", res.Err,
			"posted", res.Posted, "duplicates", res.Duplicates, "duration", res.Duration)
	} else {
		log.Info("run end", "posted", res.Posted, "duplicates", res.Duplicates,
			"fetched", res.Fetched, "duration", res.Duration)
	}

	m := r.cfg.Metrics
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(res.Query, string(res.State)).Inc()
	m.RunDuration.WithLabelValues(res.Query).Observe(res.Duration.Seconds())
	m.Fetched.WithLabelValues(res.Query).Add(float64(res.Fetched))
	m.Posted.WithLabelValues(res.Query).Add(float64(res.Posted))
	m.Duplicates.WithLabelValues(res.Query).Add(float64(res.Duplicates))
	for reason, n := range res.Skipped {
		m.Skipped.WithLabelValues(res.Query, string(reason)).Add(float64(n))
	}
}
