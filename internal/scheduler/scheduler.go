// Package scheduler runs jobs on independent repeating timers.
//
// A job never overlaps itself: a tick that fires while the previous run is
// still in flight is coalesced into a single pending re-run. Different jobs run
// concurrently.
package scheduler

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"market_watch/internal/metrics"
)

// Func is the body of a job.
type Func func(ctx context.Context)

// Options tunes a Scheduler.
type Options struct {
	// Metrics, when set, counts coalesced ticks per job.
	Metrics *metrics.Metrics
	// RunOnStart triggers every job once as soon as its loop starts instead
	// of waiting for the first tick.
	RunOnStart bool
}

// Job is a snapshot of a scheduled job.
type Job struct {
	ID         string
	Every      time.Duration
	Running    bool
	Runs       int
	LastStart  time.Time
	LastFinish time.Time
}

type job struct {
	id    string
	every time.Duration
	fn    Func
	stop  chan struct{}
}

// jobState is kept per job id and survives a job being replaced, so a
// replacement never starts while a run of the previous one is in flight.
type jobState struct {
	running    bool
	pending    bool
	runs       int
	lastStart  time.Time
	lastFinish time.Time
}

// Scheduler owns one timer per job.
type Scheduler struct {
	log  *slog.Logger
	opts Options

	mu       sync.Mutex
	jobs     map[string]*job
	states   map[string]*jobState
	ctx      context.Context
	started  bool
	stopped  bool
	inflight int
	waiters  []chan struct{}
}

// New creates a Scheduler with no jobs.
func New(log *slog.Logger, opts Options) *Scheduler {
	return &Scheduler{
		log:    log,
		opts:   opts,
		jobs:   make(map[string]*job),
		states: make(map[string]*jobState),
	}
}

// Add schedules fn every interval under id. A job already registered under
// the same id is replaced; its timer stops, and a run it has in flight is left
// to finish. Until it does, ticks of the replacement are coalesced as usual.
func (s *Scheduler) Add(id string, every time.Duration, fn Func) {
	j := &job{id: id, every: every, fn: fn, stop: make(chan struct{})}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		s.log.Warn("scheduler stopped, job not added", "job_id", id)
		return
	}
	if old, ok := s.jobs[id]; ok {
		close(old.stop)
		s.log.Info("replacing job", "job_id", id)
	}
	s.jobs[id] = j
	s.log.Info("job added", "job_id", id, "every", every)

	if s.started {
		go s.loop(s.ctx, j)
	}
}

// Start launches the timers. Runs receive ctx, and cancelling it stops the
// scheduler as well.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started || s.stopped {
		return
	}
	s.started = true
	s.ctx = ctx
	for _, j := range s.jobs {
		go s.loop(ctx, j)
	}
	s.log.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop halts every timer. It does not wait for in-flight runs; use Wait for
// that.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	for _, j := range s.jobs {
		close(j.stop)
	}
	s.log.Info("scheduler stopped", "in_flight", s.inflight)
}

// Wait blocks until no run is in flight or ctx is done.
func (s *Scheduler) Wait(ctx context.Context) error {
	s.mu.Lock()
	if s.inflight == 0 {
		s.mu.Unlock()
		return nil
	}
	w := make(chan struct{})
	s.waiters = append(s.waiters, w)
	s.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs returns a snapshot of the registered jobs ordered by id.
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		st := s.state(j.id)
		out = append(out, Job{
			ID:         j.id,
			Every:      j.every,
			Running:    st.running,
			Runs:       st.runs,
			LastStart:  st.lastStart,
			LastFinish: st.lastFinish,
		})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	ticker := time.NewTicker(j.every)
	defer ticker.Stop()

	if s.opts.RunOnStart {
		s.trigger(ctx, j)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-j.stop:
			return
		case <-ticker.C:
			s.trigger(ctx, j)
		}
	}
}

// trigger starts a run of j, or marks one pending when a run with the same id
// is still in flight.
func (s *Scheduler) trigger(ctx context.Context, j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stopped(j) || ctx.Err() != nil {
		return
	}
	st := s.state(j.id)
	if st.running {
		st.pending = true
		s.log.Debug("tick coalesced", "job_id", j.id)
		if s.opts.Metrics != nil {
			s.opts.Metrics.TicksCoalesced.WithLabelValues(j.id).Inc()
		}
		return
	}
	s.startLocked(ctx, j, st)
}

// startLocked runs j in its own goroutine. s.mu must be held.
func (s *Scheduler) startLocked(ctx context.Context, j *job, st *jobState) {
	st.running = true
	st.runs++
	st.lastStart = time.Now()
	s.inflight++

	go func() {
		defer func() {
			if p := recover(); p != nil {
				s.log.Error("job panicked", "job_id", j.id, "panic", p)
			}
			s.finish(ctx, j.id, st)
		}()
		j.fn(ctx)
	}()
}

// finish records the end of a run and starts the pending re-run, if any, with
// the job currently registered under id.
func (s *Scheduler) finish(ctx context.Context, id string, st *jobState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.running = false
	st.lastFinish = time.Now()
	s.inflight--

	if st.pending {
		st.pending = false
		if cur, ok := s.jobs[id]; ok && !stopped(cur) && ctx.Err() == nil {
			s.startLocked(ctx, cur, st)
		}
	}

	if s.inflight == 0 {
		for _, w := range s.waiters {
			close(w)
		}
		s.waiters = nil
	}
}

// state returns the state for id, creating it on first use. s.mu must be held.
func (s *Scheduler) state(id string) *jobState {
	st, ok := s.states[id]
	if !ok {
		st = &jobState{}
		s.states[id] = st
	}
	return st
}

func stopped(j *job) bool {
	select {
	case <-j.stop:
		return true
	default:
		return false
	}
}
