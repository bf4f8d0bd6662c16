package runner

import "sync"

// Tracker keeps the latest Result of every query.
type Tracker struct {
	mu   sync.RWMutex
	last map[string]Result
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{last: make(map[string]Result)}
}

// Record stores res as the latest result of its query.
func (t *Tracker) Record(res Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last[res.Query] = res
}

// Last returns the latest result of query, if any.
func (t *Tracker) Last(query string) (Result, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	res, ok := t.last[query]
	return res, ok
}
