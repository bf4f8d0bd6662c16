package api

import (
	"time"

	"market_watch/internal/model"
	"market_watch/internal/scheduler"
)

type queryStatus struct {
	Name            string     `json:"name"`
	Enabled         bool       `json:"enabled"`
	Source          string     `json:"source"`
	Keywords        string     `json:"keywords,omitempty"`
	FeedURL         string     `json:"feed_url,omitempty"`
	IntervalSeconds int        `json:"interval_seconds"`
	Job             *jobStatus `json:"job,omitempty"`
	LastRun         *runStatus `json:"last_run,omitempty"`
}

type jobStatus struct {
	ID         string     `json:"id"`
	Running    bool       `json:"running"`
	Runs       int        `json:"runs"`
	LastStart  *time.Time `json:"last_start,omitempty"`
	LastFinish *time.Time `json:"last_finish,omitempty"`
}

type runStatus struct {
	State      string         `json:"state"`
	Kind       string         `json:"kind,omitempty"`
	Error      string         `json:"error,omitempty"`
	Fetched    int            `json:"fetched"`
	Posted     int            `json:"posted"`
	Duplicates int            `json:"duplicates"`
	Failed     int            `json:"failed"`
	Skipped    map[string]int `json:"skipped,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMS int64          `json:"duration_ms"`
}

func (s *Server) status(q model.Query, jobs map[string]scheduler.Job) queryStatus {
	st := queryStatus{
		Name:            q.Name,
		Enabled:         q.IsEnabled(),
		Source:          q.Source,
		Keywords:        q.Keywords,
		FeedURL:         q.FeedURL,
		IntervalSeconds: q.IntervalSeconds,
	}

	if j, ok := jobs[q.JobID()]; ok {
		st.Job = &jobStatus{
			ID:         j.ID,
			Running:    j.Running,
			Runs:       j.Runs,
			LastStart:  optionalTime(j.LastStart),
			LastFinish: optionalTime(j.LastFinish),
		}
	}

	if s.deps.Results == nil {
		return st
	}
	res, ok := s.deps.Results.Last(q.Name)
	if !ok {
		return st
	}
	run := &runStatus{
		State:      string(res.State),
		Kind:       string(res.Kind),
		Fetched:    res.Fetched,
		Posted:     res.Posted,
		Duplicates: res.Duplicates,
		Failed:     res.Failed,
		StartedAt:  res.StartedAt,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		run.Error = res.Err.Error()
	}
	if len(res.Skipped) > 0 {
		run.Skipped = make(map[string]int, len(res.Skipped))
		for reason, n := range res.Skipped {
			run.Skipped[string(reason)] = n
		}
	}
	st.LastRun = run
	return st
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
