package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"market_watch/internal/filter"
	"market_watch/internal/metrics"
	"market_watch/internal/model"
	"market_watch/internal/runner"
	"market_watch/internal/scheduler"
)

type mockJobs struct {
	jobs []scheduler.Job
}

func (m *mockJobs) Jobs() []scheduler.Job { return m.jobs }

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(context.Context) error { return m.err }

func ptr[T any](v T) *T { return &v }

func newTestServer(deps Deps) *Server {
	return NewServer(slog.New(slog.NewTextHandler(io.Discard, nil)), deps)
}

func do(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		name       string
		store      Pinger
		wantStatus int
		wantBody   string
	}{
		{name: "healthy", store: &mockPinger{}, wantStatus: http.StatusOK, wantBody: "ok"},
		{name: "store down", store: &mockPinger{err: errors.New("connection refused")}, wantStatus: http.StatusServiceUnavailable, wantBody: "error"},
		{name: "no store", wantStatus: http.StatusOK, wantBody: "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(Deps{Store: tt.store})
			rec := do(t, s, "/healthz")

			if diff := cmp.Diff(tt.wantStatus, rec.Code); diff != "" {
				t.Errorf("status mismatch (-want +got):\n%s", diff)
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if diff := cmp.Diff(tt.wantBody, body.Status); diff != "" {
				t.Errorf("body mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.Posted.WithLabelValues("lego").Add(3)

	s := newTestServer(Deps{Registry: m.Registry})
	rec := do(t, s, "/metrics")

	if diff := cmp.Diff(http.StatusOK, rec.Code); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
	if !strings.Contains(rec.Body.String(), `watcher_listings_posted_total{query="lego"} 3`) {
		t.Errorf("posted counter missing from metrics output:\n%s", rec.Body.String())
	}
}

func TestListQueries(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	tracker := runner.NewTracker()
	tracker.Record(runner.Result{
		Query:      "lego",
		State:      runner.StateFailed,
		Kind:       runner.KindDispatch,
		Err:        errors.New("webhook down"),
		Fetched:    5,
		Posted:     1,
		Duplicates: 2,
		Failed:     1,
		Skipped:    map[filter.Reason]int{filter.ReasonVariant: 1},
		StartedAt:  started,
		Duration:   1500 * time.Millisecond,
	})

	jobs := &mockJobs{jobs: []scheduler.Job{{
		ID:        "query::lego",
		Every:     time.Minute,
		Running:   true,
		Runs:      4,
		LastStart: started,
	}}}

	s := newTestServer(Deps{
		Queries: []model.Query{
			{Name: "lego", IntervalSeconds: 60, Source: model.SourceEbay, Keywords: "lego"},
			{Name: "off", Enabled: ptr(false), IntervalSeconds: 300, Source: model.SourceFeed, FeedURL: "https://f.example/rss"},
		},
		Jobs:    jobs,
		Results: tracker,
	})

	rec := do(t, s, "/api/v1/queries")
	if diff := cmp.Diff(http.StatusOK, rec.Code); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}

	var got struct {
		Queries []queryStatus `json:"queries"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := []queryStatus{
		{
			Name:            "lego",
			Enabled:         true,
			Source:          "ebay",
			Keywords:        "lego",
			IntervalSeconds: 60,
			Job: &jobStatus{
				ID:        "query::lego",
				Running:   true,
				Runs:      4,
				LastStart: &started,
			},
			LastRun: &runStatus{
				State:      "failed",
				Kind:       "dispatch",
				Error:      "webhook down",
				Fetched:    5,
				Posted:     1,
				Duplicates: 2,
				Failed:     1,
				Skipped:    map[string]int{"variant": 1},
				StartedAt:  started,
				DurationMS: 1500,
			},
		},
		{
			Name:            "off",
			Source:          "feed",
			FeedURL:         "https://f.example/rss",
			IntervalSeconds: 300,
		},
	}
	if diff := cmp.Diff(want, got.Queries); diff != "" {
		t.Errorf("queries mismatch (-want +got):\n%s", diff)
	}
}

func TestGetQuery(t *testing.T) {
	s := newTestServer(Deps{
		Queries: []model.Query{{Name: "lego", IntervalSeconds: 60, Source: model.SourceEbay}},
	})

	rec := do(t, s, "/api/v1/queries/lego")
	if diff := cmp.Diff(http.StatusOK, rec.Code); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	var got queryStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff("lego", got.Name); diff != "" {
		t.Errorf("name mismatch (-want +got):\n%s", diff)
	}

	rec = do(t, s, "/api/v1/queries/missing")
	if diff := cmp.Diff(http.StatusNotFound, rec.Code); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}
