// Package api serves the HTTP status surface: health, Prometheus metrics and
// a read-only view of the configured queries.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market_watch/internal/model"
	"market_watch/internal/runner"
	"market_watch/internal/scheduler"
)

// JobLister reports the scheduled jobs.
type JobLister interface {
	Jobs() []scheduler.Job
}

// ResultSource reports the latest run result of a query.
type ResultSource interface {
	Last(query string) (runner.Result, bool)
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators the server reads from.
type Deps struct {
	Queries  []model.Query
	Jobs     JobLister
	Results  ResultSource
	Store    Pinger
	Registry *prometheus.Registry
}

// Server is the status HTTP server.
type Server struct {
	log    *slog.Logger
	deps   Deps
	router *gin.Engine
}

// NewServer builds the router with all routes registered.
func NewServer(log *slog.Logger, deps Deps) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{log: log, deps: deps, router: gin.New()}
	s.router.Use(gin.Recovery(), requestLogger(log))
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	if s.deps.Registry != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Registry, promhttp.HandlerOpts{})))
	}
	s.router.GET("/healthz", s.handleHealthz)

	v1 := s.router.Group("/api/v1")
	v1.GET("/queries", s.handleListQueries)
	v1.GET("/queries/:name", s.handleGetQuery)
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.String("latency", time.Since(start).String()),
		)
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(ctx); err != nil {
			s.log.Warn("health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListQueries(c *gin.Context) {
	jobs := s.jobsByID()
	out := make([]queryStatus, 0, len(s.deps.Queries))
	for _, q := range s.deps.Queries {
		out = append(out, s.status(q, jobs))
	}
	c.JSON(http.StatusOK, gin.H{"queries": out})
}

func (s *Server) handleGetQuery(c *gin.Context) {
	name := c.Param("name")
	for _, q := range s.deps.Queries {
		if q.Name == name {
			c.JSON(http.StatusOK, s.status(q, s.jobsByID()))
			return
		}
	}
	c.JSON(http.StatusNotFound, gin.H{"error": "query not found"})
}

func (s *Server) jobsByID() map[string]scheduler.Job {
	jobs := make(map[string]scheduler.Job)
	if s.deps.Jobs == nil {
		return jobs
	}
	for _, j := range s.deps.Jobs.Jobs() {
		jobs[j.ID] = j
	}
	return jobs
}
