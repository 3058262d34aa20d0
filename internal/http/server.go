// Package http exposes the goal store as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/cors"

	"goalplanner/internal/core"
	"goalplanner/internal/filter"
	"goalplanner/internal/log"
	"goalplanner/internal/storage"
	"goalplanner/internal/store"
)

// GoalStore is the subset of *store.Store the API needs.
type GoalStore interface {
	Snapshot() []core.Goal
	Get(id string) (core.Goal, bool)
	Add(ctx context.Context, d core.Draft) (store.Outcome, error)
	Update(ctx context.Context, g core.Goal) (store.Outcome, error)
	Edit(ctx context.Context, id string, p core.Patch) (store.Outcome, error)
	Deposit(ctx context.Context, id string, amount core.Money) (store.Outcome, error)
	Remove(ctx context.Context, id string) (store.Outcome, error)
}

// SyncMonitor reports on and requeues journaled mutations.
type SyncMonitor interface {
	Stats(ctx context.Context) (*storage.GetSyncQueueStatsRow, error)
	RetryFailed(ctx context.Context) (int64, error)
}

// Reloader reloads the collection from the remote service, substituting the
// local fallback when the remote is unavailable.
type Reloader func(ctx context.Context) (store.LoadResult, error)

type Server struct {
	http.Server
	goals        GoalStore
	reload       Reloader
	sync         SyncMonitor
	farThreshold int
	corsOrigins  []string
	logger       *log.Logger

	rateLimiter  *rateLimiter
	security     securityMetrics
	ready        atomic.Bool
	shutdownOnce sync.Once
}

type Option func(*Server)

func WithReloader(fn Reloader) Option {
	return func(s *Server) { s.reload = fn }
}

func WithSyncMonitor(m SyncMonitor) Option {
	return func(s *Server) { s.sync = m }
}

// WithFarThreshold sets the default day threshold of ?far=true.
func WithFarThreshold(days int) Option {
	return func(s *Server) { s.farThreshold = days }
}

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

func WithLogger(l *log.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRateLimit sets the allowed mutating requests per client and minute.
// Zero disables rate limiting.
func WithRateLimit(perMinute int) Option {
	return func(s *Server) {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
			s.rateLimiter = nil
		}
		if perMinute > 0 {
			s.rateLimiter = newRateLimiter(perMinute)
		}
	}
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// The server reports not ready until SetReady(true) is called.
func NewServer(addr string, goals GoalStore, opts ...Option) *Server {
	s := &Server{
		goals:        goals,
		farThreshold: filter.DefaultFarThreshold,
		rateLimiter:  newRateLimiter(60),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger, _ = log.New(log.Config{Component: log.ComponentHTTP})
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /goals", s.handleListGoals)
	mux.HandleFunc("POST /goals", s.handleCreateGoal)
	mux.HandleFunc("GET /goals/{id}", s.handleGetGoal)
	mux.HandleFunc("PUT /goals/{id}", s.handleReplaceGoal)
	mux.HandleFunc("PATCH /goals/{id}", s.handlePatchGoal)
	mux.HandleFunc("DELETE /goals/{id}", s.handleDeleteGoal)
	mux.HandleFunc("POST /goals/{id}/deposits", s.handleDeposit)

	mux.HandleFunc("GET /overview", s.handleOverview)

	mux.HandleFunc("POST /sync/reload", s.handleReload)
	mux.HandleFunc("GET /sync/status", s.handleSyncStatus)
	mux.HandleFunc("POST /sync/retry", s.handleSyncRetry)

	var handler http.Handler = mux
	handler = s.withSecurity(handler)
	handler = log.AccessMiddleware(extractClientIP)(handler)
	handler = log.RequestIDMiddleware(func(r *http.Request) string { return r.Header.Get(HeaderRequestID) })(handler)
	handler = withRequestID(handler)
	handler = log.Middleware(s.logger.WithComponent(log.ComponentHTTP))(handler)
	handler = s.cors().Handler(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return s
}

func (s *Server) cors() *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", HeaderRequestID},
		ExposedHeaders: []string{HeaderSyncDegraded, HeaderRequestID},
		MaxAge:         600,
	})
}

// withRequestID makes sure every request and response carries an id.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := requestID(r)
		r.Header.Set(HeaderRequestID, id)
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

// SetReady marks whether a collection has been loaded.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) IsReady() bool {
	return s.ready.Load()
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
