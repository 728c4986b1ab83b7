// Package server exposes the query, status and live-event HTTP surface.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"git.home.luguber.info/inful/autodoc/internal/config"
	"git.home.luguber.info/inful/autodoc/internal/events"
	ferrors "git.home.luguber.info/inful/autodoc/internal/foundation/errors"
	"git.home.luguber.info/inful/autodoc/internal/health"
	"git.home.luguber.info/inful/autodoc/internal/logfields"
	"git.home.luguber.info/inful/autodoc/internal/scheduler"
	"git.home.luguber.info/inful/autodoc/internal/store"
	"git.home.luguber.info/inful/autodoc/internal/watcher"
)

// GenerateResult reports what a batch generation request queued.
type GenerateResult struct {
	Queued  int `json:"queued"`
	Skipped int `json:"skipped"`
}

// Deps are the collaborators the HTTP surface reads from. Generate and
// GenerateAll are provided by the daemon so the server never owns
// pipeline logic.
type Deps struct {
	Config *config.Config
	Store  *store.Store
	Bus    *events.Broadcaster

	SchedulerStatus func() scheduler.Status
	WatcherStatus   func() watcher.Status
	Health          func() health.Snapshot

	// Generate queues one file by source path.
	Generate func(path string)
	// GenerateAll queues every known source file; force skips the
	// unchanged-fingerprint shortcut.
	GenerateAll func(force bool) GenerateResult

	// Metrics serves the Prometheus registry; nil disables the endpoint.
	Metrics http.Handler

	Revision string
}

// Server wraps the http.Server lifecycle around the API handlers.
type Server struct {
	deps    Deps
	adapter *ferrors.HTTPErrorAdapter
	events  *eventStream
	httpSrv *http.Server
}

// New builds the server and its routing table.
func New(deps Deps) *Server {
	s := &Server{
		deps:    deps,
		adapter: ferrors.NewHTTPErrorAdapter(slog.Default()),
		events:  newEventStream(deps.Bus),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/docs", s.handleListDocs)
	mux.HandleFunc("GET /api/docs/{name}", s.handleGetDoc)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/generate", s.handleGenerateAll)
	mux.HandleFunc("POST /api/generate/{name}", s.handleGenerateOne)
	mux.Handle("GET /api/events", s.events)
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics)
	}

	chain := Chain(slog.Default(), s.adapter)
	s.httpSrv = &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.HTTP.Port),
		Handler:           chain(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routing table; used by tests and by Start.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	slog.Info("http server listening", "addr", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "http server failed").Build()
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.events.close()
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		slog.Warn("http shutdown incomplete", logfields.Error(err))
		return err
	}
	return nil
}
