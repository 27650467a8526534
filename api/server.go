// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/poiesic/ingestor/core"
	"github.com/poiesic/ingestor/crawler"
	"github.com/poiesic/ingestor/ingestion"
	"github.com/poiesic/ingestor/search"
	"github.com/poiesic/ingestor/storage"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Engine is the subset of the ingestor served over HTTP.
type Engine interface {
	StartJob(ctx context.Context, tenant core.TenantID, spec core.SourceSpec) (*core.IngestionJob, error)
	JobStatus(ctx context.Context, id string) (*core.IngestionJob, error)
	ListJobs(ctx context.Context, tenant core.TenantID) ([]*core.IngestionJob, error)
	CancelJob(ctx context.Context, id string) error
	Search(ctx context.Context, q search.Query) ([]*core.SearchResult, error)
	Handlers(ctx context.Context, tenant core.TenantID) ([]*core.HandlerRecord, error)
	DeadLetters(ctx context.Context, tenant core.TenantID) ([]*core.DeadLetter, error)
}

// Server routes HTTP requests to an Engine.
type Server struct {
	engine Engine
	router *chi.Mux
	logger *slog.Logger
}

// Option configures a Server.
type Option func(*Server) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger.With("component", "api")
		return nil
	}
}

// New creates a server for engine.
func New(engine Engine, opts ...Option) (*Server, error) {
	if engine == nil {
		return nil, errors.New("engine is required")
	}
	s := &Server{engine: engine, logger: slog.Default().With("component", "api")}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Route("/v1", func(r chi.Router) {
		r.Route("/tenants/{tenant}", func(r chi.Router) {
			r.Post("/jobs", s.handleStartJob)
			r.Get("/jobs", s.handleListJobs)
			r.Post("/search", s.handleSearch)
			r.Get("/handlers", s.handleHandlers)
			r.Get("/dead-letters", s.handleDeadLetters)
		})
		r.Get("/jobs/{id}", s.handleJobStatus)
		r.Delete("/jobs/{id}", s.handleCancelJob)
	})
	s.router = r
	return s, nil
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"request_id", middleware.GetReqID(r.Context()),
			"elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps domain errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrInvalidTenant),
		errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, ingestion.ErrJobNotFound),
		errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, crawler.ErrSourceUnreachable),
		errors.Is(err, crawler.ErrUnknownSourceKind):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ingestion.ErrReleased):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, Error{Error: err.Error()})
}
