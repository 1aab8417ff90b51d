// Package api exposes the HTTP interface for the importer service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jobgrid/feed-importer/internal/config"
	"github.com/jobgrid/feed-importer/internal/importer"
	"github.com/jobgrid/feed-importer/internal/metrics"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// Trigger starts an import run over the given feeds.
type Trigger interface {
	Trigger(ctx context.Context, feedURLs []string) (importer.TriggerResult, error)
}

// Server wires HTTP handlers to the pipeline and stores.
type Server struct {
	router   chi.Router
	trigger  Trigger
	runStore importer.RunStore
	jobStore importer.JobStore
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	trigger Trigger,
	runStore importer.RunStore,
	jobStore importer.JobStore,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	s := &Server{
		trigger:  trigger,
		runStore: runStore,
		jobStore: jobStore,
		cfg:      cfg,
		logger:   logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Get("/status", s.getStatus)
		r.Post("/trigger-import", s.triggerImport)
		r.Get("/trigger-import", s.triggerImport)
		r.Route("/import-logs", func(r chi.Router) {
			r.Get("/", s.listImportLogs)
			r.Get("/{run_id}", s.getImportLog)
		})
		r.Get("/jobs/{external_id}", s.getJob)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.runStore.ListRuns(r.Context(), 1, 1); err != nil {
		s.writeError(w, http.StatusServiceUnavailable, "run store unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type triggerRequest struct {
	Feeds []string `json:"feeds"`
}

func (s *Server) triggerImport(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if r.Method == http.MethodPost && r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if len(req.Feeds) == 0 {
		req.Feeds = splitFeedsParam(r.URL.Query().Get("feeds"))
	}

	result, err := s.trigger.Trigger(r.Context(), req.Feeds)
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, importer.ErrNoFeeds):
			status = http.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusRequestTimeout
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, result)
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	page, err := s.runStore.ListRuns(r.Context(), 1, 1)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to load run history")
		return
	}
	payload := map[string]any{
		"status":    "ok",
		"totalRuns": page.Total,
	}
	if len(page.Items) > 0 {
		payload["lastRun"] = page.Items[0]
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) listImportLogs(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", defaultPageSize)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	runs, err := s.runStore.ListRuns(r.Context(), page, pageSize)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to list import runs")
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getImportLog(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "run_id")
	run, err := s.runStore.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, importer.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, "import run not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load import run")
		return
	}
	s.writeJSON(w, http.StatusOK, run)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "external_id")
	job, err := s.jobStore.GetJob(r.Context(), externalID)
	if err != nil {
		if errors.Is(err, importer.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// splitFeedsParam parses the comma-separated feeds query parameter.
func splitFeedsParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var feeds []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			feeds = append(feeds, part)
		}
	}
	return feeds
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("error", rec))
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal server error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
