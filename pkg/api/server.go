package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/cloudevy/downtime-scheduler/pkg/log"
	"github.com/cloudevy/downtime-scheduler/pkg/metrics"
	"github.com/cloudevy/downtime-scheduler/pkg/rules"
	"github.com/cloudevy/downtime-scheduler/pkg/schedules"
	"github.com/cloudevy/downtime-scheduler/pkg/storage"
	"github.com/cloudevy/downtime-scheduler/pkg/traffic"
	"github.com/rs/zerolog"
)

// WorkspaceHeader carries the caller's workspace. Authentication happens in
// front of this server.
const WorkspaceHeader = "X-Workspace-ID"

// Server serves the HTTP API
type Server struct {
	schedules *schedules.Service
	store     storage.Store
	engine    rules.Engine
	analyzer  *traffic.Analyzer
	now       func() time.Time
	mux       *http.ServeMux
	http      *http.Server
	logger    zerolog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithClock replaces time.Now for traffic windows and rule previews
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates the API server and registers every route
func NewServer(svc *schedules.Service, store storage.Store, engine rules.Engine, analyzer *traffic.Analyzer, opts ...Option) *Server {
	s := &Server{
		schedules: svc,
		store:     store,
		engine:    engine,
		analyzer:  analyzer,
		now:       time.Now,
		mux:       http.NewServeMux(),
		logger:    log.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /health", metrics.LivenessHandler())
	s.mux.HandleFunc("GET /ready", metrics.ReadyHandler())
	s.mux.Handle("GET /metrics", metrics.Handler())

	s.route("GET /api/schedules", s.listSchedules)
	s.route("POST /api/schedules", s.createSchedule)
	s.route("GET /api/schedules/{id}", s.getSchedule)
	s.route("PUT /api/schedules/{id}", s.updateSchedule)
	s.route("DELETE /api/schedules/{id}", s.deleteSchedule)
	s.route("PUT /api/schedules/{id}/toggle", s.toggleSchedule)
	s.route("GET /api/schedules/{id}/executions", s.listExecutions)

	s.route("GET /api/traffic/servers/{id}/patterns", s.trafficPatterns)
	s.route("GET /api/traffic/servers/{id}/hourly", s.trafficHourly)
	s.route("POST /api/traffic/servers/{id}/hourly", s.ingestTraffic)
	s.route("GET /api/traffic/servers/{id}/best-downtime", s.bestDowntime)

	s.route("POST /api/rules/validate", s.validateRule)
	s.route("GET /api/rules/patterns", s.rulePatterns)

	return s
}

// workspaceHandler is a route that needs the caller's workspace
type workspaceHandler func(w http.ResponseWriter, r *http.Request, workspaceID string)

func (s *Server) route(pattern string, h workspaceHandler) {
	s.mux.Handle(pattern, instrument(pattern, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		workspaceID := r.Header.Get(WorkspaceHeader)
		if workspaceID == "" {
			writeError(w, http.StatusUnauthorized, "missing "+WorkspaceHeader+" header")
			return
		}
		h(w, r, workspaceID)
	})))
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until Shutdown
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones
func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data"`
}

type errorBody struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Success: false, Message: message})
}

// writeServiceError maps service errors onto status codes. notFound is the
// message used for storage.ErrNotFound.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFound string) {
	var verr *schedules.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, notFound)
	default:
		s.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
