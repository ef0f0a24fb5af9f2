// Package http exposes the pipeline over a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/veloir/stagehand/internal/logging"
	"github.com/veloir/stagehand/pkg/domain"
	"github.com/veloir/stagehand/pkg/flags"
	"github.com/veloir/stagehand/pkg/replay"
)

// Engine defines the pipeline surface the server exposes.
type Engine interface {
	Execute(ctx context.Context, threadID, message string) (*domain.StageOutcome, error)
	Replay(ctx context.Context, threadID string, opts replay.Options) (*replay.Result, error)
	Thread(ctx context.Context, threadID string) (*domain.ThreadState, error)
	DeleteThread(ctx context.Context, threadID string) error
	Trace(ctx context.Context, threadID string) ([]domain.TraceRecord, error)
	Inspect() domain.Catalog
	Flags() *flags.Controller
}

// Server wires the engine into chi routes.
type Server struct {
	engine  Engine
	logger  *slog.Logger
	metrics http.Handler
}

// ServerOption configures the server.
type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler mounts a metrics endpoint at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = h
	}
}

// NewHandler creates the HTTP handler for the engine.
func NewHandler(engine Engine, opts ...ServerOption) http.Handler {
	s := &Server{engine: engine, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/graph", s.getGraph)
	r.Get("/flags", s.getFlags)
	r.Patch("/flags", s.patchFlags)

	r.Post("/threads", s.startThread)
	r.Route("/threads/{threadID}", func(r chi.Router) {
		r.Post("/messages", s.postMessage)
		r.Get("/", s.getThread)
		r.Delete("/", s.deleteThread)
		r.Get("/trace", s.getTrace)
		r.Get("/replay", s.getReplay)
	})

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics)
	}
	return r
}

type messageRequest struct {
	Message string `json:"message"`
}

type startThreadResponse struct {
	ThreadID string               `json:"thread_id"`
	Outcome  *domain.StageOutcome `json:"outcome"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startThread mints a thread id and runs the first message through it.
func (s *Server) startThread(w http.ResponseWriter, r *http.Request) {
	var body messageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required", "")
		return
	}

	threadID := uuid.NewString()
	outcome, err := s.engine.Execute(r.Context(), threadID, body.Message)
	if err != nil {
		s.writeExecuteError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, startThreadResponse{ThreadID: threadID, Outcome: outcome})
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request) {
	var body messageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required", "")
		return
	}

	outcome, err := s.engine.Execute(r.Context(), chi.URLParam(r, "threadID"), body.Message)
	if err != nil {
		s.writeExecuteError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) getThread(w http.ResponseWriter, r *http.Request) {
	state, err := s.engine.Thread(r.Context(), chi.URLParam(r, "threadID"))
	if errors.Is(err, domain.ErrThreadNotFound) {
		s.writeError(w, http.StatusNotFound, "thread not found", "")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) deleteThread(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteThread(r.Context(), chi.URLParam(r, "threadID")); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getTrace(w http.ResponseWriter, r *http.Request) {
	recs, err := s.engine.Trace(r.Context(), chi.URLParam(r, "threadID"))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	s.writeJSON(w, http.StatusOK, recs)
}

// getReplay accepts debug flags as query parameters, e.g.
// GET /threads/{id}/replay?mode=dry&upToSeq=3.
func (s *Server) getReplay(w http.ResponseWriter, r *http.Request) {
	raw := map[string]any{}
	for key := range r.URL.Query() {
		raw[key] = r.URL.Query().Get(key)
	}
	opts, err := replay.OptionsFromMap(raw)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error(), "")
		return
	}

	result, err := s.engine.Replay(r.Context(), chi.URLParam(r, "threadID"), opts)
	if errors.Is(err, domain.ErrThreadNotFound) {
		s.writeError(w, http.StatusNotFound, "thread not found", "")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	catalog := s.engine.Inspect()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"entry":  catalog.EntryStageID,
		"stages": catalog.Stages,
	})
}

func (s *Server) getFlags(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Flags().Get())
}

// patchFlags merges the posted keys into the flag set and returns the
// updated set.
func (s *Server) patchFlags(w http.ResponseWriter, r *http.Request) {
	var partial domain.FlagSet
	if err := json.NewDecoder(r.Body).Decode(&partial); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid flag document", "")
		return
	}
	s.writeJSON(w, http.StatusOK, s.engine.Flags().Update(partial))
}

func (s *Server) writeExecuteError(w http.ResponseWriter, err error) {
	var re *domain.RoutingError
	if errors.As(err, &re) {
		// The turn was aborted cleanly; the client may retry with a
		// different message.
		s.writeError(w, http.StatusUnprocessableEntity, re.Detail, string(re.Code))
		return
	}
	var pe *domain.PersistenceError
	if errors.As(err, &pe) {
		s.writeError(w, http.StatusServiceUnavailable, pe.Error(), pe.Op)
		return
	}
	s.writeError(w, http.StatusInternalServerError, err.Error(), "")
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg, code string) {
	s.writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
