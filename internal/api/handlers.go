package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/hookd/internal/dispatch"
	"github.com/mattjoyce/hookd/internal/hook"
	"github.com/mattjoyce/hookd/internal/registry"
)

// Error kinds reported in ErrorResponse.Kind.
const (
	KindInvalidContext       = "invalid_context"
	KindInvalidRegistration  = "invalid_registration"
	KindNoHandlersRegistered = "no_handlers_registered"
	KindHandlerNotFound      = "handler_not_found"
	KindUnsupportedContext   = "unsupported_context"
	KindHandlerFailed        = "handler_failed"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Handlers:      len(s.catalog.IDs()),
	})
}

// handleDispatch handles POST /dispatch: one event, one unit of work.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Entity) == "" {
		s.writeError(w, http.StatusBadRequest, "entity is required")
		return
	}

	uow := s.dispatcher.Begin()
	if err := uow.Dispatch(r.Context(), req.Entity, req.Context, req.Records); err != nil {
		s.writeDispatchError(w, err, uow.ID(), nil)
		return
	}

	respondJSON(w, http.StatusOK, DispatchResponse{
		Status:     "ok",
		UnitOfWork: uow.ID(),
		Records:    req.Records,
	})
}

// handleDispatchBatch handles POST /dispatch/batch. Events share one unit of
// work, run in order, and the first failure stops the batch.
func (s *Server) handleDispatchBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Events) == 0 {
		s.writeError(w, http.StatusBadRequest, "events must not be empty")
		return
	}
	for i, ev := range req.Events {
		if strings.TrimSpace(ev.Entity) == "" {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("events[%d]: entity is required", i))
			return
		}
	}

	uow := s.dispatcher.Begin()
	for i, ev := range req.Events {
		if err := uow.Dispatch(r.Context(), ev.Entity, ev.Context, ev.Records); err != nil {
			done := i
			s.writeDispatchError(w, err, uow.ID(), &done)
			return
		}
	}

	respondJSON(w, http.StatusOK, BatchResponse{
		Status:     "ok",
		UnitOfWork: uow.ID(),
		Dispatched: len(req.Events),
	})
}

// handleRegistry handles GET /registry/{entity}.
func (s *Server) handleRegistry(w http.ResponseWriter, r *http.Request) {
	entity := strings.TrimSpace(chi.URLParam(r, "entity"))

	reg, err := registry.Build(r.Context(), s.source, entity)
	if err != nil {
		s.writeDispatchError(w, err, "", nil)
		return
	}

	respondJSON(w, http.StatusOK, RegistryResponse{
		Entity:   reg.Entity(),
		Contexts: reg.Table(),
	})
}

// handleHandlers handles GET /handlers.
func (s *Server) handleHandlers(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HandlersResponse{Handlers: s.catalog.IDs()})
}

// handleOpenAPI handles GET /openapi.json (no auth).
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.catalog.IDs()))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, s.config.MaxBodyBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, hook.ErrInvalidContext) {
			msg = err.Error()
		}
		s.writeError(w, http.StatusBadRequest, msg)
		return false
	}
	return true
}

// classify maps a dispatch error to an HTTP status and error kind. Anything
// that is not one of the dispatcher's own errors came from a handler.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, hook.ErrInvalidContext):
		return http.StatusBadRequest, KindInvalidContext
	case errors.Is(err, hook.ErrNoHandlersRegistered):
		return http.StatusNotFound, KindNoHandlersRegistered
	case errors.Is(err, hook.ErrHandlerNotFound):
		return http.StatusInternalServerError, KindHandlerNotFound
	case errors.Is(err, hook.ErrUnsupportedContext):
		return http.StatusInternalServerError, KindUnsupportedContext
	case errors.Is(err, hook.ErrInvalidRegistration):
		return http.StatusInternalServerError, KindInvalidRegistration
	default:
		return http.StatusUnprocessableEntity, KindHandlerFailed
	}
}

func (s *Server) writeDispatchError(w http.ResponseWriter, err error, uow string, dispatched *int) {
	status, kind := classify(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("dispatch failed", "kind", kind, "unit_of_work", uow, "error", err)
	}
	respondJSON(w, status, ErrorResponse{
		Error:      err.Error(),
		Kind:       kind,
		UnitOfWork: uow,
		Dispatched: dispatched,
	})
}

var _ Dispatcher = (*dispatch.Dispatcher)(nil)

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
