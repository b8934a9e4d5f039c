package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/loomworks/millflow/internal/event"
	"github.com/loomworks/millflow/internal/statemachine"
	"github.com/loomworks/millflow/internal/store"
)

const defaultListLimit = 50

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		respondError(w, http.StatusServiceUnavailable, "UNHEALTHY", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleListEvents serves the monitoring feed: newest events first.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, "BAD_REQUEST",
				errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	events, err := s.store.ListRecentEvents(r.Context(), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

type processRequest struct {
	OrgID string `json:"org_id,omitempty"` // empty processes all tenants
	Limit int    `json:"limit,omitempty"`
}

// handleProcess runs one dispatch pass. This is the endpoint a cron job or
// an operator hits; there is no internal scheduling loop.
func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	req := processRequest{}
	if r.ContentLength > 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}
	if req.Limit <= 0 {
		req.Limit = s.batchLimit
	}

	result, err := s.dispatcher.ProcessPending(r.Context(), req.OrgID, req.Limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")

	err := s.dispatcher.Retry(r.Context(), eventID)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{
			"event_id": eventID,
			"status":   string(event.StatusPending),
		})
	case errors.Is(err, store.ErrEventNotFound):
		respondError(w, http.StatusNotFound, "EVENT_NOT_FOUND", err)
	case errors.Is(err, store.ErrEventNotFailed):
		respondError(w, http.StatusConflict, "EVENT_NOT_FAILED", err)
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL", err)
	}
}

type transitionRequest struct {
	OrgID    string `json:"org_id"`
	ToStatus string `json:"to_status"`
}

type transitionResponse struct {
	EntityType  string `json:"entity_type"`
	EntityID    string `json:"entity_id"`
	PriorStatus string `json:"prior_status"`
	NewStatus   string `json:"new_status"`
	EventID     string `json:"event_id"`
	EventType   string `json:"event_type"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	entityID := chi.URLParam(r, "entityID")

	var req transitionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.OrgID == "" || req.ToStatus == "" {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST",
			errors.New("org_id and to_status are required"))
		return
	}

	result, err := s.engine.Transition(r.Context(), entityType, entityID, req.OrgID, req.ToStatus)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, transitionResponse{
			EntityType:  entityType,
			EntityID:    entityID,
			PriorStatus: result.PriorStatus,
			NewStatus:   result.NewStatus,
			EventID:     result.Event.ID,
			EventType:   result.Event.EventType,
		})
	case statemachine.IsEntityNotFound(err):
		respondError(w, http.StatusNotFound, string(statemachine.CodeEntityNotFound), err)
	case statemachine.IsIllegalTransition(err):
		respondError(w, http.StatusUnprocessableEntity, string(statemachine.CodeIllegalTransition), err)
	case statemachine.IsConcurrentModification(err):
		respondError(w, http.StatusConflict, string(statemachine.CodeConcurrentModification), err)
	default:
		respondError(w, http.StatusInternalServerError, "INTERNAL", err)
	}
}

func (s *Server) handleAvailableTransitions(w http.ResponseWriter, r *http.Request) {
	entityType := chi.URLParam(r, "entityType")
	status := chi.URLParam(r, "status")

	transitions, err := s.engine.AvailableTransitions(r.Context(), entityType, status)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"transitions": transitions})
}
