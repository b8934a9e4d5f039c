// Package httpapi exposes the engine and dispatcher over HTTP. It is a thin
// JSON layer: validation, routing, and status-code mapping live here; all
// semantics live in the engine, dispatcher, and store.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/loomworks/millflow/internal/dispatch"
	"github.com/loomworks/millflow/internal/statemachine"
	"github.com/loomworks/millflow/internal/store"
)

// Server holds the HTTP handler dependencies.
type Server struct {
	store      *store.Store
	engine     *statemachine.Engine
	dispatcher *dispatch.Dispatcher
	registry   *prometheus.Registry
	batchLimit int
}

// New creates a Server. registry may be nil to omit the /metrics endpoint.
func New(s *store.Store, engine *statemachine.Engine, dispatcher *dispatch.Dispatcher, registry *prometheus.Registry, batchLimit int) *Server {
	return &Server{
		store:      s,
		engine:     engine,
		dispatcher: dispatcher,
		registry:   registry,
		batchLimit: batchLimit,
	}
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	r.Route("/events", func(r chi.Router) {
		r.Get("/", s.handleListEvents)
		r.Post("/process", s.handleProcess)
		r.Post("/{eventID}/retry", s.handleRetry)
	})

	r.Post("/entities/{entityType}/{entityID}/transition", s.handleTransition)
	r.Get("/transitions/{entityType}/{status}", s.handleAvailableTransitions)

	return r
}

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code string, err error) {
	respondJSON(w, status, errorBody{Error: err.Error(), Code: code})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "BAD_REQUEST", err)
		return false
	}
	return true
}
