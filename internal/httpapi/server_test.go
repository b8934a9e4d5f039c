package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomworks/millflow/internal/actions"
	"github.com/loomworks/millflow/internal/dispatch"
	"github.com/loomworks/millflow/internal/event"
	"github.com/loomworks/millflow/internal/metrics"
	"github.com/loomworks/millflow/internal/statemachine"
	"github.com/loomworks/millflow/internal/store"
)

// newTestServer wires a full stack on a temp database: seeded order chain,
// one draft order entity, and the built-in actions registered.
func newTestServer(t *testing.T) (*httptest.Server, *store.Store) {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	chain := []string{"draft", "confirmed", "materials_reserved", "started", "in_progress", "completed", "closed"}
	for i := 0; i < len(chain)-1; i++ {
		require.NoError(t, s.UpsertTransition(ctx, event.Transition{
			EntityType: "production_order",
			FromStatus: chain[i],
			ToStatus:   chain[i+1],
		}))
	}
	require.NoError(t, s.UpsertHandler(ctx, event.Handler{
		EventType:       "production_order.confirmed",
		HandlerFunction: actions.NameCreateJournalEntryFromOrder,
		Priority:        10,
		Enabled:         true,
	}))
	require.NoError(t, s.UpsertEntity(ctx, store.Entity{
		EntityType: "production_order",
		ID:         "ord-1",
		OrgID:      "org-1",
		Status:     "draft",
		Attrs: map[string]any{
			"total_amount": 12500.0,
			"order_number": "PO-2026-001",
		},
	}))

	reg := dispatch.NewActionRegistry()
	require.NoError(t, actions.RegisterAll(reg, s))

	promReg := prometheus.NewRegistry()
	dispatcher := dispatch.New(s, reg, dispatch.WithMetrics(metrics.NewDispatcher(promReg)))
	engine := statemachine.New(s, nil)

	srv := New(s, engine, dispatcher, promReg, 10)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	return ts, s
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransitionEndpoint(t *testing.T) {
	ts, s := newTestServer(t)

	resp := postJSON(t, ts.URL+"/entities/production_order/ord-1/transition", map[string]string{
		"org_id":    "org-1",
		"to_status": "confirmed",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body transitionResponse
	decodeJSON(t, resp, &body)
	assert.Equal(t, "draft", body.PriorStatus)
	assert.Equal(t, "confirmed", body.NewStatus)
	assert.Equal(t, "production_order.confirmed", body.EventType)
	assert.NotEmpty(t, body.EventID)

	status, err := s.GetEntityStatus(context.Background(), "production_order", "ord-1", "org-1")
	require.NoError(t, err)
	assert.Equal(t, "confirmed", status)

	pending, err := s.ListPendingEvents(context.Background(), "org-1", 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestTransitionEndpoint_IllegalEdge(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/entities/production_order/ord-1/transition", map[string]string{
		"org_id":    "org-1",
		"to_status": "completed",
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body errorBody
	decodeJSON(t, resp, &body)
	assert.Equal(t, "ILLEGAL_TRANSITION", body.Code)
}

func TestTransitionEndpoint_EntityNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/entities/production_order/ord-missing/transition", map[string]string{
		"org_id":    "org-1",
		"to_status": "confirmed",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTransitionEndpoint_TenantMismatchIsNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/entities/production_order/ord-1/transition", map[string]string{
		"org_id":    "org-2",
		"to_status": "confirmed",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestTransitionEndpoint_MissingFields(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/entities/production_order/ord-1/transition", map[string]string{
		"to_status": "confirmed",
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestProcessEndpoint_RunsAutomation(t *testing.T) {
	ts, s := newTestServer(t)

	resp := postJSON(t, ts.URL+"/entities/production_order/ord-1/transition", map[string]string{
		"org_id":    "org-1",
		"to_status": "confirmed",
	})
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, ts.URL+"/events/process", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result dispatch.BatchResult
	decodeJSON(t, resp, &result)
	assert.Equal(t, dispatch.BatchResult{Processed: 1, Failed: 0, Total: 1}, result)

	// The journal action posted during the dispatch pass.
	exists, err := s.HasJournalEntryForSource(context.Background(), "org-1", "production_order", "ord-1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestListEventsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/entities/production_order/ord-1/transition", map[string]string{
		"org_id":    "org-1",
		"to_status": "confirmed",
	})
	resp.Body.Close()

	r, err := http.Get(ts.URL + "/events?limit=5")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, r.StatusCode)

	var body struct {
		Events []event.BusinessEvent `json:"events"`
	}
	decodeJSON(t, r, &body)
	require.Len(t, body.Events, 1)
	assert.Equal(t, "production_order.confirmed", body.Events[0].EventType)
}

func TestListEventsEndpoint_BadLimit(t *testing.T) {
	ts, _ := newTestServer(t)

	r, err := http.Get(ts.URL + "/events?limit=zero")
	require.NoError(t, err)
	defer r.Body.Close()
	assert.Equal(t, http.StatusBadRequest, r.StatusCode)
}

func TestRetryEndpoint(t *testing.T) {
	ts, s := newTestServer(t)
	ctx := context.Background()

	// Seed a failed event directly.
	require.NoError(t, s.InsertEvent(ctx, event.BusinessEvent{
		ID:         "evt-1",
		OrgID:      "org-1",
		EventType:  "production_order.confirmed",
		EntityType: "production_order",
		EntityID:   "ord-1",
		Payload:    event.Payload{event.PayloadEntityID: "ord-1"},
	}))
	claimed, err := s.ClaimEvent(ctx, "evt-1")
	require.NoError(t, err)
	require.True(t, claimed)
	require.NoError(t, s.FailEvent(ctx, "evt-1", "boom"))

	resp := postJSON(t, ts.URL+"/events/evt-1/retry", nil)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ev, err := s.GetEvent(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, event.StatusPending, ev.Status)
}

func TestRetryEndpoint_NotFailed(t *testing.T) {
	ts, s := newTestServer(t)

	require.NoError(t, s.InsertEvent(context.Background(), event.BusinessEvent{
		ID:         "evt-1",
		OrgID:      "org-1",
		EventType:  "production_order.confirmed",
		EntityType: "production_order",
		EntityID:   "ord-1",
		Payload:    event.Payload{},
	}))

	resp := postJSON(t, ts.URL+"/events/evt-1/retry", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRetryEndpoint_NotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := postJSON(t, ts.URL+"/events/evt-missing/retry", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAvailableTransitionsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	r, err := http.Get(ts.URL + "/transitions/production_order/draft")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, r.StatusCode)

	var body struct {
		Transitions []event.Transition `json:"transitions"`
	}
	decodeJSON(t, r, &body)
	require.Len(t, body.Transitions, 1)
	assert.Equal(t, "confirmed", body.Transitions[0].ToStatus)
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t)

	r, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer r.Body.Close()
	assert.Equal(t, http.StatusOK, r.StatusCode)
}
