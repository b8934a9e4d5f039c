package store

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/loomworks/millflow/internal/event"
)

func makeTestEvent(id, orgID string, createdAt time.Time) event.BusinessEvent {
	return event.BusinessEvent{
		ID:         id,
		OrgID:      orgID,
		EventType:  "production_order.confirmed",
		EntityType: "production_order",
		EntityID:   "ord-1",
		Payload: event.Payload{
			"entity_id":    "ord-1",
			"org_id":       orgID,
			"prior_status": "draft",
			"new_status":   "confirmed",
		},
		CreatedAt: createdAt,
	}
}

func TestInsertEvent_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ev := makeTestEvent("evt-1", "org-1", created)
	if err := s.InsertEvent(testCtx, ev); err != nil {
		t.Fatalf("InsertEvent() failed: %v", err)
	}

	got, err := s.GetEvent(testCtx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}

	if got.Status != event.StatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if got.EventType != "production_order.confirmed" {
		t.Errorf("event_type = %q", got.EventType)
	}
	if got.Payload["prior_status"] != "draft" {
		t.Errorf("payload prior_status = %v, want draft", got.Payload["prior_status"])
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, created)
	}
	if got.ProcessedAt != nil {
		t.Errorf("processed_at = %v, want nil", got.ProcessedAt)
	}
}

func TestInsertEvent_Idempotent(t *testing.T) {
	s := newTestStore(t)

	ev := makeTestEvent("evt-1", "org-1", time.Now().UTC())
	if err := s.InsertEvent(testCtx, ev); err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	if err := s.InsertEvent(testCtx, ev); err != nil {
		t.Fatalf("duplicate insert failed: %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM business_events`).Scan(&count); err != nil {
		t.Fatalf("count query failed: %v", err)
	}
	if count != 1 {
		t.Errorf("event count = %d, want 1", count)
	}
}

func TestListPendingEvents_FIFOAndOrgFilter(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// Insert out of chronological order to prove ORDER BY created_at wins.
	for _, e := range []event.BusinessEvent{
		makeTestEvent("evt-c", "org-1", base.Add(2*time.Second)),
		makeTestEvent("evt-a", "org-1", base),
		makeTestEvent("evt-b", "org-2", base.Add(time.Second)),
	} {
		if err := s.InsertEvent(testCtx, e); err != nil {
			t.Fatalf("InsertEvent(%s) failed: %v", e.ID, err)
		}
	}

	all, err := s.ListPendingEvents(testCtx, "", 10)
	if err != nil {
		t.Fatalf("ListPendingEvents() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].ID != "evt-a" || all[1].ID != "evt-b" || all[2].ID != "evt-c" {
		t.Errorf("order = %s,%s,%s, want evt-a,evt-b,evt-c", all[0].ID, all[1].ID, all[2].ID)
	}

	scoped, err := s.ListPendingEvents(testCtx, "org-2", 10)
	if err != nil {
		t.Fatalf("ListPendingEvents(org-2) failed: %v", err)
	}
	if len(scoped) != 1 || scoped[0].ID != "evt-b" {
		t.Errorf("org filter returned %v, want [evt-b]", scoped)
	}

	limited, err := s.ListPendingEvents(testCtx, "", 2)
	if err != nil {
		t.Fatalf("ListPendingEvents(limit=2) failed: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit ignored: len = %d, want 2", len(limited))
	}
}

func TestListPendingEvents_SameSecondFIFO(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	// The older event sits on a whole second and carries the later-sorting
	// ID, so the id tiebreak cannot mask a wrong created_at ordering.
	older := makeTestEvent("evt-z-old", "org-1", base)
	newer := makeTestEvent("evt-a-new", "org-1", base.Add(500*time.Millisecond))
	for _, e := range []event.BusinessEvent{newer, older} {
		if err := s.InsertEvent(testCtx, e); err != nil {
			t.Fatalf("InsertEvent(%s) failed: %v", e.ID, err)
		}
	}

	got, err := s.ListPendingEvents(testCtx, "", 10)
	if err != nil {
		t.Fatalf("ListPendingEvents() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].ID != "evt-z-old" || got[1].ID != "evt-a-new" {
		t.Errorf("order = %s,%s, want evt-z-old,evt-a-new", got[0].ID, got[1].ID)
	}
}

func TestClaimEvent_ExactlyOnce(t *testing.T) {
	s := newTestStore(t)

	ev := makeTestEvent("evt-1", "org-1", time.Now().UTC())
	if err := s.InsertEvent(testCtx, ev); err != nil {
		t.Fatalf("InsertEvent() failed: %v", err)
	}

	const workers = 8
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		claims int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := s.ClaimEvent(testCtx, "evt-1")
			if err != nil {
				t.Errorf("ClaimEvent() failed: %v", err)
				return
			}
			if claimed {
				mu.Lock()
				claims++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if claims != 1 {
		t.Errorf("claims = %d, want exactly 1", claims)
	}

	got, err := s.GetEvent(testCtx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if got.Status != event.StatusProcessing {
		t.Errorf("status = %q, want processing", got.Status)
	}
}

func TestCompleteEvent(t *testing.T) {
	s := newTestStore(t)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	if err := s.InsertEvent(testCtx, makeTestEvent("evt-1", "org-1", time.Now().UTC())); err != nil {
		t.Fatalf("InsertEvent() failed: %v", err)
	}
	if _, err := s.ClaimEvent(testCtx, "evt-1"); err != nil {
		t.Fatalf("ClaimEvent() failed: %v", err)
	}
	if err := s.CompleteEvent(testCtx, "evt-1"); err != nil {
		t.Fatalf("CompleteEvent() failed: %v", err)
	}

	got, err := s.GetEvent(testCtx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if got.Status != event.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
	if got.ProcessedAt == nil {
		t.Fatal("processed_at not set")
	}
	if !got.ProcessedAt.Equal(s.now()) {
		t.Errorf("processed_at = %v, want %v", got.ProcessedAt, s.now())
	}
}

func TestFailAndRetryEvent_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	if err := s.InsertEvent(testCtx, makeTestEvent("evt-1", "org-1", time.Now().UTC())); err != nil {
		t.Fatalf("InsertEvent() failed: %v", err)
	}
	if _, err := s.ClaimEvent(testCtx, "evt-1"); err != nil {
		t.Fatalf("ClaimEvent() failed: %v", err)
	}
	if err := s.FailEvent(testCtx, "evt-1", "journal posting failed"); err != nil {
		t.Fatalf("FailEvent() failed: %v", err)
	}

	failed, err := s.GetEvent(testCtx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if failed.Status != event.StatusFailed {
		t.Errorf("status = %q, want failed", failed.Status)
	}
	if failed.ErrorMessage != "journal posting failed" {
		t.Errorf("error_message = %q", failed.ErrorMessage)
	}
	if failed.ProcessedAt == nil {
		t.Error("processed_at not set on failure")
	}

	if err := s.RetryEvent(testCtx, "evt-1"); err != nil {
		t.Fatalf("RetryEvent() failed: %v", err)
	}

	retried, err := s.GetEvent(testCtx, "evt-1")
	if err != nil {
		t.Fatalf("GetEvent() failed: %v", err)
	}
	if retried.Status != event.StatusPending {
		t.Errorf("status = %q, want pending", retried.Status)
	}
	if retried.ErrorMessage != "" {
		t.Errorf("error_message = %q, want cleared", retried.ErrorMessage)
	}
	if retried.ProcessedAt != nil {
		t.Errorf("processed_at = %v, want cleared", retried.ProcessedAt)
	}
	// The payload snapshot must survive the retry untouched.
	if retried.Payload["prior_status"] != "draft" {
		t.Errorf("payload mutated on retry: %v", retried.Payload)
	}
}

func TestRetryEvent_RejectsNonFailed(t *testing.T) {
	s := newTestStore(t)

	if err := s.InsertEvent(testCtx, makeTestEvent("evt-1", "org-1", time.Now().UTC())); err != nil {
		t.Fatalf("InsertEvent() failed: %v", err)
	}

	err := s.RetryEvent(testCtx, "evt-1")
	if !errors.Is(err, ErrEventNotFailed) {
		t.Errorf("RetryEvent(pending) = %v, want ErrEventNotFailed", err)
	}

	err = s.RetryEvent(testCtx, "no-such-event")
	if !errors.Is(err, ErrEventNotFound) {
		t.Errorf("RetryEvent(missing) = %v, want ErrEventNotFound", err)
	}
}

func TestListRecentEvents_NewestFirst(t *testing.T) {
	s := newTestStore(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"evt-a", "evt-b", "evt-c"} {
		ev := makeTestEvent(id, "org-1", base.Add(time.Duration(i)*time.Second))
		if err := s.InsertEvent(testCtx, ev); err != nil {
			t.Fatalf("InsertEvent(%s) failed: %v", id, err)
		}
	}

	events, err := s.ListRecentEvents(testCtx, 2)
	if err != nil {
		t.Fatalf("ListRecentEvents() failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].ID != "evt-c" || events[1].ID != "evt-b" {
		t.Errorf("order = %s,%s, want evt-c,evt-b", events[0].ID, events[1].ID)
	}
}
