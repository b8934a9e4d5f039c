package store

import (
	"testing"

	"github.com/loomworks/millflow/internal/event"
)

func TestResolveHandlers_PriorityThenInsertionOrder(t *testing.T) {
	s := newTestStore(t)

	handlers := []event.Handler{
		{EventType: "production_order.confirmed", HandlerFunction: "check_inventory_for_order", Priority: 2, Enabled: true},
		{EventType: "production_order.confirmed", HandlerFunction: "create_journal_entry_from_order", Priority: 1, Enabled: true},
		// Same priority as the journal handler but inserted later: ties
		// break by insertion order, so it must come second among the 1s.
		{EventType: "production_order.confirmed", HandlerFunction: "notify_planning", Priority: 1, Enabled: true},
	}
	for _, h := range handlers {
		if err := s.UpsertHandler(testCtx, h); err != nil {
			t.Fatalf("UpsertHandler() failed: %v", err)
		}
	}

	got, err := s.ResolveHandlers(testCtx, "production_order.confirmed")
	if err != nil {
		t.Fatalf("ResolveHandlers() failed: %v", err)
	}

	want := []string{"create_journal_entry_from_order", "notify_planning", "check_inventory_for_order"}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].HandlerFunction != name {
			t.Errorf("handler[%d] = %q, want %q", i, got[i].HandlerFunction, name)
		}
	}
}

func TestResolveHandlers_SkipsDisabled(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertHandler(testCtx, event.Handler{
		EventType:       "invoice.posted",
		HandlerFunction: "create_journal_entry_from_order",
		Priority:        1,
		Enabled:         true,
	}); err != nil {
		t.Fatalf("UpsertHandler() failed: %v", err)
	}

	if err := s.SetHandlerEnabled(testCtx, "invoice.posted", "create_journal_entry_from_order", false); err != nil {
		t.Fatalf("SetHandlerEnabled() failed: %v", err)
	}

	got, err := s.ResolveHandlers(testCtx, "invoice.posted")
	if err != nil {
		t.Fatalf("ResolveHandlers() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("disabled handler resolved: %v", got)
	}

	// Re-enabling takes effect immediately, no restart needed.
	if err := s.SetHandlerEnabled(testCtx, "invoice.posted", "create_journal_entry_from_order", true); err != nil {
		t.Fatalf("SetHandlerEnabled() failed: %v", err)
	}
	got, err = s.ResolveHandlers(testCtx, "invoice.posted")
	if err != nil {
		t.Fatalf("ResolveHandlers() failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("re-enabled handler not resolved: %v", got)
	}
}

func TestResolveHandlers_ExactMatchOnly(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertHandler(testCtx, event.Handler{
		EventType:       "production_order.confirmed",
		HandlerFunction: "create_journal_entry_from_order",
		Priority:        1,
		Enabled:         true,
	}); err != nil {
		t.Fatalf("UpsertHandler() failed: %v", err)
	}

	// No prefix or pattern matching.
	got, err := s.ResolveHandlers(testCtx, "production_order.completed")
	if err != nil {
		t.Fatalf("ResolveHandlers() failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("unexpected match for different event type: %v", got)
	}
}
