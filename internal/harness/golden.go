package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/loomworks/millflow/internal/event"
	"github.com/loomworks/millflow/internal/store"
)

// RunWithGolden executes a scenario and compares a canonical snapshot of the
// final event log against the golden file named after the scenario.
//
// The snapshot includes each event's ID, type, status, and diagnostic.
// Timestamps are excluded; IDs are deterministic (evt-1, evt-2, ...), so the
// snapshot is byte-stable across runs.
func RunWithGolden(t *testing.T, scenario *Scenario) *Result {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "scenario.db")
	result, err := Run(scenario, dbPath)
	if err != nil {
		t.Fatalf("scenario %s failed: %v", scenario.Name, err)
	}

	s, err := store.Open(dbPath)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s.Close()

	events, err := allEvents(context.Background(), s)
	if err != nil {
		t.Fatalf("load events: %v", err)
	}

	snapshot := make([]any, 0, len(events))
	for _, ev := range events {
		snapshot = append(snapshot, map[string]any{
			"id":            ev.ID,
			"event_type":    ev.EventType,
			"status":        string(ev.Status),
			"error_message": ev.ErrorMessage,
		})
	}

	data, err := event.MarshalCanonical(event.Payload{"events": snapshot})
	if err != nil {
		t.Fatalf("marshal snapshot: %v", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return result
}
