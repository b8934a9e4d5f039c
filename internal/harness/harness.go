// Package harness executes YAML conformance scenarios against a real stack:
// store, engine, dispatcher, and the built-in actions, wired exactly as in
// production but on a throwaway database with deterministic event IDs.
package harness

import (
	"context"
	"fmt"
	"sort"

	"github.com/loomworks/millflow/internal/actions"
	"github.com/loomworks/millflow/internal/dispatch"
	"github.com/loomworks/millflow/internal/event"
	"github.com/loomworks/millflow/internal/statemachine"
	"github.com/loomworks/millflow/internal/store"
)

// Result summarizes one scenario run.
type Result struct {
	Processed int      // events that completed across all dispatch passes
	Failed    int      // events that ended failed across all dispatch passes
	Failures  []string // assertion failures; empty means the scenario passed
}

// Passed reports whether every assertion held.
func (r *Result) Passed() bool {
	return len(r.Failures) == 0
}

// seqGenerator issues evt-1, evt-2, ... so scenario runs are reproducible.
type seqGenerator struct {
	n int
}

func (g *seqGenerator) Generate() string {
	g.n++
	return fmt.Sprintf("evt-%d", g.n)
}

// Run executes a scenario against a fresh database at dbPath.
//
// Flow errors the scenario did not declare via expect_error abort the run;
// assertion failures do not abort, they accumulate in Result.Failures.
func Run(scenario *Scenario, dbPath string) (*Result, error) {
	ctx := context.Background()

	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	if err := seedScenario(ctx, s, scenario); err != nil {
		return nil, err
	}

	reg := dispatch.NewActionRegistry()
	if err := actions.RegisterAll(reg, s); err != nil {
		return nil, fmt.Errorf("register actions: %w", err)
	}
	engine := statemachine.New(s, &seqGenerator{})
	dispatcher := dispatch.New(s, reg)

	result := &Result{}
	for i, step := range scenario.Flow {
		if err := runStep(ctx, engine, dispatcher, step, result); err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	for i, a := range scenario.Assertions {
		if failure, err := checkAssertion(ctx, s, a); err != nil {
			return nil, fmt.Errorf("assertions[%d]: %w", i, err)
		} else if failure != "" {
			result.Failures = append(result.Failures, fmt.Sprintf("assertions[%d]: %s", i, failure))
		}
	}

	return result, nil
}

func seedScenario(ctx context.Context, s *store.Store, scenario *Scenario) error {
	for _, tr := range scenario.Seed.TransitionRows() {
		if err := s.UpsertTransition(ctx, tr); err != nil {
			return fmt.Errorf("seed transition: %w", err)
		}
	}
	for _, h := range scenario.Seed.HandlerRows() {
		if err := s.UpsertHandler(ctx, h); err != nil {
			return fmt.Errorf("seed handler: %w", err)
		}
	}
	for _, e := range scenario.Entities {
		if err := s.UpsertEntity(ctx, store.Entity{
			EntityType: e.EntityType,
			ID:         e.ID,
			OrgID:      e.OrgID,
			Status:     e.Status,
			Attrs:      e.Attrs,
		}); err != nil {
			return fmt.Errorf("seed entity: %w", err)
		}
	}
	for _, item := range scenario.Inventory {
		if err := s.UpsertInventoryItem(ctx, store.InventoryItem{
			OrgID:        item.OrgID,
			MaterialCode: item.MaterialCode,
			OnHand:       item.OnHand,
		}); err != nil {
			return fmt.Errorf("seed inventory: %w", err)
		}
	}
	return nil
}

func runStep(ctx context.Context, engine *statemachine.Engine, dispatcher *dispatch.Dispatcher, step Step, result *Result) error {
	switch {
	case step.Transition != nil:
		tr := step.Transition
		_, err := engine.Transition(ctx, tr.EntityType, tr.EntityID, tr.OrgID, tr.To)
		if tr.ExpectError == "" {
			if err != nil {
				return fmt.Errorf("transition %s/%s -> %s: %w", tr.EntityType, tr.EntityID, tr.To, err)
			}
			return nil
		}
		if err == nil {
			return fmt.Errorf("transition %s/%s -> %s: expected %s, got success",
				tr.EntityType, tr.EntityID, tr.To, tr.ExpectError)
		}
		if code := transitionCode(err); code != tr.ExpectError {
			return fmt.Errorf("transition %s/%s -> %s: expected %s, got %s",
				tr.EntityType, tr.EntityID, tr.To, tr.ExpectError, code)
		}
		return nil

	case step.Process != nil:
		batch, err := dispatcher.ProcessPending(ctx, step.Process.OrgID, step.Process.Limit)
		if err != nil {
			return fmt.Errorf("process: %w", err)
		}
		result.Processed += batch.Processed
		result.Failed += batch.Failed
		return nil

	case step.Retry != nil:
		if err := dispatcher.Retry(ctx, step.Retry.EventID); err != nil {
			return fmt.Errorf("retry %s: %w", step.Retry.EventID, err)
		}
		return nil
	}

	return fmt.Errorf("empty step")
}

func transitionCode(err error) string {
	switch {
	case statemachine.IsIllegalTransition(err):
		return string(statemachine.CodeIllegalTransition)
	case statemachine.IsConcurrentModification(err):
		return string(statemachine.CodeConcurrentModification)
	case statemachine.IsEntityNotFound(err):
		return string(statemachine.CodeEntityNotFound)
	default:
		return "TRANSITION_FAILED"
	}
}

// checkAssertion returns a non-empty failure description when the assertion
// does not hold, and an error only for infrastructure problems.
func checkAssertion(ctx context.Context, s *store.Store, a Assertion) (string, error) {
	switch a.Type {
	case AssertEntityStatus:
		status, err := s.GetEntityStatus(ctx, a.EntityType, a.EntityID, a.OrgID)
		if err != nil {
			return "", err
		}
		if status != a.Status {
			return fmt.Sprintf("entity %s/%s: status %q, want %q", a.EntityType, a.EntityID, status, a.Status), nil
		}
		return "", nil

	case AssertEventStatusCount:
		events, err := allEvents(ctx, s)
		if err != nil {
			return "", err
		}
		count := 0
		for _, ev := range events {
			if string(ev.Status) == a.Status {
				count++
			}
		}
		if count != a.Count {
			return fmt.Sprintf("%d events with status %q, want %d", count, a.Status, a.Count), nil
		}
		return "", nil

	case AssertJournalExists:
		exists, err := s.HasJournalEntryForSource(ctx, a.OrgID, a.SourceType, a.SourceID)
		if err != nil {
			return "", err
		}
		if !exists {
			return fmt.Sprintf("no journal entry for %s/%s", a.SourceType, a.SourceID), nil
		}
		return "", nil

	case AssertAlertCount:
		alerts, err := s.ListInventoryAlerts(ctx, a.OrgID, a.OrderID)
		if err != nil {
			return "", err
		}
		if len(alerts) != a.Count {
			return fmt.Sprintf("%d inventory alerts for order %s, want %d", len(alerts), a.OrderID, a.Count), nil
		}
		return "", nil
	}

	return "", fmt.Errorf("unknown assertion type %q", a.Type)
}

// allEvents loads the full event log, sorted by ID for deterministic
// iteration.
func allEvents(ctx context.Context, s *store.Store) ([]event.BusinessEvent, error) {
	events, err := s.ListRecentEvents(ctx, 1000)
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	return events, nil
}
