// Package statemachine implements the table-driven state-transition engine.
//
// A transition is validated against the state_transitions table, committed
// with a conditional status write, and recorded as one pending business
// event - all inside a single storage transaction. Transition success and
// automation success are deliberately separate: a production order is
// legitimately confirmed even if the journal-entry automation later fails
// and needs a manual retry.
package statemachine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/loomworks/millflow/internal/event"
	"github.com/loomworks/millflow/internal/store"
)

// EventIDGenerator generates unique IDs for enqueued business events.
// Implemented by UUIDGenerator (production) and fixed generators in tests.
type EventIDGenerator interface {
	Generate() string
}

// UUIDGenerator generates random UUID event IDs.
type UUIDGenerator struct{}

// Generate returns a new UUID string.
func (UUIDGenerator) Generate() string {
	return uuid.NewString()
}

// Result is the outcome of a successful transition.
type Result struct {
	NewStatus   string
	PriorStatus string
	Event       event.BusinessEvent
}

// Engine validates and applies entity state transitions.
//
// Every operation takes an explicit orgID; the engine never infers tenant
// scope from ambient state.
type Engine struct {
	store *store.Store
	idGen EventIDGenerator
	now   func() time.Time
}

// New creates an Engine backed by the given store.
func New(s *store.Store, idGen EventIDGenerator) *Engine {
	if idGen == nil {
		idGen = UUIDGenerator{}
	}
	return &Engine{
		store: s,
		idGen: idGen,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Transition moves an entity to toStatus if the edge from its current status
// is declared in the state-machine table.
//
// On success the entity's status is updated, a "<toStatus>_at" timestamp is
// merged into its attrs, and exactly one pending business event is enqueued
// in the same transaction. The event's payload snapshots the entity at
// enqueue time and is never re-read during processing.
//
// Failures are typed: IllegalTransition (no mutation occurred),
// ConcurrentModification (lost a race; re-read and retry), EntityNotFound
// (includes entities belonging to other tenants).
func (e *Engine) Transition(ctx context.Context, entityType, entityID, orgID, toStatus string) (Result, error) {
	if orgID == "" {
		return Result{}, fmt.Errorf("transition %s/%s: org ID is required", entityType, entityID)
	}

	prior, ev, err := e.store.ApplyTransition(ctx, store.ApplyTransitionParams{
		EntityType: entityType,
		EntityID:   entityID,
		OrgID:      orgID,
		ToStatus:   toStatus,
		EventID:    e.idGen.Generate(),
		ExtraAttrs: map[string]any{
			toStatus + "_at": e.now().Format(time.RFC3339),
		},
	})
	if err != nil {
		return Result{}, e.mapStoreError(err, entityType, entityID, prior, toStatus)
	}

	slog.Info("state transition applied",
		"entity_type", entityType,
		"entity_id", entityID,
		"org_id", orgID,
		"from", prior,
		"to", toStatus,
		"event_id", ev.ID,
		"event_type", ev.EventType,
	)

	return Result{
		NewStatus:   toStatus,
		PriorStatus: prior,
		Event:       ev,
	}, nil
}

// AvailableTransitions returns the legal outgoing edges for
// (entityType, fromStatus). It reads the exact table Transition validates
// against, so callers rendering next actions can never disagree with the
// engine about legality.
func (e *Engine) AvailableTransitions(ctx context.Context, entityType, fromStatus string) ([]event.Transition, error) {
	return e.store.AvailableTransitions(ctx, entityType, fromStatus)
}

// mapStoreError translates store sentinels into the transition taxonomy.
func (e *Engine) mapStoreError(err error, entityType, entityID, fromStatus, toStatus string) error {
	switch {
	case errors.Is(err, store.ErrTransitionNotDefined):
		return &TransitionError{
			Code:       CodeIllegalTransition,
			EntityType: entityType,
			EntityID:   entityID,
			FromStatus: fromStatus,
			ToStatus:   toStatus,
			Err:        err,
		}
	case errors.Is(err, store.ErrStatusConflict):
		return &TransitionError{
			Code:       CodeConcurrentModification,
			EntityType: entityType,
			EntityID:   entityID,
			FromStatus: fromStatus,
			ToStatus:   toStatus,
			Err:        err,
		}
	case errors.Is(err, store.ErrEntityNotFound):
		return &TransitionError{
			Code:       CodeEntityNotFound,
			EntityType: entityType,
			EntityID:   entityID,
			ToStatus:   toStatus,
			Err:        err,
		}
	default:
		return fmt.Errorf("transition %s/%s: %w", entityType, entityID, err)
	}
}
