package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/loomworks/millflow/internal/event"
)

// UpsertTransition adds an edge to the state-machine table.
// Idempotent via the UNIQUE(entity_type, from_status, to_status) constraint.
func (s *Store) UpsertTransition(ctx context.Context, t event.Transition) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO state_transitions (entity_type, from_status, to_status)
		VALUES (?, ?, ?)
		ON CONFLICT(entity_type, from_status, to_status) DO NOTHING
	`, t.EntityType, t.FromStatus, t.ToStatus)
	if err != nil {
		return fmt.Errorf("upsert transition: %w", err)
	}
	return nil
}

// TransitionExists reports whether an edge is defined.
func (s *Store) TransitionExists(ctx context.Context, entityType, fromStatus, toStatus string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM state_transitions
		WHERE entity_type = ? AND from_status = ? AND to_status = ?
	`, entityType, fromStatus, toStatus).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check transition: %w", err)
	}
	return count > 0, nil
}

// AvailableTransitions returns every legal outgoing edge for
// (entityType, fromStatus), ordered by to_status for stable output.
//
// This reads the exact table ApplyTransition validates against, so callers
// rendering next actions can never disagree with the engine about legality.
func (s *Store) AvailableTransitions(ctx context.Context, entityType, fromStatus string) ([]event.Transition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT entity_type, from_status, to_status
		FROM state_transitions
		WHERE entity_type = ? AND from_status = ?
		ORDER BY to_status ASC
	`, entityType, fromStatus)
	if err != nil {
		return nil, fmt.Errorf("query available transitions: %w", err)
	}
	defer rows.Close()

	transitions := []event.Transition{}
	for rows.Next() {
		var t event.Transition
		if err := rows.Scan(&t.EntityType, &t.FromStatus, &t.ToStatus); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		transitions = append(transitions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}

	return transitions, nil
}

// ApplyTransitionParams carries one state-transition request.
// EventID must be pre-generated by the caller so the enqueued event's
// identity is known before the transaction commits.
type ApplyTransitionParams struct {
	EntityType string
	EntityID   string
	OrgID      string
	ToStatus   string
	EventID    string
	// ExtraAttrs are merged into the entity's attrs on success, e.g. a
	// confirmed_at timestamp for status-specific bookkeeping.
	ExtraAttrs map[string]any
}

// ApplyTransition validates and commits a state transition atomically:
//
//  1. Read the entity's current status and attrs, scoped to the tenant.
//  2. Confirm the (entity_type, current, to) edge exists in state_transitions.
//  3. Conditionally update the entity's status (WHERE status = current) -
//     zero rows affected means a concurrent transition won the race.
//  4. Enqueue one pending business event whose payload snapshots the entity.
//
// All four steps share one transaction, so a transition is never recorded
// without its automation event and vice versa. Returns the prior status and
// the enqueued event.
//
// Error mapping: ErrEntityNotFound, ErrTransitionNotDefined (no mutation
// occurred), ErrStatusConflict (caller may re-read and retry).
func (s *Store) ApplyTransition(ctx context.Context, p ApplyTransitionParams) (string, event.BusinessEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", event.BusinessEvent{}, fmt.Errorf("apply transition: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// Step 1: current status + attrs, tenant-scoped.
	var (
		priorStatus string
		attrsJSON   string
	)
	err = tx.QueryRowContext(ctx, `
		SELECT status, attrs FROM entities
		WHERE entity_type = ? AND id = ? AND org_id = ?
	`, p.EntityType, p.EntityID, p.OrgID).Scan(&priorStatus, &attrsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return "", event.BusinessEvent{}, fmt.Errorf("apply transition %s/%s: %w", p.EntityType, p.EntityID, ErrEntityNotFound)
	}
	if err != nil {
		return "", event.BusinessEvent{}, fmt.Errorf("apply transition: read entity: %w", err)
	}

	// Step 2: the edge must be declared. A self-loop is legal only when
	// explicitly modeled as a row.
	var edgeCount int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM state_transitions
		WHERE entity_type = ? AND from_status = ? AND to_status = ?
	`, p.EntityType, priorStatus, p.ToStatus).Scan(&edgeCount)
	if err != nil {
		return "", event.BusinessEvent{}, fmt.Errorf("apply transition: check edge: %w", err)
	}
	if edgeCount == 0 {
		return priorStatus, event.BusinessEvent{}, fmt.Errorf(
			"apply transition %s: %s -> %s: %w",
			p.EntityType, priorStatus, p.ToStatus, ErrTransitionNotDefined,
		)
	}

	// Step 3: conditional write. The WHERE status = prior clause serializes
	// concurrent transitions on the same entity.
	attrs, err := event.UnmarshalPayload([]byte(attrsJSON))
	if err != nil {
		return "", event.BusinessEvent{}, fmt.Errorf("apply transition: %w", err)
	}
	for k, v := range p.ExtraAttrs {
		attrs[k] = v
	}
	mergedAttrs, err := event.MarshalCanonical(attrs)
	if err != nil {
		return "", event.BusinessEvent{}, fmt.Errorf("apply transition: %w", err)
	}

	now := s.now()
	result, err := tx.ExecContext(ctx, `
		UPDATE entities
		SET status = ?, attrs = ?, status_changed_at = ?
		WHERE entity_type = ? AND id = ? AND org_id = ? AND status = ?
	`, p.ToStatus, string(mergedAttrs), timeText(now),
		p.EntityType, p.EntityID, p.OrgID, priorStatus)
	if err != nil {
		return "", event.BusinessEvent{}, fmt.Errorf("apply transition: update status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return "", event.BusinessEvent{}, fmt.Errorf("apply transition: rows affected: %w", err)
	}
	if affected == 0 {
		return priorStatus, event.BusinessEvent{}, fmt.Errorf(
			"apply transition %s/%s: %w", p.EntityType, p.EntityID, ErrStatusConflict,
		)
	}

	// Step 4: enqueue the automation event in the same transaction.
	ev := event.BusinessEvent{
		ID:         p.EventID,
		OrgID:      p.OrgID,
		EventType:  event.TypeFor(p.EntityType, p.ToStatus),
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		Payload: event.Payload{
			event.PayloadEntityID:    p.EntityID,
			event.PayloadOrgID:       p.OrgID,
			event.PayloadPriorStatus: priorStatus,
			event.PayloadNewStatus:   p.ToStatus,
			event.PayloadAttrs:       map[string]any(attrs),
		},
		Status:    event.StatusPending,
		CreatedAt: now,
	}

	payloadJSON, err := event.MarshalCanonical(ev.Payload)
	if err != nil {
		return "", event.BusinessEvent{}, fmt.Errorf("apply transition: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO business_events
		(id, org_id, event_type, entity_type, entity_id, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 'pending', ?)
	`,
		ev.ID, ev.OrgID, ev.EventType, ev.EntityType, ev.EntityID,
		string(payloadJSON), timeText(now),
	)
	if err != nil {
		return "", event.BusinessEvent{}, fmt.Errorf("apply transition: enqueue event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", event.BusinessEvent{}, fmt.Errorf("apply transition: commit: %w", err)
	}

	return priorStatus, ev, nil
}
