package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/loomworks/millflow/internal/event"
)

// Entity is a row in the entity store collaborator: a domain record whose
// status column the automation engine reads and conditionally writes.
// Attrs carries the module-specific fields (amounts, material lists) the
// handler actions snapshot into event payloads.
type Entity struct {
	EntityType string
	ID         string
	OrgID      string
	Status     string
	Attrs      map[string]any
}

// UpsertEntity inserts or replaces an entity row.
// Seeding and tests use this; the engine itself only touches status.
func (s *Store) UpsertEntity(ctx context.Context, e Entity) error {
	attrsJSON, err := event.MarshalCanonical(event.Payload(e.Attrs))
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entities (entity_type, id, org_id, status, attrs, status_changed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(entity_type, id) DO UPDATE SET
			org_id = excluded.org_id,
			status = excluded.status,
			attrs = excluded.attrs,
			status_changed_at = excluded.status_changed_at
	`,
		e.EntityType, e.ID, e.OrgID, e.Status, string(attrsJSON), timeText(s.now()),
	)
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}

	return nil
}

// GetEntity retrieves an entity scoped to a tenant.
// An entity belonging to another tenant is reported as not found.
func (s *Store) GetEntity(ctx context.Context, entityType, entityID, orgID string) (Entity, error) {
	var (
		e         Entity
		attrsJSON string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT entity_type, id, org_id, status, attrs
		FROM entities
		WHERE entity_type = ? AND id = ? AND org_id = ?
	`, entityType, entityID, orgID).Scan(&e.EntityType, &e.ID, &e.OrgID, &e.Status, &attrsJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Entity{}, fmt.Errorf("get entity %s/%s: %w", entityType, entityID, ErrEntityNotFound)
	}
	if err != nil {
		return Entity{}, fmt.Errorf("get entity: %w", err)
	}

	attrs, err := event.UnmarshalPayload([]byte(attrsJSON))
	if err != nil {
		return Entity{}, fmt.Errorf("get entity: %w", err)
	}
	e.Attrs = attrs

	return e, nil
}

// GetEntityStatus returns just the status column, tenant-scoped.
func (s *Store) GetEntityStatus(ctx context.Context, entityType, entityID, orgID string) (string, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `
		SELECT status FROM entities
		WHERE entity_type = ? AND id = ? AND org_id = ?
	`, entityType, entityID, orgID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("get status %s/%s: %w", entityType, entityID, ErrEntityNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get status: %w", err)
	}
	return status, nil
}
