package store

import (
	"context"
	"fmt"

	"github.com/loomworks/millflow/internal/event"
)

// UpsertHandler registers a handler row, updating priority/enabled if the
// (event_type, handler_function) pair already exists.
func (s *Store) UpsertHandler(ctx context.Context, h event.Handler) error {
	enabled := 0
	if h.Enabled {
		enabled = 1
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO event_handlers (event_type, handler_function, priority, enabled)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(event_type, handler_function) DO UPDATE SET
			priority = excluded.priority,
			enabled = excluded.enabled
	`, h.EventType, h.HandlerFunction, h.Priority, enabled)
	if err != nil {
		return fmt.Errorf("upsert handler: %w", err)
	}

	return nil
}

// SetHandlerEnabled toggles a handler without removing it from the registry.
// Disabled handlers are skipped at dispatch time but keep their row.
func (s *Store) SetHandlerEnabled(ctx context.Context, eventType, handlerFunction string, enabled bool) error {
	v := 0
	if enabled {
		v = 1
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE event_handlers SET enabled = ?
		WHERE event_type = ? AND handler_function = ?
	`, v, eventType, handlerFunction)
	if err != nil {
		return fmt.Errorf("set handler enabled: %w", err)
	}

	return nil
}

// ResolveHandlers returns the enabled handlers for an event type, ordered by
// priority (lower first) with insertion order breaking ties. Matching is an
// exact event_type string comparison; there is no pattern matching.
//
// This queries live rows on every call, so enabled/priority edits take
// effect without a restart.
func (s *Store) ResolveHandlers(ctx context.Context, eventType string) ([]event.Handler, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, handler_function, priority, enabled
		FROM event_handlers
		WHERE event_type = ? AND enabled = 1
		ORDER BY priority ASC, id ASC
	`, eventType)
	if err != nil {
		return nil, fmt.Errorf("resolve handlers: %w", err)
	}
	defer rows.Close()

	handlers := []event.Handler{}
	for rows.Next() {
		var (
			h       event.Handler
			enabled int
		)
		if err := rows.Scan(&h.ID, &h.EventType, &h.HandlerFunction, &h.Priority, &enabled); err != nil {
			return nil, fmt.Errorf("scan handler: %w", err)
		}
		h.Enabled = enabled != 0
		handlers = append(handlers, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate handlers: %w", err)
	}

	return handlers, nil
}
