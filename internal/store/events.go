package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/loomworks/millflow/internal/event"
)

// InsertEvent appends a business event to the log with status pending.
// Used by collaborators that detect a fact worth automating outside the
// state-transition engine; the engine itself enqueues through ApplyTransition
// so the enqueue shares the transition's transaction.
//
// CreatedAt defaults to now when zero. Uses ON CONFLICT(id) DO NOTHING for
// idempotency - re-inserting the same event ID is a no-op.
func (s *Store) InsertEvent(ctx context.Context, ev event.BusinessEvent) error {
	payloadJSON, err := event.MarshalCanonical(ev.Payload)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	createdAt := ev.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}

	status := ev.Status
	if status == "" {
		status = event.StatusPending
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO business_events
		(id, org_id, event_type, entity_type, entity_id, payload, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.OrgID,
		ev.EventType,
		ev.EntityType,
		ev.EntityID,
		string(payloadJSON),
		string(status),
		timeText(createdAt),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}

	return nil
}

// ListPendingEvents returns up to limit pending events, oldest first.
// Pass orgID "" to select across all tenants (the cron dispatch path).
// FIFO by created_at; id breaks ties deterministically.
func (s *Store) ListPendingEvents(ctx context.Context, orgID string, limit int) ([]event.BusinessEvent, error) {
	query := `
		SELECT id, org_id, event_type, entity_type, entity_id, payload,
		       status, error_message, created_at, processed_at
		FROM business_events
		WHERE status = 'pending'
	`
	args := []any{}
	if orgID != "" {
		query += ` AND org_id = ?`
		args = append(args, orgID)
	}
	query += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ClaimEvent atomically transitions an event from pending to processing.
// The conditional WHERE status = 'pending' is the sole concurrency guard:
// under N concurrent dispatcher workers exactly one claim succeeds.
// Returns false if another worker already claimed the event (or it left the
// pending state for any other reason).
func (s *Store) ClaimEvent(ctx context.Context, eventID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE business_events
		SET status = 'processing'
		WHERE id = ? AND status = 'pending'
	`, eventID)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim event: rows affected: %w", err)
	}

	return affected > 0, nil
}

// CompleteEvent marks a processing event as completed.
// Only the claimant calls this; no other writer touches a processing event.
func (s *Store) CompleteEvent(ctx context.Context, eventID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE business_events
		SET status = 'completed', error_message = NULL, processed_at = ?
		WHERE id = ? AND status = 'processing'
	`, timeText(s.now()), eventID)
	if err != nil {
		return fmt.Errorf("complete event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete event: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("complete event %s: %w", eventID, ErrEventNotFound)
	}

	return nil
}

// FailEvent marks a processing event as failed with a diagnostic message.
// The event is not auto-requeued; RetryEvent is the only way back to pending.
func (s *Store) FailEvent(ctx context.Context, eventID, errorMessage string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE business_events
		SET status = 'failed', error_message = ?, processed_at = ?
		WHERE id = ? AND status = 'processing'
	`, errorMessage, timeText(s.now()), eventID)
	if err != nil {
		return fmt.Errorf("fail event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("fail event: rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("fail event %s: %w", eventID, ErrEventNotFound)
	}

	return nil
}

// RetryEvent resets a failed event to pending, clearing the diagnostic and
// processing timestamp. The original payload snapshot is untouched, so a
// retry replays exactly what happened at enqueue time.
//
// Returns ErrEventNotFailed if the event exists but is not failed, and
// ErrEventNotFound if it does not exist.
func (s *Store) RetryEvent(ctx context.Context, eventID string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE business_events
		SET status = 'pending', error_message = NULL, processed_at = NULL
		WHERE id = ? AND status = 'failed'
	`, eventID)
	if err != nil {
		return fmt.Errorf("retry event: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("retry event: rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	// Zero rows: distinguish missing from not-failed for a precise error.
	var status string
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM business_events WHERE id = ?`, eventID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("retry event %s: %w", eventID, ErrEventNotFound)
	}
	if err != nil {
		return fmt.Errorf("retry event: %w", err)
	}

	return fmt.Errorf("retry event %s (status %s): %w", eventID, status, ErrEventNotFailed)
}

// GetEvent retrieves a single business event by ID.
func (s *Store) GetEvent(ctx context.Context, eventID string) (event.BusinessEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, org_id, event_type, entity_type, entity_id, payload,
		       status, error_message, created_at, processed_at
		FROM business_events
		WHERE id = ?
	`, eventID)

	ev, err := scanEventRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return event.BusinessEvent{}, fmt.Errorf("get event %s: %w", eventID, ErrEventNotFound)
	}
	if err != nil {
		return event.BusinessEvent{}, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

// ListRecentEvents returns the newest events first, for the monitoring feed.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]event.BusinessEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, event_type, entity_type, entity_id, payload,
		       status, error_message, created_at, processed_at
		FROM business_events
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// scanEvents scans all rows into BusinessEvent structs.
// Returns an empty slice (not nil) when no rows match.
func scanEvents(rows *sql.Rows) ([]event.BusinessEvent, error) {
	events := []event.BusinessEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

func scanEvent(rows *sql.Rows) (event.BusinessEvent, error) {
	var (
		ev           event.BusinessEvent
		payloadJSON  string
		status       string
		errorMessage sql.NullString
		createdAt    string
		processedAt  sql.NullString
	)

	if err := rows.Scan(
		&ev.ID, &ev.OrgID, &ev.EventType, &ev.EntityType, &ev.EntityID,
		&payloadJSON, &status, &errorMessage, &createdAt, &processedAt,
	); err != nil {
		return event.BusinessEvent{}, fmt.Errorf("scan event: %w", err)
	}

	return hydrateEvent(ev, payloadJSON, status, errorMessage, createdAt, processedAt)
}

func scanEventRow(row *sql.Row) (event.BusinessEvent, error) {
	var (
		ev           event.BusinessEvent
		payloadJSON  string
		status       string
		errorMessage sql.NullString
		createdAt    string
		processedAt  sql.NullString
	)

	if err := row.Scan(
		&ev.ID, &ev.OrgID, &ev.EventType, &ev.EntityType, &ev.EntityID,
		&payloadJSON, &status, &errorMessage, &createdAt, &processedAt,
	); err != nil {
		return event.BusinessEvent{}, err
	}

	return hydrateEvent(ev, payloadJSON, status, errorMessage, createdAt, processedAt)
}

func hydrateEvent(
	ev event.BusinessEvent,
	payloadJSON, status string,
	errorMessage sql.NullString,
	createdAt string,
	processedAt sql.NullString,
) (event.BusinessEvent, error) {
	payload, err := event.UnmarshalPayload([]byte(payloadJSON))
	if err != nil {
		return event.BusinessEvent{}, err
	}
	ev.Payload = payload
	ev.Status = event.Status(status)
	ev.ErrorMessage = errorMessage.String

	created, err := parseTime(createdAt)
	if err != nil {
		return event.BusinessEvent{}, err
	}
	ev.CreatedAt = created

	if processedAt.Valid {
		processed, err := parseTime(processedAt.String)
		if err != nil {
			return event.BusinessEvent{}, err
		}
		ev.ProcessedAt = &processed
	}

	return ev, nil
}
