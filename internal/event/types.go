package event

import "time"

// Status is the processing state of a business event.
type Status string

const (
	// StatusPending means the event is waiting to be claimed by a dispatcher.
	StatusPending Status = "pending"
	// StatusProcessing means a dispatcher worker has claimed the event.
	StatusProcessing Status = "processing"
	// StatusCompleted means every matched handler ran successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means a handler failed; ErrorMessage holds the diagnostic.
	StatusFailed Status = "failed"
)

// Valid reports whether s is one of the known event statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal status.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Payload is the immutable data snapshot captured when an event is enqueued.
// It is never re-read from the entity store during processing, so a handler
// always sees the world as it was at enqueue time.
type Payload map[string]any

// BusinessEvent is a durable record of a fact worth automating, e.g. an
// entity reaching a new state. Only Status, ErrorMessage, and ProcessedAt
// are mutable after creation, and only the dispatcher mutates them.
type BusinessEvent struct {
	ID           string     `json:"id"`
	OrgID        string     `json:"org_id"`
	EventType    string     `json:"event_type"` // e.g. "production_order.confirmed"
	EntityType   string     `json:"entity_type"`
	EntityID     string     `json:"entity_id"`
	Payload      Payload    `json:"payload"`
	Status       Status     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"` // set only when failed
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"` // nil until terminal
}

// Handler is a registry entry binding an event type to a named action.
// Rows are configuration: seeded at setup time and read on every dispatch,
// so enabled/priority edits take effect without a restart.
type Handler struct {
	ID              int64  `json:"id"`
	EventType       string `json:"event_type"`
	HandlerFunction string `json:"handler_function"` // resolved against the action registry
	Priority        int    `json:"priority"`         // lower runs first; ties broken by insertion order
	Enabled         bool   `json:"enabled"`
}

// Transition is a legal (entity_type, from_status, to_status) edge in the
// per-entity-type state machine. An edge absent from the table is illegal.
type Transition struct {
	EntityType string `json:"entity_type"`
	FromStatus string `json:"from_status"`
	ToStatus   string `json:"to_status"`
}

// TypeFor derives the event type tag for an entity reaching a new status.
func TypeFor(entityType, toStatus string) string {
	return entityType + "." + toStatus
}

// Payload keys written by the state-transition engine. Handlers read these
// rather than re-querying the entity store.
const (
	PayloadEntityID    = "entity_id"
	PayloadOrgID       = "org_id"
	PayloadPriorStatus = "prior_status"
	PayloadNewStatus   = "new_status"
	PayloadAttrs       = "attrs" // entity attribute snapshot at enqueue time
)
