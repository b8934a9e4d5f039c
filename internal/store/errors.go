package store

import "errors"

// Sentinel errors returned by store operations. Callers translate these into
// their own taxonomies (the state machine maps ErrTransitionNotDefined to an
// IllegalTransition result, for example) with errors.Is.
var (
	// ErrEntityNotFound means no entity row matched (entity_type, id, org_id).
	// Tenant scoping makes a foreign tenant's entity indistinguishable from a
	// missing one.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrTransitionNotDefined means the requested (entity_type, from, to)
	// edge is not in the state_transitions table.
	ErrTransitionNotDefined = errors.New("transition not defined")

	// ErrStatusConflict means the entity's status changed between read and
	// conditional write. The caller should re-read and may retry.
	ErrStatusConflict = errors.New("entity status changed concurrently")

	// ErrEventNotFound means no business event row matched the given ID.
	ErrEventNotFound = errors.New("event not found")

	// ErrEventNotFailed means a retry was requested for an event that is not
	// in the failed state.
	ErrEventNotFailed = errors.New("event is not in failed state")
)
