package statemachine

import (
	"errors"
	"fmt"
)

// TransitionErrorCode categorizes transition failures.
type TransitionErrorCode string

const (
	// CodeIllegalTransition means the requested (from, to) edge is not in
	// the state-machine table. Rejected before any mutation.
	CodeIllegalTransition TransitionErrorCode = "ILLEGAL_TRANSITION"

	// CodeConcurrentModification means the entity's status changed between
	// read and write. The caller should re-read and may retry.
	CodeConcurrentModification TransitionErrorCode = "CONCURRENT_MODIFICATION"

	// CodeEntityNotFound means no entity matched the tenant-scoped lookup.
	CodeEntityNotFound TransitionErrorCode = "ENTITY_NOT_FOUND"
)

// TransitionError is a transition-time failure, returned synchronously to
// the immediate caller. Handler-time failures are recorded on the event
// record instead and never surface here.
type TransitionError struct {
	Code       TransitionErrorCode
	EntityType string
	EntityID   string
	FromStatus string
	ToStatus   string
	Err        error
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	if e.FromStatus != "" {
		return fmt.Sprintf("%s: %s/%s: %s -> %s", e.Code, e.EntityType, e.EntityID, e.FromStatus, e.ToStatus)
	}
	return fmt.Sprintf("%s: %s/%s -> %s", e.Code, e.EntityType, e.EntityID, e.ToStatus)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// IsIllegalTransition reports whether err is an illegal-transition failure.
// Uses errors.As to handle wrapped errors.
func IsIllegalTransition(err error) bool {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code == CodeIllegalTransition
	}
	return false
}

// IsConcurrentModification reports whether err is a concurrent-modification
// failure.
func IsConcurrentModification(err error) bool {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code == CodeConcurrentModification
	}
	return false
}

// IsEntityNotFound reports whether err is an entity-not-found failure.
func IsEntityNotFound(err error) bool {
	var te *TransitionError
	if errors.As(err, &te) {
		return te.Code == CodeEntityNotFound
	}
	return false
}
