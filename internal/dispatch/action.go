package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/loomworks/millflow/internal/event"
)

// Action is a concrete automation effect, looked up by name from the
// handler registry. Implementations must be idempotent or check-before-act:
// a retry can re-run an action whose earlier partial effect already
// committed.
type Action interface {
	Execute(ctx context.Context, ev event.BusinessEvent) error
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(ctx context.Context, ev event.BusinessEvent) error

// Execute implements Action.
func (f ActionFunc) Execute(ctx context.Context, ev event.BusinessEvent) error {
	return f(ctx, ev)
}

// ActionErrorCode categorizes handler-action failures.
type ActionErrorCode string

const (
	// ErrCodeUnregisteredHandler means the registry row named an action the
	// process never registered. Surfaced as a failed event, never a silent
	// no-op: automation gaps must stay visible.
	ErrCodeUnregisteredHandler ActionErrorCode = "UNREGISTERED_HANDLER"

	// ErrCodeTimeout means the handler exceeded its execution budget.
	ErrCodeTimeout ActionErrorCode = "HANDLER_TIMEOUT"

	// ErrCodeExecutionFailed means the action ran and returned an error
	// (business-rule violation or downstream I/O failure).
	ErrCodeExecutionFailed ActionErrorCode = "EXECUTION_FAILED"
)

// ActionError is a handler-time failure. It is caught per-handler, recorded
// on the event record, and never propagated to crash the dispatcher.
type ActionError struct {
	Code    ActionErrorCode
	Handler string
	Err     error
}

// Error implements the error interface.
func (e *ActionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: handler %s: %v", e.Code, e.Handler, e.Err)
	}
	return fmt.Sprintf("%s: handler %s", e.Code, e.Handler)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// NewUnregisteredHandlerError creates an ActionError for an unknown name.
func NewUnregisteredHandlerError(handler string) *ActionError {
	return &ActionError{Code: ErrCodeUnregisteredHandler, Handler: handler}
}

// IsUnregisteredHandler reports whether err is an unregistered-handler
// failure. Uses errors.As to handle wrapped errors.
func IsUnregisteredHandler(err error) bool {
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae.Code == ErrCodeUnregisteredHandler
	}
	return false
}
