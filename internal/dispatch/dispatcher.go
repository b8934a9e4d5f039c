// Package dispatch implements the event dispatcher: it claims pending
// business events, runs their matched handler actions in priority order,
// and records the outcome on each event.
//
// The dispatcher is designed for manual or cron-triggered invocation rather
// than a tight internal loop; scheduling cadence is an external concern.
// A transition call enqueues its event synchronously in its own transaction,
// so invoking the dispatcher right after a transition needs no timing
// assumption.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomworks/millflow/internal/event"
	"github.com/loomworks/millflow/internal/metrics"
	"github.com/loomworks/millflow/internal/store"
)

// DefaultHandlerTimeout bounds one handler action's execution.
// Exceeding it produces the same failed outcome as a returned error.
const DefaultHandlerTimeout = 30 * time.Second

// BatchResult aggregates one ProcessPending pass.
type BatchResult struct {
	Processed int `json:"processed"` // events that completed all handlers
	Failed    int `json:"failed"`    // events that ended failed
	Total     int `json:"total"`     // events this worker claimed
}

// Dispatcher pulls pending events and executes their handlers.
//
// Safe to run as N concurrent instances over the same database: the
// conditional pending -> processing update in the store is the sole
// synchronization primitive, and a lost claim is skipped silently.
type Dispatcher struct {
	store          *store.Store
	registry       *ActionRegistry
	handlerTimeout time.Duration
	metrics        *metrics.Dispatcher
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithHandlerTimeout overrides the per-handler execution budget.
func WithHandlerTimeout(d time.Duration) Option {
	return func(dp *Dispatcher) {
		dp.handlerTimeout = d
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Dispatcher) Option {
	return func(dp *Dispatcher) {
		dp.metrics = m
	}
}

// New creates a Dispatcher with the given store and action registry.
func New(s *store.Store, registry *ActionRegistry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:          s,
		registry:       registry,
		handlerTimeout: DefaultHandlerTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ProcessPending claims and processes up to limit pending events, oldest
// first. Pass orgID "" to process across all tenants.
//
// Handler failures are caught per-event: one poisoned event never aborts the
// rest of the batch. Storage failures do abort, since nothing further can be
// recorded reliably.
func (d *Dispatcher) ProcessPending(ctx context.Context, orgID string, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	pending, err := d.store.ListPendingEvents(ctx, orgID, limit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("process pending: %w", err)
	}

	var result BatchResult
	for _, ev := range pending {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("process pending: %w", err)
		}

		claimed, err := d.store.ClaimEvent(ctx, ev.ID)
		if err != nil {
			return result, fmt.Errorf("process pending: %w", err)
		}
		if !claimed {
			// Another worker got there first. Not an error.
			d.metrics.ClaimConflict()
			slog.Debug("claim lost", "event_id", ev.ID)
			continue
		}
		result.Total++

		if handlerErr := d.runHandlers(ctx, ev); handlerErr != nil {
			if err := d.store.FailEvent(ctx, ev.ID, handlerErr.Error()); err != nil {
				return result, fmt.Errorf("process pending: record failure: %w", err)
			}
			d.metrics.EventFailed(ev.EventType)
			result.Failed++
			slog.Warn("event failed",
				"event_id", ev.ID,
				"event_type", ev.EventType,
				"org_id", ev.OrgID,
				"error", handlerErr,
			)
			continue
		}

		if err := d.store.CompleteEvent(ctx, ev.ID); err != nil {
			return result, fmt.Errorf("process pending: record completion: %w", err)
		}
		d.metrics.EventProcessed(ev.EventType)
		result.Processed++
		slog.Info("event completed",
			"event_id", ev.ID,
			"event_type", ev.EventType,
			"org_id", ev.OrgID,
		)
	}

	return result, nil
}

// runHandlers executes every enabled handler for the event in priority
// order. The first failure stops the chain; earlier handlers' effects stand
// (they are idempotent, so a retry re-runs them safely).
func (d *Dispatcher) runHandlers(ctx context.Context, ev event.BusinessEvent) error {
	handlers, err := d.store.ResolveHandlers(ctx, ev.EventType)
	if err != nil {
		return fmt.Errorf("resolve handlers: %w", err)
	}

	for _, h := range handlers {
		action, ok := d.registry.Lookup(h.HandlerFunction)
		if !ok {
			return NewUnregisteredHandlerError(h.HandlerFunction)
		}

		if err := d.runHandler(ctx, h.HandlerFunction, action, ev); err != nil {
			return err
		}
	}

	return nil
}

// runHandler executes one action under the execution budget.
func (d *Dispatcher) runHandler(ctx context.Context, name string, action Action, ev event.BusinessEvent) error {
	hctx, cancel := context.WithTimeout(ctx, d.handlerTimeout)
	defer cancel()

	start := time.Now()
	err := action.Execute(hctx, ev)
	d.metrics.ObserveHandler(name, time.Since(start).Seconds())

	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &ActionError{Code: ErrCodeTimeout, Handler: name, Err: err}
	}

	var ae *ActionError
	if errors.As(err, &ae) {
		return err
	}
	return &ActionError{Code: ErrCodeExecutionFailed, Handler: name, Err: err}
}

// Retry resets a failed event to pending. It is the only path from failed
// back to pending; the original payload snapshot is replayed as-is.
// Safe to invoke repeatedly: a second call on an already-retried event
// reports that the event is no longer failed.
func (d *Dispatcher) Retry(ctx context.Context, eventID string) error {
	if err := d.store.RetryEvent(ctx, eventID); err != nil {
		return err
	}

	slog.Info("event reset for retry", "event_id", eventID)
	return nil
}
