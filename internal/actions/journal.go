package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/loomworks/millflow/internal/event"
	"github.com/loomworks/millflow/internal/store"
)

// Account codes for the material-issue posting at order confirmation.
const (
	AccountWorkInProgress = "1520"
	AccountRawMaterials   = "1510"
)

// JournalFromOrder posts a balanced double-entry journal when a production
// order is confirmed: debit work-in-process, credit raw materials for the
// order's total amount.
//
// Idempotent via an existence check keyed on (org, source type, source id):
// calling it twice for the same order posts exactly one entry.
type JournalFromOrder struct {
	store *store.Store
}

// NewJournalFromOrder creates the action.
func NewJournalFromOrder(s *store.Store) *JournalFromOrder {
	return &JournalFromOrder{store: s}
}

// Execute implements dispatch.Action.
func (a *JournalFromOrder) Execute(ctx context.Context, ev event.BusinessEvent) error {
	entityID, err := requireString(ev.Payload, event.PayloadEntityID)
	if err != nil {
		return err
	}

	exists, err := a.store.HasJournalEntryForSource(ctx, ev.OrgID, ev.EntityType, entityID)
	if err != nil {
		return fmt.Errorf("journal existence check: %w", err)
	}
	if exists {
		// Retry of an event whose posting already committed.
		slog.Debug("journal entry already posted, skipping",
			"org_id", ev.OrgID,
			"source_type", ev.EntityType,
			"source_id", entityID,
		)
		return nil
	}

	attrs := payloadAttrs(ev.Payload)
	amount, ok := asFloat(attrs["total_amount"])
	if !ok || amount <= 0 {
		return fmt.Errorf("order %s has no positive total_amount in payload snapshot", entityID)
	}

	memo := fmt.Sprintf("Material issue for %s %s", ev.EntityType, entityID)
	if orderNumber, ok := asString(attrs["order_number"]); ok && orderNumber != "" {
		memo = fmt.Sprintf("Material issue for %s", orderNumber)
	}

	inserted, err := a.store.CreateJournalEntry(ctx, store.JournalEntry{
		ID:         uuid.NewString(),
		OrgID:      ev.OrgID,
		SourceType: ev.EntityType,
		SourceID:   entityID,
		Memo:       memo,
		Lines: []store.JournalLine{
			{AccountCode: AccountWorkInProgress, Debit: amount},
			{AccountCode: AccountRawMaterials, Credit: amount},
		},
	})
	if err != nil {
		return fmt.Errorf("post journal entry: %w", err)
	}

	slog.Info("journal entry posted",
		"org_id", ev.OrgID,
		"source_id", entityID,
		"amount", amount,
		"inserted", inserted,
	)

	return nil
}
