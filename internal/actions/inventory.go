package actions

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/loomworks/millflow/internal/event"
	"github.com/loomworks/millflow/internal/store"
)

// InventoryCheck verifies that an order's required materials are on hand and
// records a shortage alert for each material that is not.
//
// A shortage is a warning side-channel, never an error: the action must not
// block the transition that enqueued the event. Only storage failures make
// the event fail.
type InventoryCheck struct {
	store *store.Store
}

// NewInventoryCheck creates the action.
func NewInventoryCheck(s *store.Store) *InventoryCheck {
	return &InventoryCheck{store: s}
}

// Execute implements dispatch.Action.
func (a *InventoryCheck) Execute(ctx context.Context, ev event.BusinessEvent) error {
	entityID, err := requireString(ev.Payload, event.PayloadEntityID)
	if err != nil {
		return err
	}

	materials, ok := payloadAttrs(ev.Payload)["materials"].([]any)
	if !ok || len(materials) == 0 {
		// Orders without a bill of materials have nothing to check.
		slog.Debug("no materials in payload snapshot, skipping inventory check",
			"order_id", entityID)
		return nil
	}

	for _, raw := range materials {
		m, ok := raw.(map[string]any)
		if !ok {
			return fmt.Errorf("order %s: malformed material entry %v", entityID, raw)
		}
		code, ok := asString(m["code"])
		if !ok || code == "" {
			return fmt.Errorf("order %s: material entry missing code", entityID)
		}
		required, ok := asFloat(m["qty"])
		if !ok {
			return fmt.Errorf("order %s: material %s missing qty", entityID, code)
		}

		item, err := a.store.GetInventoryItem(ctx, ev.OrgID, code)
		if err != nil {
			return fmt.Errorf("inventory lookup %s: %w", code, err)
		}

		if item.OnHand < required {
			slog.Warn("insufficient inventory for order",
				"org_id", ev.OrgID,
				"order_id", entityID,
				"material", code,
				"required", required,
				"on_hand", item.OnHand,
			)
			if err := a.store.InsertInventoryAlert(ctx, store.InventoryAlert{
				OrgID:        ev.OrgID,
				OrderID:      entityID,
				MaterialCode: code,
				Required:     required,
				Available:    item.OnHand,
			}); err != nil {
				return fmt.Errorf("record inventory alert: %w", err)
			}
		}
	}

	return nil
}
