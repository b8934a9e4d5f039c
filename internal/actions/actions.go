// Package actions holds the concrete handler-action implementations the
// dispatcher resolves by name. Each action reads only the event's payload
// snapshot - never the live entity - and is idempotent under retries.
package actions

import (
	"encoding/json"
	"fmt"

	"github.com/loomworks/millflow/internal/dispatch"
	"github.com/loomworks/millflow/internal/event"
	"github.com/loomworks/millflow/internal/store"
)

// Handler-function names as seeded in the event_handlers table.
const (
	NameCreateJournalEntryFromOrder = "create_journal_entry_from_order"
	NameCheckInventoryForOrder      = "check_inventory_for_order"
)

// RegisterAll binds every built-in action into the registry.
// Called once at process initialization; the populated registry is then
// injected into the dispatcher.
func RegisterAll(reg *dispatch.ActionRegistry, s *store.Store) error {
	if err := reg.Register(NameCreateJournalEntryFromOrder, NewJournalFromOrder(s)); err != nil {
		return err
	}
	if err := reg.Register(NameCheckInventoryForOrder, NewInventoryCheck(s)); err != nil {
		return err
	}
	return nil
}

// payloadAttrs extracts the entity attribute snapshot from a payload.
func payloadAttrs(p event.Payload) map[string]any {
	attrs, ok := p[event.PayloadAttrs].(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return attrs
}

// asFloat coerces a payload value to float64. Stored payloads decode
// numbers as json.Number; in-memory payloads may carry native types.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// asString coerces a payload value to string.
func asString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

// requireString fetches a mandatory string payload field.
func requireString(p event.Payload, key string) (string, error) {
	s, ok := asString(p[key])
	if !ok || s == "" {
		return "", fmt.Errorf("payload missing %q", key)
	}
	return s, nil
}
