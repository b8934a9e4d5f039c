package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InventoryItem is a per-tenant stock level for one material code.
type InventoryItem struct {
	OrgID        string
	MaterialCode string
	OnHand       float64
	ReorderLevel float64
}

// InventoryAlert is the warning side-channel record written when an order
// requires more of a material than is on hand.
type InventoryAlert struct {
	ID           int64
	OrgID        string
	OrderID      string
	MaterialCode string
	Required     float64
	Available    float64
}

// UpsertInventoryItem inserts or replaces a stock row.
func (s *Store) UpsertInventoryItem(ctx context.Context, item InventoryItem) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_items (org_id, material_code, on_hand, reorder_level)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(org_id, material_code) DO UPDATE SET
			on_hand = excluded.on_hand,
			reorder_level = excluded.reorder_level
	`, item.OrgID, item.MaterialCode, item.OnHand, item.ReorderLevel)
	if err != nil {
		return fmt.Errorf("upsert inventory item: %w", err)
	}
	return nil
}

// GetInventoryItem returns the stock row for a material, tenant-scoped.
// A material with no row is reported as zero on hand rather than an error,
// since an order can reference materials never stocked.
func (s *Store) GetInventoryItem(ctx context.Context, orgID, materialCode string) (InventoryItem, error) {
	item := InventoryItem{OrgID: orgID, MaterialCode: materialCode}
	err := s.db.QueryRowContext(ctx, `
		SELECT on_hand, reorder_level FROM inventory_items
		WHERE org_id = ? AND material_code = ?
	`, orgID, materialCode).Scan(&item.OnHand, &item.ReorderLevel)
	if errors.Is(err, sql.ErrNoRows) {
		return item, nil
	}
	if err != nil {
		return InventoryItem{}, fmt.Errorf("get inventory item: %w", err)
	}
	return item, nil
}

// InsertInventoryAlert records a shortage warning.
func (s *Store) InsertInventoryAlert(ctx context.Context, alert InventoryAlert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO inventory_alerts (org_id, order_id, material_code, required, available, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, alert.OrgID, alert.OrderID, alert.MaterialCode, alert.Required, alert.Available, timeText(s.now()))
	if err != nil {
		return fmt.Errorf("insert inventory alert: %w", err)
	}
	return nil
}

// ListInventoryAlerts returns alerts for an order, oldest first.
func (s *Store) ListInventoryAlerts(ctx context.Context, orgID, orderID string) ([]InventoryAlert, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, org_id, order_id, material_code, required, available
		FROM inventory_alerts
		WHERE org_id = ? AND order_id = ?
		ORDER BY id ASC
	`, orgID, orderID)
	if err != nil {
		return nil, fmt.Errorf("query inventory alerts: %w", err)
	}
	defer rows.Close()

	alerts := []InventoryAlert{}
	for rows.Next() {
		var a InventoryAlert
		if err := rows.Scan(&a.ID, &a.OrgID, &a.OrderID, &a.MaterialCode, &a.Required, &a.Available); err != nil {
			return nil, fmt.Errorf("scan inventory alert: %w", err)
		}
		alerts = append(alerts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate inventory alerts: %w", err)
	}

	return alerts, nil
}
