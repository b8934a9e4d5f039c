package store

import "testing"

func TestGetInventoryItem_MissingIsZero(t *testing.T) {
	s := newTestStore(t)

	item, err := s.GetInventoryItem(testCtx, "org-1", "YARN-60")
	if err != nil {
		t.Fatalf("GetInventoryItem() failed: %v", err)
	}
	if item.OnHand != 0 {
		t.Errorf("on_hand = %f, want 0 for unstocked material", item.OnHand)
	}
}

func TestInventoryItem_UpsertAndRead(t *testing.T) {
	s := newTestStore(t)

	if err := s.UpsertInventoryItem(testCtx, InventoryItem{
		OrgID:        "org-1",
		MaterialCode: "YARN-60",
		OnHand:       850,
		ReorderLevel: 200,
	}); err != nil {
		t.Fatalf("UpsertInventoryItem() failed: %v", err)
	}

	item, err := s.GetInventoryItem(testCtx, "org-1", "YARN-60")
	if err != nil {
		t.Fatalf("GetInventoryItem() failed: %v", err)
	}
	if item.OnHand != 850 || item.ReorderLevel != 200 {
		t.Errorf("item = %+v", item)
	}

	// Tenant scoping: another org sees zero.
	other, err := s.GetInventoryItem(testCtx, "org-2", "YARN-60")
	if err != nil {
		t.Fatalf("GetInventoryItem(org-2) failed: %v", err)
	}
	if other.OnHand != 0 {
		t.Errorf("cross-tenant on_hand = %f, want 0", other.OnHand)
	}
}

func TestInventoryAlerts_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	alert := InventoryAlert{
		OrgID:        "org-1",
		OrderID:      "ord-1",
		MaterialCode: "YARN-60",
		Required:     1200,
		Available:    850,
	}
	if err := s.InsertInventoryAlert(testCtx, alert); err != nil {
		t.Fatalf("InsertInventoryAlert() failed: %v", err)
	}

	alerts, err := s.ListInventoryAlerts(testCtx, "org-1", "ord-1")
	if err != nil {
		t.Fatalf("ListInventoryAlerts() failed: %v", err)
	}
	if len(alerts) != 1 {
		t.Fatalf("len = %d, want 1", len(alerts))
	}
	if alerts[0].MaterialCode != "YARN-60" || alerts[0].Required != 1200 || alerts[0].Available != 850 {
		t.Errorf("alert = %+v", alerts[0])
	}
}
