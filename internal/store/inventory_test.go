package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zavod/internal/model"
)

func ptr[T any](v T) *T { return &v }

func TestCreateAndListInventory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.stock(t, 12)
	if inv.Quantity != 12 || inv.Status != model.StatusActiveStock {
		t.Fatalf("unexpected inventory: %+v", inv)
	}
	if inv.AssetName != "Chair" || inv.RoomName != "Lab 1" {
		t.Errorf("expected joined names, got %q / %q", inv.AssetName, inv.RoomName)
	}
	if len(inv.AssetCategoryIDs) != 1 || inv.AssetCategoryIDs[0] != f.catA.ID {
		t.Errorf("expected category %d, got %v", f.catA.ID, inv.AssetCategoryIDs)
	}
	if inv.CreatedBy == nil || *inv.CreatedBy != f.staffA.UserID {
		t.Errorf("expected created_by %d, got %v", f.staffA.UserID, inv.CreatedBy)
	}

	items, pg, err := ListInventory(ctx, f.db, f.instA.ID, InventoryFilter{Search: "cha"}, model.Page{})
	if err != nil {
		t.Fatalf("ListInventory: %v", err)
	}
	if len(items) != 1 || pg.Total != 1 {
		t.Fatalf("expected 1 row, got %d (total %d)", len(items), pg.Total)
	}

	items, _, err = ListInventory(ctx, f.db, f.instA.ID, InventoryFilter{Status: model.StatusScraped}, model.Page{})
	if err != nil {
		t.Fatalf("ListInventory: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("expected no scraped rows, got %d", len(items))
	}
}

func TestCreateInventoryRejectsForeignReferences(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := CreateInventory(ctx, f.db, f.staffA, InventoryInput{
		RoomID: f.roomB1.ID, AssetMasterID: f.chairA.ID, Quantity: 1,
	})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Fields["room_id"] == "" {
		t.Errorf("expected room_id validation error, got %v", err)
	}

	_, err = CreateInventory(ctx, f.db, f.staffA, InventoryInput{
		RoomID: f.roomA1.ID, AssetMasterID: f.deskB.ID, Quantity: 1,
	})
	if !errors.As(err, &ve) || ve.Fields["asset_master_id"] == "" {
		t.Errorf("expected asset_master_id validation error, got %v", err)
	}

	if n := f.countInventory(t); n != 0 {
		t.Errorf("expected no rows created, got %d", n)
	}
}

func TestInventoryTenantIsolation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.stock(t, 3)

	items, _, err := ListInventory(ctx, f.db, f.instB.ID, InventoryFilter{}, model.Page{})
	if err != nil {
		t.Fatalf("ListInventory: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("institute B sees %d rows of institute A", len(items))
	}

	got, err := GetInventory(ctx, f.db, f.instB.ID, inv.ID)
	if err != nil {
		t.Fatalf("GetInventory: %v", err)
	}
	if got != nil {
		t.Error("institute B can read institute A's inventory")
	}

	_, err = UpdateInventory(ctx, f.db, f.adminB, inv.ID, InventoryUpdate{Quantity: ptr(0)})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound updating foreign row, got %v", err)
	}
}

func TestScrapSplit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.stock(t, 50)
	before := f.sumQuantity(t)

	res, err := UpdateInventory(ctx, f.db, f.staffA, inv.ID, InventoryUpdate{
		Status:          ptr(model.StatusScraped),
		ScrapedQuantity: ptr(20),
		ScrapedAmount:   decimal.NewNullDecimal(decimal.NewFromInt(500)),
	})
	if err != nil {
		t.Fatalf("UpdateInventory: %v", err)
	}

	orig := res.Inventory
	if orig.Quantity != 30 || orig.Status != model.StatusActiveStock {
		t.Errorf("expected original 30 active, got %d %s", orig.Quantity, orig.Status)
	}
	if orig.ScrapedQuantity != nil || orig.ScrapedAmount.Valid {
		t.Errorf("expected original scraped fields cleared, got %v %v", orig.ScrapedQuantity, orig.ScrapedAmount)
	}

	scraped := res.Scraped
	if scraped == nil {
		t.Fatal("expected a scraped row")
	}
	if scraped.Quantity != 20 || scraped.Status != model.StatusScraped {
		t.Errorf("expected scraped 20, got %d %s", scraped.Quantity, scraped.Status)
	}
	if scraped.ScrapedQuantity == nil || *scraped.ScrapedQuantity != 20 {
		t.Errorf("expected scraped_quantity 20, got %v", scraped.ScrapedQuantity)
	}
	if !scraped.ScrapedAmount.Valid || !scraped.ScrapedAmount.Decimal.Equal(decimal.NewFromInt(500)) {
		t.Errorf("expected scraped_amount 500, got %v", scraped.ScrapedAmount)
	}
	if !strings.Contains(scraped.Remarks, "#"+itoa(inv.ID)) {
		t.Errorf("expected remarks to reference source #%d, got %q", inv.ID, scraped.Remarks)
	}
	if !strings.Contains(orig.Remarks, "#"+itoa(scraped.ID)) {
		t.Errorf("expected original remarks to reference #%d, got %q", scraped.ID, orig.Remarks)
	}
	if scraped.RoomID == nil || *scraped.RoomID != f.roomA1.ID || scraped.AssetMasterID != f.chairA.ID {
		t.Errorf("expected scraped row to keep location and catalog, got %+v", scraped)
	}
	if len(scraped.AssetCategoryIDs) != 1 {
		t.Errorf("expected categories copied, got %v", scraped.AssetCategoryIDs)
	}

	if after := f.sumQuantity(t); after != before {
		t.Errorf("quantity not conserved: before %d, after %d", before, after)
	}
}

func TestScrapWholeRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.stock(t, 5)

	res, err := UpdateInventory(ctx, f.db, f.staffA, inv.ID, InventoryUpdate{
		Status:          ptr(model.StatusScraped),
		ScrapedQuantity: ptr(9),
	})
	if err != nil {
		t.Fatalf("UpdateInventory: %v", err)
	}
	if res.Scraped != nil {
		t.Error("expected no split for scraped_quantity >= quantity")
	}
	if res.Inventory.Status != model.StatusScraped || res.Inventory.Quantity != 5 {
		t.Errorf("unexpected row: %+v", res.Inventory)
	}
	if res.Inventory.ScrapedQuantity == nil || *res.Inventory.ScrapedQuantity != 5 {
		t.Errorf("expected scraped_quantity 5, got %v", res.Inventory.ScrapedQuantity)
	}
	if n := f.countInventory(t); n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}

	// Leaving the scraped status clears the scrap fields.
	res, err = UpdateInventory(ctx, f.db, f.staffA, inv.ID, InventoryUpdate{Status: ptr(model.StatusDamaged)})
	if err != nil {
		t.Fatalf("UpdateInventory: %v", err)
	}
	if res.Inventory.ScrapedQuantity != nil {
		t.Errorf("expected scraped_quantity cleared, got %v", *res.Inventory.ScrapedQuantity)
	}
}

func TestScrapValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.stock(t, 10)

	tests := []struct {
		name string
		upd  InventoryUpdate
	}{
		{"zero scraped quantity", InventoryUpdate{Status: ptr(model.StatusScraped), ScrapedQuantity: ptr(0)}},
		{"negative quantity", InventoryUpdate{Quantity: ptr(-1)}},
		{"quantity with split", InventoryUpdate{Status: ptr(model.StatusScraped), ScrapedQuantity: ptr(3), Quantity: ptr(8)}},
		{"foreign room", InventoryUpdate{RoomID: ptr(f.roomB1.ID)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := UpdateInventory(ctx, f.db, f.staffA, inv.ID, tt.upd)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}

	got, _ := GetInventory(ctx, f.db, f.instA.ID, inv.ID)
	if got.Quantity != 10 || got.Status != model.StatusActiveStock {
		t.Errorf("row changed by rejected updates: %+v", got)
	}
	if n := f.countInventory(t); n != 1 {
		t.Errorf("expected 1 row, got %d", n)
	}
}

func TestUpdateInventoryInPlace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.stock(t, 4)

	res, err := UpdateInventory(ctx, f.db, f.staffA, inv.ID, InventoryUpdate{
		RoomID:           ptr(f.roomA2.ID),
		Quantity:         ptr(6),
		AssetCategoryIDs: &[]int64{},
		Remarks:          ptr("recounted"),
		PurchasePrice:    decimal.NewNullDecimal(decimal.RequireFromString("19.99")),
	})
	if err != nil {
		t.Fatalf("UpdateInventory: %v", err)
	}
	got := res.Inventory
	if got.Quantity != 6 || *got.RoomID != f.roomA2.ID || got.Remarks != "recounted" {
		t.Errorf("unexpected row: %+v", got)
	}
	if len(got.AssetCategoryIDs) != 0 {
		t.Errorf("expected categories cleared, got %v", got.AssetCategoryIDs)
	}
	if got.PurchasePrice.Decimal.String() != "19.99" {
		t.Errorf("expected price 19.99, got %s", got.PurchasePrice.Decimal)
	}

	res, err = UpdateInventory(ctx, f.db, f.staffA, inv.ID, InventoryUpdate{RoomID: ptr(int64(0))})
	if err != nil {
		t.Fatalf("UpdateInventory: %v", err)
	}
	if res.Inventory.RoomID != nil {
		t.Errorf("expected room cleared, got %d", *res.Inventory.RoomID)
	}
}

func TestClearPurchaseDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bought := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	inv, err := CreateInventory(ctx, f.db, f.staffA, InventoryInput{
		RoomID:        f.roomA1.ID,
		AssetMasterID: f.chairA.ID,
		Quantity:      2,
		PurchaseDate:  &bought,
	})
	if err != nil {
		t.Fatalf("CreateInventory: %v", err)
	}
	if inv.PurchaseDate == nil {
		t.Fatal("expected purchase date to be stored")
	}

	res, err := UpdateInventory(ctx, f.db, f.staffA, inv.ID, InventoryUpdate{Remarks: ptr("checked")})
	if err != nil {
		t.Fatalf("UpdateInventory: %v", err)
	}
	if res.Inventory.PurchaseDate == nil {
		t.Error("unrelated edit dropped the purchase date")
	}

	res, err = UpdateInventory(ctx, f.db, f.staffA, inv.ID, InventoryUpdate{ClearPurchaseDate: true})
	if err != nil {
		t.Fatalf("UpdateInventory: %v", err)
	}
	if res.Inventory.PurchaseDate != nil {
		t.Errorf("expected purchase date cleared, got %v", *res.Inventory.PurchaseDate)
	}
}

func TestDeleteInventoryWithPendingTransfer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	inv := f.stock(t, 5)
	_, err := CreateTransfer(ctx, f.db, f.staffA, model.TransferRequest{
		InventoryID: inv.ID, TargetType: model.TargetRoom, DestinationRoomID: f.roomA2.ID, Quantity: 2,
	})
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}

	if err := DeleteInventory(ctx, f.db, f.instA.ID, inv.ID); !errors.Is(err, ErrInUse) {
		t.Errorf("expected ErrInUse, got %v", err)
	}

	other := f.stock(t, 1)
	if err := DeleteInventory(ctx, f.db, f.instA.ID, other.ID); err != nil {
		t.Fatalf("DeleteInventory: %v", err)
	}
	if err := DeleteInventory(ctx, f.db, f.instA.ID, other.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func itoa(n int64) string {
	return strconv.FormatInt(n, 10)
}
