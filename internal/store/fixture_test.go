package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/erazemk/zavod/internal/db"
	"github.com/erazemk/zavod/internal/model"
)

// fixture is a database with two institutes, each with an admin, a vice
// principal, a staff member, two rooms and one asset master.
type fixture struct {
	db *sql.DB

	instA, instB *model.Institute

	adminA, viceA, staffA model.Actor
	adminB                model.Actor

	roomA1, roomA2 *model.Room
	roomB1         *model.Room

	catA   *model.AssetCategory
	chairA *model.AssetMaster
	deskB  *model.AssetMaster
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{db: db.NewTestDB(t)}

	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seeding: %v", err)
		}
	}
	actor := func(inst *model.Institute, name, role string) model.Actor {
		t.Helper()
		u, err := CreateUser(ctx, f.db, inst.ID, name, "hash", role)
		must(err)
		return model.Actor{UserID: u.ID, InstituteID: inst.ID, Username: u.Username, Role: u.Role}
	}

	var err error
	f.instA, err = CreateInstitute(ctx, f.db, "North School", "north")
	must(err)
	f.instB, err = CreateInstitute(ctx, f.db, "South School", "south")
	must(err)

	f.adminA = actor(f.instA, "admin-a", model.RoleAdmin)
	f.viceA = actor(f.instA, "vice-a", model.RoleVicePrincipal)
	f.staffA = actor(f.instA, "staff-a", model.RoleStaff)
	f.adminB = actor(f.instB, "admin-b", model.RoleAdmin)

	f.roomA1, err = CreateRoom(ctx, f.db, f.instA.ID, "Lab 1", "")
	must(err)
	f.roomA2, err = CreateRoom(ctx, f.db, f.instA.ID, "Lab 2", "")
	must(err)
	f.roomB1, err = CreateRoom(ctx, f.db, f.instB.ID, "Hall", "")
	must(err)

	f.catA, err = CreateCategory(ctx, f.db, f.instA.ID, "Furniture")
	must(err)
	f.chairA, err = CreateAssetMaster(ctx, f.db, f.instA.ID, "Chair", "", f.catA.ID)
	must(err)
	f.deskB, err = CreateAssetMaster(ctx, f.db, f.instB.ID, "Desk", "", 0)
	must(err)

	return f
}

// stock creates an active inventory row of chairs in room A1.
func (f *fixture) stock(t *testing.T, quantity int) *model.Inventory {
	t.Helper()
	inv, err := CreateInventory(context.Background(), f.db, f.staffA, InventoryInput{
		RoomID:           f.roomA1.ID,
		AssetMasterID:    f.chairA.ID,
		AssetCategoryIDs: []int64{f.catA.ID},
		Quantity:         quantity,
	})
	if err != nil {
		t.Fatalf("CreateInventory: %v", err)
	}
	return inv
}

// sumQuantity totals the non-deleted chair units across all institutes.
func (f *fixture) sumQuantity(t *testing.T) int {
	t.Helper()
	var total int
	err := f.db.QueryRow(
		`SELECT COALESCE(SUM(quantity), 0) FROM inventory WHERE asset_master_id = ? AND deleted_at IS NULL`,
		f.chairA.ID,
	).Scan(&total)
	if err != nil {
		t.Fatalf("summing quantity: %v", err)
	}
	return total
}

func (f *fixture) countInventory(t *testing.T) int {
	t.Helper()
	var n int
	if err := f.db.QueryRow(`SELECT COUNT(*) FROM inventory WHERE deleted_at IS NULL`).Scan(&n); err != nil {
		t.Fatalf("counting inventory: %v", err)
	}
	return n
}
