package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/zavod/internal/model"
)

const inventorySelect = `SELECT inv.id, inv.institute_id, inv.room_id, inv.asset_master_id,
        COALESCE((SELECT group_concat(ic.category_id) FROM inventory_categories ic WHERE ic.inventory_id = inv.id), ''),
        inv.quantity, inv.status, inv.scraped_amount, inv.scraped_quantity,
        inv.purchase_date, inv.purchase_price, inv.remarks, inv.created_by,
        inv.created_at, inv.updated_at, am.name, COALESCE(r.name, '')
 FROM inventory inv
 JOIN asset_masters am ON am.id = inv.asset_master_id
 LEFT JOIN rooms r ON r.id = inv.room_id`

func scanInventory(row interface{ Scan(...any) error }, inv *model.Inventory) error {
	var categories string
	err := row.Scan(&inv.ID, &inv.InstituteID, &inv.RoomID, &inv.AssetMasterID,
		&categories,
		&inv.Quantity, &inv.Status, &inv.ScrapedAmount, &inv.ScrapedQuantity,
		&inv.PurchaseDate, &inv.PurchasePrice, &inv.Remarks, &inv.CreatedBy,
		&inv.CreatedAt, &inv.UpdatedAt, &inv.AssetName, &inv.RoomName)
	if err != nil {
		return err
	}
	inv.AssetCategoryIDs, err = parseIDList(categories)
	return err
}

// parseIDList parses the comma-separated output of group_concat.
func parseIDList(s string) ([]int64, error) {
	ids := []int64{}
	if s == "" {
		return ids, nil
	}
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing category id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// InventoryFilter narrows inventory listings. Zero values mean no filter.
type InventoryFilter struct {
	Search        string
	RoomID        int64
	Status        model.InventoryStatus
	AssetMasterID int64
}

func (f InventoryFilter) where(instituteID int64) *where {
	w := &where{}
	w.add("inv.institute_id = ?", instituteID)
	w.add("inv.deleted_at IS NULL")
	if f.RoomID > 0 {
		w.add("inv.room_id = ?", f.RoomID)
	}
	if f.Status != "" {
		w.add("inv.status = ?", f.Status)
	}
	if f.AssetMasterID > 0 {
		w.add("inv.asset_master_id = ?", f.AssetMasterID)
	}
	if f.Search != "" {
		w.add(`am.name LIKE ? ESCAPE '\'`, likePattern(f.Search))
	}
	return w
}

func queryInventory(ctx context.Context, q querier, query string, args ...any) ([]model.Inventory, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing inventory: %w", err)
	}
	defer rows.Close()

	var items []model.Inventory
	for rows.Next() {
		var inv model.Inventory
		if err := scanInventory(rows, &inv); err != nil {
			return nil, fmt.Errorf("scanning inventory: %w", err)
		}
		items = append(items, inv)
	}
	return items, rows.Err()
}

// ListInventory returns one page of an institute's inventory.
func ListInventory(ctx context.Context, db *sql.DB, instituteID int64, f InventoryFilter, page model.Page) ([]model.Inventory, model.Pagination, error) {
	page = page.Normalize()
	w := f.where(instituteID)

	var total int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory inv
		 JOIN asset_masters am ON am.id = inv.asset_master_id`+w.String(), w.args...,
	).Scan(&total)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("counting inventory: %w", err)
	}

	items, err := queryInventory(ctx, db,
		inventorySelect+w.String()+` ORDER BY am.name, inv.id LIMIT ? OFFSET ?`,
		append(w.args, page.PerPage, page.Offset())...,
	)
	if err != nil {
		return nil, model.Pagination{}, err
	}
	return items, model.NewPagination(page, total), nil
}

// ListAllInventory returns every matching row without paging, for exports.
func ListAllInventory(ctx context.Context, db *sql.DB, instituteID int64, f InventoryFilter) ([]model.Inventory, error) {
	w := f.where(instituteID)
	return queryInventory(ctx, db, inventorySelect+w.String()+` ORDER BY am.name, inv.id`, w.args...)
}

// GetInventory returns an inventory row by ID if it belongs to the institute.
func GetInventory(ctx context.Context, db *sql.DB, instituteID, id int64) (*model.Inventory, error) {
	return getInventory(ctx, db, instituteID, id)
}

func getInventory(ctx context.Context, q querier, instituteID, id int64) (*model.Inventory, error) {
	inv := &model.Inventory{}
	err := scanInventory(q.QueryRowContext(ctx,
		inventorySelect+` WHERE inv.id = ? AND inv.institute_id = ? AND inv.deleted_at IS NULL`,
		id, instituteID,
	), inv)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting inventory: %w", err)
	}
	return inv, nil
}

// InventoryInput holds the fields of a new inventory row.
type InventoryInput struct {
	RoomID           int64
	AssetMasterID    int64
	AssetCategoryIDs []int64
	Quantity         int
	Status           model.InventoryStatus
	PurchaseDate     *time.Time
	PurchasePrice    decimal.NullDecimal
	Remarks          string
}

// CreateInventory records a purchase entry.
func CreateInventory(ctx context.Context, db *sql.DB, actor model.Actor, in InventoryInput) (*model.Inventory, error) {
	if in.Quantity < 0 {
		return nil, NewValidationError("quantity", "must not be negative")
	}
	if in.Status == "" {
		in.Status = model.StatusActiveStock
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := checkReferences(ctx, tx, actor.InstituteID, &in.AssetMasterID, &in.RoomID, in.AssetCategoryIDs); err != nil {
		return nil, err
	}

	inv := &model.Inventory{
		InstituteID:      actor.InstituteID,
		AssetMasterID:    in.AssetMasterID,
		AssetCategoryIDs: in.AssetCategoryIDs,
		Quantity:         in.Quantity,
		Status:           in.Status,
		PurchaseDate:     in.PurchaseDate,
		PurchasePrice:    in.PurchasePrice,
		Remarks:          in.Remarks,
		CreatedBy:        &actor.UserID,
	}
	if in.RoomID != 0 {
		inv.RoomID = &in.RoomID
	}
	if inv.Status == model.StatusScraped {
		q := inv.Quantity
		inv.ScrapedQuantity = &q
	}

	id, err := insertInventory(ctx, tx, inv)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing inventory: %w", err)
	}

	return GetInventory(ctx, db, actor.InstituteID, id)
}

// InventoryUpdate holds the fields of an inventory edit. Nil pointers and
// invalid decimals leave the stored value unchanged. A RoomID of zero moves
// the row out of any room, and ClearPurchaseDate removes the purchase date.
type InventoryUpdate struct {
	RoomID            *int64
	AssetMasterID     *int64
	AssetCategoryIDs  *[]int64
	Quantity          *int
	Status            *model.InventoryStatus
	ScrapedQuantity   *int
	ScrapedAmount     decimal.NullDecimal
	PurchaseDate      *time.Time
	ClearPurchaseDate bool
	PurchasePrice     decimal.NullDecimal
	Remarks           *string
}

// UpdateInventory applies an edit to an inventory row.
//
// Setting the status to scraped with a scraped quantity Q where 0 < Q < quantity
// splits the row: a new scraped row receives Q units and the original keeps
// the remainder as active stock. Otherwise the row is updated in place. The
// original and the split row are written in one transaction, and the original
// is only rewritten if its quantity is still the one that was read.
func UpdateInventory(ctx context.Context, db *sql.DB, actor model.Actor, id int64, upd InventoryUpdate) (*model.ScrapResult, error) {
	if upd.Quantity != nil && *upd.Quantity < 0 {
		return nil, NewValidationError("quantity", "must not be negative")
	}
	if upd.ScrapedQuantity != nil && *upd.ScrapedQuantity <= 0 {
		return nil, NewValidationError("scraped_quantity", "must be positive")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	cur, err := getInventory(ctx, tx, actor.InstituteID, id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, ErrNotFound
	}

	next := *cur
	if err := applyInventoryEdits(ctx, tx, actor.InstituteID, &next, upd); err != nil {
		return nil, err
	}

	split := next.Status == model.StatusScraped &&
		cur.Status != model.StatusScraped &&
		upd.ScrapedQuantity != nil &&
		*upd.ScrapedQuantity < cur.Quantity

	var scrapedID int64
	if split {
		if upd.Quantity != nil {
			return nil, NewValidationError("quantity", "cannot be changed while scraping part of the stock")
		}
		scrapedID, err = splitScrap(ctx, tx, actor, cur, &next, *upd.ScrapedQuantity, upd.ScrapedAmount, upd.Remarks)
		if err != nil {
			return nil, err
		}
	} else {
		if next.Status == model.StatusScraped {
			q := next.Quantity
			next.ScrapedQuantity = &q
			if upd.ScrapedAmount.Valid {
				next.ScrapedAmount = upd.ScrapedAmount
			}
		} else {
			next.ScrapedQuantity = nil
			next.ScrapedAmount = decimal.NullDecimal{}
		}
		if err := writeInventory(ctx, tx, cur.Quantity, &next); err != nil {
			return nil, err
		}
		if upd.AssetCategoryIDs != nil {
			if err := setInventoryCategories(ctx, tx, next.ID, next.AssetCategoryIDs); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing inventory update: %w", err)
	}

	result := &model.ScrapResult{}
	if result.Inventory, err = GetInventory(ctx, db, actor.InstituteID, id); err != nil {
		return nil, err
	}
	if scrapedID != 0 {
		if result.Scraped, err = GetInventory(ctx, db, actor.InstituteID, scrapedID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// applyInventoryEdits copies the supplied fields onto next after checking
// that every reference belongs to the institute.
func applyInventoryEdits(ctx context.Context, q querier, instituteID int64, next *model.Inventory, upd InventoryUpdate) error {
	var assetID, roomID int64
	var categories []int64
	if upd.AssetMasterID != nil {
		assetID = *upd.AssetMasterID
	}
	if upd.RoomID != nil {
		roomID = *upd.RoomID
	}
	if upd.AssetCategoryIDs != nil {
		categories = *upd.AssetCategoryIDs
	}

	var assetRef, roomRef *int64
	if upd.AssetMasterID != nil {
		assetRef = &assetID
	}
	if upd.RoomID != nil {
		roomRef = &roomID
	}
	if err := checkReferences(ctx, q, instituteID, assetRef, roomRef, categories); err != nil {
		return err
	}

	if upd.AssetMasterID != nil {
		next.AssetMasterID = assetID
	}
	if upd.RoomID != nil {
		if roomID == 0 {
			next.RoomID = nil
		} else {
			next.RoomID = &roomID
		}
	}
	if upd.AssetCategoryIDs != nil {
		next.AssetCategoryIDs = append([]int64{}, categories...)
	}
	if upd.Quantity != nil {
		next.Quantity = *upd.Quantity
	}
	if upd.Status != nil {
		next.Status = *upd.Status
	}
	if upd.ClearPurchaseDate {
		next.PurchaseDate = nil
	} else if upd.PurchaseDate != nil {
		next.PurchaseDate = upd.PurchaseDate
	}
	if upd.PurchasePrice.Valid {
		next.PurchasePrice = upd.PurchasePrice
	}
	if upd.Remarks != nil {
		next.Remarks = *upd.Remarks
	}
	return nil
}

// splitScrap moves n units of cur into a new scraped row and rewrites the
// original as active stock holding the remainder. next carries the edits
// from the same request. Returns the ID of the new row.
func splitScrap(ctx context.Context, tx *sql.Tx, actor model.Actor, cur, next *model.Inventory, n int, amount decimal.NullDecimal, remarks *string) (int64, error) {
	scraped := *next
	scraped.ID = 0
	scraped.Quantity = n
	scraped.Status = model.StatusScraped
	scraped.ScrapedAmount = amount
	scraped.ScrapedQuantity = &n
	scraped.CreatedBy = &actor.UserID
	scraped.Remarks = ""
	if remarks != nil {
		scraped.Remarks = *remarks
	}
	scraped.Remarks = appendRemark(scraped.Remarks,
		fmt.Sprintf("Scraped %d of %d units split from inventory #%d", n, cur.Quantity, cur.ID))

	scrapedID, err := insertInventory(ctx, tx, &scraped)
	if err != nil {
		return 0, err
	}

	orig := *next
	orig.Quantity = cur.Quantity - n
	orig.Status = model.StatusActiveStock
	orig.ScrapedAmount = decimal.NullDecimal{}
	orig.ScrapedQuantity = nil
	orig.Remarks = appendRemark(cur.Remarks,
		fmt.Sprintf("%d units moved to scraped inventory #%d", n, scrapedID))

	if err := writeInventory(ctx, tx, cur.Quantity, &orig); err != nil {
		return 0, err
	}
	if !sameIDs(cur.AssetCategoryIDs, orig.AssetCategoryIDs) {
		if err := setInventoryCategories(ctx, tx, orig.ID, orig.AssetCategoryIDs); err != nil {
			return 0, err
		}
	}
	return scrapedID, nil
}

// insertInventory inserts a row together with its category links.
func insertInventory(ctx context.Context, tx *sql.Tx, inv *model.Inventory) (int64, error) {
	result, err := tx.ExecContext(ctx,
		`INSERT INTO inventory (institute_id, room_id, asset_master_id, quantity, status,
		                        scraped_amount, scraped_quantity, purchase_date, purchase_price,
		                        remarks, created_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.InstituteID, inv.RoomID, inv.AssetMasterID, inv.Quantity, inv.Status,
		inv.ScrapedAmount, inv.ScrapedQuantity, inv.PurchaseDate, inv.PurchasePrice,
		inv.Remarks, inv.CreatedBy,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting inventory: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("getting inventory id: %w", err)
	}

	if err := setInventoryCategories(ctx, tx, id, inv.AssetCategoryIDs); err != nil {
		return 0, err
	}
	return id, nil
}

// writeInventory rewrites a row if its quantity still equals expectQty.
func writeInventory(ctx context.Context, tx *sql.Tx, expectQty int, inv *model.Inventory) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE inventory SET institute_id = ?, room_id = ?, asset_master_id = ?, quantity = ?, status = ?,
		        scraped_amount = ?, scraped_quantity = ?, purchase_date = ?, purchase_price = ?,
		        remarks = ?, updated_at = ?
		 WHERE id = ? AND quantity = ? AND deleted_at IS NULL`,
		inv.InstituteID, inv.RoomID, inv.AssetMasterID, inv.Quantity, inv.Status,
		inv.ScrapedAmount, inv.ScrapedQuantity, inv.PurchaseDate, inv.PurchasePrice,
		inv.Remarks, now(),
		inv.ID, expectQty,
	)
	if err != nil {
		return fmt.Errorf("updating inventory: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking inventory update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("inventory #%d changed concurrently: %w", inv.ID, ErrConflict)
	}
	return nil
}

func setInventoryCategories(ctx context.Context, tx *sql.Tx, inventoryID int64, categoryIDs []int64) error {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM inventory_categories WHERE inventory_id = ?`, inventoryID,
	); err != nil {
		return fmt.Errorf("clearing inventory categories: %w", err)
	}
	for _, cid := range categoryIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO inventory_categories (inventory_id, category_id) VALUES (?, ?)`,
			inventoryID, cid,
		); err != nil {
			return fmt.Errorf("linking inventory category: %w", err)
		}
	}
	return nil
}

// checkReferences verifies that the referenced asset master, room and
// categories exist in the institute. Nil pointers and zero IDs are skipped.
func checkReferences(ctx context.Context, q querier, instituteID int64, assetMasterID, roomID *int64, categoryIDs []int64) error {
	if assetMasterID != nil {
		am, err := getAssetMaster(ctx, q, instituteID, *assetMasterID)
		if err != nil {
			return err
		}
		if am == nil || am.DeletedAt != nil {
			return NewValidationError("asset_master_id", "asset master not found")
		}
	}

	if roomID != nil && *roomID != 0 {
		room, err := getRoom(ctx, q, instituteID, *roomID)
		if err != nil {
			return err
		}
		if room == nil || room.DeletedAt != nil {
			return NewValidationError("room_id", "room not found")
		}
	}

	for _, cid := range categoryIDs {
		var n int
		err := q.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM asset_categories WHERE id = ? AND institute_id = ?`, cid, instituteID,
		).Scan(&n)
		if err != nil {
			return fmt.Errorf("checking category: %w", err)
		}
		if n == 0 {
			return NewValidationError("asset_category_ids", fmt.Sprintf("category %d not found", cid))
		}
	}
	return nil
}

// DeleteInventory soft-deletes an inventory row. Fails while a pending
// transfer references it.
func DeleteInventory(ctx context.Context, db *sql.DB, instituteID, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var pending int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transfers WHERE inventory_id = ? AND status = ?`,
		id, model.ApprovalPending,
	).Scan(&pending)
	if err != nil {
		return fmt.Errorf("checking pending transfers: %w", err)
	}
	if pending > 0 {
		return fmt.Errorf("cannot delete inventory: %d pending transfers: %w", pending, ErrInUse)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE inventory SET deleted_at = ? WHERE id = ? AND institute_id = ? AND deleted_at IS NULL`,
		now(), id, instituteID,
	)
	if err != nil {
		return fmt.Errorf("deleting inventory: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing inventory deletion: %w", err)
	}
	return nil
}

func appendRemark(remarks, note string) string {
	if remarks == "" {
		return note
	}
	return remarks + "\n" + note
}

func sameIDs(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
