package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/zavod/internal/model"
)

const transferSelect = `SELECT t.id, t.inventory_id, t.from_institute_id, t.from_room_id, t.target_type,
        t.to_room_id, t.to_institute_id, t.quantity, t.status, t.notes, t.comments,
        t.requested_by, t.approved_by, t.approved_at, t.result_inventory_id, t.created_at,
        am.name, u.username
 FROM transfers t
 JOIN inventory inv ON inv.id = t.inventory_id
 JOIN asset_masters am ON am.id = inv.asset_master_id
 JOIN users u ON u.id = t.requested_by`

func scanTransfer(row interface{ Scan(...any) error }, t *model.Transfer) error {
	var notes, comments sql.NullString
	err := row.Scan(&t.ID, &t.InventoryID, &t.FromInstituteID, &t.FromRoomID, &t.TargetType,
		&t.ToRoomID, &t.ToInstituteID, &t.Quantity, &t.Status, &notes, &comments,
		&t.RequestedBy, &t.ApprovedBy, &t.ApprovedAt, &t.ResultInventoryID, &t.CreatedAt,
		&t.AssetName, &t.RequesterName)
	t.Notes = notes.String
	t.Comments = comments.String
	return err
}

// CreateTransfer records a pending request to move units of an inventory row.
// The source location is snapshotted but no stock moves until approval.
func CreateTransfer(ctx context.Context, db *sql.DB, actor model.Actor, req model.TransferRequest) (*model.Transfer, error) {
	if req.Quantity <= 0 {
		return nil, NewValidationError("quantity", "must be positive")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	inv, err := getInventory(ctx, tx, actor.InstituteID, req.InventoryID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory #%d: %w", req.InventoryID, ErrNotFound)
	}
	if req.Quantity > inv.Quantity {
		return nil, fmt.Errorf("have %d, requested %d: %w", inv.Quantity, req.Quantity, ErrInsufficientQuantity)
	}

	var toRoom, toInstitute sql.NullInt64
	switch req.TargetType {
	case model.TargetRoom:
		room, err := getRoom(ctx, tx, actor.InstituteID, req.DestinationRoomID)
		if err != nil {
			return nil, err
		}
		if room == nil || room.DeletedAt != nil {
			return nil, NewValidationError("destination_room_id", "room not found")
		}
		if inv.RoomID != nil && *inv.RoomID == room.ID {
			return nil, NewValidationError("destination_room_id", "inventory is already in this room")
		}
		toRoom = nullInt64(room.ID)
	case model.TargetInstitute:
		if req.DestinationInstituteID == actor.InstituteID {
			return nil, NewValidationError("destination_institute_id", "must be another institute")
		}
		inst, err := getInstitute(ctx, tx, req.DestinationInstituteID)
		if err != nil {
			return nil, err
		}
		if inst == nil || inst.DeletedAt != nil {
			return nil, NewValidationError("destination_institute_id", "institute not found")
		}
		toInstitute = nullInt64(inst.ID)
	default:
		return nil, NewValidationError("target_type", "must be room or institute")
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO transfers (inventory_id, from_institute_id, from_room_id, target_type,
		                        to_room_id, to_institute_id, quantity, notes, requested_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inv.ID, inv.InstituteID, inv.RoomID, req.TargetType,
		toRoom, toInstitute, req.Quantity, nullString(req.Notes), actor.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("recording transfer: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting transfer id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transfer: %w", err)
	}

	return GetTransfer(ctx, db, actor.InstituteID, id)
}

// GetTransfer returns a transfer visible to the institute: outgoing transfers
// and transfers addressed to it.
func GetTransfer(ctx context.Context, db *sql.DB, instituteID, id int64) (*model.Transfer, error) {
	t, err := getTransfer(ctx, db, id)
	if err != nil || t == nil {
		return nil, err
	}
	if t.FromInstituteID != instituteID && (t.ToInstituteID == nil || *t.ToInstituteID != instituteID) {
		return nil, nil
	}
	return t, nil
}

func getTransfer(ctx context.Context, q querier, id int64) (*model.Transfer, error) {
	t := &model.Transfer{}
	err := scanTransfer(q.QueryRowContext(ctx, transferSelect+` WHERE t.id = ?`, id), t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}
	return t, nil
}

// Transfer directions relative to the listing institute.
const (
	DirectionOutgoing = "outgoing"
	DirectionIncoming = "incoming"
)

// TransferFilter narrows transfer listings. Zero values mean no filter.
type TransferFilter struct {
	Status      model.ApprovalStatus
	InventoryID int64
	Direction   string
	Search      string
}

// ListTransfers returns one page of the transfers visible to an institute,
// newest first.
func ListTransfers(ctx context.Context, db *sql.DB, instituteID int64, f TransferFilter, page model.Page) ([]model.Transfer, model.Pagination, error) {
	page = page.Normalize()

	w := &where{}
	switch f.Direction {
	case DirectionOutgoing:
		w.add("t.from_institute_id = ?", instituteID)
	case DirectionIncoming:
		w.add("t.to_institute_id = ?", instituteID)
	default:
		w.add("(t.from_institute_id = ? OR t.to_institute_id = ?)", instituteID, instituteID)
	}
	if f.Status != "" {
		w.add("t.status = ?", f.Status)
	}
	if f.InventoryID > 0 {
		w.add("t.inventory_id = ?", f.InventoryID)
	}
	if f.Search != "" {
		w.add(`am.name LIKE ? ESCAPE '\'`, likePattern(f.Search))
	}

	var total int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transfers t
		 JOIN inventory inv ON inv.id = t.inventory_id
		 JOIN asset_masters am ON am.id = inv.asset_master_id`+w.String(), w.args...,
	).Scan(&total)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("counting transfers: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		transferSelect+w.String()+` ORDER BY t.created_at DESC, t.id DESC LIMIT ? OFFSET ?`,
		append(w.args, page.PerPage, page.Offset())...,
	)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("listing transfers: %w", err)
	}
	defer rows.Close()

	var transfers []model.Transfer
	for rows.Next() {
		var t model.Transfer
		if err := scanTransfer(rows, &t); err != nil {
			return nil, model.Pagination{}, fmt.Errorf("scanning transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	return transfers, model.NewPagination(page, total), rows.Err()
}

// ApproveTransfer moves the requested units to the destination and marks the
// transfer approved, all in one transaction.
//
// When the transfer covers the whole row, the row is relocated in place.
// Otherwise the source row is decremented and a copy holding the transferred
// units is created at the destination. The source row is re-read inside the
// transaction; if it no longer holds enough units the transfer stays pending
// and ErrInsufficientQuantity is returned. A transfer that is no longer
// pending yields ErrConflict and nothing is changed.
func ApproveTransfer(ctx context.Context, db *sql.DB, actor model.Actor, id int64) (*model.Transfer, error) {
	if !actor.CanApproveTransfers() {
		return nil, ErrForbidden
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	t, err := pendingTransfer(ctx, tx, actor, id)
	if err != nil {
		return nil, err
	}

	inv, err := getInventory(ctx, tx, t.FromInstituteID, t.InventoryID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, fmt.Errorf("inventory #%d is no longer at the source: %w", t.InventoryID, ErrInsufficientQuantity)
	}
	if inv.Quantity < t.Quantity {
		return nil, fmt.Errorf("have %d, transfer needs %d: %w", inv.Quantity, t.Quantity, ErrInsufficientQuantity)
	}

	if err := checkDestination(ctx, tx, t); err != nil {
		return nil, err
	}

	var resultID sql.NullInt64
	if t.Quantity == inv.Quantity {
		moved := *inv
		moveTo(&moved, t)
		if err := writeInventory(ctx, tx, inv.Quantity, &moved); err != nil {
			return nil, err
		}
	} else {
		src := *inv
		src.Quantity -= t.Quantity
		if src.Status == model.StatusScraped {
			q := src.Quantity
			src.ScrapedQuantity = &q
		}
		if err := writeInventory(ctx, tx, inv.Quantity, &src); err != nil {
			return nil, err
		}

		clone := *inv
		clone.ID = 0
		clone.Quantity = t.Quantity
		clone.CreatedBy = &actor.UserID
		if clone.Status == model.StatusScraped {
			q := t.Quantity
			clone.ScrapedQuantity = &q
		}
		clone.Remarks = appendRemark(inv.Remarks,
			fmt.Sprintf("%d units transferred from inventory #%d by transfer #%d", t.Quantity, inv.ID, t.ID))
		moveTo(&clone, t)

		newID, err := insertInventory(ctx, tx, &clone)
		if err != nil {
			return nil, err
		}
		resultID = nullInt64(newID)
	}

	if err := decideTransfer(ctx, tx, actor, t.ID, model.ApprovalApproved, "", resultID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing approval: %w", err)
	}

	return getTransfer(ctx, db, id)
}

// RejectTransfer marks a pending transfer rejected. Inventory is not touched.
func RejectTransfer(ctx context.Context, db *sql.DB, actor model.Actor, id int64, comments string) (*model.Transfer, error) {
	if !actor.CanApproveTransfers() {
		return nil, ErrForbidden
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := pendingTransfer(ctx, tx, actor, id); err != nil {
		return nil, err
	}
	if err := decideTransfer(ctx, tx, actor, id, model.ApprovalRejected, comments, sql.NullInt64{}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing rejection: %w", err)
	}

	return getTransfer(ctx, db, id)
}

// pendingTransfer loads a transfer the actor's institute may decide.
func pendingTransfer(ctx context.Context, q querier, actor model.Actor, id int64) (*model.Transfer, error) {
	t, err := getTransfer(ctx, q, id)
	if err != nil {
		return nil, err
	}
	if t == nil || t.FromInstituteID != actor.InstituteID {
		return nil, ErrNotFound
	}
	if t.Status != model.ApprovalPending {
		return nil, fmt.Errorf("transfer #%d is %s: %w", id, t.Status, ErrConflict)
	}
	return t, nil
}

// decideTransfer moves a transfer out of pending. Zero rows affected means
// another request decided it first.
func decideTransfer(ctx context.Context, tx *sql.Tx, actor model.Actor, id int64, status model.ApprovalStatus, comments string, resultID sql.NullInt64) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE transfers SET status = ?, approved_by = ?, approved_at = ?,
		        comments = COALESCE(?, comments), result_inventory_id = ?
		 WHERE id = ? AND status = ?`,
		status, actor.UserID, now(), nullString(comments), resultID,
		id, model.ApprovalPending,
	)
	if err != nil {
		return fmt.Errorf("updating transfer: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking transfer update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("transfer #%d: %w", id, ErrConflict)
	}
	return nil
}

// checkDestination verifies that the destination of a transfer still exists.
func checkDestination(ctx context.Context, q querier, t *model.Transfer) error {
	switch t.TargetType {
	case model.TargetRoom:
		room, err := getRoom(ctx, q, t.FromInstituteID, *t.ToRoomID)
		if err != nil {
			return err
		}
		if room == nil || room.DeletedAt != nil {
			return NewValidationError("destination_room_id", "room not found")
		}
	case model.TargetInstitute:
		inst, err := getInstitute(ctx, q, *t.ToInstituteID)
		if err != nil {
			return err
		}
		if inst == nil || inst.DeletedAt != nil {
			return NewValidationError("destination_institute_id", "institute not found")
		}
	}
	return nil
}

// moveTo rewrites an inventory row's location to the transfer destination.
// Rows arriving in another institute have no room until they are placed.
func moveTo(inv *model.Inventory, t *model.Transfer) {
	switch t.TargetType {
	case model.TargetRoom:
		room := *t.ToRoomID
		inv.RoomID = &room
	case model.TargetInstitute:
		inv.InstituteID = *t.ToInstituteID
		inv.RoomID = nil
	}
}
