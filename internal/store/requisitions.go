package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/erazemk/zavod/internal/model"
)

const requisitionSelect = `SELECT r.id, r.institute_id, r.asset_master_id, r.description, r.requested_by,
        r.status, r.approved_by, r.approval_date, r.comments, r.created_at, r.updated_at,
        am.name, u.username
 FROM requisitions r
 JOIN asset_masters am ON am.id = r.asset_master_id
 JOIN users u ON u.id = r.requested_by`

func scanRequisition(row interface{ Scan(...any) error }, r *model.Requisition) error {
	var comments sql.NullString
	err := row.Scan(&r.ID, &r.InstituteID, &r.AssetMasterID, &r.Description, &r.RequestedBy,
		&r.Status, &r.ApprovedBy, &r.ApprovalDate, &comments, &r.CreatedAt, &r.UpdatedAt,
		&r.AssetName, &r.RequesterName)
	r.Comments = comments.String
	return err
}

func checkRequisitionInput(ctx context.Context, q querier, instituteID, assetMasterID int64, description string) error {
	if strings.TrimSpace(description) == "" {
		return NewValidationError("description", "is required")
	}
	am, err := getAssetMaster(ctx, q, instituteID, assetMasterID)
	if err != nil {
		return err
	}
	if am == nil || am.DeletedAt != nil {
		return NewValidationError("asset_master_id", "asset master not found")
	}
	return nil
}

// CreateRequisition records a pending request for an asset.
func CreateRequisition(ctx context.Context, db *sql.DB, actor model.Actor, assetMasterID int64, description string) (*model.Requisition, error) {
	if err := checkRequisitionInput(ctx, db, actor.InstituteID, assetMasterID, description); err != nil {
		return nil, err
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO requisitions (institute_id, asset_master_id, description, requested_by) VALUES (?, ?, ?, ?)`,
		actor.InstituteID, assetMasterID, description, actor.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("creating requisition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting requisition id: %w", err)
	}

	return GetRequisition(ctx, db, actor.InstituteID, id)
}

// GetRequisition returns a requisition by ID if it belongs to the institute.
func GetRequisition(ctx context.Context, db *sql.DB, instituteID, id int64) (*model.Requisition, error) {
	return getRequisition(ctx, db, instituteID, id)
}

func getRequisition(ctx context.Context, q querier, instituteID, id int64) (*model.Requisition, error) {
	r := &model.Requisition{}
	err := scanRequisition(q.QueryRowContext(ctx,
		requisitionSelect+` WHERE r.id = ? AND r.institute_id = ?`, id, instituteID,
	), r)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting requisition: %w", err)
	}
	return r, nil
}

// RequisitionFilter narrows requisition listings. Zero values mean no filter.
// ExcludeRequester hides one user's own requisitions, which keeps them out of
// that user's approval queue.
type RequisitionFilter struct {
	Status           model.ApprovalStatus
	RequestedBy      int64
	ExcludeRequester int64
	Search           string
}

// ListRequisitions returns one page of an institute's requisitions, newest first.
func ListRequisitions(ctx context.Context, db *sql.DB, instituteID int64, f RequisitionFilter, page model.Page) ([]model.Requisition, model.Pagination, error) {
	page = page.Normalize()

	w := &where{}
	w.add("r.institute_id = ?", instituteID)
	if f.Status != "" {
		w.add("r.status = ?", f.Status)
	}
	if f.RequestedBy > 0 {
		w.add("r.requested_by = ?", f.RequestedBy)
	}
	if f.ExcludeRequester > 0 {
		w.add("r.requested_by <> ?", f.ExcludeRequester)
	}
	if f.Search != "" {
		p := likePattern(f.Search)
		w.add(`(r.description LIKE ? ESCAPE '\' OR am.name LIKE ? ESCAPE '\')`, p, p)
	}

	var total int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM requisitions r
		 JOIN asset_masters am ON am.id = r.asset_master_id`+w.String(), w.args...,
	).Scan(&total)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("counting requisitions: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		requisitionSelect+w.String()+` ORDER BY r.created_at DESC, r.id DESC LIMIT ? OFFSET ?`,
		append(w.args, page.PerPage, page.Offset())...,
	)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("listing requisitions: %w", err)
	}
	defer rows.Close()

	var reqs []model.Requisition
	for rows.Next() {
		var r model.Requisition
		if err := scanRequisition(rows, &r); err != nil {
			return nil, model.Pagination{}, fmt.Errorf("scanning requisition: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, model.NewPagination(page, total), rows.Err()
}

// ownPendingRequisition loads a requisition the actor may still edit or withdraw.
func ownPendingRequisition(ctx context.Context, q querier, actor model.Actor, id int64) (*model.Requisition, error) {
	r, err := getRequisition(ctx, q, actor.InstituteID, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	if r.RequestedBy != actor.UserID {
		return nil, ErrForbidden
	}
	if r.Status != model.ApprovalPending {
		return nil, fmt.Errorf("requisition #%d is %s: %w", id, r.Status, ErrConflict)
	}
	return r, nil
}

// UpdateRequisition edits a pending requisition. Only its requester may do so.
func UpdateRequisition(ctx context.Context, db *sql.DB, actor model.Actor, id, assetMasterID int64, description string) (*model.Requisition, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := ownPendingRequisition(ctx, tx, actor, id); err != nil {
		return nil, err
	}
	if err := checkRequisitionInput(ctx, tx, actor.InstituteID, assetMasterID, description); err != nil {
		return nil, err
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE requisitions SET asset_master_id = ?, description = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		assetMasterID, description, now(), id, model.ApprovalPending,
	)
	if err != nil {
		return nil, fmt.Errorf("updating requisition: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("requisition #%d: %w", id, ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing requisition update: %w", err)
	}
	return GetRequisition(ctx, db, actor.InstituteID, id)
}

// DeleteRequisition withdraws a pending requisition. Only its requester may do so.
func DeleteRequisition(ctx context.Context, db *sql.DB, actor model.Actor, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := ownPendingRequisition(ctx, tx, actor, id); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM requisitions WHERE id = ? AND status = ?`, id, model.ApprovalPending,
	); err != nil {
		return fmt.Errorf("deleting requisition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing requisition deletion: %w", err)
	}
	return nil
}

// DecideRequisition approves or rejects a pending requisition. Only admins
// decide, a rejection needs a comment, and a requisition that was already
// decided yields ErrConflict. allowSelf controls whether an admin may decide
// their own requisition.
func DecideRequisition(ctx context.Context, db *sql.DB, actor model.Actor, id int64, status model.ApprovalStatus, comments string, allowSelf bool) (*model.Requisition, error) {
	if !actor.CanDecideRequisitions() {
		return nil, ErrForbidden
	}
	if status != model.ApprovalApproved && status != model.ApprovalRejected {
		return nil, NewValidationError("status", "must be approved or rejected")
	}
	if status == model.ApprovalRejected && strings.TrimSpace(comments) == "" {
		return nil, NewValidationError("comments", "a reason is required when rejecting")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	r, err := getRequisition(ctx, tx, actor.InstituteID, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, ErrNotFound
	}
	if r.RequestedBy == actor.UserID && !allowSelf {
		return nil, ErrForbidden
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE requisitions SET status = ?, approved_by = ?, approval_date = ?,
		        comments = ?, updated_at = ?
		 WHERE id = ? AND status = ?`,
		status, actor.UserID, now(), nullString(comments), now(),
		id, model.ApprovalPending,
	)
	if err != nil {
		return nil, fmt.Errorf("deciding requisition: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("requisition #%d is %s: %w", id, r.Status, ErrConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing requisition decision: %w", err)
	}
	return GetRequisition(ctx, db, actor.InstituteID, id)
}
