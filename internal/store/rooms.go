package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/zavod/internal/model"
)

// CreateRoom creates a new room in an institute.
func CreateRoom(ctx context.Context, db *sql.DB, instituteID int64, name, description string) (*model.Room, error) {
	result, err := db.ExecContext(ctx,
		`INSERT INTO rooms (institute_id, name, description) VALUES (?, ?, ?)`,
		instituteID, name, nullString(description),
	)
	if err != nil {
		return nil, fmt.Errorf("creating room: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting room id: %w", err)
	}

	return GetRoom(ctx, db, instituteID, id)
}

// GetRoom returns a room by ID if it belongs to the institute.
func GetRoom(ctx context.Context, db *sql.DB, instituteID, id int64) (*model.Room, error) {
	return getRoom(ctx, db, instituteID, id)
}

func getRoom(ctx context.Context, q querier, instituteID, id int64) (*model.Room, error) {
	r := &model.Room{}
	var description sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT id, institute_id, name, description, created_at, deleted_at
		 FROM rooms WHERE id = ? AND institute_id = ?`, id, instituteID,
	).Scan(&r.ID, &r.InstituteID, &r.Name, &description, &r.CreatedAt, &r.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting room: %w", err)
	}
	r.Description = description.String
	return r, nil
}

// ListRooms returns the non-deleted rooms of an institute.
func ListRooms(ctx context.Context, db *sql.DB, instituteID int64, search string, page model.Page) ([]model.Room, model.Pagination, error) {
	page = page.Normalize()

	w := &where{}
	w.add("institute_id = ?", instituteID)
	w.add("deleted_at IS NULL")
	if search != "" {
		w.add(`name LIKE ? ESCAPE '\'`, likePattern(search))
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, model.Pagination{}, fmt.Errorf("counting rooms: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, institute_id, name, description, created_at, deleted_at
		 FROM rooms`+w.String()+` ORDER BY name LIMIT ? OFFSET ?`,
		append(w.args, page.PerPage, page.Offset())...,
	)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("listing rooms: %w", err)
	}
	defer rows.Close()

	var rooms []model.Room
	for rows.Next() {
		var r model.Room
		var description sql.NullString
		if err := rows.Scan(&r.ID, &r.InstituteID, &r.Name, &description, &r.CreatedAt, &r.DeletedAt); err != nil {
			return nil, model.Pagination{}, fmt.Errorf("scanning room: %w", err)
		}
		r.Description = description.String
		rooms = append(rooms, r)
	}
	return rooms, model.NewPagination(page, total), rows.Err()
}

// UpdateRoom updates a room's name and description.
func UpdateRoom(ctx context.Context, db *sql.DB, instituteID, id int64, name, description string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE rooms SET name = ?, description = ?
		 WHERE id = ? AND institute_id = ? AND deleted_at IS NULL`,
		name, nullString(description), id, instituteID,
	)
	if err != nil {
		return fmt.Errorf("updating room: %w", err)
	}
	return nil
}

// DeleteRoom soft-deletes a room. Fails if the room still holds inventory or
// is the destination of a pending transfer. Empty inventory rows are taken
// out of the room.
func DeleteRoom(ctx context.Context, db *sql.DB, instituteID, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM inventory
		 WHERE room_id = ? AND institute_id = ? AND deleted_at IS NULL AND quantity > 0`,
		id, instituteID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking room inventory: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("cannot delete room: still holds %d inventory entries: %w", count, ErrInUse)
	}

	var pending int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM transfers
		 WHERE to_room_id = ? AND from_institute_id = ? AND status = ?`,
		id, instituteID, model.ApprovalPending,
	).Scan(&pending)
	if err != nil {
		return fmt.Errorf("checking pending transfers: %w", err)
	}
	if pending > 0 {
		return fmt.Errorf("cannot delete room: destination of %d pending transfers: %w", pending, ErrInUse)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE rooms SET deleted_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND institute_id = ? AND deleted_at IS NULL`,
		id, instituteID,
	)
	if err != nil {
		return fmt.Errorf("deleting room: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE inventory SET room_id = NULL, updated_at = ?
		 WHERE room_id = ? AND institute_id = ? AND quantity = 0`,
		now(), id, instituteID,
	); err != nil {
		return fmt.Errorf("clearing empty inventory rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing room deletion: %w", err)
	}
	return nil
}
