package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/zavod/internal/model"
)

const userColumns = `id, institute_id, username, password_hash, role, created_at, deleted_at`

func scanUser(row interface{ Scan(...any) error }, u *model.User) error {
	return row.Scan(&u.ID, &u.InstituteID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.DeletedAt)
}

// CreateUser creates a new user in an institute.
func CreateUser(ctx context.Context, db *sql.DB, instituteID int64, username, passwordHash, role string) (*model.User, error) {
	existing, err := GetUserByUsername(ctx, db, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("username %q is taken: %w", username, ErrDuplicate)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO users (institute_id, username, password_hash, role) VALUES (?, ?, ?, ?)`,
		instituteID, username, passwordHash, role,
	)
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting user id: %w", err)
	}

	return GetUser(ctx, db, id)
}

// GetUser returns a user by ID regardless of institute. Used for
// authentication; handlers use GetInstituteUser.
func GetUser(ctx context.Context, db *sql.DB, id int64) (*model.User, error) {
	u := &model.User{}
	err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id,
	), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetInstituteUser returns a user by ID if it belongs to the institute.
func GetInstituteUser(ctx context.Context, db *sql.DB, instituteID, id int64) (*model.User, error) {
	u := &model.User{}
	err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND institute_id = ?`, id, instituteID,
	), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns the active user with the given username.
func GetUserByUsername(ctx context.Context, db *sql.DB, username string) (*model.User, error) {
	u := &model.User{}
	err := scanUser(db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ? AND deleted_at IS NULL`, username,
	), u)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting user by username: %w", err)
	}
	return u, nil
}

// ListUsers returns the non-deleted users of an institute.
func ListUsers(ctx context.Context, db *sql.DB, instituteID int64, search string, page model.Page) ([]model.User, model.Pagination, error) {
	page = page.Normalize()

	w := &where{}
	w.add("institute_id = ?", instituteID)
	w.add("deleted_at IS NULL")
	if search != "" {
		w.add(`username LIKE ? ESCAPE '\'`, likePattern(search))
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, model.Pagination{}, fmt.Errorf("counting users: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users`+w.String()+` ORDER BY id LIMIT ? OFFSET ?`,
		append(w.args, page.PerPage, page.Offset())...,
	)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, model.Pagination{}, fmt.Errorf("scanning user: %w", err)
		}
		users = append(users, u)
	}
	return users, model.NewPagination(page, total), rows.Err()
}

// UpdateUser updates a user's role.
func UpdateUser(ctx context.Context, db *sql.DB, instituteID, id int64, role string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET role = ? WHERE id = ? AND institute_id = ? AND deleted_at IS NULL`,
		role, id, instituteID,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	return nil
}

// UpdateUserPassword updates a user's password hash.
func UpdateUserPassword(ctx context.Context, db *sql.DB, id int64, passwordHash string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET password_hash = ? WHERE id = ? AND deleted_at IS NULL`,
		passwordHash, id,
	)
	if err != nil {
		return fmt.Errorf("updating user password: %w", err)
	}
	return nil
}

// DeleteUser soft-deletes a user of an institute.
func DeleteUser(ctx context.Context, db *sql.DB, instituteID, id int64) error {
	_, err := db.ExecContext(ctx,
		`UPDATE users SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND institute_id = ? AND deleted_at IS NULL`,
		id, instituteID,
	)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	return nil
}
