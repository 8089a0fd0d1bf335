package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/zavod/internal/model"
)

// CreateInstitute creates a new tenant.
func CreateInstitute(ctx context.Context, db *sql.DB, name, code string) (*model.Institute, error) {
	existing, err := GetInstituteByCode(ctx, db, code)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("institute code %q is taken: %w", code, ErrDuplicate)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO institutes (name, code) VALUES (?, ?)`,
		name, code,
	)
	if err != nil {
		return nil, fmt.Errorf("creating institute: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting institute id: %w", err)
	}

	return GetInstitute(ctx, db, id)
}

// GetInstitute returns an institute by ID.
func GetInstitute(ctx context.Context, db *sql.DB, id int64) (*model.Institute, error) {
	return getInstitute(ctx, db, id)
}

func getInstitute(ctx context.Context, q querier, id int64) (*model.Institute, error) {
	inst := &model.Institute{}
	err := q.QueryRowContext(ctx,
		`SELECT id, name, code, created_at, deleted_at
		 FROM institutes WHERE id = ?`, id,
	).Scan(&inst.ID, &inst.Name, &inst.Code, &inst.CreatedAt, &inst.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting institute: %w", err)
	}
	return inst, nil
}

// GetInstituteByCode returns an active institute by its short code.
func GetInstituteByCode(ctx context.Context, db *sql.DB, code string) (*model.Institute, error) {
	inst := &model.Institute{}
	err := db.QueryRowContext(ctx,
		`SELECT id, name, code, created_at, deleted_at
		 FROM institutes WHERE code = ? AND deleted_at IS NULL`, code,
	).Scan(&inst.ID, &inst.Name, &inst.Code, &inst.CreatedAt, &inst.DeletedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting institute by code: %w", err)
	}
	return inst, nil
}

// ListInstitutes returns all active institutes. The directory is shared by all
// tenants so staff can pick a transfer destination.
func ListInstitutes(ctx context.Context, db *sql.DB) ([]model.Institute, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, name, code, created_at, deleted_at
		 FROM institutes WHERE deleted_at IS NULL ORDER BY name`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing institutes: %w", err)
	}
	defer rows.Close()

	var institutes []model.Institute
	for rows.Next() {
		var inst model.Institute
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.Code, &inst.CreatedAt, &inst.DeletedAt); err != nil {
			return nil, fmt.Errorf("scanning institute: %w", err)
		}
		institutes = append(institutes, inst)
	}
	return institutes, rows.Err()
}
