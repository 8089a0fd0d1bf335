package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/zavod/internal/model"
)

// CreateCategory creates an asset category.
func CreateCategory(ctx context.Context, db *sql.DB, instituteID int64, name string) (*model.AssetCategory, error) {
	var taken bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM asset_categories WHERE institute_id = ? AND name = ?)`, instituteID, name,
	).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("checking category name: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("category %q exists: %w", name, ErrDuplicate)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO asset_categories (institute_id, name) VALUES (?, ?)`,
		instituteID, name,
	)
	if err != nil {
		return nil, fmt.Errorf("creating category: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting category id: %w", err)
	}

	return GetCategory(ctx, db, instituteID, id)
}

// GetCategory returns a category by ID if it belongs to the institute.
func GetCategory(ctx context.Context, db *sql.DB, instituteID, id int64) (*model.AssetCategory, error) {
	c := &model.AssetCategory{}
	err := db.QueryRowContext(ctx,
		`SELECT id, institute_id, name, created_at
		 FROM asset_categories WHERE id = ? AND institute_id = ?`, id, instituteID,
	).Scan(&c.ID, &c.InstituteID, &c.Name, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting category: %w", err)
	}
	return c, nil
}

// ListCategories returns all categories of an institute.
func ListCategories(ctx context.Context, db *sql.DB, instituteID int64) ([]model.AssetCategory, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, institute_id, name, created_at
		 FROM asset_categories WHERE institute_id = ? ORDER BY name`, instituteID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing categories: %w", err)
	}
	defer rows.Close()

	var categories []model.AssetCategory
	for rows.Next() {
		var c model.AssetCategory
		if err := rows.Scan(&c.ID, &c.InstituteID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning category: %w", err)
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// UpdateCategory renames a category.
func UpdateCategory(ctx context.Context, db *sql.DB, instituteID, id int64, name string) error {
	_, err := db.ExecContext(ctx,
		`UPDATE asset_categories SET name = ? WHERE id = ? AND institute_id = ?`,
		name, id, instituteID,
	)
	if err != nil {
		return fmt.Errorf("updating category: %w", err)
	}
	return nil
}

// DeleteCategory removes a category. Fails while any asset master or
// inventory row references it.
func DeleteCategory(ctx context.Context, db *sql.DB, instituteID, id int64) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var refs int
	err = tx.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM asset_masters WHERE category_id = ? AND deleted_at IS NULL)
		      + (SELECT COUNT(*) FROM inventory_categories WHERE category_id = ?)`,
		id, id,
	).Scan(&refs)
	if err != nil {
		return fmt.Errorf("checking category references: %w", err)
	}
	if refs > 0 {
		return fmt.Errorf("cannot delete category: referenced %d times: %w", refs, ErrInUse)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM asset_categories WHERE id = ? AND institute_id = ?`, id, instituteID,
	)
	if err != nil {
		return fmt.Errorf("deleting category: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing category deletion: %w", err)
	}
	return nil
}

const assetMasterSelect = `SELECT am.id, am.institute_id, am.name, am.description, am.category_id,
        am.created_at, am.updated_at, am.deleted_at, COALESCE(c.name, '')
 FROM asset_masters am
 LEFT JOIN asset_categories c ON c.id = am.category_id`

func scanAssetMaster(row interface{ Scan(...any) error }, am *model.AssetMaster) error {
	var description sql.NullString
	err := row.Scan(&am.ID, &am.InstituteID, &am.Name, &description, &am.CategoryID,
		&am.CreatedAt, &am.UpdatedAt, &am.DeletedAt, &am.CategoryName)
	am.Description = description.String
	return err
}

// CreateAssetMaster creates a catalog entry. The category, when given, must
// belong to the same institute.
func CreateAssetMaster(ctx context.Context, db *sql.DB, instituteID int64, name, description string, categoryID int64) (*model.AssetMaster, error) {
	if categoryID != 0 {
		c, err := GetCategory(ctx, db, instituteID, categoryID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, NewValidationError("category_id", "category not found")
		}
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO asset_masters (institute_id, name, description, category_id) VALUES (?, ?, ?, ?)`,
		instituteID, name, nullString(description), nullInt64(categoryID),
	)
	if err != nil {
		return nil, fmt.Errorf("creating asset master: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting asset master id: %w", err)
	}

	return GetAssetMaster(ctx, db, instituteID, id)
}

// GetAssetMaster returns an asset master by ID if it belongs to the institute.
func GetAssetMaster(ctx context.Context, db *sql.DB, instituteID, id int64) (*model.AssetMaster, error) {
	return getAssetMaster(ctx, db, instituteID, id)
}

func getAssetMaster(ctx context.Context, q querier, instituteID, id int64) (*model.AssetMaster, error) {
	am := &model.AssetMaster{}
	err := scanAssetMaster(q.QueryRowContext(ctx,
		assetMasterSelect+` WHERE am.id = ? AND am.institute_id = ?`, id, instituteID,
	), am)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting asset master: %w", err)
	}
	return am, nil
}

// ListAssetMasters returns the non-deleted catalog of an institute,
// optionally filtered by category and a name substring.
func ListAssetMasters(ctx context.Context, db *sql.DB, instituteID, categoryID int64, search string, page model.Page) ([]model.AssetMaster, model.Pagination, error) {
	page = page.Normalize()

	w := &where{}
	w.add("am.institute_id = ?", instituteID)
	w.add("am.deleted_at IS NULL")
	if categoryID > 0 {
		w.add("am.category_id = ?", categoryID)
	}
	if search != "" {
		w.add(`am.name LIKE ? ESCAPE '\'`, likePattern(search))
	}

	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM asset_masters am`+w.String(), w.args...).Scan(&total); err != nil {
		return nil, model.Pagination{}, fmt.Errorf("counting asset masters: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		assetMasterSelect+w.String()+` ORDER BY am.name LIMIT ? OFFSET ?`,
		append(w.args, page.PerPage, page.Offset())...,
	)
	if err != nil {
		return nil, model.Pagination{}, fmt.Errorf("listing asset masters: %w", err)
	}
	defer rows.Close()

	var masters []model.AssetMaster
	for rows.Next() {
		var am model.AssetMaster
		if err := scanAssetMaster(rows, &am); err != nil {
			return nil, model.Pagination{}, fmt.Errorf("scanning asset master: %w", err)
		}
		masters = append(masters, am)
	}
	return masters, model.NewPagination(page, total), rows.Err()
}

// UpdateAssetMaster updates an asset master's metadata.
func UpdateAssetMaster(ctx context.Context, db *sql.DB, instituteID, id int64, name, description string, categoryID int64) error {
	if categoryID != 0 {
		c, err := GetCategory(ctx, db, instituteID, categoryID)
		if err != nil {
			return err
		}
		if c == nil {
			return NewValidationError("category_id", "category not found")
		}
	}

	_, err := db.ExecContext(ctx,
		`UPDATE asset_masters SET name = ?, description = ?, category_id = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND institute_id = ? AND deleted_at IS NULL`,
		name, nullString(description), nullInt64(categoryID), id, instituteID,
	)
	if err != nil {
		return fmt.Errorf("updating asset master: %w", err)
	}
	return nil
}

// DeleteAssetMaster soft-deletes an asset master. Inventory keeps referencing it.
func DeleteAssetMaster(ctx context.Context, db *sql.DB, instituteID, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE asset_masters SET deleted_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND institute_id = ? AND deleted_at IS NULL`,
		id, instituteID,
	)
	if err != nil {
		return fmt.Errorf("deleting asset master: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetAssetDistribution returns how the units of one asset master are spread
// over the rooms and statuses of an institute.
func GetAssetDistribution(ctx context.Context, db *sql.DB, instituteID, assetMasterID int64) ([]model.Distribution, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT inv.room_id, COALESCE(r.name, ''), inv.status, SUM(inv.quantity)
		 FROM inventory inv
		 LEFT JOIN rooms r ON r.id = inv.room_id
		 WHERE inv.asset_master_id = ? AND inv.institute_id = ? AND inv.deleted_at IS NULL
		 GROUP BY inv.room_id, inv.status
		 ORDER BY r.name, inv.status`, assetMasterID, instituteID,
	)
	if err != nil {
		return nil, fmt.Errorf("getting asset distribution: %w", err)
	}
	defer rows.Close()

	var dist []model.Distribution
	for rows.Next() {
		var d model.Distribution
		if err := rows.Scan(&d.RoomID, &d.RoomName, &d.Status, &d.Quantity); err != nil {
			return nil, fmt.Errorf("scanning distribution: %w", err)
		}
		dist = append(dist, d)
	}
	return dist, rows.Err()
}
