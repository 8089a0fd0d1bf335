package model

import "time"

// AssetCategory groups asset masters and tags inventory rows.
type AssetCategory struct {
	ID          int64     `json:"id"`
	InstituteID int64     `json:"institute_id"`
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
}

// AssetMaster is a catalog entry describing a kind of asset
// (quantity-based, not individual tracking).
type AssetMaster struct {
	ID          int64      `json:"id"`
	InstituteID int64      `json:"institute_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CategoryID  *int64     `json:"category_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`

	// Joined fields (not always populated).
	CategoryName string `json:"category_name,omitempty"`
}

// Distribution is the quantity of one asset master held in a room under a status.
type Distribution struct {
	RoomID   *int64          `json:"room_id"`
	RoomName string          `json:"room_name,omitempty"`
	Status   InventoryStatus `json:"status"`
	Quantity int             `json:"quantity"`
}
