package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Inventory is a quantity of one asset master at one location under one status.
// RoomID is nil for stock that arrived from another institute and has not been
// placed in a room yet.
type Inventory struct {
	ID               int64               `json:"id"`
	InstituteID      int64               `json:"institute_id"`
	RoomID           *int64              `json:"room_id"`
	AssetMasterID    int64               `json:"asset_master_id"`
	AssetCategoryIDs []int64             `json:"asset_category_ids"`
	Quantity         int                 `json:"quantity"`
	Status           InventoryStatus     `json:"status"`
	ScrapedAmount    decimal.NullDecimal `json:"scraped_amount"`
	ScrapedQuantity  *int                `json:"scraped_quantity"`
	PurchaseDate     *time.Time          `json:"purchase_date,omitempty"`
	PurchasePrice    decimal.NullDecimal `json:"purchase_price"`
	Remarks          string              `json:"remarks"`
	CreatedBy        *int64              `json:"created_by,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
	UpdatedAt        time.Time           `json:"updated_at"`

	// Joined fields (not always populated).
	AssetName string `json:"asset_name,omitempty"`
	RoomName  string `json:"room_name,omitempty"`
}

// ScrapResult is the outcome of an inventory update. Scraped is set only when
// the update split part of the row into a new scraped row.
type ScrapResult struct {
	Inventory *Inventory `json:"Inventory"`
	Scraped   *Inventory `json:"ScrapedInventory,omitempty"`
}
