package model

import "time"

// Transfer is a request to move some units of an inventory row to another
// room of the same institute or to another institute. Stock only moves when
// the transfer is approved.
type Transfer struct {
	ID              int64          `json:"id"`
	InventoryID     int64          `json:"inventory_id"`
	FromInstituteID int64          `json:"from_institute_id"`
	FromRoomID      *int64         `json:"from_room_id"`
	TargetType      TargetType     `json:"target_type"`
	ToRoomID        *int64         `json:"to_room_id"`
	ToInstituteID   *int64         `json:"to_institute_id"`
	Quantity        int            `json:"quantity"`
	Status          ApprovalStatus `json:"status"`
	Notes           string         `json:"notes,omitempty"`
	Comments        string         `json:"comments,omitempty"`
	RequestedBy     int64          `json:"requested_by"`
	ApprovedBy      *int64         `json:"approved_by"`
	ApprovedAt      *time.Time     `json:"approved_at"`
	// ResultInventoryID is the row created at the destination by a partial transfer.
	ResultInventoryID *int64    `json:"result_inventory_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`

	// Joined fields (not always populated).
	AssetName     string `json:"asset_name,omitempty"`
	RequesterName string `json:"requester_name,omitempty"`
}

// TransferRequest is the input for creating a transfer.
type TransferRequest struct {
	InventoryID            int64
	TargetType             TargetType
	DestinationRoomID      int64
	DestinationInstituteID int64
	Quantity               int
	Notes                  string
}
