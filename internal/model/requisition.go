package model

import "time"

// Requisition is a staff request for an asset. Deciding it never touches inventory.
type Requisition struct {
	ID            int64          `json:"id"`
	InstituteID   int64          `json:"institute_id"`
	AssetMasterID int64          `json:"asset_master_id"`
	Description   string         `json:"description"`
	RequestedBy   int64          `json:"requested_by"`
	Status        ApprovalStatus `json:"status"`
	ApprovedBy    *int64         `json:"approved_by"`
	ApprovalDate  *time.Time     `json:"approval_date"`
	Comments      string         `json:"comments,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`

	// Joined fields (not always populated).
	AssetName     string `json:"asset_name,omitempty"`
	RequesterName string `json:"requester_name,omitempty"`
}
