package model

import (
	"fmt"
	"strings"
)

// InventoryStatus is the condition of the units in an inventory row.
type InventoryStatus string

// Inventory statuses.
const (
	StatusActiveStock InventoryStatus = "active_stock"
	StatusDamaged     InventoryStatus = "damaged"
	StatusDiscarded   InventoryStatus = "discarded"
	StatusScraped     InventoryStatus = "scraped"
)

// inventoryStatusAliases maps every spelling clients send to its status.
// Keys are lowercased with spaces, dashes and underscores removed.
var inventoryStatusAliases = map[string]InventoryStatus{
	"activestock": StatusActiveStock,
	"active":      StatusActiveStock,
	"instock":     StatusActiveStock,
	"damaged":     StatusDamaged,
	"broken":      StatusDamaged,
	"discarded":   StatusDiscarded,
	"discard":     StatusDiscarded,
	"scraped":     StatusScraped,
	"scrapped":    StatusScraped,
	"scrap":       StatusScraped,
}

// ParseInventoryStatus normalizes a client supplied status. It is the only
// place free-text statuses are interpreted.
func ParseInventoryStatus(s string) (InventoryStatus, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	if st, ok := inventoryStatusAliases[key]; ok {
		return st, nil
	}
	return "", fmt.Errorf("unknown inventory status %q", s)
}

// ApprovalStatus is the state of a transfer or requisition.
type ApprovalStatus string

// Approval states. Pending is the only non-terminal state.
const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ParseApprovalStatus validates a status filter value.
func ParseApprovalStatus(s string) (ApprovalStatus, error) {
	switch st := ApprovalStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown approval status %q", s)
}

// TargetType is the kind of destination a transfer moves stock to.
type TargetType string

// Transfer targets.
const (
	TargetRoom      TargetType = "room"
	TargetInstitute TargetType = "institute"
)
