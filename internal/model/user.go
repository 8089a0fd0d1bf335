package model

import (
	"fmt"
	"time"
)

// User is a staff account belonging to one institute.
type User struct {
	ID           int64      `json:"id"`
	InstituteID  int64      `json:"institute_id"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	Role         string     `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
}

// Roles.
const (
	RoleAdmin         = "admin"
	RoleVicePrincipal = "viceprincipal"
	RoleStaff         = "staff"
)

// MinPasswordLength is the shortest password accepted for an account.
const MinPasswordLength = 8

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleVicePrincipal || role == RoleStaff
}

// RoleAtLeast checks if role meets or exceeds the minimum required role.
func RoleAtLeast(role, minimum string) bool {
	levels := map[string]int{
		RoleAdmin:         3,
		RoleVicePrincipal: 2,
		RoleStaff:         1,
	}
	return levels[role] >= levels[minimum] && levels[minimum] > 0
}

// ValidatePassword checks password strength requirements.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	}
	return nil
}

// Actor is the authenticated principal a request acts for. Store operations
// take it explicitly instead of reading ambient auth state.
type Actor struct {
	UserID      int64
	InstituteID int64
	Username    string
	Role        string
}

// CanApproveTransfers reports whether the actor may decide transfers.
func (a Actor) CanApproveTransfers() bool {
	return RoleAtLeast(a.Role, RoleVicePrincipal)
}

// CanDecideRequisitions reports whether the actor may decide requisitions.
func (a Actor) CanDecideRequisitions() bool {
	return a.Role == RoleAdmin
}
