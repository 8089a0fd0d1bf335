package model

import "time"

// Room is a physical location inside an institute that can hold inventory.
type Room struct {
	ID          int64      `json:"id"`
	InstituteID int64      `json:"institute_id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	DeletedAt   *time.Time `json:"deleted_at,omitempty"`
}
