package types

import (
	"time"

	"github.com/google/uuid"
)

// Response is the single recorded outcome for one run item. The unique
// index on run_item_id is the double-submit guard.
type Response struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	RunItemID   uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"run_item_id"`
	Status      ResponseStatus `gorm:"column:status;not null" json:"status"`
	Notes       string         `gorm:"column:notes" json:"notes,omitempty"`
	PhotoRef    string         `gorm:"column:photo_ref" json:"photo_ref,omitempty"`
	RespondedBy *string        `gorm:"column:responded_by" json:"responded_by,omitempty"` // nil for anonymous token bearers
	RespondedAt time.Time      `gorm:"column:responded_at;not null" json:"responded_at"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
}

func (Response) TableName() string { return "response" }
