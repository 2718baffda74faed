package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Run is one batch of selected checks for a store on one store-local
// calendar day. The unique (store_id, local_date) index is what makes
// concurrent materialization converge to a single row.
type Run struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID     uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uniq_store_local_date,priority:1" json:"store_id"`
	LocalDate   string         `gorm:"column:local_date;not null;uniqueIndex:uniq_store_local_date,priority:2" json:"local_date"` // YYYY-MM-DD in the store's timezone
	Status      RunStatus      `gorm:"column:status;not null;index" json:"status"`
	Trigger     RunTrigger     `gorm:"column:trigger;not null" json:"trigger"`
	ExpiresAt   *time.Time     `gorm:"column:expires_at;index" json:"expires_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CompletedBy *string        `gorm:"column:completed_by" json:"completed_by,omitempty"`
	Metadata    datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:now()" json:"updated_at"`

	Items []RunItem `gorm:"foreignKey:RunID;references:ID" json:"items,omitempty"`
}

func (Run) TableName() string { return "run" }

// RunItem is an immutable snapshot of one selected template, copied at
// selection time so later template edits never alter a historical run.
type RunItem struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	RunID           uuid.UUID `gorm:"type:uuid;not null;index" json:"run_id"`
	TemplateID      uuid.UUID `gorm:"type:uuid;not null;index" json:"template_id"` // exact version used
	LineageID       uuid.UUID `gorm:"type:uuid;not null;index" json:"lineage_id"`
	TemplateVersion int       `gorm:"column:template_version;not null" json:"template_version"`
	Position        int       `gorm:"column:position;not null" json:"position"`

	Title           string   `gorm:"not null;column:title" json:"title"`
	Category        string   `gorm:"column:category" json:"category"`
	Severity        Severity `gorm:"column:severity;not null" json:"severity"`
	SuccessCriteria string   `gorm:"column:success_criteria" json:"success_criteria"`

	PhotoRequired bool   `gorm:"column:photo_required;not null;default:false" json:"photo_required"`
	PhotoReason   string `gorm:"column:photo_reason" json:"photo_reason"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`

	Response *Response `gorm:"foreignKey:RunItemID;references:ID" json:"response,omitempty"`
}

func (RunItem) TableName() string { return "run_item" }
