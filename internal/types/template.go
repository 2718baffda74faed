package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Template is one versioned micro-check definition. Versions of the same
// check share a LineageID and form a linear chain through
// ParentTemplateID; at most one version per lineage is active in rotation.
// Rows are never deleted, the chain is the audit history.
type Template struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	LineageID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"lineage_id"`
	Version          int        `gorm:"column:version;not null;default:1" json:"version"`
	ParentTemplateID *uuid.UUID `gorm:"type:uuid;column:parent_template_id" json:"parent_template_id,omitempty"`

	ScopeLevel ScopeLevel `gorm:"column:scope_level;not null;index" json:"scope_level"`
	ScopeID    uuid.UUID  `gorm:"type:uuid;column:scope_id;not null;index" json:"scope_id"`

	Title           string   `gorm:"not null;column:title" json:"title"`
	Category        string   `gorm:"column:category;index" json:"category"`
	SuccessCriteria string   `gorm:"column:success_criteria" json:"success_criteria"`
	Severity        Severity `gorm:"column:severity;not null;default:MEDIUM" json:"severity"`

	RotationPriority  int            `gorm:"column:rotation_priority;not null;default:50" json:"rotation_priority"` // 0..100
	IncludeInRotation bool           `gorm:"column:include_in_rotation;not null;default:true" json:"include_in_rotation"`
	IsActive          bool           `gorm:"column:is_active;not null;default:true;index" json:"is_active"`
	SubtypeFilter     datatypes.JSON `gorm:"type:jsonb;column:subtype_filter" json:"subtype_filter,omitempty"`

	ExpectedCompletionSeconds int  `gorm:"column:expected_completion_seconds;not null;default:60" json:"expected_completion_seconds"`
	PhotoRequiredDefault      bool `gorm:"column:photo_required_default;not null;default:false" json:"photo_required_default"`
	VideoRequiredDefault      bool `gorm:"column:video_required_default;not null;default:false" json:"video_required_default"`
	AIValidation              bool `gorm:"column:ai_validation;not null;default:false" json:"ai_validation"`

	CreatedAt time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Template) TableName() string { return "template" }

func (t *Template) Scope() Scope {
	return Scope{Level: t.ScopeLevel, ID: t.ScopeID}
}

// SubtypeTags decodes the optional business-subtype filter. Empty means
// the template applies to every subtype.
func (t *Template) SubtypeTags() []string {
	if len(t.SubtypeFilter) == 0 {
		return nil
	}
	var tags []string
	if err := json.Unmarshal(t.SubtypeFilter, &tags); err != nil {
		return nil
	}
	return tags
}

// AppliesToSubtype checks the store's subtype against the filter. A store
// without a subtype, or a template without a filter, always matches.
func (t *Template) AppliesToSubtype(subtype string) bool {
	if subtype == "" {
		return true
	}
	tags := t.SubtypeTags()
	if len(tags) == 0 {
		return true
	}
	for _, tag := range tags {
		if tag == subtype {
			return true
		}
	}
	return false
}
