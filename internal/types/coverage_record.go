package types

import (
	"time"

	"github.com/google/uuid"
)

// CoverageRecord is the current verification state of one check lineage at
// one store. Exactly one row per (store, lineage); updated in place by the
// response lifecycle, read-only for selection. Coverage is keyed by lineage
// rather than version so publishing a new template version does not reset
// the store's freshness signal.
type CoverageRecord struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID        uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uniq_store_lineage,priority:1" json:"store_id"`
	LineageID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:uniq_store_lineage,priority:2" json:"lineage_id"`
	LastVerifiedAt *time.Time      `gorm:"column:last_verified_at" json:"last_verified_at,omitempty"`
	LastStatus     *ResponseStatus `gorm:"column:last_status" json:"last_status,omitempty"`
	LastVerifiedBy *string         `gorm:"column:last_verified_by" json:"last_verified_by,omitempty"`
	CreatedAt      time.Time       `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null;default:now()" json:"updated_at"`
}

func (CoverageRecord) TableName() string { return "coverage_record" }

// NeverVerified reports whether the lineage has never been checked at the
// store (including the no-row case represented by a zero record).
func (c *CoverageRecord) NeverVerified() bool {
	return c == nil || c.LastVerifiedAt == nil
}

// LastFailed reports whether the most recent outcome was FAIL.
func (c *CoverageRecord) LastFailed() bool {
	return c != nil && c.LastStatus != nil && *c.LastStatus == ResponseFail
}
