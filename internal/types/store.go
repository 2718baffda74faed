package types

import (
	"time"

	"github.com/google/uuid"
)

// Store is one physical location inside a franchise account inside a brand.
type Store struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID     uuid.UUID `gorm:"type:uuid;not null;index" json:"account_id"`
	BrandID       uuid.UUID `gorm:"type:uuid;not null;index" json:"brand_id"`
	Name          string    `gorm:"not null;column:name" json:"name"`
	Timezone      string    `gorm:"not null;column:timezone" json:"timezone"` // IANA name, e.g. America/Chicago
	Subtype       string    `gorm:"column:subtype" json:"subtype"`
	SendHourLocal int       `gorm:"column:send_hour_local;not null;default:9" json:"send_hour_local"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt     time.Time `gorm:"not null;default:now()" json:"updated_at"`
}

func (Store) TableName() string { return "store" }

func (s *Store) Context() StoreContext {
	return StoreContext{
		StoreID:   s.ID,
		AccountID: s.AccountID,
		BrandID:   s.BrandID,
		Subtype:   s.Subtype,
	}
}

// Location resolves the store's timezone, falling back to UTC if the name
// is unknown. Calendar-date invariants are always evaluated in this zone.
func (s *Store) Location() *time.Location {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// LocalDate formats t as the store-local calendar date (YYYY-MM-DD).
func (s *Store) LocalDate(t time.Time) string {
	return t.In(s.Location()).Format("2006-01-02")
}
