package types

import (
	"time"

	"github.com/google/uuid"
)

// StreakSubject distinguishes the per-store counter from the per
// (user, store) counter. Both run the same day-gap logic.
type StreakSubject string

const (
	StreakSubjectStore StreakSubject = "store"
	StreakSubjectUser  StreakSubject = "user"
)

// StreakCounter tracks consecutive store-local calendar days with a
// completed run. For the store counter SubjectID is the store id; for the
// user counter SubjectID is the user id and StoreID still scopes the pair.
// LastRunID makes replays of the same completion event no-ops.
type StreakCounter struct {
	ID                 uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	SubjectType        StreakSubject `gorm:"column:subject_type;not null;uniqueIndex:uniq_streak_subject,priority:1" json:"subject_type"`
	SubjectID          uuid.UUID     `gorm:"type:uuid;column:subject_id;not null;uniqueIndex:uniq_streak_subject,priority:2" json:"subject_id"`
	StoreID            uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:uniq_streak_subject,priority:3;index" json:"store_id"`
	CurrentStreak      int           `gorm:"column:current_streak;not null;default:0" json:"current_streak"`
	LongestStreak      int           `gorm:"column:longest_streak;not null;default:0" json:"longest_streak"`
	TotalCompletions   int           `gorm:"column:total_completions;not null;default:0" json:"total_completions"`
	LastCompletionDate *string       `gorm:"column:last_completion_date" json:"last_completion_date,omitempty"` // YYYY-MM-DD store-local
	LastRunID          *uuid.UUID    `gorm:"type:uuid;column:last_run_id" json:"last_run_id,omitempty"`
	CreatedAt          time.Time     `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt          time.Time     `gorm:"not null;default:now()" json:"updated_at"`
}

func (StreakCounter) TableName() string { return "streak_counter" }
