package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/repos"
	"github.com/anicol/peokops-sub001/internal/types"
)

// StreakService maintains the consecutive-completion-day counters. Store
// and user counters run the same day-gap logic independently; the
// LastRunID guard makes replaying a completion event a no-op.
type StreakService interface {
	// ApplyCompletion updates the store counter and, when the completer is
	// a known user, the (user, store) counter. Must be called inside the
	// same transaction that marks the run COMPLETED.
	ApplyCompletion(ctx context.Context, tx *gorm.DB, run *types.Run, store *types.Store, userID *uuid.UUID, completedAt time.Time) error
	ListForStore(ctx context.Context, storeID uuid.UUID) ([]*types.StreakCounter, error)
}

type streakService struct {
	db         *gorm.DB
	log        *logger.Logger
	streakRepo repos.StreakRepo
}

func NewStreakService(db *gorm.DB, log *logger.Logger, streakRepo repos.StreakRepo) StreakService {
	serviceLog := log.With("service", "StreakService")
	return &streakService{db: db, log: serviceLog, streakRepo: streakRepo}
}

func (s *streakService) ApplyCompletion(ctx context.Context, tx *gorm.DB, run *types.Run, store *types.Store, userID *uuid.UUID, completedAt time.Time) error {
	if run == nil || store == nil {
		return fmt.Errorf("run and store required")
	}
	localDate := store.LocalDate(completedAt)

	if err := s.applyOne(ctx, tx, types.StreakSubjectStore, store.ID, store.ID, run.ID, localDate); err != nil {
		return err
	}
	if userID != nil && *userID != uuid.Nil {
		if err := s.applyOne(ctx, tx, types.StreakSubjectUser, *userID, store.ID, run.ID, localDate); err != nil {
			return err
		}
	}
	return nil
}

func (s *streakService) applyOne(ctx context.Context, tx *gorm.DB, subjectType types.StreakSubject, subjectID, storeID, runID uuid.UUID, localDate string) error {
	counter, err := s.streakRepo.Get(ctx, tx, subjectType, subjectID, storeID)
	if err != nil {
		return fmt.Errorf("load %s streak counter: %w", subjectType, err)
	}
	if counter.LastRunID != nil && *counter.LastRunID == runID {
		// Replay of an already-applied completion event.
		return nil
	}

	switch gap := dayGap(counter.LastCompletionDate, localDate); {
	case gap == 0:
		// Second completion on the same local day leaves the streak alone.
	case gap == 1:
		counter.CurrentStreak++
	default:
		// Gap > 1, a prior date in the future (clock skew), or no prior
		// date at all: the chain restarts at this completion.
		counter.CurrentStreak = 1
	}
	if counter.CurrentStreak > counter.LongestStreak {
		counter.LongestStreak = counter.CurrentStreak
	}
	counter.TotalCompletions++
	dateCopy := localDate
	counter.LastCompletionDate = &dateCopy
	runCopy := runID
	counter.LastRunID = &runCopy

	if err := s.streakRepo.Save(ctx, tx, counter); err != nil {
		return fmt.Errorf("save %s streak counter: %w", subjectType, err)
	}
	return nil
}

// dayGap returns the whole-day distance from the previous completion date
// to the new one, or -1 when there is no usable prior date.
func dayGap(prev *string, next string) int {
	if prev == nil || *prev == "" {
		return -1
	}
	prevDay, err := time.Parse("2006-01-02", *prev)
	if err != nil {
		return -1
	}
	nextDay, err := time.Parse("2006-01-02", next)
	if err != nil {
		return -1
	}
	gap := int(nextDay.Sub(prevDay).Hours() / 24)
	if gap < 0 {
		return -1
	}
	return gap
}

func (s *streakService) ListForStore(ctx context.Context, storeID uuid.UUID) ([]*types.StreakCounter, error) {
	return s.streakRepo.ListForStore(ctx, nil, storeID)
}
