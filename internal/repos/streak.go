package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/types"
)

type StreakRepo interface {
	// Get loads the counter for a subject, or initializes one in memory
	// without inserting. Callers persist via Save inside their own
	// transaction.
	Get(ctx context.Context, tx *gorm.DB, subjectType types.StreakSubject, subjectID, storeID uuid.UUID) (*types.StreakCounter, error)
	Save(ctx context.Context, tx *gorm.DB, counter *types.StreakCounter) error
	ListForStore(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) ([]*types.StreakCounter, error)
}

type streakRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStreakRepo(db *gorm.DB, baseLog *logger.Logger) StreakRepo {
	repoLog := baseLog.With("repo", "StreakRepo")
	return &streakRepo{db: db, log: repoLog}
}

func (r *streakRepo) Get(ctx context.Context, tx *gorm.DB, subjectType types.StreakSubject, subjectID, storeID uuid.UUID) (*types.StreakCounter, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var counter types.StreakCounter
	err := transaction.WithContext(ctx).
		Where("subject_type = ? AND subject_id = ? AND store_id = ?", subjectType, subjectID, storeID).
		First(&counter).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &types.StreakCounter{
				ID:          uuid.New(),
				SubjectType: subjectType,
				SubjectID:   subjectID,
				StoreID:     storeID,
				CreatedAt:   time.Now(),
			}, nil
		}
		return nil, err
	}
	return &counter, nil
}

func (r *streakRepo) Save(ctx context.Context, tx *gorm.DB, counter *types.StreakCounter) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if counter == nil {
		return errors.New("counter required")
	}
	counter.UpdatedAt = time.Now()
	return transaction.WithContext(ctx).Save(counter).Error
}

func (r *streakRepo) ListForStore(ctx context.Context, tx *gorm.DB, storeID uuid.UUID) ([]*types.StreakCounter, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var counters []*types.StreakCounter
	if err := transaction.WithContext(ctx).
		Where("store_id = ?", storeID).
		Find(&counters).Error; err != nil {
		return nil, err
	}
	return counters, nil
}
