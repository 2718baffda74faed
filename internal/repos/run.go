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

// ErrRunExists surfaces the (store_id, local_date) uniqueness violation so
// the scheduler can return the winning run instead of an error.
var ErrRunExists = errors.New("run already exists for store and local date")

type RunRepo interface {
	// CreateWithItems inserts the run and its item snapshots. Returns
	// ErrRunExists when another writer won the (store, local_date) race.
	CreateWithItems(ctx context.Context, tx *gorm.DB, run *types.Run, items []*types.RunItem) error

	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Run, error)
	GetByIDWithItems(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Run, error)
	GetByStoreAndDate(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, localDate string) (*types.Run, error)

	GetItemByID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (*types.RunItem, error)
	ListItems(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.RunItem, error)
	CountUnanswered(ctx context.Context, tx *gorm.DB, runID uuid.UUID) (int64, error)

	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	ExpireOverdue(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

type runRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewRunRepo(db *gorm.DB, baseLog *logger.Logger) RunRepo {
	repoLog := baseLog.With("repo", "RunRepo")
	return &runRepo{db: db, log: repoLog}
}

func (r *runRepo) CreateWithItems(ctx context.Context, tx *gorm.DB, run *types.Run, items []*types.RunItem) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if run == nil {
		return errors.New("run required")
	}
	return transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		if err := txx.Create(run).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrRunExists
			}
			return err
		}
		if len(items) == 0 {
			return nil
		}
		if err := txx.Create(&items).Error; err != nil {
			return err
		}
		return nil
	})
}

func (r *runRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Run, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.Run
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) GetByIDWithItems(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Run, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.Run
	err := transaction.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("run_item.position ASC")
		}).
		Preload("Items.Response").
		Where("id = ?", id).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) GetByStoreAndDate(ctx context.Context, tx *gorm.DB, storeID uuid.UUID, localDate string) (*types.Run, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var run types.Run
	err := transaction.WithContext(ctx).
		Where("store_id = ? AND local_date = ?", storeID, localDate).
		First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &run, nil
}

func (r *runRepo) GetItemByID(ctx context.Context, tx *gorm.DB, itemID uuid.UUID) (*types.RunItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var item types.RunItem
	err := transaction.WithContext(ctx).
		Where("id = ?", itemID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &item, nil
}

func (r *runRepo) ListItems(ctx context.Context, tx *gorm.DB, runID uuid.UUID) ([]*types.RunItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var items []*types.RunItem
	if err := transaction.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("position ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *runRepo) CountUnanswered(ctx context.Context, tx *gorm.DB, runID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.RunItem{}).
		Where("run_id = ?", runID).
		Where("id NOT IN (?)", transaction.Session(&gorm.Session{NewDB: true}).
			Model(&types.Response{}).
			Select("run_item_id")).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func (r *runRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Run{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *runRepo) ExpireOverdue(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	result := transaction.WithContext(ctx).
		Model(&types.Run{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at < ?", types.RunStatusPending, now).
		Updates(map[string]interface{}{"status": types.RunStatusExpired, "updated_at": now})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
