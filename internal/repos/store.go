package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/types"
)

type StoreRepo interface {
	Create(ctx context.Context, tx *gorm.DB, stores []*types.Store) ([]*types.Store, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Store, error)
	ListActive(ctx context.Context, tx *gorm.DB) ([]*types.Store, error)
}

type storeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStoreRepo(db *gorm.DB, baseLog *logger.Logger) StoreRepo {
	repoLog := baseLog.With("repo", "StoreRepo")
	return &storeRepo{db: db, log: repoLog}
}

func (r *storeRepo) Create(ctx context.Context, tx *gorm.DB, stores []*types.Store) ([]*types.Store, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(stores) == 0 {
		return []*types.Store{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&stores).Error; err != nil {
		return nil, err
	}
	return stores, nil
}

func (r *storeRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Store, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var store types.Store
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&store).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &store, nil
}

func (r *storeRepo) ListActive(ctx context.Context, tx *gorm.DB) ([]*types.Store, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var stores []*types.Store
	if err := transaction.WithContext(ctx).
		Where("is_active = ?", true).
		Order("created_at ASC").
		Find(&stores).Error; err != nil {
		return nil, err
	}
	return stores, nil
}
