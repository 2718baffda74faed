package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/types"
)

// ErrResponseExists surfaces the one-response-per-item uniqueness
// violation as a distinct condition.
var ErrResponseExists = errors.New("response already recorded for run item")

type ResponseRepo interface {
	Create(ctx context.Context, tx *gorm.DB, response *types.Response) error
	GetByRunItemID(ctx context.Context, tx *gorm.DB, runItemID uuid.UUID) (*types.Response, error)
}

type responseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewResponseRepo(db *gorm.DB, baseLog *logger.Logger) ResponseRepo {
	repoLog := baseLog.With("repo", "ResponseRepo")
	return &responseRepo{db: db, log: repoLog}
}

func (r *responseRepo) Create(ctx context.Context, tx *gorm.DB, response *types.Response) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if response == nil {
		return errors.New("response required")
	}
	if err := transaction.WithContext(ctx).Create(response).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrResponseExists
		}
		return err
	}
	return nil
}

func (r *responseRepo) GetByRunItemID(ctx context.Context, tx *gorm.DB, runItemID uuid.UUID) (*types.Response, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var response types.Response
	err := transaction.WithContext(ctx).
		Where("run_item_id = ?", runItemID).
		First(&response).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &response, nil
}
