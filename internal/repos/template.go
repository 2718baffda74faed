package repos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/types"
)

type TemplateRepo interface {
	Create(ctx context.Context, tx *gorm.DB, templates []*types.Template) ([]*types.Template, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Template, error)

	// ListEligibleForStore returns active, in-rotation templates whose owner
	// is on the store's ancestry chain. Subtype filtering happens in the
	// selection engine, not in SQL, so the filter logic stays in one place.
	ListEligibleForStore(ctx context.Context, tx *gorm.DB, store types.StoreContext) ([]*types.Template, error)

	ListLineage(ctx context.Context, tx *gorm.DB, lineageID uuid.UUID) ([]*types.Template, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
}

type templateRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTemplateRepo(db *gorm.DB, baseLog *logger.Logger) TemplateRepo {
	repoLog := baseLog.With("repo", "TemplateRepo")
	return &templateRepo{db: db, log: repoLog}
}

func (r *templateRepo) Create(ctx context.Context, tx *gorm.DB, templates []*types.Template) ([]*types.Template, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(templates) == 0 {
		return []*types.Template{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *templateRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Template, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var tpl types.Template
	err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&tpl).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &tpl, nil
}

func (r *templateRepo) ListEligibleForStore(ctx context.Context, tx *gorm.DB, store types.StoreContext) ([]*types.Template, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var templates []*types.Template
	err := transaction.WithContext(ctx).
		Where("is_active = ? AND include_in_rotation = ?", true, true).
		Where(
			transaction.Session(&gorm.Session{NewDB: true}).
				Where("scope_level = ? AND scope_id = ?", types.ScopeLevelStore, store.StoreID).
				Or("scope_level = ? AND scope_id = ?", types.ScopeLevelAccount, store.AccountID).
				Or("scope_level = ? AND scope_id = ?", types.ScopeLevelBrand, store.BrandID),
		).
		Order("created_at ASC").
		Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *templateRepo) ListLineage(ctx context.Context, tx *gorm.DB, lineageID uuid.UUID) ([]*types.Template, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var templates []*types.Template
	if err := transaction.WithContext(ctx).
		Where("lineage_id = ?", lineageID).
		Order("version ASC").
		Find(&templates).Error; err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *templateRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Template{}).
		Where("id = ?", id).
		Updates(updates).Error
}
