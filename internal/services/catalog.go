package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/anicol/peokops-sub001/internal/apierr"
	"github.com/anicol/peokops-sub001/internal/logger"
	"github.com/anicol/peokops-sub001/internal/repos"
	"github.com/anicol/peokops-sub001/internal/types"
)

// TemplateDraft is the operator-supplied content for a new template or a
// new version of an existing lineage.
type TemplateDraft struct {
	ScopeLevel                types.ScopeLevel
	ScopeID                   uuid.UUID
	Title                     string
	Category                  string
	SuccessCriteria           string
	Severity                  types.Severity
	RotationPriority          int
	IncludeInRotation         bool
	SubtypeFilter             []byte // JSON array of subtype tags, optional
	ExpectedCompletionSeconds int
	PhotoRequiredDefault      bool
	VideoRequiredDefault      bool
	AIValidation              bool
}

// CatalogService manages the template version chains. Publishing creates a
// successor version and atomically pulls the prior version out of
// rotation; archiving deactivates without a successor. Rows are never
// deleted.
type CatalogService interface {
	CreateTemplate(ctx context.Context, draft TemplateDraft) (*types.Template, error)
	PublishNewVersion(ctx context.Context, templateID uuid.UUID, draft TemplateDraft) (*types.Template, error)
	ArchiveTemplate(ctx context.Context, templateID uuid.UUID) error
	GetTemplate(ctx context.Context, templateID uuid.UUID) (*types.Template, error)

	// ListEligibleForStore resolves the store's ancestry chain and returns
	// the templates its runs draw from, so operators can see why a store
	// has (or lacks) checks before the scheduler ever fires.
	ListEligibleForStore(ctx context.Context, storeID uuid.UUID) ([]*types.Template, error)
}

type catalogService struct {
	db           *gorm.DB
	log          *logger.Logger
	templateRepo repos.TemplateRepo
	storeRepo    repos.StoreRepo
}

func NewCatalogService(db *gorm.DB, log *logger.Logger, templateRepo repos.TemplateRepo, storeRepo repos.StoreRepo) CatalogService {
	serviceLog := log.With("service", "CatalogService")
	return &catalogService{db: db, log: serviceLog, templateRepo: templateRepo, storeRepo: storeRepo}
}

func (s *catalogService) CreateTemplate(ctx context.Context, draft TemplateDraft) (*types.Template, error) {
	tpl, err := templateFromDraft(draft)
	if err != nil {
		return nil, err
	}
	tpl.ID = uuid.New()
	tpl.LineageID = tpl.ID // a new lineage is rooted at its first version
	tpl.Version = 1
	if _, err := s.templateRepo.Create(ctx, nil, []*types.Template{tpl}); err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	s.log.Info("template created", "template_id", tpl.ID, "scope_level", tpl.ScopeLevel, "scope_id", tpl.ScopeID)
	return tpl, nil
}

func (s *catalogService) PublishNewVersion(ctx context.Context, templateID uuid.UUID, draft TemplateDraft) (*types.Template, error) {
	successor, err := templateFromDraft(draft)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		prior, gErr := s.templateRepo.GetByID(ctx, tx, templateID)
		if gErr != nil {
			return fmt.Errorf("load template %s: %w", templateID, gErr)
		}
		if prior == nil {
			return apierr.ErrNotFound
		}
		if !prior.IsActive {
			return fmt.Errorf("template %s is not active: %w", templateID, apierr.ErrInvalidArgument)
		}

		successor.ID = uuid.New()
		successor.LineageID = prior.LineageID
		successor.Version = prior.Version + 1
		parentID := prior.ID
		successor.ParentTemplateID = &parentID
		// Ownership never moves between versions.
		successor.ScopeLevel = prior.ScopeLevel
		successor.ScopeID = prior.ScopeID

		if _, cErr := s.templateRepo.Create(ctx, tx, []*types.Template{successor}); cErr != nil {
			return fmt.Errorf("create successor version: %w", cErr)
		}
		// Deactivate and remove the prior version from rotation in the
		// same transaction, so at most one version per lineage is ever
		// live.
		if uErr := s.templateRepo.UpdateFields(ctx, tx, prior.ID, map[string]interface{}{
			"is_active":           false,
			"include_in_rotation": false,
			"updated_at":          time.Now(),
		}); uErr != nil {
			return fmt.Errorf("deactivate prior version: %w", uErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("template version published", "lineage_id", successor.LineageID, "version", successor.Version)
	return successor, nil
}

func (s *catalogService) ArchiveTemplate(ctx context.Context, templateID uuid.UUID) error {
	tpl, err := s.templateRepo.GetByID(ctx, nil, templateID)
	if err != nil {
		return fmt.Errorf("load template %s: %w", templateID, err)
	}
	if tpl == nil {
		return apierr.ErrNotFound
	}
	if err := s.templateRepo.UpdateFields(ctx, nil, templateID, map[string]interface{}{
		"is_active":           false,
		"include_in_rotation": false,
		"updated_at":          time.Now(),
	}); err != nil {
		return fmt.Errorf("archive template %s: %w", templateID, err)
	}
	s.log.Info("template archived", "template_id", templateID, "lineage_id", tpl.LineageID)
	return nil
}

func (s *catalogService) GetTemplate(ctx context.Context, templateID uuid.UUID) (*types.Template, error) {
	tpl, err := s.templateRepo.GetByID(ctx, nil, templateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, apierr.ErrNotFound
	}
	return tpl, nil
}

func (s *catalogService) ListEligibleForStore(ctx context.Context, storeID uuid.UUID) ([]*types.Template, error) {
	store, err := s.storeRepo.GetByID(ctx, nil, storeID)
	if err != nil {
		return nil, fmt.Errorf("load store %s: %w", storeID, err)
	}
	if store == nil {
		return nil, apierr.ErrNotFound
	}
	return s.templateRepo.ListEligibleForStore(ctx, nil, store.Context())
}

func templateFromDraft(draft TemplateDraft) (*types.Template, error) {
	if !draft.ScopeLevel.Valid() {
		return nil, fmt.Errorf("scope level %q: %w", draft.ScopeLevel, apierr.ErrInvalidArgument)
	}
	if draft.ScopeID == uuid.Nil {
		return nil, fmt.Errorf("scope id required: %w", apierr.ErrInvalidArgument)
	}
	if draft.Title == "" {
		return nil, fmt.Errorf("title required: %w", apierr.ErrInvalidArgument)
	}
	if draft.RotationPriority < 0 || draft.RotationPriority > 100 {
		return nil, fmt.Errorf("rotation priority %d out of range: %w", draft.RotationPriority, apierr.ErrInvalidArgument)
	}
	severity := draft.Severity
	if severity == "" {
		severity = types.SeverityMedium
	}
	if !severity.Valid() {
		return nil, fmt.Errorf("severity %q: %w", draft.Severity, apierr.ErrInvalidArgument)
	}
	expected := draft.ExpectedCompletionSeconds
	if expected <= 0 {
		expected = 60
	}
	return &types.Template{
		ScopeLevel:                draft.ScopeLevel,
		ScopeID:                   draft.ScopeID,
		Title:                     draft.Title,
		Category:                  draft.Category,
		SuccessCriteria:           draft.SuccessCriteria,
		Severity:                  severity,
		RotationPriority:          draft.RotationPriority,
		IncludeInRotation:         draft.IncludeInRotation,
		IsActive:                  true,
		SubtypeFilter:             datatypes.JSON(draft.SubtypeFilter),
		ExpectedCompletionSeconds: expected,
		PhotoRequiredDefault:      draft.PhotoRequiredDefault,
		VideoRequiredDefault:      draft.VideoRequiredDefault,
		AIValidation:              draft.AIValidation,
	}, nil
}
