package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anicol/peokops-sub001/internal/services"
	"github.com/anicol/peokops-sub001/internal/types"
)

type TemplateHandler struct {
	catalog services.CatalogService
}

func NewTemplateHandler(catalog services.CatalogService) *TemplateHandler {
	return &TemplateHandler{catalog: catalog}
}

type templateDraftRequest struct {
	ScopeLevel                types.ScopeLevel `json:"scope_level" binding:"required"`
	ScopeID                   uuid.UUID        `json:"scope_id" binding:"required"`
	Title                     string           `json:"title" binding:"required"`
	Category                  string           `json:"category"`
	SuccessCriteria           string           `json:"success_criteria"`
	Severity                  types.Severity   `json:"severity"`
	RotationPriority          *int             `json:"rotation_priority"`
	IncludeInRotation         *bool            `json:"include_in_rotation"`
	SubtypeFilter             []string         `json:"subtype_filter"`
	ExpectedCompletionSeconds int              `json:"expected_completion_seconds"`
	PhotoRequiredDefault      bool             `json:"photo_required_default"`
	VideoRequiredDefault      bool             `json:"video_required_default"`
	AIValidation              bool             `json:"ai_validation"`
}

func (r *templateDraftRequest) toDraft() services.TemplateDraft {
	priority := 50
	if r.RotationPriority != nil {
		priority = *r.RotationPriority
	}
	inRotation := true
	if r.IncludeInRotation != nil {
		inRotation = *r.IncludeInRotation
	}
	var filter []byte
	if len(r.SubtypeFilter) > 0 {
		filter, _ = json.Marshal(r.SubtypeFilter)
	}
	return services.TemplateDraft{
		ScopeLevel:                r.ScopeLevel,
		ScopeID:                   r.ScopeID,
		Title:                     r.Title,
		Category:                  r.Category,
		SuccessCriteria:           r.SuccessCriteria,
		Severity:                  r.Severity,
		RotationPriority:          priority,
		IncludeInRotation:         inRotation,
		SubtypeFilter:             filter,
		ExpectedCompletionSeconds: r.ExpectedCompletionSeconds,
		PhotoRequiredDefault:      r.PhotoRequiredDefault,
		VideoRequiredDefault:      r.VideoRequiredDefault,
		AIValidation:              r.AIValidation,
	}
}

// CreateTemplate handles POST /api/templates.
func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req templateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	tpl, err := h.catalog.CreateTemplate(c.Request.Context(), req.toDraft())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

// PublishNewVersion handles POST /api/templates/:id/publish.
func (h *TemplateHandler) PublishNewVersion(c *gin.Context) {
	templateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_template_id", err)
		return
	}
	var req templateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	tpl, err := h.catalog.PublishNewVersion(c.Request.Context(), templateID, req.toDraft())
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

// ArchiveTemplate handles POST /api/templates/:id/archive.
func (h *TemplateHandler) ArchiveTemplate(c *gin.Context) {
	templateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_template_id", err)
		return
	}
	if err := h.catalog.ArchiveTemplate(c.Request.Context(), templateID); err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"archived": true})
}

// ListEligibleForStore handles GET /api/stores/:id/templates.
func (h *TemplateHandler) ListEligibleForStore(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_store_id", err)
		return
	}
	templates, err := h.catalog.ListEligibleForStore(c.Request.Context(), storeID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, templates)
}

// GetTemplate handles GET /api/templates/:id.
func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	templateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_template_id", err)
		return
	}
	tpl, err := h.catalog.GetTemplate(c.Request.Context(), templateID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, tpl)
}
