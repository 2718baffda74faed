package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anicol/peokops-sub001/internal/services"
	"github.com/anicol/peokops-sub001/internal/types"
)

type RunHandler struct {
	scheduler services.RunSchedulerService
	runs      services.RunService
}

func NewRunHandler(scheduler services.RunSchedulerService, runs services.RunService) *RunHandler {
	return &RunHandler{scheduler: scheduler, runs: runs}
}

// EnsureRunForToday handles POST /api/stores/:id/runs/today. Idempotent:
// repeat calls for the same store-local day return the same run.
func (h *RunHandler) EnsureRunForToday(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_store_id", err)
		return
	}
	summary, err := h.scheduler.EnsureRunForToday(c.Request.Context(), storeID)
	if err != nil {
		if errors.Is(err, services.ErrNoEligibleTemplates) {
			RespondError(c, http.StatusUnprocessableEntity, "no_templates_configured", err)
			return
		}
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, summary)
}

// CreateInstantRun handles POST /api/stores/:id/runs/instant.
func (h *RunHandler) CreateInstantRun(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_store_id", err)
		return
	}
	summary, err := h.scheduler.CreateInstantRun(c.Request.Context(), storeID)
	if err != nil {
		if errors.Is(err, services.ErrNoEligibleTemplates) {
			RespondError(c, http.StatusUnprocessableEntity, "no_templates_configured", err)
			return
		}
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, summary)
}

// GetRun handles GET /api/runs/:id for run-token bearers.
func (h *RunHandler) GetRun(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_id", err)
		return
	}
	run, err := h.runs.GetRun(c.Request.Context(), runID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, run)
}

type submitResponseRequest struct {
	Status   types.ResponseStatus `json:"status" binding:"required"`
	Notes    string               `json:"notes"`
	PhotoRef string               `json:"photo_ref"`
}

// SubmitResponse handles POST /api/run-items/:id/response.
func (h *RunHandler) SubmitResponse(c *gin.Context) {
	itemID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_run_item_id", err)
		return
	}
	var req submitResponseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	summary, err := h.runs.SubmitResponse(c.Request.Context(), services.SubmitResponseInput{
		RunItemID: itemID,
		Status:    req.Status,
		Notes:     req.Notes,
		PhotoRef:  req.PhotoRef,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, summary)
}
