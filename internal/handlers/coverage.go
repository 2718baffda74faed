package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/anicol/peokops-sub001/internal/services"
)

type CoverageHandler struct {
	coverage services.CoverageService
	streaks  services.StreakService
}

func NewCoverageHandler(coverage services.CoverageService, streaks services.StreakService) *CoverageHandler {
	return &CoverageHandler{coverage: coverage, streaks: streaks}
}

// GetCoverageSnapshot handles GET /api/stores/:id/coverage for reporting
// dashboards. Read-only.
func (h *CoverageHandler) GetCoverageSnapshot(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_store_id", err)
		return
	}
	records, err := h.coverage.ListForStore(c.Request.Context(), storeID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, records)
}

// GetStreaks handles GET /api/stores/:id/streaks.
func (h *CoverageHandler) GetStreaks(c *gin.Context) {
	storeID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_store_id", err)
		return
	}
	counters, err := h.streaks.ListForStore(c.Request.Context(), storeID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, counters)
}
