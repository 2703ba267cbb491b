package escalation

import (
	"log/slog"
	"net/http"

	"guardline/internal/common"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for emergency escalation.
type Handler struct {
	orchestrator *Orchestrator
}

// NewHandler creates a new escalation handler.
func NewHandler(orchestrator *Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

// TriggerAlert handles POST /api/v1/alerts/emergency
// Fans an emergency alert out to the subject and their emergency contacts
// and returns the per-recipient outcome aggregate.
func (h *Handler) TriggerAlert(c *gin.Context) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.orchestrator.Escalate(c.Request.Context(), &req)
	if err != nil {
		slog.Error("emergency escalation failed",
			"subject_id", req.SubjectID,
			"incident_id", req.IncidentID,
			"error", err,
		)
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, result)
}

// RegisterRoutes registers escalation routes to the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/alerts/emergency", h.TriggerAlert)
}
