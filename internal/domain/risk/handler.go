package risk

import (
	"net/http"

	"guardline/internal/common"

	"github.com/gin-gonic/gin"
)

// Handler exposes the risk assessment engine over HTTP so the
// record-management service can assess and persist onto its own records.
type Handler struct{}

// NewHandler creates a new risk handler.
func NewHandler() *Handler {
	return &Handler{}
}

// assessRequest is the API request payload for a risk assessment.
type assessRequest struct {
	Snapshot        Snapshot `json:"snapshot"`
	DefaultPriority Priority `json:"default_priority,omitempty"`
}

// Assess handles POST /api/v1/risk/assess
func (h *Handler) Assess(c *gin.Context) {
	var req assessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	result := Assess(req.Snapshot, req.DefaultPriority)
	common.Success(c, http.StatusOK, result)
}

// RegisterRoutes registers risk routes to the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/risk/assess", h.Assess)
}
