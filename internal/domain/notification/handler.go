package notification

import (
	"log/slog"
	"net/http"

	"guardline/internal/common"

	"github.com/gin-gonic/gin"
)

// Handler handles HTTP requests for the notification domain.
type Handler struct {
	service *Service
}

// NewHandler creates a new notification handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Send handles POST /api/v1/notifications
// Dispatches a single non-emergency notification synchronously.
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	resp, err := h.service.Send(c.Request.Context(), &req)
	if err != nil {
		slog.Error("send notification failed",
			"error", err,
			"channel", req.Channel,
			"category", req.Category,
		)
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusCreated, resp)
}

// Retry handles POST /api/v1/notifications/:id/retry
func (h *Handler) Retry(c *gin.Context) {
	id := c.Param("id")

	resp, err := h.service.Retry(c.Request.Context(), id)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, resp)
}

// GetNotification handles GET /api/v1/notifications/:id
func (h *Handler) GetNotification(c *gin.Context) {
	id := c.Param("id")

	rec, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, rec)
}

// ListNotifications handles GET /api/v1/notifications
func (h *Handler) ListNotifications(c *gin.Context) {
	var filter ListFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid query parameters: "+err.Error())
		return
	}

	resp, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, resp)
}

// GetStats handles GET /api/v1/notifications/stats
func (h *Handler) GetStats(c *gin.Context) {
	subjectID := c.Query("subject_id")

	stats, err := h.service.GetStats(c.Request.Context(), subjectID)
	if err != nil {
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, stats)
}

// DeliveryWebhook handles POST /api/v1/webhooks/delivery
// Receives delivery status callbacks from the SMS provider.
func (h *Handler) DeliveryWebhook(c *gin.Context) {
	var event struct {
		MessageID string `json:"message_id"`
		Status    string `json:"status"`
	}

	if err := c.ShouldBindJSON(&event); err != nil {
		common.Error(c, http.StatusBadRequest, "invalid webhook payload: "+err.Error())
		return
	}

	// Map provider callback statuses to record statuses
	var status Status
	switch event.Status {
	case "delivered":
		status = StatusDelivered
	case "bounced", "undelivered":
		status = StatusBounced
	case "rejected":
		status = StatusRejected
	default:
		// Acknowledge but ignore unhandled event types
		slog.Info("ignoring delivery event", "status", event.Status)
		common.Success(c, http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	if err := h.service.HandleDeliveryEvent(c.Request.Context(), event.MessageID, status); err != nil {
		slog.Error("delivery webhook processing failed",
			"message_id", event.MessageID,
			"status", event.Status,
			"error", err,
		)
		common.HandleError(c, err)
		return
	}

	common.Success(c, http.StatusOK, gin.H{"status": "processed"})
}

// RegisterRoutes registers notification routes to the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/notifications", h.Send)
	rg.GET("/notifications", h.ListNotifications)
	rg.GET("/notifications/stats", h.GetStats)
	rg.GET("/notifications/:id", h.GetNotification)
	rg.POST("/notifications/:id/retry", h.Retry)
	rg.POST("/webhooks/delivery", h.DeliveryWebhook)
}
