package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"guardline/internal/common"
)

// Service orchestrates the notification delivery surface: single sends,
// explicit retries, lookups and aggregate stats.
type Service struct {
	store       Store
	dispatcher  *Dispatcher
	renderer    TemplateRenderer
	rateLimiter RecipientRateLimiter
}

// NewService creates a new notification service.
func NewService(store Store, dispatcher *Dispatcher, renderer TemplateRenderer, rateLimiter RecipientRateLimiter) *Service {
	return &Service{
		store:       store,
		dispatcher:  dispatcher,
		renderer:    renderer,
		rateLimiter: rateLimiter,
	}
}

// SendResponse is the API response payload for a single send.
type SendResponse struct {
	ID       string  `json:"id"`
	Channel  Channel `json:"channel"`
	Status   Status  `json:"status"`
	Attempts int     `json:"attempts"`
	Error    string  `json:"error,omitempty"`
}

// Send validates a single non-emergency notification request, checks the
// per-recipient rate limit and dispatches synchronously. Provider failures
// do not surface as errors; the response carries the failed status and the
// record is left for the retry pipeline.
func (s *Service) Send(ctx context.Context, req *SendRequest) (*SendResponse, error) {
	if !IsValidChannel(req.Channel) {
		return nil, common.NewValidationError(fmt.Sprintf("unsupported channel: %s", req.Channel))
	}
	if !IsValidCategory(req.Category) {
		return nil, common.NewValidationError(fmt.Sprintf("unsupported category: %s", req.Category))
	}
	if req.Priority == "" {
		req.Priority = PriorityMedium
	}
	if !IsValidPriority(req.Priority) {
		return nil, common.NewValidationError(fmt.Sprintf("unsupported priority: %s", req.Priority))
	}
	if err := ValidateDestination(req.Channel, req.Recipient.Destination); err != nil {
		return nil, err
	}

	body := req.Message
	if body == "" && len(req.Variables) > 0 {
		rendered, err := s.renderer.Render(string(req.Category), req.Variables)
		if err != nil {
			return nil, common.NewValidationError(fmt.Sprintf("rendering message: %s", err.Error()))
		}
		body = rendered
	}
	if body == "" {
		return nil, common.NewValidationError("message is required")
	}
	if len(body) > MaxBodyLength {
		return nil, common.NewValidationError(fmt.Sprintf("message exceeds %d characters", MaxBodyLength))
	}

	// Per-recipient rate limit. Emergency alerts are never throttled.
	if s.rateLimiter != nil && req.Category != CategoryEmergencyAlert {
		allowed, err := s.rateLimiter.Allow(ctx, req.Recipient.Destination)
		if err != nil {
			slog.Error("rate limit check failed, proceeding without limit",
				"recipient", req.Recipient.Destination,
				"error", err,
			)
			// Fail open — don't block the send when Redis is down
		} else if !allowed {
			return nil, common.NewValidationError(fmt.Sprintf("rate limit exceeded for recipient: %s", req.Recipient.Destination))
		}
	}

	rec := NewRecord(req.Channel, req.Category, req.Priority, req.Recipient, body)
	if err := s.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("creating notification record: %w", err)
	}

	if err := s.dispatcher.DispatchOne(ctx, rec); err != nil {
		return nil, err
	}

	slog.Info("notification dispatched",
		"id", rec.ID,
		"channel", rec.Channel,
		"category", rec.Category,
		"status", rec.Status,
	)

	resp := &SendResponse{
		ID:       rec.ID,
		Channel:  rec.Channel,
		Status:   rec.Status,
		Attempts: rec.Delivery.Attempts,
	}
	if rec.Error != nil {
		resp.Error = rec.Error.Message
	}
	return resp, nil
}

// Retry performs the explicit failed → pending retry and re-dispatches.
// Fails with NotRetryableError when the record is not eligible.
func (s *Service) Retry(ctx context.Context, id string) (*SendResponse, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching notification: %w", err)
	}
	if rec == nil {
		return nil, common.NewNotFoundError("notification", id)
	}

	now := time.Now().UTC()
	if !rec.CanRetry(now) {
		return nil, common.NewNotRetryableError(id, retryIneligibilityReason(rec, now))
	}

	rec.ResetForRetry(now)
	if err := s.store.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("persisting retry reset: %w", err)
	}

	if err := s.dispatcher.DispatchOne(ctx, rec); err != nil {
		return nil, err
	}

	slog.Info("notification retried",
		"id", rec.ID,
		"status", rec.Status,
		"attempts", rec.Delivery.Attempts,
	)

	resp := &SendResponse{
		ID:       rec.ID,
		Channel:  rec.Channel,
		Status:   rec.Status,
		Attempts: rec.Delivery.Attempts,
	}
	if rec.Error != nil {
		resp.Error = rec.Error.Message
	}
	return resp, nil
}

// Get retrieves a notification record by ID.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching notification: %w", err)
	}
	if rec == nil {
		return nil, common.NewNotFoundError("notification", id)
	}
	return rec, nil
}

// List retrieves notification records with pagination and filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}

	recs, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}

	return &ListResponse{
		Notifications: recs,
		Total:         total,
		Page:          filter.Page,
		PageSize:      filter.PageSize,
	}, nil
}

// GetStats returns aggregate notification counts for one subject.
func (s *Service) GetStats(ctx context.Context, subjectID string) (*Stats, error) {
	if subjectID == "" {
		return nil, common.NewValidationError("subject_id is required")
	}
	stats, err := s.store.Stats(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("aggregating notification stats: %w", err)
	}
	return stats, nil
}

// HandleDeliveryEvent processes a delivery status update from a provider
// callback. Confirmations are idempotent and only move status forward.
func (s *Service) HandleDeliveryEvent(ctx context.Context, providerMessageID string, status Status) error {
	if providerMessageID == "" {
		return common.NewValidationError("provider_message_id is required")
	}

	rec, err := s.store.GetByProviderMessageID(ctx, providerMessageID)
	if err != nil {
		return fmt.Errorf("fetching notification by provider id: %w", err)
	}
	if rec == nil {
		return common.NewNotFoundError("notification", providerMessageID)
	}

	switch status {
	case StatusDelivered:
		rec.MarkDelivered()
	case StatusBounced:
		rec.MarkBounced()
	case StatusRejected:
		rec.MarkRejected()
	default:
		return common.NewValidationError(fmt.Sprintf("unsupported delivery event status: %s", status))
	}

	if err := s.store.Update(ctx, rec); err != nil {
		return fmt.Errorf("persisting delivery event: %w", err)
	}

	slog.Info("delivery event applied",
		"notification_id", rec.ID,
		"provider_message_id", providerMessageID,
		"status", rec.Status,
	)
	return nil
}

// retryIneligibilityReason explains why CanRetry returned false.
func retryIneligibilityReason(rec *Record, now time.Time) string {
	switch {
	case rec.Status != StatusFailed:
		return fmt.Sprintf("status is %s, not failed", rec.Status)
	case rec.Delivery.Attempts >= rec.Delivery.MaxAttempts:
		return fmt.Sprintf("attempts exhausted (%d of %d)", rec.Delivery.Attempts, rec.Delivery.MaxAttempts)
	case rec.Delivery.ExpiresAt != nil && !now.Before(*rec.Delivery.ExpiresAt):
		return "notification expired"
	default:
		return "not eligible"
	}
}
