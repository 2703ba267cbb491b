package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"guardline/internal/common"
)

// MaxBatchSize bounds fan-out: batches over this size are rejected before
// any record is created.
const MaxBatchSize = 100

// defaultSendInterval paces consecutive sends within a batch.
const defaultSendInterval = 100 * time.Millisecond

// BatchRecipient is one target of a batch dispatch. Body, when set,
// overrides the batch-level message for this recipient (used by emergency
// escalation for recipient-specific framing).
type BatchRecipient struct {
	Recipient Recipient
	Body      string
}

// BatchOptions configures a batch dispatch.
type BatchOptions struct {
	Channel     Channel
	Category    Category
	Priority    Priority
	IncidentID  string
	MaxAttempts int
	ExpiresAt   *time.Time
}

// RecipientOutcome is the per-recipient result of a batch dispatch.
type RecipientOutcome struct {
	Index          int       `json:"index"`
	Recipient      Recipient `json:"recipient"`
	Success        bool      `json:"success"`
	NotificationID string    `json:"notification_id,omitempty"`
	Status         Status    `json:"status,omitempty"`
	Error          string    `json:"error,omitempty"`
}

// BatchResult aggregates a batch dispatch. Partial failure is a normal
// outcome: successes are never rolled back because of later failures.
type BatchResult struct {
	BatchID    string             `json:"batch_id"`
	Total      int                `json:"total"`
	Successful int                `json:"successful"`
	Failed     int                `json:"failed"`
	Outcomes   []RecipientOutcome `json:"notifications"`
}

// Dispatcher sends one message to N recipients with per-recipient isolation
// and inter-send pacing. A provider failure for one recipient never aborts
// the rest of the batch.
type Dispatcher struct {
	store        Store
	providers    map[Channel]Provider
	scheduler    *RetryScheduler
	sendInterval time.Duration
	maxAttempts  int
	maxBatchSize int
}

// NewDispatcher creates a batch dispatcher over the given providers.
func NewDispatcher(store Store, scheduler *RetryScheduler, providers ...Provider) *Dispatcher {
	pm := make(map[Channel]Provider, len(providers))
	for _, p := range providers {
		pm[p.Channel()] = p
	}
	return &Dispatcher{
		store:        store,
		providers:    pm,
		scheduler:    scheduler,
		sendInterval: defaultSendInterval,
		maxAttempts:  DefaultMaxAttempts,
		maxBatchSize: MaxBatchSize,
	}
}

// SetSendInterval overrides the pacing delay between consecutive sends.
func (d *Dispatcher) SetSendInterval(interval time.Duration) {
	if interval > 0 {
		d.sendInterval = interval
	}
}

// SetMaxAttempts overrides the default per-record attempt cap.
func (d *Dispatcher) SetMaxAttempts(n int) {
	if n > 0 {
		d.maxAttempts = n
	}
}

// SetMaxBatchSize overrides the default batch size cap. The cap can only be
// lowered; MaxBatchSize stays the hard upper bound.
func (d *Dispatcher) SetMaxBatchSize(n int) {
	if n > 0 && n <= MaxBatchSize {
		d.maxBatchSize = n
	}
}

// Dispatch sends a message to every recipient independently. Whole-batch
// preconditions (empty batch, oversized batch, unsupported channel) are
// rejected before any record exists; everything after that is isolated
// per recipient.
func (d *Dispatcher) Dispatch(ctx context.Context, recipients []BatchRecipient, body string, opts BatchOptions) (*BatchResult, error) {
	if len(recipients) == 0 {
		return nil, common.NewValidationError("batch has no recipients")
	}
	if len(recipients) > d.maxBatchSize {
		return nil, common.NewValidationError(fmt.Sprintf("batch size %d exceeds maximum of %d", len(recipients), d.maxBatchSize))
	}
	provider, ok := d.providers[opts.Channel]
	if !ok {
		return nil, common.NewValidationError(fmt.Sprintf("no provider registered for channel: %s", opts.Channel))
	}

	result := &BatchResult{
		BatchID:  uuid.New().String(),
		Total:    len(recipients),
		Outcomes: make([]RecipientOutcome, 0, len(recipients)),
	}

	// Pacing between sends only: the limiter starts with one token, so the
	// first send never waits.
	limiter := rate.NewLimiter(rate.Every(d.sendInterval), 1)

	for i, br := range recipients {
		outcome := RecipientOutcome{Index: i, Recipient: br.Recipient}

		msgBody := body
		if br.Body != "" {
			msgBody = br.Body
		}

		if err := ValidateDestination(opts.Channel, br.Recipient.Destination); err != nil {
			outcome.Error = err.Error()
			result.Failed++
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}
		if len(msgBody) > MaxBodyLength {
			outcome.Error = fmt.Sprintf("message body exceeds %d characters", MaxBodyLength)
			result.Failed++
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}

		rec := NewRecord(opts.Channel, opts.Category, opts.Priority, br.Recipient, msgBody)
		rec.BatchID = result.BatchID
		rec.BatchIndex = i
		rec.BatchSize = len(recipients)
		rec.IncidentID = opts.IncidentID
		rec.Delivery.MaxAttempts = d.maxAttempts
		if opts.MaxAttempts > 0 {
			rec.Delivery.MaxAttempts = opts.MaxAttempts
		}
		rec.Delivery.ExpiresAt = opts.ExpiresAt

		if err := d.store.Create(ctx, rec); err != nil {
			slog.Error("failed to create notification record",
				"batch_id", result.BatchID,
				"batch_index", i,
				"error", err,
			)
			outcome.Error = "failed to create notification record"
			result.Failed++
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			// Context cancelled between sends: the remaining recipients
			// are left pending, already-completed sends stand.
			outcome.NotificationID = rec.ID
			outcome.Status = rec.Status
			outcome.Error = err.Error()
			result.Failed++
			result.Outcomes = append(result.Outcomes, outcome)
			continue
		}

		d.sendOne(ctx, rec, provider)

		outcome.NotificationID = rec.ID
		outcome.Status = rec.Status
		if rec.Status == StatusSent || rec.Status == StatusDelivered {
			outcome.Success = true
			result.Successful++
		} else {
			if rec.Error != nil {
				outcome.Error = rec.Error.Message
			}
			result.Failed++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	slog.Info("batch dispatched",
		"batch_id", result.BatchID,
		"channel", opts.Channel,
		"total", result.Total,
		"successful", result.Successful,
		"failed", result.Failed,
	)

	return result, nil
}

// DispatchOne runs the send pipeline for a single existing record. Used by
// the single-send path and by retries.
func (d *Dispatcher) DispatchOne(ctx context.Context, rec *Record) error {
	provider, ok := d.providers[rec.Channel]
	if !ok {
		return common.NewValidationError(fmt.Sprintf("no provider registered for channel: %s", rec.Channel))
	}
	d.sendOne(ctx, rec, provider)
	return nil
}

// sendOne drives one record through the sending state machine and persists
// the result. Once a send begins it runs to completion; there is no
// mid-send cancellation.
func (d *Dispatcher) sendOne(ctx context.Context, rec *Record, provider Provider) {
	if !rec.BeginSend() {
		// Already sending or terminal: concurrent dispatch guard.
		slog.Warn("dispatch skipped, record not pending",
			"notification_id", rec.ID,
			"status", rec.Status,
		)
		return
	}
	if err := d.store.Update(ctx, rec); err != nil {
		slog.Error("failed to persist sending status", "notification_id", rec.ID, "error", err)
	}

	outcome, err := provider.Send(ctx, rec.Recipient.Destination, rec.Body)
	switch {
	case err != nil:
		rec.MarkFailed("provider_error", err.Error(), d.scheduler)
	case !outcome.Success:
		code := outcome.ErrorCode
		if code == "" {
			code = "provider_error"
		}
		rec.MarkFailed(code, outcome.ErrorMessage, d.scheduler)
	default:
		rec.MarkSent(&ProviderResponse{
			MessageID: outcome.ProviderMessageID,
			Cost:      outcome.Cost,
			Currency:  outcome.Currency,
		})
		if outcome.Delivered {
			rec.MarkDelivered()
		}
	}

	if err := d.store.Update(ctx, rec); err != nil {
		slog.Error("failed to persist send result", "notification_id", rec.ID, "error", err)
	}
}

// ValidateDestination checks the address format for a channel. SMS requires
// exactly 10 digits; in-app requires a non-empty subject reference.
func ValidateDestination(channel Channel, destination string) error {
	switch channel {
	case ChannelSMS:
		if len(destination) != 10 {
			return common.NewValidationError(fmt.Sprintf("invalid phone number: expected 10 digits, got %d characters", len(destination)))
		}
		for _, c := range destination {
			if c < '0' || c > '9' {
				return common.NewValidationError("invalid phone number: must contain only digits")
			}
		}
		return nil
	case ChannelInApp:
		if destination == "" {
			return common.NewValidationError("in-app destination requires a subject reference")
		}
		return nil
	default:
		return common.NewValidationError(fmt.Sprintf("unsupported channel: %s", channel))
	}
}
