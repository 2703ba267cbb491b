package notification

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the delivery status of a notification record.
type Status string

const (
	StatusPending   Status = "pending"
	StatusQueued    Status = "queued"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusFailed    Status = "failed"
	StatusBounced   Status = "bounced"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// DefaultMaxAttempts bounds automatic retries per record.
const DefaultMaxAttempts = 3

// Delivery tracks the delivery lifecycle of a record.
type Delivery struct {
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// ProviderResponse holds opaque metadata returned by the delivery provider.
type ProviderResponse struct {
	MessageID string  `json:"message_id,omitempty"`
	Cost      float64 `json:"cost,omitempty"`
	Currency  string  `json:"currency,omitempty"`
}

// DeliveryError captures why a record failed.
type DeliveryError struct {
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Record is the central entity of the delivery engine. Each record is
// exclusively owned and mutated by the dispatch pipeline that created it.
// Records are never deleted, only moved to terminal statuses.
type Record struct {
	ID         string            `json:"id"`
	Channel    Channel           `json:"channel"`
	Category   Category          `json:"category"`
	Priority   Priority          `json:"priority"`
	Recipient  Recipient         `json:"recipient"`
	Body       string            `json:"body"`
	Status     Status            `json:"status"`
	Delivery   Delivery          `json:"delivery"`
	BatchID    string            `json:"batch_id,omitempty"`
	BatchIndex int               `json:"batch_index,omitempty"`
	BatchSize  int               `json:"batch_size,omitempty"`
	IncidentID string            `json:"incident_id,omitempty"`
	Provider   *ProviderResponse `json:"provider_response,omitempty"`
	Error      *DeliveryError    `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// NewRecord creates a record in the pending status.
func NewRecord(channel Channel, category Category, priority Priority, recipient Recipient, body string) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:        uuid.New().String(),
		Channel:   channel,
		Category:  category,
		Priority:  priority,
		Recipient: recipient,
		Body:      body,
		Status:    StatusPending,
		Delivery:  Delivery{MaxAttempts: DefaultMaxAttempts},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// BeginSend transitions pending/queued → sending. Returns false for any
// other status, which makes concurrent dispatch of the same record a no-op
// rather than a double-send.
func (r *Record) BeginSend() bool {
	if r.Status != StatusPending && r.Status != StatusQueued {
		return false
	}
	r.Status = StatusSending
	r.touch()
	return true
}

// MarkSent records provider acceptance.
func (r *Record) MarkSent(resp *ProviderResponse) {
	now := time.Now().UTC()
	r.Status = StatusSent
	r.Delivery.SentAt = &now
	r.Delivery.Attempts++
	r.Provider = resp
	r.Error = nil
	r.touch()
}

// MarkDelivered records final delivery confirmation. Idempotent and
// forward-only: it never moves a record backwards or revives a terminal one.
func (r *Record) MarkDelivered() {
	if r.Status != StatusSent && r.Status != StatusSending {
		return
	}
	now := time.Now().UTC()
	r.Status = StatusDelivered
	r.Delivery.DeliveredAt = &now
	r.touch()
}

// MarkFailed records a provider failure, increments the attempt counter and,
// when attempts remain, schedules the next retry.
func (r *Record) MarkFailed(code, message string, sched *RetryScheduler) {
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.Delivery.FailedAt = &now
	r.Delivery.Attempts++
	r.Error = &DeliveryError{Code: code, Message: message, OccurredAt: now}

	if r.Delivery.Attempts < r.Delivery.MaxAttempts {
		next := now.Add(sched.NextRetryDelay(r.Delivery.Attempts))
		r.Delivery.NextRetryAt = &next
	} else {
		r.Delivery.NextRetryAt = nil
	}
	r.touch()
}

// MarkBounced records a provider-side bounce after a send. Never
// auto-retried; a no-op once the record is delivered or terminal.
func (r *Record) MarkBounced() {
	if r.Status != StatusSending && r.Status != StatusSent {
		return
	}
	r.Status = StatusBounced
	r.Delivery.NextRetryAt = nil
	r.touch()
}

// MarkRejected records a provider-side rejection before the send completed.
// Never auto-retried; a rejection reported for an already-sent record is a
// no-op (post-send failures arrive as bounces).
func (r *Record) MarkRejected() {
	if r.Status != StatusPending && r.Status != StatusQueued && r.Status != StatusSending {
		return
	}
	r.Status = StatusRejected
	r.Delivery.NextRetryAt = nil
	r.touch()
}

// Cancel soft-marks a record before dispatch. Only legal from pending or
// queued; returns false otherwise.
func (r *Record) Cancel() bool {
	if r.Status != StatusPending && r.Status != StatusQueued {
		return false
	}
	r.Status = StatusCancelled
	r.Delivery.NextRetryAt = nil
	r.touch()
	return true
}

// CanRetry reports whether an explicit failed → pending retry is legal.
func (r *Record) CanRetry(now time.Time) bool {
	if r.Status != StatusFailed {
		return false
	}
	if r.Delivery.Attempts >= r.Delivery.MaxAttempts {
		return false
	}
	if r.Delivery.ExpiresAt != nil && !now.Before(*r.Delivery.ExpiresAt) {
		return false
	}
	return true
}

// ResetForRetry performs the failed → pending transition. It clears the
// retry schedule but preserves the attempt history. Returns false when the
// record is not retry-eligible.
func (r *Record) ResetForRetry(now time.Time) bool {
	if !r.CanRetry(now) {
		return false
	}
	r.Status = StatusPending
	r.Delivery.NextRetryAt = nil
	r.touch()
	return true
}

func (r *Record) touch() {
	r.UpdatedAt = time.Now().UTC()
}
