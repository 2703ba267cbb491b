package notification

import (
	"context"
	"time"
)

// Store defines the contract for persisting notification records.
// Implementations live in infra/store/.
type Store interface {
	// Create inserts a new notification record.
	Create(ctx context.Context, rec *Record) error

	// GetByID retrieves a record by its ID.
	GetByID(ctx context.Context, id string) (*Record, error)

	// GetByProviderMessageID retrieves a record by the provider's message ID.
	// Returns nil, nil if no record is found. Used by delivery webhooks.
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*Record, error)

	// Update persists the current state of a record.
	Update(ctx context.Context, rec *Record) error

	// List retrieves records with pagination and filtering.
	List(ctx context.Context, filter ListFilter) ([]*Record, int, error)

	// ListRetryDue retrieves failed records whose next retry time has
	// passed and that still have attempts remaining. Used by the retry poller.
	ListRetryDue(ctx context.Context, now time.Time, limit int) ([]*Record, error)

	// Stats returns aggregate counts by status and category for a subject.
	Stats(ctx context.Context, subjectID string) (*Stats, error)
}
