package notification

import (
	"context"
	"log/slog"
	"time"
)

// Enqueuer defines the contract for enqueuing retry tasks. This keeps the
// poller decoupled from the specific queue implementation.
type Enqueuer interface {
	EnqueueRetryNotification(notificationID string) error
}

// PollerConfig holds configuration for the retry poller.
type PollerConfig struct {
	// Interval is how often the poller scans for retry-due records.
	Interval time.Duration

	// BatchSize is the maximum number of records to enqueue per cycle.
	BatchSize int
}

// Poller periodically scans the notification store for failed records whose
// backoff has elapsed and enqueues them for retry. The store is the source
// of truth; the queue only carries work already recorded there, so a wiped
// queue loses nothing.
type Poller struct {
	store    Store
	enqueuer Enqueuer
	config   PollerConfig
}

// NewPoller creates a retry poller.
func NewPoller(store Store, enqueuer Enqueuer, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	return &Poller{
		store:    store,
		enqueuer: enqueuer,
		config:   cfg,
	}
}

// Run starts the poller loop. It blocks until the context is cancelled.
// Should be called in a goroutine.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("retry poller started",
		"interval", p.config.Interval,
		"batch_size", p.config.BatchSize,
	)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("retry poller stopped")
			return
		case <-ticker.C:
			p.sweep(ctx)
		}
	}
}

// sweep performs one poller cycle: find retry-due records and enqueue them.
func (p *Poller) sweep(ctx context.Context) {
	now := time.Now().UTC()

	due, err := p.store.ListRetryDue(ctx, now, p.config.BatchSize)
	if err != nil {
		slog.Error("retry poller: failed to list due records", "error", err)
		return
	}

	if len(due) == 0 {
		return // Nothing to do — the common case
	}

	enqueued := 0
	for _, rec := range due {
		if !rec.CanRetry(now) {
			continue
		}

		if err := p.enqueuer.EnqueueRetryNotification(rec.ID); err != nil {
			slog.Error("retry poller: failed to enqueue retry",
				"notification_id", rec.ID,
				"error", err,
			)
			continue
		}

		enqueued++
		slog.Info("retry poller: enqueued retry",
			"notification_id", rec.ID,
			"attempts", rec.Delivery.Attempts,
			"max_attempts", rec.Delivery.MaxAttempts,
		)
	}

	if enqueued > 0 {
		slog.Info("retry poller: sweep complete", "enqueued", enqueued, "due", len(due))
	}
}
