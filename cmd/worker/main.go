package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guardline/internal/common"
	"guardline/internal/config"
	"guardline/internal/domain/notification"
	"guardline/internal/infra/inapp"
	"guardline/internal/infra/queue"
	"guardline/internal/infra/sms"
	"guardline/internal/infra/store"
	"guardline/internal/infra/template"

	"github.com/hibiken/asynq"
)

// queueEnqueuer adapts the asynq client to the notification.Enqueuer
// interface used by the retry poller.
type queueEnqueuer struct {
	client   *asynq.Client
	maxRetry int
}

func (q *queueEnqueuer) EnqueueRetryNotification(notificationID string) error {
	return queue.EnqueueRetryNotification(q.client, notificationID, q.maxRetry)
}

func main() {
	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("worker configuration loaded")

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	// The worker needs the durable store; an in-memory store would give
	// it nothing to retry.
	if cfg.Supabase.URL == "" {
		slog.Error("supabase configuration is required for the retry worker")
		os.Exit(1)
	}
	notifStore, err := store.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
	if err != nil {
		slog.Error("failed to initialize supabase store", "error", err)
		os.Exit(1)
	}
	slog.Info("supabase store initialized")

	// Providers, same selection policy as the server
	var smsProvider notification.Provider
	if cfg.SMS.Configured() {
		smsProvider = sms.NewTwilioProvider(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber)
	} else {
		smsProvider = sms.NewSimulatedProvider()
		slog.Warn("no twilio credentials, using simulated SMS provider")
	}
	inappProvider := inapp.NewProvider(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer inappProvider.Close()

	tmplEngine, err := template.NewEngine()
	if err != nil {
		slog.Error("failed to initialize template engine", "error", err)
		os.Exit(1)
	}

	scheduler := notification.NewRetryScheduler()
	dispatcher := notification.NewDispatcher(notifStore, scheduler, smsProvider, inappProvider)
	dispatcher.SetMaxAttempts(cfg.Delivery.MaxAttempts)
	dispatcher.SetMaxBatchSize(cfg.Delivery.MaxBatchSize)
	dispatcher.SetSendInterval(time.Duration(cfg.Delivery.SendIntervalMs) * time.Millisecond)

	// No recipient rate limiting on the retry path: the send was already
	// admitted once.
	notificationService := notification.NewService(notifStore, dispatcher, tmplEngine, nil)

	// Asynq client (for poller enqueuing)
	asynqClient := queue.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer asynqClient.Close()

	enqueuer := &queueEnqueuer{
		client:   asynqClient,
		maxRetry: cfg.Queue.MaxRetry,
	}

	// ==========================================
	// Asynq Server (retry task processing)
	// ==========================================

	asynqServer := queue.NewServer(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.Queue.Concurrency,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(notification.TaskTypeRetryNotification, func(ctx context.Context, task *asynq.Task) error {
		payload, err := notification.ParseRetryNotificationPayload(task.Payload())
		if err != nil {
			return err
		}

		_, err = notificationService.Retry(ctx, payload.NotificationID)

		// A record that became ineligible between enqueue and processing
		// (delivered via webhook, cancelled, exhausted) is not a task
		// failure; re-running would never succeed.
		var notRetryable *common.NotRetryableError
		if errors.As(err, &notRetryable) {
			slog.Info("skipping retry task", "notification_id", payload.NotificationID, "reason", notRetryable.Reason)
			return nil
		}
		return err
	})

	// Start the asynq worker in a goroutine
	go func() {
		slog.Info("retry worker starting",
			"concurrency", cfg.Queue.Concurrency,
			"redis", cfg.Redis.Address,
		)
		if err := asynqServer.Run(mux); err != nil {
			slog.Error("retry worker failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// ==========================================
	// Retry Poller
	// ==========================================

	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	defer pollerCancel()

	poller := notification.NewPoller(notifStore, enqueuer, notification.PollerConfig{
		Interval:  time.Duration(cfg.RetryPoller.IntervalSec) * time.Second,
		BatchSize: cfg.RetryPoller.BatchSize,
	})

	go poller.Run(pollerCtx)

	// ==========================================
	// Graceful Shutdown
	// ==========================================

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	pollerCancel() // Stop the poller first
	asynqServer.Shutdown()
	slog.Info("worker exited gracefully")
}
