package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"guardline/internal/config"
	"guardline/internal/domain/escalation"
	"guardline/internal/domain/notification"
	"guardline/internal/domain/risk"
	"guardline/internal/infra/collaborator"
	"guardline/internal/infra/inapp"
	"guardline/internal/infra/ratelimit"
	"guardline/internal/infra/sms"
	"guardline/internal/infra/store"
	"guardline/internal/infra/template"
	"guardline/internal/router"
)

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

	slog.Info("configuration loaded", "port", cfg.Server.Port, "mode", cfg.Server.Mode)

	// ==========================================
	// Dependency Injection (Manual Wiring)
	// ==========================================

	// Notification store: Supabase when configured, in-memory otherwise
	var notifStore notification.Store
	if cfg.Supabase.URL != "" {
		supaStore, err := store.NewSupabaseStore(cfg.Supabase.URL, cfg.Supabase.ServiceKey)
		if err != nil {
			slog.Error("failed to initialize supabase store", "error", err)
			os.Exit(1)
		}
		notifStore = supaStore
		slog.Info("supabase store initialized")
	} else {
		notifStore = store.NewMemoryStore()
		slog.Warn("no supabase configured, using in-memory store")
	}

	// SMS provider: real Twilio when credentials are present, simulated
	// otherwise. Chosen once at startup, never swapped at runtime.
	var smsProvider notification.Provider
	if cfg.SMS.Configured() {
		smsProvider = sms.NewTwilioProvider(cfg.SMS.AccountSID, cfg.SMS.AuthToken, cfg.SMS.FromNumber)
		slog.Info("twilio SMS provider initialized", "from", cfg.SMS.FromNumber)
	} else {
		smsProvider = sms.NewSimulatedProvider()
		slog.Warn("no twilio credentials, using simulated SMS provider")
	}

	// In-app provider (Redis pub/sub)
	inappProvider := inapp.NewProvider(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	defer inappProvider.Close()

	// Template engine
	tmplEngine, err := template.NewEngine()
	if err != nil {
		slog.Error("failed to initialize template engine", "error", err)
		os.Exit(1)
	}

	// Dispatch pipeline
	scheduler := notification.NewRetryScheduler()
	dispatcher := notification.NewDispatcher(notifStore, scheduler, smsProvider, inappProvider)
	dispatcher.SetMaxAttempts(cfg.Delivery.MaxAttempts)
	dispatcher.SetMaxBatchSize(cfg.Delivery.MaxBatchSize)
	dispatcher.SetSendInterval(time.Duration(cfg.Delivery.SendIntervalMs) * time.Millisecond)

	// Recipient rate limiter
	recipientLimiter := ratelimit.NewRedisRecipientLimiter(
		cfg.Redis.Address,
		cfg.Redis.Password,
		cfg.Redis.DB,
		cfg.RecipientRateLimit.MaxPerHour,
	)
	defer recipientLimiter.Close()
	slog.Info("recipient rate limiter initialized", "max_per_hour", cfg.RecipientRateLimit.MaxPerHour)

	// Notification service
	notificationService := notification.NewService(notifStore, dispatcher, tmplEngine, recipientLimiter)

	// Record-management collaborator (subject directory + incident write-back)
	if cfg.Collaborator.BaseURL == "" {
		slog.Error("collaborator.base_url is required for escalation")
		os.Exit(1)
	}
	recordClient := collaborator.NewClient(cfg.Collaborator.BaseURL, cfg.Collaborator.APIKey)

	// Emergency escalation orchestrator
	orchestrator := escalation.NewOrchestrator(recordClient, tmplEngine, dispatcher, recordClient)

	// Handlers
	notificationHandler := notification.NewHandler(notificationService)
	escalationHandler := escalation.NewHandler(orchestrator)
	riskHandler := risk.NewHandler()

	// Router
	r := router.New(cfg, notificationHandler, escalationHandler, riskHandler)

	// ==========================================
	// HTTP Server with Graceful Shutdown
	// ==========================================

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		slog.Info("server starting", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down server...")

	// Give outstanding requests 10 seconds to complete
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited gracefully")
}
