package sms

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"guardline/internal/domain/notification"
)

var _ notification.Provider = (*SimulatedProvider)(nil)

// SimulatedProvider logs messages instead of transmitting them. It is
// selected at startup when Twilio credentials are absent, so the rest of
// the pipeline runs unchanged in development. Every send succeeds and is
// confirmed delivered synchronously.
type SimulatedProvider struct{}

// NewSimulatedProvider creates a simulated SMS provider.
func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{}
}

// Channel returns the SMS channel identifier.
func (p *SimulatedProvider) Channel() notification.Channel {
	return notification.ChannelSMS
}

// Send logs the message and reports synchronous delivery.
func (p *SimulatedProvider) Send(ctx context.Context, destination, body string) (notification.Outcome, error) {
	id := "sim-" + uuid.New().String()

	slog.Info("simulated SMS send",
		"to", destination,
		"provider_message_id", id,
		"body_length", len(body),
	)

	return notification.Outcome{
		Success:           true,
		ProviderMessageID: id,
		Delivered:         true,
	}, nil
}
