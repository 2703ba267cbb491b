package notification

import "context"

// Outcome is what a delivery provider reports back for one send.
type Outcome struct {
	Success           bool
	ProviderMessageID string
	Cost              float64
	Currency          string
	// Delivered is set by providers that confirm final delivery
	// synchronously (the simulated and in-app providers do).
	Delivered    bool
	ErrorCode    string
	ErrorMessage string
}

// Provider defines the contract for a notification delivery channel.
// Implementations live in infra/ (Twilio for SMS, Redis-backed in-app).
// The destination is assumed well-formed; address validation is the
// dispatcher's responsibility.
type Provider interface {
	// Send delivers a message body to a destination address.
	Send(ctx context.Context, destination, body string) (Outcome, error)

	// Channel returns which delivery channel this provider handles.
	Channel() Channel
}

// TemplateRenderer defines the contract for rendering message bodies.
// Implementations live in infra/template/.
type TemplateRenderer interface {
	// Render produces a message body for the given template key. Missing
	// variables render as empty strings rather than failing.
	Render(key string, vars map[string]string) (string, error)
}
