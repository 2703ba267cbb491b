package inapp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"guardline/internal/domain/notification"
)

var _ notification.Provider = (*Provider)(nil)

// Provider delivers in-app notifications by publishing to a per-subject
// Redis channel. Connected clients receive the message live; the
// notification record itself is the durable inbox copy, so a publish with
// no subscribers still counts as delivered.
type Provider struct {
	client *redis.Client
}

// NewProvider creates a Redis-backed in-app provider.
func NewProvider(redisAddr, password string, db int) *Provider {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: password,
		DB:       db,
	})
	return &Provider{client: client}
}

// Channel returns the in-app channel identifier.
func (p *Provider) Channel() notification.Channel {
	return notification.ChannelInApp
}

// inAppMessage is the payload published to subscribers.
type inAppMessage struct {
	ID     string    `json:"id"`
	Body   string    `json:"body"`
	SentAt time.Time `json:"sent_at"`
}

// Send publishes the message on the subject's channel. The destination is a
// subject reference, already validated by the dispatcher.
func (p *Provider) Send(ctx context.Context, destination, body string) (notification.Outcome, error) {
	id := "inapp-" + uuid.New().String()

	payload, err := json.Marshal(inAppMessage{
		ID:     id,
		Body:   body,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return notification.Outcome{}, fmt.Errorf("marshaling in-app message: %w", err)
	}

	channel := fmt.Sprintf("guardline:inapp:%s", destination)
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return notification.Outcome{
			Success:      false,
			ErrorCode:    "publish_error",
			ErrorMessage: err.Error(),
		}, nil
	}

	return notification.Outcome{
		Success:           true,
		ProviderMessageID: id,
		Delivered:         true,
	}, nil
}

// Close closes the Redis connection.
func (p *Provider) Close() error {
	return p.client.Close()
}
