package sms

import (
	"context"
	"strconv"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"guardline/internal/domain/notification"
)

var _ notification.Provider = (*TwilioProvider)(nil)

// TwilioProvider sends SMS messages through the Twilio REST API.
type TwilioProvider struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewTwilioProvider creates a Twilio-backed SMS provider.
func NewTwilioProvider(accountSID, authToken, fromNumber string) *TwilioProvider {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioProvider{
		client:     client,
		fromNumber: fromNumber,
	}
}

// Channel returns the SMS channel identifier.
func (p *TwilioProvider) Channel() notification.Channel {
	return notification.ChannelSMS
}

// Send delivers an SMS via Twilio. The destination arrives as a bare
// 10-digit number, already validated by the dispatcher.
func (p *TwilioProvider) Send(ctx context.Context, destination, body string) (notification.Outcome, error) {
	to := "+1" + destination

	params := &twilioApi.CreateMessageParams{
		To:   &to,
		From: &p.fromNumber,
		Body: &body,
	}

	msg, err := p.client.Api.CreateMessage(params)
	if err != nil {
		return notification.Outcome{
			Success:      false,
			ErrorCode:    "twilio_error",
			ErrorMessage: err.Error(),
		}, nil
	}

	outcome := notification.Outcome{Success: true}
	if msg.Sid != nil {
		outcome.ProviderMessageID = *msg.Sid
	}
	if msg.Price != nil {
		if cost, perr := strconv.ParseFloat(*msg.Price, 64); perr == nil {
			outcome.Cost = cost
		}
	}
	if msg.PriceUnit != nil {
		outcome.Currency = *msg.PriceUnit
	}
	return outcome, nil
}
