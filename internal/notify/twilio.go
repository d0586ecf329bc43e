// This file wraps the Twilio REST API as an SMS channel, used when the
// device owner wants warnings and mission announcements pushed to a phone.

package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/stepfence/StepFence/internal/models"
)

// Opts holds configuration options for the Twilio SMS notifier.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
}

// Option defines a configuration option for the Twilio SMS notifier.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) Option {
	return func(o *Opts) { o.From = from }
}

// WithToNumber sets the receiving phone number.
func WithToNumber(to string) Option {
	return func(o *Opts) { o.To = to }
}

// TwilioNotifier delivers notifications as SMS messages via Twilio.
type TwilioNotifier struct {
	client *twilio.RestClient
	from   string
	to     string
}

// NewTwilioNotifier creates a Twilio-backed notifier. Options fall back to
// the TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER and
// TWILIO_TO_NUMBER environment variables.
func NewTwilioNotifier(opts ...Option) (*TwilioNotifier, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	if cfg.To == "" {
		cfg.To = os.Getenv("TWILIO_TO_NUMBER")
	}
	slog.Debug("Twilio notifier config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"From_set", cfg.From != "",
		"To_set", cfg.To != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" || cfg.To == "" {
		return nil, fmt.Errorf("from and to numbers must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioNotifier{client: client, from: cfg.From, to: cfg.To}, nil
}

// Send delivers the notification as a single SMS.
func (t *TwilioNotifier) Send(ctx context.Context, n models.Notification) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(t.to)
	params.SetFrom(t.from)
	params.SetBody(fmt.Sprintf("%s: %s", n.Title, n.Body))

	_, err := t.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Twilio Send failed", "title", n.Title, "error", err)
		return fmt.Errorf("failed to send notification %q: %w", n.Title, err)
	}
	slog.Debug("Twilio notification sent", "title", n.Title, "priority", n.Priority)
	return nil
}
