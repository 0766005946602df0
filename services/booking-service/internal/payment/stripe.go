package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

const stripeSucceededEvent = "payment_intent.succeeded"

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Timeout       time.Duration
	// BaseURL overrides the API host; tests point it at an httptest server.
	BaseURL string
}

// Stripe authorizes card payments as PaymentIntents.
type Stripe struct {
	api           *client.API
	webhookSecret string
}

func NewStripe(cfg StripeConfig) (*Stripe, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("stripe: secret key is empty")
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	backends := stripe.NewBackends(httpClient)
	if cfg.BaseURL != "" {
		backends.API = stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL:               stripe.String(cfg.BaseURL),
			HTTPClient:        httpClient,
			MaxNetworkRetries: stripe.Int64(0),
			LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		})
	}
	return &Stripe{api: client.New(cfg.SecretKey, backends), webhookSecret: cfg.WebhookSecret}, nil
}

func (s *Stripe) Name() string { return "stripe" }

func (s *Stripe) Authorize(ctx context.Context, in AuthorizeInput) (*Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:       stripe.Int64(in.AmountMinor),
		Currency:     stripe.String(in.Currency),
		Description:  stripe.String(in.Description),
		ReceiptEmail: stripe.String(in.Email),
	}
	params.Context = ctx
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create payment intent: %w", err)
	}
	return &Intent{ID: pi.ID, ClientSecret: pi.ClientSecret, Status: string(pi.Status)}, nil
}

func (s *Stripe) Status(ctx context.Context, intentID string) (string, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return "", fmt.Errorf("stripe retrieve payment intent: %w", err)
	}
	return string(pi.Status), nil
}

func (s *Stripe) Signature(h http.Header) string { return h.Get("Stripe-Signature") }

func (s *Stripe) ParseWebhook(_ context.Context, payload []byte, signature string) (*Event, error) {
	if s.webhookSecret == "" {
		return nil, fmt.Errorf("%w: no webhook secret configured", ErrInvalidSignature)
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		if isStripeSignatureErr(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	out := &Event{ID: ev.ID, Type: string(ev.Type)}
	if out.Type != stripeSucceededEvent {
		return out, nil
	}
	if ev.Data == nil {
		return nil, fmt.Errorf("%w: event %s has no data", ErrMalformedEvent, ev.ID)
	}
	var pi stripe.PaymentIntent
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil || pi.ID == "" {
		return nil, fmt.Errorf("%w: event %s data is not a payment intent", ErrMalformedEvent, ev.ID)
	}
	out.IntentID = pi.ID
	out.Succeeded = true
	return out, nil
}

func isStripeSignatureErr(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}
