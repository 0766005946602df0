// Package payment adapts card payment providers to the one shape the booking
// service needs: authorize an amount, ask for its status, and verify webhooks.
package payment

import (
	"context"
	"errors"
	"net/http"
)

// StatusSucceeded is the provider-neutral status of a captured payment.
const StatusSucceeded = "succeeded"

var (
	ErrInvalidSignature = errors.New("payment: webhook signature verification failed")
	ErrMalformedEvent   = errors.New("payment: malformed webhook event")
)

type AuthorizeInput struct {
	AmountMinor int64
	Currency    string
	Email       string
	Description string
	Metadata    map[string]string
}

// Intent is an authorized payment the client still has to complete.
type Intent struct {
	ID           string
	ClientSecret string
	Status       string
}

// Event is a verified webhook event reduced to what the reconciler reads.
type Event struct {
	ID        string
	Type      string
	IntentID  string
	Succeeded bool
}

type Provider interface {
	Name() string
	Authorize(ctx context.Context, in AuthorizeInput) (*Intent, error)
	// Status returns the provider status of an intent, mapped so that a
	// captured payment reads StatusSucceeded.
	Status(ctx context.Context, intentID string) (string, error)
	// ParseWebhook verifies the signature over the raw payload before
	// decoding anything. Unverifiable payloads fail with ErrInvalidSignature.
	ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error)
	// Signature extracts the provider's signature material from headers.
	Signature(h http.Header) string
}
