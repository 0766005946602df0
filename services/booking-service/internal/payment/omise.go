package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/omise/omise-go"
	"github.com/omise/omise-go/operations"
)

const (
	omiseChargeComplete  = "charge.complete"
	omiseSignatureMaxAge = 5 * time.Minute
)

type OmiseConfig struct {
	PublicKey     string
	SecretKey     string
	WebhookSecret string // base64, as shown in the dashboard
	SourceType    string // e.g. promptpay
	Timeout       time.Duration
}

// omiseAPI is the subset of the Omise API the adapter calls.
type omiseAPI interface {
	CreateCharge(ctx context.Context, in AuthorizeInput, sourceType string) (*omise.Charge, error)
	RetrieveCharge(ctx context.Context, id string) (*omise.Charge, error)
	RetrieveEvent(ctx context.Context, id string) (*omise.Event, error)
}

// Omise authorizes payments as Omise charges backed by a source.
type Omise struct {
	api        omiseAPI
	secret     []byte
	sourceType string
	now        func() time.Time
}

func NewOmise(cfg OmiseConfig) (*Omise, error) {
	c, err := omise.NewClient(cfg.PublicKey, cfg.SecretKey)
	if err != nil {
		return nil, fmt.Errorf("omise client: %w", err)
	}
	if cfg.Timeout > 0 {
		c.Timeout = cfg.Timeout
	}
	return newOmise(&omiseClient{c: c}, cfg)
}

func newOmise(api omiseAPI, cfg OmiseConfig) (*Omise, error) {
	o := &Omise{api: api, sourceType: cfg.SourceType, now: time.Now}
	if o.sourceType == "" {
		o.sourceType = "promptpay"
	}
	if cfg.WebhookSecret != "" {
		secret, err := base64.StdEncoding.DecodeString(cfg.WebhookSecret)
		if err != nil {
			return nil, fmt.Errorf("omise webhook secret is not base64: %w", err)
		}
		o.secret = secret
	}
	return o, nil
}

func (o *Omise) Name() string { return "omise" }

func (o *Omise) Authorize(ctx context.Context, in AuthorizeInput) (*Intent, error) {
	ch, err := o.api.CreateCharge(ctx, in, o.sourceType)
	if err != nil {
		return nil, err
	}
	secret := ch.AuthorizeURI
	if secret == "" && ch.Source != nil {
		secret = ch.Source.ID
	}
	return &Intent{ID: ch.ID, ClientSecret: secret, Status: chargeStatus(ch)}, nil
}

func (o *Omise) Status(ctx context.Context, intentID string) (string, error) {
	ch, err := o.api.RetrieveCharge(ctx, intentID)
	if err != nil {
		return "", err
	}
	return chargeStatus(ch), nil
}

// Signature joins the timestamp and signature headers as "<ts>.<sigs>".
func (o *Omise) Signature(h http.Header) string {
	return h.Get("Omise-Signature-Timestamp") + "." + h.Get("Omise-Signature")
}

// ParseWebhook checks the HMAC over "<timestamp>.<body>", then fetches the
// event back from Omise and trusts only that copy.
func (o *Omise) ParseWebhook(ctx context.Context, payload []byte, signature string) (*Event, error) {
	if err := o.verify(payload, signature); err != nil {
		return nil, err
	}

	var inc struct {
		ID  string `json:"id"`
		Key string `json:"key"`
	}
	if err := json.Unmarshal(payload, &inc); err != nil || inc.ID == "" {
		return nil, fmt.Errorf("%w: no event id", ErrMalformedEvent)
	}

	ev, err := o.api.RetrieveEvent(ctx, inc.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: retrieve event %s: %v", ErrInvalidSignature, inc.ID, err)
	}
	out := &Event{ID: ev.ID, Type: ev.Key}
	if ev.Key != omiseChargeComplete {
		return out, nil
	}

	// ev.Data is decoded generically; round-trip it into a Charge.
	raw, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	var ch omise.Charge
	if err := json.Unmarshal(raw, &ch); err != nil || ch.ID == "" {
		return nil, fmt.Errorf("%w: event %s data is not a charge", ErrMalformedEvent, ev.ID)
	}
	out.IntentID = ch.ID
	out.Succeeded = chargeStatus(&ch) == StatusSucceeded
	return out, nil
}

func (o *Omise) verify(payload []byte, signature string) error {
	if len(o.secret) == 0 {
		return fmt.Errorf("%w: no webhook secret configured", ErrInvalidSignature)
	}
	ts, sigs, ok := strings.Cut(signature, ".")
	if !ok || ts == "" || sigs == "" {
		return fmt.Errorf("%w: missing signature headers", ErrInvalidSignature)
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", ErrInvalidSignature)
	}
	if age := o.now().Sub(time.Unix(unix, 0)); age > omiseSignatureMaxAge || age < -omiseSignatureMaxAge {
		return fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, o.secret)
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	want := mac.Sum(nil)
	// several signatures are sent while a secret is being rotated
	for _, s := range strings.Split(sigs, ",") {
		got, err := hex.DecodeString(strings.TrimSpace(s))
		if err == nil && hmac.Equal(got, want) {
			return nil
		}
	}
	return ErrInvalidSignature
}

func chargeStatus(ch *omise.Charge) string {
	if string(ch.Status) == "successful" {
		return StatusSucceeded
	}
	return string(ch.Status)
}

type omiseClient struct{ c *omise.Client }

func (oc *omiseClient) CreateCharge(ctx context.Context, in AuthorizeInput, sourceType string) (*omise.Charge, error) {
	c := oc.c.WithContext(ctx)
	src := &omise.Source{}
	if err := c.Do(src, &operations.CreateSource{
		Type:     sourceType,
		Amount:   in.AmountMinor,
		Currency: in.Currency,
	}); err != nil {
		return nil, fmt.Errorf("omise create source: %w", err)
	}

	meta := make(map[string]interface{}, len(in.Metadata))
	for k, v := range in.Metadata {
		meta[k] = v
	}
	ch := &omise.Charge{}
	if err := c.Do(ch, &operations.CreateCharge{
		Amount:      in.AmountMinor,
		Currency:    in.Currency,
		Source:      src.ID,
		Description: in.Description,
		Metadata:    meta,
	}); err != nil {
		return nil, fmt.Errorf("omise create charge: %w", err)
	}
	return ch, nil
}

func (oc *omiseClient) RetrieveCharge(ctx context.Context, id string) (*omise.Charge, error) {
	ch := &omise.Charge{}
	if err := oc.c.WithContext(ctx).Do(ch, &operations.RetrieveCharge{ChargeID: id}); err != nil {
		return nil, fmt.Errorf("omise retrieve charge: %w", err)
	}
	return ch, nil
}

func (oc *omiseClient) RetrieveEvent(ctx context.Context, id string) (*omise.Event, error) {
	ev := &omise.Event{}
	if err := oc.c.WithContext(ctx).Do(ev, &operations.RetrieveEvent{EventID: id}); err != nil {
		return nil, err
	}
	if ev.ID == "" {
		return nil, errors.New("empty event")
	}
	return ev, nil
}
