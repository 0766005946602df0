// Package mail renders and sends the guest and owner booking emails.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus"

	"github.com/NathalieLiekens/vp-backend/pkg/events"
)

var ErrNoRecipient = errors.New("mail: no recipient")

type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, m Message) error
}

// ResendSender delivers through the Resend HTTP API.
type ResendSender struct {
	client *resend.Client
}

func NewResendSender(apiKey string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey)}
}

func (s *ResendSender) Send(ctx context.Context, m Message) error {
	if m.To == "" {
		return ErrNoRecipient
	}
	_, err := s.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.From,
		To:      []string{m.To},
		Subject: m.Subject,
		Html:    m.HTML,
	})
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

type Mailer struct {
	sender Sender
	from   string
	owner  string
	site   string
	log    *logrus.Entry
}

type MailerOption func(*Mailer)

// WithSiteURL adds a link back to the villa site to the guest emails.
func WithSiteURL(u string) MailerOption {
	return func(m *Mailer) { m.site = u }
}

func NewMailer(s Sender, from, owner string, log *logrus.Logger, opts ...MailerOption) *Mailer {
	m := &Mailer{sender: s, from: from, owner: owner, log: log.WithField("component", "mailer")}
	for _, o := range opts {
		o(m)
	}
	return m
}

// BookingReceived sends the guest confirmation and, when an owner address is
// configured, the owner notification. The guest error wins if both fail.
func (m *Mailer) BookingReceived(ctx context.Context, b events.Booking) error {
	v := m.newView(b)
	guestErr := m.send(ctx, b.Email, "Booking Confirmation - Villa Pura Bali", guestTmpl, v)
	if guestErr != nil {
		m.log.WithError(guestErr).WithField("booking_id", b.BookingID).Error("guest email failed")
	}

	if m.owner == "" {
		m.log.WithField("booking_id", b.BookingID).Error("owner email not configured")
		return guestErr
	}
	if err := m.send(ctx, m.owner, "New Booking Notification - Villa Pura Bali", ownerTmpl, v); err != nil {
		m.log.WithError(err).WithField("booking_id", b.BookingID).Error("owner email failed")
		if guestErr == nil {
			return err
		}
	}
	return guestErr
}

// PaymentReceived tells the guest the card payment went through.
func (m *Mailer) PaymentReceived(ctx context.Context, b events.Booking) error {
	return m.send(ctx, b.Email, "Payment Received - Villa Pura Bali", paymentTmpl, m.newView(b))
}

func (m *Mailer) send(ctx context.Context, to, subject string, t *template.Template, v view) error {
	var buf bytes.Buffer
	if err := t.Execute(&buf, v); err != nil {
		return fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return m.sender.Send(ctx, Message{From: m.from, To: to, Subject: subject, HTML: buf.String()})
}

type view struct {
	events.Booking
	CheckInDisplay  string
	CheckOutDisplay string
	TotalDisplay    string
	SiteURL         string
}

func (m *Mailer) newView(b events.Booking) view {
	return view{
		Booking:         b,
		CheckInDisplay:  displayDate(b.CheckIn),
		CheckOutDisplay: displayDate(b.CheckOut),
		TotalDisplay:    fmt.Sprintf("AUD $%.2f", b.Total),
		SiteURL:         m.site,
	}
}

func displayDate(s string) string {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return s
	}
	return t.Format("02/01/2006")
}
