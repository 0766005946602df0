package notifier

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/NathalieLiekens/vp-backend/pkg/events"
)

// Notifier is what the worker drives. *mail.Mailer is the production one.
type Notifier interface {
	BookingReceived(ctx context.Context, b events.Booking) error
	PaymentReceived(ctx context.Context, b events.Booking) error
}

// Console logs notifications instead of mailing them, for local runs
// without a Resend key.
type Console struct {
	log *logrus.Logger
}

func NewConsole(log *logrus.Logger) *Console {
	return &Console{log: log}
}

func (c *Console) BookingReceived(_ context.Context, b events.Booking) error {
	c.log.WithFields(fields(b)).Info("[notify] booking received")
	return nil
}

func (c *Console) PaymentReceived(_ context.Context, b events.Booking) error {
	c.log.WithFields(fields(b)).Info("[notify] payment received")
	return nil
}

func fields(b events.Booking) logrus.Fields {
	return logrus.Fields{
		"booking_id": b.BookingID,
		"stay":       b.CheckIn + " - " + b.CheckOut,
		"status":     b.PaymentStatus,
	}
}
