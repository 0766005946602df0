// Package notifier delivers booking notifications, either by mailing inline
// or by publishing events for the notification worker.
package notifier

import (
	"context"

	"github.com/NathalieLiekens/vp-backend/pkg/events"
	"github.com/NathalieLiekens/vp-backend/pkg/mail"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/domain"
)

func ToEvent(b *domain.Booking) events.Booking {
	return events.Booking{
		BookingID:       b.ID,
		GuestName:       b.GuestName,
		Email:           b.Email,
		CheckIn:         b.CheckIn().String(),
		CheckOut:        b.CheckOut().String(),
		Adults:          b.Adults,
		Kids:            b.Kids,
		Total:           b.Total,
		ArrivalTime:     b.ArrivalTime,
		SpecialRequests: b.SpecialRequests,
		DiscountCode:    b.DiscountCode,
		PaymentStatus:   string(b.PaymentStatus),
		PaymentIntentID: b.PaymentIntentID,
	}
}

// Mail sends the emails from the booking process itself.
type Mail struct {
	mailer *mail.Mailer
}

func NewMail(m *mail.Mailer) *Mail { return &Mail{mailer: m} }

func (n *Mail) BookingCreated(ctx context.Context, b *domain.Booking) error {
	return n.mailer.BookingReceived(ctx, ToEvent(b))
}

func (n *Mail) PaymentSucceeded(ctx context.Context, b *domain.Booking) error {
	return n.mailer.PaymentReceived(ctx, ToEvent(b))
}

type Publisher interface {
	PublishJSON(ctx context.Context, key string, v any) error
}

// Events hands notifications to the worker over the booking exchange.
type Events struct {
	pub Publisher
}

func NewEvents(p Publisher) *Events { return &Events{pub: p} }

func (n *Events) BookingCreated(ctx context.Context, b *domain.Booking) error {
	return n.pub.PublishJSON(ctx, events.RKBookingCreated, ToEvent(b))
}

func (n *Events) PaymentSucceeded(ctx context.Context, b *domain.Booking) error {
	return n.pub.PublishJSON(ctx, events.RKPaymentSucceeded, ToEvent(b))
}
