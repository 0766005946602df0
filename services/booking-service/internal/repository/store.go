package repository

import (
	"context"
	"errors"
	"time"

	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/domain"
)

var (
	ErrNotFound      = errors.New("booking_not_found")
	ErrInvalidStatus = errors.New("invalid_payment_status")
	ErrBadLookup     = errors.New("lookup needs a booking id or a payment intent id")
)

// maxAdvanceAttempts bounds how often a conditional update is retried after
// losing a race to another writer.
const maxAdvanceAttempts = 3

// Lookup selects a booking by id or, failing that, by payment intent id.
type Lookup struct {
	BookingID       string
	PaymentIntentID string
}

func ByBooking(id string) Lookup      { return Lookup{BookingID: id} }
func ByIntent(intentID string) Lookup { return Lookup{PaymentIntentID: intentID} }

type ListFilter struct {
	Status domain.PaymentStatus
	// From/To select stays that overlap [From, To).
	From time.Time
	To   time.Time
	Page int
	Size int
}

func (f ListFilter) limits() (offset, size int) {
	size = f.Size
	if size <= 0 || size > 100 {
		size = 20
	}
	page := f.Page
	if page < 0 {
		page = 0
	}
	return page * size, size
}

// BookingStore is the booking ledger. Bookings are created once and only
// their payment status changes afterwards, always forward.
type BookingStore interface {
	Migrate(ctx context.Context) error
	Create(ctx context.Context, b *domain.Booking) error
	ByID(ctx context.Context, id string) (*domain.Booking, error)
	ByPaymentIntent(ctx context.Context, intentID string) (*domain.Booking, error)
	// AdvancePaymentStatus moves the booking to `to` if that is a forward
	// step. It returns the current booking either way; advanced is true only
	// for the caller whose write took effect.
	AdvancePaymentStatus(ctx context.Context, lk Lookup, to domain.PaymentStatus, source string) (b *domain.Booking, advanced bool, err error)
	// Overlapping reports whether a booking holds any night of
	// [checkIn, checkOut). Pending bookings count only if created at or
	// after pendingSince.
	Overlapping(ctx context.Context, checkIn, checkOut, pendingSince time.Time) (bool, error)
	List(ctx context.Context, f ListFilter) ([]domain.Booking, int64, error)
	Transitions(ctx context.Context, bookingID string) ([]domain.PaymentTransition, error)
}
