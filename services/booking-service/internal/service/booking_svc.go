package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/calendar"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/domain"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/payment"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/repository"
	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/validation"
)

const (
	paymentDescription = "Villa Pura Bali Booking"
	notifyTimeout      = 30 * time.Second
)

// Notifier is told about committed bookings. It runs after the response has
// been decided, so its errors are only logged.
type Notifier interface {
	BookingCreated(ctx context.Context, b *domain.Booking) error
	PaymentSucceeded(ctx context.Context, b *domain.Booking) error
}

// BlockChecker reports whether a stay collides with the external calendar.
type BlockChecker interface {
	Conflicts(checkIn, checkOut calendar.Date) bool
}

type Options struct {
	Currency       string
	FreeCodes      []string
	PaymentTimeout time.Duration
	// EnforceAvailability rejects stays that overlap Blocks or another
	// booking. Pending bookings older than PendingHold do not count.
	EnforceAvailability bool
	PendingHold         time.Duration
	Blocks              BlockChecker
}

type BookingSvc struct {
	repo   repository.BookingStore
	pay    payment.Provider
	notify Notifier
	log    *logrus.Entry
	opts   Options
	now    func() time.Time
	wg     sync.WaitGroup
}

func NewBookingSvc(r repository.BookingStore, pay payment.Provider, n Notifier, log *logrus.Logger, opts Options) *BookingSvc {
	if opts.Currency == "" {
		opts.Currency = "aud"
	}
	return &BookingSvc{repo: r, pay: pay, notify: n, log: log.WithField("component", "booking"), opts: opts, now: time.Now}
}

type CreateResult struct {
	ClientSecret    *string `json:"clientSecret"`
	BookingID       string  `json:"bookingId"`
	PaymentIntentID *string `json:"paymentIntentId"`
}

// Create validates the request, authorizes a payment when one is due and
// saves the booking. Nothing is saved when authorization fails.
func (s *BookingSvc) Create(ctx context.Context, req validation.BookingRequest) (*CreateResult, error) {
	v, err := validation.Validate(req)
	if err != nil {
		return nil, err
	}
	if s.opts.EnforceAvailability {
		if err := s.checkAvailable(ctx, v); err != nil {
			return nil, err
		}
	}

	b := &domain.Booking{
		GuestName:       v.GuestName,
		Email:           v.Email,
		CheckInDate:     v.CheckIn.Time(),
		CheckOutDate:    v.CheckOut.Time(),
		Adults:          v.Adults,
		Kids:            v.Kids,
		Total:           v.Total,
		ArrivalTime:     v.ArrivalTime,
		SpecialRequests: v.SpecialRequests,
		DiscountCode:    v.DiscountCode,
		PaymentStatus:   domain.PaymentCompleted,
	}
	res := &CreateResult{}

	if s.paymentRequired(v) {
		intent, err := s.authorize(ctx, v)
		if err != nil {
			return nil, err
		}
		b.PaymentStatus = domain.PaymentPending
		b.PaymentIntentID = intent.ID
		res.ClientSecret = &intent.ClientSecret
		res.PaymentIntentID = &intent.ID
	}

	if err := s.repo.Create(ctx, b); err != nil {
		if b.PaymentIntentID != "" {
			s.log.WithError(err).WithFields(logrus.Fields{
				"payment_intent_id": b.PaymentIntentID,
				"guest_email":       b.Email,
				"check_in":          v.CheckIn.String(),
			}).Error("payment authorized but booking not saved, reconcile manually")
			return nil, &UnrecordedPaymentError{IntentID: b.PaymentIntentID, Err: err}
		}
		return nil, fmt.Errorf("save booking: %w", err)
	}
	res.BookingID = b.ID

	s.log.WithFields(logrus.Fields{
		"booking_id":     b.ID,
		"payment_status": b.PaymentStatus,
	}).Infof("iCal update needed: block %s to %s", v.CheckIn.Display(), v.CheckOut.Display())

	s.afterCommit("booking.created", b, s.notifyCreated)
	return res, nil
}

func (s *BookingSvc) paymentRequired(v *validation.Validated) bool {
	if validation.MinorUnits(v.Total) <= 0 {
		return false
	}
	for _, code := range s.opts.FreeCodes {
		if v.DiscountCode != "" && v.DiscountCode == strings.TrimSpace(code) {
			return false
		}
	}
	return true
}

func (s *BookingSvc) authorize(ctx context.Context, v *validation.Validated) (*payment.Intent, error) {
	if s.pay == nil {
		return nil, fmt.Errorf("%w: no payment provider configured", ErrPaymentAuthorizationFailed)
	}
	if s.opts.PaymentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.PaymentTimeout)
		defer cancel()
	}
	intent, err := s.pay.Authorize(ctx, payment.AuthorizeInput{
		AmountMinor: validation.MinorUnits(v.Total),
		Currency:    s.opts.Currency,
		Email:       v.Email,
		Description: paymentDescription,
		Metadata: map[string]string{
			"guestName":    v.GuestName,
			"email":        v.Email,
			"checkInDate":  v.CheckIn.Time().Format(time.RFC3339),
			"checkOutDate": v.CheckOut.Time().Format(time.RFC3339),
		},
	})
	if err != nil {
		s.log.WithError(err).WithField("provider", s.pay.Name()).Error("payment authorization failed")
		return nil, fmt.Errorf("%w: %w", ErrPaymentAuthorizationFailed, err)
	}
	return intent, nil
}

func (s *BookingSvc) checkAvailable(ctx context.Context, v *validation.Validated) error {
	if s.opts.Blocks != nil && s.opts.Blocks.Conflicts(v.CheckIn, v.CheckOut) {
		return ErrUnavailable
	}
	since := s.now().Add(-s.opts.PendingHold)
	taken, err := s.repo.Overlapping(ctx, v.CheckIn.Time(), v.CheckOut.Time(), since)
	if err != nil {
		return fmt.Errorf("check availability: %w", err)
	}
	if taken {
		return ErrUnavailable
	}
	return nil
}

// Confirm is the client's synchronous completion call. It asks the provider
// for the intent status and only then advances the booking.
func (s *BookingSvc) Confirm(ctx context.Context, bookingID, intentID string) (domain.PaymentStatus, error) {
	bookingID, intentID = strings.TrimSpace(bookingID), strings.TrimSpace(intentID)
	if bookingID == "" || intentID == "" {
		return "", ErrMissingConfirmFields
	}
	b, err := s.repo.ByID(ctx, bookingID)
	if errors.Is(err, repository.ErrNotFound) {
		return "", ErrBookingNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load booking: %w", err)
	}
	if b.PaymentIntentID != intentID {
		s.log.WithFields(logrus.Fields{"booking_id": b.ID, "payment_intent_id": intentID}).Warn("confirm with foreign payment intent")
		return "", ErrIntentMismatch
	}
	if s.pay == nil {
		return "", fmt.Errorf("%w: no payment provider configured", ErrPaymentProvider)
	}

	status, err := s.pay.Status(ctx, intentID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrPaymentProvider, err)
	}
	if status != payment.StatusSucceeded {
		s.log.WithFields(logrus.Fields{"booking_id": b.ID, "payment_intent_id": intentID, "status": status}).Warn("payment not succeeded")
		return "", &PaymentNotSucceededError{Status: status}
	}

	nb, advanced, err := s.repo.AdvancePaymentStatus(ctx, repository.ByBooking(b.ID), domain.PaymentSucceeded, domain.SourceConfirm)
	if err != nil {
		return "", fmt.Errorf("record payment: %w", err)
	}
	s.log.WithFields(logrus.Fields{
		"booking_id":        nb.ID,
		"payment_intent_id": intentID,
		"source":            domain.SourceConfirm,
		"advanced":          advanced,
	}).Info("payment confirmed")
	if advanced {
		s.afterCommit("payment.succeeded", nb, s.notifyPaid)
	}
	return nb.PaymentStatus, nil
}

// HandleWebhook applies a provider event. Unknown intents and event types
// are acknowledged and ignored; only verification and storage failures are
// returned.
func (s *BookingSvc) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if s.pay == nil {
		return fmt.Errorf("%w: no payment provider configured", payment.ErrInvalidSignature)
	}
	ev, err := s.pay.ParseWebhook(ctx, payload, signature)
	if err != nil {
		s.log.WithError(err).Warn("webhook rejected")
		return err
	}
	fields := logrus.Fields{"event_id": ev.ID, "event_type": ev.Type, "payment_intent_id": ev.IntentID}
	if !ev.Succeeded {
		s.log.WithFields(fields).Debug("webhook event ignored")
		return nil
	}

	b, advanced, err := s.repo.AdvancePaymentStatus(ctx, repository.ByIntent(ev.IntentID), domain.PaymentSucceeded, domain.SourceWebhook)
	if errors.Is(err, repository.ErrNotFound) {
		s.log.WithFields(fields).Warn("webhook: no booking for payment intent")
		return nil
	}
	if err != nil {
		return fmt.Errorf("record webhook payment: %w", err)
	}
	fields["booking_id"], fields["advanced"] = b.ID, advanced
	s.log.WithFields(fields).Info("webhook: payment succeeded")
	if advanced {
		s.afterCommit("payment.succeeded", b, s.notifyPaid)
	}
	return nil
}

type BookingDetail struct {
	Booking     *domain.Booking            `json:"booking"`
	Transitions []domain.PaymentTransition `json:"transitions"`
}

func (s *BookingSvc) Get(ctx context.Context, id string) (*BookingDetail, error) {
	b, err := s.repo.ByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	trs, err := s.repo.Transitions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &BookingDetail{Booking: b, Transitions: trs}, nil
}

func (s *BookingSvc) List(ctx context.Context, f repository.ListFilter) ([]domain.Booking, int64, error) {
	return s.repo.List(ctx, f)
}

// Wait blocks until in-flight notifications are done.
func (s *BookingSvc) Wait() { s.wg.Wait() }

func (s *BookingSvc) notifyCreated(ctx context.Context, b *domain.Booking) error {
	return s.notify.BookingCreated(ctx, b)
}

func (s *BookingSvc) notifyPaid(ctx context.Context, b *domain.Booking) error {
	return s.notify.PaymentSucceeded(ctx, b)
}

func (s *BookingSvc) afterCommit(kind string, b *domain.Booking, fn func(context.Context, *domain.Booking) error) {
	if s.notify == nil {
		return
	}
	cp := *b
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := fn(ctx, &cp); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{"booking_id": cp.ID, "event": kind}).Error("notification failed")
		}
	}()
}
