package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/domain"
)

type BookingRepo struct{ db *gorm.DB }

func NewBookingRepo(db *gorm.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

func (r *BookingRepo) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&domain.Booking{}, &domain.PaymentTransition{})
}

func (r *BookingRepo) Create(ctx context.Context, b *domain.Booking) error {
	if !b.PaymentStatus.Valid() {
		return ErrInvalidStatus
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	// stored in UTC so every row compares on the same representation
	now := time.Now().UTC()
	b.CheckInDate = b.CheckInDate.UTC()
	b.CheckOutDate = b.CheckOutDate.UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	return r.db.WithContext(ctx).Create(b).Error
}

func (r *BookingRepo) ByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *BookingRepo) ByPaymentIntent(ctx context.Context, intentID string) (*domain.Booking, error) {
	if intentID == "" {
		return nil, ErrNotFound
	}
	return r.first(ctx, "payment_intent_id = ?", intentID)
}

func (r *BookingRepo) first(ctx context.Context, query string, arg any) (*domain.Booking, error) {
	var b domain.Booking
	if err := r.db.WithContext(ctx).First(&b, query, arg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *BookingRepo) find(ctx context.Context, lk Lookup) (*domain.Booking, error) {
	switch {
	case lk.BookingID != "":
		return r.ByID(ctx, lk.BookingID)
	case lk.PaymentIntentID != "":
		return r.ByPaymentIntent(ctx, lk.PaymentIntentID)
	}
	return nil, ErrBadLookup
}

// AdvancePaymentStatus compares-and-sets payment_status against the value it
// just read, and records the transition in the same transaction. A writer
// that loses the race re-reads and either retries or finds nothing to do.
func (r *BookingRepo) AdvancePaymentStatus(ctx context.Context, lk Lookup, to domain.PaymentStatus, source string) (*domain.Booking, bool, error) {
	if !to.Valid() {
		return nil, false, ErrInvalidStatus
	}
	for attempt := 0; attempt < maxAdvanceAttempts; attempt++ {
		b, err := r.find(ctx, lk)
		if err != nil {
			return nil, false, err
		}
		if !b.PaymentStatus.CanAdvanceTo(to) {
			return b, false, nil
		}

		from := b.PaymentStatus
		now := time.Now().UTC()
		advanced := false
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			res := tx.Model(&domain.Booking{}).
				Where("id = ? AND payment_status = ?", b.ID, from).
				Updates(map[string]any{"payment_status": to, "updated_at": now})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return nil
			}
			advanced = true
			return tx.Create(&domain.PaymentTransition{
				ID:              uuid.NewString(),
				BookingID:       b.ID,
				PaymentIntentID: firstNonEmpty(lk.PaymentIntentID, b.PaymentIntentID),
				From:            from,
				To:              to,
				Source:          source,
				OccurredAt:      now,
			}).Error
		})
		if err != nil {
			return nil, false, err
		}
		if advanced {
			b.PaymentStatus, b.UpdatedAt = to, now
			return b, true, nil
		}
	}
	b, err := r.find(ctx, lk)
	return b, false, err
}

func (r *BookingRepo) Overlapping(ctx context.Context, checkIn, checkOut, pendingSince time.Time) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&domain.Booking{}).
		Where("check_in_date < ? AND check_out_date > ?", checkOut.UTC(), checkIn.UTC()).
		Where("(payment_status <> ? OR created_at >= ?)", domain.PaymentPending, pendingSince.UTC()).
		Count(&n).Error
	return n > 0, err
}

func (r *BookingRepo) List(ctx context.Context, f ListFilter) ([]domain.Booking, int64, error) {
	qb := r.db.WithContext(ctx).Model(&domain.Booking{})
	if f.Status != "" {
		qb = qb.Where("payment_status = ?", f.Status)
	}
	if !f.From.IsZero() {
		qb = qb.Where("check_out_date > ?", f.From.UTC())
	}
	if !f.To.IsZero() {
		qb = qb.Where("check_in_date < ?", f.To.UTC())
	}
	qb = qb.Session(&gorm.Session{})
	var total int64
	if err := qb.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	offset, size := f.limits()
	var out []domain.Booking
	if err := qb.Order("check_in_date ASC").Limit(size).Offset(offset).Find(&out).Error; err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

func (r *BookingRepo) Transitions(ctx context.Context, bookingID string) ([]domain.PaymentTransition, error) {
	var out []domain.PaymentTransition
	err := r.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("occurred_at ASC").
		Find(&out).Error
	return out, err
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
