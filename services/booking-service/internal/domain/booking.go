package domain

import (
	"time"

	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/calendar"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed" // nothing to pay (free or discounted)
	PaymentSucceeded PaymentStatus = "succeeded"
)

// order of payment statuses; a booking only ever moves up this list
var paymentOrder = []PaymentStatus{PaymentPending, PaymentCompleted, PaymentSucceeded}

func (s PaymentStatus) rank() int {
	for i, st := range paymentOrder {
		if st == s {
			return i
		}
	}
	return -1
}

func (s PaymentStatus) Valid() bool { return s.rank() >= 0 }

// CanAdvanceTo reports whether moving from s to next is a forward step.
func (s PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	return next.Valid() && next.rank() > s.rank()
}

// Transition sources recorded on PaymentTransition.
const (
	SourceConfirm = "confirm"
	SourceWebhook = "webhook"
)

type Booking struct {
	ID              string        `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	GuestName       string        `gorm:"not null" bson:"guestName" json:"guestName"`
	Email           string        `gorm:"not null;index" bson:"email" json:"email"`
	CheckInDate     time.Time     `gorm:"not null;index" bson:"checkInDate" json:"checkInDate"`
	CheckOutDate    time.Time     `gorm:"not null;index" bson:"checkOutDate" json:"checkOutDate"`
	Adults          int           `gorm:"not null" bson:"adults" json:"adults"`
	Kids            int           `gorm:"not null;default:0" bson:"kids" json:"kids"`
	Total           float64       `gorm:"not null" bson:"total" json:"total"`
	ArrivalTime     string        `bson:"arrivalTime" json:"arrivalTime"`
	SpecialRequests string        `bson:"specialRequests" json:"specialRequests"`
	PaymentStatus   PaymentStatus `gorm:"not null;index;type:varchar(16)" bson:"paymentStatus" json:"paymentStatus"`
	PaymentIntentID string        `gorm:"index" bson:"paymentIntentId,omitempty" json:"paymentIntentId,omitempty"`
	DiscountCode    string        `bson:"discountCode" json:"discountCode"`
	CreatedAt       time.Time     `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time     `bson:"updatedAt" json:"updatedAt"`
}

// CheckIn returns the check-in day; stores hand timestamps back in their own
// zone so they are folded into the villa day again here.
func (b *Booking) CheckIn() calendar.Date {
	d, _ := calendar.Normalize(b.CheckInDate)
	return d
}

func (b *Booking) CheckOut() calendar.Date {
	d, _ := calendar.Normalize(b.CheckOutDate)
	return d
}

// PaymentTransition is written once per persisted forward step of a
// booking's payment status.
type PaymentTransition struct {
	ID              string        `gorm:"primaryKey;type:varchar(36)" bson:"_id" json:"id"`
	BookingID       string        `gorm:"not null;index" bson:"bookingId" json:"bookingId"`
	PaymentIntentID string        `bson:"paymentIntentId,omitempty" json:"paymentIntentId,omitempty"`
	From            PaymentStatus `gorm:"column:from_status;type:varchar(16)" bson:"from" json:"from"`
	To              PaymentStatus `gorm:"column:to_status;type:varchar(16)" bson:"to" json:"to"`
	Source          string        `gorm:"type:varchar(16)" bson:"source" json:"source"` // confirm | webhook
	OccurredAt      time.Time     `bson:"occurredAt" json:"occurredAt"`
}
