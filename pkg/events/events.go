package events

import (
	"encoding/json"
	"fmt"
)

// Routing keys on the booking exchange.
const (
	RKBookingCreated   = "booking.created"
	RKPaymentSucceeded = "payment.succeeded"
)

// Booking carries what a notification needs. Dates are villa days (2006-01-02).
type Booking struct {
	BookingID       string  `json:"booking_id"`
	GuestName       string  `json:"guest_name"`
	Email           string  `json:"email"`
	CheckIn         string  `json:"check_in"`
	CheckOut        string  `json:"check_out"`
	Adults          int     `json:"adults"`
	Kids            int     `json:"kids"`
	Total           float64 `json:"total"`
	ArrivalTime     string  `json:"arrival_time,omitempty"`
	SpecialRequests string  `json:"special_requests,omitempty"`
	DiscountCode    string  `json:"discount_code,omitempty"`
	PaymentStatus   string  `json:"payment_status"`
	PaymentIntentID string  `json:"payment_intent_id,omitempty"`
}

func Decode[T any](b []byte) (T, error) {
	var t T
	if err := json.Unmarshal(b, &t); err != nil {
		var zero T
		return zero, fmt.Errorf("decode payload failed: %w", err)
	}
	return t, nil
}
