// Package validation turns a raw booking submission into a booking the
// ledger can persist.
package validation

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cast"

	"github.com/NathalieLiekens/vp-backend/services/booking-service/internal/calendar"
)

const (
	MaxAdults = 8
	MaxKids   = 4
)

// Error is a client input problem. Message is safe to show to the guest.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	ErrMissingName       = &Error{Code: "MissingName", Message: "First and last name are required"}
	ErrInvalidEmail      = &Error{Code: "InvalidEmail", Message: "Invalid email address provided"}
	ErrMissingDates      = &Error{Code: "MissingDates", Message: "Check-in and check-out dates are required"}
	ErrInvalidDateRange  = &Error{Code: "InvalidDateRange", Message: "Invalid date range"}
	ErrInvalidGuestCount = &Error{Code: "InvalidGuestCount", Message: "Guests must be 1-8 adults and 0-4 kids"}
	ErrInvalidTotal      = &Error{Code: "InvalidTotal", Message: "Total must be a non-negative amount"}
)

// BookingRequest is the body of POST /bookings. The numeric fields arrive as
// numbers or strings depending on the form, so they stay untyped until
// Validate coerces them.
type BookingRequest struct {
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	StartDate       string `json:"startDate"`
	EndDate         string `json:"endDate"`
	Adults          any    `json:"adults"`
	Kids            any    `json:"kids"`
	Total           any    `json:"total"`
	ArrivalTime     string `json:"arrivalTime"`
	SpecialRequests string `json:"specialRequests"`
	DiscountCode    string `json:"discountCode"`
}

type Validated struct {
	GuestName       string
	Email           string
	CheckIn         calendar.Date
	CheckOut        calendar.Date
	Adults          int
	Kids            int
	Total           float64
	ArrivalTime     string
	SpecialRequests string
	DiscountCode    string
}

var (
	// same shape the booking form checks client side
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	leadingInt   = regexp.MustCompile(`^[+-]?[0-9]+`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("guestemail", func(fl validator.FieldLevel) bool {
		return emailPattern.MatchString(fl.Field().String())
	})
	return v
}

// Validate runs the checks in order and returns the first failure.
func Validate(req BookingRequest) (*Validated, error) {
	first, last := strings.TrimSpace(req.FirstName), strings.TrimSpace(req.LastName)
	if validate.Var(first, "required") != nil || validate.Var(last, "required") != nil {
		return nil, ErrMissingName
	}

	email := strings.TrimSpace(req.Email)
	if validate.Var(email, "required,guestemail") != nil {
		return nil, ErrInvalidEmail
	}

	checkIn, errIn := calendar.Parse(req.StartDate)
	checkOut, errOut := calendar.Parse(req.EndDate)
	if errIn != nil || errOut != nil {
		return nil, ErrMissingDates
	}
	if !checkIn.Before(checkOut) {
		return nil, ErrInvalidDateRange
	}

	v := &Validated{
		GuestName:       first + " " + last,
		Email:           email,
		CheckIn:         checkIn,
		CheckOut:        checkOut,
		Adults:          coerceInt(req.Adults, 1),
		Kids:            coerceInt(req.Kids, 0),
		Total:           coerceAmount(req.Total),
		ArrivalTime:     strings.TrimSpace(req.ArrivalTime),
		SpecialRequests: strings.TrimSpace(req.SpecialRequests),
		DiscountCode:    strings.TrimSpace(req.DiscountCode),
	}
	if v.Adults < 1 || v.Adults > MaxAdults || v.Kids < 0 || v.Kids > MaxKids {
		return nil, ErrInvalidGuestCount
	}
	if v.Total < 0 {
		return nil, ErrInvalidTotal
	}
	return v, nil
}

// coerceInt falls back to def for anything unreadable and for zero, which
// is what the booking form has always done with blank counts. Strings are
// read as their leading base-10 digits ("010" is 10, "2.5" is 2); numbers
// are truncated.
func coerceInt(v any, def int) int {
	var (
		n   int
		err error
	)
	if s, ok := v.(string); ok {
		n, err = strconv.Atoi(leadingInt.FindString(strings.TrimSpace(s)))
	} else {
		n, err = cast.ToIntE(v)
	}
	if err != nil || n == 0 {
		return def
	}
	return n
}

func coerceAmount(v any) float64 {
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// MinorUnits converts a total in major currency units to cents.
func MinorUnits(total float64) int64 {
	return int64(math.Round(total * 100))
}
