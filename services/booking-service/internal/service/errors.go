package service

import (
	"errors"
	"fmt"
)

var (
	ErrBookingNotFound            = errors.New("booking not found")
	ErrMissingConfirmFields       = errors.New("payment intent id and booking id are required")
	ErrIntentMismatch             = errors.New("payment intent does not belong to this booking")
	ErrPaymentAuthorizationFailed = errors.New("payment authorization failed")
	ErrPaymentProvider            = errors.New("payment provider unavailable")
	ErrUnavailable                = errors.New("dates unavailable")
)

// PaymentNotSucceededError is returned by Confirm when the provider reports
// anything other than a captured payment.
type PaymentNotSucceededError struct {
	Status string
}

func (e *PaymentNotSucceededError) Error() string {
	return fmt.Sprintf("payment not succeeded: %s", e.Status)
}

// UnrecordedPaymentError means a payment was authorized but the booking that
// should reference it could not be saved. The intent must be reconciled by
// hand.
type UnrecordedPaymentError struct {
	IntentID string
	Err      error
}

func (e *UnrecordedPaymentError) Error() string {
	return fmt.Sprintf("payment %s authorized but booking not saved: %v", e.IntentID, e.Err)
}

func (e *UnrecordedPaymentError) Unwrap() error { return e.Err }
