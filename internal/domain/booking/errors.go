package booking

import (
	"errors"
	"fmt"
)

// Kind classifies workflow failures for the caller.
type Kind string

const (
	KindValidation    Kind = "validation_error"
	KindOTPGeneration Kind = "otp_generation_error"
	KindOTPDispatch   Kind = "otp_dispatch_error"
	KindOTPInvalid    Kind = "otp_invalid_or_expired"
	KindConflict      Kind = "booking_conflict"
	KindBooking       Kind = "booking_error"
	KindNotification  Kind = "notification_error"
	KindRateLimited   Kind = "rate_limited"
)

// Error is a classified workflow failure. errors.Is matches on Kind alone, so
// callers can test against the sentinel values below.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation    = &Error{Kind: KindValidation}
	ErrOTPGeneration = &Error{Kind: KindOTPGeneration}
	ErrOTPDispatch   = &Error{Kind: KindOTPDispatch}
	ErrOTPInvalid    = &Error{Kind: KindOTPInvalid}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrBooking       = &Error{Kind: KindBooking}
	ErrNotification  = &Error{Kind: KindNotification}
	ErrRateLimited   = &Error{Kind: KindRateLimited}
)

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of a classified error, or "" for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Store-level errors, classified by the service.
var (
	ErrNoActiveChallenge = errors.New("no live challenge matches")
	ErrSlotUnavailable   = errors.New("slot unavailable")
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrNotFound          = errors.New("appointment not found")
)
