package booking

import (
	"context"
	"time"
)

// ChallengeStore persists OTP challenges. Implementations must make Verify
// atomic: two concurrent calls with the right code succeed at most once.
type ChallengeStore interface {
	// Create stores c and supersedes every earlier unverified challenge for
	// the same phone.
	Create(ctx context.Context, c *Challenge) error
	// Verify consumes the newest live challenge for phone when its code
	// matches. A wrong code counts against that challenge, which is retired
	// after MaxOTPAttempts misses. Anything but a match returns
	// ErrNoActiveChallenge.
	Verify(ctx context.Context, phone, code string, now time.Time) (*Challenge, error)
	// Invalidate retires c so it can no longer be verified.
	Invalidate(ctx context.Context, c *Challenge, now time.Time) error
	// Purge deletes challenges that expired before the cutoff.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// AppointmentStore is the authoritative reservation store.
type AppointmentStore interface {
	// Book re-checks the slot under lock and inserts the appointment.
	// Unbookable slots return ErrSlotUnavailable or ErrDoctorNotFound.
	Book(ctx context.Context, req *BookRequest) (*Appointment, error)
	GetByPatientID(ctx context.Context, patientID string) (*Appointment, error)
}
