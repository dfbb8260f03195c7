package booking

import (
	"errors"
	"fmt"
	"time"
)

// Phase is a state of the booking workflow.
type Phase string

const (
	PhaseCollectingDetails Phase = "collecting_details"
	PhaseOTPPending        Phase = "otp_pending"
	PhaseVerifying         Phase = "verifying"
	PhaseBooking           Phase = "booking"
	PhaseConfirmed         Phase = "confirmed"
)

var transitions = map[Phase][]Phase{
	PhaseCollectingDetails: {PhaseOTPPending, PhaseCollectingDetails},
	PhaseOTPPending:        {PhaseVerifying, PhaseOTPPending, PhaseCollectingDetails},
	PhaseVerifying:         {PhaseBooking, PhaseOTPPending},
	PhaseBooking:           {PhaseConfirmed, PhaseOTPPending, PhaseCollectingDetails},
	PhaseConfirmed:         {},
}

var ErrInvalidTransition = errors.New("invalid workflow transition")

// Failure is the last surfaced error, kept on the workflow for display.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Workflow is an immutable snapshot of one booking attempt. Every method
// returns a new value; the HTTP layer only serialises it.
type Workflow struct {
	Phase        Phase        `json:"phase"`
	Details      *Details     `json:"details,omitempty"`
	OTPExpiresAt *time.Time   `json:"otp_expires_at,omitempty"`
	Appointment  *Appointment `json:"appointment,omitempty"`
	SameDay      bool         `json:"same_day,omitempty"`
	Error        *Failure     `json:"error,omitempty"`
}

// NewWorkflow starts in collecting_details.
func NewWorkflow(d Details) Workflow {
	return Workflow{Phase: PhaseCollectingDetails, Details: &d}
}

// Resume reconstructs a workflow that is waiting for an OTP.
func Resume(d Details) Workflow {
	return Workflow{Phase: PhaseOTPPending, Details: &d}
}

func (w Workflow) CanTransition(to Phase) bool {
	for _, p := range transitions[w.Phase] {
		if p == to {
			return true
		}
	}
	return false
}

// Transition moves to the next phase and clears any previous failure.
func (w Workflow) Transition(to Phase) (Workflow, error) {
	if !w.CanTransition(to) {
		return w, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, w.Phase, to)
	}
	w.Phase = to
	w.Error = nil
	if to == PhaseCollectingDetails {
		w.OTPExpiresAt = nil
	}
	return w, nil
}

// Fail moves to a recovery phase and records err.
func (w Workflow) Fail(to Phase, err error) (Workflow, error) {
	next, terr := w.Transition(to)
	if terr != nil {
		return w, terr
	}
	kind := KindOf(err)
	if kind == "" {
		kind = KindBooking
	}
	next.Error = &Failure{Kind: kind, Message: err.Error()}
	return next, nil
}

func (w Workflow) Terminal() bool {
	return len(transitions[w.Phase]) == 0
}
