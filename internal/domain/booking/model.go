// Package booking runs the OTP-verified appointment booking workflow:
// collect patient details, issue and verify a one-time password, reserve the
// slot in the store and send a best-effort confirmation.
package booking

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/booking/internal/domain/availability"
)

// Details is what the patient fills in before requesting an OTP.
type Details struct {
	PatientName string  `json:"patient_name" validate:"required,max=200"`
	Phone       string  `json:"phone" validate:"required,phone10"`
	DoctorID    string  `json:"doctor_id" validate:"required,uuid"`
	Date        string  `json:"date" validate:"required,isodate"`
	Time        string  `json:"time" validate:"required,hhmm"`
	Email       *string `json:"email,omitempty" validate:"omitempty,email"`
	Age         *int    `json:"age,omitempty" validate:"omitempty,gte=0,lte=130"`
	Gender      *string `json:"gender,omitempty" validate:"omitempty,oneof=male female other"`
	Reason      *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// Normalize trims free-text fields and drops empty optionals.
func (d Details) Normalize() Details {
	d.PatientName = strings.TrimSpace(d.PatientName)
	d.Phone = strings.TrimSpace(d.Phone)
	d.DoctorID = strings.TrimSpace(d.DoctorID)
	d.Date = strings.TrimSpace(d.Date)
	d.Time = strings.TrimSpace(d.Time)
	d.Email = trimOptional(d.Email)
	d.Gender = trimOptional(d.Gender)
	d.Reason = trimOptional(d.Reason)
	if d.Gender != nil {
		g := strings.ToLower(*d.Gender)
		d.Gender = &g
	}
	return d
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// BookRequest is a validated reservation handed to the store.
type BookRequest struct {
	DoctorID    uuid.UUID
	Date        time.Time
	Time        availability.TimeOfDay
	PatientName string
	Phone       string
	Email       *string
	Age         *int
	Gender      *string
	Reason      *string
}

// DateString renders the request date in wire format.
func (r *BookRequest) DateString() string { return r.Date.Format(availability.DateLayout) }

const (
	StatusBooked    = "booked"
	StatusCancelled = "cancelled"
)

// Appointment is a stored reservation.
type Appointment struct {
	ID          uuid.UUID              `json:"id"`
	PatientID   string                 `json:"patient_id"`
	DoctorID    uuid.UUID              `json:"doctor_id"`
	DoctorName  string                 `json:"doctor_name"`
	PatientName string                 `json:"patient_name"`
	Phone       string                 `json:"patient_phone"`
	Date        string                 `json:"appointment_date"`
	Time        availability.TimeOfDay `json:"appointment_time"`
	Email       *string                `json:"email,omitempty"`
	Age         *int                   `json:"age,omitempty"`
	Gender      *string                `json:"gender,omitempty"`
	Reason      *string                `json:"reason,omitempty"`
	Status      string                 `json:"status"`
	CreatedAt   time.Time              `json:"created_at"`
}

// PatientID renders the public booking reference, e.g. PT2610210042.
func PatientID(date time.Time, seq int64) string {
	return fmt.Sprintf("PT%s%04d", date.Format("060102"), seq)
}
