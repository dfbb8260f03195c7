package scheduling

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hospital/booking/internal/domain/availability"
)

// Doctor is the read model of the doctors table. Staff tooling owns writes.
type Doctor struct {
	ID            uuid.UUID `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Specialty     *string   `db:"specialty" json:"specialty,omitempty"`
	AvailableDays []string  `db:"available_days" json:"available_days"`
	Active        bool      `db:"active" json:"active"`
}

// DoctorException maps to the doctor_exceptions table.
type DoctorException struct {
	ID        uuid.UUID              `db:"id" json:"id"`
	DoctorID  uuid.UUID              `db:"doctor_id" json:"doctor_id"`
	Date      string                 `db:"exception_date" json:"date"`
	StartTime availability.TimeOfDay `db:"start_time" json:"start_time"`
	EndTime   availability.TimeOfDay `db:"end_time" json:"end_time"`
	Reason    *string                `db:"reason" json:"reason,omitempty"`
	CreatedAt time.Time              `db:"created_at" json:"created_at"`
}

// Rule converts the row into the rules-engine representation.
func (e *DoctorException) Rule(loc *time.Location) (availability.Exception, error) {
	d, err := availability.ParseDate(e.Date, loc)
	if err != nil {
		return availability.Exception{}, err
	}
	return availability.Exception{Date: d, Start: e.StartTime, End: e.EndTime}, nil
}

// ExceptionInput is the create payload of the admin API.
type ExceptionInput struct {
	DoctorID  string  `json:"doctor_id" validate:"required,uuid"`
	Date      string  `json:"date" validate:"required,isodate"`
	StartTime string  `json:"start_time" validate:"required,hhmm"`
	EndTime   string  `json:"end_time" validate:"required,hhmm"`
	Reason    *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// ToException parses the payload. Range checks are left to the service.
func (in ExceptionInput) ToException() (*DoctorException, error) {
	doctorID, err := uuid.Parse(in.DoctorID)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid doctor_id", ErrValidation)
	}
	start, err := availability.ParseTimeOfDay(in.StartTime)
	if err != nil {
		return nil, fmt.Errorf("%w: start_time: %v", ErrValidation, err)
	}
	end, err := availability.ParseTimeOfDay(in.EndTime)
	if err != nil {
		return nil, fmt.Errorf("%w: end_time: %v", ErrValidation, err)
	}
	return &DoctorException{DoctorID: doctorID, Date: in.Date, StartTime: start, EndTime: end, Reason: in.Reason}, nil
}

// ExceptionFilter narrows ListExceptions. Nil fields do not filter.
type ExceptionFilter struct {
	DoctorID *uuid.UUID
	From     *string
	To       *string
}

// Availability is the response of FetchAvailability.
type Availability struct {
	DoctorID uuid.UUID              `json:"doctor_id"`
	Date     string                 `json:"date"`
	Window   availability.Window    `json:"window"`
	Check    availability.DateCheck `json:"check"`
	Tabs     []availability.Tab     `json:"tabs"`
	Slots    []availability.Slot    `json:"slots"`
	// Degraded is set when exceptions or reservation states could not be
	// loaded and every candidate was shown as available.
	Degraded bool `json:"degraded"`
}
