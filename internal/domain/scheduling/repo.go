package scheduling

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hospital/booking/internal/domain/availability"
)

var (
	ErrValidation        = errors.New("validation error")
	ErrDoctorNotFound    = errors.New("doctor not found")
	ErrExceptionNotFound = errors.New("exception not found")
)

type DoctorRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	List(ctx context.Context, limit, offset int) ([]*Doctor, int, error)
}

type ExceptionRepository interface {
	Create(ctx context.Context, e *DoctorException) error
	GetByID(ctx context.Context, id uuid.UUID) (*DoctorException, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, f ExceptionFilter, limit, offset int) ([]*DoctorException, int, error)
	// ForDate returns every exception of the doctor on date, unpaged.
	ForDate(ctx context.Context, doctorID uuid.UUID, date string) ([]*DoctorException, error)
}

// SlotStateRepository reads the authoritative reservation state.
type SlotStateRepository interface {
	GetAvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]availability.SlotState, error)
}
