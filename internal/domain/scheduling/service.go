package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/booking/internal/domain/availability"
	"github.com/hospital/booking/internal/platform/metrics"
)

const (
	DefaultCalendarDays = 14
	MaxCalendarDays     = 60
)

type Service struct {
	doctors    DoctorRepository
	exceptions ExceptionRepository
	slots      SlotStateRepository
	loc        *time.Location
	now        func() time.Time
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

func NewService(doctors DoctorRepository, exceptions ExceptionRepository, slots SlotStateRepository,
	loc *time.Location, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		doctors:    doctors,
		exceptions: exceptions,
		slots:      slots,
		loc:        loc,
		now:        time.Now,
		metrics:    m,
		logger:     logger.With().Str("component", "scheduling").Logger(),
	}
}

// SetClock overrides the wall clock used for past/same-day checks.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

func (s *Service) today() time.Time { return s.now().In(s.loc) }

// -- Doctors --

// GetDoctor returns an active doctor. Inactive doctors are reported as not
// found so they cannot be browsed or booked.
func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	d, err := s.doctors.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !d.Active {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

// -- Availability --

// FetchAvailability merges the rules-engine candidates for one window with
// the reservation state. Failed exception or reservation lookups degrade to
// showing every candidate as available; booking re-checks under lock.
func (s *Service) FetchAvailability(ctx context.Context, doctorID uuid.UUID, dateStr, windowStr string) (*Availability, error) {
	w, err := availability.ParseWindow(windowStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	date, err := availability.ParseDate(dateStr, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	doc, err := s.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	check := availability.CheckDate(date, s.today(), doc.AvailableDays)
	if check.Status == availability.DatePast {
		return nil, fmt.Errorf("%w: date %s is in the past", ErrValidation, check.Date)
	}

	out := &Availability{
		DoctorID: doctorID,
		Date:     check.Date,
		Window:   w,
		Check:    check,
		Tabs:     availability.Tabs(date),
		Slots:    []availability.Slot{},
	}
	if !check.Selectable {
		return out, nil
	}

	log := s.logger.With().Str("doctor_id", doctorID.String()).Str("date", check.Date).Logger()

	var rules []availability.Exception
	rows, err := s.exceptions.ForDate(ctx, doctorID, check.Date)
	if err != nil {
		log.Warn().Err(err).Msg("exception lookup failed, showing unfiltered grid")
		s.metrics.AvailabilityDegraded("exceptions")
		out.Degraded = true
	}
	for _, row := range rows {
		rule, err := row.Rule(s.loc)
		if err != nil {
			log.Warn().Err(err).Str("exception_id", row.ID.String()).Msg("skipping malformed exception")
			continue
		}
		rules = append(rules, rule)
	}

	candidates := availability.Candidates(doc.AvailableDays, date, w, rules)
	if check.SameDay {
		candidates = availability.Upcoming(candidates, s.today())
	}
	if len(candidates) == 0 {
		return out, nil
	}

	states, err := s.slots.GetAvailableSlots(ctx, doctorID, check.Date)
	if err != nil {
		log.Warn().Err(err).Msg("slot state lookup failed, defaulting to available")
		s.metrics.AvailabilityDegraded("slot_states")
		out.Degraded = true
		states = nil
	}
	out.Slots = availability.Merge(candidates, states)
	return out, nil
}

// Calendar reports selectability for days consecutive dates from fromStr.
// An empty fromStr starts at today.
func (s *Service) Calendar(ctx context.Context, doctorID uuid.UUID, fromStr string, days int) ([]availability.DateCheck, error) {
	if days <= 0 {
		days = DefaultCalendarDays
	}
	if days > MaxCalendarDays {
		days = MaxCalendarDays
	}
	today := s.today()
	from := availability.DateOf(today)
	if fromStr != "" {
		d, err := availability.ParseDate(fromStr, s.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		from = d
	}
	doc, err := s.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return availability.Calendar(from, today, days, doc.AvailableDays), nil
}

// -- Exceptions --

func (s *Service) CreateException(ctx context.Context, e *DoctorException) error {
	if e.DoctorID == uuid.Nil {
		return fmt.Errorf("%w: doctor_id is required", ErrValidation)
	}
	if _, err := availability.ParseDate(e.Date, s.loc); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if e.StartTime >= e.EndTime {
		return fmt.Errorf("%w: start_time must be before end_time", ErrValidation)
	}
	if err := s.exceptions.Create(ctx, e); err != nil {
		return err
	}
	s.logger.Info().
		Str("exception_id", e.ID.String()).
		Str("doctor_id", e.DoctorID.String()).
		Str("date", e.Date).
		Str("range", e.StartTime.String()+"-"+e.EndTime.String()).
		Msg("doctor exception created")
	return nil
}

func (s *Service) GetException(ctx context.Context, id uuid.UUID) (*DoctorException, error) {
	return s.exceptions.GetByID(ctx, id)
}

func (s *Service) ListExceptions(ctx context.Context, f ExceptionFilter, limit, offset int) ([]*DoctorException, int, error) {
	var from, to time.Time
	var err error
	if f.From != nil {
		if from, err = availability.ParseDate(*f.From, s.loc); err != nil {
			return nil, 0, fmt.Errorf("%w: from: %v", ErrValidation, err)
		}
	}
	if f.To != nil {
		if to, err = availability.ParseDate(*f.To, s.loc); err != nil {
			return nil, 0, fmt.Errorf("%w: to: %v", ErrValidation, err)
		}
	}
	if f.From != nil && f.To != nil && to.Before(from) {
		return nil, 0, fmt.Errorf("%w: from must not be after to", ErrValidation)
	}
	return s.exceptions.List(ctx, f, limit, offset)
}

func (s *Service) DeleteException(ctx context.Context, id uuid.UUID) error {
	if err := s.exceptions.Delete(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("exception_id", id.String()).Msg("doctor exception deleted")
	return nil
}

// IsNotFound reports whether err is one of the package's not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrDoctorNotFound) || errors.Is(err, ErrExceptionNotFound)
}
