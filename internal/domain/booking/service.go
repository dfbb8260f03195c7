package booking

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/booking/internal/domain/availability"
	"github.com/hospital/booking/internal/platform/metrics"
	"github.com/hospital/booking/internal/platform/notification"
	"github.com/hospital/booking/internal/platform/validation"
)

// Notifier delivers OTP and confirmation messages.
type Notifier interface {
	SendOTP(ctx context.Context, phone, code string) notification.Result
	SendConfirmation(ctx context.Context, c notification.Confirmation) notification.Result
}

// Options tunes the service. Zero values pick the defaults.
type Options struct {
	OTPTTL              time.Duration
	ConfirmationTimeout time.Duration
	OTPPerPhonePerMin   int
	OTPPerPhoneBurst    int
}

const defaultConfirmationTimeout = 30 * time.Second

type Service struct {
	challenges   ChallengeStore
	appointments AppointmentStore
	notifier     Notifier
	validator    *validation.CustomValidator
	limiter      *phoneLimiter
	loc          *time.Location
	otpTTL       time.Duration
	confirmTTL   time.Duration
	now          func() time.Time
	random       io.Reader
	metrics      *metrics.Metrics
	logger       zerolog.Logger
	wg           sync.WaitGroup
}

func NewService(challenges ChallengeStore, appointments AppointmentStore, notifier Notifier,
	loc *time.Location, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = OTPTTL
	}
	if opts.ConfirmationTimeout <= 0 {
		opts.ConfirmationTimeout = defaultConfirmationTimeout
	}
	return &Service{
		challenges:   challenges,
		appointments: appointments,
		notifier:     notifier,
		validator:    validation.New(),
		limiter:      newPhoneLimiter(opts.OTPPerPhonePerMin, opts.OTPPerPhoneBurst),
		loc:          loc,
		otpTTL:       opts.OTPTTL,
		confirmTTL:   opts.ConfirmationTimeout,
		now:          time.Now,
		metrics:      m,
		logger:       logger.With().Str("component", "booking").Logger(),
	}
}

// SetClock overrides the wall clock.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// SetRandom overrides the OTP entropy source.
func (s *Service) SetRandom(r io.Reader) { s.random = r }

// SweepLimiter evicts idle per-phone OTP limiters every interval until ctx
// is done. It returns at once when per-phone limiting is disabled.
func (s *Service) SweepLimiter(ctx context.Context, interval time.Duration) {
	s.limiter.run(ctx, interval)
}

// Wait blocks until in-flight confirmation sends finish.
func (s *Service) Wait() { s.wg.Wait() }

// validate checks details locally, before any store or gateway call.
func (s *Service) validate(d Details) (*BookRequest, bool, error) {
	if err := s.validator.Validate(&d); err != nil {
		return nil, false, newError(KindValidation, "validate", err)
	}
	date, err := availability.ParseDate(d.Date, s.loc)
	if err != nil {
		return nil, false, newError(KindValidation, "validate", err)
	}
	clock, err := availability.ParseTimeOfDay(d.Time)
	if err != nil {
		return nil, false, newError(KindValidation, "validate", err)
	}
	if !clock.OnGrid() {
		return nil, false, newError(KindValidation, "validate",
			fmt.Errorf("time %s is not on the %d-minute grid", clock, availability.SlotMinutes))
	}
	now := s.now().In(s.loc)
	today := availability.DateOf(now)
	if date.Before(today) {
		return nil, false, newError(KindValidation, "validate", fmt.Errorf("date %s is in the past", d.Date))
	}
	sameDay := date.Equal(today)
	if sameDay && availability.Elapsed(clock, now) {
		return nil, false, newError(KindValidation, "validate", fmt.Errorf("time %s has already passed", clock))
	}
	doctorID, err := uuid.Parse(d.DoctorID)
	if err != nil {
		return nil, false, newError(KindValidation, "validate", err)
	}
	return &BookRequest{
		DoctorID:    doctorID,
		Date:        date,
		Time:        clock,
		PatientName: d.PatientName,
		Phone:       d.Phone,
		Email:       d.Email,
		Age:         d.Age,
		Gender:      d.Gender,
		Reason:      d.Reason,
	}, sameDay, nil
}

// RequestOTP validates the details and sends a fresh OTP.
func (s *Service) RequestOTP(ctx context.Context, d Details) (Workflow, error) {
	return s.issue(ctx, NewWorkflow(d.Normalize()), "request")
}

// ResendOTP replaces the pending OTP with a new one.
func (s *Service) ResendOTP(ctx context.Context, d Details) (Workflow, error) {
	return s.issue(ctx, Resume(d.Normalize()), "resend")
}

func (s *Service) issue(ctx context.Context, wf Workflow, trigger string) (Workflow, error) {
	d := *wf.Details
	_, sameDay, err := s.validate(d)
	if err != nil {
		return s.fail(wf, PhaseCollectingDetails, err)
	}
	wf.SameDay = sameDay

	if !s.limiter.Allow(d.Phone, s.now()) {
		s.metrics.OTPIssued(trigger, "rate_limited")
		return s.fail(wf, wf.Phase, newError(KindRateLimited, trigger, errors.New("too many OTP requests, try again later")))
	}

	code, err := GenerateCode(s.random)
	if err != nil {
		s.metrics.OTPIssued(trigger, "generation_error")
		return s.fail(wf, PhaseCollectingDetails, newError(KindOTPGeneration, trigger, err))
	}
	ch := NewChallenge(d.Phone, code, s.now(), s.otpTTL)
	if err := s.challenges.Create(ctx, ch); err != nil {
		s.metrics.OTPIssued(trigger, "generation_error")
		return s.fail(wf, PhaseCollectingDetails, newError(KindOTPGeneration, trigger, err))
	}

	if res := s.notifier.SendOTP(ctx, d.Phone, code); !res.OK() {
		if err := s.challenges.Invalidate(ctx, ch, s.now()); err != nil {
			s.logger.Error().Err(err).Str("challenge_id", ch.ID.String()).Msg("failed to invalidate undelivered challenge")
		}
		s.metrics.OTPIssued(trigger, "dispatch_error")
		return s.fail(wf, PhaseCollectingDetails, newError(KindOTPDispatch, trigger, res.Err))
	}

	s.metrics.OTPIssued(trigger, "sent")
	s.logger.Info().Str("phone", notification.MaskPhone(d.Phone)).Str("trigger", trigger).Msg("otp issued")
	next, err := wf.Transition(PhaseOTPPending)
	if err != nil {
		return wf, err
	}
	expires := ch.ExpiresAt
	next.OTPExpiresAt = &expires
	return next, nil
}

// Confirm verifies the OTP, books the slot and schedules the confirmation.
func (s *Service) Confirm(ctx context.Context, d Details, code string) (Workflow, error) {
	d = d.Normalize()
	wf := Resume(d)
	req, sameDay, err := s.validate(d)
	if err != nil {
		return s.fail(wf, PhaseCollectingDetails, err)
	}
	wf.SameDay = sameDay

	if !ValidCodeFormat(code) {
		s.metrics.OTPVerified("invalid")
		return s.fail(wf, PhaseOTPPending, newError(KindOTPInvalid, "verify", errors.New("otp must be 6 digits")))
	}
	if wf, err = wf.Transition(PhaseVerifying); err != nil {
		return wf, err
	}
	if _, err := s.challenges.Verify(ctx, d.Phone, code, s.now()); err != nil {
		if errors.Is(err, ErrNoActiveChallenge) {
			s.metrics.OTPVerified("invalid")
			return s.fail(wf, PhaseOTPPending, newError(KindOTPInvalid, "verify", errors.New("invalid or expired otp")))
		}
		s.metrics.OTPVerified("error")
		return s.fail(wf, PhaseOTPPending, newError(KindBooking, "verify", err))
	}
	s.metrics.OTPVerified("verified")

	if wf, err = wf.Transition(PhaseBooking); err != nil {
		return wf, err
	}
	appt, err := s.appointments.Book(ctx, req)
	if err != nil {
		if errors.Is(err, ErrSlotUnavailable) || errors.Is(err, ErrDoctorNotFound) {
			s.metrics.Booking("conflict")
			s.logger.Info().Err(err).Str("doctor_id", d.DoctorID).Str("date", d.Date).Str("time", d.Time).
				Msg("slot no longer bookable")
			return s.fail(wf, PhaseCollectingDetails, newError(KindConflict, "book", err))
		}
		s.metrics.Booking("error")
		s.logger.Error().Err(err).Str("doctor_id", d.DoctorID).Msg("booking failed")
		return s.fail(wf, PhaseOTPPending, newError(KindBooking, "book", err))
	}
	s.metrics.Booking("booked")

	if wf, err = wf.Transition(PhaseConfirmed); err != nil {
		return wf, err
	}
	wf.OTPExpiresAt = nil
	wf.Appointment = appt
	s.logger.Info().Str("patient_id", appt.PatientID).Str("doctor_id", appt.DoctorID.String()).
		Str("date", appt.Date).Str("time", appt.Time.String()).Msg("appointment booked")

	s.confirmAsync(ctx, appt)
	return wf, nil
}

// confirmAsync sends the confirmation after the response is decided. Its
// outcome never changes the booking.
func (s *Service) confirmAsync(ctx context.Context, appt *Appointment) {
	msg := notification.Confirmation{
		Phone:       appt.Phone,
		PatientName: appt.PatientName,
		PatientID:   appt.PatientID,
		DoctorName:  appt.DoctorName,
		Date:        appt.Date,
		Time:        appt.Time.String(),
		Email:       appt.Email,
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.confirmTTL)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if res := s.notifier.SendConfirmation(ctx, msg); !res.OK() {
			err := newError(KindNotification, "confirm", res.Err)
			s.logger.Warn().Err(err).Str("patient_id", appt.PatientID).Msg("confirmation not delivered")
		}
	}()
}

// GetAppointment returns a booking to the phone that made it.
func (s *Service) GetAppointment(ctx context.Context, patientID, phone string) (*Appointment, error) {
	if !validation.ValidPhone(phone) {
		return nil, newError(KindValidation, "lookup", errors.New("phone must be exactly 10 digits"))
	}
	appt, err := s.appointments.GetByPatientID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if appt.Phone != phone {
		return nil, ErrNotFound
	}
	return appt, nil
}

// PurgeChallenges removes challenges that expired more than olderThan ago.
func (s *Service) PurgeChallenges(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.challenges.Purge(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	s.logger.Info().Int64("deleted", n).Msg("purged expired otp challenges")
	return n, nil
}

func (s *Service) fail(wf Workflow, to Phase, err error) (Workflow, error) {
	next, terr := wf.Fail(to, err)
	if terr != nil {
		s.logger.Error().Err(terr).Msg("workflow transition rejected")
		return wf, err
	}
	return next, err
}
