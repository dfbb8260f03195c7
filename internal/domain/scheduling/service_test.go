package scheduling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hospital/booking/internal/domain/availability"
)

// -- Mock Repositories --

type mockDoctorRepo struct {
	doctors map[uuid.UUID]*Doctor
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[uuid.UUID]*Doctor)}
}

func (m *mockDoctorRepo) add(days ...string) *Doctor {
	d := &Doctor{ID: uuid.New(), Name: "Dr. Rao", AvailableDays: days, Active: true}
	m.doctors[d.ID] = d
	return d
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

func (m *mockDoctorRepo) List(_ context.Context, limit, offset int) ([]*Doctor, int, error) {
	var result []*Doctor
	for _, d := range m.doctors {
		result = append(result, d)
	}
	return result, len(result), nil
}

type mockExceptionRepo struct {
	items   map[uuid.UUID]*DoctorException
	listErr error
}

func newMockExceptionRepo() *mockExceptionRepo {
	return &mockExceptionRepo{items: make(map[uuid.UUID]*DoctorException)}
}

func (m *mockExceptionRepo) Create(_ context.Context, e *DoctorException) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	m.items[e.ID] = e
	return nil
}

func (m *mockExceptionRepo) GetByID(_ context.Context, id uuid.UUID) (*DoctorException, error) {
	e, ok := m.items[id]
	if !ok {
		return nil, ErrExceptionNotFound
	}
	return e, nil
}

func (m *mockExceptionRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return ErrExceptionNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockExceptionRepo) List(_ context.Context, f ExceptionFilter, limit, offset int) ([]*DoctorException, int, error) {
	var result []*DoctorException
	for _, e := range m.items {
		if f.DoctorID != nil && e.DoctorID != *f.DoctorID {
			continue
		}
		if f.From != nil && e.Date < *f.From {
			continue
		}
		if f.To != nil && e.Date > *f.To {
			continue
		}
		result = append(result, e)
	}
	return result, len(result), nil
}

func (m *mockExceptionRepo) ForDate(ctx context.Context, doctorID uuid.UUID, date string) ([]*DoctorException, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	items, _, err := m.List(ctx, ExceptionFilter{DoctorID: &doctorID, From: &date, To: &date}, 0, 0)
	return items, err
}

type mockSlotStateRepo struct {
	states []availability.SlotState
	err    error
	calls  int
}

func (m *mockSlotStateRepo) GetAvailableSlots(_ context.Context, _ uuid.UUID, _ string) ([]availability.SlotState, error) {
	m.calls++
	return m.states, m.err
}

type testEnv struct {
	svc        *Service
	doctors    *mockDoctorRepo
	exceptions *mockExceptionRepo
	slots      *mockSlotStateRepo
}

// The clock sits on Tuesday 2026-10-20; 2026-10-21 is a Wednesday.
func newTestEnv() *testEnv {
	env := &testEnv{
		doctors:    newMockDoctorRepo(),
		exceptions: newMockExceptionRepo(),
		slots:      &mockSlotStateRepo{},
	}
	env.svc = NewService(env.doctors, env.exceptions, env.slots, time.UTC, nil, zerolog.Nop())
	env.svc.SetClock(func() time.Time { return time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC) })
	return env
}

func newTestService() *Service { return newTestEnv().svc }

var monToSat = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// -- Availability Tests --

func TestFetchAvailability_WednesdayMorning(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)

	out, err := env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-21", "morning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Slots) != 20 {
		t.Fatalf("expected 20 slots, got %d", len(out.Slots))
	}
	for _, s := range out.Slots {
		if !s.IsAvailable {
			t.Errorf("slot %s should be available", s.Time)
		}
	}
	if out.Degraded {
		t.Error("response should not be degraded")
	}
	if out.Check.Status != availability.DateSelectable {
		t.Errorf("expected selectable, got %s", out.Check.Status)
	}
}

func TestFetchAvailability_DefaultsToMorning(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	out, err := env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-21", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Window != availability.WindowMorning {
		t.Errorf("expected morning, got %s", out.Window)
	}
}

func TestFetchAvailability_ExceptionAndReservation(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	env.exceptions.Create(context.Background(), &DoctorException{
		DoctorID: doc.ID, Date: "2026-10-21", StartTime: availability.At(11, 0), EndTime: availability.At(12, 0),
	})
	env.slots.states = []availability.SlotState{{Time: availability.At(10, 30), IsAvailable: false}}

	out, err := env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-21", "morning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Slots) != 16 {
		t.Fatalf("expected 16 slots after the exception, got %d", len(out.Slots))
	}
	for _, s := range out.Slots {
		if s.Time >= availability.At(11, 0) && s.Time < availability.At(12, 0) {
			t.Errorf("slot %s should be suppressed by the exception", s.Time)
		}
		if want := s.Time != availability.At(10, 30); s.IsAvailable != want {
			t.Errorf("slot %s: expected available=%v", s.Time, want)
		}
	}
}

func TestFetchAvailability_SlotStateFailureFailsOpen(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	env.slots.err = errors.New("connection reset")

	out, err := env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-21", "evening")
	if err != nil {
		t.Fatalf("fetch failure must not surface as an error: %v", err)
	}
	if !out.Degraded {
		t.Error("expected degraded flag")
	}
	if len(out.Slots) != 12 {
		t.Fatalf("expected 12 evening slots, got %d", len(out.Slots))
	}
	for _, s := range out.Slots {
		if !s.IsAvailable {
			t.Errorf("slot %s should default to available", s.Time)
		}
	}
}

func TestFetchAvailability_ExceptionFailureFailsOpen(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	env.exceptions.listErr = errors.New("timeout")

	out, err := env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-21", "morning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Degraded || len(out.Slots) != 20 {
		t.Errorf("expected degraded full grid, got degraded=%v slots=%d", out.Degraded, len(out.Slots))
	}
}

func TestFetchAvailability_SundayEveningDisabledTab(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(append([]string{"Sunday"}, monToSat...)...)

	out, err := env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-25", "evening")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Slots) != 0 {
		t.Errorf("expected no slots, got %d", len(out.Slots))
	}
	if out.Tabs[1].Window != availability.WindowEvening || out.Tabs[1].Enabled {
		t.Error("sunday evening tab should be disabled")
	}
	if env.slots.calls != 0 {
		t.Error("reservation store should not be queried for an empty grid")
	}
}

func TestFetchAvailability_NonWorkingDay(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	out, err := env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-25", "morning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.Check.Status != availability.DateUnavailable || len(out.Slots) != 0 {
		t.Errorf("expected unavailable with no slots, got %s/%d", out.Check.Status, len(out.Slots))
	}
}

func TestFetchAvailability_SameDayFlag(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	out, err := env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-20", "morning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Check.SameDay {
		t.Error("expected same-day advisory flag")
	}
}

func TestFetchAvailability_SameDayDropsElapsedSlots(t *testing.T) {
	env := newTestEnv()
	env.svc.SetClock(func() time.Time { return time.Date(2026, 10, 20, 12, 30, 0, 0, time.UTC) })
	doc := env.doctors.add(monToSat...)

	out, err := env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-20", "morning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Slots) != 9 {
		t.Fatalf("expected 9 remaining slots, got %d", len(out.Slots))
	}
	if first := out.Slots[0].Time.String(); first != "12:45" {
		t.Errorf("expected first slot 12:45, got %s", first)
	}

	// Later dates keep the full grid.
	out, err = env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-21", "morning")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Slots) != 20 {
		t.Errorf("expected 20 slots tomorrow, got %d", len(out.Slots))
	}
}

func TestInactiveDoctorIsNotBookable(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	doc.Active = false
	ctx := context.Background()

	if _, err := env.svc.GetDoctor(ctx, doc.ID); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("GetDoctor: expected ErrDoctorNotFound, got %v", err)
	}
	if _, err := env.svc.FetchAvailability(ctx, doc.ID, "2026-10-21", "morning"); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("FetchAvailability: expected ErrDoctorNotFound, got %v", err)
	}
	if _, err := env.svc.Calendar(ctx, doc.ID, "", 7); !errors.Is(err, ErrDoctorNotFound) {
		t.Errorf("Calendar: expected ErrDoctorNotFound, got %v", err)
	}
}

func TestFetchAvailability_Rejections(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	tests := []struct {
		name   string
		id     uuid.UUID
		date   string
		window string
		want   error
	}{
		{"past date", doc.ID, "2026-10-19", "morning", ErrValidation},
		{"bad date", doc.ID, "21-10-2026", "morning", ErrValidation},
		{"bad window", doc.ID, "2026-10-21", "night", ErrValidation},
		{"unknown doctor", uuid.New(), "2026-10-21", "morning", ErrDoctorNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.FetchAvailability(context.Background(), tt.id, tt.date, tt.window)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFetchAvailability_Idempotent(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	env.slots.states = []availability.SlotState{{Time: availability.At(12, 0), IsAvailable: false}}
	a, _ := env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-21", "morning")
	b, _ := env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-21", "morning")
	if len(a.Slots) != len(b.Slots) {
		t.Fatal("slot counts differ")
	}
	for i := range a.Slots {
		if a.Slots[i] != b.Slots[i] {
			t.Errorf("slot %d differs: %+v vs %+v", i, a.Slots[i], b.Slots[i])
		}
	}
}

// -- Calendar Tests --

func TestCalendar_DefaultsToToday(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	days, err := env.svc.Calendar(context.Background(), doc.ID, "", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != DefaultCalendarDays {
		t.Fatalf("expected %d days, got %d", DefaultCalendarDays, len(days))
	}
	if days[0].Date != "2026-10-20" || days[0].Status != availability.DateSameDay {
		t.Errorf("unexpected first day %+v", days[0])
	}
}

func TestCalendar_ClampsAndMarksPast(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	days, err := env.svc.Calendar(context.Background(), doc.ID, "2026-10-18", 500)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(days) != MaxCalendarDays {
		t.Errorf("expected %d days, got %d", MaxCalendarDays, len(days))
	}
	if days[0].Status != availability.DatePast || days[1].Status != availability.DatePast {
		t.Errorf("expected past days first, got %s %s", days[0].Status, days[1].Status)
	}
}

// -- Exception Tests --

func TestCreateException(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	e := &DoctorException{DoctorID: doc.ID, Date: "2026-10-21", StartTime: availability.At(11, 0), EndTime: availability.At(12, 0)}
	if err := env.svc.CreateException(context.Background(), e); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.ID == uuid.Nil {
		t.Error("expected ID to be set")
	}
}

func TestCreateException_Validation(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	tests := []struct {
		name string
		exc  DoctorException
	}{
		{"missing doctor", DoctorException{Date: "2026-10-21", StartTime: availability.At(11, 0), EndTime: availability.At(12, 0)}},
		{"bad date", DoctorException{DoctorID: doc.ID, Date: "tomorrow", StartTime: availability.At(11, 0), EndTime: availability.At(12, 0)}},
		{"start equals end", DoctorException{DoctorID: doc.ID, Date: "2026-10-21", StartTime: availability.At(11, 0), EndTime: availability.At(11, 0)}},
		{"start after end", DoctorException{DoctorID: doc.ID, Date: "2026-10-21", StartTime: availability.At(13, 0), EndTime: availability.At(12, 0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := tt.exc
			err := env.svc.CreateException(context.Background(), &e)
			if !errors.Is(err, ErrValidation) {
				t.Errorf("expected validation error, got %v", err)
			}
		})
	}
	if len(env.exceptions.items) != 0 {
		t.Error("invalid exceptions must not reach the store")
	}
}

func TestCreateException_OverlapTolerated(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	for i := 0; i < 2; i++ {
		e := &DoctorException{DoctorID: doc.ID, Date: "2026-10-21", StartTime: availability.At(11, 0), EndTime: availability.At(12, 0)}
		if err := env.svc.CreateException(context.Background(), e); err != nil {
			t.Fatalf("duplicate exception should be accepted: %v", err)
		}
	}
	out, _ := env.svc.FetchAvailability(context.Background(), doc.ID, "2026-10-21", "morning")
	if len(out.Slots) != 16 {
		t.Errorf("duplicate exceptions should subtract once, got %d slots", len(out.Slots))
	}
}

func TestListExceptions_Filters(t *testing.T) {
	env := newTestEnv()
	a := env.doctors.add(monToSat...)
	b := env.doctors.add(monToSat...)
	for _, e := range []*DoctorException{
		{DoctorID: a.ID, Date: "2026-10-21", StartTime: availability.At(10, 0), EndTime: availability.At(11, 0)},
		{DoctorID: a.ID, Date: "2026-10-28", StartTime: availability.At(10, 0), EndTime: availability.At(11, 0)},
		{DoctorID: b.ID, Date: "2026-10-21", StartTime: availability.At(10, 0), EndTime: availability.At(11, 0)},
	} {
		env.svc.CreateException(context.Background(), e)
	}

	from, to := "2026-10-20", "2026-10-22"
	items, total, err := env.svc.ListExceptions(context.Background(), ExceptionFilter{DoctorID: &a.ID, From: &from, To: &to}, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 1 || len(items) != 1 || items[0].Date != "2026-10-21" {
		t.Errorf("expected one exception, got %d", total)
	}

	_, total, _ = env.svc.ListExceptions(context.Background(), ExceptionFilter{}, 20, 0)
	if total != 3 {
		t.Errorf("expected 3 exceptions without filters, got %d", total)
	}
}

func TestListExceptions_BadRange(t *testing.T) {
	svc := newTestService()
	from, to := "2026-10-22", "2026-10-20"
	if _, _, err := svc.ListExceptions(context.Background(), ExceptionFilter{From: &from, To: &to}, 20, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	bad := "yesterday"
	if _, _, err := svc.ListExceptions(context.Background(), ExceptionFilter{From: &bad}, 20, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestDeleteException(t *testing.T) {
	env := newTestEnv()
	doc := env.doctors.add(monToSat...)
	e := &DoctorException{DoctorID: doc.ID, Date: "2026-10-21", StartTime: availability.At(11, 0), EndTime: availability.At(12, 0)}
	env.svc.CreateException(context.Background(), e)

	if err := env.svc.DeleteException(context.Background(), e.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := env.svc.DeleteException(context.Background(), e.ID); !errors.Is(err, ErrExceptionNotFound) {
		t.Errorf("expected not found on second delete, got %v", err)
	}
	if !IsNotFound(ErrExceptionNotFound) || IsNotFound(ErrValidation) {
		t.Error("IsNotFound classification is wrong")
	}
}
