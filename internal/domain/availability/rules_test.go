package availability

import (
	"reflect"
	"testing"
	"time"
)

var monToSat = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// 2026-10-21 is a Wednesday, 2026-10-25 a Sunday.
func wednesday() time.Time { return time.Date(2026, 10, 21, 0, 0, 0, 0, time.UTC) }
func sunday() time.Time    { return time.Date(2026, 10, 25, 0, 0, 0, 0, time.UTC) }

func labels(ts []TimeOfDay) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.String()
	}
	return out
}

func TestCandidates_WednesdayMorning(t *testing.T) {
	got := Candidates(monToSat, wednesday(), WindowMorning, nil)
	if len(got) != 20 {
		t.Fatalf("expected 20 slots, got %d: %v", len(got), labels(got))
	}
	if got[0].String() != "10:00" || got[19].String() != "14:45" {
		t.Errorf("unexpected range %s..%s", got[0], got[19])
	}
	for i := 1; i < len(got); i++ {
		if got[i]-got[i-1] != SlotMinutes {
			t.Fatalf("grid not contiguous at %d: %v", i, labels(got))
		}
	}
}

func TestCandidates_WednesdayEvening(t *testing.T) {
	got := Candidates(monToSat, wednesday(), WindowEvening, nil)
	if len(got) != 12 {
		t.Fatalf("expected 12 evening slots, got %d", len(got))
	}
	if got[0].String() != "18:00" || got[11].String() != "20:45" {
		t.Errorf("unexpected range %s..%s", got[0], got[11])
	}
}

func TestCandidates_Sunday(t *testing.T) {
	everyDay := append([]string{"Sunday"}, monToSat...)

	morning := Candidates(everyDay, sunday(), WindowMorning, nil)
	if len(morning) != 12 {
		t.Fatalf("expected 12 sunday morning slots, got %d", len(morning))
	}
	if last := morning[len(morning)-1]; last.String() != "12:45" {
		t.Errorf("expected last slot 12:45, got %s", last)
	}
	for _, s := range morning {
		if s+SlotMinutes > At(13, 0) {
			t.Errorf("slot %s extends past 13:00", s)
		}
	}

	if evening := Candidates(everyDay, sunday(), WindowEvening, nil); len(evening) != 0 {
		t.Errorf("expected no sunday evening slots, got %v", labels(evening))
	}
}

func TestCandidates_DoctorNotWorking(t *testing.T) {
	if got := Candidates(monToSat, sunday(), WindowMorning, nil); len(got) != 0 {
		t.Errorf("expected empty sequence, got %v", labels(got))
	}
	if got := Candidates(nil, wednesday(), WindowMorning, nil); len(got) != 0 {
		t.Errorf("expected empty sequence for no available days, got %v", labels(got))
	}
}

func TestCandidates_ExceptionRemovesSlots(t *testing.T) {
	exc := []Exception{{Date: wednesday(), Start: At(11, 0), End: At(12, 0)}}
	got := labels(Candidates(monToSat, wednesday(), WindowMorning, exc))
	if len(got) != 16 {
		t.Fatalf("expected 16 slots, got %d: %v", len(got), got)
	}
	for _, removed := range []string{"11:00", "11:15", "11:30", "11:45"} {
		for _, s := range got {
			if s == removed {
				t.Errorf("slot %s should have been removed", removed)
			}
		}
	}
	if got[3] != "10:45" || got[4] != "12:00" {
		t.Errorf("neighbouring slots changed: %v", got)
	}
}

func TestCandidates_PartialOverlapSuppressesWholeSlot(t *testing.T) {
	exc := []Exception{{Date: wednesday(), Start: At(10, 20), End: At(10, 25)}}
	got := labels(Candidates(monToSat, wednesday(), WindowMorning, exc))
	if got[0] != "10:00" || got[1] != "10:30" {
		t.Errorf("expected 10:15 suppressed, got %v", got[:3])
	}
}

func TestCandidates_ExceptionBoundariesAreHalfOpen(t *testing.T) {
	// [10:15, 10:30) touches only the 10:15 slot.
	exc := []Exception{{Date: wednesday(), Start: At(10, 15), End: At(10, 30)}}
	got := labels(Candidates(monToSat, wednesday(), WindowMorning, exc))
	want := []string{"10:00", "10:30"}
	if got[0] != want[0] || got[1] != want[1] {
		t.Errorf("expected %v at head, got %v", want, got[:2])
	}
}

func TestCandidates_ExceptionOnOtherDateIgnored(t *testing.T) {
	exc := []Exception{{Date: wednesday().AddDate(0, 0, 1), Start: At(10, 0), End: At(15, 0)}}
	if got := Candidates(monToSat, wednesday(), WindowMorning, exc); len(got) != 20 {
		t.Errorf("expected 20 slots, got %d", len(got))
	}
}

func TestCandidates_OverlappingExceptionsUnion(t *testing.T) {
	one := []Exception{{Date: wednesday(), Start: At(11, 0), End: At(12, 30)}}
	two := []Exception{
		{Date: wednesday(), Start: At(11, 0), End: At(12, 0)},
		{Date: wednesday(), Start: At(11, 30), End: At(12, 30)},
		{Date: wednesday(), Start: At(11, 0), End: At(12, 0)},
	}
	a := Candidates(monToSat, wednesday(), WindowMorning, one)
	b := Candidates(monToSat, wednesday(), WindowMorning, two)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("overlapping exceptions should subtract their union: %v vs %v", labels(a), labels(b))
	}
}

func TestCandidates_EveryIntersectingSlotExcluded(t *testing.T) {
	exceptions := []Exception{
		{Date: wednesday(), Start: At(10, 5), End: At(10, 50)},
		{Date: wednesday(), Start: At(14, 40), End: At(19, 10)},
	}
	for _, w := range Windows {
		for _, s := range Candidates(monToSat, wednesday(), w, exceptions) {
			for _, e := range exceptions {
				if s < e.End && e.Start < s+SlotMinutes {
					t.Errorf("slot %s intersects exception [%s,%s)", s, e.Start, e.End)
				}
			}
		}
	}
}

func TestUpcoming(t *testing.T) {
	cands := Candidates(monToSat, wednesday(), WindowMorning, nil)
	now := time.Date(2026, 10, 21, 12, 30, 0, 0, time.UTC)
	got := Upcoming(cands, now)
	if len(got) != 9 || got[0].String() != "12:45" {
		t.Fatalf("expected 12:45..14:45, got %v", labels(got))
	}
	if !Elapsed(At(12, 30), now) || Elapsed(At(12, 45), now) {
		t.Error("a slot starting at the current minute has elapsed; the next one has not")
	}
	if got := Upcoming(cands, wednesday()); len(got) != len(cands) {
		t.Errorf("nothing has elapsed at midnight, got %d", len(got))
	}
}

func TestMerge_OpenWorld(t *testing.T) {
	cands := Candidates(monToSat, wednesday(), WindowMorning, nil)
	states := []SlotState{
		{Time: At(10, 0), IsAvailable: false},
		{Time: At(10, 15), IsAvailable: true},
		{Time: At(16, 0), IsAvailable: false},
	}
	got := Merge(cands, states)
	if len(got) != len(cands) {
		t.Fatalf("merge must keep the candidate grid, got %d", len(got))
	}
	if got[0].IsAvailable {
		t.Error("10:00 is reserved and must be unavailable")
	}
	for _, s := range got[1:] {
		if !s.IsAvailable {
			t.Errorf("slot %s should default to available", s.Time)
		}
	}
}

func TestMerge_NilStatesFailOpen(t *testing.T) {
	cands := Candidates(monToSat, wednesday(), WindowMorning, nil)
	for _, s := range Merge(cands, nil) {
		if !s.IsAvailable {
			t.Errorf("slot %s should be available when reservation data is missing", s.Time)
		}
	}
}

func TestMerge_Idempotent(t *testing.T) {
	exc := []Exception{{Date: wednesday(), Start: At(11, 0), End: At(12, 0)}}
	states := []SlotState{{Time: At(13, 0), IsAvailable: false}}
	first := Merge(Candidates(monToSat, wednesday(), WindowMorning, exc), states)
	second := Merge(Candidates(monToSat, wednesday(), WindowMorning, exc), states)
	if !reflect.DeepEqual(first, second) {
		t.Error("availability must be identical for identical inputs")
	}
}

func TestWorksOn_Abbreviations(t *testing.T) {
	if !WorksOn([]string{"wed"}, wednesday()) {
		t.Error("expected abbreviated day to match")
	}
	if !WorksOn([]string{" WEDNESDAY "}, wednesday()) {
		t.Error("expected case-insensitive match")
	}
	if WorksOn([]string{"Wednes"}, wednesday()) {
		t.Error("partial names other than the 3-letter form must not match")
	}
}

func TestCheckDate(t *testing.T) {
	today := time.Date(2026, 10, 21, 9, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		date       time.Time
		status     DateStatus
		selectable bool
	}{
		{"past", wednesday().AddDate(0, 0, -1), DatePast, false},
		{"today", wednesday(), DateSameDay, true},
		{"future", wednesday().AddDate(0, 0, 1), DateSelectable, true},
		{"not working", sunday(), DateUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckDate(tt.date, today, monToSat)
			if got.Status != tt.status || got.Selectable != tt.selectable {
				t.Errorf("expected %s/%v, got %s/%v", tt.status, tt.selectable, got.Status, got.Selectable)
			}
			if got.SameDay != (tt.status == DateSameDay) {
				t.Errorf("unexpected same_day flag %v", got.SameDay)
			}
		})
	}
}

func TestCalendar(t *testing.T) {
	today := wednesday()
	days := Calendar(today, today, 7, monToSat)
	if len(days) != 7 {
		t.Fatalf("expected 7 days, got %d", len(days))
	}
	if days[0].Status != DateSameDay {
		t.Errorf("expected first day same_day, got %s", days[0].Status)
	}
	if days[4].Status != DateUnavailable {
		t.Errorf("expected sunday unavailable, got %s (%s)", days[4].Status, days[4].Date)
	}
	if got := Calendar(today, today, 0, monToSat); len(got) != 0 {
		t.Errorf("expected empty calendar, got %d", len(got))
	}
}
