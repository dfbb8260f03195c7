// Package availability computes bookable appointment slots for a doctor and a
// calendar date. It performs no I/O: weekly availability, exceptions and
// reservation states are passed in by the caller.
package availability

import (
	"strings"
	"time"
)

// Exception is an unavailable [Start, End) range on Date.
type Exception struct {
	Date  time.Time
	Start TimeOfDay
	End   TimeOfDay
}

// overlaps reports whether slot [t, t+SlotMinutes) intersects the exception.
func (e Exception) overlaps(date time.Time, t TimeOfDay) bool {
	if !SameDate(e.Date, date) {
		return false
	}
	return t < e.End && e.Start < t+SlotMinutes
}

// SlotState is one row of reservation data from the authoritative store.
type SlotState struct {
	Time        TimeOfDay `json:"time_slot"`
	IsAvailable bool      `json:"is_available"`
}

// Slot is a candidate time together with its derived availability.
type Slot struct {
	Time        TimeOfDay `json:"time"`
	Label       string    `json:"label"`
	IsAvailable bool      `json:"is_available"`
}

// WorksOn reports whether the weekday of date appears in availableDays.
// Names match case-insensitively, either in full ("Monday") or abbreviated
// to three letters ("Mon").
func WorksOn(availableDays []string, date time.Time) bool {
	full := strings.ToLower(date.Weekday().String())
	short := full[:3]
	for _, d := range availableDays {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == full || d == short {
			return true
		}
	}
	return false
}

// Candidates returns the ordered slot starts that are bookable in principle:
// the doctor works that weekday, the window is open, and no exception on the
// date touches the slot.
func Candidates(availableDays []string, date time.Time, w Window, exceptions []Exception) []TimeOfDay {
	if !WorksOn(availableDays, date) {
		return []TimeOfDay{}
	}
	grid := Grid(date.Weekday(), w)
	out := make([]TimeOfDay, 0, len(grid))
	for _, t := range grid {
		if blocked(exceptions, date, t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func blocked(exceptions []Exception, date time.Time, t TimeOfDay) bool {
	for _, e := range exceptions {
		if e.overlaps(date, t) {
			return true
		}
	}
	return false
}

// Blocked reports whether any exception suppresses slot t on date.
func Blocked(exceptions []Exception, date time.Time, t TimeOfDay) bool {
	return blocked(exceptions, date, t)
}

// Elapsed reports whether slot t has already started at now. Callers pass now
// in the clinic's location.
func Elapsed(t TimeOfDay, now time.Time) bool {
	return t <= At(now.Hour(), now.Minute())
}

// Upcoming drops the candidates that have already started at now.
func Upcoming(candidates []TimeOfDay, now time.Time) []TimeOfDay {
	out := make([]TimeOfDay, 0, len(candidates))
	for _, t := range candidates {
		if !Elapsed(t, now) {
			out = append(out, t)
		}
	}
	return out
}

// Merge joins candidates with reservation states. A candidate is available
// unless a state marks it otherwise; missing entries default to available.
// Callers pass nil states when the reservation fetch failed.
func Merge(candidates []TimeOfDay, states []SlotState) []Slot {
	taken := make(map[TimeOfDay]bool, len(states))
	for _, s := range states {
		if !s.IsAvailable {
			taken[s.Time] = true
		}
	}
	out := make([]Slot, 0, len(candidates))
	for _, t := range candidates {
		out = append(out, Slot{Time: t, Label: t.Format12h(), IsAvailable: !taken[t]})
	}
	return out
}

// DateStatus classifies a calendar date for selection.
type DateStatus string

const (
	DateSelectable  DateStatus = "selectable"
	DateSameDay     DateStatus = "same_day"
	DatePast        DateStatus = "past"
	DateUnavailable DateStatus = "unavailable"
)

// DateCheck is the outcome of CheckDate.
type DateCheck struct {
	Date       string     `json:"date"`
	Status     DateStatus `json:"status"`
	Selectable bool       `json:"selectable"`
	// SameDay is advisory: same-day booking has limited availability.
	SameDay bool `json:"same_day"`
}

// CheckDate decides whether date can be chosen on the calendar given today.
func CheckDate(date, today time.Time, availableDays []string) DateCheck {
	d, t := DateOf(date), DateOf(today.In(date.Location()))
	dc := DateCheck{Date: d.Format(DateLayout)}
	switch {
	case d.Before(t):
		dc.Status = DatePast
	case !WorksOn(availableDays, d):
		dc.Status = DateUnavailable
	case d.Equal(t):
		dc.Status = DateSameDay
		dc.Selectable = true
		dc.SameDay = true
	default:
		dc.Status = DateSelectable
		dc.Selectable = true
	}
	return dc
}

// Calendar runs CheckDate for days consecutive dates starting at from.
func Calendar(from, today time.Time, days int, availableDays []string) []DateCheck {
	if days <= 0 {
		return []DateCheck{}
	}
	start := DateOf(from)
	out := make([]DateCheck, 0, days)
	for i := 0; i < days; i++ {
		out = append(out, CheckDate(start.AddDate(0, 0, i), today, availableDays))
	}
	return out
}
