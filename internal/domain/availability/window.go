package availability

import (
	"fmt"
	"time"
)

// SlotMinutes is the grid granularity.
const SlotMinutes = 15

// Window selects one of the two daily consulting sessions.
type Window string

const (
	WindowMorning Window = "morning"
	WindowEvening Window = "evening"
)

// Windows lists every window in display order.
var Windows = []Window{WindowMorning, WindowEvening}

// ParseWindow validates a window name. An empty string selects the morning.
func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case "", WindowMorning:
		return WindowMorning, nil
	case WindowEvening:
		return WindowEvening, nil
	}
	return "", fmt.Errorf("invalid window %q: expected morning or evening", s)
}

// DayRule holds the per-weekday adjustments to the fixed sessions.
type DayRule struct {
	MorningEnd     TimeOfDay
	EveningEnabled bool
}

var (
	morningStart = At(10, 0)
	eveningStart = At(18, 0)
	eveningEnd   = At(21, 0)

	weekdayRule = DayRule{MorningEnd: At(15, 0), EveningEnabled: true}
)

// dayRules is the weekday table consulted by the engine.
var dayRules = map[time.Weekday]DayRule{
	time.Monday:    weekdayRule,
	time.Tuesday:   weekdayRule,
	time.Wednesday: weekdayRule,
	time.Thursday:  weekdayRule,
	time.Friday:    weekdayRule,
	time.Saturday:  weekdayRule,
	time.Sunday:    {MorningEnd: At(13, 0), EveningEnabled: false},
}

// RuleFor returns the session rule for a weekday.
func RuleFor(wd time.Weekday) DayRule {
	return dayRules[wd]
}

// Bounds returns the [start, end) range of a window on a weekday. ok is false
// when the window is closed that day.
func Bounds(wd time.Weekday, w Window) (start, end TimeOfDay, ok bool) {
	rule := RuleFor(wd)
	switch w {
	case WindowMorning:
		return morningStart, rule.MorningEnd, true
	case WindowEvening:
		if !rule.EveningEnabled {
			return 0, 0, false
		}
		return eveningStart, eveningEnd, true
	}
	return 0, 0, false
}

// Grid returns the raw slot starts of a window on a weekday.
func Grid(wd time.Weekday, w Window) []TimeOfDay {
	start, end, ok := Bounds(wd, w)
	if !ok {
		return []TimeOfDay{}
	}
	out := make([]TimeOfDay, 0, int(end-start)/SlotMinutes)
	for t := start; t+SlotMinutes <= end; t += SlotMinutes {
		out = append(out, t)
	}
	return out
}

// WindowOf returns the window containing slot t on weekday wd.
func WindowOf(wd time.Weekday, t TimeOfDay) (Window, bool) {
	for _, w := range Windows {
		start, end, ok := Bounds(wd, w)
		if ok && t >= start && t+SlotMinutes <= end {
			return w, true
		}
	}
	return "", false
}

// Tab describes a window selector for a date.
type Tab struct {
	Window  Window `json:"window"`
	Enabled bool   `json:"enabled"`
}

// Tabs reports both windows for a date; closed windows come back disabled.
func Tabs(date time.Time) []Tab {
	tabs := make([]Tab, 0, len(Windows))
	for _, w := range Windows {
		_, _, ok := Bounds(date.Weekday(), w)
		tabs = append(tabs, Tab{Window: w, Enabled: ok})
	}
	return tabs
}
