package validation

import (
	"strings"
	"time"

	"github.com/joseph-ayodele/expense-auditor/constants"
	"github.com/joseph-ayodele/expense-auditor/internal/entity"
)

const toleranceDays = 1

// ParseDate reads an ISO calendar date (an RFC 3339 timestamp is truncated to its date).
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if entity.IsUnknown(s) {
		return time.Time{}, false
	}
	if t, err := time.Parse(constants.DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		y, m, d := t.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
	}
	return time.Time{}, false
}

// Window is the mission period widened by the tolerance on each side.
// A nil bound is open on that side.
type Window struct {
	From *time.Time
	To   *time.Time
	// Inverted is set when start_date is after end_date; such a window disables the check.
	Inverted bool
}

// MissionWindow builds the tolerance window of a reference record.
func MissionWindow(ref entity.ReferenceRecord) Window {
	var w Window
	start, okStart := ParseDate(ref.StartDate)
	end, okEnd := ParseDate(ref.EndDate)
	if okStart && okEnd && start.After(end) {
		w.Inverted = true
		return w
	}
	if okStart {
		from := start.AddDate(0, 0, -toleranceDays)
		w.From = &from
	}
	if okEnd {
		to := end.AddDate(0, 0, toleranceDays)
		w.To = &to
	}
	return w
}

// Contains reports whether d falls inside the window, bounds inclusive.
func (w Window) Contains(d time.Time) bool {
	if w.Inverted {
		return true
	}
	if w.From != nil && d.Before(*w.From) {
		return false
	}
	if w.To != nil && d.After(*w.To) {
		return false
	}
	return true
}
