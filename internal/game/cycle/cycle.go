// Package cycle computes the recurring fairness windows play history is
// accounted in.
package cycle

import (
	"fmt"
	"time"
)

// Calculator maps an instant to the half-open cycle [start, end) that
// contains it. Bounds are returned in UTC.
type Calculator interface {
	Bounds(t time.Time) (start, end time.Time)
}

// Weekly cycles start at midnight of WeekStart in Location.
type Weekly struct {
	WeekStart time.Weekday
	Location  *time.Location
}

// Bounds implements Calculator.
func (w Weekly) Bounds(t time.Time) (time.Time, time.Time) {
	loc := location(w.Location)
	local := t.In(loc)
	back := (int(local.Weekday()) - int(w.WeekStart) + 7) % 7
	y, m, d := local.AddDate(0, 0, -back).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 7).UTC()
}

// Monthly cycles start at midnight of the first day of the month.
type Monthly struct {
	Location *time.Location
}

// Bounds implements Calculator.
func (m Monthly) Bounds(t time.Time) (time.Time, time.Time) {
	loc := location(m.Location)
	y, mo, _ := t.In(loc).Date()
	start := time.Date(y, mo, 1, 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 1, 0).UTC()
}

// New builds the calculator named kind ("weekly" or "monthly").
func New(kind string, weekStart time.Weekday, loc *time.Location) (Calculator, error) {
	switch kind {
	case "weekly":
		return Weekly{WeekStart: weekStart, Location: loc}, nil
	case "monthly":
		return Monthly{Location: loc}, nil
	default:
		return nil, fmt.Errorf("unknown cycle %q", kind)
	}
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
