// Package slotgen turns a game's operating hours into discrete,
// non-overlapping slot windows.
package slotgen

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// Generation errors.
var (
	ErrInvalidRange    = errors.New("end date is before start date")
	ErrInvalidDuration = errors.New("slot duration must be positive")
	ErrInvalidHours    = errors.New("operating end must be after operating start")
	ErrRangeTooLong    = errors.New("date range exceeds the generation limit")
)

// Hours is a daily operating window. Start and End are offsets from
// local midnight.
type Hours struct {
	Start        time.Duration
	End          time.Duration
	SlotDuration time.Duration
}

// Validate checks that the window can produce slots.
func (h Hours) Validate() error {
	if h.SlotDuration <= 0 {
		return ErrInvalidDuration
	}
	if h.End <= h.Start || h.Start < 0 || h.End > 24*time.Hour {
		return ErrInvalidHours
	}
	return nil
}

// Window is a half-open interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether w and o intersect.
func (w Window) Overlaps(o Window) bool {
	return w.Start.Before(o.End) && o.Start.Before(w.End)
}

// Day truncates t to local midnight in loc and returns the calendar date.
func Day(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// Windows returns every slot window for the calendar days from startDate
// to endDate inclusive. Dates are interpreted in loc; returned windows
// are in UTC. maxDays bounds the number of days, zero means unbounded.
func Windows(h Hours, startDate, endDate time.Time, loc *time.Location, maxDays int) ([]Window, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}

	first := Day(startDate, loc)
	last := Day(endDate, loc)
	if last.Before(first) {
		return nil, ErrInvalidRange
	}

	days := 0
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		days++
	}
	if maxDays > 0 && days > maxDays {
		return nil, fmt.Errorf("%w: %d days requested, limit %d", ErrRangeTooLong, days, maxDays)
	}

	perDay := int((h.End - h.Start) / h.SlotDuration)
	out := make([]Window, 0, days*perDay)

	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		y, m, dd := d.Date()
		for off := h.Start; off+h.SlotDuration <= h.End; off += h.SlotDuration {
			// Wall-clock offsets keep hours stable across DST changes.
			start := wallClock(y, m, dd, off, loc)
			end := wallClock(y, m, dd, off+h.SlotDuration, loc)
			if !end.After(start) {
				continue
			}
			out = append(out, Window{Start: start.UTC(), End: end.UTC()})
		}
	}

	return out, nil
}

func wallClock(y int, m time.Month, d int, off time.Duration, loc *time.Location) time.Time {
	hh := int(off / time.Hour)
	mm := int((off % time.Hour) / time.Minute)
	ss := int((off % time.Minute) / time.Second)
	return time.Date(y, m, d, hh, mm, ss, 0, loc)
}

// WithoutExisting drops every candidate overlapping an existing window.
// Existing windows of one game never overlap each other. The result is
// ordered by start.
func WithoutExisting(candidates, existing []Window) []Window {
	if len(existing) == 0 {
		return sorted(candidates)
	}

	ex := sorted(existing)
	out := make([]Window, 0, len(candidates))
	for _, c := range sorted(candidates) {
		// first existing window ending after c starts
		i := sort.Search(len(ex), func(i int) bool { return ex[i].End.After(c.Start) })
		if i < len(ex) && ex[i].Overlaps(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func sorted(ws []Window) []Window {
	out := append([]Window(nil), ws...)
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out
}
