package cycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestWeeklyBounds(t *testing.T) {
	w := Weekly{WeekStart: time.Monday, Location: time.UTC}

	// Wednesday
	start, end := w.Bounds(time.Date(2025, 3, 12, 15, 30, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC), end)

	// Exactly on the boundary belongs to the new cycle.
	start, _ = w.Bounds(time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 17, 0, 0, 0, 0, time.UTC), start)
}

func TestWeeklyBoundsSundayStartInLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	w := Weekly{WeekStart: time.Sunday, Location: loc}

	// Sunday 02:00 UTC is still Saturday evening in New York.
	start, _ := w.Bounds(time.Date(2025, 3, 16, 2, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 3, 9, 0, 0, 0, 0, loc).UTC(), start)
}

func TestMonthlyBounds(t *testing.T) {
	m := Monthly{}

	start, end := m.Bounds(time.Date(2024, 2, 29, 23, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), end)
}

func TestNew(t *testing.T) {
	c, err := New("monthly", time.Monday, nil)
	require.NoError(t, err)
	assert.IsType(t, Monthly{}, c)

	_, err = New("yearly", time.Monday, nil)
	assert.Error(t, err)
}

// Every instant lies inside its weekly cycle, which is seven days long
// and starts on the configured weekday.
func TestWeeklyContainsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		day := time.Weekday(rapid.IntRange(0, 6).Draw(t, "weekStart"))
		sec := rapid.Int64Range(0, 10*365*24*3600).Draw(t, "offset")
		at := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(sec) * time.Second)

		start, end := Weekly{WeekStart: day}.Bounds(at)

		if at.Before(start) || !at.Before(end) {
			t.Fatalf("%v not in [%v, %v)", at, start, end)
		}
		if end.Sub(start) != 7*24*time.Hour {
			t.Fatalf("cycle length %v", end.Sub(start))
		}
		if start.Weekday() != day {
			t.Fatalf("cycle starts on %v, want %v", start.Weekday(), day)
		}
	})
}
