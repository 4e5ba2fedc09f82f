package recurrence

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcal/internal/model"
	"roomcal/internal/tz"
)

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func newExpander(t *testing.T) (*Expander, *time.Location) {
	loc := berlin(t)
	return NewExpander(tz.New(loc, true), 0), loc
}

func TestExpandSingleOccurrence(t *testing.T) {
	x, loc := newExpander(t)
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, loc)
	end := start.Add(90 * time.Minute)

	rules := []Rule{
		{},
		{Freq: Weekly, Interval: 3},
		{Freq: Monthly, ByMonthDay: []int{1, 15}},
	}
	for _, r := range rules {
		spans, err := x.Expand(start, end, r)
		require.NoError(t, err)
		require.Len(t, spans, 1)
		assert.True(t, spans[0].Start.Equal(start))
		assert.True(t, spans[0].End.Equal(end))
	}
}

func TestExpandCount(t *testing.T) {
	x, loc := newExpander(t)
	start := time.Date(2026, 5, 4, 10, 0, 0, 0, loc)
	end := start.Add(45 * time.Minute)

	for _, n := range []int{1, 2, 7, 30} {
		spans, err := x.Expand(start, end, Rule{Freq: Daily, Count: n})
		require.NoError(t, err)
		require.Len(t, spans, n)
		for i, s := range spans {
			assert.Equal(t, 45*time.Minute, s.Duration())
			if i > 0 {
				assert.True(t, s.Start.After(spans[i-1].Start), "start times strictly increase")
			}
		}
	}
}

func TestExpandUntilIsInclusive(t *testing.T) {
	x, loc := newExpander(t)
	start := time.Date(2026, 1, 5, 10, 0, 0, 0, loc)
	end := start.Add(time.Hour)

	spans, err := x.Expand(start, end, Rule{Freq: Daily, Until: time.Date(2026, 1, 9, 10, 0, 0, 0, loc)})
	require.NoError(t, err)
	require.Len(t, spans, 5)
	assert.Equal(t, 9, spans[4].Start.Day())
}

func TestExpandWeeklyKeepsWallClockAcrossDST(t *testing.T) {
	x, loc := newExpander(t)
	// 2026-03-29 is the spring-forward Sunday in Berlin.
	start := time.Date(2026, 3, 23, 9, 0, 0, 0, loc)
	end := start.Add(time.Hour)

	spans, err := x.Expand(start, end, Rule{Freq: Weekly, Count: 3})
	require.NoError(t, err)
	require.Len(t, spans, 3)
	for _, s := range spans {
		assert.Equal(t, 9, s.Start.Hour())
		assert.Equal(t, 10, s.End.Hour())
		assert.Equal(t, time.Hour, s.Duration())
	}
	_, offBefore := spans[0].Start.Zone()
	_, offAfter := spans[1].Start.Zone()
	assert.Equal(t, 3600, offAfter-offBefore)
}

func TestExpandSpringForwardGap(t *testing.T) {
	x, loc := newExpander(t)
	start := time.Date(2026, 3, 28, 2, 30, 0, 0, loc)
	end := start.Add(time.Hour)

	spans, err := x.Expand(start, end, Rule{Freq: Daily, Count: 3})
	require.NoError(t, err)
	require.Len(t, spans, 3)
	for _, s := range spans {
		assert.Equal(t, time.Hour, s.Duration(), "%v..%v", s.Start, s.End)
	}
	assert.Equal(t, 29, spans[1].Start.Day())
}

func TestExpandByWeekday(t *testing.T) {
	x, loc := newExpander(t)
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, loc) // Monday
	end := start.Add(2 * time.Hour)

	spans, err := x.Expand(start, end, Rule{
		Freq:      Weekly,
		Count:     4,
		ByWeekday: []Weekday{{Day: time.Monday}, {Day: time.Thursday}},
	})
	require.NoError(t, err)
	require.Len(t, spans, 4)
	want := []time.Weekday{time.Monday, time.Thursday, time.Monday, time.Thursday}
	for i, s := range spans {
		assert.Equal(t, want[i], s.Start.Weekday())
	}
}

func TestExpandErrors(t *testing.T) {
	x, loc := newExpander(t)
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, loc)

	_, err := x.Expand(start, start, Rule{})
	assert.ErrorIs(t, err, model.ErrInvalidRange)

	_, err = x.Expand(start, start.Add(-time.Minute), Rule{Count: 2})
	assert.ErrorIs(t, err, model.ErrInvalidRange)

	_, err = x.Expand(start, start.Add(time.Hour), Rule{Freq: "FORTNIGHTLY", Count: 2})
	assert.ErrorIs(t, err, model.ErrInvalidRule)

	_, err = x.Expand(start, start.Add(time.Hour), Rule{Interval: -1, Count: 2})
	assert.ErrorIs(t, err, model.ErrInvalidRule)

	_, err = x.Expand(start, start.Add(time.Hour), Rule{Until: start.Add(-48 * time.Hour)})
	assert.ErrorIs(t, err, model.ErrInvalidRule)
}

func TestExpandCap(t *testing.T) {
	loc := berlin(t)
	x := NewExpander(tz.New(loc, true), 10)
	start := time.Date(2026, 6, 1, 18, 0, 0, 0, loc)

	_, err := x.Expand(start, start.Add(time.Hour), Rule{Freq: Daily, Count: 11})
	assert.ErrorIs(t, err, model.ErrInvalidRule)

	spans, err := x.Expand(start, start.Add(time.Hour), Rule{Freq: Daily, Count: 10})
	require.NoError(t, err)
	assert.Len(t, spans, 10)
}

func TestParseRule(t *testing.T) {
	r, err := ParseRule("RRULE:FREQ=WEEKLY;INTERVAL=2;COUNT=4;BYDAY=MO,-1FR")
	require.NoError(t, err)
	assert.Equal(t, Weekly, r.Freq)
	assert.Equal(t, 2, r.Interval)
	assert.Equal(t, 4, r.Count)
	assert.Equal(t, []Weekday{{Day: time.Monday}, {Day: time.Friday, N: -1}}, r.ByWeekday)
	assert.Nil(t, r.WeekStart)

	r, err = ParseRule("FREQ=DAILY;UNTIL=20260110T090000")
	require.NoError(t, err)
	assert.True(t, tz.IsNaive(r.Until))
	assert.Equal(t, 10, r.Until.Day())

	_, err = ParseRule("FREQ=SOMETIMES")
	assert.ErrorIs(t, err, model.ErrInvalidRule)
}

func TestParseFrequency(t *testing.T) {
	f, err := ParseFrequency("")
	require.NoError(t, err)
	assert.Equal(t, Daily, f)

	f, err = ParseFrequency("monthly")
	require.NoError(t, err)
	assert.Equal(t, Monthly, f)
}

func TestParseWeekday(t *testing.T) {
	tests := map[string]Weekday{
		"MO":   {Day: time.Monday},
		"su":   {Day: time.Sunday},
		"2TU":  {Day: time.Tuesday, N: 2},
		"-1FR": {Day: time.Friday, N: -1},
		"+3WE": {Day: time.Wednesday, N: 3},
	}
	for in, want := range tests {
		got, err := ParseWeekday(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "M", "XX", "0MO", "99MO", "aMO"} {
		_, err := ParseWeekday(bad)
		assert.ErrorIs(t, err, model.ErrInvalidRule, bad)
	}
}
