// Package calendar decides which entries fall into a day, month or year
// and merges stored occurrences with external feed entries.
package calendar

import (
	"fmt"
	"iter"
	"time"

	"roomcal/internal/model"
	"roomcal/internal/tz"
)

// Window is an inclusive [Start, End] range.
type Window struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [entryStart, entryEnd] shares at least one
// instant with [windowStart, windowEnd]. Touching boundaries count.
// All four timestamps must be zone-aware.
func Overlaps(entryStart, entryEnd, windowStart, windowEnd time.Time) (bool, error) {
	for _, t := range [...]time.Time{entryStart, entryEnd, windowStart, windowEnd} {
		if tz.IsNaive(t) {
			return false, fmt.Errorf("overlap check at %s: %w", t.Format("2006-01-02T15:04:05"), model.ErrNaiveTimestamp)
		}
	}

	switch {
	case !entryStart.Before(windowStart) && !entryStart.After(windowEnd):
		// starts inside
		return true, nil
	case !entryEnd.Before(windowStart) && !entryEnd.After(windowEnd):
		// ends inside
		return true, nil
	case !entryStart.After(windowStart) && !windowEnd.After(entryEnd):
		// spans the whole window
		return true, nil
	}
	return false, nil
}

// Contains is Overlaps against w.
func (w Window) Contains(start, end time.Time) (bool, error) {
	return Overlaps(start, end, w.Start, w.End)
}

// DayWindow runs from midnight to 23:59:59 of d in zone.
func DayWindow(d tz.Date, zone *time.Location) Window {
	start := d.In(zone)
	return Window{
		Start: start,
		End:   time.Date(d.Year, d.Month, d.Day, 23, 59, 59, 0, zone),
	}
}

// MonthWindow runs from the first instant of the month to 23:59:59 of its
// last day.
func MonthWindow(year int, month time.Month, zone *time.Location) Window {
	start := time.Date(year, month, 1, 0, 0, 0, 0, zone)
	var end time.Time
	// time.Date normalizes Feb 31 into March, so walk down until the
	// month stays put.
	for day := 31; day >= 28; day-- {
		end = time.Date(year, month, day, 23, 59, 59, 0, zone)
		if end.Month() == month {
			break
		}
	}
	return Window{Start: start, End: end}
}

// YearWindow runs from Jan 1 00:00:00 to Dec 31 23:59:59.
func YearWindow(year int, zone *time.Location) Window {
	return Window{
		Start: time.Date(year, time.January, 1, 0, 0, 0, 0, zone),
		End:   time.Date(year, time.December, 31, 23, 59, 59, 0, zone),
	}
}

// Filter yields the entries overlapping w. The sequence is lazy and can be
// ranged over again. A naive entry yields ErrNaiveTimestamp and the
// consumer decides whether to stop.
func Filter(entries []model.ExternalEntry, w Window) iter.Seq2[model.ExternalEntry, error] {
	return func(yield func(model.ExternalEntry, error) bool) {
		for _, e := range entries {
			ok, err := w.Contains(e.Start, e.End)
			if err != nil {
				if !yield(model.ExternalEntry{}, fmt.Errorf("entry %q: %w", e.UID, err)) {
					return
				}
				continue
			}
			if ok && !yield(e, nil) {
				return
			}
		}
	}
}

// FilterByDay is Filter over DayWindow(d, zone).
func FilterByDay(entries []model.ExternalEntry, d tz.Date, zone *time.Location) iter.Seq2[model.ExternalEntry, error] {
	return Filter(entries, DayWindow(d, zone))
}

// FilterByMonth is Filter over MonthWindow(year, month, zone).
func FilterByMonth(entries []model.ExternalEntry, year int, month time.Month, zone *time.Location) iter.Seq2[model.ExternalEntry, error] {
	return Filter(entries, MonthWindow(year, month, zone))
}
