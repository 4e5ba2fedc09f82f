package calendar

import (
	"slices"
	"time"

	"roomcal/internal/model"
	"roomcal/internal/tz"
)

// Timeline is a list of items sorted ascending by start time. Items with
// equal starts keep their input order: stored occurrences first, then feed
// entries in feed order. Only the Merge functions build one.
type Timeline []model.Item

// Sorted reports whether the timeline still holds its ordering invariant.
func (tl Timeline) Sorted() bool {
	return slices.IsSortedFunc(tl, compareStart)
}

func compareStart(a, b model.Item) int {
	return a.Start().Compare(b.Start())
}

// Merge concatenates stored occurrences (already range-filtered by the
// store) with the external entries overlapping w and stable-sorts the
// result by start.
func Merge(stored []model.Occurrence, external []model.ExternalEntry, w Window) (Timeline, error) {
	items := make([]model.Item, 0, len(stored)+len(external))
	for i := range stored {
		items = append(items, model.StoredItem(&stored[i]))
	}
	for e, err := range Filter(external, w) {
		if err != nil {
			return nil, err
		}
		items = append(items, model.ExternalItem(&e))
	}
	slices.SortStableFunc(items, compareStart)
	return Timeline(items), nil
}

func MergeForDay(stored []model.Occurrence, external []model.ExternalEntry, d tz.Date, zone *time.Location) (Timeline, error) {
	return Merge(stored, external, DayWindow(d, zone))
}

func MergeForMonth(stored []model.Occurrence, external []model.ExternalEntry, year int, month time.Month, zone *time.Location) (Timeline, error) {
	return Merge(stored, external, MonthWindow(year, month, zone))
}

func MergeForYear(stored []model.Occurrence, external []model.ExternalEntry, year int, zone *time.Location) (Timeline, error) {
	return Merge(stored, external, YearWindow(year, zone))
}

// ByDay groups the timeline by day of month inside w. Items that started
// before w are filed under its first day.
func (tl Timeline) ByDay(w Window) map[int][]model.Item {
	byDay := make(map[int][]model.Item)
	zone := w.Start.Location()
	for _, it := range tl {
		start := it.Start()
		if start.Before(w.Start) {
			start = w.Start
		}
		day := start.In(zone).Day()
		byDay[day] = append(byDay[day], it)
	}
	return byDay
}
