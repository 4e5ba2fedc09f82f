package calendar

import (
	"time"

	"roomcal/internal/model"
)

// DaysIn returns the number of days in month.
func DaysIn(year int, month time.Month) int {
	return MonthWindow(year, month, time.UTC).End.Day()
}

// MonthCalendar lays out a month as weeks of seven day numbers starting on
// firstWeekday. Days that belong to neighbouring months are 0.
func MonthCalendar(year int, month time.Month, firstWeekday time.Weekday) [][]int {
	first := time.Date(year, month, 1, 12, 0, 0, 0, time.UTC)
	col := (int(first.Weekday()) - int(firstWeekday) + 7) % 7

	var weeks [][]int
	week := make([]int, 7)
	for day := 1; day <= DaysIn(year, month); day++ {
		week[col] = day
		col++
		if col == 7 {
			weeks = append(weeks, week)
			week = make([]int, 7)
			col = 0
		}
	}
	if col > 0 {
		weeks = append(weeks, week)
	}
	return weeks
}

// DayCell is one square of a month grid. Day is 0 for padding cells.
type DayCell struct {
	Day   int
	Items []model.Item
}

type MonthView struct {
	Weeks     [][]DayCell
	ThisMonth time.Time
	NextMonth time.Time
	LastMonth time.Time
	Bounds    Window
	Items     Timeline
}

// BuildMonthView files the timeline into a month grid. tl must come from
// MergeForMonth for the same month.
func BuildMonthView(tl Timeline, year int, month time.Month, zone *time.Location, firstWeekday time.Weekday) MonthView {
	bounds := MonthWindow(year, month, zone)
	byDay := tl.ByDay(bounds)

	layout := MonthCalendar(year, month, firstWeekday)
	weeks := make([][]DayCell, 0, len(layout))
	for _, row := range layout {
		cells := make([]DayCell, len(row))
		for i, day := range row {
			cells[i] = DayCell{Day: day}
			if day > 0 {
				cells[i].Items = byDay[day]
			}
		}
		weeks = append(weeks, cells)
	}

	return MonthView{
		Weeks:     weeks,
		ThisMonth: bounds.Start,
		NextMonth: bounds.Start.AddDate(0, 1, 0),
		LastMonth: bounds.Start.AddDate(0, -1, 0),
		Bounds:    bounds,
		Items:     tl,
	}
}

// MonthGroup holds the items filed under one month of a year summary.
type MonthGroup struct {
	Month time.Time
	Items []model.Item
}

// BuildYearSummary groups the timeline by month. An item is filed under
// its start month, or under its end month when it started in an earlier
// year; items spanning the whole year land in January. Months without
// items are omitted.
func BuildYearSummary(tl Timeline, year int, zone *time.Location) []MonthGroup {
	var byMonth [12][]model.Item
	for _, it := range tl {
		start, end := it.Start().In(zone), it.End().In(zone)
		m := time.January
		switch {
		case start.Year() == year:
			m = start.Month()
		case end.Year() == year:
			m = end.Month()
		}
		byMonth[m-1] = append(byMonth[m-1], it)
	}

	var groups []MonthGroup
	for i, items := range byMonth {
		if len(items) == 0 {
			continue
		}
		groups = append(groups, MonthGroup{
			Month: time.Date(year, time.Month(i+1), 1, 0, 0, 0, 0, zone),
			Items: items,
		})
	}
	return groups
}
