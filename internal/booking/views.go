package booking

import (
	"context"
	"fmt"
	"time"

	"roomcal/internal/calendar"
	"roomcal/internal/model"
	"roomcal/internal/store"
	"roomcal/internal/timeslot"
	"roomcal/internal/tz"
)

// DayView is the timeslot grid of one location and day.
type DayView struct {
	Location model.Location
	Date     tz.Date
	Items    calendar.Timeline
	Grid     *timeslot.Grid
}

// window loads the stored occurrences and feed entries of a location that
// may fall into w and merges them.
func (s *Service) window(ctx context.Context, loc *model.Location, w calendar.Window) (calendar.Timeline, error) {
	occs, err := s.store.QueryOccurrences(ctx, store.OccurrenceQuery{
		LocationID: loc.ID,
		Start:      w.Start,
		End:        w.End,
	})
	if err != nil {
		return nil, err
	}
	external, err := s.external(ctx, loc.Slug)
	if err != nil {
		return nil, err
	}
	return calendar.Merge(s.local(occs), external, w)
}

// MonthView builds the month grid of a location.
func (s *Service) MonthView(ctx context.Context, slug string, year int, month time.Month) (calendar.MonthView, error) {
	if month < time.January || month > time.December {
		return calendar.MonthView{}, fmt.Errorf("%w: month %d", model.ErrValidation, month)
	}
	loc, err := s.store.LocationBySlug(ctx, slug)
	if err != nil {
		return calendar.MonthView{}, err
	}
	zone := s.Zone()
	tl, err := s.window(ctx, loc, calendar.MonthWindow(year, month, zone))
	if err != nil {
		return calendar.MonthView{}, err
	}
	return calendar.BuildMonthView(tl, year, month, zone, s.settings.firstWeekday()), nil
}

// YearSummary groups a location's bookings of one year by month.
func (s *Service) YearSummary(ctx context.Context, slug string, year int) ([]calendar.MonthGroup, error) {
	loc, err := s.store.LocationBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	zone := s.Zone()
	tl, err := s.window(ctx, loc, calendar.YearWindow(year, zone))
	if err != nil {
		return nil, err
	}
	return calendar.BuildYearSummary(tl, year, zone), nil
}

// DayGrid lays out one day of a location. With showLinks, stored
// occurrences are marked as linkable.
func (s *Service) DayGrid(ctx context.Context, slug string, day tz.Date, showLinks bool) (*DayView, error) {
	loc, err := s.store.LocationBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	zone := s.Zone()
	tl, err := s.window(ctx, loc, calendar.DayWindow(day, zone))
	if err != nil {
		return nil, err
	}

	styles, err := s.styles(ctx)
	if err != nil {
		return nil, err
	}
	grid, err := timeslot.Build(day, zone, tl, timeslot.Config{
		Start:      s.settings.TimeslotStart,
		Duration:   s.settings.TimeslotEndDelta,
		Interval:   s.settings.TimeslotInterval,
		MinColumns: s.settings.MinColumns,
	}, timeslot.Options{ShowLinks: showLinks, Styles: styles})
	if err != nil {
		return nil, err
	}
	return &DayView{Location: *loc, Date: day, Items: tl, Grid: grid}, nil
}

// TodayGrid is DayGrid for the current date.
func (s *Service) TodayGrid(ctx context.Context, slug string, showLinks bool) (*DayView, error) {
	return s.DayGrid(ctx, slug, s.Today(), showLinks)
}

// styles gives every active location its own cell style.
func (s *Service) styles(ctx context.Context) (timeslot.Styles, error) {
	locs, err := s.store.Locations(ctx, true)
	if err != nil {
		return nil, err
	}
	slugs := make([]string, len(locs))
	for i, l := range locs {
		slugs[i] = l.Slug
	}
	return timeslot.NewStyles(slugs...), nil
}
