package booking

import (
	"context"
	"time"

	"roomcal/internal/printer"
)

// PrintMonth collects what a printed month sheet of a location shows.
func (s *Service) PrintMonth(ctx context.Context, slug string, year int, month time.Month) (printer.PrintData, error) {
	view, err := s.MonthView(ctx, slug, year, month)
	if err != nil {
		return printer.PrintData{}, err
	}
	loc, err := s.store.LocationBySlug(ctx, slug)
	if err != nil {
		return printer.PrintData{}, err
	}
	return printer.PrintData{
		Location:     *loc,
		View:         view,
		FirstWeekday: s.settings.firstWeekday(),
		Zone:         s.Zone(),
		Printed:      s.now(),
	}, nil
}
