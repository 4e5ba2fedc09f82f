package booking

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"roomcal/internal/ics"
	"roomcal/internal/model"
	"roomcal/internal/store"
)

// occurrenceNS scopes the UIDs of exported occurrences.
var occurrenceNS = uuid.NewSHA1(uuid.NameSpaceURL, []byte("roomcal:occurrence"))

// Webcal renders every booking of a location as a subscribable calendar.
// Feed entries bound to the location follow the stored occurrences.
func (s *Service) Webcal(ctx context.Context, slug string) (string, error) {
	loc, err := s.store.LocationBySlug(ctx, slug)
	if err != nil {
		return "", err
	}
	occs, err := s.store.QueryOccurrences(ctx, store.OccurrenceQuery{LocationID: loc.ID})
	if err != nil {
		return "", err
	}
	external, err := s.external(ctx, slug)
	if err != nil {
		return "", err
	}

	events := make([]ics.ExportEvent, 0, len(occs)+len(external))
	for i := range s.local(occs) {
		events = append(events, exportOccurrence(loc, &occs[i]))
	}
	for _, e := range external {
		events = append(events, ics.ExportEvent{
			UID:         e.UID,
			Start:       e.Start,
			End:         e.End,
			Summary:     e.Summary,
			Location:    e.Location,
			Description: e.Description,
		})
	}
	return ics.Export(loc.String(), s.settings.PublishedTTL, events), nil
}

func exportOccurrence(loc *model.Location, o *model.Occurrence) ics.ExportEvent {
	return ics.ExportEvent{
		UID:         occurrenceUID(o.ID),
		Start:       o.Start,
		End:         o.End,
		Summary:     o.Title(),
		Location:    loc.String(),
		Description: description(o),
	}
}

func occurrenceUID(id uint) string {
	return uuid.NewSHA1(occurrenceNS, []byte(strconv.FormatUint(uint64(id), 10))).String()
}

// description joins the event description with the event and occurrence
// notes, one per line.
func description(o *model.Occurrence) string {
	var lines []string
	add := func(s string) {
		if s = strings.TrimSpace(s); s != "" {
			lines = append(lines, s)
		}
	}
	if o.Event != nil {
		add(o.Event.Description)
		for _, n := range o.Event.Notes {
			add(n.Body)
		}
	}
	for _, n := range o.Notes {
		add(n.Body)
	}
	return strings.Join(lines, "\n")
}
