package booking

import (
	"context"
	"fmt"
	"strings"

	"roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/store"
)

// Events lists the events booked at a location.
func (s *Service) Events(ctx context.Context, slug string) ([]model.Event, error) {
	loc, err := s.store.LocationBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return s.store.Events(ctx, loc.ID)
}

// Event loads one event with its notes and all occurrences.
func (s *Service) Event(ctx context.Context, slug string, id uint) (*model.Event, error) {
	loc, err := s.store.LocationBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	ev, err := s.store.Event(ctx, loc.ID, id)
	if err != nil {
		return nil, err
	}
	s.local(ev.Occurrences)
	return ev, nil
}

// UpcomingOccurrences returns the occurrences of an event that start now
// or later.
func (s *Service) UpcomingOccurrences(ctx context.Context, slug string, id uint) ([]model.Occurrence, error) {
	ev, err := s.Event(ctx, slug, id)
	if err != nil {
		return nil, err
	}
	occs, err := s.store.QueryOccurrences(ctx, store.OccurrenceQuery{EventID: ev.ID, From: s.now()})
	if err != nil {
		return nil, err
	}
	return s.local(occs), nil
}

// NextOccurrence returns the first upcoming occurrence of an event, or nil
// when every occurrence lies in the past.
func (s *Service) NextOccurrence(ctx context.Context, slug string, id uint) (*model.Occurrence, error) {
	occs, err := s.UpcomingOccurrences(ctx, slug, id)
	if err != nil || len(occs) == 0 {
		return nil, err
	}
	return &occs[0], nil
}

// CreateEvent books a new event at a location. The occurrence input is
// expanded into every occurrence up front; nothing is stored when the rule
// is invalid.
func (s *Service) CreateEvent(ctx context.Context, slug string, in EventInput) (*model.Event, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	loc, err := s.store.LocationBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	occs, err := s.occurrences(in.OccurrenceInput)
	if err != nil {
		return nil, err
	}

	ev := &model.Event{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		LocationID:  loc.ID,
	}
	if err := s.store.CreateEvent(ctx, ev, occs, in.Note); err != nil {
		return nil, err
	}
	ev.Location = *loc
	s.local(ev.Occurrences)
	log.Info("booking: event created", "location", slug, "event", ev.ID, "occurrences", len(occs))
	return ev, nil
}

// AddOccurrences expands in and appends the result to an existing event.
func (s *Service) AddOccurrences(ctx context.Context, slug string, id uint, in OccurrenceInput) ([]model.Occurrence, error) {
	if err := s.check(in); err != nil {
		return nil, err
	}
	ev, err := s.Event(ctx, slug, id)
	if err != nil {
		return nil, err
	}
	occs, err := s.occurrences(in)
	if err != nil {
		return nil, err
	}
	if err := s.store.AddOccurrences(ctx, ev.ID, occs); err != nil {
		return nil, err
	}
	log.Info("booking: occurrences added", "location", slug, "event", ev.ID, "occurrences", len(occs))
	return s.local(occs), nil
}

// occurrences expands an occurrence input into unsaved occurrences.
func (s *Service) occurrences(in OccurrenceInput) ([]model.Occurrence, error) {
	rule, err := s.rule(in)
	if err != nil {
		return nil, err
	}
	start, end := s.span(in)
	spans, err := s.expander.Expand(start, end, rule)
	if err != nil {
		return nil, err
	}
	occs := make([]model.Occurrence, len(spans))
	for i, sp := range spans {
		occs[i] = model.Occurrence{Start: sp.Start, End: sp.End}
	}
	return occs, nil
}

// UpdateEvent applies a patch to an event and attaches its note, if any.
func (s *Service) UpdateEvent(ctx context.Context, slug string, id uint, p EventPatch) (*model.Event, error) {
	if err := s.check(p); err != nil {
		return nil, err
	}
	ev, err := s.Event(ctx, slug, id)
	if err != nil {
		return nil, err
	}

	if p.Title != nil || p.Description != nil {
		if p.Title != nil {
			ev.Title = strings.TrimSpace(*p.Title)
		}
		if p.Description != nil {
			ev.Description = strings.TrimSpace(*p.Description)
		}
		if ev.Title == "" {
			return nil, fmt.Errorf("%w: title is required", model.ErrValidation)
		}
		if err := s.store.UpdateEvent(ctx, ev); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(p.Note) != "" {
		if err := s.store.AddNote(ctx, &model.Note{Body: p.Note, OwnerID: ev.ID, OwnerType: model.OwnerEvent}); err != nil {
			return nil, err
		}
	}
	return s.Event(ctx, slug, id)
}

// Occurrence loads one occurrence, checking that its event is booked at
// the location.
func (s *Service) Occurrence(ctx context.Context, slug string, eventID, id uint) (*model.Occurrence, error) {
	loc, err := s.store.LocationBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	o, err := s.store.Occurrence(ctx, eventID, id)
	if err != nil {
		return nil, err
	}
	if o.Event == nil || o.Event.LocationID != loc.ID {
		return nil, fmt.Errorf("occurrence %d at %s: %w", id, slug, model.ErrNotFound)
	}
	v := o.In(s.Zone())
	return &v, nil
}

// UpdateOccurrence moves an occurrence. Missing bounds keep their current
// value; the result must still end after it starts.
func (s *Service) UpdateOccurrence(ctx context.Context, slug string, eventID, id uint, p OccurrencePatch) (*model.Occurrence, error) {
	if err := s.check(p); err != nil {
		return nil, err
	}
	o, err := s.Occurrence(ctx, slug, eventID, id)
	if err != nil {
		return nil, err
	}

	if p.Start != nil || p.End != nil {
		if p.Start != nil {
			o.Start = s.tz.Resolve(p.Start.Time)
		}
		if p.End != nil {
			o.End = s.tz.Resolve(p.End.Time)
		}
		if err := s.store.UpdateOccurrence(ctx, o); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(p.Note) != "" {
		if err := s.store.AddNote(ctx, &model.Note{Body: p.Note, OwnerID: o.ID, OwnerType: model.OwnerOccurrence}); err != nil {
			return nil, err
		}
	}
	return s.Occurrence(ctx, slug, eventID, id)
}

// DeleteOccurrence removes an occurrence. It reports whether the event was
// removed with it.
func (s *Service) DeleteOccurrence(ctx context.Context, slug string, eventID, id uint) (bool, error) {
	if _, err := s.Occurrence(ctx, slug, eventID, id); err != nil {
		return false, err
	}
	gone, err := s.store.DeleteOccurrence(ctx, eventID, id)
	if err != nil {
		return false, err
	}
	log.Info("booking: occurrence deleted", "location", slug, "event", eventID, "occurrence", id, "event_deleted", gone)
	return gone, nil
}
