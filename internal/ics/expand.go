package ics

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"roomcal/internal/calendar"
	"roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/tz"
)

const defaultMaxPerEvent = 5000

type ExpandOptions struct {
	SourceID string
	// Window limits the produced entries; both ends inclusive.
	Window calendar.Window
	// MaxPerEvent caps the instances generated for one recurring event.
	// Feeds are foreign input, so the excess is dropped and logged.
	MaxPerEvent int
}

// Expand turns parsed events into concrete entries overlapping
// opts.Window. Floating values are pinned to the normalizer's display zone;
// overrides (RECURRENCE-ID) replace the instance they name.
func Expand(events []VEvent, n *tz.Normalizer, opts ExpandOptions) []model.ExternalEntry {
	if opts.MaxPerEvent <= 0 {
		opts.MaxPerEvent = defaultMaxPerEvent
	}

	overridden := make(map[string][]time.Time)
	for _, ev := range events {
		if ev.Override() {
			overridden[ev.UID] = append(overridden[ev.UID], n.Resolve(*ev.RecurrenceID))
		}
	}

	var out []model.ExternalEntry
	for _, ev := range events {
		if ev.RRule == "" || ev.Override() {
			e := entry(ev, n, opts.SourceID, n.Resolve(ev.Start), n.Resolve(ev.End))
			if ok, _ := opts.Window.Contains(e.Start, e.End); ok {
				out = append(out, e)
			}
			continue
		}
		spans, err := expandRecurring(ev, n, opts, overridden[ev.UID])
		if err != nil {
			log.Warn("ics: cannot expand recurring event", "uid", ev.UID, "source", opts.SourceID, "err", err)
			continue
		}
		out = append(out, spans...)
	}

	slices.SortStableFunc(out, func(a, b model.ExternalEntry) int {
		return a.Start.Compare(b.Start)
	})
	return out
}

func expandRecurring(ev VEvent, n *tz.Normalizer, opts ExpandOptions, skip []time.Time) ([]model.ExternalEntry, error) {
	start := n.Resolve(ev.Start)
	end := n.Resolve(ev.End)
	days := 0
	if ev.AllDay {
		days = max(1, int(tz.DateOf(ev.End).In(time.UTC).Sub(tz.DateOf(ev.Start).In(time.UTC))/(24*time.Hour)))
	}
	dur := end.Sub(start)

	ropt, err := rrule.StrToROptionInLocation(strings.TrimPrefix(ev.RRule, "RRULE:"), start.Location())
	if err != nil {
		return nil, err
	}
	ropt.Dtstart = start
	r, err := rrule.NewRRule(*ropt)
	if err != nil {
		return nil, err
	}

	set := &rrule.Set{}
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(n.Resolve(ex).In(start.Location()))
	}
	for _, rid := range skip {
		set.ExDate(rid.In(start.Location()))
	}

	// Widen the lower bound so instances that started before the window but
	// still run into it are kept.
	from := opts.Window.Start.Add(-dur)
	if ev.AllDay {
		from = opts.Window.Start.AddDate(0, 0, -days)
	}
	starts := set.Between(from.In(start.Location()), opts.Window.End.In(start.Location()), true)
	if len(starts) > opts.MaxPerEvent {
		log.Warn("ics: recurring event truncated", "uid", ev.UID, "instances", len(starts), "cap", opts.MaxPerEvent)
		starts = starts[:opts.MaxPerEvent]
	}

	out := make([]model.ExternalEntry, 0, len(starts))
	for _, s := range starts {
		e := s.Add(dur)
		if ev.AllDay {
			s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
			e = s.AddDate(0, 0, days)
		}
		item := entry(ev, n, opts.SourceID, s, e)
		if ok, _ := opts.Window.Contains(item.Start, item.End); ok {
			out = append(out, item)
		}
	}
	return out, nil
}

func entry(ev VEvent, n *tz.Normalizer, sourceID string, start, end time.Time) model.ExternalEntry {
	zone := n.DisplayZone()
	return model.ExternalEntry{
		SourceID:    sourceID,
		UID:         instanceUID(ev.UID, start),
		Summary:     ev.Summary,
		Description: ev.Description,
		Location:    ev.Location,
		AllDay:      ev.AllDay,
		Start:       start.In(zone),
		End:         end.In(zone),
	}
}

func instanceUID(uid string, start time.Time) string {
	return fmt.Sprintf("%s/%s", uid, start.UTC().Format("20060102T150405Z"))
}
