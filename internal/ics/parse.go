package ics

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	goical "github.com/emersion/go-ical"

	"roomcal/internal/log"
	"roomcal/internal/tz"
)

// VEvent is a parsed VEVENT. DATE-TIME values carrying a TZID or a trailing
// Z are zone-aware; values without either, and DATE values, are floating
// (tz.Floating) and get their zone during expansion.
type VEvent struct {
	UID         string
	Sequence    int
	Summary     string
	Description string
	Location    string

	Start  time.Time
	End    time.Time
	AllDay bool

	RRule        string
	ExDates      []time.Time
	RecurrenceID *time.Time
}

// Override reports whether the event replaces one instance of a recurring
// event.
func (v VEvent) Override() bool { return v.RecurrenceID != nil }

// Parse reads every VEVENT of an iCalendar payload. Malformed events are
// logged and skipped.
func Parse(body []byte) ([]VEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("empty calendar body")
	}
	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse calendar: %w", err)
	}

	var out []VEvent
	for _, ve := range cal.Events() {
		ev, err := parseVEvent(ve)
		if err != nil {
			log.Warn("ics: skipping vevent", "err", err)
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

func value(ve *ical.VEvent, p ical.ComponentProperty) string {
	if prop := ve.GetProperty(p); prop != nil {
		return prop.Value
	}
	return ""
}

func parseVEvent(ve *ical.VEvent) (VEvent, error) {
	ev := VEvent{
		UID:         strings.TrimSpace(value(ve, ical.ComponentPropertyUniqueId)),
		Summary:     value(ve, ical.ComponentPropertySummary),
		Description: value(ve, ical.ComponentPropertyDescription),
		Location:    value(ve, ical.ComponentPropertyLocation),
		RRule:       strings.TrimSpace(value(ve, ical.ComponentPropertyRrule)),
	}
	if ev.UID == "" {
		return ev, errors.New("missing UID")
	}
	if n, err := strconv.Atoi(strings.TrimSpace(value(ve, ical.ComponentPropertySequence))); err == nil {
		ev.Sequence = n
	}

	dtstart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtstart == nil {
		return ev, fmt.Errorf("%s: missing DTSTART", ev.UID)
	}
	start, allDay, err := parseTimes(dtstart)
	if err != nil {
		return ev, fmt.Errorf("%s: DTSTART: %w", ev.UID, err)
	}
	ev.Start, ev.AllDay = start[0], allDay

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		end, _, err := parseTimes(ve.GetProperty(ical.ComponentPropertyDtEnd))
		if err != nil {
			return ev, fmt.Errorf("%s: DTEND: %w", ev.UID, err)
		}
		ev.End = end[0]
	case value(ve, "DURATION") != "":
		dur := goical.NewProp(goical.PropDuration)
		dur.Value = value(ve, "DURATION")
		d, err := dur.Duration()
		if err != nil {
			return ev, fmt.Errorf("%s: DURATION: %w", ev.UID, err)
		}
		ev.End = ev.Start.Add(d)
	case allDay:
		ev.End = ev.Start.AddDate(0, 0, 1)
	default:
		ev.End = ev.Start
	}
	if ev.End.Before(ev.Start) {
		return ev, fmt.Errorf("%s: DTEND before DTSTART", ev.UID)
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		ex, _, err := parseTimes(p)
		if err != nil {
			log.Warn("ics: bad EXDATE", "uid", ev.UID, "value", p.Value, "err", err)
			continue
		}
		ev.ExDates = append(ev.ExDates, ex...)
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		rid, _, err := parseTimes(p)
		if err != nil {
			return ev, fmt.Errorf("%s: RECURRENCE-ID: %w", ev.UID, err)
		}
		ev.RecurrenceID = &rid[0]
	}
	return ev, nil
}

func param(p *ical.IANAProperty, name string) string {
	if vs := p.ICalParameters[name]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// parseTimes parses a (possibly comma separated) DATE or DATE-TIME value,
// honouring the VALUE and TZID parameters.
func parseTimes(p *ical.IANAProperty) ([]time.Time, bool, error) {
	allDay := strings.EqualFold(param(p, "VALUE"), "DATE")

	loc := tz.Floating
	if id := param(p, "TZID"); id != "" {
		l, err := loadZone(id)
		if err != nil {
			log.Warn("ics: unknown TZID, treating as floating", "tzid", id)
		} else {
			loc = l
		}
	}

	var out []time.Time
	for part := range strings.SplitSeq(p.Value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		t, dateOnly, err := parseTime(part, loc)
		if err != nil {
			return nil, false, err
		}
		allDay = allDay || dateOnly
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil, false, errors.New("empty value")
	}
	return out, allDay, nil
}

func parseTime(v string, loc *time.Location) (time.Time, bool, error) {
	switch {
	case !strings.Contains(v, "T"):
		t, err := time.ParseInLocation("20060102", v, tz.Floating)
		return t, true, err
	case strings.HasSuffix(v, "Z"):
		t, err := time.Parse("20060102T150405Z", v)
		return t, false, err
	default:
		t, err := time.ParseInLocation("20060102T150405", v, loc)
		return t, false, err
	}
}

// loadZone resolves IANA names, also when quoted or behind an exporter
// prefix such as /mozilla.org/20050126_1/Europe/Berlin.
func loadZone(id string) (*time.Location, error) {
	id = strings.Trim(id, `"`)
	if loc, err := time.LoadLocation(id); err == nil {
		return loc, nil
	}
	if i := strings.LastIndex(id, "/"); i > 0 {
		if j := strings.LastIndex(id[:i], "/"); j >= 0 {
			return time.LoadLocation(id[j+1:])
		}
	}
	return nil, fmt.Errorf("unknown time zone %q", id)
}
