// Package feed keeps the external calendars bound to each location in
// memory and refreshes them on a schedule.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goical "github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"

	"roomcal/internal/calendar"
	"roomcal/internal/ics"
	"roomcal/internal/log"
)

// Source yields the parsed events of one external calendar. window is a
// hint; sources may return events outside it.
type Source interface {
	ID() string
	Events(ctx context.Context, window calendar.Window) ([]ics.VEvent, error)
}

// ICSSource is a calendar published as a single .ics document.
type ICSSource struct {
	fetcher *ics.Fetcher
	req     ics.Request
}

func NewICSSource(f *ics.Fetcher, req ics.Request) *ICSSource {
	return &ICSSource{fetcher: f, req: req}
}

func (s *ICSSource) ID() string { return s.req.ID }

func (s *ICSSource) Events(ctx context.Context, _ calendar.Window) ([]ics.VEvent, error) {
	res, err := s.fetcher.Fetch(ctx, s.req)
	if err != nil {
		return nil, err
	}
	return ics.Parse(res.Body)
}

// CalDAVSource queries the calendars of a CalDAV account. An empty
// calendar list means every calendar of the account.
type CalDAVSource struct {
	id        string
	endpoint  string
	calendars []string
	client    webdav.HTTPClient
}

func NewCalDAVSource(id, endpoint, username, password string, calendars []string, hc *http.Client) *CalDAVSource {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	var client webdav.HTTPClient = hc
	if username != "" {
		client = webdav.HTTPClientWithBasicAuth(hc, username, password)
	}
	return &CalDAVSource{id: id, endpoint: endpoint, calendars: calendars, client: client}
}

func (s *CalDAVSource) ID() string { return s.id }

func (s *CalDAVSource) Events(ctx context.Context, window calendar.Window) ([]ics.VEvent, error) {
	client, err := caldav.NewClient(s.client, s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("caldav client: %w", err)
	}
	principal, err := client.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, fmt.Errorf("find principal: %w", err)
	}
	home, err := client.FindCalendarHomeSet(ctx, principal)
	if err != nil {
		return nil, fmt.Errorf("find calendar home: %w", err)
	}
	cals, err := client.FindCalendars(ctx, home)
	if err != nil {
		return nil, fmt.Errorf("find calendars: %w", err)
	}

	var out []ics.VEvent
	for _, cal := range cals {
		if !s.wants(cal.Name) {
			continue
		}
		events, err := s.query(ctx, client, cal, window)
		if err != nil {
			log.Warn("feed: caldav calendar failed", "source", s.id, "calendar", cal.Name, "err", err)
			continue
		}
		out = append(out, events...)
	}
	return out, nil
}

func (s *CalDAVSource) wants(name string) bool {
	if len(s.calendars) == 0 {
		return true
	}
	for _, c := range s.calendars {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	return false
}

func (s *CalDAVSource) query(ctx context.Context, client *caldav.Client, cal caldav.Calendar, window calendar.Window) ([]ics.VEvent, error) {
	q := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:     "VCALENDAR",
			AllProps: true,
			AllComps: true,
		},
		CompFilter: caldav.CompFilter{
			Name: "VCALENDAR",
			Comps: []caldav.CompFilter{{
				Name:  "VEVENT",
				Start: window.Start.UTC(),
				End:   window.End.UTC(),
			}},
		},
	}
	objects, err := client.QueryCalendar(ctx, cal.Path, q)
	if err != nil {
		return nil, err
	}

	var out []ics.VEvent
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		events, err := reparse(obj.Data)
		if err != nil {
			log.Warn("feed: bad caldav object", "source", s.id, "path", obj.Path, "err", err)
			continue
		}
		out = append(out, events...)
	}
	return out, nil
}

// reparse re-encodes a calendar object so CalDAV and plain ICS feeds go
// through the same VEVENT parser.
func reparse(cal *goical.Calendar) ([]ics.VEvent, error) {
	var buf bytes.Buffer
	if err := goical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, err
	}
	return ics.Parse(buf.Bytes())
}
