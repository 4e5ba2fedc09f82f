package ics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	_ "time/tzdata"

	goical "github.com/emersion/go-ical"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcal/internal/calendar"
	"roomcal/internal/tz"
)

const feed = `BEGIN:VCALENDAR
VERSION:2.0
PRODID:-//test//test//EN
BEGIN:VEVENT
UID:weekly@test
SUMMARY:Choir
LOCATION:Hall
DTSTART;TZID=Europe/Berlin:20260406T190000
DTEND;TZID=Europe/Berlin:20260406T210000
RRULE:FREQ=WEEKLY;COUNT=5
EXDATE;TZID=Europe/Berlin:20260413T190000
END:VEVENT
BEGIN:VEVENT
UID:weekly@test
RECURRENCE-ID;TZID=Europe/Berlin:20260420T190000
SUMMARY:Choir (moved)
DTSTART;TZID=Europe/Berlin:20260421T180000
DTEND;TZID=Europe/Berlin:20260421T200000
END:VEVENT
BEGIN:VEVENT
UID:utc@test
SUMMARY:Call
DTSTART:20260410T080000Z
DURATION:PT45M
END:VEVENT
BEGIN:VEVENT
UID:floating@test
SUMMARY:Cleaning
DTSTART:20260411T070000
DTEND:20260411T080000
END:VEVENT
BEGIN:VEVENT
UID:holiday@test
SUMMARY:Holiday
DTSTART;VALUE=DATE:20260501
DTEND;VALUE=DATE:20260502
END:VEVENT
BEGIN:VEVENT
SUMMARY:No UID
DTSTART:20260401T070000Z
END:VEVENT
END:VCALENDAR
`

func crlf(s string) []byte {
	return []byte(strings.ReplaceAll(s, "\n", "\r\n"))
}

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func TestParse(t *testing.T) {
	events, err := Parse(crlf(feed))
	require.NoError(t, err)
	require.Len(t, events, 5)

	weekly := events[0]
	assert.Equal(t, "weekly@test", weekly.UID)
	assert.Equal(t, "Europe/Berlin", weekly.Start.Location().String())
	assert.Equal(t, 19, weekly.Start.Hour())
	assert.Equal(t, 2*time.Hour, weekly.End.Sub(weekly.Start))
	assert.Equal(t, "FREQ=WEEKLY;COUNT=5", weekly.RRule)
	require.Len(t, weekly.ExDates, 1)
	assert.False(t, weekly.Override())

	override := events[1]
	require.True(t, override.Override())
	assert.Equal(t, 20, override.RecurrenceID.Day())

	call := events[2]
	assert.Equal(t, time.UTC, call.Start.Location())
	assert.Equal(t, 45*time.Minute, call.End.Sub(call.Start))

	cleaning := events[3]
	assert.True(t, tz.IsNaive(cleaning.Start))
	assert.Equal(t, 7, cleaning.Start.Hour())

	holiday := events[4]
	assert.True(t, holiday.AllDay)
	assert.True(t, tz.IsNaive(holiday.Start))
	assert.Equal(t, 2, holiday.End.Day())
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse(nil)
	assert.Error(t, err)
}

func durationEvent(uid, dur string) string {
	return "BEGIN:VEVENT\nUID:" + uid + "\nSUMMARY:" + uid + "\nDTSTART:20260410T080000Z\nDURATION:" + dur + "\nEND:VEVENT\n"
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"PT15M":     15 * time.Minute,
		"P1D":       24 * time.Hour,
		"P1W":       7 * 24 * time.Hour,
		"P1DT2H30M": 26*time.Hour + 30*time.Minute,
		"PT1H0M30S": time.Hour + 30*time.Second,
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			events, err := Parse(crlf("BEGIN:VCALENDAR\nVERSION:2.0\nPRODID:-//test//test//EN\n" +
				durationEvent("good", in) + durationEvent("bad", "soon") + "END:VCALENDAR\n"))
			require.NoError(t, err)
			require.Len(t, events, 1, "an unreadable DURATION skips its event")
			assert.Equal(t, want, events[0].End.Sub(events[0].Start))
		})
	}
}

func TestExpand(t *testing.T) {
	loc := berlin(t)
	events, err := Parse(crlf(feed))
	require.NoError(t, err)

	n := tz.New(loc, true)
	entries := Expand(events, n, ExpandOptions{
		SourceID: "test",
		Window:   calendar.MonthWindow(2026, time.April, loc),
	})

	var got []string
	for _, e := range entries {
		got = append(got, e.Start.Format("01-02 15:04")+" "+e.Summary)
		assert.Equal(t, "test", e.SourceID)
		assert.Equal(t, loc, e.Start.Location())
	}
	assert.Equal(t, []string{
		"04-06 19:00 Choir",
		"04-10 10:00 Call",
		"04-11 07:00 Cleaning",
		"04-21 18:00 Choir (moved)",
		"04-27 19:00 Choir",
	}, got)
}

func TestExpandAllDay(t *testing.T) {
	loc := berlin(t)
	events, err := Parse(crlf(feed))
	require.NoError(t, err)

	entries := Expand(events, tz.New(loc, true), ExpandOptions{
		Window: calendar.DayWindow(tz.Date{Year: 2026, Month: time.May, Day: 1}, loc),
	})
	require.Len(t, entries, 1)
	e := entries[0]
	assert.True(t, e.AllDay)
	assert.Equal(t, time.Date(2026, 5, 1, 0, 0, 0, 0, loc), e.Start)
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, loc), e.End)
}

func TestExpandCap(t *testing.T) {
	loc := berlin(t)
	events := []VEvent{{
		UID:   "daily",
		Start: time.Date(2026, 1, 1, 9, 0, 0, 0, loc),
		End:   time.Date(2026, 1, 1, 10, 0, 0, 0, loc),
		RRule: "FREQ=DAILY",
	}}
	entries := Expand(events, tz.New(loc, true), ExpandOptions{
		Window:      calendar.YearWindow(2026, loc),
		MaxPerEvent: 10,
	})
	assert.Len(t, entries, 10)
}

func TestFetchUsesETag(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		user, pass, _ := r.BasicAuth()
		assert.Equal(t, "u", user)
		assert.Equal(t, "p", pass)
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	req := Request{ID: "a", URL: srv.URL + "/cal.ics?token=secret", Username: "u", Password: "p"}

	first, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, first.FromCache)

	second, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Body, second.Body)
	assert.EqualValues(t, 2, hits.Load())
}

func TestFetchFallsBackToCache(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			http.Error(w, "down", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("BEGIN:VCALENDAR\r\nEND:VCALENDAR\r\n"))
	}))
	defer srv.Close()

	f := NewFetcher(t.TempDir(), srv.Client())
	req := Request{ID: "a", URL: srv.URL}
	_, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)

	fail.Store(true)
	res, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.FromCache)

	_, err = NewFetcher(t.TempDir(), srv.Client()).Fetch(context.Background(), req)
	assert.Error(t, err)
}

func TestRedactURL(t *testing.T) {
	assert.Equal(t, "https://cal.example.com/...", redactURL("https://cal.example.com/private/abc.ics?token=x"))
	assert.Equal(t, "(redacted)", redactURL("not a url"))
	assert.Equal(t, "https://cal.example.com/feed", normalizeURL("webcal://cal.example.com/feed"))
}

func TestExport(t *testing.T) {
	start := time.Date(2026, 4, 14, 14, 0, 0, 0, time.UTC)
	out := Export("Room A", 15*time.Minute, []ExportEvent{
		{UID: "one", Start: start, End: start.Add(time.Hour), Summary: "Standup", Location: "Room A", Description: "  notes \n"},
		{UID: "two", Start: start.Add(2 * time.Hour), End: start.Add(3 * time.Hour), Summary: "Quiet", Description: "   "},
	})

	assert.Contains(t, out, "METHOD:PUBLISH")
	assert.Contains(t, out, "X-WR-CALNAME:Room A")
	assert.Equal(t, 15*time.Minute, publishedTTL(t, out))
	assert.Contains(t, out, "UID:one")
	assert.Contains(t, out, "DTSTAMP:20260414T140000Z")
	assert.Contains(t, out, "DTSTART:20260414T140000Z")
	assert.Contains(t, out, "DTEND:20260414T150000Z")
	assert.Contains(t, out, "SUMMARY:Standup")
	assert.Contains(t, out, "DESCRIPTION:notes")
	assert.Equal(t, 1, strings.Count(out, "DESCRIPTION"))
}

// publishedTTL reads back the X-PUBLISHED-TTL value of an exported calendar.
func publishedTTL(t *testing.T, out string) time.Duration {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(line), "X-PUBLISHED-TTL:"); ok {
			prop := goical.NewProp("X-PUBLISHED-TTL")
			prop.Value = v
			d, err := prop.Duration()
			require.NoError(t, err, v)
			return d
		}
	}
	t.Fatalf("no X-PUBLISHED-TTL in %q", out)
	return 0
}

func TestExportPublishedTTL(t *testing.T) {
	for _, ttl := range []time.Duration{15 * time.Minute, 90 * time.Minute, 36 * time.Hour} {
		out := Export("Room A", ttl, nil)
		assert.Equal(t, ttl, publishedTTL(t, out))
	}
	assert.NotContains(t, Export("Room A", 0, nil), "X-PUBLISHED-TTL")
}
