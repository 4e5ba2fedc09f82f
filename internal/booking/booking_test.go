package booking

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcal/internal/model"
	"roomcal/internal/store"
	"roomcal/internal/tz"
)

type fakeFeeds map[string][]model.ExternalEntry

func (f fakeFeeds) Entries(_ context.Context, slug string) ([]model.ExternalEntry, error) {
	return f[slug], nil
}

func berlin(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func newService(t *testing.T, feeds fakeFeeds) *Service {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "booking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.SyncLocations(context.Background(), []store.LocationSpec{
		{Slug: "hall", Name: "Main Hall", Active: true},
		{Slug: "attic", Active: true},
	}))

	zone := berlin(t)
	s := New(st, feeds, tz.New(zone, true), DefaultSettings())
	s.now = func() time.Time { return time.Date(2026, 4, 15, 10, 30, 0, 0, zone) }
	return s
}

func ts(t *testing.T, s string) *Timestamp {
	t.Helper()
	v, err := ParseTimestamp(s)
	require.NoError(t, err)
	return &v
}

func TestParseTimestamp(t *testing.T) {
	v, err := ParseTimestamp("2026-04-15T09:00:00+02:00")
	require.NoError(t, err)
	assert.False(t, tz.IsNaive(v.Time))

	v, err = ParseTimestamp("2026-04-15 09:00")
	require.NoError(t, err)
	assert.True(t, tz.IsNaive(v.Time))
	assert.Equal(t, 9, v.Hour())

	_, err = ParseTimestamp("tomorrow")
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestEventInputJSON(t *testing.T) {
	var in EventInput
	require.NoError(t, json.Unmarshal([]byte(`{
		"title": "Yoga",
		"start": "2026-04-20T18:00",
		"end": null,
		"freq": "weekly",
		"count": 2,
		"by_weekday": ["MO"]
	}`), &in))
	assert.Equal(t, "Yoga", in.Title)
	require.NotNil(t, in.Start)
	assert.Nil(t, in.End)
	assert.Equal(t, 2, in.Count)
	assert.Equal(t, []string{"MO"}, in.ByWeekday)
}

func TestCreateEventDefaultsToCurrentHour(t *testing.T) {
	s := newService(t, nil)
	ev, err := s.CreateEvent(context.Background(), "hall", EventInput{Title: "Standup", Note: " bring coffee "})
	require.NoError(t, err)

	require.Len(t, ev.Occurrences, 1)
	o := ev.Occurrences[0]
	assert.True(t, o.Start.Equal(time.Date(2026, 4, 15, 10, 0, 0, 0, s.Zone())), "got %s", o.Start)
	assert.Equal(t, time.Hour, o.Duration())
	require.Len(t, ev.Notes, 1)
	assert.Equal(t, "bring coffee", ev.Notes[0].Body)
	assert.Equal(t, "hall", ev.Location.Slug)
}

func TestCreateEventRecurringAcrossDST(t *testing.T) {
	s := newService(t, nil)
	ev, err := s.CreateEvent(context.Background(), "hall", EventInput{
		Title: "Choir",
		OccurrenceInput: OccurrenceInput{
			Start: ts(t, "2026-03-23T09:00"),
			End:   ts(t, "2026-03-23T10:30"),
			Freq:  "WEEKLY",
			Count: 3,
		},
	})
	require.NoError(t, err)

	loaded, err := s.Event(context.Background(), "hall", ev.ID)
	require.NoError(t, err)
	want := []tz.Date{{Year: 2026, Month: time.March, Day: 23}, {Year: 2026, Month: time.March, Day: 30}, {Year: 2026, Month: time.April, Day: 6}}
	require.Len(t, loaded.Occurrences, len(want))
	for i, o := range loaded.Occurrences {
		assert.Equal(t, want[i], tz.DateOf(o.Start))
		assert.Equal(t, 9, o.Start.Hour(), "occurrence %d", i)
		assert.Equal(t, 90*time.Minute, o.Duration(), "occurrence %d", i)
	}
	_, offset := loaded.Occurrences[2].Start.Zone()
	assert.Equal(t, 2*3600, offset)
}

func TestCreateEventRRuleText(t *testing.T) {
	s := newService(t, nil)
	ev, err := s.CreateEvent(context.Background(), "attic", EventInput{
		Title: "Board",
		OccurrenceInput: OccurrenceInput{
			Start: ts(t, "2026-05-04T18:00"),
			RRule: "RRULE:FREQ=MONTHLY;BYDAY=1MO;UNTIL=20260801T000000",
		},
	})
	require.NoError(t, err)
	require.Len(t, ev.Occurrences, 3)
	assert.Equal(t, 1, ev.Occurrences[1].Start.Day())
	assert.Equal(t, time.June, ev.Occurrences[1].Start.Month())
}

func TestCreateEventRejects(t *testing.T) {
	ctx := context.Background()
	long := strings.Repeat("x", 33)

	tests := []struct {
		name string
		slug string
		in   EventInput
		want error
	}{
		{"missing title", "hall", EventInput{}, model.ErrValidation},
		{"long title", "hall", EventInput{Title: long}, model.ErrValidation},
		{"bad freq", "hall", EventInput{Title: "x", OccurrenceInput: OccurrenceInput{Freq: "FORTNIGHTLY"}}, model.ErrValidation},
		{"bad rrule", "hall", EventInput{Title: "x", OccurrenceInput: OccurrenceInput{RRule: "FREQ=SOMETIMES"}}, model.ErrInvalidRule},
		{"bad weekday", "hall", EventInput{Title: "x", OccurrenceInput: OccurrenceInput{Count: 2, ByWeekday: []string{"XX"}}}, model.ErrInvalidRule},
		{"unknown location", "cellar", EventInput{Title: "x"}, model.ErrLocationNotFound},
		{"end before start", "hall", EventInput{Title: "x", OccurrenceInput: OccurrenceInput{
			Start: ts(t, "2026-04-20T10:00"),
			End:   ts(t, "2026-04-20T09:00"),
		}}, model.ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newService(t, nil)
			_, err := s.CreateEvent(ctx, tt.slug, tt.in)
			assert.ErrorIs(t, err, tt.want)

			evs, err := s.Events(ctx, "hall")
			require.NoError(t, err)
			assert.Empty(t, evs)
		})
	}
}

func TestUpcomingAndNextOccurrence(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	ev, err := s.CreateEvent(ctx, "hall", EventInput{
		Title: "Daily",
		OccurrenceInput: OccurrenceInput{
			Start: ts(t, "2026-04-13T08:00"),
			Count: 5,
		},
	})
	require.NoError(t, err)

	up, err := s.UpcomingOccurrences(ctx, "hall", ev.ID)
	require.NoError(t, err)
	require.Len(t, up, 2)
	assert.Equal(t, 16, up[0].Start.Day())

	next, err := s.NextOccurrence(ctx, "hall", ev.ID)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, up[0].ID, next.ID)

	_, err = s.UpcomingOccurrences(ctx, "attic", ev.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestUpdateEventAndOccurrence(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	ev, err := s.CreateEvent(ctx, "hall", EventInput{Title: "Old", OccurrenceInput: OccurrenceInput{Start: ts(t, "2026-04-20T10:00")}})
	require.NoError(t, err)
	oid := ev.Occurrences[0].ID

	title := "New"
	ev, err = s.UpdateEvent(ctx, "hall", ev.ID, EventPatch{Title: &title, Note: "renamed"})
	require.NoError(t, err)
	assert.Equal(t, "New", ev.Title)
	require.Len(t, ev.Notes, 1)

	empty := " "
	_, err = s.UpdateEvent(ctx, "hall", ev.ID, EventPatch{Title: &empty})
	assert.ErrorIs(t, err, model.ErrValidation)

	o, err := s.UpdateOccurrence(ctx, "hall", ev.ID, oid, OccurrencePatch{End: ts(t, "2026-04-20T12:00"), Note: "longer"})
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, o.Duration())
	require.Len(t, o.Notes, 1)
	assert.Equal(t, "longer", o.Notes[0].Body)

	_, err = s.UpdateOccurrence(ctx, "hall", ev.ID, oid, OccurrencePatch{End: ts(t, "2026-04-20T09:00")})
	assert.ErrorIs(t, err, model.ErrInvalidRange)

	_, err = s.Occurrence(ctx, "attic", ev.ID, oid)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestAddAndDeleteOccurrences(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	ev, err := s.CreateEvent(ctx, "hall", EventInput{Title: "Talk", OccurrenceInput: OccurrenceInput{Start: ts(t, "2026-04-20T10:00")}})
	require.NoError(t, err)

	added, err := s.AddOccurrences(ctx, "hall", ev.ID, OccurrenceInput{Start: ts(t, "2026-04-27T10:00"), Freq: "daily", Count: 2})
	require.NoError(t, err)
	require.Len(t, added, 2)

	ev, err = s.Event(ctx, "hall", ev.ID)
	require.NoError(t, err)
	require.Len(t, ev.Occurrences, 3)

	for i, o := range ev.Occurrences {
		gone, err := s.DeleteOccurrence(ctx, "hall", ev.ID, o.ID)
		require.NoError(t, err)
		assert.Equal(t, i == 2, gone)
	}
	_, err = s.Event(ctx, "hall", ev.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMonthViewMergesFeeds(t *testing.T) {
	zone := time.FixedZone("CEST", 2*3600)
	feeds := fakeFeeds{"hall": {
		{SourceID: "ext", UID: "x1", Summary: "Concert", Start: time.Date(2026, 4, 20, 10, 0, 0, 0, zone), End: time.Date(2026, 4, 20, 11, 0, 0, 0, zone)},
		{SourceID: "ext", UID: "x2", Summary: "Next month", Start: time.Date(2026, 5, 20, 10, 0, 0, 0, zone), End: time.Date(2026, 5, 20, 11, 0, 0, 0, zone)},
	}}
	s := newService(t, feeds)
	ctx := context.Background()
	_, err := s.CreateEvent(ctx, "hall", EventInput{Title: "Talk", OccurrenceInput: OccurrenceInput{Start: ts(t, "2026-04-20T10:00")}})
	require.NoError(t, err)

	mv, err := s.MonthView(ctx, "hall", 2026, time.April)
	require.NoError(t, err)
	require.Len(t, mv.Items, 2)
	assert.Equal(t, "Talk", mv.Items[0].Title(), "stored first at equal start")
	assert.Equal(t, "Concert", mv.Items[1].Title())
	assert.Equal(t, time.March, mv.LastMonth.Month())
	assert.Equal(t, time.May, mv.NextMonth.Month())

	var day20 int
	for _, week := range mv.Weeks {
		for _, c := range week {
			if c.Day == 20 {
				day20 = len(c.Items)
			}
		}
	}
	assert.Equal(t, 2, day20)

	_, err = s.MonthView(ctx, "hall", 2026, 13)
	assert.ErrorIs(t, err, model.ErrValidation)
	_, err = s.MonthView(ctx, "cellar", 2026, time.April)
	assert.ErrorIs(t, err, model.ErrLocationNotFound)

	groups, err := s.YearSummary(ctx, "hall", 2026)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, time.May, groups[1].Month.Month())
}

func TestDayGrid(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	for _, start := range []string{"2026-04-15T09:00", "2026-04-15T09:30", "2026-04-15T09:10"} {
		_, err := s.CreateEvent(ctx, "hall", EventInput{Title: "T", OccurrenceInput: OccurrenceInput{Start: ts(t, start)}})
		require.NoError(t, err)
	}

	dv, err := s.TodayGrid(ctx, "hall", true)
	require.NoError(t, err)
	assert.Equal(t, tz.Date{Year: 2026, Month: time.April, Day: 15}, dv.Date)
	assert.Len(t, dv.Items, 3)

	ps := dv.Grid.Placements()
	require.Len(t, ps, 2, "09:10 is off the 15 minute grid")
	assert.Equal(t, 0, ps[0].Column)
	assert.Equal(t, 1, ps[1].Column)
	assert.True(t, ps[0].Linked)
	assert.Equal(t, "evt-hall-even", ps[0].Class)
	assert.Equal(t, 4, dv.Grid.Columns)

	dv, err = s.DayGrid(ctx, "hall", tz.Date{Year: 2026, Month: time.April, Day: 16}, false)
	require.NoError(t, err)
	assert.Empty(t, dv.Grid.Placements())
}

func TestWebcal(t *testing.T) {
	feeds := fakeFeeds{"hall": {{SourceID: "ext", UID: "remote-1", Summary: "Remote",
		Start: time.Date(2026, 4, 21, 8, 0, 0, 0, time.UTC), End: time.Date(2026, 4, 21, 9, 0, 0, 0, time.UTC)}}}
	s := newService(t, feeds)
	ctx := context.Background()
	_, err := s.CreateEvent(ctx, "hall", EventInput{
		Title:           "Talk",
		Description:     "Quarterly",
		Note:            "projector",
		OccurrenceInput: OccurrenceInput{Start: ts(t, "2026-04-20T10:00")},
	})
	require.NoError(t, err)

	out, err := s.Webcal(ctx, "hall")
	require.NoError(t, err)
	assert.Contains(t, out, "METHOD:PUBLISH")
	assert.Contains(t, out, "X-WR-CALNAME:Main Hall")
	assert.Contains(t, out, "X-PUBLISHED-TTL:P")
	assert.Contains(t, out, "SUMMARY:Talk")
	assert.Contains(t, out, "LOCATION:Main Hall")
	assert.Contains(t, out, `DESCRIPTION:Quarterly\nprojector`)
	assert.Contains(t, out, "UID:remote-1")
	assert.Less(t, strings.Index(out, "SUMMARY:Talk"), strings.Index(out, "SUMMARY:Remote"))

	again, err := s.Webcal(ctx, "hall")
	require.NoError(t, err)
	assert.Equal(t, out, again, "UIDs and stamps are stable")

	assert.Equal(t, occurrenceUID(7), occurrenceUID(7))
	assert.NotEqual(t, occurrenceUID(7), occurrenceUID(8))
}

func TestDescriptionSkipsBlankParts(t *testing.T) {
	o := &model.Occurrence{
		Event: &model.Event{Description: "  ", Notes: []model.Note{{Body: "a"}}},
		Notes: []model.Note{{Body: " "}, {Body: "b"}},
	}
	assert.Equal(t, "a\nb", description(o))
	assert.Empty(t, description(&model.Occurrence{}))
}

func TestPrintMonth(t *testing.T) {
	s := newService(t, nil)
	ctx := context.Background()
	_, err := s.CreateEvent(ctx, "hall", EventInput{Title: "Talk", OccurrenceInput: OccurrenceInput{Start: ts(t, "2026-04-20T10:00")}})
	require.NoError(t, err)

	d, err := s.PrintMonth(ctx, "hall", 2026, time.April)
	require.NoError(t, err)
	assert.Equal(t, "Main Hall", d.Location.String())
	assert.Equal(t, time.Monday, d.FirstWeekday)
	assert.Len(t, d.View.Items, 1)
	assert.Equal(t, s.Zone(), d.Zone)

	_, err = s.PrintMonth(ctx, "cellar", 2026, time.April)
	assert.ErrorIs(t, err, model.ErrLocationNotFound)
}
