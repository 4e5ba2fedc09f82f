package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"roomcal/internal/calendar"
	"roomcal/internal/ics"
	"roomcal/internal/tz"
)

type fakeSource struct {
	id     string
	events []ics.VEvent
	err    error
	calls  int
}

func (f *fakeSource) ID() string { return f.id }

func (f *fakeSource) Events(context.Context, calendar.Window) ([]ics.VEvent, error) {
	f.calls++
	return f.events, f.err
}

func soon(summary string, in time.Duration) ics.VEvent {
	start := time.Now().UTC().Truncate(time.Hour).Add(in)
	return ics.VEvent{UID: summary, Summary: summary, Start: start, End: start.Add(time.Hour)}
}

func TestProviderRefreshAndEntries(t *testing.T) {
	a := &fakeSource{id: "a", events: []ics.VEvent{soon("a1", 24*time.Hour)}}
	b := &fakeSource{id: "b", events: []ics.VEvent{soon("b1", 48*time.Hour), soon("too far", 10000*time.Hour)}}
	p := NewProvider(tz.New(time.UTC, true), Options{}, map[string][]Source{
		"room-a": {a, b},
		"room-b": {b},
	})

	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, 1, b.calls, "shared sources are fetched once")
	assert.False(t, p.Updated().IsZero())

	got, err := p.Entries(context.Background(), "room-a")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "a1", got[0].Summary)
	assert.Equal(t, "b", got[1].SourceID)

	got, err = p.Entries(context.Background(), "unbound")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestProviderKeepsEntriesOfFailingSource(t *testing.T) {
	src := &fakeSource{id: "a", events: []ics.VEvent{soon("kept", time.Hour)}}
	p := NewProvider(tz.New(time.UTC, true), Options{}, map[string][]Source{"room": {src}})
	require.NoError(t, p.Refresh(context.Background()))

	src.err = errors.New("boom")
	err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source a")

	got, err := p.Entries(context.Background(), "room")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].Summary)
}

func TestProviderStartRejectsBadSchedule(t *testing.T) {
	p := NewProvider(tz.New(time.UTC, true), Options{Schedule: "every now and then"}, nil)
	assert.Error(t, p.Start(context.Background()))
}

func TestProviderStart(t *testing.T) {
	src := &fakeSource{id: "a", events: []ics.VEvent{soon("x", time.Hour)}}
	p := NewProvider(tz.New(time.UTC, true), Options{}, map[string][]Source{"room": {src}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, p.Start(ctx))
	assert.Equal(t, 1, src.calls)
}

type blockingSource struct {
	id      string
	started chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingSource) ID() string { return b.id }

func (b *blockingSource) Events(context.Context, calendar.Window) ([]ics.VEvent, error) {
	b.calls.Add(1)
	b.started <- struct{}{}
	<-b.release
	return nil, nil
}

func TestRefreshJobSkipsOverlappingRuns(t *testing.T) {
	src := &blockingSource{id: "slow", started: make(chan struct{}, 2), release: make(chan struct{})}
	p := NewProvider(tz.New(time.UTC, true), Options{}, map[string][]Source{"room": {src}})
	job := p.refreshJob(context.Background())

	done := make(chan struct{})
	go func() {
		job.Run()
		close(done)
	}()
	<-src.started

	job.Run() // returns at once while the first run is blocked
	close(src.release)
	<-done

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestICSSource(t *testing.T) {
	start := time.Now().UTC().Add(2 * time.Hour).Format("20060102T150405Z")
	end := time.Now().UTC().Add(3 * time.Hour).Format("20060102T150405Z")
	body := fmt.Sprintf("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//t//t//EN\r\n"+
		"BEGIN:VEVENT\r\nUID:one\r\nSUMMARY:Remote\r\nDTSTART:%s\r\nDTEND:%s\r\nEND:VEVENT\r\n"+
		"END:VCALENDAR\r\n", start, end)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	src := NewICSSource(ics.NewFetcher(t.TempDir(), srv.Client()), ics.Request{ID: "remote", URL: srv.URL})
	p := NewProvider(tz.New(time.UTC, true), Options{}, map[string][]Source{"room": {src}})
	require.NoError(t, p.Refresh(context.Background()))

	got, err := p.Entries(context.Background(), "room")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Remote", got[0].Summary)
	assert.Equal(t, "remote", got[0].SourceID)
}

func TestCalDAVSourceFiltersCalendars(t *testing.T) {
	s := NewCalDAVSource("dav", "https://dav.example.com", "u", "p", []string{"Rooms"}, nil)
	assert.True(t, s.wants("rooms"))
	assert.False(t, s.wants("Personal"))
	assert.True(t, NewCalDAVSource("dav", "https://dav.example.com", "", "", nil, nil).wants("anything"))
}
