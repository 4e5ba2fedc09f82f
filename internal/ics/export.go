package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	goical "github.com/emersion/go-ical"
)

// ExportEvent is one VEVENT of a published calendar.
type ExportEvent struct {
	UID         string
	Start       time.Time
	End         time.Time
	Summary     string
	Location    string
	Description string
}

// Export renders a METHOD:PUBLISH calendar named name. DTSTAMP is the
// event start so the output is stable across requests. An empty
// description is left out.
func Export(name string, ttl time.Duration, events []ExportEvent) string {
	cal := ical.NewCalendar()
	cal.SetProductId("-//roomcal//roomcal//EN")
	cal.SetMethod(ical.MethodPublish)
	cal.SetXWRCalName(name)
	if ttl > 0 {
		prop := goical.NewProp("X-PUBLISHED-TTL")
		prop.SetDuration(ttl)
		cal.SetXPublishedTTL(prop.Value)
	}

	for _, e := range events {
		ve := cal.AddEvent(e.UID)
		ve.SetDtStampTime(e.Start)
		ve.SetStartAt(e.Start)
		ve.SetEndAt(e.End)
		ve.SetSummary(e.Summary)
		if e.Location != "" {
			ve.SetLocation(e.Location)
		}
		if d := strings.TrimSpace(e.Description); d != "" {
			ve.SetDescription(d)
		}
	}
	return cal.Serialize()
}
