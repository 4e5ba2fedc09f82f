package printer

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"roomcal/internal/calendar"
	"roomcal/internal/model"
)

//go:embed templates/month.html
var templateFS embed.FS

var monthTmpl = template.Must(template.New("month.html").Funcs(template.FuncMap{
	"clock": func(t time.Time) string { return t.Format("15:04") },
}).ParseFS(templateFS, "templates/month.html"))

// PrintData is everything a month sheet shows.
type PrintData struct {
	Location     model.Location
	View         calendar.MonthView
	FirstWeekday time.Weekday
	// Zone renders item times; nil keeps the zone of each item.
	Zone    *time.Location
	Printed time.Time
}

type sheet struct {
	PrintData
	Title    string
	Weekdays []string
	Weeks    [][]sheetDay
}

type sheetDay struct {
	Day   int
	Items []sheetItem
}

type sheetItem struct {
	Start    time.Time
	End      time.Time
	Title    string
	Where    string
	External bool
}

// RenderMonthHTML writes a self-contained HTML page for one month of one
// location.
func RenderMonthHTML(w io.Writer, d PrintData) error {
	s := sheet{
		PrintData: d,
		Title:     fmt.Sprintf("%s - %s", d.Location, d.View.ThisMonth.Format("January 2006")),
	}
	for i := range 7 {
		s.Weekdays = append(s.Weekdays, time.Weekday((int(d.FirstWeekday)+i)%7).String())
	}
	for _, week := range d.View.Weeks {
		row := make([]sheetDay, len(week))
		for i, c := range week {
			row[i] = sheetDay{Day: c.Day}
			for _, it := range c.Items {
				row[i].Items = append(row[i].Items, d.item(it))
			}
		}
		s.Weeks = append(s.Weeks, row)
	}
	if err := monthTmpl.Execute(w, s); err != nil {
		return fmt.Errorf("printer: render month: %w", err)
	}
	return nil
}

func (d PrintData) item(it model.Item) sheetItem {
	start, end := it.Start(), it.End()
	if d.Zone != nil {
		start, end = start.In(d.Zone), end.In(d.Zone)
	}
	si := sheetItem{Start: start, End: end, Title: it.Title(), External: !it.Owned()}
	if e, ok := it.External(); ok && e.Location != "" {
		si.Where = e.Location
	}
	return si
}
