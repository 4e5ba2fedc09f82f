package web

import (
	"time"

	"roomcal/internal/booking"
	"roomcal/internal/calendar"
	"roomcal/internal/model"
	"roomcal/internal/timeslot"
)

type locationDTO struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

type noteDTO struct {
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type occurrenceDTO struct {
	ID      uint      `json:"id"`
	EventID uint      `json:"event_id"`
	Title   string    `json:"title,omitempty"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Notes   []noteDTO `json:"notes,omitempty"`
}

type eventDTO struct {
	ID          uint            `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Location    string          `json:"location"`
	Notes       []noteDTO       `json:"notes,omitempty"`
	Occurrences []occurrenceDTO `json:"occurrences,omitempty"`
	Next        *occurrenceDTO  `json:"next,omitempty"`
}

// itemDTO is one entry of a calendar view, stored or from a feed.
type itemDTO struct {
	Kind         string    `json:"kind"`
	Title        string    `json:"title"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Location     string    `json:"location,omitempty"`
	EventID      uint      `json:"event_id,omitempty"`
	OccurrenceID uint      `json:"occurrence_id,omitempty"`
	SourceID     string    `json:"source_id,omitempty"`
	UID          string    `json:"uid,omitempty"`
	AllDay       bool      `json:"all_day,omitempty"`
}

type dayDTO struct {
	Day   int       `json:"day"`
	Items []itemDTO `json:"items"`
}

type monthDTO struct {
	Location  string     `json:"location"`
	Month     string     `json:"month"`
	LastMonth string     `json:"last_month"`
	NextMonth string     `json:"next_month"`
	Weeks     [][]dayDTO `json:"weeks"`
}

type monthGroupDTO struct {
	Month string    `json:"month"`
	Items []itemDTO `json:"items"`
}

type yearDTO struct {
	Location string          `json:"location"`
	Year     int             `json:"year"`
	Months   []monthGroupDTO `json:"months"`
}

type placementDTO struct {
	Item   itemDTO `json:"item"`
	Column int     `json:"column"`
	Row    int     `json:"row"`
	Rows   int     `json:"rows"`
	Class  string  `json:"class"`
	Linked bool    `json:"linked"`
}

// cellDTO points into gridDTO.Placements; empty cells are null.
type cellDTO struct {
	Placement int  `json:"placement"`
	Continued bool `json:"continued,omitempty"`
}

type rowDTO struct {
	Time  time.Time  `json:"time"`
	Cells []*cellDTO `json:"cells"`
}

type gridDTO struct {
	Location   string         `json:"location"`
	Date       string         `json:"date"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	Interval   string         `json:"interval"`
	Columns    int            `json:"columns"`
	Placements []placementDTO `json:"placements"`
	Rows       []rowDTO       `json:"rows"`
}

const monthLayout = "2006-01"

func toLocation(l model.Location) locationDTO {
	return locationDTO{Slug: l.Slug, Name: l.String()}
}

func toNotes(notes []model.Note) []noteDTO {
	if len(notes) == 0 {
		return nil
	}
	out := make([]noteDTO, len(notes))
	for i, n := range notes {
		out[i] = noteDTO{Body: n.Body, CreatedAt: n.CreatedAt}
	}
	return out
}

func toOccurrence(o *model.Occurrence) occurrenceDTO {
	return occurrenceDTO{
		ID:      o.ID,
		EventID: o.EventID,
		Title:   o.Title(),
		Start:   o.Start,
		End:     o.End,
		Notes:   toNotes(o.Notes),
	}
}

func toOccurrences(occs []model.Occurrence) []occurrenceDTO {
	out := make([]occurrenceDTO, len(occs))
	for i := range occs {
		out[i] = toOccurrence(&occs[i])
	}
	return out
}

func toEvent(ev *model.Event) eventDTO {
	return eventDTO{
		ID:          ev.ID,
		Title:       ev.Title,
		Description: ev.Description,
		Location:    ev.Location.Slug,
		Notes:       toNotes(ev.Notes),
		Occurrences: toOccurrences(ev.Occurrences),
	}
}

func toItem(it model.Item) itemDTO {
	d := itemDTO{
		Kind:     it.Kind().String(),
		Title:    it.Title(),
		Start:    it.Start(),
		End:      it.End(),
		Location: it.LocationKey(),
	}
	if o, ok := it.Occurrence(); ok {
		d.EventID = o.EventID
		d.OccurrenceID = o.ID
	}
	if e, ok := it.External(); ok {
		d.SourceID = e.SourceID
		d.UID = e.UID
		d.AllDay = e.AllDay
	}
	return d
}

func toItems(items []model.Item) []itemDTO {
	out := make([]itemDTO, len(items))
	for i, it := range items {
		out[i] = toItem(it)
	}
	return out
}

func toMonth(slug string, mv calendar.MonthView) monthDTO {
	d := monthDTO{
		Location:  slug,
		Month:     mv.ThisMonth.Format(monthLayout),
		LastMonth: mv.LastMonth.Format(monthLayout),
		NextMonth: mv.NextMonth.Format(monthLayout),
		Weeks:     make([][]dayDTO, len(mv.Weeks)),
	}
	for i, week := range mv.Weeks {
		d.Weeks[i] = make([]dayDTO, len(week))
		for j, c := range week {
			d.Weeks[i][j] = dayDTO{Day: c.Day, Items: toItems(c.Items)}
		}
	}
	return d
}

func toYear(slug string, year int, groups []calendar.MonthGroup) yearDTO {
	d := yearDTO{Location: slug, Year: year, Months: make([]monthGroupDTO, len(groups))}
	for i, g := range groups {
		d.Months[i] = monthGroupDTO{Month: g.Month.Format(monthLayout), Items: toItems(g.Items)}
	}
	return d
}

func toGrid(dv *booking.DayView) gridDTO {
	g := dv.Grid
	d := gridDTO{
		Location: dv.Location.Slug,
		Date:     dv.Date.String(),
		Start:    g.Start,
		End:      g.End,
		Interval: g.Interval.String(),
		Columns:  g.Columns,
		Rows:     make([]rowDTO, len(g.Rows)),
	}

	index := make(map[*timeslot.Placement]int)
	for _, p := range g.Placements() {
		index[p] = len(d.Placements)
		d.Placements = append(d.Placements, placementDTO{
			Item:   toItem(p.Item),
			Column: p.Column,
			Row:    p.Row,
			Rows:   p.Rows,
			Class:  p.Class,
			Linked: p.Linked,
		})
	}
	for r, row := range g.Rows {
		cells := make([]*cellDTO, len(row.Cells))
		for c, cell := range row.Cells {
			if cell.Empty() {
				continue
			}
			cells[c] = &cellDTO{Placement: index[cell.Placement], Continued: cell.Continued}
		}
		d.Rows[r] = rowDTO{Time: row.Time, Cells: cells}
	}
	return d
}
