// Package timeslot lays out one day of bookings as a grid of time rows and
// columns so that concurrent items never share a cell.
package timeslot

import (
	"fmt"
	"slices"
	"time"

	"roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/tz"
)

type Config struct {
	Start      tz.TimeOfDay
	Duration   time.Duration
	Interval   time.Duration
	MinColumns int
}

func (c Config) validate() error {
	if c.Duration <= 0 {
		return fmt.Errorf("duration %s: %w", c.Duration, model.ErrInvalidGridConfig)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval %s: %w", c.Interval, model.ErrInvalidGridConfig)
	}
	if c.MinColumns < 0 {
		return fmt.Errorf("min columns %d: %w", c.MinColumns, model.ErrInvalidGridConfig)
	}
	return nil
}

type Options struct {
	// ShowLinks marks stored items as linkable. Feed entries never are.
	ShowLinks bool
	Styles    Styles
}

// Placement is one item put into the grid. Every cell the item spans
// points at the same Placement.
type Placement struct {
	Item   model.Item
	Column int
	Row    int // first row
	Rows   int // number of rows spanned
	Class  string
	Linked bool
}

type Cell struct {
	Placement *Placement
	// Continued is set on every spanned row after the first.
	Continued bool
}

func (c Cell) Empty() bool { return c.Placement == nil }

type Row struct {
	Time  time.Time
	Cells []Cell
}

type Grid struct {
	Start    time.Time
	End      time.Time
	Interval time.Duration
	Columns  int
	Rows     []Row
}

// Build lays items out on day in zone. Items are placed in start order;
// equal starts keep their input order.
//
// An item whose (clamped) start does not fall on a row boundary is left
// out of the grid.
func Build(day tz.Date, zone *time.Location, items []model.Item, cfg Config, opts Options) (*Grid, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	start := cfg.Start.On(day, zone)
	end := start.Add(cfg.Duration)

	var times []time.Time
	index := make(map[int64]int)
	for t := start; !t.After(end); t = t.Add(cfg.Interval) {
		index[t.UnixNano()] = len(times)
		times = append(times, t)
	}

	ordered := slices.Clone(items)
	slices.SortStableFunc(ordered, func(a, b model.Item) int {
		return a.Start().Compare(b.Start())
	})

	// occupancy[row][col]
	occupancy := make([][]*Placement, len(times))
	var placements []*Placement

	for _, it := range ordered {
		if tz.IsNaive(it.Start()) || tz.IsNaive(it.End()) {
			return nil, fmt.Errorf("grid item %q: %w", it.Title(), model.ErrNaiveTimestamp)
		}
		if !it.End().After(start) {
			continue
		}

		rowKey := it.Start()
		if rowKey.Before(start) {
			rowKey = start
		}
		first, ok := index[rowKey.UnixNano()]
		if !ok {
			log.Debug("timeslot: item off grid", "title", it.Title(), "start", it.Start(), "interval", cfg.Interval)
			continue
		}

		col := 0
		for col < len(occupancy[first]) && occupancy[first][col] != nil {
			col++
		}

		p := &Placement{
			Item:   it,
			Column: col,
			Row:    first,
			Linked: opts.ShowLinks && it.Owned(),
		}
		for r, cur := first, rowKey; r < len(times) && cur.Before(it.End()); r, cur = r+1, cur.Add(cfg.Interval) {
			occupancy[r] = claim(occupancy[r], col, p)
			p.Rows++
		}
		placements = append(placements, p)
	}

	columns := cfg.MinColumns
	for _, row := range occupancy {
		columns = max(columns, len(row))
	}

	g := &Grid{
		Start:    start,
		End:      end,
		Interval: cfg.Interval,
		Columns:  columns,
		Rows:     make([]Row, len(times)),
	}
	cycler := opts.Styles.cycler()
	for r, t := range times {
		cells := make([]Cell, columns)
		for c, p := range occupancy[r] {
			if p == nil {
				continue
			}
			if p.Class == "" {
				p.Class = cycler.next(c, p.Item.LocationKey())
			}
			cells[c] = Cell{Placement: p, Continued: r > p.Row}
		}
		g.Rows[r] = Row{Time: t, Cells: cells}
	}

	log.Debug("timeslot: grid built", "day", day, "rows", len(g.Rows), "columns", columns, "placed", len(placements))
	return g, nil
}

func claim(row []*Placement, col int, p *Placement) []*Placement {
	for len(row) <= col {
		row = append(row, nil)
	}
	row[col] = p
	return row
}

// Placements returns each placed item once, in row-major order.
func (g *Grid) Placements() []*Placement {
	var out []*Placement
	for _, row := range g.Rows {
		for _, c := range row.Cells {
			if c.Placement != nil && !c.Continued {
				out = append(out, c.Placement)
			}
		}
	}
	return out
}
