package recurrence

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"roomcal/internal/model"
	"roomcal/internal/tz"
)

const DefaultMaxOccurrences = 5000

// Span is one generated [Start, End) pair.
type Span struct {
	Start time.Time
	End   time.Time
}

func (s Span) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Expander materializes rules into spans. It holds no mutable state and
// may be shared between goroutines.
type Expander struct {
	tz  *tz.Normalizer
	max int
}

// NewExpander returns an Expander that refuses rules producing more than
// maxOccurrences spans (DefaultMaxOccurrences when <= 0).
func NewExpander(n *tz.Normalizer, maxOccurrences int) *Expander {
	if maxOccurrences <= 0 {
		maxOccurrences = DefaultMaxOccurrences
	}
	return &Expander{tz: n, max: maxOccurrences}
}

// Expand returns the spans described by start, end and rule in ascending
// order.
//
// A rule without Count and Until yields exactly [start, end). Otherwise
// instants are generated on naive wall clock time and re-attached to the
// zone one by one, so a weekly 09:00 booking stays at 09:00 across DST
// changes.
func (x *Expander) Expand(start, end time.Time, rule Rule) ([]Span, error) {
	if !end.After(start) {
		return nil, fmt.Errorf("expand %s..%s: %w", start.Format(time.RFC3339), end.Format(time.RFC3339), model.ErrInvalidRange)
	}
	freq, err := rule.validate()
	if err != nil {
		return nil, err
	}
	if !rule.Bounded() {
		return []Span{{Start: start, End: end}}, nil
	}

	zone := x.tz.DisplayZone()
	naiveStart := x.tz.ToNaiveIn(start, zone)
	naiveEnd := x.tz.ToNaiveIn(end, zone)
	delta := naiveEnd.Sub(naiveStart)
	if delta <= 0 {
		// The end sits in a repeated fall-back hour; keep the real length.
		delta = end.Sub(start)
	}

	opt := rrule.ROption{
		Freq:       freq,
		Dtstart:    naiveStart,
		Interval:   rule.Interval,
		Count:      rule.Count,
		Bymonth:    rule.ByMonth,
		Bymonthday: rule.ByMonthDay,
		Bysetpos:   rule.BySetPos,
	}
	if !rule.Until.IsZero() {
		opt.Until = x.tz.ToNaiveIn(rule.Until, zone)
	}
	for _, wd := range rule.ByWeekday {
		opt.Byweekday = append(opt.Byweekday, wd.rrule())
	}
	if rule.WeekStart != nil {
		opt.Wkst = Weekday{Day: *rule.WeekStart}.rrule()
	}

	r, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidRule, err)
	}

	spans := make([]Span, 0)
	next := r.Iterator()
	for {
		t, ok := next()
		if !ok {
			break
		}
		if len(spans) == x.max {
			return nil, fmt.Errorf("%w: more than %d occurrences", model.ErrInvalidRule, x.max)
		}
		s := x.tz.Resolve(t)
		e := x.tz.Resolve(t.Add(delta))
		if !e.After(s) {
			// Start fell into a spring-forward gap and was pushed onto
			// the same instant as the end.
			e = s.Add(delta)
		}
		spans = append(spans, Span{Start: s, End: e})
	}
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: rule yields no occurrences", model.ErrInvalidRule)
	}
	return spans, nil
}
