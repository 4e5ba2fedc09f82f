// Package recurrence turns a start/end pair and an iCalendar-style rule
// into a bounded, ordered list of occurrence spans.
package recurrence

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"roomcal/internal/model"
	"roomcal/internal/tz"
)

type Frequency string

const (
	Yearly   Frequency = "YEARLY"
	Monthly  Frequency = "MONTHLY"
	Weekly   Frequency = "WEEKLY"
	Daily    Frequency = "DAILY"
	Hourly   Frequency = "HOURLY"
	Minutely Frequency = "MINUTELY"
	Secondly Frequency = "SECONDLY"
)

var toRRuleFreq = map[Frequency]rrule.Frequency{
	Yearly:   rrule.YEARLY,
	Monthly:  rrule.MONTHLY,
	Weekly:   rrule.WEEKLY,
	Daily:    rrule.DAILY,
	Hourly:   rrule.HOURLY,
	Minutely: rrule.MINUTELY,
	Secondly: rrule.SECONDLY,
}

// ParseFrequency accepts the RRULE names case-insensitively. An empty
// string means DAILY.
func ParseFrequency(s string) (Frequency, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Daily, nil
	}
	f := Frequency(s)
	if _, ok := toRRuleFreq[f]; !ok {
		return "", fmt.Errorf("%w: unknown frequency %q", model.ErrInvalidRule, s)
	}
	return f, nil
}

// Weekday is a BYDAY entry. N selects the nth weekday inside the period
// (e.g. -1 for "last"); zero means every such weekday.
type Weekday struct {
	Day time.Weekday
	N   int
}

// rrule-go numbers weekdays from Monday.
var rruleWeekdays = [7]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

func (w Weekday) rrule() rrule.Weekday {
	wd := rruleWeekdays[w.Day]
	if w.N != 0 {
		return wd.Nth(w.N)
	}
	return wd
}

var weekdayNames = map[string]time.Weekday{
	"SU": time.Sunday,
	"MO": time.Monday,
	"TU": time.Tuesday,
	"WE": time.Wednesday,
	"TH": time.Thursday,
	"FR": time.Friday,
	"SA": time.Saturday,
}

// ParseWeekday reads a BYDAY token such as "MO", "2TU" or "-1FR".
func ParseWeekday(s string) (Weekday, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return Weekday{}, fmt.Errorf("%w: bad weekday %q", model.ErrInvalidRule, s)
	}
	day, ok := weekdayNames[s[len(s)-2:]]
	if !ok {
		return Weekday{}, fmt.Errorf("%w: bad weekday %q", model.ErrInvalidRule, s)
	}
	w := Weekday{Day: day}
	if prefix := s[:len(s)-2]; prefix != "" {
		n, err := strconv.Atoi(prefix)
		if err != nil || n == 0 || n < -53 || n > 53 {
			return Weekday{}, fmt.Errorf("%w: bad weekday %q", model.ErrInvalidRule, s)
		}
		w.N = n
	}
	return w, nil
}

func weekdayFromRRule(wd rrule.Weekday) Weekday {
	return Weekday{Day: time.Weekday((wd.Day() + 1) % 7), N: wd.N()}
}

// Rule is a transient recurrence description. Without Count and Until
// it describes a single occurrence.
type Rule struct {
	Freq       Frequency
	Interval   int
	Count      int
	Until      time.Time
	ByWeekday  []Weekday
	ByMonth    []int
	ByMonthDay []int
	BySetPos   []int
	WeekStart  *time.Weekday
}

// Bounded reports whether the rule carries a count or until bound.
func (r Rule) Bounded() bool {
	return r.Count > 0 || !r.Until.IsZero()
}

func (r Rule) validate() (rrule.Frequency, error) {
	f, err := ParseFrequency(string(r.Freq))
	if err != nil {
		return 0, err
	}
	if r.Interval < 0 {
		return 0, fmt.Errorf("%w: negative interval %d", model.ErrInvalidRule, r.Interval)
	}
	if r.Count < 0 {
		return 0, fmt.Errorf("%w: negative count %d", model.ErrInvalidRule, r.Count)
	}
	return toRRuleFreq[f], nil
}

// ParseRule parses RRULE text such as "FREQ=WEEKLY;COUNT=4;BYDAY=MO,WE".
// An UNTIL without a trailing Z is read as naive local time.
func ParseRule(text string) (Rule, error) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "RRULE:")
	opt, err := rrule.StrToROptionInLocation(text, tz.Floating)
	if err != nil {
		return Rule{}, fmt.Errorf("%w: %v", model.ErrInvalidRule, err)
	}

	r := Rule{
		Interval:   opt.Interval,
		Count:      opt.Count,
		Until:      opt.Until,
		ByMonth:    opt.Bymonth,
		ByMonthDay: opt.Bymonthday,
		BySetPos:   opt.Bysetpos,
	}
	for f, rf := range toRRuleFreq {
		if rf == opt.Freq {
			r.Freq = f
		}
	}
	for _, wd := range opt.Byweekday {
		r.ByWeekday = append(r.ByWeekday, weekdayFromRRule(wd))
	}
	if strings.Contains(strings.ToUpper(text), "WKST=") {
		ws := weekdayFromRRule(opt.Wkst).Day
		r.WeekStart = &ws
	}
	return r, nil
}
