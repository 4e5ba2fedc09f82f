package booking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"roomcal/internal/model"
	"roomcal/internal/recurrence"
	"roomcal/internal/tz"
)

// Timestamp accepts RFC 3339 values and offset-less local values
// ("2006-01-02T15:04[:05]", "2006-01-02 15:04"). The latter are kept naive
// and resolved against the configured zone.
type Timestamp struct {
	time.Time
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Timestamp{t}, nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, tz.Floating); err == nil {
			return Timestamp{t}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("%w: invalid timestamp %q", model.ErrValidation, s)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339))
}

// OccurrenceInput describes one or more occurrences. Without Start the
// current hour is used; without End, Start plus the default duration.
// Either RRule text or the structured fields describe the recurrence.
type OccurrenceInput struct {
	Start      *Timestamp `json:"start"`
	End        *Timestamp `json:"end"`
	RRule      string     `json:"rrule" validate:"max=512"`
	Freq       string     `json:"freq" validate:"omitempty,oneof=YEARLY MONTHLY WEEKLY DAILY HOURLY MINUTELY SECONDLY yearly monthly weekly daily hourly minutely secondly"`
	Interval   int        `json:"interval" validate:"gte=0"`
	Count      int        `json:"count" validate:"gte=0"`
	Until      *Timestamp `json:"until"`
	ByWeekday  []string   `json:"by_weekday" validate:"dive,min=2,max=4"`
	ByMonth    []int      `json:"by_month" validate:"dive,min=1,max=12"`
	ByMonthDay []int      `json:"by_month_day" validate:"dive,min=-31,max=31,ne=0"`
}

// EventInput creates an event and its first occurrences.
type EventInput struct {
	Title       string `json:"title" validate:"required,max=32"`
	Description string `json:"description" validate:"max=100"`
	Note        string `json:"note" validate:"max=2000"`
	OccurrenceInput
}

type EventPatch struct {
	Title       *string `json:"title" validate:"omitempty,min=1,max=32"`
	Description *string `json:"description" validate:"omitempty,max=100"`
	Note        string  `json:"note" validate:"max=2000"`
}

type OccurrencePatch struct {
	Start *Timestamp `json:"start"`
	End   *Timestamp `json:"end"`
	Note  string     `json:"note" validate:"max=2000"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// check runs struct validation and folds the result into ErrValidation.
func (s *Service) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%w: %v", model.ErrValidation, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msg := fe.Field() + " failed " + fe.Tag()
		if fe.Param() != "" {
			msg += "=" + fe.Param()
		}
		msgs = append(msgs, msg)
	}
	return fmt.Errorf("%w: %s", model.ErrValidation, strings.Join(msgs, "; "))
}

// rule builds the recurrence rule of in.
func (s *Service) rule(in OccurrenceInput) (recurrence.Rule, error) {
	if strings.TrimSpace(in.RRule) != "" {
		r, err := recurrence.ParseRule(in.RRule)
		if err != nil {
			return r, err
		}
		if !r.Until.IsZero() {
			r.Until = s.tz.Resolve(r.Until)
		}
		return r, nil
	}

	freq, err := recurrence.ParseFrequency(in.Freq)
	if err != nil {
		return recurrence.Rule{}, err
	}
	r := recurrence.Rule{
		Freq:       freq,
		Interval:   in.Interval,
		Count:      in.Count,
		ByMonth:    in.ByMonth,
		ByMonthDay: in.ByMonthDay,
	}
	if in.Until != nil {
		r.Until = s.tz.Resolve(in.Until.Time)
	}
	for _, w := range in.ByWeekday {
		wd, err := recurrence.ParseWeekday(w)
		if err != nil {
			return r, err
		}
		r.ByWeekday = append(r.ByWeekday, wd)
	}
	return r, nil
}

// span resolves the start and end of in, applying the defaults.
func (s *Service) span(in OccurrenceInput) (time.Time, time.Time) {
	var start time.Time
	if in.Start != nil {
		start = s.tz.Resolve(in.Start.Time)
	} else {
		now := s.now()
		start = time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	}
	end := start.Add(s.settings.DefaultOccurrenceDuration)
	if in.End != nil {
		end = s.tz.Resolve(in.End.Time)
	}
	return start, end
}
