// Package tz converts between naive (wall-clock only) and zone-aware
// timestamps.
//
// Go has no naive time type, so a naive timestamp is a time.Time whose
// location is Floating. Its wall clock fields carry the value; its absolute
// instant is meaningless until it is attached to a real zone.
package tz

import (
	"time"
)

// Floating is the sentinel location of naive timestamps.
var Floating = time.FixedZone("FLOATING", 0)

// IsNaive reports whether t is a floating timestamp.
func IsNaive(t time.Time) bool {
	return t.Location() == Floating
}

// Naive builds a floating timestamp from wall clock fields.
func Naive(year int, month time.Month, day, hour, min, sec int) time.Time {
	return time.Date(year, month, day, hour, min, sec, 0, Floating)
}

// Normalizer attaches and strips zone information using a process-wide
// default zone. When disabled, ToAware leaves its input untouched.
type Normalizer struct {
	zone    *time.Location
	enabled bool
}

// New returns a Normalizer defaulting to zone (time.Local when nil).
func New(zone *time.Location, enabled bool) *Normalizer {
	if zone == nil {
		zone = time.Local
	}
	return &Normalizer{zone: zone, enabled: enabled}
}

func (n *Normalizer) Zone() *time.Location { return n.zone }

func (n *Normalizer) Enabled() bool { return n.enabled }

// DisplayZone is the zone used to build calendar windows. With zone
// awareness disabled wall clock values are kept in UTC.
func (n *Normalizer) DisplayZone() *time.Location {
	if !n.enabled {
		return time.UTC
	}
	return n.zone
}

// ToAware attaches the default zone to a naive timestamp.
func (n *Normalizer) ToAware(t time.Time) time.Time {
	return n.ToAwareIn(t, nil)
}

// ToAwareIn attaches zone (or the default zone when nil) to a naive
// timestamp. Aware input is returned unchanged.
func (n *Normalizer) ToAwareIn(t time.Time, zone *time.Location) time.Time {
	if !n.enabled || !IsNaive(t) {
		return t
	}
	if zone == nil {
		zone = n.zone
	}
	return rezone(t, zone)
}

// ToNaive converts t into the default zone and drops the zone.
func (n *Normalizer) ToNaive(t time.Time) time.Time {
	return n.ToNaiveIn(t, nil)
}

// ToNaiveIn converts t into zone (or the default zone when nil) and drops
// the zone. Naive input is returned unchanged.
func (n *Normalizer) ToNaiveIn(t time.Time, zone *time.Location) time.Time {
	if IsNaive(t) {
		return t
	}
	if zone == nil {
		zone = n.zone
	}
	return rezone(t.In(zone), Floating)
}

// DateToAware promotes a date to midnight in the default zone.
func (n *Normalizer) DateToAware(d Date) time.Time {
	if !n.enabled {
		return d.In(Floating)
	}
	return d.In(n.zone)
}

// Resolve returns an aware timestamp no matter the process setting: naive
// values that ToAware keeps are pinned to DisplayZone.
func (n *Normalizer) Resolve(t time.Time) time.Time {
	t = n.ToAware(t)
	if IsNaive(t) {
		return rezone(t, n.DisplayZone())
	}
	return t
}

// Now returns the current time in DisplayZone.
func (n *Normalizer) Now() time.Time {
	if !n.enabled {
		return rezone(time.Now(), time.UTC)
	}
	return time.Now().In(n.zone)
}

func rezone(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}
