package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Location is a bookable room. Locations are declared in config and are
// deactivated rather than deleted.
type Location struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Slug      string    `gorm:"uniqueIndex;size:64;not null" json:"slug"`
	Name      string    `gorm:"size:128" json:"name"`
	Active    bool      `gorm:"not null" json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (l Location) String() string {
	if l.Name != "" {
		return l.Name
	}
	return l.Slug
}

// Event is a logical booking. It owns one or more occurrences; an event
// left without occurrences is removed by the store.
type Event struct {
	ID          uint         `gorm:"primaryKey"`
	Title       string       `gorm:"size:32;not null"`
	Description string       `gorm:"size:100"`
	LocationID  uint         `gorm:"index;not null"`
	Location    Location     `gorm:"constraint:OnDelete:RESTRICT"`
	Notes       []Note       `gorm:"polymorphic:Owner"`
	Occurrences []Occurrence `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Occurrence is one concrete time span of an Event.
type Occurrence struct {
	ID      uint      `gorm:"primaryKey"`
	Start   time.Time `gorm:"column:start_time;index;not null"`
	End     time.Time `gorm:"column:end_time;index;not null"`
	EventID uint      `gorm:"index;not null"`
	Event   *Event    `gorm:"constraint:OnDelete:CASCADE"`
	Notes   []Note    `gorm:"polymorphic:Owner"`
}

// Title returns the owning event's title, or "" if the event is not loaded.
func (o *Occurrence) Title() string {
	if o.Event == nil {
		return ""
	}
	return o.Event.Title
}

// Duration returns End - Start.
func (o *Occurrence) Duration() time.Duration {
	return o.End.Sub(o.Start)
}

func (o *Occurrence) String() string {
	return fmt.Sprintf("%s: %s", o.Title(), o.Start.Format(time.RFC3339))
}

// BeforeSave enforces End > Start and stores instants in UTC so that
// sqlite text comparison matches chronological order.
func (o *Occurrence) BeforeSave(_ *gorm.DB) error {
	if !o.End.After(o.Start) {
		return fmt.Errorf("occurrence %s..%s: %w", o.Start.Format(time.RFC3339), o.End.Format(time.RFC3339), ErrInvalidRange)
	}
	o.Start = o.Start.UTC()
	o.End = o.End.UTC()
	return nil
}

// In returns a copy of o with Start/End converted into loc.
func (o Occurrence) In(loc *time.Location) Occurrence {
	o.Start = o.Start.In(loc)
	o.End = o.End.In(loc)
	return o
}

// Note owner types, as gorm's polymorphic association writes them.
const (
	OwnerEvent      = "events"
	OwnerOccurrence = "occurrences"
)

// Note is free text attached to an Event or an Occurrence.
type Note struct {
	ID        uint   `gorm:"primaryKey"`
	Body      string `gorm:"column:note;not null"`
	OwnerID   uint   `gorm:"index:idx_note_owner"`
	OwnerType string `gorm:"index:idx_note_owner;size:32"`
	CreatedAt time.Time
}

func (n Note) String() string {
	return n.Body
}

// ExternalEntry is a read-only entry sourced from a foreign calendar feed.
// It is rebuilt on every refresh and never persisted.
type ExternalEntry struct {
	SourceID    string
	UID         string
	Summary     string
	Description string
	Location    string
	AllDay      bool
	Start       time.Time
	End         time.Time
}
