// Package booking is the application layer: it resolves locations, turns
// requests into stored events and builds the calendar views.
package booking

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"roomcal/internal/model"
	"roomcal/internal/recurrence"
	"roomcal/internal/store"
	"roomcal/internal/tz"
)

// Store is the persistence the service needs; *store.Store implements it.
type Store interface {
	Locations(ctx context.Context, activeOnly bool) ([]model.Location, error)
	LocationBySlug(ctx context.Context, slug string) (*model.Location, error)

	CreateEvent(ctx context.Context, ev *model.Event, occs []model.Occurrence, note string) error
	Event(ctx context.Context, locationID, id uint) (*model.Event, error)
	Events(ctx context.Context, locationID uint) ([]model.Event, error)
	UpdateEvent(ctx context.Context, ev *model.Event) error
	AddOccurrences(ctx context.Context, eventID uint, occs []model.Occurrence) error

	Occurrence(ctx context.Context, eventID, id uint) (*model.Occurrence, error)
	UpdateOccurrence(ctx context.Context, o *model.Occurrence) error
	DeleteOccurrence(ctx context.Context, eventID, id uint) (bool, error)
	AddNote(ctx context.Context, n *model.Note) error

	QueryOccurrences(ctx context.Context, q store.OccurrenceQuery) ([]model.Occurrence, error)
}

// Feeds serves the external entries bound to a location.
type Feeds interface {
	Entries(ctx context.Context, slug string) ([]model.ExternalEntry, error)
}

// Settings replaces the global calendar settings of older deployments.
type Settings struct {
	DefaultOccurrenceDuration time.Duration
	TimeslotStart             tz.TimeOfDay
	TimeslotEndDelta          time.Duration
	TimeslotInterval          time.Duration
	MinColumns                int
	// FirstWeekday overrides Monday as the first column of month grids.
	FirstWeekday   *time.Weekday
	MaxOccurrences int
	// PublishedTTL is advertised to webcal subscribers.
	PublishedTTL time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		DefaultOccurrenceDuration: time.Hour,
		TimeslotStart:             tz.TimeOfDay{Hour: 9},
		TimeslotEndDelta:          8 * time.Hour,
		TimeslotInterval:          15 * time.Minute,
		MinColumns:                4,
		MaxOccurrences:            recurrence.DefaultMaxOccurrences,
		PublishedTTL:              15 * time.Minute,
	}
}

func (s Settings) firstWeekday() time.Weekday {
	if s.FirstWeekday != nil {
		return *s.FirstWeekday
	}
	return time.Monday
}

type Service struct {
	store    Store
	feeds    Feeds
	tz       *tz.Normalizer
	expander *recurrence.Expander
	validate *validator.Validate
	settings Settings
	now      func() time.Time
}

// New wires a Service. feeds may be nil when no location has external
// calendars.
func New(st Store, feeds Feeds, n *tz.Normalizer, settings Settings) *Service {
	return &Service{
		store:    st,
		feeds:    feeds,
		tz:       n,
		expander: recurrence.NewExpander(n, settings.MaxOccurrences),
		validate: newValidator(),
		settings: settings,
		now:      n.Now,
	}
}

func (s *Service) Settings() Settings { return s.settings }

// Zone is the zone all returned timestamps are expressed in.
func (s *Service) Zone() *time.Location { return s.tz.DisplayZone() }

func (s *Service) Today() tz.Date { return tz.DateOf(s.now()) }

func (s *Service) Locations(ctx context.Context) ([]model.Location, error) {
	return s.store.Locations(ctx, true)
}

// Location resolves an active location by slug.
func (s *Service) Location(ctx context.Context, slug string) (*model.Location, error) {
	return s.store.LocationBySlug(ctx, slug)
}

func (s *Service) external(ctx context.Context, slug string) ([]model.ExternalEntry, error) {
	if s.feeds == nil {
		return nil, nil
	}
	return s.feeds.Entries(ctx, slug)
}

// local converts stored occurrences into the display zone in place.
func (s *Service) local(occs []model.Occurrence) []model.Occurrence {
	zone := s.Zone()
	for i := range occs {
		occs[i] = occs[i].In(zone)
	}
	return occs
}
