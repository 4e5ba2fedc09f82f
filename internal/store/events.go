package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roomcal/internal/model"
)

// CreateEvent stores ev together with its occurrences and an optional note
// in one transaction. At least one occurrence is required.
func (s *Store) CreateEvent(ctx context.Context, ev *model.Event, occs []model.Occurrence, note string) error {
	if len(occs) == 0 {
		return fmt.Errorf("event %q has no occurrences: %w", ev.Title, model.ErrValidation)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(ev).Error; err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		for i := range occs {
			occs[i].ID = 0
			occs[i].EventID = ev.ID
		}
		if err := tx.Omit(clause.Associations).Create(&occs).Error; err != nil {
			return fmt.Errorf("create occurrences: %w", err)
		}
		ev.Occurrences = occs

		if note = strings.TrimSpace(note); note != "" {
			n := model.Note{Body: note, OwnerID: ev.ID, OwnerType: model.OwnerEvent}
			if err := tx.Create(&n).Error; err != nil {
				return fmt.Errorf("create note: %w", err)
			}
			ev.Notes = append(ev.Notes, n)
		}
		return nil
	})
}

func byTime(db *gorm.DB) *gorm.DB {
	return db.Order("start_time, end_time")
}

func byCreated(db *gorm.DB) *gorm.DB {
	return db.Order("created_at, id")
}

// Event loads an event of a location with its notes and ordered
// occurrences.
func (s *Store) Event(ctx context.Context, locationID, id uint) (*model.Event, error) {
	var ev model.Event
	err := s.db.WithContext(ctx).
		Preload("Location").
		Preload("Notes", byCreated).
		Preload("Occurrences", byTime).
		Where("location_id = ?", locationID).
		First(&ev, id).Error
	if err != nil {
		return nil, fmt.Errorf("event %d: %w", id, notFound(err, model.ErrNotFound))
	}
	return &ev, nil
}

// Events lists the events of a location ordered by title.
func (s *Store) Events(ctx context.Context, locationID uint) ([]model.Event, error) {
	var evs []model.Event
	err := s.db.WithContext(ctx).
		Preload("Location").
		Where("location_id = ?", locationID).
		Order("title, id").
		Find(&evs).Error
	return evs, err
}

// UpdateEvent saves the title and description of ev.
func (s *Store) UpdateEvent(ctx context.Context, ev *model.Event) error {
	res := s.db.WithContext(ctx).Model(&model.Event{}).
		Where("id = ?", ev.ID).
		Updates(map[string]any{"title": ev.Title, "description": ev.Description})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("event %d: %w", ev.ID, model.ErrNotFound)
	}
	return nil
}

// AddOccurrences appends occurrences to an existing event.
func (s *Store) AddOccurrences(ctx context.Context, eventID uint, occs []model.Occurrence) error {
	if len(occs) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Event{}).Where("id = ?", eventID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("event %d: %w", eventID, model.ErrNotFound)
		}
		for i := range occs {
			occs[i].ID = 0
			occs[i].EventID = eventID
		}
		return tx.Omit(clause.Associations).Create(&occs).Error
	})
}

// Occurrence loads one occurrence of an event with its event, location and
// notes.
func (s *Store) Occurrence(ctx context.Context, eventID, id uint) (*model.Occurrence, error) {
	var o model.Occurrence
	err := s.db.WithContext(ctx).
		Preload("Event.Location").
		Preload("Event.Notes", byCreated).
		Preload("Notes", byCreated).
		Where("event_id = ?", eventID).
		First(&o, id).Error
	if err != nil {
		return nil, fmt.Errorf("occurrence %d: %w", id, notFound(err, model.ErrNotFound))
	}
	return &o, nil
}

// UpdateOccurrence saves the start and end of o. The owning event never
// changes.
func (s *Store) UpdateOccurrence(ctx context.Context, o *model.Occurrence) error {
	if !o.End.After(o.Start) {
		return fmt.Errorf("occurrence %d: %w", o.ID, model.ErrInvalidRange)
	}
	res := s.db.WithContext(ctx).Session(&gorm.Session{SkipHooks: true}).
		Model(&model.Occurrence{}).
		Where("id = ? AND event_id = ?", o.ID, o.EventID).
		Updates(map[string]any{"start_time": o.Start.UTC(), "end_time": o.End.UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("occurrence %d: %w", o.ID, model.ErrNotFound)
	}
	return nil
}

// DeleteOccurrence removes an occurrence and its notes. When it was the
// last occurrence of its event the event goes too, and eventDeleted is
// true.
func (s *Store) DeleteOccurrence(ctx context.Context, eventID, id uint) (eventDeleted bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND event_id = ?", id, eventID).Delete(&model.Occurrence{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("occurrence %d: %w", id, model.ErrNotFound)
		}
		if err := deleteNotes(tx, model.OwnerOccurrence, id); err != nil {
			return err
		}

		var left int64
		if err := tx.Model(&model.Occurrence{}).Where("event_id = ?", eventID).Count(&left).Error; err != nil {
			return err
		}
		if left > 0 {
			return nil
		}
		if err := tx.Delete(&model.Event{}, eventID).Error; err != nil {
			return err
		}
		eventDeleted = true
		return deleteNotes(tx, model.OwnerEvent, eventID)
	})
	return eventDeleted, err
}

func deleteNotes(tx *gorm.DB, ownerType string, ownerID uint) error {
	return tx.Where("owner_type = ? AND owner_id = ?", ownerType, ownerID).Delete(&model.Note{}).Error
}

// AddNote attaches n to the owner named by n.OwnerType and n.OwnerID.
func (s *Store) AddNote(ctx context.Context, n *model.Note) error {
	n.Body = strings.TrimSpace(n.Body)
	if n.Body == "" {
		return fmt.Errorf("empty note: %w", model.ErrValidation)
	}
	switch n.OwnerType {
	case model.OwnerEvent, model.OwnerOccurrence:
	default:
		return fmt.Errorf("note owner %q: %w", n.OwnerType, model.ErrValidation)
	}
	return s.db.WithContext(ctx).Create(n).Error
}

// OccurrenceQuery narrows QueryOccurrences. Zero fields do not filter.
type OccurrenceQuery struct {
	LocationID uint
	EventID    uint
	// Start and End select occurrences overlapping [Start, End], both ends
	// inclusive. Both must be set to take effect.
	Start time.Time
	End   time.Time
	// From selects occurrences starting at or after From.
	From time.Time
}

// QueryOccurrences returns matching occurrences with their event and
// location loaded, ordered by (start, end).
func (s *Store) QueryOccurrences(ctx context.Context, q OccurrenceQuery) ([]model.Occurrence, error) {
	db := s.db.WithContext(ctx).
		Select("occurrences.*").
		Preload("Event.Location").
		Preload("Event.Notes", byCreated).
		Preload("Notes", byCreated)

	if q.LocationID != 0 {
		db = db.Joins("JOIN events ON events.id = occurrences.event_id").
			Where("events.location_id = ?", q.LocationID)
	}
	if q.EventID != 0 {
		db = db.Where("occurrences.event_id = ?", q.EventID)
	}
	if !q.Start.IsZero() && !q.End.IsZero() {
		db = db.Where("occurrences.start_time <= ? AND occurrences.end_time >= ?", q.End.UTC(), q.Start.UTC())
	}
	if !q.From.IsZero() {
		db = db.Where("occurrences.start_time >= ?", q.From.UTC())
	}

	var occs []model.Occurrence
	err := db.Order("occurrences.start_time, occurrences.end_time").Find(&occs).Error
	return occs, err
}
