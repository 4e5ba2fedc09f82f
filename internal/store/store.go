// Package store persists locations, events, occurrences and notes in a
// sqlite database through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"roomcal/internal/log"
	"roomcal/internal/model"
)

type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the sqlite database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return New(db)
}

// New wraps an already opened gorm handle.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&model.Location{}, &model.Event{}, &model.Occurrence{}, &model.Note{}); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error, what error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return what
	}
	return err
}

// LocationSpec is a location as declared in config.
type LocationSpec struct {
	Slug   string
	Name   string
	Active bool
}

// SyncLocations upserts the declared locations and deactivates every stored
// location that is no longer declared.
func (s *Store) SyncLocations(ctx context.Context, specs []LocationSpec) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slugs := make([]string, 0, len(specs))
		for _, spec := range specs {
			loc := model.Location{Slug: spec.Slug, Name: spec.Name, Active: spec.Active}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "slug"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "active", "updated_at"}),
			}).Create(&loc).Error
			if err != nil {
				return fmt.Errorf("upsert location %s: %w", spec.Slug, err)
			}
			slugs = append(slugs, spec.Slug)
		}

		q := tx.Model(&model.Location{}).Where("active = ?", true)
		if len(slugs) > 0 {
			q = q.Where("slug NOT IN ?", slugs)
		}
		res := q.Update("active", false)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			log.Info("store: deactivated undeclared locations", "count", res.RowsAffected)
		}
		return nil
	})
}

func (s *Store) Locations(ctx context.Context, activeOnly bool) ([]model.Location, error) {
	var locs []model.Location
	q := s.db.WithContext(ctx).Order("name, slug")
	if activeOnly {
		q = q.Where("active = ?", true)
	}
	err := q.Find(&locs).Error
	return locs, err
}

// LocationBySlug returns an active location, or ErrLocationNotFound.
func (s *Store) LocationBySlug(ctx context.Context, slug string) (*model.Location, error) {
	var loc model.Location
	err := s.db.WithContext(ctx).Where("slug = ? AND active = ?", slug, true).First(&loc).Error
	if err != nil {
		return nil, fmt.Errorf("location %q: %w", slug, notFound(err, model.ErrLocationNotFound))
	}
	return &loc, nil
}
