package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"roomcal/internal/calendar"
	"roomcal/internal/ics"
	"roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/tz"
)

const DefaultSchedule = "*/15 * * * *"

type Options struct {
	// Past and Future bound the expansion window around now.
	Past        time.Duration
	Future      time.Duration
	MaxPerEvent int
	// Schedule is a standard five-field cron spec.
	Schedule string
}

// Provider serves the expanded entries of every location's feeds from
// memory. A source that fails during Refresh keeps its previous entries.
type Provider struct {
	n        *tz.Normalizer
	opts     Options
	bindings map[string][]Source

	mu       sync.RWMutex
	bySource map[string][]model.ExternalEntry
	updated  time.Time
}

// NewProvider binds sources to location slugs.
func NewProvider(n *tz.Normalizer, opts Options, bindings map[string][]Source) *Provider {
	if opts.Past <= 0 {
		opts.Past = 30 * 24 * time.Hour
	}
	if opts.Future <= 0 {
		opts.Future = 365 * 24 * time.Hour
	}
	if opts.Schedule == "" {
		opts.Schedule = DefaultSchedule
	}
	return &Provider{
		n:        n,
		opts:     opts,
		bindings: bindings,
		bySource: make(map[string][]model.ExternalEntry),
	}
}

// Entries returns the cached entries of a location's feeds. The result is
// a copy in feed order; a location without feeds yields nil.
func (p *Provider) Entries(_ context.Context, slug string) ([]model.ExternalEntry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var out []model.ExternalEntry
	for _, src := range p.bindings[slug] {
		out = append(out, p.bySource[src.ID()]...)
	}
	return out, nil
}

// Updated reports when the last Refresh finished.
func (p *Provider) Updated() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.updated
}

// Refresh reloads every source. Sources are fetched one after another; all
// failures are returned joined.
func (p *Provider) Refresh(ctx context.Context) error {
	now := p.n.Now()
	window := calendar.Window{Start: now.Add(-p.opts.Past), End: now.Add(p.opts.Future)}

	seen := make(map[string]bool)
	var errs []error
	for slug, sources := range p.bindings {
		for _, src := range sources {
			if seen[src.ID()] {
				continue
			}
			seen[src.ID()] = true

			entries, err := p.load(ctx, src, window)
			if err != nil {
				log.Error("feed: refresh failed", err, "source", src.ID(), "location", slug)
				errs = append(errs, fmt.Errorf("source %s: %w", src.ID(), err))
				continue
			}
			p.mu.Lock()
			p.bySource[src.ID()] = entries
			p.mu.Unlock()
			log.Info("feed: refreshed", "source", src.ID(), "location", slug, "entries", len(entries))
		}
	}

	p.mu.Lock()
	p.updated = time.Now()
	p.mu.Unlock()
	return errors.Join(errs...)
}

func (p *Provider) load(ctx context.Context, src Source, window calendar.Window) ([]model.ExternalEntry, error) {
	events, err := src.Events(ctx, window)
	if err != nil {
		return nil, err
	}
	entries := ics.Expand(events, p.n, ics.ExpandOptions{
		SourceID:    src.ID(),
		Window:      window,
		MaxPerEvent: p.opts.MaxPerEvent,
	})
	return slices.Clip(entries), nil
}

// refreshJob is the scheduled refresh. A tick that fires while the previous
// refresh is still running is skipped.
func (p *Provider) refreshJob(ctx context.Context) cron.Job {
	return cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger)).Then(cron.FuncJob(func() {
		if err := p.Refresh(ctx); err != nil {
			log.Warn("feed: scheduled refresh incomplete", "err", err)
		}
	}))
}

// Start refreshes once and then on the configured schedule until ctx is
// done.
func (p *Provider) Start(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddJob(p.opts.Schedule, p.refreshJob(ctx)); err != nil {
		return fmt.Errorf("feed schedule %q: %w", p.opts.Schedule, err)
	}

	if err := p.Refresh(ctx); err != nil {
		log.Warn("feed: initial refresh incomplete", "err", err)
	}

	c.Start()
	log.Info("feed: scheduler started", "schedule", p.opts.Schedule, "locations", len(p.bindings))

	go func() {
		<-ctx.Done()
		<-c.Stop().Done()
		log.Info("feed: scheduler stopped")
	}()
	return nil
}
