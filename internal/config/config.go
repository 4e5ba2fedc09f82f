package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"roomcal/internal/tz"
)

// Feed types.
const (
	FeedICS    = "ics"
	FeedCalDAV = "caldav"
)

// FeedConfig binds one external calendar to a location.
type FeedConfig struct {
	// ID names the feed in logs and the on-disk cache. Feeds shared by
	// several locations must use the same ID.
	ID   string `yaml:"id" json:"id"`
	Type string `yaml:"type" json:"type"`
	// URL is the .ics address (webcal:// is accepted) or the CalDAV
	// endpoint.
	URL      string `yaml:"url" json:"url"`
	Username string `yaml:"username,omitempty" json:"username,omitempty"`
	Password string `yaml:"password,omitempty" json:"-"`
	// Calendars limits a CalDAV feed to the named calendars.
	Calendars []string `yaml:"calendars,omitempty" json:"calendars,omitempty"`
}

// LocationConfig declares a bookable room.
type LocationConfig struct {
	Slug string `yaml:"slug" json:"slug"`
	Name string `yaml:"name" json:"name"`
	// Active defaults to true.
	Active *bool        `yaml:"active,omitempty" json:"active,omitempty"`
	Feeds  []FeedConfig `yaml:"feeds,omitempty" json:"feeds,omitempty"`
}

func (l LocationConfig) IsActive() bool {
	return l.Active == nil || *l.Active
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

type BookingConfig struct {
	DefaultOccurrenceDuration time.Duration `yaml:"default_occurrence_duration" json:"default_occurrence_duration"`
	MaxOccurrences            int           `yaml:"max_occurrences" json:"max_occurrences"`
}

type TimeslotConfig struct {
	// Start is the first row of the day grid, "HH:MM".
	Start      string        `yaml:"start" json:"start"`
	EndDelta   time.Duration `yaml:"end_delta" json:"end_delta"`
	Interval   time.Duration `yaml:"interval" json:"interval"`
	MinColumns int           `yaml:"min_columns" json:"min_columns"`
}

type CalendarConfig struct {
	// FirstWeekday is a weekday name; empty means Monday.
	FirstWeekday string `yaml:"first_weekday,omitempty" json:"first_weekday,omitempty"`
}

type FeedsConfig struct {
	// Refresh is a five-field cron schedule.
	Refresh     string        `yaml:"refresh" json:"refresh"`
	Past        time.Duration `yaml:"past" json:"past"`
	Future      time.Duration `yaml:"future" json:"future"`
	MaxPerEvent int           `yaml:"max_per_event" json:"max_per_event"`
}

type WebConfig struct {
	// ReadOnly rejects every mutating request.
	ReadOnly  bool             `yaml:"read_only" json:"read_only"`
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone bookings are entered and shown in.
	Timezone string `yaml:"timezone" json:"timezone"`
	// UseTZ defaults to true. When false, wall clock values are kept as
	// given and shown in UTC.
	UseTZ *bool `yaml:"use_tz,omitempty" json:"use_tz,omitempty"`

	Database string `yaml:"database" json:"database"`
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	Booking   BookingConfig    `yaml:"booking" json:"booking"`
	Timeslot  TimeslotConfig   `yaml:"timeslot" json:"timeslot"`
	Calendar  CalendarConfig   `yaml:"calendar" json:"calendar"`
	Feeds     FeedsConfig      `yaml:"feeds" json:"feeds"`
	Web       WebConfig        `yaml:"web" json:"web"`
	Locations []LocationConfig `yaml:"locations" json:"locations"`
}

const (
	defaultListen   = "127.0.0.1:8080"
	defaultTimezone = "UTC"
	defaultRefresh  = "*/15 * * * *"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		Locations: []LocationConfig{{Slug: "main", Name: "Main room"}},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.UseTZ == nil {
		on := true
		c.UseTZ = &on
	}
	if c.Database == "" {
		c.Database = "roomcal.db"
	}
	if c.CacheDir == "" {
		c.CacheDir = "cache"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	if c.Booking.DefaultOccurrenceDuration <= 0 {
		c.Booking.DefaultOccurrenceDuration = time.Hour
	}
	if c.Booking.MaxOccurrences <= 0 {
		c.Booking.MaxOccurrences = 5000
	}

	if c.Timeslot.Start == "" {
		c.Timeslot.Start = "09:00"
	}
	if c.Timeslot.EndDelta <= 0 {
		c.Timeslot.EndDelta = 8 * time.Hour
	}
	if c.Timeslot.Interval <= 0 {
		c.Timeslot.Interval = 15 * time.Minute
	}
	if c.Timeslot.MinColumns <= 0 {
		c.Timeslot.MinColumns = 4
	}

	if c.Feeds.Refresh == "" {
		c.Feeds.Refresh = defaultRefresh
	}
	if c.Feeds.Past <= 0 {
		c.Feeds.Past = 30 * 24 * time.Hour
	}
	if c.Feeds.Future <= 0 {
		c.Feeds.Future = 365 * 24 * time.Hour
	}

	if c.Locations == nil {
		c.Locations = []LocationConfig{}
	}
	for i := range c.Locations {
		loc := &c.Locations[i]
		loc.Slug = strings.TrimSpace(loc.Slug)
		for j := range loc.Feeds {
			f := &loc.Feeds[j]
			f.Type = strings.ToLower(strings.TrimSpace(f.Type))
			if f.Type == "" {
				f.Type = FeedICS
			}
			if f.ID == "" {
				f.ID = loc.Slug + "-" + fmt.Sprint(j+1)
			}
		}
	}
}

// Validate reports every problem of a normalized config at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Zone(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.TimeslotStart(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.FirstWeekday(); err != nil {
		errs = append(errs, err)
	}
	if _, err := cron.ParseStandard(c.Feeds.Refresh); err != nil {
		errs = append(errs, fmt.Errorf("feeds.refresh %q: %w", c.Feeds.Refresh, err))
	}

	slugs := make(map[string]bool)
	feeds := make(map[string]FeedConfig)
	for i, loc := range c.Locations {
		if loc.Slug == "" {
			errs = append(errs, fmt.Errorf("locations[%d]: slug is required", i))
		} else if slugs[loc.Slug] {
			errs = append(errs, fmt.Errorf("locations[%d]: duplicate slug %q", i, loc.Slug))
		}
		slugs[loc.Slug] = true

		for j, f := range loc.Feeds {
			where := fmt.Sprintf("locations[%d].feeds[%d]", i, j)
			if f.Type != FeedICS && f.Type != FeedCalDAV {
				errs = append(errs, fmt.Errorf("%s: unknown type %q", where, f.Type))
			}
			if f.URL == "" {
				errs = append(errs, fmt.Errorf("%s: url is required", where))
			}
			if prev, ok := feeds[f.ID]; ok && (prev.URL != f.URL || prev.Type != f.Type) {
				errs = append(errs, fmt.Errorf("%s: id %q already used for %s", where, f.ID, prev.URL))
			}
			feeds[f.ID] = f
		}
	}
	return errors.Join(errs...)
}

// Zone loads the configured time zone.
func (c *Config) Zone() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func (c *Config) TZEnabled() bool {
	return c.UseTZ == nil || *c.UseTZ
}

func (c *Config) TimeslotStart() (tz.TimeOfDay, error) {
	t, err := tz.ParseTimeOfDay(c.Timeslot.Start)
	if err != nil {
		return t, fmt.Errorf("timeslot.start %q: %w", c.Timeslot.Start, err)
	}
	return t, nil
}

// FirstWeekday returns nil when no override is configured.
func (c *Config) FirstWeekday() (*time.Weekday, error) {
	name := strings.ToLower(strings.TrimSpace(c.Calendar.FirstWeekday))
	if name == "" {
		return nil, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		full := strings.ToLower(d.String())
		if name == full || name == full[:3] {
			return &d, nil
		}
	}
	return nil, fmt.Errorf("calendar.first_weekday %q: unknown weekday", c.Calendar.FirstWeekday)
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are skipped; variables already set are kept.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// ApplyEnv lets ROOMCAL_* variables override file values.
func (c *Config) ApplyEnv() {
	set := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	set("ROOMCAL_LISTEN", &c.Listen)
	set("ROOMCAL_DATABASE", &c.Database)
	set("ROOMCAL_TIMEZONE", &c.Timezone)
	set("ROOMCAL_LOG_LEVEL", &c.LogLevel)
	set("ROOMCAL_CACHE_DIR", &c.CacheDir)

	user, pass := os.Getenv("ROOMCAL_BASIC_AUTH_USERNAME"), os.Getenv("ROOMCAL_BASIC_AUTH_PASSWORD")
	if user != "" && pass != "" {
		c.Web.BasicAuth = &BasicAuthConfig{Username: user, Password: pass}
	}
	if v := strings.ToLower(os.Getenv("ROOMCAL_READ_ONLY")); v == "1" || v == "true" {
		c.Web.ReadOnly = true
	}
}

// Load loads configuration from the given YAML path.
//
// If the file does not exist a default config is written there with 0600
// permissions and returned. Otherwise the file is decoded and normalized.
// Environment overrides are not applied; see ApplyEnv.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".roomcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
