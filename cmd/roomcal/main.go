package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"roomcal/internal/booking"
	"roomcal/internal/config"
	"roomcal/internal/feed"
	"roomcal/internal/ics"
	appLog "roomcal/internal/log"
	"roomcal/internal/printer"
	"roomcal/internal/store"
	"roomcal/internal/tz"
	"roomcal/internal/web"
)

const version = "0.1.0"

// flagConfig holds global CLI flag values.
type flagConfig struct {
	configPath string
	envPath    string
	listen     string
	debug      bool
	chromePath string
}

// app is everything a command needs, built from the config.
type app struct {
	conf     *config.Config
	store    *store.Store
	feeds    *feed.Provider
	calendar *booking.Service
	pdf      printer.Options
}

func main() {
	flags := parseFlags()
	appLog.Info("roomcal starting", "version", version)

	if err := config.LoadDotEnv(flags.envPath); err != nil {
		appLog.Error("failed to load env file", err, "path", flags.envPath)
		os.Exit(1)
	}

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}
	conf.ApplyEnv()
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.LogLevel = "debug"
	}
	appLog.SetLevel(appLog.ParseLevel(conf.LogLevel))

	if err := conf.Validate(); err != nil {
		appLog.Error("invalid config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, conf)
	if err != nil {
		appLog.Error("startup failed", err)
		os.Exit(1)
	}
	defer a.store.Close()
	a.pdf.ExecPath = flags.chromePath

	args := flag.Args()
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = a.serve(ctx)
	case "print-month":
		err = a.printMonth(ctx, args)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		appLog.Error(cmd+" failed", err)
		os.Exit(1)
	}
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "roomcal.yaml", "Path to config file")
	flag.StringVar(&cfg.envPath, "env", ".env", "Path to an optional .env file")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.BoolVar(&cfg.debug, "debug", false, "Enable debug logging")
	flag.StringVar(&cfg.chromePath, "chrome", "", "Chromium binary used for PDF output")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] [serve | print-month [-pdf out.pdf] <location> <year> <month>]\n", os.Args[0])
		flag.PrintDefaults()
	}

	flag.Parse()

	return cfg
}

func setup(ctx context.Context, conf *config.Config) (*app, error) {
	zone, err := conf.Zone()
	if err != nil {
		return nil, err
	}
	n := tz.New(zone, conf.TZEnabled())

	st, err := store.Open(conf.Database)
	if err != nil {
		return nil, err
	}
	specs := make([]store.LocationSpec, len(conf.Locations))
	for i, l := range conf.Locations {
		specs[i] = store.LocationSpec{Slug: l.Slug, Name: l.Name, Active: l.IsActive()}
	}
	if err := st.SyncLocations(ctx, specs); err != nil {
		st.Close()
		return nil, fmt.Errorf("sync locations: %w", err)
	}

	settings, err := bookingSettings(conf)
	if err != nil {
		st.Close()
		return nil, err
	}

	provider := feed.NewProvider(n, feed.Options{
		Past:        conf.Feeds.Past,
		Future:      conf.Feeds.Future,
		MaxPerEvent: conf.Feeds.MaxPerEvent,
		Schedule:    conf.Feeds.Refresh,
	}, feedSources(conf))

	appLog.Info("effective config",
		"listen", conf.Listen,
		"timezone", zone.String(),
		"use_tz", conf.TZEnabled(),
		"database", conf.Database,
		"locations", len(conf.Locations),
		"read_only", conf.Web.ReadOnly,
	)

	return &app{
		conf:     conf,
		store:    st,
		feeds:    provider,
		calendar: booking.New(st, provider, n, settings),
	}, nil
}

func bookingSettings(conf *config.Config) (booking.Settings, error) {
	s := booking.DefaultSettings()
	start, err := conf.TimeslotStart()
	if err != nil {
		return s, err
	}
	first, err := conf.FirstWeekday()
	if err != nil {
		return s, err
	}
	s.DefaultOccurrenceDuration = conf.Booking.DefaultOccurrenceDuration
	s.MaxOccurrences = conf.Booking.MaxOccurrences
	s.TimeslotStart = start
	s.TimeslotEndDelta = conf.Timeslot.EndDelta
	s.TimeslotInterval = conf.Timeslot.Interval
	s.MinColumns = conf.Timeslot.MinColumns
	s.FirstWeekday = first
	return s, nil
}

// feedSources builds one source per feed ID; locations listing the same ID
// share it.
func feedSources(conf *config.Config) map[string][]feed.Source {
	fetcher := ics.NewFetcher(filepath.Join(conf.CacheDir, "ics"), nil)
	byID := make(map[string]feed.Source)
	bindings := make(map[string][]feed.Source)

	for _, loc := range conf.Locations {
		if !loc.IsActive() {
			continue
		}
		for _, f := range loc.Feeds {
			src, ok := byID[f.ID]
			if !ok {
				switch f.Type {
				case config.FeedCalDAV:
					src = feed.NewCalDAVSource(f.ID, f.URL, f.Username, f.Password, f.Calendars, nil)
				default:
					src = feed.NewICSSource(fetcher, ics.Request{ID: f.ID, URL: f.URL, Username: f.Username, Password: f.Password})
				}
				byID[f.ID] = src
			}
			bindings[loc.Slug] = append(bindings[loc.Slug], src)
		}
	}
	return bindings
}

func (a *app) serve(ctx context.Context) error {
	if err := a.feeds.Start(ctx); err != nil {
		return err
	}

	pdf := func(ctx context.Context, html string) ([]byte, error) {
		return printer.PDF(ctx, html, a.pdf)
	}
	srv := web.NewServer(a.calendar, a.conf.Web, pdf)
	err := srv.Serve(ctx, a.conf.Listen)

	appLog.Info("roomcal exiting")
	return err
}

// printMonth writes one month of a location as HTML to stdout, or as PDF
// to the file given with -pdf.
func (a *app) printMonth(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("print-month", flag.ContinueOnError)
	out := fs.String("pdf", "", "write a PDF to this file instead of HTML to stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 3 {
		return errors.New("usage: print-month [-pdf out.pdf] <location> <year> <month>")
	}
	slug := fs.Arg(0)
	year, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("year %q: %w", fs.Arg(1), err)
	}
	month, err := strconv.Atoi(fs.Arg(2))
	if err != nil || month < 1 || month > 12 {
		return fmt.Errorf("month %q: must be 1-12", fs.Arg(2))
	}

	if err := a.feeds.Refresh(ctx); err != nil {
		appLog.Warn("feeds incomplete, printing without them", "err", err)
	}

	data, err := a.calendar.PrintMonth(ctx, slug, year, time.Month(month))
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := printer.RenderMonthHTML(&buf, data); err != nil {
		return err
	}

	if *out == "" {
		_, err = buf.WriteTo(os.Stdout)
		return err
	}
	pdf, err := printer.PDF(ctx, buf.String(), a.pdf)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, pdf, 0o644); err != nil {
		return err
	}
	appLog.Info("month printed", "location", slug, "year", year, "month", month, "file", *out, "bytes", len(pdf))
	return nil
}
