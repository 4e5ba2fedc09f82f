// Package web exposes the booking service over HTTP: a JSON API, the
// per-location webcal feed and printable month sheets.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"roomcal/internal/booking"
	"roomcal/internal/calendar"
	"roomcal/internal/config"
	appLog "roomcal/internal/log"
	"roomcal/internal/model"
	"roomcal/internal/printer"
	"roomcal/internal/tz"
)

// Calendar is the booking surface served over HTTP. *booking.Service
// implements it.
type Calendar interface {
	Locations(ctx context.Context) ([]model.Location, error)
	Location(ctx context.Context, slug string) (*model.Location, error)

	Events(ctx context.Context, slug string) ([]model.Event, error)
	Event(ctx context.Context, slug string, id uint) (*model.Event, error)
	NextOccurrence(ctx context.Context, slug string, id uint) (*model.Occurrence, error)
	CreateEvent(ctx context.Context, slug string, in booking.EventInput) (*model.Event, error)
	UpdateEvent(ctx context.Context, slug string, id uint, p booking.EventPatch) (*model.Event, error)
	AddOccurrences(ctx context.Context, slug string, id uint, in booking.OccurrenceInput) ([]model.Occurrence, error)

	Occurrence(ctx context.Context, slug string, eventID, id uint) (*model.Occurrence, error)
	UpdateOccurrence(ctx context.Context, slug string, eventID, id uint, p booking.OccurrencePatch) (*model.Occurrence, error)
	DeleteOccurrence(ctx context.Context, slug string, eventID, id uint) (bool, error)

	MonthView(ctx context.Context, slug string, year int, month time.Month) (calendar.MonthView, error)
	YearSummary(ctx context.Context, slug string, year int) ([]calendar.MonthGroup, error)
	DayGrid(ctx context.Context, slug string, day tz.Date, showLinks bool) (*booking.DayView, error)
	TodayGrid(ctx context.Context, slug string, showLinks bool) (*booking.DayView, error)

	Webcal(ctx context.Context, slug string) (string, error)
	PrintMonth(ctx context.Context, slug string, year int, month time.Month) (printer.PrintData, error)
}

// PDFFunc turns a rendered HTML page into a PDF document.
type PDFFunc func(ctx context.Context, html string) ([]byte, error)

// Server provides the HTTP API.
type Server struct {
	cal Calendar
	cfg config.WebConfig
	mux *http.ServeMux
	pdf PDFFunc
}

// NewServer constructs a new Server. A nil pdf disables the PDF endpoint.
func NewServer(cal Calendar, cfg config.WebConfig, pdf PDFFunc) *Server {
	s := &Server{
		cal: cal,
		cfg: cfg,
		mux: http.NewServeMux(),
		pdf: pdf,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled")
		h = s.basicAuthMiddleware(h)
	}
	return logRequests(h)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	a := s.cfg.BasicAuth
	return a != nil && a.Username != "" && a.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="roomcal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		appLog.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
	})
}

// Serve listens on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+addr, "read_only", s.cfg.ReadOnly)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/locations", s.handleLocations)
	s.mux.HandleFunc("GET /api/locations/{slug}/today", s.handleToday)
	s.mux.HandleFunc("GET /api/locations/{slug}/calendar/{year}", s.handleYear)
	s.mux.HandleFunc("GET /api/locations/{slug}/calendar/{year}/{month}", s.handleMonth)
	s.mux.HandleFunc("GET /api/locations/{slug}/calendar/{year}/{month}/{day}", s.handleDay)

	s.mux.HandleFunc("GET /api/locations/{slug}/events", s.handleEvents)
	s.mux.HandleFunc("POST /api/locations/{slug}/events", s.mutating(s.handleCreateEvent))
	s.mux.HandleFunc("GET /api/locations/{slug}/events/{event}", s.handleEvent)
	s.mux.HandleFunc("PATCH /api/locations/{slug}/events/{event}", s.mutating(s.handleUpdateEvent))
	s.mux.HandleFunc("POST /api/locations/{slug}/events/{event}/occurrences", s.mutating(s.handleAddOccurrences))
	s.mux.HandleFunc("GET /api/locations/{slug}/events/{event}/occurrences/{occurrence}", s.handleOccurrence)
	s.mux.HandleFunc("PATCH /api/locations/{slug}/events/{event}/occurrences/{occurrence}", s.mutating(s.handleUpdateOccurrence))
	s.mux.HandleFunc("DELETE /api/locations/{slug}/events/{event}/occurrences/{occurrence}", s.mutating(s.handleDeleteOccurrence))

	s.mux.HandleFunc("GET /webcal/{slug}", s.handleWebcal)
	s.mux.HandleFunc("GET /print/{slug}/{year}/{month}", s.handlePrint)
	s.mux.HandleFunc("GET /print/{slug}/{year}/{month}/pdf", s.handlePrintPDF)
}

// mutating rejects the request when the server is read-only.
func (s *Server) mutating(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.ReadOnly {
			writeError(w, http.StatusForbidden, "read-only mode")
			return
		}
		h(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// statusOf maps service errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrLocationNotFound), errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrInvalidRule),
		errors.Is(err, model.ErrInvalidRange),
		errors.Is(err, model.ErrInvalidGridConfig),
		errors.Is(err, model.ErrNaiveTimestamp):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err with its mapped status. Internal errors are logged and
// not shown to the client.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		appLog.Error("request failed", err, "method", r.Method, "path", r.URL.Path)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
