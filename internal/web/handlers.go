package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"roomcal/internal/booking"
	"roomcal/internal/model"
	"roomcal/internal/printer"
	"roomcal/internal/tz"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	locs, err := s.cal.Locations(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]locationDTO, len(locs))
	for i, l := range locs {
		out[i] = toLocation(l)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleToday(w http.ResponseWriter, r *http.Request) {
	dv, err := s.cal.TodayGrid(r.Context(), r.PathValue("slug"), !s.cfg.ReadOnly)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrid(dv))
}

func (s *Server) handleYear(w http.ResponseWriter, r *http.Request) {
	year, err := pathInt(r, "year")
	if err != nil {
		fail(w, r, err)
		return
	}
	slug := r.PathValue("slug")
	groups, err := s.cal.YearSummary(r.Context(), slug, year)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toYear(slug, year, groups))
}

func (s *Server) handleMonth(w http.ResponseWriter, r *http.Request) {
	year, month, err := yearMonth(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	slug := r.PathValue("slug")
	mv, err := s.cal.MonthView(r.Context(), slug, year, month)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toMonth(slug, mv))
}

func (s *Server) handleDay(w http.ResponseWriter, r *http.Request) {
	year, month, err := yearMonth(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	day, err := pathInt(r, "day")
	if err != nil {
		fail(w, r, err)
		return
	}
	d := tz.Date{Year: year, Month: month, Day: day}
	if day < 1 || tz.DateOf(d.In(time.UTC)) != d {
		fail(w, r, fmt.Errorf("%w: no day %d in %04d-%02d", model.ErrValidation, day, year, month))
		return
	}

	dv, err := s.cal.DayGrid(r.Context(), r.PathValue("slug"), d, !s.cfg.ReadOnly)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toGrid(dv))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	evs, err := s.cal.Events(r.Context(), r.PathValue("slug"))
	if err != nil {
		fail(w, r, err)
		return
	}
	out := make([]eventDTO, len(evs))
	for i := range evs {
		out[i] = toEvent(&evs[i])
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "event")
	if err != nil {
		fail(w, r, err)
		return
	}
	slug := r.PathValue("slug")
	ev, err := s.cal.Event(r.Context(), slug, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	next, err := s.cal.NextOccurrence(r.Context(), slug, id)
	if err != nil {
		fail(w, r, err)
		return
	}

	out := toEvent(ev)
	if next != nil {
		n := toOccurrence(next)
		out.Next = &n
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var in booking.EventInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	ev, err := s.cal.CreateEvent(r.Context(), r.PathValue("slug"), in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEvent(ev))
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "event")
	if err != nil {
		fail(w, r, err)
		return
	}
	var p booking.EventPatch
	if err := decode(w, r, &p); err != nil {
		fail(w, r, err)
		return
	}
	ev, err := s.cal.UpdateEvent(r.Context(), r.PathValue("slug"), id, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEvent(ev))
}

func (s *Server) handleAddOccurrences(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "event")
	if err != nil {
		fail(w, r, err)
		return
	}
	var in booking.OccurrenceInput
	if err := decode(w, r, &in); err != nil {
		fail(w, r, err)
		return
	}
	occs, err := s.cal.AddOccurrences(r.Context(), r.PathValue("slug"), id, in)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOccurrences(occs))
}

func (s *Server) handleOccurrence(w http.ResponseWriter, r *http.Request) {
	eventID, id, err := occurrenceIDs(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	o, err := s.cal.Occurrence(r.Context(), r.PathValue("slug"), eventID, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOccurrence(o))
}

func (s *Server) handleUpdateOccurrence(w http.ResponseWriter, r *http.Request) {
	eventID, id, err := occurrenceIDs(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	var p booking.OccurrencePatch
	if err := decode(w, r, &p); err != nil {
		fail(w, r, err)
		return
	}
	o, err := s.cal.UpdateOccurrence(r.Context(), r.PathValue("slug"), eventID, id, p)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOccurrence(o))
}

func (s *Server) handleDeleteOccurrence(w http.ResponseWriter, r *http.Request) {
	eventID, id, err := occurrenceIDs(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	gone, err := s.cal.DeleteOccurrence(r.Context(), r.PathValue("slug"), eventID, id)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"event_deleted": gone})
}

func (s *Server) handleWebcal(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	body, err := s.cal.Webcal(r.Context(), slug)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.ics"`, slug))
	_, _ = w.Write([]byte(body))
}

// renderPrint renders the month sheet named by the request path.
func (s *Server) renderPrint(r *http.Request) (string, error) {
	year, month, err := yearMonth(r)
	if err != nil {
		return "", err
	}
	data, err := s.cal.PrintMonth(r.Context(), r.PathValue("slug"), year, month)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := printer.RenderMonthHTML(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request) {
	html, err := s.renderPrint(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

func (s *Server) handlePrintPDF(w http.ResponseWriter, r *http.Request) {
	if s.pdf == nil {
		writeError(w, http.StatusNotImplemented, "pdf printing is not configured")
		return
	}
	html, err := s.renderPrint(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	pdf, err := s.pdf(r.Context(), html)
	if err != nil {
		fail(w, r, err)
		return
	}
	name := fmt.Sprintf("%s-%s-%s.pdf", r.PathValue("slug"), r.PathValue("year"), r.PathValue("month"))
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	_, _ = w.Write(pdf)
}

// decode reads a JSON body into v. Unknown fields are rejected.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: request body: %v", model.ErrValidation, err)
	}
	return nil
}

func pathInt(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		return 0, fmt.Errorf("%w: %s %q is not a number", model.ErrValidation, name, r.PathValue(name))
	}
	return n, nil
}

func pathID(r *http.Request, name string) (uint, error) {
	n, err := strconv.ParseUint(r.PathValue(name), 10, 0)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%s %q: %w", name, r.PathValue(name), model.ErrNotFound)
	}
	return uint(n), nil
}

func occurrenceIDs(r *http.Request) (eventID, id uint, err error) {
	if eventID, err = pathID(r, "event"); err != nil {
		return 0, 0, err
	}
	id, err = pathID(r, "occurrence")
	return eventID, id, err
}

func yearMonth(r *http.Request) (int, time.Month, error) {
	year, err := pathInt(r, "year")
	if err != nil {
		return 0, 0, err
	}
	month, err := pathInt(r, "month")
	if err != nil {
		return 0, 0, err
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("%w: month %d", model.ErrValidation, month)
	}
	return year, time.Month(month), nil
}
