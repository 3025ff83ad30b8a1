package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"deskmemo/internal/report"
	"deskmemo/internal/storage"
)

// ReportGenerator produces or returns the report for a window.
type ReportGenerator interface {
	Generate(ctx context.Context, period storage.PeriodType, t time.Time) (*storage.Report, error)
}

type ReportHandler struct {
	store     storage.Storage
	generator ReportGenerator
	loc       *time.Location
	now       func() time.Time
}

func NewReportHandler(store storage.Storage, gen ReportGenerator, loc *time.Location) *ReportHandler {
	return &ReportHandler{store: store, generator: gen, loc: loc, now: time.Now}
}

// windowStart resolves the "date" query parameter to a point inside the
// requested window. Hourly windows take "2006-01-02T15", daily windows
// "2006-01-02"; both accept RFC3339. Without a date the last completed
// window is used.
func (h *ReportHandler) windowStart(r *http.Request, period storage.PeriodType) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		start, _ := report.Window(period, h.now(), h.loc)
		if period == storage.PeriodDaily {
			return start.AddDate(0, 0, -1), true
		}
		return start.Add(-time.Hour), true
	}
	layouts := []string{"2006-01-02"}
	if period == storage.PeriodHourly {
		layouts = []string{"2006-01-02T15", "2006-01-02T15:04"}
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, raw, h.loc); err == nil {
			return t, true
		}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// lookup returns the stored report for the window, generating it when the
// window has already ended. A report for an open window is never generated.
func (h *ReportHandler) lookup(w http.ResponseWriter, r *http.Request) (*storage.Report, bool) {
	period, ok := storage.ParsePeriodType(chi.URLParam(r, "period"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "period must be hourly or daily")
		return nil, false
	}
	t, ok := h.windowStart(r, period)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "invalid date")
		return nil, false
	}
	start, end := report.Window(period, t, h.loc)

	rep, err := h.store.GetReport(r.Context(), period, start)
	if err != nil {
		internalError(w, r, "failed to load report", err)
		return nil, false
	}
	if rep == nil && h.generator != nil && !end.After(h.now()) {
		rep, err = h.generator.Generate(r.Context(), period, start)
		if err != nil {
			internalError(w, r, "failed to generate report", err)
			return nil, false
		}
	}
	if rep == nil {
		writeError(w, r, http.StatusNotFound, "no report for this window")
		return nil, false
	}
	return rep, true
}

// Get serves GET /api/reports/{period}?date=.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, r, http.StatusOK, newReportResponse(rep, h.loc))
}

// HTML serves the rendered page for the same window as Get.
func (h *ReportHandler) HTML(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.lookup(w, r)
	if !ok {
		return
	}
	page, err := report.RenderHTML(rep, h.loc)
	if err != nil {
		internalError(w, r, "failed to render report", err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

// List serves GET /api/reports?period=daily&days=7, newest first.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	period := storage.PeriodDaily
	if raw := r.URL.Query().Get("period"); raw != "" {
		p, ok := storage.ParsePeriodType(raw)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "period must be hourly or daily")
			return
		}
		period = p
	}
	days, ok := intParam(r, "days", 7, 1, 366)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "days must be between 1 and 366")
		return
	}

	today, _ := report.Window(storage.PeriodDaily, h.now(), h.loc)
	end := today.AddDate(0, 0, 1)
	start := end.AddDate(0, 0, -days)

	reps, err := h.store.ListReports(r.Context(), period, start, end)
	if err != nil {
		internalError(w, r, "failed to list reports", err)
		return
	}
	out := make([]ReportResponse, 0, len(reps))
	for i := len(reps) - 1; i >= 0; i-- {
		out = append(out, newReportResponse(reps[i], h.loc))
	}
	writeJSON(w, r, http.StatusOK, out)
}
