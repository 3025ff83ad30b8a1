package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"deskmemo/internal/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// BrowseHandler lists screenshots and activities and serves image files.
type BrowseHandler struct {
	store storage.Storage
	files *storage.FileStore
	loc   *time.Location
	now   func() time.Time
}

func NewBrowseHandler(store storage.Storage, files *storage.FileStore, loc *time.Location) *BrowseHandler {
	return &BrowseHandler{store: store, files: files, loc: loc, now: time.Now}
}

func pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, ok = intParam(r, "limit", defaultPageSize, 1, maxPageSize)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 500")
		return 0, 0, false
	}
	offset, ok = intParam(r, "offset", 0, 0, 1<<30)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "offset must be non-negative")
		return 0, 0, false
	}
	return limit, offset, true
}

func (h *BrowseHandler) Screenshots(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}
	imgs, err := h.store.ListImages(r.Context(), limit, offset)
	if err != nil {
		internalError(w, r, "failed to list screenshots", err)
		return
	}
	out := make([]ScreenshotResponse, 0, len(imgs))
	for _, img := range imgs {
		out = append(out, newScreenshotResponse(img, h.loc))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *BrowseHandler) Activities(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}
	acts, err := h.store.ListActivities(r.Context(), limit, offset)
	if err != nil {
		internalError(w, r, "failed to list activities", err)
		return
	}
	out := make([]ActivityResponse, 0, len(acts))
	for _, a := range acts {
		out = append(out, newActivityResponse(a, h.loc))
	}
	writeJSON(w, r, http.StatusOK, out)
}

type StatsResponse struct {
	Date        string         `json:"date"`
	Screenshots int            `json:"screenshots"`
	Duplicates  int            `json:"duplicates"`
	Analyzed    int            `json:"analyzed"`
	Pending     int            `json:"pending"`
	Abandoned   int            `json:"abandoned"`
	Activities  int            `json:"activities"`
	ByCategory  map[string]int `json:"by_category"`
}

// StatsToday reports counters for the current local day.
func (h *BrowseHandler) StatsToday(w http.ResponseWriter, r *http.Request) {
	now := h.now().In(h.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, h.loc)
	end := start.AddDate(0, 0, 1)

	stats, err := h.store.DayStats(r.Context(), start, end)
	if err != nil {
		internalError(w, r, "failed to compute stats", err)
		return
	}

	byCat := make(map[string]int, len(storage.Categories))
	for _, c := range storage.Categories {
		byCat[string(c)] = stats.ByCategory[c]
	}
	writeJSON(w, r, http.StatusOK, StatsResponse{
		Date:        start.Format("2006-01-02"),
		Screenshots: stats.Screenshots,
		Duplicates:  stats.Duplicates,
		Analyzed:    stats.Analyzed,
		Pending:     stats.Pending,
		Abandoned:   stats.Abandoned,
		Activities:  stats.Activities,
		ByCategory:  byCat,
	})
}

// Image serves the stored file for a screenshot filename.
func (h *BrowseHandler) Image(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "filename")
	img, err := h.store.GetImageByFilename(r.Context(), name)
	if err != nil {
		internalError(w, r, "failed to look up screenshot", err)
		return
	}
	if img == nil || !h.files.Contains(img.Path) || !h.files.Exists(img.Path) {
		writeError(w, r, http.StatusNotFound, "screenshot not found")
		return
	}
	w.Header().Set("Cache-Control", "private, max-age=86400")
	http.ServeFile(w, r, img.Path)
}
