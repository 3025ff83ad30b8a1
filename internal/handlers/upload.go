package handlers

import (
	"errors"
	"net/http"
	"time"

	"deskmemo/internal/ingest"
	"deskmemo/internal/logger"
)

type UploadHandler struct {
	ingest ingest.Ingester
	loc    *time.Location
}

func NewUploadHandler(ing ingest.Ingester, loc *time.Location) *UploadHandler {
	return &UploadHandler{ingest: ing, loc: loc}
}

type UploadResponse struct {
	Success     bool               `json:"success"`
	Screenshot  ScreenshotResponse `json:"screenshot"`
	IsDuplicate bool               `json:"is_duplicate"`
	Distance    int                `json:"distance"`
	Queued      bool               `json:"queued"`
}

// ServeHTTP accepts a multipart form with an image in "file" and an optional
// RFC3339 "captured_at".
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, ingest.MaxUploadSize+1<<20)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	var capturedAt time.Time
	if raw := r.FormValue("captured_at"); raw != "" {
		capturedAt, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "captured_at must be RFC3339")
			return
		}
	}

	res, err := h.ingest.Ingest(r.Context(), file, capturedAt)
	switch {
	case errors.Is(err, ingest.ErrUnsupportedImage):
		writeError(w, r, http.StatusBadRequest, "unsupported image")
		return
	case errors.Is(err, ingest.ErrTooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}
	if err != nil {
		internalError(w, r, "failed to store screenshot", err)
		return
	}

	logger.FromContext(r.Context()).WithField("image_id", res.Image.ID).
		Debugf("Upload stored (duplicate=%v)", res.Decision.Duplicate)

	writeJSON(w, r, http.StatusOK, UploadResponse{
		Success:     true,
		Screenshot:  newScreenshotResponse(res.Image, h.loc),
		IsDuplicate: res.Decision.Duplicate,
		Distance:    res.Decision.Distance,
		Queued:      res.Decision.Enqueued,
	})
}
