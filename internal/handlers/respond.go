// Package handlers implements the HTTP endpoints of the service.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"deskmemo/internal/logger"
	"deskmemo/internal/storage"
)

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.FromContext(r.Context()).Errorf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, ErrorResponse{Error: msg})
}

// internalError logs err and replies 500 without leaking details.
func internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	logger.FromContext(r.Context()).Errorf("%s: %v", msg, err)
	writeError(w, r, http.StatusInternalServerError, msg)
}

// intParam reads a bounded integer query parameter.
func intParam(r *http.Request, name string, def, min, max int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}

type ScreenshotResponse struct {
	ID           int64  `json:"id"`
	Filename     string `json:"filename"`
	Timestamp    string `json:"timestamp"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileSize     int64  `json:"file_size"`
	IsDuplicate  bool   `json:"is_duplicate"`
	IsAnalyzed   bool   `json:"is_analyzed"`
	FailureCount int    `json:"failure_count"`
	LastError    string `json:"last_error,omitempty"`
}

func newScreenshotResponse(img *storage.CapturedImage, loc *time.Location) ScreenshotResponse {
	return ScreenshotResponse{
		ID:           img.ID,
		Filename:     img.Filename,
		Timestamp:    img.Timestamp.In(loc).Format(time.RFC3339),
		Width:        img.Width,
		Height:       img.Height,
		FileSize:     img.FileSize,
		IsDuplicate:  img.IsDuplicate,
		IsAnalyzed:   img.IsAnalyzed,
		FailureCount: img.FailureCount,
		LastError:    img.LastError,
	}
}

type ActivityResponse struct {
	ID                 int64  `json:"id"`
	ScreenshotID       int64  `json:"screenshot_id"`
	ScreenshotFilename string `json:"screenshot_filename"`
	Timestamp          string `json:"timestamp"`
	ActivityType       string `json:"activity_type"`
	Application        string `json:"application"`
	Description        string `json:"description"`
	ContentSummary     string `json:"content_summary"`
}

func newActivityResponse(a *storage.Activity, loc *time.Location) ActivityResponse {
	return ActivityResponse{
		ID:                 a.ID,
		ScreenshotID:       a.ImageID,
		ScreenshotFilename: a.ImageFilename,
		Timestamp:          a.Timestamp.In(loc).Format(time.RFC3339),
		ActivityType:       string(a.Category),
		Application:        a.Application,
		Description:        a.Description,
		ContentSummary:     a.ContentSummary,
	}
}

type ReportResponse struct {
	ID             int64          `json:"id"`
	PeriodType     string         `json:"report_type"`
	StartTime      string         `json:"start_time"`
	EndTime        string         `json:"end_time"`
	Summary        string         `json:"summary"`
	ItemCount      int            `json:"screenshot_count"`
	WorkMinutes    int            `json:"work_minutes"`
	StudyMinutes   int            `json:"study_minutes"`
	LeisureMinutes int            `json:"entertainment_minutes"`
	OtherMinutes   int            `json:"other_minutes"`
	Distribution   map[string]int `json:"time_distribution,omitempty"`
}

func newReportResponse(r *storage.Report, loc *time.Location) ReportResponse {
	resp := ReportResponse{
		ID:             r.ID,
		PeriodType:     string(r.PeriodType),
		StartTime:      r.StartTime.In(loc).Format(time.RFC3339),
		EndTime:        r.EndTime.In(loc).Format(time.RFC3339),
		Summary:        r.Summary,
		ItemCount:      r.ItemCount,
		WorkMinutes:    r.WorkMinutes,
		StudyMinutes:   r.StudyMinutes,
		LeisureMinutes: r.LeisureMinutes,
		OtherMinutes:   r.OtherMinutes,
	}
	if r.Distribution != "" {
		// a malformed column just drops the field
		_ = json.Unmarshal([]byte(r.Distribution), &resp.Distribution)
	}
	return resp
}
