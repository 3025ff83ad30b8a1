package handlers

import (
	"context"
	"net/http"
	"time"

	"deskmemo/internal/logger"
	"deskmemo/internal/pipeline"
)

// FailureManager is the operator surface over failed analyses.
type FailureManager interface {
	ListFailed(ctx context.Context, limit int) ([]pipeline.FailedItem, error)
	RetryAbandoned(ctx context.Context) (int, error)
}

// ReconcileTrigger runs one reconcile pass on demand.
type ReconcileTrigger interface {
	RunOnce(ctx context.Context) (pipeline.ReconcileResult, error)
}

type ManualHandler struct {
	manual     FailureManager
	reconciler ReconcileTrigger
	loc        *time.Location
}

func NewManualHandler(m FailureManager, rec ReconcileTrigger, loc *time.Location) *ManualHandler {
	return &ManualHandler{manual: m, reconciler: rec, loc: loc}
}

type FailedResponse struct {
	ScreenshotResponse
	Status string `json:"status"`
}

func (h *ManualHandler) Failed(w http.ResponseWriter, r *http.Request) {
	limit, ok := intParam(r, "limit", 100, 1, 1000)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 1000")
		return
	}
	items, err := h.manual.ListFailed(r.Context(), limit)
	if err != nil {
		internalError(w, r, "failed to list failed screenshots", err)
		return
	}
	out := make([]FailedResponse, 0, len(items))
	for _, it := range items {
		out = append(out, FailedResponse{
			ScreenshotResponse: newScreenshotResponse(it.Image, h.loc),
			Status:             it.Status,
		})
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (h *ManualHandler) RetryFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.manual.RetryAbandoned(r.Context())
	if err != nil {
		internalError(w, r, "failed to retry screenshots", err)
		return
	}
	logger.FromContext(r.Context()).Infof("Reset %d abandoned screenshots", n)
	writeJSON(w, r, http.StatusOK, map[string]any{"success": true, "reset": n})
}

type TriggerResponse struct {
	Success   bool `json:"success"`
	Enqueued  int  `json:"enqueued"`
	Skipped   int  `json:"skipped"`
	Missing   int  `json:"missing"`
	Reindexed int  `json:"reindexed"`
}

// TriggerAnalysis enqueues every pending screenshot now instead of waiting
// for the next reconcile tick.
func (h *ManualHandler) TriggerAnalysis(w http.ResponseWriter, r *http.Request) {
	res, err := h.reconciler.RunOnce(r.Context())
	if err != nil {
		internalError(w, r, "failed to trigger analysis", err)
		return
	}
	writeJSON(w, r, http.StatusOK, TriggerResponse{
		Success:   true,
		Enqueued:  res.Enqueued,
		Skipped:   res.Skipped,
		Missing:   res.Missing,
		Reindexed: res.Reindexed,
	})
}
