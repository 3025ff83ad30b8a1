package handlers

import (
	"net/http"
	"time"
)

// QueueStats exposes the analysis queue's load.
type QueueStats interface {
	Len() int
	Idle() bool
}

type HealthHandler struct {
	queue QueueStats
}

func NewHealthHandler(queue QueueStats) *HealthHandler {
	return &HealthHandler{queue: queue}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Queued    int    `json:"queued"`
	Idle      bool   `json:"idle"`
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if h.queue != nil {
		resp.Queued = h.queue.Len()
		resp.Idle = h.queue.Idle()
	}
	writeJSON(w, r, http.StatusOK, resp)
}
