package handlers

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"deskmemo/internal/search"
)

// Searcher runs a ranked query over Activities.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Hit, error)
}

type SearchHandler struct {
	searcher Searcher
	loc      *time.Location
}

func NewSearchHandler(s Searcher, loc *time.Location) *SearchHandler {
	return &SearchHandler{searcher: s, loc: loc}
}

type SearchResult struct {
	ActivityResponse
	Score     float64 `json:"score"`
	Relevance string  `json:"relevance"`
}

type SearchResponse struct {
	Query   string         `json:"query"`
	Count   int            `json:"count"`
	Results []SearchResult `json:"results"`
}

func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	limit, ok := intParam(r, "limit", search.DefaultLimit, 1, search.MaxLimit)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and 50")
		return
	}

	hits, err := h.searcher.Search(r.Context(), query, limit)
	if errors.Is(err, search.ErrEmptyQuery) {
		writeError(w, r, http.StatusBadRequest, "query parameter q is required")
		return
	}
	if err != nil {
		internalError(w, r, "search failed", err)
		return
	}

	resp := SearchResponse{Query: query, Count: len(hits), Results: make([]SearchResult, 0, len(hits))}
	for _, hit := range hits {
		resp.Results = append(resp.Results, SearchResult{
			ActivityResponse: newActivityResponse(hit.Activity, h.loc),
			Score:            math.Round(hit.Score*1000) / 1000,
			Relevance:        string(hit.Relevance),
		})
	}
	writeJSON(w, r, http.StatusOK, resp)
}
