// Package search ranks Activities for a free-text query by merging keyword
// matches from the store with nearest neighbors from the vector index.
package search

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"deskmemo/internal/logger"
	"deskmemo/internal/storage"
	"deskmemo/internal/vectorindex"
)

const (
	DefaultLimit = 10
	MaxLimit     = 50

	keywordBase = 0.6

	// semantic hits below this similarity are dropped
	minSimilarity    = 0.5
	semanticDiscount = 0.8
)

var ErrEmptyQuery = errors.New("search query is empty")

type Relevance string

const (
	RelevanceKeyword  Relevance = "keyword"
	RelevanceSemantic Relevance = "semantic"
)

// Hit is one ranked result.
type Hit struct {
	Activity  *storage.Activity
	Score     float64
	Relevance Relevance
}

// KeywordScore scores an Activity that matched query as a substring:
// 0.6 plus a bonus per field that contains it, capped at 1.0.
func KeywordScore(query string, a *storage.Activity) float64 {
	q := strings.ToLower(query)
	contains := func(field string) bool {
		return field != "" && strings.Contains(strings.ToLower(field), q)
	}

	score := keywordBase
	if contains(a.Description) {
		score += 0.4
	}
	if contains(a.ContentSummary) {
		score += 0.3
	}
	if contains(a.Application) {
		score += 0.2
	}
	if contains(string(a.Category)) {
		score += 0.1
	}
	return math.Min(1.0, score)
}

// SemanticScore converts a cosine distance into a score. ok is false when
// the match is too weak to report.
func SemanticScore(distance float64) (score float64, ok bool) {
	similarity := 1 - distance/2
	if similarity < minSimilarity {
		return 0, false
	}
	return math.Round(similarity*semanticDiscount*1000) / 1000, true
}

// Merge puts keyword hits first, adds semantic hits for Activities not seen
// yet, then stable-sorts by score and keeps the top limit. Activities are
// identified by their image id.
func Merge(keyword, semantic []Hit, limit int) []Hit {
	seen := make(map[int64]bool, len(keyword)+len(semantic))
	merged := make([]Hit, 0, len(keyword)+len(semantic))

	for _, group := range [][]Hit{keyword, semantic} {
		for _, h := range group {
			if seen[h.Activity.ImageID] {
				continue
			}
			seen[h.Activity.ImageID] = true
			merged = append(merged, h)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// Ranker runs hybrid search. index may be nil, in which case only keyword
// matches are returned.
type Ranker struct {
	store storage.Storage
	index vectorindex.Index
	log   *logrus.Entry
}

func NewRanker(store storage.Storage, index vectorindex.Index) *Ranker {
	return &Ranker{store: store, index: index, log: logger.WithComponent("search")}
}

func (r *Ranker) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	acts, err := r.store.SearchActivities(ctx, query, 2*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to run keyword search: %w", err)
	}
	keyword := make([]Hit, 0, len(acts))
	for _, a := range acts {
		keyword = append(keyword, Hit{Activity: a, Score: KeywordScore(query, a), Relevance: RelevanceKeyword})
	}

	semantic, err := r.semantic(ctx, query, limit)
	if err != nil {
		r.log.WithField("query", query).Warnf("Semantic search unavailable, using keyword results only: %v", err)
		semantic = nil
	}

	return Merge(keyword, semantic, limit), nil
}

func (r *Ranker) semantic(ctx context.Context, query string, limit int) ([]Hit, error) {
	if r.index == nil {
		return nil, nil
	}

	matches, err := r.index.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(matches))
	for _, m := range matches {
		score, ok := SemanticScore(m.Distance)
		if !ok {
			continue
		}
		imageID, err := vectorindex.ParseVectorID(m.ID)
		if err != nil {
			r.log.Debugf("Skipping foreign vector entry: %v", err)
			continue
		}
		a, err := r.store.GetActivityByImageID(ctx, imageID)
		if err != nil {
			return nil, err
		}
		if a == nil {
			// entry outlived its Activity
			continue
		}
		hits = append(hits, Hit{Activity: a, Score: score, Relevance: RelevanceSemantic})
	}
	return hits, nil
}
