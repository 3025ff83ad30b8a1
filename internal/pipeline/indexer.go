package pipeline

import (
	"context"
	"time"

	"deskmemo/internal/analyzer"
	"deskmemo/internal/storage"
	"deskmemo/internal/vectorindex"
)

// activityIndexer submits Activities to the vector index and keeps the
// indexed/index_attempts bookkeeping.
type activityIndexer struct {
	store       storage.Storage
	index       vectorindex.Index
	maxAttempts int
}

func newActivityIndexer(store storage.Storage, index vectorindex.Index, maxAttempts int) *activityIndexer {
	return &activityIndexer{store: store, index: index, maxAttempts: maxAttempts}
}

func (ix *activityIndexer) enabled() bool {
	return ix != nil && ix.index != nil
}

func (ix *activityIndexer) submit(ctx context.Context, a *storage.Activity) error {
	if !ix.enabled() {
		return nil
	}

	meta := map[string]any{
		"activity_id": a.ID,
		"image_id":    a.ImageID,
		"category":    string(a.Category),
		"application": a.Application,
		"timestamp":   a.Timestamp.UTC().Format(time.RFC3339),
	}
	if err := ix.index.Add(ctx, a.VectorID, analyzer.EmbeddingText(a), meta); err != nil {
		if incErr := ix.store.IncrementIndexAttempts(ctx, a.ID); incErr != nil {
			return incErr
		}
		return &IndexingError{ActivityID: a.ID, VectorID: a.VectorID, Err: err}
	}
	return ix.store.MarkActivityIndexed(ctx, a.ID)
}

// pending returns Activities that still need a vector entry.
func (ix *activityIndexer) pending(ctx context.Context, limit int) ([]*storage.Activity, error) {
	return ix.store.ListUnindexedActivities(ctx, ix.maxAttempts, limit)
}
