package pipeline

import (
	"context"
	"fmt"

	"deskmemo/internal/storage"
)

// Enqueuer accepts image ids for analysis.
type Enqueuer interface {
	Enqueue(id int64) bool
}

const (
	FailedStatusAbandoned = "abandoned"
	FailedStatusWillRetry = "will_retry"
)

// FailedItem is one image that has failed at least once.
type FailedItem struct {
	Image  *storage.CapturedImage
	Status string
}

// Manual is the operator surface for failed items.
type Manual struct {
	store storage.Storage
	queue Enqueuer
}

// NewManual builds the manual surface. queue may be nil when no worker runs
// in this process; reset rows are then picked up by the server's reconciler.
func NewManual(store storage.Storage, queue Enqueuer) *Manual {
	return &Manual{store: store, queue: queue}
}

// RetryAbandoned returns every abandoned image to Pending with a clean
// failure record and enqueues it. It returns the number of rows reset.
func (m *Manual) RetryAbandoned(ctx context.Context) (int, error) {
	ids, err := m.store.ResetAbandoned(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to reset abandoned images: %w", err)
	}
	if m.queue != nil {
		for _, id := range ids {
			m.queue.Enqueue(id)
		}
	}
	return len(ids), nil
}

// ListAbandoned lists images that ran out of attempts, oldest first.
func (m *Manual) ListAbandoned(ctx context.Context) ([]*storage.CapturedImage, error) {
	return m.store.ListAbandonedImages(ctx)
}

// ListFailed lists images with at least one failure, abandoned or not.
func (m *Manual) ListFailed(ctx context.Context, limit int) ([]FailedItem, error) {
	imgs, err := m.store.ListFailedImages(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed images: %w", err)
	}
	items := make([]FailedItem, 0, len(imgs))
	for _, img := range imgs {
		status := FailedStatusWillRetry
		if StatusOf(img).State == StateAbandoned {
			status = FailedStatusAbandoned
		}
		items = append(items, FailedItem{Image: img, Status: status})
	}
	return items, nil
}
