package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceMissing means the image file is gone; the item is closed
	// without an Activity and never retried.
	ErrSourceMissing = errors.New("source image file is missing")

	// ErrImageNotFound means a queued id has no persisted row.
	ErrImageNotFound = errors.New("image not found")
)

// AnalysisError records one failed analysis attempt. Permanent is set when
// the attempt exhausted the retry budget and the item was abandoned.
type AnalysisError struct {
	ImageID   int64
	Attempt   int
	Permanent bool
	Err       error
}

func (e *AnalysisError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s analysis failure for image %d (attempt %d): %v", kind, e.ImageID, e.Attempt, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

// IndexingError is a vector index submission that failed after the
// Activity was persisted.
type IndexingError struct {
	ActivityID int64
	VectorID   string
	Err        error
}

func (e *IndexingError) Error() string {
	return fmt.Sprintf("failed to index activity %d (%s): %v", e.ActivityID, e.VectorID, e.Err)
}

func (e *IndexingError) Unwrap() error {
	return e.Err
}
