package storage

import (
	"context"
	"time"
)

// Storage is the persisted-record contract shared by the pipeline, search,
// reporting and HTTP layers. SQLiteStorage is the only implementation.
type Storage interface {
	SaveImage(ctx context.Context, img *CapturedImage) error
	GetImage(ctx context.Context, id int64) (*CapturedImage, error)
	GetImageByFilename(ctx context.Context, filename string) (*CapturedImage, error)
	PreviousImage(ctx context.Context, at time.Time) (*CapturedImage, error)
	ListImages(ctx context.Context, limit, offset int) ([]*CapturedImage, error)
	ListPendingImages(ctx context.Context) ([]*CapturedImage, error)
	ListFailedImages(ctx context.Context, limit int) ([]*CapturedImage, error)
	ListAbandonedImages(ctx context.Context) ([]*CapturedImage, error)
	UpdateAnalysisStatus(ctx context.Context, id int64, analyzed bool, failureCount int, lastError string) error
	MarkImageAnalyzed(ctx context.Context, id int64) error
	ResetAbandoned(ctx context.Context) ([]int64, error)
	DayStats(ctx context.Context, start, end time.Time) (*DayStats, error)

	RecordSuccess(ctx context.Context, a *Activity) error
	GetActivityByImageID(ctx context.Context, imageID int64) (*Activity, error)
	ListActivities(ctx context.Context, limit, offset int) ([]*Activity, error)
	ActivitiesInRange(ctx context.Context, start, end time.Time) ([]*Activity, error)
	SearchActivities(ctx context.Context, query string, limit int) ([]*Activity, error)
	ListUnindexedActivities(ctx context.Context, maxAttempts, limit int) ([]*Activity, error)
	MarkActivityIndexed(ctx context.Context, id int64) error
	IncrementIndexAttempts(ctx context.Context, id int64) error

	GetReport(ctx context.Context, period PeriodType, start time.Time) (*Report, error)
	CreateReport(ctx context.Context, r *Report) (*Report, bool, error)
	ListReports(ctx context.Context, period PeriodType, start, end time.Time) ([]*Report, error)

	Close() error
}

var _ Storage = (*SQLiteStorage)(nil)

// NewStorage opens the SQLite-backed store at dbPath.
func NewStorage(dbPath string) (Storage, error) {
	return NewSQLiteStorage(dbPath)
}
