package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

const activityColumns = `a.id, a.image_id, i.filename, a.timestamp, a.category, a.application, a.description,
	a.content_summary, a.raw_text, a.vector_id, a.indexed, a.index_attempts`

const activityFrom = ` FROM activities a JOIN images i ON i.id = a.image_id`

func scanActivity(row scanner) (*Activity, error) {
	var (
		a       Activity
		ts, cat string
		indexed int
	)
	if err := row.Scan(&a.ID, &a.ImageID, &a.ImageFilename, &ts, &cat, &a.Application, &a.Description,
		&a.ContentSummary, &a.RawText, &a.VectorID, &indexed, &a.IndexAttempts); err != nil {
		return nil, err
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	a.Timestamp = t
	a.Category = Category(cat)
	a.Indexed = indexed == 1
	return &a, nil
}

func (s *SQLiteStorage) queryActivities(ctx context.Context, query string, args ...any) ([]*Activity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []*Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// RecordSuccess stores the Activity and marks its image Analyzed in one
// transaction, clearing any failure bookkeeping.
func (s *SQLiteStorage) RecordSuccess(ctx context.Context, a *Activity) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
		INSERT INTO activities (image_id, timestamp, category, application, description, content_summary,
			raw_text, vector_id, indexed, index_attempts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, 0)`,
			a.ImageID, formatTime(a.Timestamp), string(a.Category), a.Application, a.Description,
			a.ContentSummary, a.RawText, a.VectorID)
		if err != nil {
			return fmt.Errorf("failed to save activity: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read activity id: %w", err)
		}

		_, err = tx.ExecContext(ctx, `UPDATE images SET is_analyzed = 1, failure_count = 0, last_error = NULL WHERE id = ?`, a.ImageID)
		if err != nil {
			return fmt.Errorf("failed to mark image analyzed: %w", err)
		}

		a.ID = id
		a.Indexed = false
		a.IndexAttempts = 0
		return nil
	})
}

// GetActivityByImageID returns nil, nil when the image has no Activity.
func (s *SQLiteStorage) GetActivityByImageID(ctx context.Context, imageID int64) (*Activity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+activityColumns+activityFrom+` WHERE a.image_id = ?`, imageID)
	a, err := scanActivity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get activity: %w", err)
	}
	return a, nil
}

// ListActivities pages through activities newest first.
func (s *SQLiteStorage) ListActivities(ctx context.Context, limit, offset int) ([]*Activity, error) {
	return s.queryActivities(ctx, `SELECT `+activityColumns+activityFrom+`
	ORDER BY a.timestamp DESC, a.id DESC LIMIT ? OFFSET ?`, limit, offset)
}

// ActivitiesInRange returns activities with timestamp in [start, end), oldest first.
func (s *SQLiteStorage) ActivitiesInRange(ctx context.Context, start, end time.Time) ([]*Activity, error) {
	return s.queryActivities(ctx, `SELECT `+activityColumns+activityFrom+`
	WHERE a.timestamp >= ? AND a.timestamp < ?
	ORDER BY a.timestamp ASC, a.id ASC`, formatTime(start), formatTime(end))
}

// SearchActivities performs a case-insensitive substring match over the
// textual fields, newest first.
func (s *SQLiteStorage) SearchActivities(ctx context.Context, query string, limit int) ([]*Activity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	p := likePattern(query)
	return s.queryActivities(ctx, `SELECT `+activityColumns+activityFrom+`
	WHERE fold(a.description) LIKE ? ESCAPE '\'
		OR fold(a.content_summary) LIKE ? ESCAPE '\'
		OR fold(a.application) LIKE ? ESCAPE '\'
		OR fold(a.category) LIKE ? ESCAPE '\'
		OR fold(a.raw_text) LIKE ? ESCAPE '\'
	ORDER BY a.timestamp DESC, a.id DESC LIMIT ?`, p, p, p, p, p, limit)
}

// ListUnindexedActivities returns activities whose vector entry is missing
// and which have fewer than maxAttempts indexing attempts, oldest first.
func (s *SQLiteStorage) ListUnindexedActivities(ctx context.Context, maxAttempts, limit int) ([]*Activity, error) {
	return s.queryActivities(ctx, `SELECT `+activityColumns+activityFrom+`
	WHERE a.indexed = 0 AND a.index_attempts < ?
	ORDER BY a.timestamp ASC, a.id ASC LIMIT ?`, maxAttempts, limit)
}

func (s *SQLiteStorage) MarkActivityIndexed(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE activities SET indexed = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark activity indexed: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) IncrementIndexAttempts(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE activities SET index_attempts = index_attempts + 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to record index attempt: %w", err)
	}
	return nil
}
