package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const imageColumns = `id, filename, path, timestamp, width, height, file_size, fingerprint,
	is_duplicate, is_analyzed, failure_count, last_error`

func scanImage(row scanner) (*CapturedImage, error) {
	var (
		img       CapturedImage
		ts        string
		dup, done int
		lastError sql.NullString
	)
	if err := row.Scan(&img.ID, &img.Filename, &img.Path, &ts, &img.Width, &img.Height, &img.FileSize,
		&img.Fingerprint, &dup, &done, &img.FailureCount, &lastError); err != nil {
		return nil, err
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	img.Timestamp = t
	img.IsDuplicate = dup == 1
	img.IsAnalyzed = done == 1
	img.LastError = lastError.String
	return &img, nil
}

func (s *SQLiteStorage) queryImages(ctx context.Context, query string, args ...any) ([]*CapturedImage, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []*CapturedImage
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// SaveImage inserts img and sets its ID.
func (s *SQLiteStorage) SaveImage(ctx context.Context, img *CapturedImage) error {
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO images (filename, path, timestamp, width, height, file_size, fingerprint,
		is_duplicate, is_analyzed, failure_count, last_error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		img.Filename, img.Path, formatTime(img.Timestamp), img.Width, img.Height, img.FileSize, img.Fingerprint,
		boolToInt(img.IsDuplicate), boolToInt(img.IsAnalyzed), img.FailureCount, nullString(img.LastError))
	if err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read image id: %w", err)
	}
	img.ID = id
	return nil
}

// GetImage returns nil, nil when no row matches.
func (s *SQLiteStorage) GetImage(ctx context.Context, id int64) (*CapturedImage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE id = ?`, id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return img, nil
}

// GetImageByFilename returns nil, nil when no row matches.
func (s *SQLiteStorage) GetImageByFilename(ctx context.Context, filename string) (*CapturedImage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images WHERE filename = ?`, filename)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return img, nil
}

// PreviousImage returns the image captured at or before at, latest first,
// or nil, nil when there is none. Ties on timestamp go to the newest row.
func (s *SQLiteStorage) PreviousImage(ctx context.Context, at time.Time) (*CapturedImage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+imageColumns+` FROM images
	WHERE timestamp <= ?
	ORDER BY timestamp DESC, id DESC LIMIT 1`, formatTime(at))
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get previous image: %w", err)
	}
	return img, nil
}

// ListImages pages through images newest first.
func (s *SQLiteStorage) ListImages(ctx context.Context, limit, offset int) ([]*CapturedImage, error) {
	return s.queryImages(ctx, `SELECT `+imageColumns+` FROM images ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`, limit, offset)
}

// ListPendingImages returns images still eligible for analysis, oldest first.
func (s *SQLiteStorage) ListPendingImages(ctx context.Context) ([]*CapturedImage, error) {
	return s.queryImages(ctx, `SELECT `+imageColumns+` FROM images
	WHERE is_analyzed = 0 AND is_duplicate = 0
	ORDER BY timestamp ASC, id ASC`)
}

// ListFailedImages returns images with at least one recorded failure,
// most recent first. Abandoned and still-retrying rows are both included.
func (s *SQLiteStorage) ListFailedImages(ctx context.Context, limit int) ([]*CapturedImage, error) {
	return s.queryImages(ctx, `SELECT `+imageColumns+` FROM images
	WHERE failure_count > 0
	ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
}

// ListAbandonedImages returns images that exhausted their retry budget.
// An analyzed image with failures is abandoned, since success resets the count.
func (s *SQLiteStorage) ListAbandonedImages(ctx context.Context) ([]*CapturedImage, error) {
	return s.queryImages(ctx, `SELECT `+imageColumns+` FROM images
	WHERE is_analyzed = 1 AND failure_count > 0
	ORDER BY timestamp ASC, id ASC`)
}

// UpdateAnalysisStatus persists the outcome of one analysis attempt that did
// not produce an Activity.
func (s *SQLiteStorage) UpdateAnalysisStatus(ctx context.Context, id int64, analyzed bool, failureCount int, lastError string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE images SET is_analyzed = ?, failure_count = ?, last_error = ? WHERE id = ?`,
		boolToInt(analyzed), failureCount, nullString(lastError), id)
	if err != nil {
		return fmt.Errorf("failed to update analysis status: %w", err)
	}
	return nil
}

// MarkImageAnalyzed closes out an image without an Activity.
func (s *SQLiteStorage) MarkImageAnalyzed(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `UPDATE images SET is_analyzed = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark image analyzed: %w", err)
	}
	return nil
}

// ResetAbandoned makes every abandoned image eligible again and returns
// their ids, oldest first.
func (s *SQLiteStorage) ResetAbandoned(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM images
		WHERE is_analyzed = 1 AND failure_count > 0
		ORDER BY timestamp ASC, id ASC`)
		if err != nil {
			return fmt.Errorf("failed to query abandoned images: %w", err)
		}
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan image id: %w", err)
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `UPDATE images SET is_analyzed = 0, failure_count = 0, last_error = NULL
		WHERE is_analyzed = 1 AND failure_count > 0`)
		if err != nil {
			return fmt.Errorf("failed to reset abandoned images: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// DayStats counts images and activities captured in [start, end).
func (s *SQLiteStorage) DayStats(ctx context.Context, start, end time.Time) (*DayStats, error) {
	stats := &DayStats{ByCategory: make(map[Category]int)}
	from, to := formatTime(start), formatTime(end)

	err := s.db.QueryRowContext(ctx, `
	SELECT COUNT(*),
		COALESCE(SUM(is_duplicate), 0),
		COALESCE(SUM(CASE WHEN is_analyzed = 1 AND failure_count = 0 AND is_duplicate = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_analyzed = 0 AND is_duplicate = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_analyzed = 1 AND failure_count > 0 THEN 1 ELSE 0 END), 0)
	FROM images WHERE timestamp >= ? AND timestamp < ?`, from, to).
		Scan(&stats.Screenshots, &stats.Duplicates, &stats.Analyzed, &stats.Pending, &stats.Abandoned)
	if err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM activities
	WHERE timestamp >= ? AND timestamp < ? GROUP BY category`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count activities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			c string
			n int
		)
		if err := rows.Scan(&c, &n); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		stats.ByCategory[Category(c)] += n
		stats.Activities += n
	}
	return stats, rows.Err()
}
