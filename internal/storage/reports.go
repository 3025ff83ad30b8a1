package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const reportColumns = `id, period_type, start_time, end_time, summary, item_count,
	work_minutes, study_minutes, leisure_minutes, other_minutes, distribution, created_at`

func scanReport(row scanner) (*Report, error) {
	var (
		r                     Report
		period, start, end, c string
		dist                  sql.NullString
	)
	if err := row.Scan(&r.ID, &period, &start, &end, &r.Summary, &r.ItemCount,
		&r.WorkMinutes, &r.StudyMinutes, &r.LeisureMinutes, &r.OtherMinutes, &dist, &c); err != nil {
		return nil, err
	}
	var err error
	if r.StartTime, err = parseTime(start); err != nil {
		return nil, err
	}
	if r.EndTime, err = parseTime(end); err != nil {
		return nil, err
	}
	if r.CreatedAt, err = parseTime(c); err != nil {
		return nil, err
	}
	r.PeriodType = PeriodType(period)
	r.Distribution = dist.String
	return &r, nil
}

// GetReport returns nil, nil when no report exists for (period, start).
func (s *SQLiteStorage) GetReport(ctx context.Context, period PeriodType, start time.Time) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+reportColumns+` FROM reports WHERE period_type = ? AND start_time = ?`,
		string(period), formatTime(start))
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}
	return r, nil
}

// CreateReport inserts r unless a report for the same (period, start)
// already exists. Either way it returns the stored row and whether this
// call created it.
func (s *SQLiteStorage) CreateReport(ctx context.Context, r *Report) (*Report, bool, error) {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx, `
	INSERT INTO reports (period_type, start_time, end_time, summary, item_count,
		work_minutes, study_minutes, leisure_minutes, other_minutes, distribution, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(period_type, start_time) DO NOTHING`,
		string(r.PeriodType), formatTime(r.StartTime), formatTime(r.EndTime), r.Summary, r.ItemCount,
		r.WorkMinutes, r.StudyMinutes, r.LeisureMinutes, r.OtherMinutes, nullString(r.Distribution), formatTime(r.CreatedAt))
	if err != nil {
		return nil, false, fmt.Errorf("failed to save report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to read affected rows: %w", err)
	}

	stored, err := s.GetReport(ctx, r.PeriodType, r.StartTime)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("report %s@%s vanished after insert", r.PeriodType, formatTime(r.StartTime))
	}
	return stored, n == 1, nil
}

// ListReports returns reports of one period type starting in [start, end), oldest first.
func (s *SQLiteStorage) ListReports(ctx context.Context, period PeriodType, start, end time.Time) ([]*Report, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+reportColumns+` FROM reports
	WHERE period_type = ? AND start_time >= ? AND start_time < ?
	ORDER BY start_time ASC`, string(period), formatTime(start), formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
