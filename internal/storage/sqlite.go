package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
)

// SQLite's lower() only folds ASCII. fold(x) lowercases with Go's Unicode
// tables so SQL matching agrees with strings.ToLower.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("fold", 1, foldFunc)
}

func foldFunc(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// timeLayout is fixed width and always UTC so that stored strings sort
// chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// rows written by hand or older tools
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
		}
	}
	return t.UTC(), nil
}

type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (creating if needed) the database at dbPath and
// applies the schema.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer; one pooled connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStorage{db: db}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return s, nil
}

var migrations = []struct {
	name string
	stmt string
}{
	{"images table", `
	CREATE TABLE IF NOT EXISTS images (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		filename TEXT NOT NULL UNIQUE,
		path TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		file_size INTEGER NOT NULL DEFAULT 0,
		fingerprint TEXT NOT NULL,
		is_duplicate INTEGER NOT NULL DEFAULT 0,
		is_analyzed INTEGER NOT NULL DEFAULT 0,
		failure_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT
	)`},
	{"activities table", `
	CREATE TABLE IF NOT EXISTS activities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		image_id INTEGER NOT NULL UNIQUE REFERENCES images(id),
		timestamp TEXT NOT NULL,
		category TEXT NOT NULL,
		application TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		content_summary TEXT NOT NULL DEFAULT '',
		raw_text TEXT NOT NULL DEFAULT '',
		vector_id TEXT NOT NULL,
		indexed INTEGER NOT NULL DEFAULT 0,
		index_attempts INTEGER NOT NULL DEFAULT 0
	)`},
	{"reports table", `
	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		period_type TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		summary TEXT NOT NULL DEFAULT '',
		item_count INTEGER NOT NULL DEFAULT 0,
		work_minutes INTEGER NOT NULL DEFAULT 0,
		study_minutes INTEGER NOT NULL DEFAULT 0,
		leisure_minutes INTEGER NOT NULL DEFAULT 0,
		other_minutes INTEGER NOT NULL DEFAULT 0,
		distribution TEXT,
		created_at TEXT NOT NULL,
		UNIQUE(period_type, start_time)
	)`},
	{"indexes", `
	CREATE INDEX IF NOT EXISTS idx_images_timestamp ON images(timestamp);
	CREATE INDEX IF NOT EXISTS idx_images_pending ON images(is_analyzed, is_duplicate);
	CREATE INDEX IF NOT EXISTS idx_activities_timestamp ON activities(timestamp);
	CREATE INDEX IF NOT EXISTS idx_activities_indexed ON activities(indexed);
	CREATE INDEX IF NOT EXISTS idx_reports_type_start ON reports(period_type, start_time);
	`},
}

func (s *SQLiteStorage) init(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m.stmt); err != nil {
			return fmt.Errorf("failed to create %s: %w", m.name, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// inTx runs fn inside a transaction, rolling back on error.
func (s *SQLiteStorage) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// likePattern escapes LIKE metacharacters and lowercases the needle.
// Compare it against fold(col) with `ESCAPE '\'`.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(q)) + "%"
}

type scanner interface {
	Scan(dest ...any) error
}
