package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/DeRuina/timberjack"
	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05"

var (
	// Logger is the process-wide logger. Use GetLogger to read it.
	Logger *logrus.Logger

	mu          sync.Mutex
	initialized bool
	fileWriter  *timberjack.Logger
)

// LogConfig holds configuration for logging
type LogConfig struct {
	Level        string // "debug", "info", "warn", "error"
	Format       string // "text" (default) or "json"
	FilePath     string // empty disables the file sink
	RotationTime string // e.g. "1h", "24h"
	MaxSize      int    // megabytes
	MaxBackups   int
	MaxAge       int // days
	Compress     bool
}

// Init configures the global logger once. Later calls are no-ops until Close.
func Init(cfg LogConfig) error {
	mu.Lock()
	defer mu.Unlock()

	if initialized && Logger != nil {
		return nil
	}
	if Logger == nil {
		Logger = logrus.New()
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	Logger.SetLevel(level)
	Logger.SetFormatter(newFormatter(cfg.Format))

	writers := []io.Writer{}
	if !stdoutIsRegularFile() {
		writers = append(writers, os.Stdout)
	}

	if cfg.FilePath != "" {
		w, err := newFileWriter(cfg)
		if err != nil {
			return err
		}
		fileWriter = w
		writers = append(writers, w)
	}

	if len(writers) == 0 {
		Logger.SetOutput(io.Discard)
	} else {
		Logger.SetOutput(io.MultiWriter(writers...))
	}

	initialized = true
	return nil
}

func newFormatter(format string) logrus.Formatter {
	if format == "json" {
		return &logrus.JSONFormatter{TimestampFormat: time.RFC3339}
	}
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		DisableColors:   true,
	}
}

func newFileWriter(cfg LogConfig) (*timberjack.Logger, error) {
	if dir := filepath.Dir(cfg.FilePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	rotation := time.Hour
	if cfg.RotationTime != "" {
		d, err := time.ParseDuration(cfg.RotationTime)
		if err != nil {
			return nil, fmt.Errorf("invalid rotation_time: %w", err)
		}
		rotation = d
	}

	compression := ""
	if cfg.Compress {
		compression = "gzip"
	}

	return &timberjack.Logger{
		Filename:         cfg.FilePath,
		MaxSize:          orDefault(cfg.MaxSize, 100),
		MaxBackups:       orDefault(cfg.MaxBackups, 3),
		MaxAge:           orDefault(cfg.MaxAge, 28),
		RotationInterval: rotation,
		Compression:      compression,
		LocalTime:        true,
	}, nil
}

func orDefault(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// stdoutIsRegularFile reports whether stdout was redirected into a file,
// in which case the rotating file sink already has every line.
func stdoutIsRegularFile() bool {
	stat, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return stat.Mode().IsRegular()
}

// Close flushes and closes the rotating file sink, if any.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	initialized = false
	if fileWriter == nil {
		return nil
	}
	err := fileWriter.Close()
	fileWriter = nil
	return err
}

// GetLogger returns the global logger. Before Init it returns a logger that
// discards output so packages can log unconditionally in tests.
func GetLogger() *logrus.Logger {
	mu.Lock()
	defer mu.Unlock()

	if Logger == nil {
		Logger = logrus.New()
		Logger.SetOutput(io.Discard)
		Logger.SetLevel(logrus.InfoLevel)
		Logger.SetFormatter(newFormatter("text"))
	}
	return Logger
}

// WithComponent returns an entry tagged with the owning component.
func WithComponent(name string) *logrus.Entry {
	return GetLogger().WithField("component", name)
}

type contextKey string

const entryKey contextKey = "logger"

// NewContext stores entry in ctx for request-scoped logging.
func NewContext(ctx context.Context, entry *logrus.Entry) context.Context {
	return context.WithValue(ctx, entryKey, entry)
}

// FromContext returns the entry stored by NewContext, or a plain entry of
// the global logger.
func FromContext(ctx context.Context) *logrus.Entry {
	if e, ok := ctx.Value(entryKey).(*logrus.Entry); ok && e != nil {
		return e
	}
	return logrus.NewEntry(GetLogger())
}
