package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileStore manages image files under a root directory, laid out by
// capture date: YYYY/MM/DD/<name>.
type FileStore struct {
	root string
	loc  *time.Location
}

// NewFileStore creates the root directory if needed. Date directories use loc.
func NewFileStore(root string, loc *time.Location) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &FileStore{root: root, loc: loc}, nil
}

// RelativePath returns the date-nested path for filename captured at t.
func (fs *FileStore) RelativePath(t time.Time, filename string) string {
	t = t.In(fs.loc)
	return filepath.Join(t.Format("2006"), t.Format("01"), t.Format("02"), filename)
}

// Save writes data and returns the absolute path.
func (fs *FileStore) Save(t time.Time, filename string, data []byte) (string, error) {
	fullPath := filepath.Join(fs.root, fs.RelativePath(t, filename))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	return fullPath, nil
}

// Exists reports whether path names an existing regular file.
func (fs *FileStore) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Contains reports whether path lies under the store root.
func (fs *FileStore) Contains(path string) bool {
	rel, err := filepath.Rel(fs.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
