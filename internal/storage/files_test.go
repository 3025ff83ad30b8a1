package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileStore_Save(t *testing.T) {
	tmpDir := t.TempDir()
	loc, err := time.LoadLocation("Asia/Shanghai")
	if err != nil {
		t.Fatalf("LoadLocation failed: %v", err)
	}

	fs, err := NewFileStore(tmpDir, loc)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	// 2025-01-15 20:30 UTC is already the 16th in Shanghai
	testTime := time.Date(2025, 1, 15, 20, 30, 0, 0, time.UTC)
	path, err := fs.Save(testTime, "01J0000000.png", []byte("test screenshot data"))
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	expected := filepath.Join(tmpDir, "2025", "01", "16", "01J0000000.png")
	if path != expected {
		t.Errorf("Expected path %s, got %s", expected, path)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file: %v", err)
	}
	if string(content) != "test screenshot data" {
		t.Errorf("File content mismatch")
	}

	if !fs.Exists(path) {
		t.Errorf("Exists(%s) = false, want true", path)
	}
	if fs.Exists(filepath.Join(tmpDir, "missing.png")) {
		t.Errorf("Exists(missing) = true, want false")
	}
	if fs.Exists(filepath.Join(tmpDir, "2025")) {
		t.Errorf("Exists(directory) = true, want false")
	}
}

func TestFileStore_Contains(t *testing.T) {
	tmpDir := t.TempDir()
	fs, err := NewFileStore(tmpDir, nil)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	tests := []struct {
		name string
		path string
		want bool
	}{
		{"nested file", filepath.Join(tmpDir, "2025", "01", "01", "a.png"), true},
		{"parent escape", filepath.Join(tmpDir, "..", "etc", "passwd"), false},
		{"sibling prefix", tmpDir + "-other/a.png", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fs.Contains(tt.path); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}
