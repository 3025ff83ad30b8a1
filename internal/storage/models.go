package storage

import (
	"strings"
	"time"
)

// Category is the enumerated activity classification.
type Category string

const (
	CategoryWork    Category = "work"
	CategoryStudy   Category = "study"
	CategoryLeisure Category = "leisure"
	CategoryOther   Category = "other"
)

// Categories lists every category in report order.
var Categories = []Category{CategoryWork, CategoryStudy, CategoryLeisure, CategoryOther}

// ParseCategory maps free-form labels (English or Chinese) onto a Category.
// Unknown labels become CategoryOther.
func ParseCategory(label string) Category {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "work", "working", "工作":
		return CategoryWork
	case "study", "studying", "learning", "学习":
		return CategoryStudy
	case "leisure", "entertainment", "fun", "娱乐", "休闲":
		return CategoryLeisure
	default:
		return CategoryOther
	}
}

// CapturedImage is one uploaded screenshot.
type CapturedImage struct {
	ID           int64
	Filename     string
	Path         string
	Timestamp    time.Time
	Width        int
	Height       int
	FileSize     int64
	Fingerprint  string // 64-bit perceptual hash, 16 hex chars
	IsDuplicate  bool
	IsAnalyzed   bool
	FailureCount int
	LastError    string // empty when absent
}

// Activity is the analyzer's interpretation of one image.
type Activity struct {
	ID             int64
	ImageID        int64
	ImageFilename  string
	Timestamp      time.Time
	Category       Category
	Application    string
	Description    string
	ContentSummary string
	RawText        string
	VectorID       string
	Indexed        bool
	IndexAttempts  int
}

// PeriodType is the report granularity.
type PeriodType string

const (
	PeriodHourly PeriodType = "hourly"
	PeriodDaily  PeriodType = "daily"
)

// ParsePeriodType accepts "hourly"/"hour" and "daily"/"day".
func ParsePeriodType(s string) (PeriodType, bool) {
	switch strings.ToLower(s) {
	case "hourly", "hour":
		return PeriodHourly, true
	case "daily", "day":
		return PeriodDaily, true
	}
	return "", false
}

// Report aggregates the activities of one hourly or daily window.
//
// The per-category "minutes" are activity counts multiplied by a configured
// unit; they approximate time spent and are only as accurate as the capture
// interval.
type Report struct {
	ID             int64
	PeriodType     PeriodType
	StartTime      time.Time
	EndTime        time.Time
	Summary        string
	ItemCount      int
	WorkMinutes    int
	StudyMinutes   int
	LeisureMinutes int
	OtherMinutes   int
	Distribution   string // JSON object of category counts, daily only
	CreatedAt      time.Time
}

// Minutes returns the counter for one category.
func (r *Report) Minutes(c Category) int {
	switch c {
	case CategoryWork:
		return r.WorkMinutes
	case CategoryStudy:
		return r.StudyMinutes
	case CategoryLeisure:
		return r.LeisureMinutes
	default:
		return r.OtherMinutes
	}
}

// DayStats is a snapshot of one day's pipeline counters.
type DayStats struct {
	Screenshots int
	Duplicates  int
	Analyzed    int
	Pending     int
	Abandoned   int
	Activities  int
	ByCategory  map[Category]int
}
