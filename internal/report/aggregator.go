// Package report buckets Activities into hourly and daily windows and
// produces one summary record per window.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"deskmemo/internal/analyzer"
	"deskmemo/internal/logger"
	"deskmemo/internal/storage"
)

const DefaultSampleSize = 10

// NarrativeError wraps a failed narrative call. Generation still succeeds
// with a fallback summary; the error is only logged.
type NarrativeError struct {
	Period storage.PeriodType
	Start  time.Time
	Err    error
}

func (e *NarrativeError) Error() string {
	return fmt.Sprintf("failed to narrate %s report starting %s: %v", e.Period, e.Start.Format(time.RFC3339), e.Err)
}

func (e *NarrativeError) Unwrap() error {
	return e.Err
}

// Window returns the [start, end) bucket of the given period containing t,
// aligned in loc.
func Window(period storage.PeriodType, t time.Time, loc *time.Location) (time.Time, time.Time) {
	t = t.In(loc)
	switch period {
	case storage.PeriodDaily:
		start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 0, 1)
	default:
		start := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, loc)
		return start, start.Add(time.Hour)
	}
}

type Options struct {
	Location       *time.Location
	MinutesPerItem int
	SampleSize     int
}

// Aggregator generates reports. narrator may be nil, in which case every
// report carries the fallback summary.
type Aggregator struct {
	store    storage.Storage
	narrator analyzer.Narrator
	opts     Options
	log      *logrus.Entry
}

func NewAggregator(store storage.Storage, narrator analyzer.Narrator, opts Options) *Aggregator {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MinutesPerItem <= 0 {
		opts.MinutesPerItem = 1
	}
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	return &Aggregator{
		store:    store,
		narrator: narrator,
		opts:     opts,
		log:      logger.WithComponent("report"),
	}
}

func (a *Aggregator) Location() *time.Location {
	return a.opts.Location
}

// GenerateHourly reports on the hour before the one containing now.
func (a *Aggregator) GenerateHourly(ctx context.Context, now time.Time) (*storage.Report, error) {
	start, _ := Window(storage.PeriodHourly, now, a.opts.Location)
	return a.Generate(ctx, storage.PeriodHourly, start.Add(-time.Hour))
}

// GenerateDaily reports on the day before the one containing now.
func (a *Aggregator) GenerateDaily(ctx context.Context, now time.Time) (*storage.Report, error) {
	start, _ := Window(storage.PeriodDaily, now, a.opts.Location)
	return a.Generate(ctx, storage.PeriodDaily, start.AddDate(0, 0, -1))
}

// Generate returns the report for the window containing t. An existing
// report is returned unchanged. A window without Activities yields nil, nil.
func (a *Aggregator) Generate(ctx context.Context, period storage.PeriodType, t time.Time) (*storage.Report, error) {
	start, end := Window(period, t, a.opts.Location)
	log := a.log.WithFields(logrus.Fields{"period": period, "start": start.Format(time.RFC3339)})

	existing, err := a.store.GetReport(ctx, period, start)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		log.Debug("Report already exists")
		return existing, nil
	}

	acts, err := a.store.ActivitiesInRange(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load activities: %w", err)
	}
	if len(acts) == 0 {
		log.Info("No activities in window, skipping report")
		return nil, nil
	}

	counts := Tally(acts)
	r := &storage.Report{
		PeriodType:     period,
		StartTime:      start,
		EndTime:        end,
		ItemCount:      len(acts),
		WorkMinutes:    counts[storage.CategoryWork] * a.opts.MinutesPerItem,
		StudyMinutes:   counts[storage.CategoryStudy] * a.opts.MinutesPerItem,
		LeisureMinutes: counts[storage.CategoryLeisure] * a.opts.MinutesPerItem,
		OtherMinutes:   counts[storage.CategoryOther] * a.opts.MinutesPerItem,
	}

	if period == storage.PeriodDaily {
		dist, err := json.Marshal(counts)
		if err != nil {
			return nil, fmt.Errorf("failed to encode distribution: %w", err)
		}
		r.Distribution = string(dist)
	}

	summary, err := a.narrate(ctx, period, start, acts, counts)
	if err != nil {
		log.Warnf("Using fallback summary: %v", err)
		summary = FallbackSummary(r)
	}
	r.Summary = summary

	stored, created, err := a.store.CreateReport(ctx, r)
	if err != nil {
		return nil, err
	}
	if created {
		log.WithField("items", r.ItemCount).Info("Report generated")
	} else {
		log.Info("Report was generated concurrently, returning stored row")
	}
	return stored, nil
}

func (a *Aggregator) narrate(ctx context.Context, period storage.PeriodType, start time.Time,
	acts []*storage.Activity, counts map[storage.Category]int) (string, error) {
	if a.narrator == nil {
		return "", &NarrativeError{Period: period, Start: start, Err: fmt.Errorf("no narrator configured")}
	}

	content := a.narrativeInput(period, acts, counts)
	text, err := a.narrator.Narrate(ctx, period, content)
	if err == nil && strings.TrimSpace(text) == "" {
		err = analyzer.ErrEmptyResponse
	}
	if err != nil {
		return "", &NarrativeError{Period: period, Start: start, Err: err}
	}
	return strings.TrimSpace(text), nil
}

func (a *Aggregator) narrativeInput(period storage.PeriodType, acts []*storage.Activity, counts map[storage.Category]int) string {
	var b strings.Builder
	if period == storage.PeriodDaily {
		fmt.Fprintf(&b, "Activities recorded: %d\nDistribution:\n", len(acts))
		for _, c := range storage.Categories {
			if counts[c] > 0 {
				fmt.Fprintf(&b, "- %s: %d\n", c, counts[c])
			}
		}
		b.WriteString("\nKey activities:\n")
	} else {
		b.WriteString("Activities:\n")
	}
	for _, act := range Sample(period, acts, a.opts.SampleSize) {
		fmt.Fprintf(&b, "- %s [%s] %s: %s\n",
			act.Timestamp.In(a.opts.Location).Format("15:04"), act.Category, act.Application, act.Description)
	}
	return b.String()
}

// Tally counts Activities per category.
func Tally(acts []*storage.Activity) map[storage.Category]int {
	counts := make(map[storage.Category]int, len(storage.Categories))
	for _, act := range acts {
		c := act.Category
		if c == "" {
			c = storage.CategoryOther
		}
		counts[c]++
	}
	return counts
}

// Sample picks at most size Activities for the narrative. Hourly windows
// take the first ones; daily windows take every n/size-th so the whole
// day is covered.
func Sample(period storage.PeriodType, acts []*storage.Activity, size int) []*storage.Activity {
	if period != storage.PeriodDaily {
		if len(acts) > size {
			return acts[:size]
		}
		return acts
	}

	step := max(1, len(acts)/size)
	out := make([]*storage.Activity, 0, size)
	for i := 0; i < len(acts) && len(out) < size; i += step {
		out = append(out, acts[i])
	}
	return out
}

// FallbackSummary describes a report from its tallies alone.
func FallbackSummary(r *storage.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d activities recorded.", r.ItemCount)
	for _, c := range storage.Categories {
		if m := r.Minutes(c); m > 0 {
			fmt.Fprintf(&b, " %s: ~%d min.", c, m)
		}
	}
	return b.String()
}
