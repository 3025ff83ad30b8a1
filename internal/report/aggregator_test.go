package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"deskmemo/internal/analyzer/mocks"
	"deskmemo/internal/storage"
)

var cst = time.FixedZone("CST", 8*3600)

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewStorage(filepath.Join(t.TempDir(), "report.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seed(t *testing.T, s storage.Storage, at time.Time, c storage.Category, desc string) {
	t.Helper()
	ctx := context.Background()
	img := &storage.CapturedImage{
		Filename:    fmt.Sprintf("%d.jpg", at.UnixNano()),
		Path:        "/data/x.jpg",
		Timestamp:   at,
		Fingerprint: "0000000000000000",
	}
	require.NoError(t, s.SaveImage(ctx, img))
	require.NoError(t, s.RecordSuccess(ctx, &storage.Activity{
		ImageID:     img.ID,
		Timestamp:   at,
		Category:    c,
		Application: "App",
		Description: desc,
		VectorID:    fmt.Sprintf("activity_%d", img.ID),
	}))
}

func TestWindow(t *testing.T) {
	tests := []struct {
		name       string
		period     storage.PeriodType
		at         time.Time
		start, end time.Time
	}{
		{
			"小时窗口",
			storage.PeriodHourly,
			time.Date(2025, 3, 10, 9, 37, 12, 0, cst),
			time.Date(2025, 3, 10, 9, 0, 0, 0, cst),
			time.Date(2025, 3, 10, 10, 0, 0, 0, cst),
		},
		{
			"日窗口按参考时区对齐",
			storage.PeriodDaily,
			time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC), // 04:00 on the 10th in CST
			time.Date(2025, 3, 10, 0, 0, 0, 0, cst),
			time.Date(2025, 3, 11, 0, 0, 0, 0, cst),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := Window(tt.period, tt.at, cst)
			assert.True(t, start.Equal(tt.start), "start = %v", start)
			assert.True(t, end.Equal(tt.end), "end = %v", end)
		})
	}
}

func TestSample(t *testing.T) {
	acts := make([]*storage.Activity, 25)
	for i := range acts {
		acts[i] = &storage.Activity{ID: int64(i)}
	}
	ids := func(in []*storage.Activity) []int64 {
		var out []int64
		for _, a := range in {
			out = append(out, a.ID)
		}
		return out
	}

	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, ids(Sample(storage.PeriodHourly, acts, 10)))
	assert.Equal(t, []int64{0, 2, 4, 6, 8, 10, 12, 14, 16, 18}, ids(Sample(storage.PeriodDaily, acts, 10)))
	assert.Equal(t, []int64{0, 1, 2}, ids(Sample(storage.PeriodDaily, acts[:3], 10)))
}

func TestAggregator_GenerateIdempotent(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := newTestStore(t)
	hour := time.Date(2025, 3, 10, 9, 0, 0, 0, cst)
	seed(t, store, hour.Add(1*time.Minute), storage.CategoryWork, "writing design doc")
	seed(t, store, hour.Add(2*time.Minute), storage.CategoryWork, "code review")
	seed(t, store, hour.Add(3*time.Minute), storage.CategoryLeisure, "reading news")
	// outside the half-open window
	seed(t, store, hour.Add(time.Hour), storage.CategoryStudy, "next hour")

	narrator := mocks.NewMockNarrator(ctrl)
	narrator.EXPECT().Narrate(gomock.Any(), storage.PeriodHourly, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ storage.PeriodType, content string) (string, error) {
			assert.Contains(t, content, "09:01 [work] App: writing design doc")
			assert.NotContains(t, content, "next hour")
			return "  A focused hour of **work**.  ", nil
		}).Times(1)

	agg := NewAggregator(store, narrator, Options{Location: cst, MinutesPerItem: 2})
	ctx := context.Background()

	r, err := agg.Generate(ctx, storage.PeriodHourly, hour.Add(30*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.StartTime.Equal(hour))
	assert.True(t, r.EndTime.Equal(hour.Add(time.Hour)))
	assert.Equal(t, 3, r.ItemCount)
	assert.Equal(t, 4, r.WorkMinutes)
	assert.Equal(t, 2, r.LeisureMinutes)
	assert.Zero(t, r.StudyMinutes)
	assert.Equal(t, "A focused hour of **work**.", r.Summary)
	assert.Empty(t, r.Distribution, "hourly reports carry no distribution")

	again, err := agg.Generate(ctx, storage.PeriodHourly, hour)
	require.NoError(t, err)
	assert.Equal(t, r.ID, again.ID)
	assert.Equal(t, r.Summary, again.Summary)

	rows, err := store.ListReports(ctx, storage.PeriodHourly, hour.Add(-time.Hour), hour.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestAggregator_EmptyWindow(t *testing.T) {
	agg := NewAggregator(newTestStore(t), nil, Options{Location: cst})
	r, err := agg.Generate(context.Background(), storage.PeriodDaily, time.Date(2025, 3, 10, 12, 0, 0, 0, cst))
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestAggregator_NarrativeFailureFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := newTestStore(t)
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, cst)
	seed(t, store, day.Add(9*time.Hour), storage.CategoryWork, "standup")
	seed(t, store, day.Add(10*time.Hour), storage.CategoryWork, "coding")
	seed(t, store, day.Add(20*time.Hour), storage.CategoryStudy, "course")

	narrator := mocks.NewMockNarrator(ctrl)
	narrator.EXPECT().Narrate(gomock.Any(), storage.PeriodDaily, gomock.Any()).
		DoAndReturn(func(_ context.Context, _ storage.PeriodType, content string) (string, error) {
			assert.Contains(t, content, "Activities recorded: 3")
			assert.Contains(t, content, "- work: 2")
			return "", errors.New("API error (status 503)")
		})

	agg := NewAggregator(store, narrator, Options{Location: cst})
	r, err := agg.Generate(context.Background(), storage.PeriodDaily, day)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "3 activities recorded. work: ~2 min. study: ~1 min.", r.Summary)

	var dist map[string]int
	require.NoError(t, json.Unmarshal([]byte(r.Distribution), &dist))
	assert.Equal(t, map[string]int{"work": 2, "study": 1}, dist)
}

func TestAggregator_ScheduleHooks(t *testing.T) {
	store := newTestStore(t)
	seed(t, store, time.Date(2025, 3, 10, 8, 15, 0, 0, cst), storage.CategoryOther, "browsing")

	agg := NewAggregator(store, nil, Options{Location: cst})
	ctx := context.Background()

	r, err := agg.GenerateHourly(ctx, time.Date(2025, 3, 10, 9, 5, 0, 0, cst))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.StartTime.Equal(time.Date(2025, 3, 10, 8, 0, 0, 0, cst)))

	r, err = agg.GenerateDaily(ctx, time.Date(2025, 3, 11, 1, 0, 0, 0, cst))
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.True(t, r.StartTime.Equal(time.Date(2025, 3, 10, 0, 0, 0, 0, cst)))
	assert.Equal(t, 1, r.OtherMinutes)
}

func TestAggregator_ConcurrentGenerateConverges(t *testing.T) {
	store := newTestStore(t)
	hour := time.Date(2025, 3, 10, 14, 0, 0, 0, cst)
	seed(t, store, hour.Add(5*time.Minute), storage.CategoryWork, "deploy")

	agg := NewAggregator(store, nil, Options{Location: cst})
	var wg sync.WaitGroup
	ids := make([]int64, 4)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := agg.Generate(context.Background(), storage.PeriodHourly, hour)
			if assert.NoError(t, err) && assert.NotNil(t, r) {
				ids[i] = r.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids[1:] {
		assert.Equal(t, ids[0], id)
	}
}

func TestRenderHTML(t *testing.T) {
	r := &storage.Report{
		PeriodType:  storage.PeriodDaily,
		StartTime:   time.Date(2025, 3, 10, 0, 0, 0, 0, cst),
		Summary:     "Mostly **work**.\n\n- standup\n- coding",
		ItemCount:   2,
		WorkMinutes: 2,
	}
	page, err := RenderHTML(r, cst)
	require.NoError(t, err)

	html := string(page)
	assert.Contains(t, html, "<title>daily report 2025-03-10</title>")
	assert.Contains(t, html, "<strong>work</strong>")
	assert.Contains(t, html, "<li>standup</li>")
	assert.True(t, strings.Contains(html, "<td>2 min</td>"))
}
