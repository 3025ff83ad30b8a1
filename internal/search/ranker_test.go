package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"deskmemo/internal/storage"
	"deskmemo/internal/vectorindex"
	"deskmemo/internal/vectorindex/mocks"
)

func TestKeywordScore(t *testing.T) {
	a := &storage.Activity{
		Category:       storage.CategoryWork,
		Application:    "Zoom Meeting",
		Description:    "Weekly meeting notes",
		ContentSummary: "agenda for the MEETING",
	}

	tests := []struct {
		name  string
		query string
		act   *storage.Activity
		want  float64
	}{
		{"只命中描述", "notes", a, 1.0},
		{"命中分类", "work", a, 0.7},
		{"命中应用", "zoom", a, 0.8},
		{"多字段封顶", "meeting", a, 1.0},
		{"仅原文命中", "xyz", &storage.Activity{RawText: "xyz"}, 0.6},
		{"摘要命中", "agenda", a, 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, KeywordScore(tt.query, tt.act), 1e-9)
		})
	}
}

func TestSemanticScore(t *testing.T) {
	tests := []struct {
		name     string
		distance float64
		want     float64
		ok       bool
	}{
		{"完全相同", 0, 0.8, true},
		{"相似度0.7", 0.6, 0.56, true},
		{"相似度0.5边界", 1.0, 0.4, true},
		{"太远丢弃", 1.2, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SemanticScore(tt.distance)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func hit(imageID int64, score float64, rel Relevance) Hit {
	return Hit{Activity: &storage.Activity{ImageID: imageID}, Score: score, Relevance: rel}
}

func TestMerge(t *testing.T) {
	keyword := []Hit{hit(1, 0.6, RelevanceKeyword), hit(2, 1.0, RelevanceKeyword)}
	semantic := []Hit{hit(2, 0.8, RelevanceSemantic), hit(3, 0.6, RelevanceSemantic), hit(4, 0.7, RelevanceSemantic)}

	got := Merge(keyword, semantic, 3)
	require.Len(t, got, 3)
	assert.Equal(t, int64(2), got[0].Activity.ImageID)
	assert.Equal(t, RelevanceKeyword, got[0].Relevance, "keyword wins the dedup")
	assert.Equal(t, int64(4), got[1].Activity.ImageID)
	// equal scores keep keyword-first order
	assert.Equal(t, int64(1), got[2].Activity.ImageID)
	assert.Equal(t, RelevanceKeyword, got[2].Relevance)
}

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	s, err := storage.NewStorage(filepath.Join(t.TempDir(), "search.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedActivity(t *testing.T, s storage.Storage, name string, at time.Time, a storage.Activity) *storage.Activity {
	t.Helper()
	ctx := context.Background()
	img := &storage.CapturedImage{Filename: name, Path: "/data/" + name, Timestamp: at, Fingerprint: "0000000000000000"}
	require.NoError(t, s.SaveImage(ctx, img))
	a.ImageID = img.ID
	a.Timestamp = at
	a.VectorID = vectorindex.VectorID(img.ID)
	require.NoError(t, s.RecordSuccess(ctx, &a))
	return &a
}

func TestRanker_MeetingScenario(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := newTestStore(t)
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	notes := seedActivity(t, store, "a.jpg", at, storage.Activity{
		Category:    storage.CategoryOther,
		Application: "Notion",
		Description: "editing meeting notes",
	})
	call := seedActivity(t, store, "b.jpg", at.Add(time.Minute), storage.Activity{
		Category:    storage.CategoryWork,
		Application: "Zoom",
		Description: "video call with the team",
	})

	idx := mocks.NewMockIndex(ctrl)
	idx.EXPECT().Query(gomock.Any(), "meeting", 10).Return([]vectorindex.Match{
		{ID: call.VectorID, Distance: 0.6},
		{ID: notes.VectorID, Distance: 0.2},
		{ID: "activity_999", Distance: 0.1},
		{ID: "unrelated", Distance: 0.1},
	}, nil)

	hits, err := NewRanker(store, idx).Search(context.Background(), "meeting", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, notes.ImageID, hits[0].Activity.ImageID)
	assert.Equal(t, RelevanceKeyword, hits[0].Relevance)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)

	assert.Equal(t, call.ImageID, hits[1].Activity.ImageID)
	assert.Equal(t, RelevanceSemantic, hits[1].Relevance)
	assert.InDelta(t, 0.56, hits[1].Score, 1e-9)
}

func TestRanker_IndexFailureDegrades(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := newTestStore(t)
	seedActivity(t, store, "a.jpg", time.Now(), storage.Activity{
		Category:    storage.CategoryStudy,
		Application: "Anki",
		Description: "reviewing flashcards",
	})

	idx := mocks.NewMockIndex(ctrl)
	idx.EXPECT().Query(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("qdrant unavailable"))

	hits, err := NewRanker(store, idx).Search(context.Background(), "FLASHCARDS", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, RelevanceKeyword, hits[0].Relevance)
}

func TestRanker_Validation(t *testing.T) {
	r := NewRanker(newTestStore(t), nil)

	_, err := r.Search(context.Background(), "   ", 10)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	hits, err := r.Search(context.Background(), "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestRanker_NonASCIIKeyword(t *testing.T) {
	store := newTestStore(t)
	seedActivity(t, store, "a.jpg", time.Now(), storage.Activity{
		Category:    storage.CategoryWork,
		Application: "Excel",
		Description: "ÜBERSICHT der Woche",
	})

	hits, err := NewRanker(store, nil).Search(context.Background(), "übersicht", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1, "SQL stage and KeywordScore fold the same way")
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}
