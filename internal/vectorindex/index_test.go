package vectorindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskmemo/internal/analyzer"
)

func TestVectorID(t *testing.T) {
	assert.Equal(t, "activity_42", VectorID(42))

	id, err := ParseVectorID("activity_42")
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)

	for _, bad := range []string{"42", "activity_", "activity_x", "screenshot_1"} {
		_, err := ParseVectorID(bad)
		assert.Error(t, err, "ParseVectorID(%q)", bad)
	}
}

func TestPointID(t *testing.T) {
	a := PointID("activity_1")
	assert.Equal(t, a, PointID("activity_1"), "deterministic")
	assert.NotEqual(t, a, PointID("activity_2"))
	_, err := uuid.Parse(a)
	assert.NoError(t, err)
}

func TestScoreToDistance(t *testing.T) {
	assert.InDelta(t, 0.0, scoreToDistance(1), 1e-9)
	assert.InDelta(t, 0.6, scoreToDistance(0.4), 1e-6)
	assert.InDelta(t, 2.0, scoreToDistance(-1), 1e-9)
	assert.InDelta(t, 0.0, scoreToDistance(1.0001), 1e-9)
}

func embeddingsReply(vectors ...[]float32) map[string]any {
	data := make([]map[string]any, len(vectors))
	for i, v := range vectors {
		data[i] = map[string]any{"object": "embedding", "index": i, "embedding": v}
	}
	return map[string]any{"object": "list", "data": data}
}

func TestEmbeddingsClient_EmbedTexts(t *testing.T) {
	tests := []struct {
		name       string
		texts      []string
		vectorSize int
		serverResp func(w http.ResponseWriter, r *http.Request)
		wantErr    bool
		wantCount  int
	}{
		{
			name:       "正常",
			texts:      []string{"hello", "world"},
			vectorSize: 4,
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/embeddings" {
					t.Errorf("path = %s, want /v1/embeddings", r.URL.Path)
				}
				if got := r.Header.Get("Authorization"); got != "Bearer key" {
					t.Errorf("Authorization = %q", got)
				}
				var req struct {
					Model string   `json:"model"`
					Input []string `json:"input"`
				}
				_ = json.NewDecoder(r.Body).Decode(&req)
				if req.Model != "embed" || len(req.Input) != 2 {
					t.Errorf("unexpected request %+v", req)
				}
				_ = json.NewEncoder(w).Encode(embeddingsReply([]float32{1, 0, 0, 0}, []float32{0, 1, 0, 0}))
			},
			wantCount: 2,
		},
		{
			name:       "空输入",
			texts:      []string{},
			vectorSize: 4,
			serverResp: func(w http.ResponseWriter, r *http.Request) {},
			wantErr:    true,
		},
		{
			name:       "维度不符",
			texts:      []string{"hello"},
			vectorSize: 4,
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(embeddingsReply([]float32{1, 2}))
			},
			wantErr: true,
		},
		{
			name:       "数量不符",
			texts:      []string{"a", "b"},
			vectorSize: 2,
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(embeddingsReply([]float32{1, 2}))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResp))
			defer server.Close()

			client := NewEmbeddingsClient(server.URL+"/v1/", "key", "embed", tt.vectorSize)
			got, err := client.EmbedTexts(context.Background(), tt.texts)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.wantCount)
			assert.Equal(t, float32(1), got[0][0])
			assert.Equal(t, float32(1), got[1][1])
		})
	}
}

func TestEmbeddingsClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := NewEmbeddingsClient(server.URL, "", "embed", 2).EmbedTexts(context.Background(), []string{"a"})
	var se *analyzer.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Equal(t, "rate_limit", analyzer.ErrorKind(err))
}
