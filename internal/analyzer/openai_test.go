package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deskmemo/internal/storage"
)

func chatReply(content string) ChatResponse {
	var resp ChatResponse
	resp.Choices = []Choice{{}}
	resp.Choices[0].Message.Content = content
	return resp
}

func TestOpenAI_Analyze(t *testing.T) {
	tests := []struct {
		name       string
		serverResp func(w http.ResponseWriter, r *http.Request)
		want       string
		wantStatus int
		wantEmpty  bool
	}{
		{
			name: "success",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(chatReply(`{"activity_type":"work"}`))
			},
			want: `{"activity_type":"work"}`,
		},
		{
			name: "server error",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "upstream exploded", http.StatusInternalServerError)
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "no choices",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(ChatResponse{})
			},
			wantEmpty: true,
		},
		{
			name: "blank content",
			serverResp: func(w http.ResponseWriter, r *http.Request) {
				_ = json.NewEncoder(w).Encode(chatReply("   "))
			},
			wantEmpty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(tt.serverResp))
			defer server.Close()

			client := NewOpenAI(Options{BaseURL: server.URL, APIKey: "k", Model: "m", MaxTokens: 500})
			got, err := client.Analyze(context.Background(), "http://images/a.png")

			switch {
			case tt.wantStatus != 0:
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tt.wantStatus, se.StatusCode)
				assert.Contains(t, se.Error(), "status 500")
			case tt.wantEmpty:
				assert.ErrorIs(t, err, ErrEmptyResponse)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestOpenAI_AnalyzeRequestShape(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatReply("ok"))
	}))
	defer server.Close()

	client := NewOpenAI(Options{BaseURL: server.URL + "/", APIKey: "secret", Model: "vision", MaxTokens: 500})
	_, err := client.Analyze(context.Background(), "http://images/a.png")
	require.NoError(t, err)

	assert.Equal(t, "vision", got.Model)
	assert.Equal(t, 500, got.MaxTokens)
	require.Len(t, got.Messages, 1)
	require.Len(t, got.Messages[0].Content, 2)
	assert.Equal(t, defaultAnalysisPrompt, got.Messages[0].Content[0].Text)
	assert.Equal(t, "http://images/a.png", got.Messages[0].Content[1].ImageURL.URL)
}

func TestOpenAI_Narrate(t *testing.T) {
	var got ChatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(chatReply("a productive day"))
	}))
	defer server.Close()

	client := NewOpenAI(Options{BaseURL: server.URL, Model: "vision", SummaryModel: "cheap"})
	text, err := client.Narrate(context.Background(), storage.PeriodDaily, "- 09:00: coding")
	require.NoError(t, err)
	assert.Equal(t, "a productive day", text)
	assert.Equal(t, "cheap", got.Model)
	assert.Equal(t, 600, got.MaxTokens)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "- 09:00: coding", got.Messages[1].Content[0].Text)
}

func TestOpenAI_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	client := NewOpenAI(Options{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Analyze(context.Background(), "x")
	require.Error(t, err)
	assert.Equal(t, "timeout", ErrorKind(err))
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err       error
		kind      string
		retryable bool
	}{
		{&StatusError{StatusCode: 429}, "rate_limit", true},
		{&StatusError{StatusCode: 503}, "server_error", true},
		{&StatusError{StatusCode: 401}, "auth", false},
		{&StatusError{StatusCode: 400}, "client_error", false},
		{context.DeadlineExceeded, "timeout", true},
		{ErrEmptyResponse, "empty_response", true},
		{errors.New("failed to send request: dial tcp"), "connection_failed", true},
		{errors.New("weird"), "other_error", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, ErrorKind(tt.err), "ErrorKind(%v)", tt.err)
		assert.Equal(t, tt.retryable, IsRetryable(tt.err), "IsRetryable(%v)", tt.err)
	}
}

func TestImageRefs_Resolve(t *testing.T) {
	ref, err := ImageRefs{BaseURL: "http://host:8000/images/"}.Resolve("/data/x.png", "a b.png")
	require.NoError(t, err)
	assert.Equal(t, "http://host:8000/images/a%20b.png", ref)

	path := filepath.Join(t.TempDir(), "shot.jpg")
	require.NoError(t, os.WriteFile(path, []byte("jpeg"), 0644))
	ref, err = ImageRefs{}.Resolve(path, "shot.jpg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(ref, "data:image/jpeg;base64,"))

	_, err = ImageRefs{}.Resolve(filepath.Join(t.TempDir(), "missing.png"), "missing.png")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
