package capture

import (
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGrabber struct {
	err error
}

func (g fakeGrabber) Grab(context.Context, int) (image.Image, error) {
	if g.err != nil {
		return nil, g.err
	}
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	img.Set(1, 1, color.White)
	return img, nil
}

// fakeServer accepts "pw" and issues a new token per login. expireFirst
// makes the first upload fail with 401 to force a re-login.
type fakeServer struct {
	logins      atomic.Int32
	uploads     atomic.Int32
	expireFirst bool

	mu         sync.Mutex
	capturedAt string
}

func (s *fakeServer) lastCapturedAt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturedAt
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/api/auth/login":
		var body struct {
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Password != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		n := s.logins.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "tok" + string(rune('0'+n))})
	case "/api/upload":
		if r.Header.Get("Authorization") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if s.expireFirst && r.Header.Get("Authorization") == "Bearer tok1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		if _, err := png.Decode(file); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		s.mu.Lock()
		s.capturedAt = r.FormValue("captured_at")
		s.mu.Unlock()
		s.uploads.Add(1)
		_, _ = w.Write([]byte(`{"success":true,"is_duplicate":false,"queued":true,"screenshot":{"id":42,"filename":"x.jpg"}}`))
	default:
		http.NotFound(w, r)
	}
}

func TestAgent_CaptureOnce(t *testing.T) {
	srv := &fakeServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := NewClient(ts.URL+"/", "pw", ts.Client())
	require.NoError(t, client.Login(context.Background()))

	agent := NewAgent(fakeGrabber{}, client, 0)
	agent.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }

	require.NoError(t, agent.CaptureOnce(context.Background()))
	assert.EqualValues(t, 1, srv.uploads.Load())
	assert.Equal(t, "2025-03-10T09:00:00Z", srv.lastCapturedAt())
}

func TestAgent_ReloginOnExpiredToken(t *testing.T) {
	srv := &fakeServer{expireFirst: true}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := NewClient(ts.URL, "pw", ts.Client())
	require.NoError(t, client.Login(context.Background()))

	agent := NewAgent(fakeGrabber{}, client, 0)
	require.NoError(t, agent.CaptureOnce(context.Background()))
	assert.EqualValues(t, 2, srv.logins.Load())
	assert.EqualValues(t, 1, srv.uploads.Load())
}

func TestClient_WrongPassword(t *testing.T) {
	ts := httptest.NewServer(&fakeServer{})
	defer ts.Close()

	err := NewClient(ts.URL, "wrong", ts.Client()).Login(context.Background())
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestAgent_GrabFailure(t *testing.T) {
	srv := &fakeServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	boom := errors.New("permission denied")
	agent := NewAgent(fakeGrabber{err: boom}, NewClient(ts.URL, "", ts.Client()), 0)
	assert.ErrorIs(t, agent.CaptureOnce(context.Background()), boom)
	assert.EqualValues(t, 0, srv.uploads.Load())
}

func TestAgent_RunStopsOnCancel(t *testing.T) {
	srv := &fakeServer{}
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	agent := NewAgent(fakeGrabber{}, NewClient(ts.URL, "pw", ts.Client()), 0)

	done := make(chan error, 1)
	go func() { done <- agent.Run(ctx, time.Hour) }()

	require.Eventually(t, func() bool { return srv.uploads.Load() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("agent did not stop")
	}
}
