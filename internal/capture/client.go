package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"sync"
	"time"
)

var ErrUnauthorized = errors.New("server rejected credentials")

// Client talks to the server's upload API.
type Client struct {
	baseURL  string
	password string
	http     *http.Client

	mu    sync.Mutex
	token string
}

func NewClient(baseURL, password string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		password: password,
		http:     hc,
	}
}

type loginResponse struct {
	Token string `json:"token"`
}

// UploadResult is the subset of the upload reply the agent logs.
type UploadResult struct {
	IsDuplicate bool `json:"is_duplicate"`
	Queued      bool `json:"queued"`
	Screenshot  struct {
		ID       int64  `json:"id"`
		Filename string `json:"filename"`
	} `json:"screenshot"`
}

// Login exchanges the password for a bearer token. It is a no-op without
// a password.
func (c *Client) Login(ctx context.Context) error {
	if c.password == "" {
		return nil
	}
	body, err := json.Marshal(map[string]string{"password": c.password})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/auth/login", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("login returned HTTP %d", resp.StatusCode)
	}
	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode login response: %w", err)
	}

	c.mu.Lock()
	c.token = lr.Token
	c.mu.Unlock()
	return nil
}

// Upload sends one encoded image. On a 401 it logs in again and retries once.
func (c *Client) Upload(ctx context.Context, data []byte, filename string, capturedAt time.Time) (*UploadResult, error) {
	res, err := c.upload(ctx, data, filename, capturedAt)
	if !errors.Is(err, ErrUnauthorized) || c.password == "" {
		return res, err
	}
	if err := c.Login(ctx); err != nil {
		return nil, err
	}
	return c.upload(ctx, data, filename, capturedAt)
}

func (c *Client) upload(ctx context.Context, data []byte, filename string, capturedAt time.Time) (*UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(data); err != nil {
		return nil, err
	}
	if err := mw.WriteField("captured_at", capturedAt.Format(time.RFC3339)); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &body)
	if err != nil {
		return nil, fmt.Errorf("failed to build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to upload: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("upload returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var res UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("failed to decode upload response: %w", err)
	}
	return &res, nil
}
