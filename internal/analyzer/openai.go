package analyzer

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -destination=mocks/mock_analyzer.go -package=mocks deskmemo/internal/analyzer Analyzer,Narrator

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"deskmemo/internal/storage"
)

// Analyzer turns an image reference into the model's free-text reply.
type Analyzer interface {
	Analyze(ctx context.Context, imageRef string) (string, error)
}

// Narrator writes the free-text narrative of a report.
type Narrator interface {
	Narrate(ctx context.Context, period storage.PeriodType, content string) (string, error)
}

// ErrEmptyResponse is returned when the API answers 2xx without usable content.
var ErrEmptyResponse = errors.New("empty content in response")

// StatusError is a non-2xx reply from the API.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	*Endpoint

	Model         string
	SummaryModel  string
	MaxTokens     int
	Prompt        string
	SummaryPrompt string

}

// Options configures NewOpenAI. Empty prompts fall back to the built-in ones.
type Options struct {
	APIKey        string
	BaseURL       string
	Model         string
	SummaryModel  string
	MaxTokens     int
	Timeout       time.Duration
	Prompt        string
	SummaryPrompt string
}

func NewOpenAI(opts Options) *OpenAI {
	if opts.SummaryModel == "" {
		opts.SummaryModel = opts.Model
	}
	if opts.Prompt == "" {
		opts.Prompt = defaultAnalysisPrompt
	}
	if opts.SummaryPrompt == "" {
		opts.SummaryPrompt = defaultSummaryPrompt
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 120 * time.Second
	}
	return &OpenAI{
		Endpoint:      NewEndpoint(opts.BaseURL, opts.APIKey, opts.Timeout),
		Model:         opts.Model,
		SummaryModel:  opts.SummaryModel,
		MaxTokens:     opts.MaxTokens,
		Prompt:        opts.Prompt,
		SummaryPrompt: opts.SummaryPrompt,
	}
}

type ChatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type Message struct {
	Role    string          `json:"role"`
	Content []ContentObject `json:"content"`
}

type ContentObject struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

type ImageURL struct {
	URL string `json:"url"`
}

type ChatResponse struct {
	Choices []Choice `json:"choices"`
}

type Choice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Analyze sends the analysis prompt with one image.
func (o *OpenAI) Analyze(ctx context.Context, imageRef string) (string, error) {
	req := ChatRequest{
		Model:     o.Model,
		MaxTokens: o.MaxTokens,
		Messages: []Message{
			{
				Role: "user",
				Content: []ContentObject{
					{Type: "text", Text: o.Prompt},
					{Type: "image_url", ImageURL: &ImageURL{URL: imageRef}},
				},
			},
		},
	}
	return o.complete(ctx, req)
}

// Narrate summarizes a report window from the prepared content.
func (o *OpenAI) Narrate(ctx context.Context, period storage.PeriodType, content string) (string, error) {
	maxTokens := 300
	if period == storage.PeriodDaily {
		maxTokens = 600
	}
	req := ChatRequest{
		Model:     o.SummaryModel,
		MaxTokens: maxTokens,
		Messages: []Message{
			{Role: "system", Content: []ContentObject{{Type: "text", Text: o.SummaryPrompt}}},
			{Role: "user", Content: []ContentObject{{Type: "text", Text: content}}},
		},
	}
	return o.complete(ctx, req)
}

func (o *OpenAI) complete(ctx context.Context, req ChatRequest) (string, error) {
	var chatResp ChatResponse
	if err := o.PostJSON(ctx, "/chat/completions", req, &chatResp); err != nil {
		return "", err
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response: %w", ErrEmptyResponse)
	}
	content := chatResp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

// ErrorKind gives a short label for logging an analyzer failure.
func ErrorKind(err error) string {
	if err == nil {
		return "none"
	}

	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			return "rate_limit"
		case se.StatusCode == http.StatusUnauthorized || se.StatusCode == http.StatusForbidden:
			return "auth"
		case se.StatusCode >= 500:
			return "server_error"
		default:
			return "client_error"
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, ErrEmptyResponse) {
		return "empty_response"
	}
	if strings.Contains(err.Error(), "failed to send request") {
		return "connection_failed"
	}
	return "other_error"
}

// IsRetryable reports whether another attempt could plausibly succeed.
// Client errors other than rate limiting usually repeat identically.
func IsRetryable(err error) bool {
	switch ErrorKind(err) {
	case "auth", "client_error":
		return false
	}
	return err != nil
}
