package analyzer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"deskmemo/internal/storage"
)

const (
	fallbackDescriptionLen = 200
	fallbackSummaryLen     = 500
	unknownApplication     = "unknown"
)

// Result is a structured interpretation of one screenshot.
type Result struct {
	Category       storage.Category
	Application    string
	Description    string
	ContentSummary string
	RawText        string
	// Fallback is set when no JSON could be extracted and the fields were
	// synthesized from the raw reply.
	Fallback bool
}

// Parser extracts a Result from the analyzer's reply.
type Parser interface {
	Parse(text string) (*Result, error)
}

var errNoObject = errors.New("no JSON object found")

type reply struct {
	ActivityType   string `json:"activity_type"`
	Application    string `json:"application"`
	Description    string `json:"description"`
	ContentSummary string `json:"content_summary"`
	RawText        string `json:"raw_text"`
}

// StrictParser accepts only a reply that is exactly one JSON object.
type StrictParser struct{}

func (StrictParser) Parse(text string) (*Result, error) {
	dec := json.NewDecoder(strings.NewReader(strings.TrimSpace(text)))
	var r reply
	if err := dec.Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("trailing data after JSON object")
	}
	if r.ActivityType == "" && r.Description == "" {
		return nil, fmt.Errorf("reply has neither activity_type nor description")
	}

	app := strings.TrimSpace(r.Application)
	if app == "" {
		app = unknownApplication
	}
	return &Result{
		Category:       storage.ParseCategory(r.ActivityType),
		Application:    app,
		Description:    strings.TrimSpace(r.Description),
		ContentSummary: strings.TrimSpace(r.ContentSummary),
		RawText:        strings.TrimSpace(r.RawText),
	}, nil
}

// TolerantParser digs a JSON object out of chatty replies: it strips
// Markdown code fences, then tries each balanced {...} span in order. When
// nothing parses it synthesizes a Result from the raw text, so it only fails
// on an empty reply.
type TolerantParser struct {
	Strict Parser
}

func NewTolerantParser() *TolerantParser {
	return &TolerantParser{Strict: StrictParser{}}
}

func (p *TolerantParser) Parse(text string) (*Result, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, ErrEmptyResponse
	}

	if r, err := p.extract(stripFences(trimmed)); err == nil {
		return r, nil
	}
	if r, err := p.extract(trimmed); err == nil {
		return r, nil
	}

	return &Result{
		Category:       storage.CategoryOther,
		Application:    unknownApplication,
		Description:    truncateRunes(trimmed, fallbackDescriptionLen),
		ContentSummary: truncateRunes(trimmed, fallbackSummaryLen),
		Fallback:       true,
	}, nil
}

func (p *TolerantParser) extract(text string) (*Result, error) {
	for start := strings.IndexByte(text, '{'); start >= 0; {
		end := balancedEnd(text, start)
		if end < 0 {
			break
		}
		if r, err := p.Strict.Parse(text[start : end+1]); err == nil {
			return r, nil
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += 1 + next
	}
	return nil, errNoObject
}

// stripFences returns the body of the first ``` fenced block, or text
// unchanged when there is none.
func stripFences(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return text
	}
	body := text[open+3:]
	// drop the info string ("json") up to the end of the line
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// balancedEnd returns the index of the brace closing the object opened at
// start, ignoring braces inside JSON strings, or -1.
func balancedEnd(text string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// EmbeddingText is the text submitted to the vector index for an activity.
func EmbeddingText(a *storage.Activity) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Category: %s\n", a.Category)
	if a.Application != "" {
		fmt.Fprintf(&b, "Application: %s\n", a.Application)
	}
	if a.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", a.Description)
	}
	if a.ContentSummary != "" {
		fmt.Fprintf(&b, "Content: %s\n", a.ContentSummary)
	}
	if a.RawText != "" {
		fmt.Fprintf(&b, "Text: %s\n", a.RawText)
	}
	return strings.TrimSpace(b.String())
}
