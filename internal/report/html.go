package report

import (
	"bytes"
	"fmt"
	"html/template"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"deskmemo/internal/storage"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Typographer,
	),
)

var pageTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; margin: 0 auto; padding: 2rem; max-width: 800px; line-height: 1.6; }
    table { border-collapse: collapse; margin-bottom: 1.5rem; }
    td, th { border: 1px solid #ccc; padding: 0.3rem 0.8rem; text-align: left; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  <table>
    <tr><th>Items</th><td>{{.Report.ItemCount}}</td></tr>
    <tr><th>Work</th><td>{{.Report.WorkMinutes}} min</td></tr>
    <tr><th>Study</th><td>{{.Report.StudyMinutes}} min</td></tr>
    <tr><th>Leisure</th><td>{{.Report.LeisureMinutes}} min</td></tr>
    <tr><th>Other</th><td>{{.Report.OtherMinutes}} min</td></tr>
  </table>
  <article>{{.Content}}</article>
</body>
</html>`))

// RenderMarkdown converts a report narrative to an HTML fragment.
func RenderMarkdown(summary string) (string, error) {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(summary), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

// RenderHTML renders a standalone page for r with times shown in loc.
func RenderHTML(r *storage.Report, loc *time.Location) ([]byte, error) {
	content, err := RenderMarkdown(r.Summary)
	if err != nil {
		return nil, err
	}

	layout := "2006-01-02 15:04"
	if r.PeriodType == storage.PeriodDaily {
		layout = "2006-01-02"
	}
	title := fmt.Sprintf("%s report %s", r.PeriodType, r.StartTime.In(loc).Format(layout))

	var buf bytes.Buffer
	err = pageTemplate.Execute(&buf, struct {
		Title   string
		Report  *storage.Report
		Content template.HTML
	}{title, r, template.HTML(content)})
	if err != nil {
		return nil, fmt.Errorf("failed to execute report template: %w", err)
	}
	return buf.Bytes(), nil
}
