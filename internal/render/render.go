// Package render serializes the ordered transcript into its portable
// output formats. Markdown and HTML are presentation formats; JSON is the
// lossless one and must round-trip through the store unchanged.
package render

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chatscribe/internal/fragment"
	"chatscribe/internal/markdown"
)

// Format identifies one output format.
type Format string

const (
	FormatMarkdown Format = "md"
	FormatHTML     Format = "html"
	FormatJSON     Format = "json"
)

// MediaType returns the delivery content type for the format.
func (f Format) MediaType() string {
	switch f {
	case FormatHTML:
		return "text/html"
	case FormatJSON:
		return "application/json"
	default:
		return "text/markdown"
	}
}

// ParseFormat accepts the user-facing spellings of each format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "md", "markdown":
		return FormatMarkdown, nil
	case "html":
		return FormatHTML, nil
	case "json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want md, html or json)", s)
	}
}

// Meta carries the export context shared by all formats.
type Meta struct {
	Title      string
	SourceURL  string
	ExportedAt time.Time
}

// File is one deliverable export.
type File struct {
	Name      string
	MediaType string
	Data      []byte
}

// Filename builds the default delivery name: <export-name>-<YYYY-MM-DD>.<ext>.
func Filename(exportName string, f Format, at time.Time) string {
	return fmt.Sprintf("%s-%s.%s", exportName, at.Format("2006-01-02"), f)
}

// Export is the JSON envelope. Messages appear verbatim, in transcript
// order, including both markup and text fields.
type Export struct {
	ExportedAt   string            `json:"exported_at"`
	SourceURL    string            `json:"source_url"`
	MessageCount int               `json:"message_count"`
	Messages     []fragment.Record `json:"messages"`
}

// Markdown renders the transcript as a Markdown document.
func Markdown(records []fragment.Record, meta Meta) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", meta.Title)
	fmt.Fprintf(&sb, "- Source: %s\n", meta.SourceURL)
	fmt.Fprintf(&sb, "- Exported: %s\n", meta.ExportedAt.Format(time.RFC3339))
	fmt.Fprintf(&sb, "- Messages: %d\n", len(records))

	for _, rec := range records {
		sb.WriteString("\n---\n\n")
		fmt.Fprintf(&sb, "## %s\n\n", sectionHeading(rec))
		if rec.ContentMarkup != "" {
			sb.WriteString(markdown.Convert(rec.ContentMarkup))
		} else {
			sb.WriteString(rec.ContentText)
		}
		sb.WriteString("\n")
	}
	return markdown.Collapse(sb.String()) + "\n"
}

// HTML renders a self-contained document with no external resources.
// Messages with retained markup are emitted verbatim; plain-text bodies
// are escaped.
func HTML(records []fragment.Record, meta Meta) string {
	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", escape(meta.Title))
	sb.WriteString("<style>\n" + inlineStyle + "</style>\n</head>\n<body>\n")
	fmt.Fprintf(&sb, "<header>\n<h1>%s</h1>\n", escape(meta.Title))
	fmt.Fprintf(&sb, "<p>Source: <a href=\"%s\">%s</a></p>\n", escape(meta.SourceURL), escape(meta.SourceURL))
	fmt.Fprintf(&sb, "<p>Exported %s &middot; %d messages</p>\n</header>\n",
		escape(meta.ExportedAt.Format(time.RFC3339)), len(records))

	for _, rec := range records {
		fmt.Fprintf(&sb, "<article class=\"message %s\">\n", rec.Role)
		fmt.Fprintf(&sb, "<h2>%s</h2>\n", escape(sectionHeading(rec)))
		if rec.ContentMarkup != "" {
			sb.WriteString("<div class=\"body\">" + rec.ContentMarkup + "</div>\n")
		} else {
			sb.WriteString("<div class=\"body\"><pre>" + escape(rec.ContentText) + "</pre></div>\n")
		}
		sb.WriteString("</article>\n")
	}
	sb.WriteString("</body>\n</html>\n")
	return sb.String()
}

// JSON renders the lossless export envelope.
func JSON(records []fragment.Record, meta Meta) ([]byte, error) {
	if records == nil {
		records = []fragment.Record{}
	}
	out := Export{
		ExportedAt:   meta.ExportedAt.Format(time.RFC3339),
		SourceURL:    meta.SourceURL,
		MessageCount: len(records),
		Messages:     records,
	}
	return json.MarshalIndent(out, "", "  ")
}

// Render produces the deliverable file for one format.
func Render(f Format, records []fragment.Record, meta Meta, exportName string) (File, error) {
	var data []byte
	switch f {
	case FormatMarkdown:
		data = []byte(Markdown(records, meta))
	case FormatHTML:
		data = []byte(HTML(records, meta))
	case FormatJSON:
		var err error
		data, err = JSON(records, meta)
		if err != nil {
			return File{}, fmt.Errorf("render json: %w", err)
		}
	default:
		return File{}, fmt.Errorf("unknown format %q", f)
	}
	return File{
		Name:      Filename(exportName, f, meta.ExportedAt),
		MediaType: f.MediaType(),
		Data:      data,
	}, nil
}

func sectionHeading(rec fragment.Record) string {
	label := "Assistant"
	if rec.Role == fragment.RoleUser {
		label = "User"
	}
	if rec.TimestampText != "" {
		return label + " - " + rec.TimestampText
	}
	return label
}

// escape covers text and attribute positions; quotes must not break out
// of the source-URL href.
var escaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;", "'", "&#39;")

func escape(s string) string {
	return escaper.Replace(s)
}

const inlineStyle = `body { font-family: -apple-system, "Segoe UI", sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; color: #1a1a1a; }
header { border-bottom: 2px solid #e5e5e5; padding-bottom: 1rem; }
article.message { border: 1px solid #e5e5e5; border-radius: 8px; padding: 0.5rem 1rem; margin: 1rem 0; }
article.message.user { background: #f4f6fb; }
article.message h2 { font-size: 0.9rem; color: #555; }
article.message pre { white-space: pre-wrap; }
code, pre { background: #f6f6f6; border-radius: 4px; }
`
