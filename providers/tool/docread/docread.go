// Package docread provides the doc_read tool for retrieving remote text
// documents (plain text, Markdown, or HTML rendered down to Markdown) with
// optional line-range selection so large documents can be read in slices.
package docread

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"scout/internal/politeness"
	"scout/internal/utils"
	"scout/providers/tool"
)

const (
	// Name is the tool name advertised to the model.
	Name = "doc_read"

	// MaxDocumentSize caps the document body (5 MB).
	MaxDocumentSize = 5 * 1024 * 1024

	readTimeout     = 30 * time.Second
	defaultMaxLines = 500
)

// Input holds the parameters supplied by the model.
type Input struct {
	URL string `json:"url" jsonschema:"description=The URL of the document to read,required"`

	// StartLine is 1-based; zero means the beginning.
	StartLine int `json:"start_line,omitempty" jsonschema:"description=First line to return (1-based, default 1),minimum=1"`
	MaxLines  int `json:"max_lines,omitempty" jsonschema:"description=Maximum number of lines to return (default 500),minimum=1,maximum=2000"`
}

// Output is the selected document slice.
type Output struct {
	URL        string `json:"url" jsonschema:"description=The final URL after redirects"`
	Content    string `json:"content" jsonschema:"description=The selected document content"`
	TotalLines int    `json:"total_lines" jsonschema:"description=Total number of lines in the document"`
	StartLine  int    `json:"start_line" jsonschema:"description=First returned line (1-based)"`
	EndLine    int    `json:"end_line" jsonschema:"description=Last returned line (1-based)"`
}

// Reader fetches and slices remote documents.
type Reader struct {
	client    *http.Client
	userAgent string
}

// Option configures a Reader.
type Option func(*Reader)

// WithHTTPClient sets the HTTP client for document requests.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Reader) {
		if client != nil {
			r.client = client
		}
	}
}

// New returns the doc_read tool.
func New(opts ...Option) *tool.Tool[Input, Output] {
	reader := &Reader{
		client:    &http.Client{Timeout: readTimeout},
		userAgent: politeness.DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(reader)
	}

	return tool.NewTool(Name,
		"Reads a remote text or Markdown document, optionally a specific line range. HTML documents are converted to Markdown.",
		reader.Read)
}

// Read fetches the document and returns the requested line slice.
func (r *Reader) Read(ctx context.Context, input Input) (Output, error) {
	docURL, err := validateURL(input.URL)
	if err != nil {
		return Output{}, tool.NewError(tool.KindInvalidArgument, Name, "%v", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return Output{}, tool.NewError(tool.KindInvalidArgument, Name, "cannot build request: %v", err)
	}
	request.Header.Set("User-Agent", r.userAgent)
	request.Header.Set("Accept", "text/plain, text/markdown, text/html;q=0.9, */*;q=0.1")

	response, err := r.client.Do(request)
	if err != nil {
		if ctx.Err() != nil {
			return Output{}, tool.WrapError(tool.KindTimeout, Name, ctx.Err())
		}
		return Output{}, tool.WrapError(tool.KindNetwork, Name, err)
	}
	defer utils.CloseWithLog(response.Body)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return Output{}, tool.NewError(tool.KindNetwork, Name, "unexpected status %d reading %s", response.StatusCode, docURL)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, MaxDocumentSize))
	if err != nil {
		if ctx.Err() != nil {
			return Output{}, tool.WrapError(tool.KindTimeout, Name, ctx.Err())
		}
		return Output{}, tool.WrapError(tool.KindNetwork, Name, err)
	}

	text, err := extractText(string(body), response.Header.Get("Content-Type"))
	if err != nil {
		return Output{}, tool.WrapError(tool.KindParseFailure, Name, err)
	}
	if strings.TrimSpace(text) == "" {
		return Output{}, tool.NewError(tool.KindParseFailure, Name, "document %s is empty", docURL)
	}

	output := sliceLines(text, input.StartLine, input.MaxLines)
	output.URL = response.Request.URL.String()
	return output, nil
}

func validateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url must not be empty")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %v", raw, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q: only http and https are allowed", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("invalid url %q: missing host", raw)
	}
	return parsed.String(), nil
}

// extractText converts HTML bodies to Markdown and passes text bodies
// through.
func extractText(body, contentType string) (string, error) {
	mediaType := ""
	if contentType != "" {
		if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
			mediaType = parsed
		}
	}

	isHTML := mediaType == "text/html" || mediaType == "application/xhtml+xml"
	if !isHTML && mediaType == "" {
		// No usable header; sniff for an HTML document.
		trimmed := strings.ToLower(strings.TrimSpace(body))
		isHTML = strings.HasPrefix(trimmed, "<!doctype html") || strings.HasPrefix(trimmed, "<html")
	}

	if isHTML {
		return htmltomarkdown.ConvertString(body)
	}
	return body, nil
}

// sliceLines selects the requested window of lines, clamping out-of-range
// requests instead of failing.
func sliceLines(text string, startLine, maxLines int) Output {
	lines := strings.Split(text, "\n")
	total := len(lines)

	if startLine < 1 {
		startLine = 1
	}
	if startLine > total {
		startLine = total
	}
	if maxLines < 1 {
		maxLines = defaultMaxLines
	}

	endLine := startLine + maxLines - 1
	if endLine > total {
		endLine = total
	}

	return Output{
		Content:    strings.Join(lines[startLine-1:endLine], "\n"),
		TotalLines: total,
		StartLine:  startLine,
		EndLine:    endLine,
	}
}
