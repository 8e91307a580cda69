// Package webfetch provides the politeness-guarded page fetch tool. Every
// fetch first consults the shared politeness cache; a denied URL is reported
// as forbidden without any network request to the target.
package webfetch

import (
	"context"
	"fmt"
	"io"
	"net"
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
	Name = "web_fetch"

	// DefaultTimeout is the overall request timeout.
	DefaultTimeout = 30 * time.Second
	// MaxBodySize caps the response body (10 MB).
	MaxBodySize = 10 * 1024 * 1024

	dialTimeout           = 10 * time.Second
	tlsHandshakeTimeout   = 10 * time.Second
	responseHeaderTimeout = 10 * time.Second
	maxRedirects          = 10
)

// Input holds the parameters supplied by the model.
type Input struct {
	// URL may be partial ("example.com") or fully qualified.
	URL string `json:"url" jsonschema:"description=The URL of the web page to fetch (partial URLs like 'example.com' are treated as https),required"`

	TimeoutSeconds int `json:"timeout_seconds,omitempty" jsonschema:"description=Request timeout in seconds (default: 30 max: 120),minimum=1,maximum=120"`
}

// Output is the fetched page as Markdown. URL reflects the final destination
// after redirects.
type Output struct {
	URL      string `json:"url" jsonschema:"description=The final URL after following redirects"`
	Markdown string `json:"markdown" jsonschema:"description=The page content converted to Markdown"`
}

// Fetcher performs politeness-guarded page fetches.
type Fetcher struct {
	cache     *politeness.Cache
	client    *http.Client
	userAgent string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default page-fetch client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithUserAgent overrides the User-Agent header on page requests.
func WithUserAgent(userAgent string) Option {
	return func(f *Fetcher) {
		if userAgent != "" {
			f.userAgent = userAgent
		}
	}
}

// New returns the web_fetch tool bound to the given politeness cache. The
// cache is required; it is shared with every other component that fetches
// from the open web.
func New(cache *politeness.Cache, opts ...Option) *tool.Tool[Input, Output] {
	fetcher := &Fetcher{
		cache:     cache,
		client:    newHTTPClient(),
		userAgent: politeness.DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(fetcher)
	}

	return tool.NewTool(Name,
		"Fetches a web page, honoring the site's robots rules, and returns its content as Markdown.",
		fetcher.Fetch)
}

// Fetch retrieves a page as Markdown. Failure classification follows the
// shared taxonomy: bad input is invalid_argument, a politeness denial is
// forbidden, transport and status failures are network or timeout, and an
// empty or unconvertible body is parse_failure.
func (f *Fetcher) Fetch(ctx context.Context, input Input) (Output, error) {
	pageURL, err := normalizeURL(input.URL)
	if err != nil {
		return Output{}, tool.NewError(tool.KindInvalidArgument, Name, "%v", err)
	}

	decision, err := f.cache.Check(ctx, pageURL)
	if err != nil {
		return Output{}, tool.NewError(tool.KindInvalidArgument, Name, "%v", err)
	}
	if decision == politeness.Denied {
		return Output{}, tool.NewError(tool.KindForbidden, Name, "fetching %s is disallowed by the site's robots rules", pageURL)
	}

	timeout := DefaultTimeout
	if input.TimeoutSeconds > 0 {
		timeout = time.Duration(input.TimeoutSeconds) * time.Second
	}
	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Output{}, tool.NewError(tool.KindInvalidArgument, Name, "cannot build request: %v", err)
	}
	request.Header.Set("User-Agent", f.userAgent)

	response, err := f.client.Do(request)
	if err != nil {
		if fetchCtx.Err() != nil {
			return Output{}, tool.WrapError(tool.KindTimeout, Name, fetchCtx.Err())
		}
		return Output{}, tool.WrapError(tool.KindNetwork, Name, err)
	}
	defer utils.CloseWithLog(response.Body)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return Output{}, tool.NewError(tool.KindNetwork, Name, "unexpected status %d fetching %s", response.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(response.Body, MaxBodySize))
	if err != nil {
		if fetchCtx.Err() != nil {
			return Output{}, tool.WrapError(tool.KindTimeout, Name, fetchCtx.Err())
		}
		return Output{}, tool.WrapError(tool.KindNetwork, Name, err)
	}

	markdown, err := htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return Output{}, tool.WrapError(tool.KindParseFailure, Name, err)
	}
	markdown = strings.TrimSpace(markdown)
	if markdown == "" {
		return Output{}, tool.NewError(tool.KindParseFailure, Name, "page %s has no extractable text", pageURL)
	}

	return Output{
		URL:      response.Request.URL.String(),
		Markdown: markdown,
	}, nil
}

// normalizeURL validates the input URL, defaulting partial URLs to https.
// Only http and https schemes are accepted.
func normalizeURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url must not be empty")
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
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

func newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: DefaultTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   dialTimeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   tlsHandshakeTimeout,
			ResponseHeaderTimeout: responseHeaderTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			ForceAttemptHTTP2:     true,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("too many redirects (>%d)", maxRedirects)
			}
			return nil
		},
	}
}
