package webfetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"scout/internal/politeness"
	"scout/providers/tool"
)

func newTestFetcher(t *testing.T, server *httptest.Server) *Fetcher {
	t.Helper()
	cache := politeness.NewCache(politeness.WithHTTPClient(server.Client()))
	return &Fetcher{
		cache:     cache,
		client:    server.Client(),
		userAgent: politeness.DefaultUserAgent,
	}
}

func TestFetch_ConvertsHTMLToMarkdown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			http.NotFound(w, r)
		case "/article":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html><body><h1>Title</h1><p>Some <strong>bold</strong> text.</p></body></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, server)

	output, err := fetcher.Fetch(context.Background(), Input{URL: server.URL + "/article"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !strings.Contains(output.Markdown, "# Title") {
		t.Errorf("heading not converted: %q", output.Markdown)
	}
	if !strings.Contains(output.Markdown, "**bold**") {
		t.Errorf("bold text not converted: %q", output.Markdown)
	}
	if output.URL != server.URL+"/article" {
		t.Errorf("unexpected final URL: %q", output.URL)
	}
}

func TestFetch_DisallowedPathNoNetworkCall(t *testing.T) {
	var pageRequests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
			return
		}
		pageRequests.Add(1)
		_, _ = w.Write([]byte("<p>secret</p>"))
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, server)

	_, err := fetcher.Fetch(context.Background(), Input{URL: server.URL + "/private/page"})
	if tool.KindOf(err) != tool.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if pageRequests.Load() != 0 {
		t.Error("denied fetch must not reach the page")
	}
}

func TestFetch_InvalidInput(t *testing.T) {
	fetcher := &Fetcher{
		cache:  politeness.NewCache(),
		client: http.DefaultClient,
	}

	tests := []struct {
		name string
		url  string
	}{
		{"empty url", ""},
		{"unsupported scheme", "ftp://example.com/file"},
		{"missing host", "https://"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := fetcher.Fetch(context.Background(), Input{URL: tc.url})
			if tool.KindOf(err) != tool.KindInvalidArgument {
				t.Errorf("expected invalid_argument, got %v", err)
			}
		})
	}
}

func TestFetch_PartialURLDefaultsToHTTPS(t *testing.T) {
	normalized, err := normalizeURL("example.com/page")
	if err != nil {
		t.Fatalf("normalizeURL failed: %v", err)
	}
	if normalized != "https://example.com/page" {
		t.Errorf("unexpected normalization: %q", normalized)
	}
}

func TestFetch_NonOKStatusIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, server)

	_, err := fetcher.Fetch(context.Background(), Input{URL: server.URL + "/page"})
	if tool.KindOf(err) != tool.KindNetwork {
		t.Errorf("expected network error, got %v", err)
	}
}

func TestFetch_EmptyBodyIsParseFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		// 200 with nothing to extract.
	}))
	defer server.Close()

	fetcher := newTestFetcher(t, server)

	_, err := fetcher.Fetch(context.Background(), Input{URL: server.URL + "/empty"})
	if tool.KindOf(err) != tool.KindParseFailure {
		t.Errorf("expected parse_failure, got %v", err)
	}
}

func TestNew_RegistersAsGenericTool(t *testing.T) {
	cache := politeness.NewCache()
	fetchTool := New(cache)

	info := fetchTool.Info()
	if info.Name != Name {
		t.Errorf("unexpected tool name %q", info.Name)
	}
	if info.Parameters == nil || info.Parameters.Properties["url"] == nil {
		t.Error("url parameter not advertised")
	}
	if len(info.Parameters.Required) != 1 || info.Parameters.Required[0] != "url" {
		t.Errorf("url not marked required: %v", info.Parameters.Required)
	}
}
