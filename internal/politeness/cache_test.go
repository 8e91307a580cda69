package politeness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCache_DeniesDisallowedPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			t.Errorf("unexpected request path %q", r.URL.Path)
		}
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer server.Close()

	cache := NewCache(WithHTTPClient(server.Client()))

	decision, err := cache.Check(context.Background(), server.URL+"/private/report")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision != Denied {
		t.Error("expected Denied for disallowed prefix")
	}

	decision, err = cache.Check(context.Background(), server.URL+"/public")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision != Allowed {
		t.Error("expected Allowed for unlisted path")
	}
}

func TestCache_SingleFlightPerOrigin(t *testing.T) {
	var calls atomic.Int64
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		<-release
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /blocked\n"))
	}))
	defer server.Close()

	cache := NewCache(WithHTTPClient(server.Client()))

	const concurrent = 8
	var wg sync.WaitGroup
	for i := 0; i < concurrent; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			decision, err := cache.Check(context.Background(), server.URL+"/page")
			if err != nil {
				t.Errorf("Check failed: %v", err)
			}
			if decision != Allowed {
				t.Error("expected Allowed")
			}
		}()
	}

	// Let all goroutines pile up on the in-flight fetch before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Errorf("expected exactly 1 robots.txt fetch, got %d", got)
	}
}

func TestCache_CachesAcrossChecks(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /x\n"))
	}))
	defer server.Close()

	cache := NewCache(WithHTTPClient(server.Client()))

	for i := 0; i < 5; i++ {
		if _, err := cache.Check(context.Background(), server.URL+"/page"); err != nil {
			t.Fatalf("Check failed: %v", err)
		}
	}

	if got := calls.Load(); got != 1 {
		t.Errorf("expected 1 fetch for repeated checks, got %d", got)
	}
}

func TestCache_MissingRobotsAllowsAll(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	cache := NewCache(WithHTTPClient(server.Client()))

	decision, err := cache.Check(context.Background(), server.URL+"/anything")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision != Allowed {
		t.Error("expected Allowed when robots.txt is absent")
	}
}

func TestCache_FetchFailureDegradesToAllowWithShortTTL(t *testing.T) {
	var calls atomic.Int64
	var fail atomic.Bool
	fail.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer server.Close()

	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache(WithHTTPClient(server.Client()))
	cache.now = func() time.Time { return current }

	decision, err := cache.Check(context.Background(), server.URL+"/private/x")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision != Allowed {
		t.Error("expected degraded allow-all on fetch failure")
	}

	// Within the failure TTL the degraded rule is served from cache.
	current = current.Add(FailureTTL - time.Minute)
	if _, err := cache.Check(context.Background(), server.URL+"/private/x"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("expected no refetch inside failure TTL, got %d calls", got)
	}

	// Past the failure TTL the rules are refetched and now honoured.
	fail.Store(false)
	current = current.Add(2 * time.Minute)
	decision, err = cache.Check(context.Background(), server.URL+"/private/x")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision != Denied {
		t.Error("expected Denied once recovered rules are fetched")
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("expected refetch after failure TTL, got %d calls", got)
	}
}

func TestCache_ExpiredRuleRefetched(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /x\n"))
	}))
	defer server.Close()

	current := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewCache(WithHTTPClient(server.Client()))
	cache.now = func() time.Time { return current }

	if _, err := cache.Check(context.Background(), server.URL+"/page"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	current = current.Add(RuleTTL + time.Minute)
	if _, err := cache.Check(context.Background(), server.URL+"/page"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if got := calls.Load(); got != 2 {
		t.Errorf("expected refetch after TTL expiry, got %d calls", got)
	}
}

func TestCache_InvalidURL(t *testing.T) {
	cache := NewCache()

	if _, err := cache.Check(context.Background(), "not a url"); err == nil {
		t.Error("expected error for URL without origin")
	}
}

func TestCache_CancelledWaiterDoesNotAbortFetch(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /x\n"))
	}))
	defer server.Close()

	cache := NewCache(WithHTTPClient(server.Client()))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := cache.Check(ctx, server.URL+"/page")
		errCh <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	if err := <-errCh; err == nil {
		t.Error("expected context error for cancelled waiter")
	}

	// The shared fetch completes regardless and serves later callers.
	close(release)
	decision, err := cache.Check(context.Background(), server.URL+"/x")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if decision != Denied {
		t.Error("expected completed fetch to deny disallowed path")
	}
}

func TestCache_CrawlDelay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("User-agent: *\nCrawl-delay: 3\n"))
	}))
	defer server.Close()

	cache := NewCache(WithHTTPClient(server.Client()))

	if _, err := cache.Check(context.Background(), server.URL+"/page"); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if got := cache.CrawlDelay(server.URL + "/page"); got != 3*time.Second {
		t.Errorf("expected 3s crawl delay, got %v", got)
	}
	if got := cache.CrawlDelay("https://unknown.example/page"); got != 0 {
		t.Errorf("expected zero delay for unknown origin, got %v", got)
	}
}
