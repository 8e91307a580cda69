// Package politeness answers "may this URL be fetched?" by caching per-origin
// robots.txt rules. The cache is shared across all sessions: concurrent misses
// for the same origin collapse into a single rules fetch (single-flight), and
// a failed rules fetch degrades to allow-all for a short period instead of
// hammering a broken origin.
package politeness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Decision is the outcome of a politeness check.
type Decision int

const (
	// Allowed means the URL may be fetched.
	Allowed Decision = iota
	// Denied means the origin's rules forbid fetching the URL.
	Denied
)

const (
	// DefaultUserAgent identifies scout in outbound requests.
	DefaultUserAgent = "scout/0.1"

	// RuleTTL is how long a successfully fetched rule stays valid.
	RuleTTL = 30 * time.Minute

	// FailureTTL is how long a failed rules fetch is cached as allow-all.
	// Shorter than RuleTTL so a recovering origin gets its rules honoured
	// again quickly.
	FailureTTL = 5 * time.Minute

	// fetchTimeout bounds a single robots.txt request.
	fetchTimeout = 10 * time.Second

	// maxRobotsSize caps the robots.txt body read (500 KiB per RFC 9309).
	maxRobotsSize = 500 * 1024
)

// Cache is a concurrency-safe cache of per-origin fetch rules. The zero value
// is not usable; construct with [NewCache]. A single Cache is created at
// startup and injected into every consumer — its lifecycle is the process
// lifetime.
type Cache struct {
	userAgent string
	client    *http.Client
	logger    *slog.Logger

	mu    sync.RWMutex
	rules map[string]*Rule

	flight singleflight.Group

	// now is replaceable in tests to exercise TTL expiry.
	now func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithHTTPClient sets the HTTP client used for robots.txt fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Cache) {
		if client != nil {
			c.client = client
		}
	}
}

// WithUserAgent sets the agent token matched against robots.txt groups and
// sent as the User-Agent header on rules fetches.
func WithUserAgent(userAgent string) Option {
	return func(c *Cache) {
		if userAgent != "" {
			c.userAgent = userAgent
		}
	}
}

// WithLogger sets the structured logger for degraded-fetch warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Cache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCache returns an empty politeness cache ready for concurrent use.
func NewCache(opts ...Option) *Cache {
	cache := &Cache{
		userAgent: DefaultUserAgent,
		client:    &http.Client{Timeout: fetchTimeout},
		logger:    slog.Default(),
		rules:     make(map[string]*Rule),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(cache)
	}
	return cache
}

// Check reports whether rawURL may be fetched. A cache miss or an expired rule
// triggers a single-flight robots.txt fetch for the URL's origin; concurrent
// callers for the same origin share one fetch. Returns an error only for
// unparseable URLs — rule-fetch failures degrade to Allowed.
func (c *Cache) Check(ctx context.Context, rawURL string) (Decision, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return Denied, fmt.Errorf("invalid url %q: cannot determine origin", rawURL)
	}
	origin := parsed.Scheme + "://" + parsed.Host

	rule, ok := c.lookup(origin)
	if !ok {
		rule, err = c.fetchShared(ctx, origin)
		if err != nil {
			return Denied, err
		}
	}

	if rule.Allows(parsed.Path) {
		return Allowed, nil
	}
	return Denied, nil
}

// CrawlDelay returns the cached crawl delay for the URL's origin, zero when
// the origin is unknown or sets none. It never triggers a rules fetch.
func (c *Cache) CrawlDelay(rawURL string) time.Duration {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return 0
	}

	rule, ok := c.lookup(parsed.Scheme + "://" + parsed.Host)
	if !ok {
		return 0
	}
	return rule.CrawlDelay
}

// lookup returns the cached, unexpired rule for origin. Expired rules are
// left in place; they are overwritten by the refresh that follows a miss.
func (c *Cache) lookup(origin string) (*Rule, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rule, ok := c.rules[origin]
	if !ok || rule.Expired(c.now()) {
		return nil, false
	}
	return rule, true
}

// fetchShared fetches and caches the rule for origin, collapsing concurrent
// callers into one network call per origin. Waiters honour their own context:
// a cancelled caller stops waiting without aborting the shared fetch, so the
// remaining waiters still get a result.
func (c *Cache) fetchShared(ctx context.Context, origin string) (*Rule, error) {
	resultCh := c.flight.DoChan(origin, func() (any, error) {
		// Detach from the initiating caller so its cancellation cannot
		// poison the result for other waiters.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()

		rule := c.fetchRule(fetchCtx, origin)

		c.mu.Lock()
		c.rules[origin] = rule
		c.mu.Unlock()

		return rule, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case result := <-resultCh:
		if result.Err != nil {
			return nil, result.Err
		}
		return result.Val.(*Rule), nil
	}
}

// fetchRule downloads and parses robots.txt for origin. Every failure mode
// yields an allow-all rule: a missing robots.txt means the origin imposes no
// policy, and a broken origin is cached with the short [FailureTTL] so it is
// retried soon without being hammered.
func (c *Cache) fetchRule(ctx context.Context, origin string) *Rule {
	robotsURL := origin + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		c.logger.Warn("politeness: cannot build robots.txt request, allowing origin",
			"origin", origin, "error", err.Error())
		return c.allowAll(origin, FailureTTL)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("politeness: robots.txt fetch failed, allowing origin",
			"origin", origin, "error", err.Error())
		return c.allowAll(origin, FailureTTL)
	}
	defer func() { _ = resp.Body.Close() }()

	// 404 is the normal "no policy" case and gets the full TTL; other
	// non-2xx statuses are treated as degraded.
	if resp.StatusCode == http.StatusNotFound {
		return c.allowAll(origin, RuleTTL)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("politeness: unexpected robots.txt status, allowing origin",
			"origin", origin, "status", resp.StatusCode)
		return c.allowAll(origin, FailureTTL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsSize))
	if err != nil {
		c.logger.Warn("politeness: robots.txt read failed, allowing origin",
			"origin", origin, "error", err.Error())
		return c.allowAll(origin, FailureTTL)
	}

	disallow, crawlDelay := ParseRobots(string(body), c.userAgent)
	return &Rule{
		Origin:     origin,
		Disallow:   disallow,
		CrawlDelay: crawlDelay,
		FetchedAt:  c.now(),
		TTL:        RuleTTL,
	}
}

func (c *Cache) allowAll(origin string, ttl time.Duration) *Rule {
	return &Rule{
		Origin:    origin,
		FetchedAt: c.now(),
		TTL:       ttl,
	}
}
