package politeness

import (
	"strconv"
	"strings"
	"time"
)

// Rule holds the fetch-permission policy for a single origin, parsed from its
// robots.txt. An empty Disallow list permits every path.
type Rule struct {
	// Origin is scheme://host[:port] with no trailing slash.
	Origin string
	// Disallow contains path prefixes our user agent must not fetch.
	Disallow []string
	// CrawlDelay is the origin's requested delay between fetches, zero if unset.
	CrawlDelay time.Duration
	// FetchedAt records when the rule was obtained; TTL bounds its validity.
	FetchedAt time.Time
	TTL       time.Duration
}

// Allows reports whether the given URL path may be fetched under this rule.
func (r *Rule) Allows(path string) bool {
	if path == "" {
		path = "/"
	}
	for _, prefix := range r.Disallow {
		if strings.HasPrefix(path, prefix) {
			return false
		}
	}
	return true
}

// Expired reports whether the rule's TTL has elapsed at the given instant.
func (r *Rule) Expired(now time.Time) bool {
	return now.Sub(r.FetchedAt) > r.TTL
}

// ParseRobots extracts the Disallow prefixes and crawl delay that apply to
// userAgent from a robots.txt body. Group selection follows the robots.txt
// convention: the group whose User-agent token is a case-insensitive prefix
// match of our agent wins over the wildcard "*" group. Malformed lines are
// skipped rather than failing the whole document.
func ParseRobots(body string, userAgent string) (disallow []string, crawlDelay time.Duration) {
	agentToken := strings.ToLower(agentProduct(userAgent))

	type group struct {
		disallow   []string
		crawlDelay time.Duration
	}
	var specific, wildcard *group
	var current []*group
	sawDirective := true

	for _, line := range strings.Split(body, "\n") {
		// Strip comments and surrounding whitespace.
		if i := strings.Index(line, "#"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		field = strings.ToLower(strings.TrimSpace(field))
		value = strings.TrimSpace(value)

		switch field {
		case "user-agent":
			// Consecutive User-agent lines share one record group.
			if sawDirective {
				current = nil
				sawDirective = false
			}
			token := strings.ToLower(value)
			switch {
			case token == "*":
				if wildcard == nil {
					wildcard = &group{}
				}
				current = append(current, wildcard)
			case strings.HasPrefix(agentToken, token) || token == agentToken:
				if specific == nil {
					specific = &group{}
				}
				current = append(current, specific)
			}

		case "disallow":
			sawDirective = true
			if value == "" {
				continue // empty Disallow means allow everything
			}
			for _, g := range current {
				g.disallow = append(g.disallow, value)
			}

		case "crawl-delay":
			sawDirective = true
			if seconds, err := strconv.ParseFloat(value, 64); err == nil && seconds > 0 {
				for _, g := range current {
					g.crawlDelay = time.Duration(seconds * float64(time.Second))
				}
			}

		default:
			sawDirective = true
		}
	}

	if specific != nil {
		return specific.disallow, specific.crawlDelay
	}
	if wildcard != nil {
		return wildcard.disallow, wildcard.crawlDelay
	}
	return nil, 0
}

// agentProduct returns the product token of a User-Agent string, e.g.
// "scout/0.1" -> "scout".
func agentProduct(userAgent string) string {
	product, _, _ := strings.Cut(userAgent, "/")
	return strings.TrimSpace(product)
}
