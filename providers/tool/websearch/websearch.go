// Package websearch provides the web_search tool over the DuckDuckGo instant
// answer API. Results come back as a compact text summary suitable for direct
// inclusion in a model conversation.
package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scout/internal/politeness"
	"scout/internal/utils"
	"scout/providers/tool"
)

const (
	// Name is the tool name advertised to the model.
	Name = "web_search"

	defaultBaseURL = "https://api.duckduckgo.com"
	searchTimeout  = 15 * time.Second
	maxTopics      = 5
)

// Input holds the parameters supplied by the model.
type Input struct {
	Query string `json:"query" jsonschema:"description=The search query to look up,required"`
}

// Output is the summarized search result.
type Output struct {
	Query   string `json:"query" jsonschema:"description=The original search query"`
	Summary string `json:"summary" jsonschema:"description=Summary of search results including abstracts, answers and related topics"`
}

// apiResponse models the subset of the instant answer API we consume.
type apiResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Answer        string `json:"Answer"`
	Definition    string `json:"Definition"`
	DefinitionURL string `json:"DefinitionURL"`
	Heading       string `json:"Heading"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Searcher performs instant answer lookups.
type Searcher struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(baseURL string) Option {
	return func(s *Searcher) {
		if baseURL != "" {
			s.baseURL = baseURL
		}
	}
}

// WithHTTPClient sets the HTTP client for API requests.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Searcher) {
		if client != nil {
			s.client = client
		}
	}
}

// New returns the web_search tool.
func New(opts ...Option) *tool.Tool[Input, Output] {
	searcher := &Searcher{
		baseURL:   defaultBaseURL,
		client:    &http.Client{Timeout: searchTimeout},
		userAgent: politeness.DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(searcher)
	}

	return tool.NewTool(Name,
		"Searches the web and returns a summary of instant answers, abstracts and related topics.",
		searcher.Search)
}

// Search runs one instant answer lookup. An empty query is invalid_argument;
// transport failures use the shared taxonomy.
func (s *Searcher) Search(ctx context.Context, input Input) (Output, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return Output{}, tool.NewError(tool.KindInvalidArgument, Name, "query must not be empty")
	}

	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/?"+params.Encode(), nil)
	if err != nil {
		return Output{}, tool.NewError(tool.KindInvalidArgument, Name, "cannot build request: %v", err)
	}
	request.Header.Set("User-Agent", s.userAgent)

	parsed, err := doGet[apiResponse](s.client, request)
	if err != nil {
		if ctx.Err() != nil {
			return Output{}, tool.WrapError(tool.KindTimeout, Name, ctx.Err())
		}
		return Output{}, tool.WrapError(tool.KindNetwork, Name, err)
	}

	return Output{Query: query, Summary: summarize(parsed)}, nil
}

// doGet performs the request and decodes the JSON body into T.
func doGet[T any](client *http.Client, request *http.Request) (*T, error) {
	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer utils.CloseWithLog(response.Body)

	// The instant answer API occasionally answers 202 for throttled queries.
	if response.StatusCode != http.StatusOK && response.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("unexpected status %d", response.StatusCode)
	}

	return utils.DecodeJSON[T](response.Body)
}

// summarize flattens the structured response into the text block fed back to
// the model.
func summarize(parsed *apiResponse) string {
	var sections []string

	if parsed.AbstractText != "" {
		sections = append(sections, "Abstract: "+parsed.AbstractText)
		if parsed.AbstractURL != "" {
			sections = append(sections, "Source: "+parsed.AbstractURL)
		}
	}
	if parsed.Answer != "" {
		sections = append(sections, "Answer: "+parsed.Answer)
	}
	if parsed.Definition != "" {
		sections = append(sections, "Definition: "+parsed.Definition)
	}

	var topics []string
	for _, topic := range parsed.RelatedTopics {
		if topic.Text == "" {
			continue
		}
		entry := topic.Text
		if topic.FirstURL != "" {
			entry += " (" + topic.FirstURL + ")"
		}
		topics = append(topics, entry)
		if len(topics) == maxTopics {
			break
		}
	}
	if len(topics) > 0 {
		sections = append(sections, "Related topics: "+strings.Join(topics, "; "))
	}

	if len(sections) == 0 {
		return "No results found for this query."
	}
	return strings.Join(sections, "\n\n")
}
