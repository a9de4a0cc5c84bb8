// Package search talks to a Tavily-style contextual search API.
package search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/narrativeforge-backend/internal/pkg/backoff"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/httpx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	// MaxRetries is how many times a transient failure (network, 408, 429, 5xx)
	// is retried. Zero uses the shared default.
	MaxRetries int
}

func (c Config) Configured() bool { return strings.TrimSpace(c.APIKey) != "" }

type Depth string

const (
	DepthBasic    Depth = "basic"
	DepthAdvanced Depth = "advanced"
)

type Source struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// Result is one query's answer plus the sources it was drawn from.
type Result struct {
	Query   string   `json:"query"`
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

type Client struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     backoff.Policy
	sleep      backoff.Sleeper
}

func NewClient(log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if !cfg.Configured() {
		return nil, fmt.Errorf("missing SEARCH_API_KEY")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.tavily.com"
	}
	policy := backoff.Default()
	if cfg.MaxRetries > 0 {
		policy = policy.WithMaxRetries(cfg.MaxRetries)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Client{
		log:        log.With("service", "SearchClient"),
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
		sleep:      backoff.Sleep,
	}, nil
}

type searchRequest struct {
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   Depth  `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type searchResponse struct {
	Answer  string   `json:"answer"`
	Results []Source `json:"results"`
}

func (c *Client) Search(ctx context.Context, query string, maxResults int, depth Depth) (*Result, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	if depth == "" {
		depth = DepthBasic
	}
	var out searchResponse
	err := c.post(ctx, c.baseURL+"/search",
		searchRequest{Query: query, MaxResults: maxResults, SearchDepth: depth, IncludeAnswer: true},
		&out,
	)
	if err != nil {
		return nil, err
	}
	res := &Result{Query: query, Answer: strings.TrimSpace(out.Answer), Sources: make([]Source, 0, len(out.Results))}
	for _, s := range out.Results {
		if strings.TrimSpace(s.URL) == "" && strings.TrimSpace(s.Content) == "" {
			continue
		}
		res.Sources = append(res.Sources, s)
	}
	return res, nil
}

// post retries transient failures with the shared policy. Client errors and
// caller cancellation end the call at once.
func (c *Client) post(ctx context.Context, endpoint string, body any, out any) error {
	_, err := c.policy.Retry(ctx, c.sleep,
		func(attempt int, wait time.Duration, err error) {
			c.log.Warn("search request retrying", "attempt", attempt+1, "sleep", wait.String(), "error", err)
		},
		func(int) error {
			err := httpx.PostJSON(ctx, c.httpClient, "search", endpoint,
				map[string]string{"Authorization": "Bearer " + c.apiKey}, body, out)
			if err != nil && !httpx.IsRetryableError(err) {
				return backoff.Permanent(err)
			}
			return err
		},
	)
	if backoff.IsPermanent(err) {
		err = errors.Unwrap(err)
	}
	return err
}
