// Package scrape talks to a Firecrawl-style page extraction API.
package scrape

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

// Page is the extracted main content of one URL.
type Page struct {
	URL         string  `json:"url"`
	Markdown    string  `json:"markdown"`
	Title       *string `json:"title,omitempty"`
	Author      *string `json:"author,omitempty"`
	PublishDate *string `json:"publish_date,omitempty"`
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
		return nil, fmt.Errorf("missing SCRAPE_API_KEY")
	}
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.firecrawl.dev"
	}
	policy := backoff.Default()
	if cfg.MaxRetries > 0 {
		policy = policy.WithMaxRetries(cfg.MaxRetries)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		log:        log.With("service", "ScrapeClient"),
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{Timeout: timeout},
		policy:     policy,
		sleep:      backoff.Sleep,
	}, nil
}

type scrapeRequest struct {
	URL             string   `json:"url"`
	Formats         []string `json:"formats"`
	OnlyMainContent bool     `json:"onlyMainContent"`
}

type scrapeResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    struct {
		Markdown string         `json:"markdown"`
		Metadata map[string]any `json:"metadata"`
	} `json:"data"`
}

// Scrape fetches the main content of pageURL as markdown.
func (c *Client) Scrape(ctx context.Context, pageURL string) (*Page, error) {
	var out scrapeResponse
	err := c.post(ctx, c.baseURL+"/v1/scrape",
		scrapeRequest{URL: pageURL, Formats: []string{"markdown"}, OnlyMainContent: true},
		&out,
	)
	if err != nil {
		return nil, err
	}
	if !out.Success {
		msg := strings.TrimSpace(out.Error)
		if msg == "" {
			msg = "unsuccessful scrape"
		}
		return nil, fmt.Errorf("scrape %s: %s", pageURL, msg)
	}
	page := &Page{URL: pageURL, Markdown: strings.TrimSpace(out.Data.Markdown)}
	page.Title = metaString(out.Data.Metadata, "title", "ogTitle")
	page.Author = metaString(out.Data.Metadata, "author", "article:author")
	page.PublishDate = metaString(out.Data.Metadata, "publishedTime", "article:published_time", "date")
	return page, nil
}

func metaString(m map[string]any, keys ...string) *string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			v := strings.TrimSpace(s)
			return &v
		}
	}
	return nil
}

// post retries transient failures with the shared policy. Client errors and
// caller cancellation end the call at once.
func (c *Client) post(ctx context.Context, endpoint string, body any, out any) error {
	_, err := c.policy.Retry(ctx, c.sleep,
		func(attempt int, wait time.Duration, err error) {
			c.log.Warn("scrape request retrying", "attempt", attempt+1, "sleep", wait.String(), "error", err)
		},
		func(int) error {
			err := httpx.PostJSON(ctx, c.httpClient, "scrape", endpoint,
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
