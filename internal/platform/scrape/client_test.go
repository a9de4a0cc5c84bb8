package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/yungbote/narrativeforge-backend/internal/pkg/httpx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

func TestScrapeParsesMarkdownAndMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req scrapeRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if r.URL.Path != "/v1/scrape" || r.Header.Get("Authorization") != "Bearer k" || req.URL != "https://blog.example/post" {
			t.Errorf("unexpected request %s %q %+v", r.URL.Path, r.Header.Get("Authorization"), req)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":" # Post \n","metadata":{"title":"Post","ogTitle":"ignored","publishedTime":"2024-05-01"}}}`))
	}))
	defer srv.Close()

	c, err := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	page, err := c.Scrape(context.Background(), "https://blog.example/post")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if page.Markdown != "# Post" || page.Title == nil || *page.Title != "Post" || page.Author != nil {
		t.Fatalf("page: %+v", page)
	}
	if page.PublishDate == nil || *page.PublishDate != "2024-05-01" {
		t.Fatalf("publish date: %v", page.PublishDate)
	}
}

func TestScrapeErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusPaymentRequired)
	}))
	defer srv.Close()
	c, _ := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL})
	_, err := c.Scrape(context.Background(), "https://x.example")
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402 StatusError, got %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("client errors must not be retried: attempts=%d", got)
	}

	if _, err := NewClient(logger.Nop(), Config{}); err == nil {
		t.Fatalf("expected missing key error")
	}
}

func TestScrapeUnsuccessfulBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":false,"error":"blocked"}`))
	}))
	defer srv.Close()
	c, _ := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL})
	if _, err := c.Scrape(context.Background(), "https://x.example"); err == nil {
		t.Fatalf("expected error for success=false")
	}
}

func TestScrapeRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"markdown":"body","metadata":{}}}`))
	}))
	defer srv.Close()

	c, _ := NewClient(logger.Nop(), Config{APIKey: "k", BaseURL: srv.URL})
	var waits []time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error {
		waits = append(waits, d)
		return nil
	}
	page, err := c.Scrape(context.Background(), "https://x.example")
	if err != nil {
		t.Fatalf("Scrape: %v", err)
	}
	if page.Markdown != "body" {
		t.Fatalf("markdown: want=%q got=%q", "body", page.Markdown)
	}
	if calls.Load() != 2 || len(waits) != 1 {
		t.Fatalf("retry: calls=%d waits=%v", calls.Load(), waits)
	}
}
