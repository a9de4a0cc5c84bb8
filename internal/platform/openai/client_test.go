package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/yungbote/narrativeforge-backend/internal/pkg/httpx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

const okBody = `{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"hello "},{"type":"output_text","text":"world"}]}]}`

func newTestClient(t *testing.T, srv *httptest.Server, noTemp string) *Client {
	t.Helper()
	c, err := NewClient(logger.Nop(), Config{APIKey: "sk-test", BaseURL: srv.URL, Model: "base-model", NoTemperatureModels: noTemp})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestGenerateTextConcatenatesOutput(t *testing.T) {
	var got responsesRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" || r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected request: %s auth=%q", r.URL.Path, r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv, "").GenerateText(context.Background(), "", "sys", "usr", 0.7)
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if out != "hello world" {
		t.Fatalf("text: got=%q", out)
	}
	if got.Model != "base-model" || got.Temperature == nil || *got.Temperature != 0.7 {
		t.Fatalf("request: %+v", got)
	}
	if len(got.Input) != 2 || got.Input[0].Role != "system" || got.Input[1].Content != "usr" {
		t.Fatalf("input: %+v", got.Input)
	}
}

func TestGenerateTextRetriesWithoutTemperatureOnce(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req responsesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		atomic.AddInt32(&calls, 1)
		if req.Temperature != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"Unsupported parameter: 'temperature' is not supported with this model."}}`))
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "")
	if _, err := c.GenerateText(context.Background(), "o3-mini", "s", "u", 0.2); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls: want=2 got=%d", calls)
	}
	if !c.modelIsNoTemp("o3-mini") {
		t.Fatalf("expected model to be remembered as no-temperature")
	}
	if _, err := c.GenerateText(context.Background(), "o3-mini", "s", "u", 0.2); err != nil {
		t.Fatalf("GenerateText (second): %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls after learning: want=3 got=%d", calls)
	}
}

func TestGenerateTextStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`rate limited`))
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv, "").GenerateText(context.Background(), "", "s", "u", 0)
	var se *httpx.StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 StatusError, got %v", err)
	}
	if !httpx.IsRetryableError(err) {
		t.Fatalf("429 should be retryable")
	}
}

func TestNoTempRules(t *testing.T) {
	models, prefixes := parseNoTempModelRules(" o1-* , gpt-5 ,, ")
	if !models["gpt-5"] || len(prefixes) != 1 || prefixes[0] != "o1" {
		t.Fatalf("rules: models=%v prefixes=%v", models, prefixes)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(logger.Nop(), Config{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
