package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yungbote/narrativeforge-backend/internal/pkg/httpx"
)

const service = "narrativeforge"

type jobView struct {
	ID                string    `json:"id"`
	Stage             string    `json:"stage"`
	Status            string    `json:"status"`
	Percent           int       `json:"percent"`
	Message           string    `json:"message,omitempty"`
	Error             string    `json:"error,omitempty"`
	AwaitingSelection bool      `json:"awaiting_selection"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (j jobView) terminal() bool { return j.Status == "completed" || j.Status == "failed" }

type jobEnvelope struct {
	Job jobView `json:"job"`
}

type narrativeView struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Angle       string `json:"angle"`
}

type resultView struct {
	JobID             string          `json:"job_id"`
	Status            string          `json:"status"`
	Stage             string          `json:"stage"`
	AwaitingSelection bool            `json:"awaiting_selection"`
	Narratives        []narrativeView `json:"narratives,omitempty"`
	Content           json.RawMessage `json:"content,omitempty"`
}

type apiClient struct {
	baseURL string
	owner   string
	http    *http.Client
}

func newAPIClient(baseURL, owner string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		owner:   strings.TrimSpace(owner),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *apiClient) headers() map[string]string {
	if c.owner == "" {
		return nil
	}
	return map[string]string{"X-Owner-Id": c.owner}
}

func (c *apiClient) jobURL(id string, suffix string) string {
	return c.baseURL + "/api/jobs/" + url.PathEscape(id) + suffix
}

func (c *apiClient) submit(ctx context.Context, in map[string]any) (jobView, error) {
	var out jobEnvelope
	err := httpx.PostJSON(ctx, c.http, service, c.baseURL+"/api/jobs", c.headers(), in, &out)
	return out.Job, err
}

func (c *apiClient) get(ctx context.Context, id string) (jobView, error) {
	var out jobEnvelope
	err := httpx.GetJSON(ctx, c.http, service, c.jobURL(id, ""), c.headers(), &out)
	return out.Job, err
}

func (c *apiClient) result(ctx context.Context, id string) (resultView, error) {
	var out resultView
	err := httpx.GetJSON(ctx, c.http, service, c.jobURL(id, "/result"), c.headers(), &out)
	return out, err
}

func (c *apiClient) post(ctx context.Context, id, action string, body any) (jobView, error) {
	if body == nil {
		body = map[string]any{}
	}
	var out jobEnvelope
	err := httpx.PostJSON(ctx, c.http, service, c.jobURL(id, "/"+action), c.headers(), body, &out)
	return out.Job, err
}
