package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/yungbote/narrativeforge-backend/internal/pkg/backoff"
)

type fakeAPI struct {
	mu       sync.Mutex
	polls    int
	states   []jobView
	owners   []string
	bodies   map[string]map[string]any
	failures int
}

func newFakeAPI(t *testing.T, states ...jobView) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{states: states, bodies: map[string]map[string]any{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.owners = append(f.owners, r.Header.Get("X-Owner-Id"))
	if r.Method == http.MethodPost {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.bodies[r.URL.Path] = body
	}
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.URL.Path == "/api/jobs" && r.Method == http.MethodPost:
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(jobEnvelope{Job: jobView{ID: "job-1", Status: "pending", Stage: "input"}})
	case strings.HasSuffix(r.URL.Path, "/result"):
		_ = json.NewEncoder(w).Encode(resultView{
			JobID:             "job-1",
			Status:            "processing",
			Stage:             "narratives",
			AwaitingSelection: true,
			Narratives: []narrativeView{
				{ID: "n-1", Title: "Against the grain", Angle: "heretic"},
				{ID: "n-2", Title: "Five years out", Angle: "visionary"},
			},
		})
	case r.Method == http.MethodPost:
		_ = json.NewEncoder(w).Encode(jobEnvelope{Job: f.current()})
	case r.URL.Path == "/api/jobs/missing":
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"message":"job not found","code":"job_not_found"}}`))
	default:
		if f.failures > 0 {
			f.failures--
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(jobEnvelope{Job: f.current()})
		if f.polls < len(f.states)-1 {
			f.polls++
		}
	}
}

func (f *fakeAPI) current() jobView {
	if len(f.states) == 0 {
		return jobView{ID: "job-1", Status: "pending", Stage: "input"}
	}
	return f.states[f.polls]
}

func fastPolling(t *testing.T, ceiling time.Duration) {
	t.Helper()
	prev := pollingPolicy
	pollingPolicy = backoff.Polling{
		Interval: time.Millisecond,
		Ceiling:  ceiling,
		Retry:    backoff.Policy{MaxRetries: 3, Base: time.Millisecond, Factor: 2},
	}
	t.Cleanup(func() { pollingPolicy = prev })
}

func runCLI(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--server", server, "--owner", "owner-1"}, args...))
	err := cmd.Execute()
	return stdout.String(), err
}

func requireContains(t *testing.T, out, want string) {
	t.Helper()
	if !strings.Contains(out, want) {
		t.Fatalf("output missing %q:\n%s", want, out)
	}
}

func TestSubmitSendsInputAndOwner(t *testing.T) {
	f, srv := newFakeAPI(t)
	out, err := runCLI(t, srv.URL, "submit", "remote", "work", "--type", "text", "--url", "https://a.example", "--angle", "heretic")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	requireContains(t, out, "Submitted job job-1")

	body := f.bodies["/api/jobs"]
	if body["topic"] != "remote work" {
		t.Fatalf("topic: want=%q got=%v", "remote work", body["topic"])
	}
	if body["content_type"] != "text" || body["preferred_angle"] != "heretic" {
		t.Fatalf("body: got=%v", body)
	}
	if _, ok := body["niche"]; ok {
		t.Fatalf("empty flags should be omitted: got=%v", body)
	}
	if f.owners[0] != "owner-1" {
		t.Fatalf("owner header: want=owner-1 got=%q", f.owners[0])
	}
}

func TestStatusRendersTableAndJSON(t *testing.T) {
	_, srv := newFakeAPI(t, jobView{ID: "job-1", Status: "processing", Stage: "research", Percent: 42, Message: "searching"})
	out, err := runCLI(t, srv.URL, "status", "job-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "research")
	requireContains(t, out, "42%")

	out, err = runCLI(t, srv.URL, "--json", "status", "job-1")
	if err != nil {
		t.Fatalf("status json: %v", err)
	}
	var job jobView
	if err := json.Unmarshal([]byte(out), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Percent != 42 {
		t.Fatalf("percent: want=42 got=%d", job.Percent)
	}
}

func TestStatusNotFoundIsNotRetried(t *testing.T) {
	f, srv := newFakeAPI(t)
	_, err := runCLI(t, srv.URL, "status", "missing")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("status missing: want 404 error got=%v", err)
	}
	if len(f.owners) != 1 {
		t.Fatalf("requests: want=1 got=%d", len(f.owners))
	}
}

func TestWatchStopsAtSelection(t *testing.T) {
	fastPolling(t, time.Minute)
	f, srv := newFakeAPI(t,
		jobView{ID: "job-1", Status: "processing", Stage: "research", Percent: 30},
		jobView{ID: "job-1", Status: "processing", Stage: "narratives", Percent: 80, AwaitingSelection: true},
	)
	f.failures = 2

	out, err := runCLI(t, srv.URL, "watch", "job-1")
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	requireContains(t, out, "research")
	requireContains(t, out, "Against the grain")
	requireContains(t, out, "forgectl select job-1")
}

func TestWatchReportsFailure(t *testing.T) {
	fastPolling(t, time.Minute)
	_, srv := newFakeAPI(t, jobView{ID: "job-1", Status: "failed", Stage: "synthesis", Error: "llm call failed after 3 attempt(s)"})
	_, err := runCLI(t, srv.URL, "watch", "job-1")
	if err == nil || !strings.Contains(err.Error(), "failed at synthesis") {
		t.Fatalf("watch failed job: got=%v", err)
	}
}

func TestWatchDeclaresTimeoutAtCeiling(t *testing.T) {
	fastPolling(t, 5*time.Millisecond)
	f, srv := newFakeAPI(t, jobView{ID: "job-1", Status: "processing", Stage: "research", Percent: 30})

	_, err := runCLI(t, srv.URL, "watch", "job-1")
	if !errors.Is(err, ErrWatchTimeout) {
		t.Fatalf("watch: want ErrWatchTimeout got=%v", err)
	}
	body, ok := f.bodies["/api/jobs/job-1/timeout"]
	if !ok {
		t.Fatalf("timeout was not declared")
	}
	if reason, _ := body["reason"].(string); !strings.Contains(reason, "stopped polling") {
		t.Fatalf("reason: got=%q", reason)
	}
}

func TestSelectPostsNarrative(t *testing.T) {
	f, srv := newFakeAPI(t)
	out, err := runCLI(t, srv.URL, "select", "job-1", "n-2")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	requireContains(t, out, "Selected n-2")
	if got := f.bodies["/api/jobs/job-1/select"]["narrative_id"]; got != "n-2" {
		t.Fatalf("narrative_id: want=n-2 got=%v", got)
	}
}

func TestRenderTableAlignsColumns(t *testing.T) {
	out := renderTable([]string{"ID", "Count"}, [][]string{{"a", "1"}, {"bb"}}, []columnAlignment{alignLeft, alignRight})
	requireContains(t, out, "ID")
	requireContains(t, out, "bb")
	if renderTable(nil, nil, nil) != "" {
		t.Fatalf("empty headers should render nothing")
	}
}
