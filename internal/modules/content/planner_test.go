package content

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestPlanPassesQueriesThrough(t *testing.T) {
	fc := &fakeCaller{reply: "Here is the plan:\n```json\n" + `{"queries":[
		{"text":"what is deep work","language":"en","intent":"overview","layer":"foundation","priority":1},
		{"text":"deep work routines"},
		{"text":"bad intent","intent":"gossip"},
		{"text":"   "},
		"plain string query"
	]}` + "\n```"}
	env := NewPlanner(testLog, fc, catalogue(t), "").Plan(context.Background(), PlanInput{Topic: "productivity", Niche: "tech"})
	if !env.HasData() {
		t.Fatalf("Plan: %+v", env)
	}
	plan := env.Data
	if plan.Topic != "productivity" || plan.Niche != "tech" || len(plan.Queries) != 3 {
		t.Fatalf("plan: %+v", plan)
	}
	q0 := plan.Queries[0]
	if q0.Intent == nil || *q0.Intent != IntentOverview || q0.Layer == nil || *q0.Layer != LayerFoundation || q0.Priority == nil || *q0.Priority != 1 {
		t.Fatalf("first query: %+v", q0)
	}
	q1 := plan.Queries[1]
	if q1.Language != nil || q1.Intent != nil || q1.Layer != nil || q1.Priority != nil {
		t.Fatalf("absent fields must stay absent: %+v", q1)
	}
	if plan.Queries[2].Text != "plain string query" {
		t.Fatalf("string query: %+v", plan.Queries[2])
	}
	if fc.models[0] != "test-model" || !strings.Contains(fc.users[0], "exactly 7") {
		t.Fatalf("prompt: model=%v user=%s", fc.models, fc.users[0])
	}
}

func TestPlanFailures(t *testing.T) {
	cases := map[string]*fakeCaller{
		"no json":       {reply: "I cannot help with that."},
		"empty queries": {reply: `{"queries": []}`},
		"not array":     {reply: `{"queries": "x"}`},
		"all dropped":   {reply: `{"queries": [{"text": ""}]}`},
		"llm error":     {err: errors.New("llm call failed after 3 attempt(s)")},
	}
	for name, fc := range cases {
		env := NewPlanner(testLog, fc, catalogue(t), "").Plan(context.Background(), PlanInput{Topic: "x"})
		if env.Success || env.Error == "" {
			t.Fatalf("%s: expected failure, got %+v", name, env)
		}
	}
	env := NewPlanner(testLog, &fakeCaller{}, catalogue(t), "").Plan(context.Background(), PlanInput{Topic: " "})
	if env.Success || !strings.Contains(env.Error, "topic is required") {
		t.Fatalf("empty topic: %+v", env)
	}
}

func TestParseEnumerations(t *testing.T) {
	if _, err := ParseIntent("HowTo"); err != nil {
		t.Fatalf("ParseIntent case-insensitive: %v", err)
	}
	if _, err := ParseLayer("surface"); err == nil {
		t.Fatalf("ParseLayer: expected error")
	}
	if _, err := ParseContentType("reel"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ParseContentType: %v", err)
	}
}
