package content

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
)

func narrativesJSON(angles ...string) string {
	items := make([]string, 0, len(angles))
	for i, a := range angles {
		items = append(items, fmt.Sprintf(`{"id":"n%d","title":"T%d","description":"D","angle":%q}`, i+1, i+1, a))
	}
	return "[" + strings.Join(items, ",") + "]"
}

func TestNarrativesDuplicateAngleRejected(t *testing.T) {
	fc := &fakeCaller{reply: narrativesJSON("heretic", "heretic", "translator", "witness")}
	env := NewNarrativeGenerator(testLog, fc, catalogue(t), "").Generate(context.Background(), NarrativeInput{Topic: "x"})
	if env.Success || env.Error != "missing required angle: visionary" {
		t.Fatalf("want missing visionary, got %+v", env)
	}
}

func TestNarrativesMissingEachAngle(t *testing.T) {
	for i, missing := range RequiredAngles {
		angles := []string{"heretic", "visionary", "translator", "witness"}
		angles[i] = "rebel"
		var arr []any
		if err := json.Unmarshal([]byte(narrativesJSON(angles...)), &arr); err != nil {
			t.Fatal(err)
		}
		_, err := ParseNarratives(arr, nil)
		if err == nil || err.Error() != "missing required angle: "+string(missing) {
			t.Fatalf("missing %s: got %v", missing, err)
		}
	}
}

func TestNarrativesCountEnforced(t *testing.T) {
	for _, angles := range [][]string{
		{"heretic", "visionary", "translator"},
		{"heretic", "visionary", "translator", "witness", "heretic"},
	} {
		fc := &fakeCaller{reply: narrativesJSON(angles...)}
		env := NewNarrativeGenerator(testLog, fc, catalogue(t), "").Generate(context.Background(), NarrativeInput{Topic: "x"})
		if env.Success || !strings.Contains(env.Error, "expected exactly 4") {
			t.Fatalf("%d items: %+v", len(angles), env)
		}
	}
}

func TestNarrativesPreserveOptionalFields(t *testing.T) {
	reply := `{"narrativas": [
		{"titulo": "Against hustle", "angulo": "Heretic", "gancho": "Stop.", "palavras_chave": ["rest"], "mood_board": {"c": "red"}},
		{"id": "v", "title": "2030", "angle": "visionary"},
		{"id": "t", "title": "Plainly", "angle": "translator", "tone": "calm"},
		{"id": "w", "title": "I was there", "angle": "witness", "risks": []}
	]}`
	g := NewNarrativeGenerator(testLog, &fakeCaller{reply: reply}, catalogue(t), "")
	g.newID = func() string { return "generated" }
	env := g.Generate(context.Background(), NarrativeInput{Topic: "work", Research: &SynthesizedResearch{Hooks: []string{"h"}}})
	if !env.HasData() {
		t.Fatalf("Generate: %+v", env)
	}
	opts := *env.Data
	h := opts[0]
	if h.ID != "generated" || h.Angle != AngleHeretic || h.Hook == nil || *h.Hook != "Stop." || len(h.Keywords) != 1 {
		t.Fatalf("heretic: %+v", h)
	}
	if h.Extra["mood_board"] == nil || h.Tone != nil || h.Risks != nil {
		t.Fatalf("extra/absent: %+v", h)
	}
	b, _ := json.Marshal(opts[1])
	if strings.Contains(string(b), "hook") || strings.Contains(string(b), "extra") {
		t.Fatalf("absent optional fields must be omitted: %s", b)
	}
	if got, ok := FindNarrative(opts, "t", ""); !ok || got.Title != "Plainly" {
		t.Fatalf("FindNarrative by id: %+v", got)
	}
	if got, ok := FindNarrative(opts, "", AngleWitness); !ok || got.ID != "w" {
		t.Fatalf("FindNarrative by angle: %+v", got)
	}
}
