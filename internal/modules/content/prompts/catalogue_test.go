package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCatalogueBuildsEveryPrompt(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	in := Input{Topic: "productivity", ResultsJSON: "[]", NarrativeJSON: "{}", QueryCount: 7, SlideCount: 6}
	for _, name := range Required {
		p, err := c.Build(name, in)
		if err != nil {
			t.Fatalf("Build(%s): %v", name, err)
		}
		if p.System == "" || p.User == "" || strings.Contains(p.User, "<no value>") {
			t.Fatalf("Build(%s): bad render %+v", name, p)
		}
	}
}

func TestBuildRendersOptionalSections(t *testing.T) {
	c, _ := Default()
	p, err := c.Build(PromptResearchPlan, Input{Topic: "sleep", Niche: "health", QueryCount: 7})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if !strings.Contains(p.User, "Niche: health") || strings.Contains(p.User, "Objective:") {
		t.Fatalf("optional sections: %s", p.User)
	}
	if !strings.Contains(p.User, "exactly 7") {
		t.Fatalf("query count not rendered: %s", p.User)
	}
}

func TestBuildValidatesRequiredFields(t *testing.T) {
	c, _ := Default()
	if _, err := c.Build(PromptResearchSynthesis, Input{Topic: "x"}); err == nil || !strings.Contains(err.Error(), "ResultsJSON required") {
		t.Fatalf("expected ResultsJSON required, got %v", err)
	}
	if _, err := c.Build("nope", Input{}); err == nil {
		t.Fatalf("expected unknown prompt error")
	}
}

func TestLoadOverridesSingleEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	body := "prompts:\n  content_text:\n    version: 3\n    system: custom system\n    user: 'Write about {{.Topic}}'\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, err := c.Build(PromptContentText, Input{Topic: "focus"})
	if err != nil || p.Version != 3 || p.User != "Write about focus" {
		t.Fatalf("override: %+v err=%v", p, err)
	}
	if _, err := c.Build(PromptNarratives, Input{Topic: "focus"}); err != nil {
		t.Fatalf("embedded entries should remain: %v", err)
	}
}

func TestParseRejectsIncompleteOrBadCatalogue(t *testing.T) {
	if _, err := Parse([]byte("prompts: {}")); err == nil {
		t.Fatalf("expected missing prompt error")
	}
	bad := "prompts:\n  narratives:\n    system: s\n    user: '{{.Topic'\n"
	if _, err := parse([]byte(bad), false); err == nil {
		t.Fatalf("expected template parse error")
	}
	unknown := "prompts:\n  narratives:\n    system: s\n    user: u\n    required: [Nope]\n"
	if _, err := parse([]byte(unknown), false); err == nil {
		t.Fatalf("expected unknown field error")
	}
}
