// Package prompts holds the prompt catalogue. Prompt wording is configuration:
// it is loaded once from YAML (PROMPTS_PATH) or the embedded default and
// rendered with text/template.
package prompts

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed catalogue.yaml
var defaultCatalogue []byte

// Spec is one catalogue entry as written in YAML.
type Spec struct {
	Version  int      `yaml:"version"`
	System   string   `yaml:"system"`
	User     string   `yaml:"user"`
	Required []string `yaml:"required"`
}

type file struct {
	Prompts map[string]Spec `yaml:"prompts"`
}

// Prompt is a rendered system/user pair.
type Prompt struct {
	Name    PromptName
	Version int
	System  string
	User    string
}

type compiled struct {
	name       PromptName
	version    int
	system     *template.Template
	user       *template.Template
	validators []Validator
}

type Catalogue struct {
	entries map[PromptName]compiled
}

// Default returns the embedded catalogue.
func Default() (*Catalogue, error) {
	return Parse(defaultCatalogue)
}

// Load reads a YAML catalogue from path; an empty path means the embedded default.
// Entries missing from the file fall back to the embedded ones.
func Load(path string) (*Catalogue, error) {
	base, err := Default()
	if err != nil {
		return nil, err
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return base, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt catalogue: %w", err)
	}
	override, err := parse(raw, false)
	if err != nil {
		return nil, err
	}
	for name, c := range override.entries {
		base.entries[name] = c
	}
	return base, nil
}

// Parse compiles a complete catalogue; every name in Required must be present.
func Parse(raw []byte) (*Catalogue, error) {
	return parse(raw, true)
}

func parse(raw []byte, complete bool) (*Catalogue, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse prompt catalogue: %w", err)
	}
	c := &Catalogue{entries: map[PromptName]compiled{}}
	for name, spec := range f.Prompts {
		entry, err := compile(PromptName(name), spec)
		if err != nil {
			return nil, err
		}
		c.entries[entry.name] = entry
	}
	if complete {
		for _, name := range Required {
			if _, ok := c.entries[name]; !ok {
				return nil, fmt.Errorf("prompt catalogue missing %s", name)
			}
		}
	}
	return c, nil
}

func compile(name PromptName, s Spec) (compiled, error) {
	if strings.TrimSpace(string(name)) == "" {
		return compiled{}, fmt.Errorf("missing prompt name")
	}
	if s.Version <= 0 {
		s.Version = 1
	}
	if strings.TrimSpace(s.System) == "" || strings.TrimSpace(s.User) == "" {
		return compiled{}, fmt.Errorf("%s: system and user are required", name)
	}
	sysT, err := template.New("system").Option("missingkey=zero").Parse(s.System)
	if err != nil {
		return compiled{}, fmt.Errorf("%s system template parse: %w", name, err)
	}
	userT, err := template.New("user").Option("missingkey=zero").Parse(s.User)
	if err != nil {
		return compiled{}, fmt.Errorf("%s user template parse: %w", name, err)
	}
	c := compiled{name: name, version: s.Version, system: sysT, user: userT}
	for _, field := range s.Required {
		get, ok := fieldGetters[field]
		if !ok {
			return compiled{}, fmt.Errorf("%s: unknown required field %q", name, field)
		}
		c.validators = append(c.validators, RequireNonEmpty(field, get))
	}
	return c, nil
}

// Build validates in and renders the named prompt.
func (c *Catalogue) Build(name PromptName, in Input) (Prompt, error) {
	if c == nil {
		return Prompt{}, fmt.Errorf("prompt catalogue not loaded")
	}
	t, ok := c.entries[name]
	if !ok {
		return Prompt{}, fmt.Errorf("unknown prompt: %s", name)
	}
	for _, v := range t.validators {
		if err := v(in); err != nil {
			return Prompt{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	sys, err := render(t.system, in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s: %w", name, err)
	}
	user, err := render(t.user, in)
	if err != nil {
		return Prompt{}, fmt.Errorf("%s: %w", name, err)
	}
	return Prompt{Name: name, Version: t.version, System: sys, User: user}, nil
}

func render(t *template.Template, in Input) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, in); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}
