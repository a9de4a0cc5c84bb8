// Package content holds the LLM-backed stages of the pipeline: research
// planning, research synthesis, narrative framing and final content generation.
package content

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrMalformedOutput = errors.New("malformed model output")
	ErrNoResearch      = errors.New("no research results provided")
)

type Intent string

const (
	IntentOverview   Intent = "overview"
	IntentHowTo      Intent = "howto"
	IntentExamples   Intent = "examples"
	IntentMetrics    Intent = "metrics"
	IntentRisks      Intent = "risks"
	IntentTools      Intent = "tools"
	IntentCompliance Intent = "compliance"
	IntentTrends     Intent = "trends"
	IntentContrarian Intent = "contrarian"
)

var intents = map[Intent]bool{
	IntentOverview: true, IntentHowTo: true, IntentExamples: true, IntentMetrics: true, IntentRisks: true,
	IntentTools: true, IntentCompliance: true, IntentTrends: true, IntentContrarian: true,
}

func ParseIntent(s string) (Intent, error) {
	i := Intent(strings.ToLower(strings.TrimSpace(s)))
	if !intents[i] {
		return "", fmt.Errorf("unknown intent %q", s)
	}
	return i, nil
}

type Layer string

const (
	LayerFoundation      Layer = "foundation"
	LayerDepth           Layer = "depth"
	LayerDifferentiation Layer = "differentiation"
)

func ParseLayer(s string) (Layer, error) {
	switch l := Layer(strings.ToLower(strings.TrimSpace(s))); l {
	case LayerFoundation, LayerDepth, LayerDifferentiation:
		return l, nil
	default:
		return "", fmt.Errorf("unknown layer %q", s)
	}
}

// Query is one planned search. Optional fields the model omitted stay absent.
type Query struct {
	Text     string  `json:"text"`
	Language *string `json:"language,omitempty"`
	Intent   *Intent `json:"intent,omitempty"`
	Layer    *Layer  `json:"layer,omitempty"`
	// Priority is an ordering hint only.
	Priority *int `json:"priority,omitempty"`
}

type ResearchPlan struct {
	Topic     string  `json:"topic"`
	Niche     string  `json:"niche,omitempty"`
	Objective string  `json:"objective,omitempty"`
	Queries   []Query `json:"queries"`
}

// RawResult is one search answer handed to synthesis.
type RawResult struct {
	Query   string      `json:"query"`
	Answer  string      `json:"answer,omitempty"`
	Sources []RawSource `json:"sources,omitempty"`
}

type RawSource struct {
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Content string `json:"content,omitempty"`
}

type Tension struct {
	Tension     string `json:"tension"`
	Description string `json:"description"`
}

type DataPoint struct {
	Data    string `json:"data"`
	Context string `json:"context"`
	Source  string `json:"source"`
}

type NarrativeExample struct {
	Title  string `json:"title"`
	Story  string `json:"story"`
	Lesson string `json:"lesson"`
}

type Pitfall struct {
	Mistake    string `json:"mistake"`
	Correction string `json:"correction"`
}

type Framework struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
}

type Act struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type Progression struct {
	Act1 Act `json:"act1"`
	Act2 Act `json:"act2"`
	Act3 Act `json:"act3"`
}

type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// SynthesizedResearch is built once per job and read-only afterwards. Every
// collection is independently optional; empty means the model had nothing.
type SynthesizedResearch struct {
	Throughlines      []string           `json:"throughlines"`
	NarrativeTensions []Tension          `json:"narrative_tensions"`
	DataPoints        []DataPoint        `json:"data_points"`
	NarrativeExamples []NarrativeExample `json:"narrative_examples"`
	Pitfalls          []Pitfall          `json:"pitfalls"`
	Frameworks        []Framework        `json:"frameworks"`
	Hooks             []string           `json:"hooks"`
	Progression       Progression        `json:"narrative_progression"`
	OpenQuestions     []string           `json:"open_questions"`
	Gaps              []string           `json:"gaps"`
	Sources           []Source           `json:"sources"`
}

// EmptyResearch returns a research value with every collection present and empty.
func EmptyResearch() SynthesizedResearch {
	return SynthesizedResearch{
		Throughlines:      []string{},
		NarrativeTensions: []Tension{},
		DataPoints:        []DataPoint{},
		NarrativeExamples: []NarrativeExample{},
		Pitfalls:          []Pitfall{},
		Frameworks:        []Framework{},
		Hooks:             []string{},
		OpenQuestions:     []string{},
		Gaps:              []string{},
		Sources:           []Source{},
	}
}

func (r SynthesizedResearch) IsEmpty() bool {
	return len(r.Throughlines) == 0 && len(r.NarrativeTensions) == 0 && len(r.DataPoints) == 0 &&
		len(r.NarrativeExamples) == 0 && len(r.Pitfalls) == 0 && len(r.Frameworks) == 0 &&
		len(r.Hooks) == 0 && len(r.OpenQuestions) == 0 && len(r.Gaps) == 0 && len(r.Sources) == 0 &&
		r.Progression == (Progression{})
}

type Angle string

const (
	AngleHeretic    Angle = "heretic"
	AngleVisionary  Angle = "visionary"
	AngleTranslator Angle = "translator"
	AngleWitness    Angle = "witness"
)

// RequiredAngles is the canonical order used when reporting a missing angle.
var RequiredAngles = []Angle{AngleHeretic, AngleVisionary, AngleTranslator, AngleWitness}

func ParseAngle(s string) (Angle, bool) {
	a := Angle(strings.ToLower(strings.TrimSpace(s)))
	for _, r := range RequiredAngles {
		if a == r {
			return a, true
		}
	}
	return "", false
}

// NarrativeOption is one framing of the topic. Optional enrichment the model
// returned is kept; anything it omitted stays omitted.
type NarrativeOption struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Angle       Angle          `json:"angle"`
	Hook        *string        `json:"hook,omitempty"`
	CoreBelief  *string        `json:"core_belief,omitempty"`
	Tone        *string        `json:"tone,omitempty"`
	Keywords    []string       `json:"keywords,omitempty"`
	Risks       []string       `json:"risks,omitempty"`
	Extra       map[string]any `json:"extra,omitempty"`
}

type ContentType string

const (
	ContentCarousel ContentType = "carousel"
	ContentText     ContentType = "text"
	ContentImage    ContentType = "image"
	ContentVideo    ContentType = "video"
)

func ParseContentType(s string) (ContentType, error) {
	switch t := ContentType(strings.ToLower(strings.TrimSpace(s))); t {
	case ContentCarousel, ContentText, ContentImage, ContentVideo:
		return t, nil
	default:
		return "", fmt.Errorf("%w: unsupported content type %q", ErrInvalidInput, s)
	}
}

type Slide struct {
	Position int    `json:"position"`
	Title    string `json:"title,omitempty"`
	Body     string `json:"body,omitempty"`
	IsCover  bool   `json:"is_cover,omitempty"`
}

type Carousel struct {
	Slides   []Slide  `json:"slides"`
	Caption  string   `json:"caption,omitempty"`
	Hashtags []string `json:"hashtags,omitempty"`
}

type TextPost struct {
	Content  string   `json:"content"`
	Hashtags []string `json:"hashtags,omitempty"`
}

type ImagePost struct {
	ImagePrompt string   `json:"image_prompt"`
	Caption     string   `json:"caption,omitempty"`
	Hashtags    []string `json:"hashtags,omitempty"`
}

type Video struct {
	// Script is set for flat responses; Document for structured ones.
	Script   string         `json:"script,omitempty"`
	Document map[string]any `json:"document,omitempty"`
	CTA      string         `json:"cta,omitempty"`
}

// Metadata records where a piece of content came from.
type Metadata struct {
	NarrativeID         string    `json:"narrative_id"`
	Angle               Angle     `json:"angle"`
	Model               string    `json:"model"`
	GeneratedAt         time.Time `json:"generated_at"`
	UsedResearchContext bool      `json:"used_research_context"`
}

// GeneratedContent is a tagged union: exactly one variant pointer matches Type.
type GeneratedContent struct {
	Type     ContentType `json:"type"`
	Carousel *Carousel   `json:"carousel,omitempty"`
	Text     *TextPost   `json:"text,omitempty"`
	Image    *ImagePost  `json:"image,omitempty"`
	Video    *Video      `json:"video,omitempty"`
	Metadata Metadata    `json:"metadata"`
}

// Validate checks the union invariant.
func (g GeneratedContent) Validate() error {
	set := 0
	for _, ok := range []bool{g.Carousel != nil, g.Text != nil, g.Image != nil, g.Video != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("generated content must hold exactly one variant, has %d", set)
	}
	var match bool
	switch g.Type {
	case ContentCarousel:
		match = g.Carousel != nil
	case ContentText:
		match = g.Text != nil
	case ContentImage:
		match = g.Image != nil
	case ContentVideo:
		match = g.Video != nil
	}
	if !match {
		return fmt.Errorf("generated content variant does not match type %q", g.Type)
	}
	return nil
}

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
