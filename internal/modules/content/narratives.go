package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/narrativeforge-backend/internal/llm/jsonx"
	"github.com/yungbote/narrativeforge-backend/internal/modules/content/prompts"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/result"
)

// NarrativeCount is the exact number of options a generation must yield.
const NarrativeCount = 4

var narrativeKeys = struct {
	wrap, id, title, desc, angle, hook, belief, tone, keywords, risks []string
}{
	wrap:     []string{"narratives", "narrativas", "options", "opcoes"},
	id:       []string{"id"},
	title:    []string{"title", "titulo"},
	desc:     []string{"description", "descricao"},
	angle:    []string{"angle", "angulo", "tribe", "tribo"},
	hook:     []string{"hook", "gancho"},
	belief:   []string{"core_belief", "coreBelief", "crenca_central"},
	tone:     []string{"tone", "tom"},
	keywords: []string{"keywords", "palavras_chave"},
	risks:    []string{"risks", "riscos"},
}

var knownNarrativeKeys = func() map[string]bool {
	k := narrativeKeys
	m := map[string]bool{}
	for _, group := range [][]string{k.id, k.title, k.desc, k.angle, k.hook, k.belief, k.tone, k.keywords, k.risks} {
		for _, key := range group {
			m[key] = true
		}
	}
	return m
}()

type NarrativeInput struct {
	Topic     string
	Niche     string
	Objective string
	Tone      string
	Audience  string
	Language  string
	Research  *SynthesizedResearch
}

type NarrativeGenerator struct {
	llmStage
	newID func() string
}

func NewNarrativeGenerator(log *logger.Logger, caller TextCaller, catalogue *prompts.Catalogue, model string) *NarrativeGenerator {
	return &NarrativeGenerator{
		llmStage: newStage(log, "NarrativeGenerator", caller, catalogue, model),
		newID:    uuid.NewString,
	}
}

func (g *NarrativeGenerator) Generate(ctx context.Context, in NarrativeInput) result.Envelope[[]NarrativeOption] {
	opts, err := g.generate(ctx, in)
	if err != nil {
		return result.Fail[[]NarrativeOption](err)
	}
	return result.OK(opts)
}

func (g *NarrativeGenerator) generate(ctx context.Context, in NarrativeInput) ([]NarrativeOption, error) {
	if strings.TrimSpace(in.Topic) == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	pin := prompts.Input{
		Topic:     in.Topic,
		Niche:     in.Niche,
		Objective: in.Objective,
		Tone:      in.Tone,
		Audience:  in.Audience,
		Language:  in.Language,
	}
	if in.Research != nil && !in.Research.IsEmpty() {
		pin.ResearchJSON = mustJSON(in.Research)
	}
	raw, err := g.complete(ctx, prompts.PromptNarratives, pin)
	if err != nil {
		return nil, fmt.Errorf("narratives: %w", err)
	}
	arr := jsonx.ExtractArray(raw, narrativeKeys.wrap...)
	if arr == nil {
		return nil, fmt.Errorf("narratives: %w: no JSON array in response", ErrMalformedOutput)
	}
	return ParseNarratives(arr, g.newID)
}

// ParseNarratives enforces exactly four options covering every required angle.
// newID fills ids the model left out.
func ParseNarratives(arr []any, newID func() string) ([]NarrativeOption, error) {
	if len(arr) != NarrativeCount {
		return nil, fmt.Errorf("narratives: %w: expected exactly %d narratives, got %d", ErrMalformedOutput, NarrativeCount, len(arr))
	}
	out := make([]NarrativeOption, 0, len(arr))
	seen := map[Angle]bool{}
	for i, item := range arr {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("narratives: %w: item %d is not an object", ErrMalformedOutput, i)
		}
		opt := parseNarrative(m)
		if opt.ID == "" && newID != nil {
			opt.ID = newID()
		}
		if opt.Angle != "" {
			seen[opt.Angle] = true
		}
		out = append(out, opt)
	}
	for _, a := range RequiredAngles {
		if !seen[a] {
			return nil, fmt.Errorf("missing required angle: %s", a)
		}
	}
	return out, nil
}

func parseNarrative(m map[string]any) NarrativeOption {
	k := narrativeKeys
	opt := NarrativeOption{
		ID:          jsonx.String(m, k.id...),
		Title:       jsonx.String(m, k.title...),
		Description: jsonx.String(m, k.desc...),
		Hook:        jsonx.OptString(m, k.hook...),
		CoreBelief:  jsonx.OptString(m, k.belief...),
		Tone:        jsonx.OptString(m, k.tone...),
		Keywords:    jsonx.StringSlice(m, k.keywords...),
		Risks:       jsonx.StringSlice(m, k.risks...),
	}
	if a, ok := ParseAngle(jsonx.String(m, k.angle...)); ok {
		opt.Angle = a
	}
	for key, v := range m {
		if knownNarrativeKeys[key] || v == nil {
			continue
		}
		if opt.Extra == nil {
			opt.Extra = map[string]any{}
		}
		opt.Extra[key] = v
	}
	return opt
}

// FindNarrative returns the option with id, or the first one with angle when id is empty.
func FindNarrative(opts []NarrativeOption, id string, angle Angle) (NarrativeOption, bool) {
	id = strings.TrimSpace(id)
	for _, o := range opts {
		if id != "" && o.ID == id {
			return o, true
		}
	}
	if id == "" && angle != "" {
		for _, o := range opts {
			if o.Angle == angle {
				return o, true
			}
		}
	}
	return NarrativeOption{}, false
}
