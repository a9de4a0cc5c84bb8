package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/narrativeforge-backend/internal/llm/jsonx"
	"github.com/yungbote/narrativeforge-backend/internal/modules/content/prompts"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/result"
)

const (
	MaxSynthesisResults     = 10
	MaxSynthesisResultChars = 2000
	MaxExtractedChars       = 8000
)

// insightAliases lists, per insight field, the keys consulted in priority
// order: current name first, then legacy and localized names.
var insightAliases = map[string][]string{
	"throughlines":       {"throughlines", "fios_condutores", "linhas_condutoras"},
	"narrative_tensions": {"narrative_tensions", "tensoes_narrativas", "tensions"},
	"data_points":        {"data_points", "contextualized_data", "dados_contextualizados", "dados"},
	"narrative_examples": {"narrative_examples", "exemplos_narrativos", "examples"},
	"pitfalls":           {"pitfalls", "erros_comuns", "common_mistakes"},
	"frameworks":         {"frameworks", "frameworks_metodos", "methods"},
	"hooks":              {"hooks", "ganchos"},
	"open_questions":     {"open_questions", "perguntas_abertas"},
	"gaps":               {"gaps", "lacunas"},
	"sources":            {"sources", "fontes"},

	"tension.tension":     {"tension", "tensao", "title", "titulo"},
	"tension.description": {"description", "descricao"},
	"data.data":           {"data", "dado", "stat", "estatistica"},
	"data.context":        {"context", "contexto"},
	"data.source":         {"source", "fonte"},
	"example.title":       {"title", "titulo"},
	"example.story":       {"story", "historia", "narrative", "narrativa"},
	"example.lesson":      {"lesson", "licao", "takeaway"},
	"pitfall.mistake":     {"mistake", "erro", "pitfall"},
	"pitfall.correction":  {"correction", "correcao", "fix"},
	"framework.name":      {"name", "nome", "title", "titulo"},
	"framework.desc":      {"description", "descricao"},
	"framework.steps":     {"steps", "passos", "etapas"},
	"source.title":        {"title", "titulo"},
	"source.url":          {"url", "link"},
	"progression.nested":  {"narrative_progression", "progressao_narrativa"},
	"act.title":           {"title", "titulo"},
	"act.content":         {"content", "conteudo", "description", "descricao", "summary", "resumo"},
}

var actKeys = [3][]string{{"act1", "ato1"}, {"act2", "ato2"}, {"act3", "ato3"}}

type SynthesisInput struct {
	Topic            string
	Niche            string
	Objective        string
	RawResults       []RawResult
	ExtractedContent string
	Transcript       string
}

type Synthesizer struct {
	llmStage
}

func NewSynthesizer(log *logger.Logger, caller TextCaller, catalogue *prompts.Catalogue, model string) *Synthesizer {
	return &Synthesizer{llmStage: newStage(log, "ResearchSynthesizer", caller, catalogue, model)}
}

func (s *Synthesizer) Synthesize(ctx context.Context, in SynthesisInput) result.Envelope[SynthesizedResearch] {
	r, err := s.synthesize(ctx, in)
	if err != nil {
		return result.Fail[SynthesizedResearch](err)
	}
	return result.OK(*r)
}

func (s *Synthesizer) synthesize(ctx context.Context, in SynthesisInput) (*SynthesizedResearch, error) {
	if len(in.RawResults) == 0 {
		return nil, ErrNoResearch
	}
	trimmed := TruncateResults(in.RawResults)
	if len(in.RawResults) > len(trimmed) {
		s.log.Info("truncated research results", "kept", len(trimmed), "received", len(in.RawResults))
	}
	raw, err := s.complete(ctx, prompts.PromptResearchSynthesis, prompts.Input{
		Topic:            in.Topic,
		Niche:            in.Niche,
		Objective:        in.Objective,
		ResultsJSON:      mustJSON(trimmed),
		ExtractedContent: truncateRunes(strings.TrimSpace(in.ExtractedContent), MaxExtractedChars),
		Transcript:       truncateRunes(strings.TrimSpace(in.Transcript), MaxExtractedChars),
	})
	if err != nil {
		return nil, fmt.Errorf("research synthesis: %w", err)
	}
	obj := jsonx.Extract(raw)
	if obj == nil {
		return nil, fmt.Errorf("research synthesis: %w: no JSON object in response", ErrMalformedOutput)
	}
	r := ParseResearch(obj)
	return &r, nil
}

// TruncateResults bounds the result count and every free-text field.
func TruncateResults(in []RawResult) []RawResult {
	n := len(in)
	if n > MaxSynthesisResults {
		n = MaxSynthesisResults
	}
	out := make([]RawResult, 0, n)
	for _, r := range in[:n] {
		c := RawResult{Query: r.Query, Answer: truncateRunes(r.Answer, MaxSynthesisResultChars)}
		for _, src := range r.Sources {
			src.Content = truncateRunes(src.Content, MaxSynthesisResultChars)
			c.Sources = append(c.Sources, src)
		}
		out = append(out, c)
	}
	return out
}

// ParseResearch maps a model object onto SynthesizedResearch. Each field is
// defaulted on its own; nothing absent from obj is invented.
func ParseResearch(obj map[string]any) SynthesizedResearch {
	r := EmptyResearch()
	r.Throughlines = nonNil(jsonx.StringSlice(obj, insightAliases["throughlines"]...))
	r.Hooks = nonNil(jsonx.StringSlice(obj, insightAliases["hooks"]...))
	r.OpenQuestions = nonNil(jsonx.StringSlice(obj, insightAliases["open_questions"]...))
	r.Gaps = nonNil(jsonx.StringSlice(obj, insightAliases["gaps"]...))

	for _, m := range items(obj, "narrative_tensions", "tension.tension") {
		r.NarrativeTensions = append(r.NarrativeTensions, Tension{
			Tension:     field(m, "tension.tension"),
			Description: field(m, "tension.description"),
		})
	}
	for _, m := range items(obj, "data_points", "data.data") {
		r.DataPoints = append(r.DataPoints, DataPoint{
			Data:    field(m, "data.data"),
			Context: field(m, "data.context"),
			Source:  field(m, "data.source"),
		})
	}
	for _, m := range items(obj, "narrative_examples", "example.story") {
		r.NarrativeExamples = append(r.NarrativeExamples, NarrativeExample{
			Title:  field(m, "example.title"),
			Story:  field(m, "example.story"),
			Lesson: field(m, "example.lesson"),
		})
	}
	for _, m := range items(obj, "pitfalls", "pitfall.mistake") {
		r.Pitfalls = append(r.Pitfalls, Pitfall{
			Mistake:    field(m, "pitfall.mistake"),
			Correction: field(m, "pitfall.correction"),
		})
	}
	for _, m := range items(obj, "frameworks", "framework.name") {
		r.Frameworks = append(r.Frameworks, Framework{
			Name:        field(m, "framework.name"),
			Description: field(m, "framework.desc"),
			Steps:       nonNil(jsonx.StringSlice(m, insightAliases["framework.steps"]...)),
		})
	}
	for _, m := range items(obj, "sources", "source.url") {
		r.Sources = append(r.Sources, Source{
			Title: field(m, "source.title"),
			URL:   field(m, "source.url"),
		})
	}
	r.Progression = ParseProgression(obj)
	return r
}

// ParseProgression reads the nested three-act shape and falls back to the
// flat act1_title / ato1_titulo keys. The result is always fully populated.
func ParseProgression(obj map[string]any) Progression {
	var acts [3]Act
	if nested := jsonx.Object(obj, insightAliases["progression.nested"]...); nested != nil {
		for i, keys := range actKeys {
			acts[i] = parseAct(nested, keys)
		}
	}
	if acts == ([3]Act{}) {
		for i, keys := range actKeys {
			acts[i] = Act{
				Title:   jsonx.String(obj, flatKeys(keys, "title", "titulo")...),
				Content: jsonx.String(obj, append(flatKeys(keys, "content", "conteudo"), keys...)...),
			}
		}
	}
	return Progression{Act1: acts[0], Act2: acts[1], Act3: acts[2]}
}

func parseAct(m map[string]any, keys []string) Act {
	v, ok := jsonx.Lookup(m, keys...)
	if !ok {
		return Act{}
	}
	switch t := v.(type) {
	case string:
		return Act{Content: strings.TrimSpace(t)}
	case map[string]any:
		return Act{Title: field(t, "act.title"), Content: field(t, "act.content")}
	default:
		return Act{}
	}
}

func flatKeys(prefixes []string, suffixes ...string) []string {
	out := make([]string, 0, len(prefixes)*len(suffixes))
	for _, p := range prefixes {
		for _, s := range suffixes {
			out = append(out, p+"_"+s)
		}
	}
	return out
}

// items returns the objects stored under a collection alias. Bare strings are
// accepted as objects holding only the primary field.
func items(obj map[string]any, collection, primary string) []map[string]any {
	v, ok := jsonx.Lookup(obj, insightAliases[collection]...)
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	primaryKey := insightAliases[primary][0]
	for _, item := range arr {
		switch t := item.(type) {
		case map[string]any:
			out = append(out, t)
		case string:
			if strings.TrimSpace(t) != "" {
				out = append(out, map[string]any{primaryKey: t})
			}
		}
	}
	return out
}

func field(m map[string]any, name string) string {
	return jsonx.String(m, insightAliases[name]...)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
