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

// TargetQueryCount is a quality target for plans, not a correctness rule.
const TargetQueryCount = 7

type PlanInput struct {
	Topic     string
	Niche     string
	Objective string
	Tone      string
	Audience  string
	Language  string
}

type Planner struct {
	llmStage
}

func NewPlanner(log *logger.Logger, caller TextCaller, catalogue *prompts.Catalogue, model string) *Planner {
	return &Planner{llmStage: newStage(log, "ResearchPlanner", caller, catalogue, model)}
}

func (p *Planner) Plan(ctx context.Context, in PlanInput) result.Envelope[ResearchPlan] {
	plan, err := p.plan(ctx, in)
	if err != nil {
		return result.Fail[ResearchPlan](err)
	}
	return result.OK(*plan)
}

func (p *Planner) plan(ctx context.Context, in PlanInput) (*ResearchPlan, error) {
	topic := strings.TrimSpace(in.Topic)
	if topic == "" {
		return nil, fmt.Errorf("%w: topic is required", ErrInvalidInput)
	}
	raw, err := p.complete(ctx, prompts.PromptResearchPlan, prompts.Input{
		Topic:      topic,
		Niche:      in.Niche,
		Objective:  in.Objective,
		Tone:       in.Tone,
		Audience:   in.Audience,
		Language:   in.Language,
		QueryCount: TargetQueryCount,
	})
	if err != nil {
		return nil, fmt.Errorf("research plan: %w", err)
	}
	obj := jsonx.Extract(raw)
	if obj == nil {
		return nil, fmt.Errorf("research plan: %w: no JSON object in response", ErrMalformedOutput)
	}
	items, ok := jsonx.Lookup(obj, "queries", "consultas")
	arr, isArr := items.([]any)
	if !ok || !isArr || len(arr) == 0 {
		return nil, fmt.Errorf("research plan: %w: queries must be a non-empty array", ErrMalformedOutput)
	}

	queries := make([]Query, 0, len(arr))
	for i, item := range arr {
		q, err := parseQuery(item)
		if err != nil {
			p.log.Warn("dropping research query", "index", i, "error", err.Error())
			continue
		}
		queries = append(queries, q)
	}
	if len(queries) == 0 {
		return nil, fmt.Errorf("research plan: %w: no usable queries", ErrMalformedOutput)
	}
	if len(queries) != TargetQueryCount {
		p.log.Warn("research plan query count differs from target", "want", TargetQueryCount, "got", len(queries))
	}
	return &ResearchPlan{
		Topic:     topic,
		Niche:     strings.TrimSpace(in.Niche),
		Objective: strings.TrimSpace(in.Objective),
		Queries:   queries,
	}, nil
}

// parseQuery keeps what the model sent. Intent and layer must come from their
// closed sets when present.
func parseQuery(item any) (Query, error) {
	switch t := item.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return Query{}, fmt.Errorf("empty query text")
		}
		return Query{Text: strings.TrimSpace(t)}, nil
	case map[string]any:
		q := Query{Text: jsonx.String(t, "text", "query", "consulta", "texto")}
		if q.Text == "" {
			return Query{}, fmt.Errorf("empty query text")
		}
		q.Language = jsonx.OptString(t, "language", "idioma", "lang")
		if s := jsonx.OptString(t, "intent", "intencao"); s != nil {
			intent, err := ParseIntent(*s)
			if err != nil {
				return Query{}, err
			}
			q.Intent = &intent
		}
		if s := jsonx.OptString(t, "layer", "camada"); s != nil {
			layer, err := ParseLayer(*s)
			if err != nil {
				return Query{}, err
			}
			q.Layer = &layer
		}
		if n, ok := jsonx.Int(t, "priority", "prioridade"); ok {
			q.Priority = &n
		}
		return q, nil
	default:
		return Query{}, fmt.Errorf("query must be an object or string, got %T", item)
	}
}
