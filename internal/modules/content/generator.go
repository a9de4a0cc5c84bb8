package content

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/narrativeforge-backend/internal/llm/jsonx"
	"github.com/yungbote/narrativeforge-backend/internal/modules/content/prompts"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/result"
)

const DefaultSlideCount = 6

var contentPrompts = map[ContentType]prompts.PromptName{
	ContentCarousel: prompts.PromptContentCarousel,
	ContentText:     prompts.PromptContentText,
	ContentImage:    prompts.PromptContentImage,
	ContentVideo:    prompts.PromptContentVideo,
}

type GenerationContext struct {
	Topic      string
	Niche      string
	Objective  string
	Audience   string
	Tone       string
	Language   string
	SlideCount int
	// Research is nil when synthesis was skipped.
	Research *SynthesizedResearch
}

type ContentGenerator struct {
	llmStage
	now func() time.Time
}

func NewContentGenerator(log *logger.Logger, caller TextCaller, catalogue *prompts.Catalogue, model string) *ContentGenerator {
	return &ContentGenerator{
		llmStage: newStage(log, "ContentGenerator", caller, catalogue, model),
		now:      time.Now,
	}
}

func (g *ContentGenerator) Generate(ctx context.Context, narrative NarrativeOption, contentType ContentType, gc GenerationContext) result.Envelope[GeneratedContent] {
	out, err := g.generate(ctx, narrative, contentType, gc)
	if err != nil {
		return result.Fail[GeneratedContent](err)
	}
	return result.OK(*out)
}

func (g *ContentGenerator) generate(ctx context.Context, narrative NarrativeOption, contentType ContentType, gc GenerationContext) (*GeneratedContent, error) {
	name, ok := contentPrompts[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported content type %q", ErrInvalidInput, contentType)
	}
	if narrative.ID == "" {
		return nil, fmt.Errorf("%w: narrative is required", ErrInvalidInput)
	}
	slides := gc.SlideCount
	if slides <= 0 {
		slides = DefaultSlideCount
	}
	usedResearch := gc.Research != nil && !gc.Research.IsEmpty()
	pin := prompts.Input{
		Topic:         gc.Topic,
		Niche:         gc.Niche,
		Objective:     gc.Objective,
		Audience:      gc.Audience,
		Tone:          gc.Tone,
		Language:      gc.Language,
		ContentType:   string(contentType),
		NarrativeJSON: mustJSON(narrative),
		SlideCount:    slides,
	}
	if usedResearch {
		pin.ResearchJSON = mustJSON(gc.Research)
	}
	raw, err := g.complete(ctx, name, pin)
	if err != nil {
		return nil, fmt.Errorf("content generation: %w", err)
	}
	obj := jsonx.Extract(raw)
	if obj == nil {
		return nil, fmt.Errorf("content generation: %w: no JSON object in response", ErrMalformedOutput)
	}
	out, err := ParseVariant(contentType, obj)
	if err != nil {
		return nil, err
	}
	out.Metadata = Metadata{
		NarrativeID:         narrative.ID,
		Angle:               narrative.Angle,
		Model:               g.modelName(),
		GeneratedAt:         g.now().UTC(),
		UsedResearchContext: usedResearch,
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}
