package content

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/narrativeforge-backend/internal/modules/content/prompts"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

// TextCaller is the resilient LLM call layer as seen by the stages.
type TextCaller interface {
	Call(ctx context.Context, model, system, user string, maxRetries int) (string, error)
	DefaultModel() string
	MaxRetries() int
}

type llmStage struct {
	log     *logger.Logger
	caller  TextCaller
	prompts *prompts.Catalogue
	model   string
}

func newStage(log *logger.Logger, service string, caller TextCaller, catalogue *prompts.Catalogue, model string) llmStage {
	if log == nil {
		log = logger.Nop()
	}
	return llmStage{
		log:     log.With("service", service),
		caller:  caller,
		prompts: catalogue,
		model:   strings.TrimSpace(model),
	}
}

func (s llmStage) modelName() string {
	if s.model != "" {
		return s.model
	}
	if s.caller == nil {
		return ""
	}
	return s.caller.DefaultModel()
}

// complete renders name and runs it through the caller with its retry budget.
func (s llmStage) complete(ctx context.Context, name prompts.PromptName, in prompts.Input) (string, error) {
	if s.caller == nil {
		return "", fmt.Errorf("llm caller not configured")
	}
	p, err := s.prompts.Build(name, in)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s.caller.Call(ctx, s.modelName(), p.System, p.User, s.caller.MaxRetries())
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
