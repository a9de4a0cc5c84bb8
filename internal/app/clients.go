package app

import (
	"context"

	"github.com/yungbote/narrativeforge-backend/internal/enrich"
	"github.com/yungbote/narrativeforge-backend/internal/llm"
	"github.com/yungbote/narrativeforge-backend/internal/modules/content"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/platform/gcp"
	"github.com/yungbote/narrativeforge-backend/internal/platform/openai"
	"github.com/yungbote/narrativeforge-backend/internal/platform/scrape"
	"github.com/yungbote/narrativeforge-backend/internal/platform/search"
)

// Clients holds the external integrations. Interfaces stay nil when a service is
// not configured so the adapters report it as unavailable.
type Clients struct {
	LLM         content.TextCaller
	Scraper     enrich.PageScraper
	Searcher    enrich.WebSearcher
	Transcriber enrich.VideoTranscriber

	transcriber *gcp.Transcriber
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) Clients {
	var out Clients

	if cfg.OpenAI.Configured() {
		oa, err := openai.NewClient(log, cfg.OpenAI)
		if err != nil {
			log.Warn("OpenAI client unavailable", "error", err)
		} else {
			out.LLM = llm.NewCaller(log, oa, llm.CallerConfig{
				DefaultModel: oa.Model(),
				Temperature:  cfg.Temperature,
				MaxRetries:   cfg.LLMRetries,
			})
		}
	} else {
		log.Warn("OPENAI_API_KEY not set; content jobs will fail at the first model call")
	}

	if cfg.Scrape.Configured() {
		c, err := scrape.NewClient(log, cfg.Scrape)
		if err != nil {
			log.Warn("Scrape client unavailable", "error", err)
		} else {
			out.Scraper = c
		}
	}
	if cfg.Search.Configured() {
		c, err := search.NewClient(log, cfg.Search)
		if err != nil {
			log.Warn("Search client unavailable", "error", err)
		} else {
			out.Searcher = c
		}
	}
	if cfg.Transcribe.Configured() {
		t, err := gcp.NewTranscriber(ctx, log, cfg.Transcribe)
		if err != nil {
			log.Warn("Transcriber unavailable", "error", err)
		} else {
			out.Transcriber = t
			out.transcriber = t
		}
	}

	log.Info("External services",
		"llm", out.LLM != nil,
		"scrape", out.Scraper != nil,
		"search", out.Searcher != nil,
		"transcribe", out.Transcriber != nil,
	)
	return out
}

func (c Clients) Close() {
	if c.transcriber != nil {
		_ = c.transcriber.Close()
	}
}
