// Package enrich wraps the optional enrichment services (page extraction,
// contextual search, video transcription) so that an unconfigured or failing
// service degrades to "no data" instead of failing the pipeline.
package enrich

import (
	"context"
	"errors"
	"strings"

	"github.com/yungbote/narrativeforge-backend/internal/observability"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/httpx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/result"
	"github.com/yungbote/narrativeforge-backend/internal/platform/scrape"
	"github.com/yungbote/narrativeforge-backend/internal/platform/search"
)

const (
	ServiceExtraction    = "extraction"
	ServiceSearch        = "search"
	ServiceTranscription = "transcription"

	outcomeOK          = "ok"
	outcomeUnavailable = "unavailable"
	outcomeDegraded    = "degraded"
	outcomeInvalid     = "invalid"
)

type PageScraper interface {
	Scrape(ctx context.Context, pageURL string) (*scrape.Page, error)
}

type WebSearcher interface {
	Search(ctx context.Context, query string, maxResults int, depth search.Depth) (*search.Result, error)
}

type VideoTranscriber interface {
	Transcribe(ctx context.Context, videoURL string) (string, error)
}

// Transcript is the text spoken in one reference video.
type Transcript struct {
	VideoURL string `json:"video_url"`
	Text     string `json:"text"`
}

type Query struct {
	Text       string
	MaxResults int
	Depth      search.Depth
}

// Extractor fetches the main content of a reference URL. A nil client means
// the service is not configured.
type Extractor struct {
	log    *logger.Logger
	client PageScraper
}

func NewExtractor(log *logger.Logger, client PageScraper) *Extractor {
	return &Extractor{log: log.With("service", "ContentExtractor"), client: client}
}

func (e *Extractor) Configured() bool { return e != nil && e.client != nil }

func (e *Extractor) Fetch(ctx context.Context, pageURL string) result.Envelope[scrape.Page] {
	if !e.Configured() {
		record(ServiceExtraction, outcomeUnavailable)
		return result.Empty[scrape.Page]()
	}
	u, err := httpx.ValidateHTTPURL(pageURL)
	if err != nil {
		record(ServiceExtraction, outcomeInvalid)
		return result.Fail[scrape.Page](err)
	}
	page, err := e.client.Scrape(ctx, u.String())
	if err != nil {
		return degrade[scrape.Page](ctx, e.log, ServiceExtraction, err, "url", u.String())
	}
	if page == nil || strings.TrimSpace(page.Markdown) == "" {
		record(ServiceExtraction, outcomeOK)
		return result.Empty[scrape.Page]()
	}
	record(ServiceExtraction, outcomeOK)
	return result.OK(*page)
}

// Searcher runs one contextual search query.
type Searcher struct {
	log    *logger.Logger
	client WebSearcher
}

func NewSearcher(log *logger.Logger, client WebSearcher) *Searcher {
	return &Searcher{log: log.With("service", "ContextSearcher"), client: client}
}

func (s *Searcher) Configured() bool { return s != nil && s.client != nil }

func (s *Searcher) Fetch(ctx context.Context, q Query) result.Envelope[search.Result] {
	if !s.Configured() {
		record(ServiceSearch, outcomeUnavailable)
		return result.Empty[search.Result]()
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		record(ServiceSearch, outcomeInvalid)
		return result.Failf[search.Result]("search query is required")
	}
	res, err := s.client.Search(ctx, text, q.MaxResults, q.Depth)
	if err != nil {
		return degrade[search.Result](ctx, s.log, ServiceSearch, err, "query", text)
	}
	record(ServiceSearch, outcomeOK)
	if res == nil || (res.Answer == "" && len(res.Sources) == 0) {
		return result.Empty[search.Result]()
	}
	return result.OK(*res)
}

// Transcriber turns a reference video into text.
type Transcriber struct {
	log    *logger.Logger
	client VideoTranscriber
}

func NewTranscriber(log *logger.Logger, client VideoTranscriber) *Transcriber {
	return &Transcriber{log: log.With("service", "VideoTranscriber"), client: client}
}

func (t *Transcriber) Configured() bool { return t != nil && t.client != nil }

func (t *Transcriber) Fetch(ctx context.Context, videoURL string) result.Envelope[Transcript] {
	if !t.Configured() {
		record(ServiceTranscription, outcomeUnavailable)
		return result.Empty[Transcript]()
	}
	videoURL = strings.TrimSpace(videoURL)
	if !strings.HasPrefix(videoURL, "gs://") {
		if _, err := httpx.ValidateHTTPURL(videoURL); err != nil {
			record(ServiceTranscription, outcomeInvalid)
			return result.Fail[Transcript](err)
		}
	}
	text, err := t.client.Transcribe(ctx, videoURL)
	if err != nil {
		return degrade[Transcript](ctx, t.log, ServiceTranscription, err, "video_url", videoURL)
	}
	record(ServiceTranscription, outcomeOK)
	if strings.TrimSpace(text) == "" {
		return result.Empty[Transcript]()
	}
	return result.OK(Transcript{VideoURL: videoURL, Text: strings.TrimSpace(text)})
}

// degrade logs a remote failure and reports "no data". Caller cancellation is
// not a remote failure and is reported as such.
func degrade[T any](ctx context.Context, log *logger.Logger, service string, err error, kv ...any) result.Envelope[T] {
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		return result.Fail[T](ctxErr)
	}
	record(service, outcomeDegraded)
	log.Warn("optional service failed; continuing without it", append(kv, "error", err.Error())...)
	return result.Empty[T]()
}

func record(service, outcome string) {
	observability.Current().IncOptionalService(service, outcome)
}
