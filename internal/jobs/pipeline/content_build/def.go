package content_build

import (
	"strings"
	"time"

	"github.com/yungbote/narrativeforge-backend/internal/enrich"
	"github.com/yungbote/narrativeforge-backend/internal/modules/content"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/platform/search"
)

// EmptyResearchPolicy decides what happens when every search came back empty.
type EmptyResearchPolicy string

const (
	EmptyResearchFail EmptyResearchPolicy = "fail"
	EmptyResearchSkip EmptyResearchPolicy = "skip"
)

func ParseEmptyResearchPolicy(s string) EmptyResearchPolicy {
	if EmptyResearchPolicy(strings.ToLower(strings.TrimSpace(s))) == EmptyResearchSkip {
		return EmptyResearchSkip
	}
	return EmptyResearchFail
}

type Config struct {
	Deadline      time.Duration
	EmptyResearch EmptyResearchPolicy
	SearchResults int
	SearchDepth   search.Depth
	BatchSize     int
	WatchInterval time.Duration
}

type Deps struct {
	Planner     *content.Planner
	Synthesizer *content.Synthesizer
	Narratives  *content.NarrativeGenerator
	Generator   *content.ContentGenerator
	Extractor   *enrich.Extractor
	Searcher    *enrich.Searcher
	Transcriber *enrich.Transcriber
}

type ContentBuildPipeline struct {
	log  *logger.Logger
	cfg  Config
	deps Deps
}

func NewContentBuildPipeline(baseLog *logger.Logger, cfg Config, deps Deps) *ContentBuildPipeline {
	if cfg.Deadline <= 0 {
		cfg.Deadline = 5 * time.Minute
	}
	if cfg.EmptyResearch == "" {
		cfg.EmptyResearch = EmptyResearchFail
	}
	if cfg.SearchResults <= 0 {
		cfg.SearchResults = 5
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = enrich.DefaultBatchSize
	}
	return &ContentBuildPipeline{
		log:  baseLog.With("job", "content_build"),
		cfg:  cfg,
		deps: deps,
	}
}
