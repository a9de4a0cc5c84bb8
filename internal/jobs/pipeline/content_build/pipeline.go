package content_build

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/narrativeforge-backend/internal/domain/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/enrich"
	"github.com/yungbote/narrativeforge-backend/internal/jobs/orchestrator"
	"github.com/yungbote/narrativeforge-backend/internal/jobs/runtime"
	"github.com/yungbote/narrativeforge-backend/internal/modules/content"
	"github.com/yungbote/narrativeforge-backend/internal/platform/scrape"
)

const awaitingSelectionMsg = "awaiting narrative selection"

func (p *ContentBuildPipeline) Type() string { return "content_build" }

func (p *ContentBuildPipeline) Run(jc *runtime.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	engine := orchestrator.NewEngine[Data](p.cfg.Deadline, result)
	if p.cfg.WatchInterval > 0 {
		engine.WatchInterval = p.cfg.WatchInterval
	}
	return engine.Run(jc, p.stages())
}

func (p *ContentBuildPipeline) stages() []orchestrator.Stage[Data] {
	return []orchestrator.Stage[Data]{
		{
			Name: jobs.StageInput, StartPct: 0, EndPct: 5,
			StartMsg: "validating input", DoneMsg: "input accepted",
			IsDone: func(d *Data) bool { return d.Input != nil },
			Run:    p.stageInput,
		},
		{
			Name: jobs.StageExtraction, StartPct: 5, EndPct: 20,
			StartMsg: "extracting reference pages", DoneMsg: "reference pages processed",
			IsDone: func(d *Data) bool { return d.Extraction != nil },
			Run:    p.stageExtraction,
		},
		{
			Name: jobs.StageTranscription, StartPct: 20, EndPct: 30,
			StartMsg: "transcribing reference video", DoneMsg: "reference video processed",
			IsDone: func(d *Data) bool { return d.Transcription != nil },
			Run:    p.stageTranscription,
		},
		{
			Name: jobs.StageResearch, StartPct: 30, EndPct: 50,
			StartMsg: "planning and running research", DoneMsg: "research collected",
			IsDone: func(d *Data) bool { return d.Plan != nil && (len(d.RawResults) > 0 || d.ResearchSkipped) },
			Run:    p.stageResearch,
		},
		{
			Name: jobs.StageSynthesis, StartPct: 50, EndPct: 65,
			StartMsg: "synthesizing research", DoneMsg: "research synthesized",
			IsDone: func(d *Data) bool { return d.Research != nil },
			Run:    p.stageSynthesis,
		},
		{
			Name: jobs.StageNarratives, StartPct: 65, EndPct: 80,
			StartMsg: "generating narrative options", DoneMsg: "narrative chosen",
			ParkMsg: awaitingSelectionMsg,
			IsDone:  func(d *Data) bool { return len(d.Narratives) == content.NarrativeCount },
			Run:     p.stageNarratives,
		},
		{
			Name: jobs.StageGeneration, StartPct: 80, EndPct: 100,
			StartMsg: "generating content", DoneMsg: "content generated",
			IsDone: func(d *Data) bool { return d.Content != nil },
			Run:    p.stageGeneration,
		},
	}
}

func (p *ContentBuildPipeline) stageInput(jc *runtime.Context, d *Data) (orchestrator.Outcome, error) {
	in, err := jc.Input()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", content.ErrInvalidInput, err)
	}
	in.Topic = strings.TrimSpace(in.Topic)
	if in.Topic == "" {
		return 0, fmt.Errorf("%w: topic is required", content.ErrInvalidInput)
	}
	ct, err := content.ParseContentType(in.ContentType)
	if err != nil {
		return 0, err
	}
	in.ContentType = string(ct)
	if in.PreferredAngle != "" {
		angle, ok := content.ParseAngle(in.PreferredAngle)
		if !ok {
			return 0, fmt.Errorf("%w: unknown preferred angle %q", content.ErrInvalidInput, in.PreferredAngle)
		}
		in.PreferredAngle = string(angle)
	}
	d.Input = &in
	return orchestrator.Done, nil
}

type extractedPage struct {
	url  string
	text string
}

func (p *ContentBuildPipeline) stageExtraction(jc *runtime.Context, d *Data) (orchestrator.Outcome, error) {
	urls := d.Input.ReferenceURLs
	switch {
	case len(urls) == 0:
		d.Extraction = unavailable("no reference urls")
		return orchestrator.Skipped, nil
	case !p.deps.Extractor.Configured():
		d.Extraction = unavailable("extraction service not configured")
		return orchestrator.Skipped, nil
	}

	pages := enrich.RunAll(jc.Ctx, jc.Log, urls, p.cfg.BatchSize, func(ctx context.Context, u string) (*extractedPage, error) {
		env := p.deps.Extractor.Fetch(ctx, u)
		if !env.Success {
			return nil, env.Err()
		}
		if !env.HasData() {
			return nil, nil
		}
		return &extractedPage{url: u, text: formatPage(env.Data)}, nil
	})
	if err := jc.Ctx.Err(); err != nil {
		return 0, err
	}
	if len(pages) == 0 {
		d.Extraction = unavailable("no content extracted")
		return orchestrator.Skipped, nil
	}
	parts := make([]string, 0, len(pages))
	sources := make([]string, 0, len(pages))
	for _, pg := range pages {
		parts = append(parts, pg.text)
		sources = append(sources, pg.url)
	}
	d.Extraction = &SourceText{Status: availabilityOK, Text: strings.Join(parts, "\n\n---\n\n"), Sources: sources}
	jc.Log.Info("Reference pages extracted", "requested", len(urls), "extracted", len(pages))
	return orchestrator.Done, nil
}

func formatPage(pg *scrape.Page) string {
	var b strings.Builder
	b.WriteString("Source: ")
	b.WriteString(pg.URL)
	if pg.Title != nil && *pg.Title != "" {
		b.WriteString("\nTitle: ")
		b.WriteString(*pg.Title)
	}
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(pg.Markdown))
	return b.String()
}

func (p *ContentBuildPipeline) stageTranscription(jc *runtime.Context, d *Data) (orchestrator.Outcome, error) {
	switch {
	case d.Input.VideoURL == "":
		d.Transcription = unavailable("no reference video")
		return orchestrator.Skipped, nil
	case !p.deps.Transcriber.Configured():
		d.Transcription = unavailable("transcription service not configured")
		return orchestrator.Skipped, nil
	}
	env := p.deps.Transcriber.Fetch(jc.Ctx, d.Input.VideoURL)
	if err := jc.Ctx.Err(); err != nil {
		return 0, err
	}
	if !env.HasData() {
		reason := "empty transcript"
		if !env.Success {
			reason = env.Error
		}
		d.Transcription = unavailable(reason)
		return orchestrator.Skipped, nil
	}
	d.Transcription = &SourceText{Status: availabilityOK, Text: env.Data.Text, Sources: []string{env.Data.VideoURL}}
	return orchestrator.Done, nil
}

func (p *ContentBuildPipeline) stageResearch(jc *runtime.Context, d *Data) (orchestrator.Outcome, error) {
	in := d.Input
	if d.Plan == nil {
		plan := p.deps.Planner.Plan(jc.Ctx, content.PlanInput{
			Topic:     in.Topic,
			Niche:     in.Niche,
			Objective: in.Objective,
			Tone:      in.Tone,
			Audience:  in.Audience,
			Language:  in.Language,
		})
		if !plan.Success {
			return 0, plan.Err()
		}
		d.Plan = plan.Data
	}

	var results []content.RawResult
	if p.deps.Searcher.Configured() {
		results = enrich.RunAll(jc.Ctx, jc.Log, d.Plan.Queries, p.cfg.BatchSize, func(ctx context.Context, q content.Query) (*content.RawResult, error) {
			env := p.deps.Searcher.Fetch(ctx, enrich.Query{Text: q.Text, MaxResults: p.cfg.SearchResults, Depth: p.cfg.SearchDepth})
			if !env.Success {
				return nil, env.Err()
			}
			if !env.HasData() {
				return nil, nil
			}
			rr := content.RawResult{Query: q.Text, Answer: env.Data.Answer}
			for _, s := range env.Data.Sources {
				rr.Sources = append(rr.Sources, content.RawSource{Title: s.Title, URL: s.URL, Content: s.Content})
			}
			return &rr, nil
		})
	}
	if err := jc.Ctx.Err(); err != nil {
		return 0, err
	}
	if len(results) == 0 {
		if p.cfg.EmptyResearch == EmptyResearchSkip {
			jc.Log.Warn("No research results; continuing without research", "queries", len(d.Plan.Queries))
			d.RawResults = nil
			d.ResearchSkipped = true
			return orchestrator.Done, nil
		}
		return 0, content.ErrNoResearch
	}
	d.RawResults = results
	jc.Log.Info("Research collected", "queries", len(d.Plan.Queries), "results", len(results))
	return orchestrator.Done, nil
}

func (p *ContentBuildPipeline) stageSynthesis(jc *runtime.Context, d *Data) (orchestrator.Outcome, error) {
	if d.ResearchSkipped {
		empty := content.EmptyResearch()
		d.Research = &empty
		return orchestrator.Skipped, nil
	}
	env := p.deps.Synthesizer.Synthesize(jc.Ctx, content.SynthesisInput{
		Topic:            d.Input.Topic,
		Niche:            d.Input.Niche,
		Objective:        d.Input.Objective,
		RawResults:       d.RawResults,
		ExtractedContent: d.Extraction.text(),
		Transcript:       d.Transcription.text(),
	})
	if !env.Success {
		return 0, env.Err()
	}
	d.Research = env.Data
	return orchestrator.Done, nil
}

// stageNarratives parks the job unless the submitter already named an angle or a
// selection has been posted.
func (p *ContentBuildPipeline) stageNarratives(jc *runtime.Context, d *Data) (orchestrator.Outcome, error) {
	env := p.deps.Narratives.Generate(jc.Ctx, content.NarrativeInput{
		Topic:     d.Input.Topic,
		Niche:     d.Input.Niche,
		Objective: d.Input.Objective,
		Tone:      d.Input.Tone,
		Audience:  d.Input.Audience,
		Language:  d.Input.Language,
		Research:  d.Research,
	})
	if !env.Success {
		return 0, env.Err()
	}
	d.Narratives = *env.Data
	if d.Input.PreferredAngle != "" || jc.Job.SelectedNarrativeID != "" {
		return orchestrator.Done, nil
	}
	return orchestrator.Park, nil
}

func (p *ContentBuildPipeline) stageGeneration(jc *runtime.Context, d *Data) (orchestrator.Outcome, error) {
	narrative, err := p.chooseNarrative(jc, d)
	if err != nil {
		return 0, err
	}
	d.SelectedNarrativeID = narrative.ID
	ct, err := content.ParseContentType(d.Input.ContentType)
	if err != nil {
		return 0, err
	}
	env := p.deps.Generator.Generate(jc.Ctx, narrative, ct, content.GenerationContext{
		Topic:      d.Input.Topic,
		Niche:      d.Input.Niche,
		Objective:  d.Input.Objective,
		Audience:   d.Input.Audience,
		Tone:       d.Input.Tone,
		Language:   d.Input.Language,
		SlideCount: d.Input.SlideCount,
		Research:   d.Research,
	})
	if !env.Success {
		return 0, env.Err()
	}
	d.Content = env.Data
	return orchestrator.Done, nil
}

func (p *ContentBuildPipeline) chooseNarrative(jc *runtime.Context, d *Data) (content.NarrativeOption, error) {
	if id := jc.Job.SelectedNarrativeID; id != "" {
		if n, ok := content.FindNarrative(d.Narratives, id, ""); ok {
			return n, nil
		}
		return content.NarrativeOption{}, fmt.Errorf("%w: selected narrative %q not found", content.ErrInvalidInput, id)
	}
	if a := content.Angle(d.Input.PreferredAngle); a != "" {
		if n, ok := content.FindNarrative(d.Narratives, "", a); ok {
			return n, nil
		}
		return content.NarrativeOption{}, fmt.Errorf("%w: no narrative with angle %q", content.ErrInvalidInput, a)
	}
	return content.NarrativeOption{}, fmt.Errorf("%w: no narrative selected", content.ErrInvalidInput)
}
