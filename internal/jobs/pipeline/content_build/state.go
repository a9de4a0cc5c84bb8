package content_build

import (
	"github.com/yungbote/narrativeforge-backend/internal/domain/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/modules/content"
)

const (
	availabilityOK          = "ok"
	availabilityUnavailable = "unavailable"
)

// SourceText is the outcome of an optional enrichment stage. Unavailable input
// is recorded, not treated as an error.
type SourceText struct {
	Status  string   `json:"status"`
	Reason  string   `json:"reason,omitempty"`
	Text    string   `json:"text,omitempty"`
	Sources []string `json:"sources,omitempty"`
}

func unavailable(reason string) *SourceText {
	return &SourceText{Status: availabilityUnavailable, Reason: reason}
}

func (s *SourceText) text() string {
	if s == nil || s.Status != availabilityOK {
		return ""
	}
	return s.Text
}

// Data is everything the pipeline has produced so far.
type Data struct {
	Input               *jobs.JobInput               `json:"input,omitempty"`
	Extraction          *SourceText                  `json:"extraction,omitempty"`
	Transcription       *SourceText                  `json:"transcription,omitempty"`
	Plan                *content.ResearchPlan        `json:"plan,omitempty"`
	RawResults          []content.RawResult          `json:"raw_results,omitempty"`
	ResearchSkipped     bool                         `json:"research_skipped,omitempty"`
	Research            *content.SynthesizedResearch `json:"research,omitempty"`
	Narratives          []content.NarrativeOption    `json:"narratives,omitempty"`
	SelectedNarrativeID string                       `json:"selected_narrative_id,omitempty"`
	Content             *content.GeneratedContent    `json:"content,omitempty"`
}

func result(d *Data) any {
	if d == nil {
		return nil
	}
	return d.Content
}
