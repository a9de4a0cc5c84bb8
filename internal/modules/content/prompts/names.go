package prompts

type PromptName string

const (
	PromptResearchPlan      PromptName = "research_plan"
	PromptResearchSynthesis PromptName = "research_synthesis"
	PromptNarratives        PromptName = "narratives"
	PromptContentCarousel   PromptName = "content_carousel"
	PromptContentText       PromptName = "content_text"
	PromptContentImage      PromptName = "content_image"
	PromptContentVideo      PromptName = "content_video"
)

// Required lists every prompt a catalogue must define.
var Required = []PromptName{
	PromptResearchPlan,
	PromptResearchSynthesis,
	PromptNarratives,
	PromptContentCarousel,
	PromptContentText,
	PromptContentImage,
	PromptContentVideo,
}
