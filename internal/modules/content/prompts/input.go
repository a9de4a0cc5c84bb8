package prompts

// Input is a superset of all fields any prompt might need.
// Missing fields render empty strings (templates use missingkey=zero).
type Input struct {
	Topic     string
	Niche     string
	Objective string
	Tone      string
	Audience  string
	Language  string

	// Research
	QueryCount       int
	ResultsJSON      string
	ExtractedContent string
	Transcript       string

	// Narratives and generation
	ResearchJSON  string
	NarrativeJSON string
	ContentType   string
	SlideCount    int
}

// fieldGetters backs the `required` list of a catalogue entry.
var fieldGetters = map[string]func(Input) string{
	"Topic":         func(in Input) string { return in.Topic },
	"Niche":         func(in Input) string { return in.Niche },
	"Objective":     func(in Input) string { return in.Objective },
	"Tone":          func(in Input) string { return in.Tone },
	"Audience":      func(in Input) string { return in.Audience },
	"Language":      func(in Input) string { return in.Language },
	"ResultsJSON":   func(in Input) string { return in.ResultsJSON },
	"ResearchJSON":  func(in Input) string { return in.ResearchJSON },
	"NarrativeJSON": func(in Input) string { return in.NarrativeJSON },
	"ContentType":   func(in Input) string { return in.ContentType },
}
