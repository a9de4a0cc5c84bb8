package content

import (
	"fmt"
	"strings"

	"github.com/yungbote/narrativeforge-backend/internal/llm/jsonx"
)

var contentKeys = struct {
	cover, slides, caption, hashtags, slideTitle, slideBody, coverSub []string
	text, imagePrompt, script, meta, roteiro, thumbnail, cta          []string
}{
	cover:       []string{"capa", "cover"},
	slides:      []string{"slides"},
	caption:     []string{"legenda", "caption"},
	hashtags:    []string{"hashtags"},
	slideTitle:  []string{"title", "titulo", "headline"},
	slideBody:   []string{"body", "text", "texto", "content", "conteudo"},
	coverSub:    []string{"subtitle", "subtitulo", "body", "texto"},
	text:        []string{"content", "conteudo"},
	imagePrompt: []string{"imagePrompt", "image_prompt"},
	script:      []string{"script"},
	meta:        []string{"meta"},
	roteiro:     []string{"roteiro"},
	thumbnail:   []string{"thumbnail"},
	cta:         []string{"cta", "call_to_action"},
}

// ParseVariant dispatches to the validator for contentType. The returned value
// carries no metadata yet.
func ParseVariant(contentType ContentType, obj map[string]any) (GeneratedContent, error) {
	out := GeneratedContent{Type: contentType}
	var err error
	switch contentType {
	case ContentCarousel:
		out.Carousel, err = ParseCarousel(obj)
	case ContentText:
		out.Text, err = ParseText(obj)
	case ContentImage:
		out.Image, err = ParseImage(obj)
	case ContentVideo:
		out.Video, err = ParseVideo(obj)
	default:
		return GeneratedContent{}, fmt.Errorf("%w: unsupported content type %q", ErrInvalidInput, contentType)
	}
	if err != nil {
		return GeneratedContent{}, err
	}
	return out, nil
}

// ParseCarousel accepts cover+slides+caption, or slides alone. The cover, when
// present, becomes slide 1.
func ParseCarousel(obj map[string]any) (*Carousel, error) {
	v, ok := jsonx.Lookup(obj, contentKeys.slides...)
	arr, isArr := v.([]any)
	if !ok || !isArr || len(arr) == 0 {
		return nil, fmt.Errorf("carousel: %w: slides are required", ErrMalformedOutput)
	}
	c := &Carousel{
		Caption:  jsonx.String(obj, contentKeys.caption...),
		Hashtags: jsonx.StringSlice(obj, contentKeys.hashtags...),
	}
	if cover, ok := parseCover(obj); ok {
		cover.Position = 1
		cover.IsCover = true
		c.Slides = append(c.Slides, cover)
	}
	for i, item := range arr {
		var s Slide
		switch t := item.(type) {
		case map[string]any:
			s = Slide{Title: jsonx.String(t, contentKeys.slideTitle...), Body: jsonx.String(t, contentKeys.slideBody...)}
		case string:
			s = Slide{Body: strings.TrimSpace(t)}
		default:
			return nil, fmt.Errorf("carousel: %w: slide %d has unsupported shape %T", ErrMalformedOutput, i, item)
		}
		if s.Title == "" && s.Body == "" {
			return nil, fmt.Errorf("carousel: %w: slide %d is empty", ErrMalformedOutput, i)
		}
		s.Position = len(c.Slides) + 1
		c.Slides = append(c.Slides, s)
	}
	return c, nil
}

func parseCover(obj map[string]any) (Slide, bool) {
	v, ok := jsonx.Lookup(obj, contentKeys.cover...)
	if !ok {
		return Slide{}, false
	}
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return Slide{}, false
		}
		return Slide{Title: strings.TrimSpace(t)}, true
	case map[string]any:
		s := Slide{Title: jsonx.String(t, contentKeys.slideTitle...), Body: jsonx.String(t, contentKeys.coverSub...)}
		return s, s.Title != "" || s.Body != ""
	default:
		return Slide{}, false
	}
}

func ParseText(obj map[string]any) (*TextPost, error) {
	body := jsonx.String(obj, contentKeys.text...)
	if body == "" {
		return nil, fmt.Errorf("text: %w: content is required", ErrMalformedOutput)
	}
	return &TextPost{Content: body, Hashtags: jsonx.StringSlice(obj, contentKeys.hashtags...)}, nil
}

func ParseImage(obj map[string]any) (*ImagePost, error) {
	prompt := jsonx.String(obj, contentKeys.imagePrompt...)
	if prompt == "" {
		return nil, fmt.Errorf("image: %w: imagePrompt is required", ErrMalformedOutput)
	}
	return &ImagePost{
		ImagePrompt: prompt,
		Caption:     jsonx.String(obj, contentKeys.caption...),
		Hashtags:    jsonx.StringSlice(obj, contentKeys.hashtags...),
	}, nil
}

// ParseVideo accepts a structured document (meta + roteiro + thumbnail) or a
// flat script. CTA comes from the document first, then the top level.
func ParseVideo(obj map[string]any) (*Video, error) {
	v := &Video{}
	meta := jsonx.Object(obj, contentKeys.meta...)
	roteiro, hasRoteiro := jsonx.Lookup(obj, contentKeys.roteiro...)
	thumb, hasThumb := jsonx.Lookup(obj, contentKeys.thumbnail...)
	if meta != nil && hasRoteiro && hasThumb && isStructured(roteiro) {
		v.Document = map[string]any{"meta": meta, "roteiro": roteiro, "thumbnail": thumb}
		v.CTA = documentCTA(meta, roteiro)
	}
	v.Script = jsonx.String(obj, contentKeys.script...)
	if v.Document == nil && v.Script == "" {
		return nil, fmt.Errorf("video: %w: script or structured document (meta, roteiro, thumbnail) is required", ErrMalformedOutput)
	}
	if v.CTA == "" {
		v.CTA = jsonx.String(obj, contentKeys.cta...)
	}
	return v, nil
}

func isStructured(v any) bool {
	switch t := v.(type) {
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return false
	}
}

func documentCTA(meta map[string]any, roteiro any) string {
	if s := jsonx.String(meta, contentKeys.cta...); s != "" {
		return s
	}
	switch t := roteiro.(type) {
	case map[string]any:
		return jsonx.String(t, contentKeys.cta...)
	case []any:
		for i := len(t) - 1; i >= 0; i-- {
			if scene, ok := t[i].(map[string]any); ok {
				if s := jsonx.String(scene, contentKeys.cta...); s != "" {
					return s
				}
			}
		}
	}
	return ""
}
