package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	videointelligence "cloud.google.com/go/videointelligence/apiv1"
	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/narrativeforge-backend/internal/pkg/backoff"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/httpx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

type TranscriptionConfig struct {
	// Credentials is inline service-account JSON or a path to it.
	Credentials      string
	LanguageCode     string
	MaxDownloadBytes int64
	Timeout          time.Duration
}

func (c TranscriptionConfig) Configured() bool { return strings.TrimSpace(c.Credentials) != "" }

// Segment is one speaker-contiguous stretch of transcript.
type Segment struct {
	Text       string  `json:"text"`
	StartSec   float64 `json:"start_sec"`
	EndSec     float64 `json:"end_sec"`
	SpeakerTag int     `json:"speaker_tag,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

type annotateFunc func(ctx context.Context, req *vipb.AnnotateVideoRequest) (*vipb.AnnotateVideoResponse, error)

// Transcriber runs speech transcription through Video Intelligence.
type Transcriber struct {
	log        *logger.Logger
	cfg        TranscriptionConfig
	client     *videointelligence.Client
	annotate   annotateFunc
	httpClient *http.Client
	policy     backoff.Policy
	sleep      backoff.Sleeper
}

func NewTranscriber(ctx context.Context, log *logger.Logger, cfg TranscriptionConfig) (*Transcriber, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if !cfg.Configured() {
		return nil, fmt.Errorf("missing GOOGLE_APPLICATION_CREDENTIALS")
	}
	c, err := videointelligence.NewClient(ctx, ClientOptions(cfg.Credentials)...)
	if err != nil {
		return nil, fmt.Errorf("videointelligence client: %w", err)
	}
	t := newTranscriber(log, cfg, func(ctx context.Context, req *vipb.AnnotateVideoRequest) (*vipb.AnnotateVideoResponse, error) {
		op, err := c.AnnotateVideo(ctx, req)
		if err != nil {
			return nil, err
		}
		return op.Wait(ctx)
	})
	t.client = c
	return t, nil
}

func newTranscriber(log *logger.Logger, cfg TranscriptionConfig, fn annotateFunc) *Transcriber {
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "en-US"
	}
	if cfg.MaxDownloadBytes <= 0 {
		cfg.MaxDownloadBytes = 50 << 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return &Transcriber{
		log:        log.With("service", "gcp.Transcriber"),
		cfg:        cfg,
		annotate:   fn,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
		policy:     backoff.Policy{MaxRetries: 4, Base: 750 * time.Millisecond, Factor: 2, Max: 8 * time.Second},
		sleep:      backoff.Sleep,
	}
}

func (t *Transcriber) Close() error {
	if t == nil || t.client == nil {
		return nil
	}
	return t.client.Close()
}

// Transcribe returns the joined transcript for a gs:// URI or an http(s) media URL.
// An empty string with nil error means the video had no recognizable speech.
func (t *Transcriber) Transcribe(ctx context.Context, videoURL string) (string, error) {
	segs, err := t.Segments(ctx, videoURL)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, sg := range segs {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(sg.Text)
	}
	return strings.TrimSpace(b.String()), nil
}

func (t *Transcriber) Segments(ctx context.Context, videoURL string) ([]Segment, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	req := &vipb.AnnotateVideoRequest{
		Features: []vipb.Feature{vipb.Feature_SPEECH_TRANSCRIPTION},
		VideoContext: &vipb.VideoContext{
			SpeechTranscriptionConfig: &vipb.SpeechTranscriptionConfig{
				LanguageCode:               t.cfg.LanguageCode,
				EnableAutomaticPunctuation: true,
				EnableWordConfidence:       true,
			},
		},
	}
	videoURL = strings.TrimSpace(videoURL)
	if strings.HasPrefix(videoURL, "gs://") {
		req.InputUri = videoURL
	} else {
		if _, err := httpx.ValidateHTTPURL(videoURL); err != nil {
			return nil, err
		}
		content, err := t.download(ctx, videoURL)
		if err != nil {
			return nil, err
		}
		req.InputContent = content
	}

	var resp *vipb.AnnotateVideoResponse
	_, err := t.policy.Retry(ctx, t.sleep,
		func(attempt int, wait time.Duration, err error) {
			t.log.Warn("video annotate retrying", "attempt", attempt+1, "sleep", wait.String(), "error", err)
		},
		func(int) error {
			out, err := t.annotate(ctx, req)
			if err != nil {
				if !isRetryableCode(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			resp = out
			return nil
		},
	)
	if err != nil {
		if backoff.IsPermanent(err) {
			err = errors.Unwrap(err)
		}
		return nil, fmt.Errorf("videointelligence AnnotateVideo: %w", err)
	}
	if resp == nil || len(resp.AnnotationResults) == 0 || resp.AnnotationResults[0] == nil {
		return nil, nil
	}
	return parseSpeech(resp.AnnotationResults[0].SpeechTranscriptions), nil
}

func (t *Transcriber) download(ctx context.Context, mediaURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &httpx.StatusError{Service: "media", StatusCode: resp.StatusCode, Body: string(body)}
	}
	limit := t.cfg.MaxDownloadBytes
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("media exceeds %d bytes", limit)
	}
	return data, nil
}

func isRetryableCode(err error) bool {
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

// parseSpeech splits each transcription alternative on speaker changes.
func parseSpeech(st []*vipb.SpeechTranscription) []Segment {
	var out []Segment
	for _, tr := range st {
		if tr == nil || len(tr.Alternatives) == 0 || tr.Alternatives[0] == nil {
			continue
		}
		alt := tr.Alternatives[0]
		if strings.TrimSpace(alt.Transcript) == "" {
			continue
		}
		if len(alt.Words) == 0 {
			out = append(out, Segment{Text: collapseWhitespace(alt.Transcript), Confidence: float64(alt.Confidence)})
			continue
		}

		cur := Segment{
			SpeakerTag: int(alt.Words[0].GetSpeakerTag()),
			StartSec:   durToSec(alt.Words[0].GetStartTime()),
		}
		var words []string
		var confSum float64
		var confN int
		flush := func() {
			if len(words) == 0 {
				return
			}
			cur.Text = strings.Join(words, " ")
			if confN > 0 {
				cur.Confidence = confSum / float64(confN)
			}
			out = append(out, cur)
			words = nil
			confSum, confN = 0, 0
		}
		for _, w := range alt.Words {
			if w == nil {
				continue
			}
			spk := int(w.SpeakerTag)
			if spk != 0 && spk != cur.SpeakerTag && len(words) > 0 {
				flush()
				cur = Segment{SpeakerTag: spk, StartSec: durToSec(w.StartTime)}
			}
			words = append(words, w.Word)
			if end := durToSec(w.EndTime); end > cur.EndSec {
				cur.EndSec = end
			}
			if w.Confidence > 0 {
				confSum += float64(w.Confidence)
				confN++
			}
		}
		flush()
	}
	return out
}

func durToSec(d *durationpb.Duration) float64 {
	if d == nil {
		return 0
	}
	return float64(d.Seconds) + float64(d.Nanos)/1e9
}
