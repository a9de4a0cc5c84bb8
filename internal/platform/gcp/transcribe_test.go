package gcp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	vipb "cloud.google.com/go/videointelligence/apiv1/videointelligencepb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

func speechResponse() *vipb.AnnotateVideoResponse {
	word := func(w string, spk int32, start, end int64) *vipb.WordInfo {
		return &vipb.WordInfo{
			Word:       w,
			SpeakerTag: spk,
			StartTime:  durationpb.New(time.Duration(start) * time.Second),
			EndTime:    durationpb.New(time.Duration(end) * time.Second),
			Confidence: 0.9,
		}
	}
	return &vipb.AnnotateVideoResponse{AnnotationResults: []*vipb.VideoAnnotationResults{{
		SpeechTranscriptions: []*vipb.SpeechTranscription{{
			Alternatives: []*vipb.SpeechRecognitionAlternative{{
				Transcript: "hello there general kenobi",
				Words: []*vipb.WordInfo{
					word("hello", 1, 0, 1),
					word("there", 1, 1, 2),
					word("general", 2, 2, 3),
					word("kenobi", 2, 3, 4),
				},
			}},
		}},
	}}}
}

func noSleep(context.Context, time.Duration) error { return nil }

func TestTranscribeGCSSplitsSpeakers(t *testing.T) {
	var got *vipb.AnnotateVideoRequest
	tr := newTranscriber(logger.Nop(), TranscriptionConfig{Credentials: "{}"}, func(_ context.Context, req *vipb.AnnotateVideoRequest) (*vipb.AnnotateVideoResponse, error) {
		got = req
		return speechResponse(), nil
	})
	segs, err := tr.Segments(context.Background(), "gs://bucket/clip.mp4")
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if got.InputUri != "gs://bucket/clip.mp4" || len(got.InputContent) != 0 {
		t.Fatalf("gs uri should be passed by reference: %+v", got)
	}
	if len(segs) != 2 || segs[0].Text != "hello there" || segs[1].SpeakerTag != 2 || segs[1].EndSec != 4 {
		t.Fatalf("segments: %+v", segs)
	}
	text, _ := tr.Transcribe(context.Background(), "gs://bucket/clip.mp4")
	if text != "hello there\ngeneral kenobi" {
		t.Fatalf("transcript: %q", text)
	}
}

func TestTranscribeDownloadsHTTPMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("fake-mp4"))
	}))
	defer srv.Close()

	var got *vipb.AnnotateVideoRequest
	tr := newTranscriber(logger.Nop(), TranscriptionConfig{Credentials: "{}"}, func(_ context.Context, req *vipb.AnnotateVideoRequest) (*vipb.AnnotateVideoResponse, error) {
		got = req
		return &vipb.AnnotateVideoResponse{}, nil
	})
	text, err := tr.Transcribe(context.Background(), srv.URL+"/v.mp4")
	if err != nil || text != "" {
		t.Fatalf("Transcribe: text=%q err=%v", text, err)
	}
	if string(got.InputContent) != "fake-mp4" || got.InputUri != "" {
		t.Fatalf("expected inline content, got %+v", got)
	}
}

func TestTranscribeRejectsOversizedMedia(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()
	tr := newTranscriber(logger.Nop(), TranscriptionConfig{Credentials: "{}", MaxDownloadBytes: 16}, func(context.Context, *vipb.AnnotateVideoRequest) (*vipb.AnnotateVideoResponse, error) {
		t.Fatalf("annotate should not be called")
		return nil, nil
	})
	if _, err := tr.Transcribe(context.Background(), srv.URL); err == nil {
		t.Fatalf("expected size error")
	}
}

func TestTranscribeRetriesUnavailableOnly(t *testing.T) {
	calls := 0
	tr := newTranscriber(logger.Nop(), TranscriptionConfig{Credentials: "{}"}, func(context.Context, *vipb.AnnotateVideoRequest) (*vipb.AnnotateVideoResponse, error) {
		calls++
		if calls < 3 {
			return nil, status.Error(codes.Unavailable, "try later")
		}
		return speechResponse(), nil
	})
	tr.sleep = noSleep
	if _, err := tr.Transcribe(context.Background(), "gs://b/v"); err != nil || calls != 3 {
		t.Fatalf("want success after 3 calls, calls=%d err=%v", calls, err)
	}

	calls = 0
	tr.annotate = func(context.Context, *vipb.AnnotateVideoRequest) (*vipb.AnnotateVideoResponse, error) {
		calls++
		return nil, status.Error(codes.InvalidArgument, "bad video")
	}
	_, err := tr.Transcribe(context.Background(), "gs://b/v")
	if err == nil || calls != 1 || status.Code(errorsCause(err)) != codes.InvalidArgument {
		t.Fatalf("want single InvalidArgument attempt, calls=%d err=%v", calls, err)
	}
}

func errorsCause(err error) error {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok || u.Unwrap() == nil {
			return err
		}
		err = u.Unwrap()
	}
}

func TestClientOptions(t *testing.T) {
	if ClientOptions("  ") != nil {
		t.Fatalf("blank credentials should yield no options")
	}
	if len(ClientOptions(`{"type":"service_account"}`)) != 1 || len(ClientOptions("/tmp/key.json")) != 1 {
		t.Fatalf("expected one option per credential form")
	}
}
