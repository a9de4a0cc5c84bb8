package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	repos "github.com/yungbote/narrativeforge-backend/internal/data/repos/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/domain/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/modules/content"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/httpx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/platform/apierr"
)

const maxReferenceURLs = 10

// JobResult is what a client reads back: narratives while a choice is pending,
// content once the job completes.
type JobResult struct {
	JobID             uuid.UUID       `json:"job_id"`
	Status            string          `json:"status"`
	Stage             string          `json:"stage"`
	AwaitingSelection bool            `json:"awaiting_selection"`
	Narratives        json.RawMessage `json:"narratives,omitempty"`
	Content           json.RawMessage `json:"content,omitempty"`
}

type JobService interface {
	Submit(dbc dbctx.Context, in jobs.JobInput) (*jobs.ContentJob, error)
	Get(dbc dbctx.Context, id uuid.UUID) (*jobs.ContentJob, error)
	Result(dbc dbctx.Context, id uuid.UUID) (*JobResult, error)
	SelectNarrative(dbc dbctx.Context, id uuid.UUID, narrativeID string) (*jobs.ContentJob, error)
	Abandon(dbc dbctx.Context, id uuid.UUID) (*jobs.ContentJob, error)
	Restart(dbc dbctx.Context, id uuid.UUID) (*jobs.ContentJob, error)
	DeclareTimeout(dbc dbctx.Context, id uuid.UUID, reason string) (*jobs.ContentJob, error)
}

type jobService struct {
	log    *logger.Logger
	repo   repos.ContentJobRepo
	notify JobNotifier
}

func NewJobService(baseLog *logger.Logger, repo repos.ContentJobRepo, notify JobNotifier) JobService {
	return &jobService{
		log:    baseLog.With("service", "JobService"),
		repo:   repo,
		notify: notify,
	}
}

func (s *jobService) Submit(dbc dbctx.Context, in jobs.JobInput) (*jobs.ContentJob, error) {
	in, err := normalizeInput(in)
	if err != nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_job_input", err)
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		in.TraceID = td.TraceID
		in.RequestID = td.RequestID
	}
	raw, err := json.Marshal(in)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "encode_payload_failed", err)
	}
	job := &jobs.ContentJob{
		ID:      uuid.New(),
		OwnerID: ownerID(dbc),
		Stage:   jobs.StageInput,
		Status:  jobs.StatusPending,
		Message: "queued",
		Payload: datatypes.JSON(raw),
		State:   datatypes.JSON("{}"),
	}
	created, err := s.repo.Create(dbc, job)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "create_job_failed", err)
	}
	s.log.Info("Content job submitted", "job_id", created.ID, "content_type", in.ContentType, "owner_id", created.OwnerID)
	if s.notify != nil {
		s.notify.JobCreated(created)
	}
	return created, nil
}

func normalizeInput(in jobs.JobInput) (jobs.JobInput, error) {
	in.Topic = strings.TrimSpace(in.Topic)
	if in.Topic == "" {
		return in, fmt.Errorf("topic is required")
	}
	ct, err := content.ParseContentType(in.ContentType)
	if err != nil {
		return in, err
	}
	in.ContentType = string(ct)
	if in.SlideCount < 0 || in.SlideCount > 20 {
		return in, fmt.Errorf("slide_count must be between 1 and 20")
	}
	if p := strings.TrimSpace(in.PreferredAngle); p != "" {
		angle, ok := content.ParseAngle(p)
		if !ok {
			return in, fmt.Errorf("unknown preferred_angle %q", p)
		}
		in.PreferredAngle = string(angle)
	}
	if len(in.ReferenceURLs) > maxReferenceURLs {
		return in, fmt.Errorf("at most %d reference_urls", maxReferenceURLs)
	}
	urls := make([]string, 0, len(in.ReferenceURLs))
	for _, raw := range in.ReferenceURLs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if !isWebURL(raw) {
			return in, fmt.Errorf("invalid reference url %q", raw)
		}
		urls = append(urls, raw)
	}
	in.ReferenceURLs = urls
	in.VideoURL = strings.TrimSpace(in.VideoURL)
	if in.VideoURL != "" && !isWebURL(in.VideoURL) && !strings.HasPrefix(in.VideoURL, "gs://") {
		return in, fmt.Errorf("invalid video_url %q", in.VideoURL)
	}
	return in, nil
}

func isWebURL(raw string) bool {
	_, err := httpx.ValidateHTTPURL(raw)
	return err == nil
}

func ownerID(dbc dbctx.Context) string {
	if rd := ctxutil.GetRequestData(dbc.Ctx); rd != nil {
		return strings.TrimSpace(rd.OwnerID)
	}
	return ""
}

// Get hides jobs owned by someone else behind the same 404 as a missing job.
func (s *jobService) Get(dbc dbctx.Context, id uuid.UUID) (*jobs.ContentJob, error) {
	if id == uuid.Nil {
		return nil, apierr.New(http.StatusBadRequest, "invalid_job_id", fmt.Errorf("missing job id"))
	}
	job, err := s.repo.GetByID(dbc, id)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_job_failed", err)
	}
	if job == nil {
		return nil, apierr.New(http.StatusNotFound, "job_not_found", nil)
	}
	if owner := ownerID(dbc); job.OwnerID != "" && owner != job.OwnerID {
		return nil, apierr.New(http.StatusNotFound, "job_not_found", nil)
	}
	return job, nil
}

// storedNarratives reads the options out of the pipeline checkpoint.
type storedNarratives struct {
	Data struct {
		Narratives json.RawMessage `json:"narratives"`
	} `json:"data"`
}

func narrativesOf(job *jobs.ContentJob) json.RawMessage {
	if len(job.State) == 0 {
		return nil
	}
	var st storedNarratives
	if err := json.Unmarshal(job.State, &st); err != nil || len(st.Data.Narratives) == 0 || string(st.Data.Narratives) == "null" {
		return nil
	}
	return st.Data.Narratives
}

func (s *jobService) Result(dbc dbctx.Context, id uuid.UUID) (*JobResult, error) {
	job, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	out := &JobResult{
		JobID:             job.ID,
		Status:            job.Status,
		Stage:             job.Stage,
		AwaitingSelection: job.AwaitingSelection,
		Narratives:        narrativesOf(job),
	}
	if job.Status == jobs.StatusCompleted && len(job.Result) > 0 {
		out.Content = json.RawMessage(job.Result)
	}
	return out, nil
}

func (s *jobService) SelectNarrative(dbc dbctx.Context, id uuid.UUID, narrativeID string) (*jobs.ContentJob, error) {
	narrativeID = strings.TrimSpace(narrativeID)
	if narrativeID == "" {
		return nil, apierr.New(http.StatusBadRequest, "invalid_narrative_id", fmt.Errorf("narrative_id is required"))
	}
	job, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if !job.AwaitingSelection {
		return nil, apierr.New(http.StatusConflict, "not_awaiting_selection", fmt.Errorf("job is not awaiting a narrative selection"))
	}
	var opts []content.NarrativeOption
	if raw := narrativesOf(job); raw != nil {
		_ = json.Unmarshal(raw, &opts)
	}
	if _, ok := content.FindNarrative(opts, narrativeID, ""); !ok {
		return nil, apierr.New(http.StatusUnprocessableEntity, "unknown_narrative", fmt.Errorf("narrative %q is not one of the generated options", narrativeID))
	}
	ok, err := s.repo.SelectNarrative(dbc, id, narrativeID)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "select_failed", err)
	}
	if !ok {
		return nil, apierr.New(http.StatusConflict, "not_awaiting_selection", fmt.Errorf("job is not awaiting a narrative selection"))
	}
	s.log.Info("Narrative selected", "job_id", id, "narrative_id", narrativeID)
	return s.reload(dbc, id)
}

func (s *jobService) Abandon(dbc dbctx.Context, id uuid.UUID) (*jobs.ContentJob, error) {
	job, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}
	ok, err := s.repo.Abandon(dbc, id)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "abandon_failed", err)
	}
	updated, err := s.reload(dbc, id)
	if err != nil {
		return nil, err
	}
	if ok {
		s.log.Info("Content job abandoned", "job_id", id, "stage", job.Stage)
		if s.notify != nil {
			s.notify.JobFailed(updated, jobs.StageAbandoned, jobs.ErrAbandoned)
		}
	}
	return updated, nil
}

func (s *jobService) Restart(dbc dbctx.Context, id uuid.UUID) (*jobs.ContentJob, error) {
	if _, err := s.Get(dbc, id); err != nil {
		return nil, err
	}
	ok, err := s.repo.Restart(dbc, id)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "restart_failed", err)
	}
	if !ok {
		return nil, apierr.New(http.StatusConflict, "job_not_restartable", fmt.Errorf("only completed or failed jobs can be restarted"))
	}
	updated, err := s.reload(dbc, id)
	if err != nil {
		return nil, err
	}
	s.log.Info("Content job restarted", "job_id", id)
	if s.notify != nil {
		s.notify.JobProgress(updated, jobs.StageInput, 0, "restarting")
	}
	return updated, nil
}

// DeclareTimeout lets an external observer give up on a job. It goes through the
// same guarded update as a pipeline failure, so a job that already finished wins.
func (s *jobService) DeclareTimeout(dbc dbctx.Context, id uuid.UUID, reason string) (*jobs.ContentJob, error) {
	job, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}
	msg := "job timed out"
	if r := strings.TrimSpace(reason); r != "" {
		msg = msg + ": " + r
	}
	ok, err := s.repo.MarkFailed(dbc, id, uuid.Nil, "", msg)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "timeout_failed", err)
	}
	updated, err := s.reload(dbc, id)
	if err != nil {
		return nil, err
	}
	if ok {
		s.log.Warn("Content job declared timed out", "job_id", id, "stage", job.Stage)
		if s.notify != nil {
			s.notify.JobFailed(updated, updated.Stage, msg)
		}
	}
	return updated, nil
}

func (s *jobService) reload(dbc dbctx.Context, id uuid.UUID) (*jobs.ContentJob, error) {
	job, err := s.repo.GetByID(dbc, id)
	if err != nil {
		return nil, apierr.New(http.StatusInternalServerError, "load_job_failed", err)
	}
	if job == nil {
		return nil, apierr.New(http.StatusNotFound, "job_not_found", nil)
	}
	return job, nil
}
