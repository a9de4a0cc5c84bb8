package jobs

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

const (
	StageInput         = "input"
	StageExtraction    = "extraction"
	StageTranscription = "transcription"
	StageResearch      = "research"
	StageSynthesis     = "synthesis"
	StageNarratives    = "narratives"
	StageGeneration    = "generation"
	StageCompleted     = "completed"
	StageAbandoned     = "abandoned"
)

// TerminalStatuses are never overwritten by a running pipeline.
var TerminalStatuses = []string{StatusCompleted, StatusFailed}

const ErrAbandoned = "job abandoned"

// ContentJob is one pipeline run. Stage fields are written only by the worker that
// claimed the row; API writes are limited to guarded abandon/timeout/select/restart.
type ContentJob struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID             string         `gorm:"column:owner_id;index" json:"owner_id,omitempty"`
	Stage               string         `gorm:"column:stage;not null;index" json:"stage"`
	Status              string         `gorm:"column:status;not null;index" json:"status"`
	Percent             int            `gorm:"column:percent;not null;default:0" json:"percent"`
	Message             string         `gorm:"column:message" json:"message,omitempty"`
	Error               string         `gorm:"column:error" json:"error,omitempty"`
	Attempts            int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	// ClaimID identifies the run currently holding the job. Every write a run makes
	// is guarded on it, so a run that lost its claim cannot touch the row.
	ClaimID             *uuid.UUID     `gorm:"type:uuid;column:claim_id;index" json:"-"`
	AwaitingSelection   bool           `gorm:"column:awaiting_selection;not null;default:false;index" json:"awaiting_selection"`
	SelectedNarrativeID string         `gorm:"column:selected_narrative_id" json:"selected_narrative_id,omitempty"`
	Payload             datatypes.JSON `gorm:"column:payload" json:"payload"`
	State               datatypes.JSON `gorm:"column:state" json:"state,omitempty"`
	Result              datatypes.JSON `gorm:"column:result" json:"result,omitempty"`
	LockedAt            *time.Time     `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt         *time.Time     `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	FinishedAt          *time.Time     `gorm:"column:finished_at" json:"finished_at,omitempty"`
	CreatedAt           time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null;index" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (ContentJob) TableName() string { return "content_jobs" }

func (j *ContentJob) BeforeCreate(*gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	if j.Stage == "" {
		j.Stage = StageInput
	}
	if j.Status == "" {
		j.Status = StatusPending
	}
	return nil
}

func (j *ContentJob) IsTerminal() bool {
	return j != nil && (j.Status == StatusCompleted || j.Status == StatusFailed)
}

// HeldBy reports whether claim is the job's current claim.
func (j *ContentJob) HeldBy(claim uuid.UUID) bool {
	return j != nil && j.ClaimID != nil && *j.ClaimID == claim
}

// JobStatus is the polling view of a job. Checkpoint state, payload and result
// stay server-side; narratives and content are served by the result endpoint.
type JobStatus struct {
	ID                uuid.UUID `json:"id"`
	Stage             string    `json:"stage"`
	Status            string    `json:"status"`
	Percent           int       `json:"percent"`
	Message           string    `json:"message,omitempty"`
	Error             string    `json:"error,omitempty"`
	AwaitingSelection bool      `json:"awaiting_selection"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func (j *ContentJob) StatusView() *JobStatus {
	if j == nil {
		return nil
	}
	return &JobStatus{
		ID:                j.ID,
		Stage:             j.Stage,
		Status:            j.Status,
		Percent:           j.Percent,
		Message:           j.Message,
		Error:             j.Error,
		AwaitingSelection: j.AwaitingSelection,
		CreatedAt:         j.CreatedAt,
		UpdatedAt:         j.UpdatedAt,
	}
}

// JobInput is the submission payload stored on ContentJob.Payload.
type JobInput struct {
	Topic          string   `json:"topic"`
	Niche          string   `json:"niche,omitempty"`
	Objective      string   `json:"objective,omitempty"`
	Tone           string   `json:"tone,omitempty"`
	Audience       string   `json:"audience,omitempty"`
	Language       string   `json:"language,omitempty"`
	ContentType    string   `json:"content_type"`
	SlideCount     int      `json:"slide_count,omitempty"`
	ReferenceURLs  []string `json:"reference_urls,omitempty"`
	VideoURL       string   `json:"video_url,omitempty"`
	PreferredAngle string   `json:"preferred_angle,omitempty"`
	TraceID        string   `json:"trace_id,omitempty"`
	RequestID      string   `json:"request_id,omitempty"`
}
