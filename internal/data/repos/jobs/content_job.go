package jobs

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/narrativeforge-backend/internal/domain/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
)

// Checkpoint is one stage transition written atomically by the running pipeline.
type Checkpoint struct {
	Stage   string
	Percent int
	Message string
	State   datatypes.JSON
}

type ContentJobRepo interface {
	Create(dbc dbctx.Context, job *types.ContentJob) (*types.ContentJob, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ContentJob, error)
	ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*types.ContentJob, error)
	UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error)
	SaveCheckpoint(dbc dbctx.Context, id, claim uuid.UUID, cp Checkpoint) (bool, error)
	Heartbeat(dbc dbctx.Context, id, claim uuid.UUID) error
	// MarkFailed with a nil claim is an outside write (observer timeout) and only
	// requires the job to be non-terminal.
	MarkFailed(dbc dbctx.Context, id, claim uuid.UUID, stage string, msg string) (bool, error)
	MarkCompleted(dbc dbctx.Context, id, claim uuid.UUID, result datatypes.JSON, state datatypes.JSON) (bool, error)
	ParkForSelection(dbc dbctx.Context, id, claim uuid.UUID, cp Checkpoint) (bool, error)
	SelectNarrative(dbc dbctx.Context, id uuid.UUID, narrativeID string) (bool, error)
	Abandon(dbc dbctx.Context, id uuid.UUID) (bool, error)
	Restart(dbc dbctx.Context, id uuid.UUID) (bool, error)
}

type contentJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewContentJobRepo(db *gorm.DB, baseLog *logger.Logger) ContentJobRepo {
	return &contentJobRepo{
		db:  db,
		log: baseLog.With("repo", "ContentJobRepo"),
	}
}

func (r *contentJobRepo) tx(dbc dbctx.Context) *gorm.DB {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbctx.Default(dbc.Ctx))
}

func (r *contentJobRepo) Create(dbc dbctx.Context, job *types.ContentJob) (*types.ContentJob, error) {
	if job == nil {
		return nil, errors.New("nil job")
	}
	if err := r.tx(dbc).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// GetByID returns (nil, nil) when the row does not exist.
func (r *contentJobRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*types.ContentJob, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var job types.ContentJob
	if err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&job).Error; err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

// ClaimNextRunnable locks the oldest pending job that is not waiting on a narrative
// selection, or a processing job whose heartbeat went stale (crashed worker). Each
// claim gets a fresh ClaimID, which retires any earlier run on the same row.
func (r *contentJobRepo) ClaimNextRunnable(dbc dbctx.Context, staleRunning time.Duration) (*types.ContentJob, error) {
	now := time.Now().UTC()
	staleCutoff := now.Add(-staleRunning)
	claim := uuid.New()
	var claimed *types.ContentJob
	err := r.tx(dbc).Transaction(func(txx *gorm.DB) error {
		var job types.ContentJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
        (
          (status = ? AND awaiting_selection = ?)
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
      `, types.StatusPending, false, types.StatusProcessing, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&types.ContentJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       types.StatusProcessing,
				"attempts":     gorm.Expr("attempts + 1"),
				"claim_id":     claim,
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		job.Status = types.StatusProcessing
		job.Attempts++
		job.ClaimID = &claim
		job.LockedAt = &now
		job.HeartbeatAt = &now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *contentJobRepo) UpdateFieldsUnlessStatus(dbc dbctx.Context, id uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	return r.updateGuarded(dbc, id, uuid.Nil, disallowedStatuses, updates)
}

// updateGuarded is UpdateFieldsUnlessStatus plus, for a non-nil claim, the
// requirement that the row is still held by that claim.
func (r *contentJobRepo) updateGuarded(dbc dbctx.Context, id, claim uuid.UUID, disallowedStatuses []string, updates map[string]interface{}) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}

	q := r.tx(dbc).Model(&types.ContentJob{}).Where("id = ?", id)
	if claim != uuid.Nil {
		q = q.Where("claim_id = ?", claim)
	}
	if len(disallowedStatuses) == 1 {
		q = q.Where("status <> ?", disallowedStatuses[0])
	} else if len(disallowedStatuses) > 1 {
		q = q.Where("status NOT IN ?", disallowedStatuses)
	}

	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SaveCheckpoint writes stage, progress and state in one statement. It is rejected
// once the job is terminal, which is how an abandoned run learns to stop.
func (r *contentJobRepo) SaveCheckpoint(dbc dbctx.Context, id, claim uuid.UUID, cp Checkpoint) (bool, error) {
	if claim == uuid.Nil {
		return false, errors.New("checkpoint without a claim")
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"stage":        cp.Stage,
		"percent":      clampPercent(cp.Percent),
		"message":      cp.Message,
		"heartbeat_at": now,
		"updated_at":   now,
	}
	if cp.State != nil {
		updates["state"] = cp.State
	}
	return r.updateGuarded(dbc, id, claim, types.TerminalStatuses, updates)
}

func (r *contentJobRepo) Heartbeat(dbc dbctx.Context, id, claim uuid.UUID) error {
	if id == uuid.Nil || claim == uuid.Nil {
		return nil
	}
	now := time.Now().UTC()
	return r.tx(dbc).
		Model(&types.ContentJob{}).
		Where("id = ? AND status = ? AND claim_id = ?", id, types.StatusProcessing, claim).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

func (r *contentJobRepo) MarkFailed(dbc dbctx.Context, id, claim uuid.UUID, stage string, msg string) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":      types.StatusFailed,
		"message":     "",
		"error":       msg,
		"claim_id":    nil,
		"locked_at":   nil,
		"finished_at": now,
		"updated_at":  now,
	}
	if stage != "" {
		updates["stage"] = stage
	}
	return r.updateGuarded(dbc, id, claim, types.TerminalStatuses, updates)
}

func (r *contentJobRepo) MarkCompleted(dbc dbctx.Context, id, claim uuid.UUID, result datatypes.JSON, state datatypes.JSON) (bool, error) {
	if claim == uuid.Nil {
		return false, errors.New("complete without a claim")
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       types.StatusCompleted,
		"stage":        types.StageCompleted,
		"percent":      100,
		"message":      "",
		"error":        "",
		"result":       result,
		"claim_id":     nil,
		"locked_at":    nil,
		"heartbeat_at": now,
		"finished_at":  now,
		"updated_at":   now,
	}
	if state != nil {
		updates["state"] = state
	}
	return r.updateGuarded(dbc, id, claim, types.TerminalStatuses, updates)
}

// ParkForSelection releases the claim and leaves the job pending until a narrative
// is selected. Only the run holding the claim can park it.
func (r *contentJobRepo) ParkForSelection(dbc dbctx.Context, id, claim uuid.UUID, cp Checkpoint) (bool, error) {
	if id == uuid.Nil || claim == uuid.Nil {
		return false, nil
	}
	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":             types.StatusPending,
		"stage":              cp.Stage,
		"percent":            clampPercent(cp.Percent),
		"message":            cp.Message,
		"awaiting_selection": true,
		"claim_id":           nil,
		"locked_at":          nil,
		"updated_at":         now,
	}
	if cp.State != nil {
		updates["state"] = cp.State
	}
	res := r.tx(dbc).Model(&types.ContentJob{}).
		Where("id = ? AND status = ? AND claim_id = ?", id, types.StatusProcessing, claim).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *contentJobRepo) SelectNarrative(dbc dbctx.Context, id uuid.UUID, narrativeID string) (bool, error) {
	if id == uuid.Nil || narrativeID == "" {
		return false, nil
	}
	res := r.tx(dbc).Model(&types.ContentJob{}).
		Where("id = ? AND status = ? AND awaiting_selection = ?", id, types.StatusPending, true).
		Updates(map[string]interface{}{
			"selected_narrative_id": narrativeID,
			"awaiting_selection":    false,
			"message":               "narrative selected",
			"updated_at":            time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *contentJobRepo) Abandon(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	now := time.Now().UTC()
	return r.UpdateFieldsUnlessStatus(dbc, id, types.TerminalStatuses, map[string]interface{}{
		"status":             types.StatusFailed,
		"stage":              types.StageAbandoned,
		"error":              types.ErrAbandoned,
		"message":            "",
		"awaiting_selection": false,
		"claim_id":           nil,
		"locked_at":          nil,
		"finished_at":        now,
		"updated_at":         now,
	})
}

// Restart resets a terminal job to the first stage with a clean checkpoint.
func (r *contentJobRepo) Restart(dbc dbctx.Context, id uuid.UUID) (bool, error) {
	if id == uuid.Nil {
		return false, nil
	}
	res := r.tx(dbc).Model(&types.ContentJob{}).
		Where("id = ? AND status IN ?", id, types.TerminalStatuses).
		Updates(map[string]interface{}{
			"status":                types.StatusPending,
			"stage":                 types.StageInput,
			"percent":               0,
			"message":               "",
			"error":                 "",
			"attempts":              0,
			"awaiting_selection":    false,
			"selected_narrative_id": "",
			"claim_id":              nil,
			"state":                 datatypes.JSON("{}"),
			"result":                datatypes.JSON("null"),
			"locked_at":             nil,
			"heartbeat_at":          nil,
			"finished_at":           nil,
			"updated_at":            time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
