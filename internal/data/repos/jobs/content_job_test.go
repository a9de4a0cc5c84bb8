package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/yungbote/narrativeforge-backend/internal/data/repos/testutil"
	types "github.com/yungbote/narrativeforge-backend/internal/domain/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/dbctx"
)

func TestContentJobRepoClaimOrder(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewContentJobRepo(db, testutil.Logger(t))

	now := time.Now().UTC()
	in := types.JobInput{Topic: "t", ContentType: "text"}

	older := testutil.SeedJob(t, ctx, db, in, func(j *types.ContentJob) { j.CreatedAt = now.Add(-3 * time.Hour) })
	parked := testutil.SeedJob(t, ctx, db, in, func(j *types.ContentJob) {
		j.CreatedAt = now.Add(-4 * time.Hour)
		j.AwaitingSelection = true
	})
	stale := testutil.SeedJob(t, ctx, db, in, func(j *types.ContentJob) {
		hb := now.Add(-2 * time.Hour)
		j.CreatedAt = now.Add(-2 * time.Hour)
		j.Status = types.StatusProcessing
		j.HeartbeatAt = &hb
	})
	_ = testutil.SeedJob(t, ctx, db, in, func(j *types.ContentJob) {
		hb := now
		j.CreatedAt = now.Add(-5 * time.Hour)
		j.Status = types.StatusProcessing
		j.HeartbeatAt = &hb
	})
	_ = testutil.SeedJob(t, ctx, db, in, func(j *types.ContentJob) {
		j.CreatedAt = now.Add(-6 * time.Hour)
		j.Status = types.StatusFailed
	})

	claim1, err := repo.ClaimNextRunnable(dbc, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #1: %v", err)
	}
	if claim1 == nil || claim1.ID != older.ID {
		t.Fatalf("ClaimNextRunnable #1: expected %v got %v", older.ID, claim1)
	}
	if claim1.Status != types.StatusProcessing || claim1.Attempts != 1 || claim1.LockedAt == nil {
		t.Fatalf("claimed job not marked: %+v", claim1)
	}

	claim2, err := repo.ClaimNextRunnable(dbc, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #2: %v", err)
	}
	if claim2 == nil || claim2.ID != stale.ID {
		t.Fatalf("ClaimNextRunnable #2: expected stale %v got %v", stale.ID, claim2)
	}

	claim3, err := repo.ClaimNextRunnable(dbc, time.Hour)
	if err != nil {
		t.Fatalf("ClaimNextRunnable #3: %v", err)
	}
	if claim3 != nil {
		t.Fatalf("ClaimNextRunnable #3: expected nil, got %v", claim3.ID)
	}

	if ok, err := repo.SelectNarrative(dbc, parked.ID, "n-1"); err != nil || !ok {
		t.Fatalf("SelectNarrative: ok=%v err=%v", ok, err)
	}
	claim4, err := repo.ClaimNextRunnable(dbc, time.Hour)
	if err != nil || claim4 == nil || claim4.ID != parked.ID {
		t.Fatalf("selected job should be claimable: err=%v got=%v", err, claim4)
	}
	if claim4.SelectedNarrativeID != "n-1" || claim4.AwaitingSelection {
		t.Fatalf("selection not persisted: %+v", claim4)
	}
}

func TestContentJobRepoTerminalGuards(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewContentJobRepo(db, testutil.Logger(t))

	job := testutil.SeedJob(t, ctx, db, types.JobInput{Topic: "t", ContentType: "text"}, nil)
	claimed, err := repo.ClaimNextRunnable(dbc, time.Hour)
	if err != nil || claimed == nil || claimed.ClaimID == nil {
		t.Fatalf("claim: job=%v err=%v", claimed, err)
	}
	claim := *claimed.ClaimID

	ok, err := repo.SaveCheckpoint(dbc, job.ID, claim, Checkpoint{Stage: types.StageResearch, Percent: 140, Message: "m", State: datatypes.JSON(`{"a":1}`)})
	if err != nil || !ok {
		t.Fatalf("SaveCheckpoint: ok=%v err=%v", ok, err)
	}
	got, _ := repo.GetByID(dbc, job.ID)
	if got.Stage != types.StageResearch || got.Percent != 100 || string(got.State) != `{"a":1}` {
		t.Fatalf("checkpoint: %+v", got)
	}

	if ok, err := repo.Abandon(dbc, job.ID); err != nil || !ok {
		t.Fatalf("Abandon: ok=%v err=%v", ok, err)
	}
	if ok, _ := repo.SaveCheckpoint(dbc, job.ID, claim, Checkpoint{Stage: types.StageSynthesis}); ok {
		t.Fatalf("checkpoint after abandon should be rejected")
	}
	if ok, _ := repo.MarkCompleted(dbc, job.ID, claim, datatypes.JSON(`{}`), nil); ok {
		t.Fatalf("complete after abandon should be rejected")
	}
	if ok, _ := repo.MarkFailed(dbc, job.ID, claim, "", "boom"); ok {
		t.Fatalf("fail after abandon should be rejected")
	}
	got, _ = repo.GetByID(dbc, job.ID)
	if got.Stage != types.StageAbandoned || got.Status != types.StatusFailed || got.Error != types.ErrAbandoned {
		t.Fatalf("abandoned job: %+v", got)
	}

	if ok, err := repo.Restart(dbc, job.ID); err != nil || !ok {
		t.Fatalf("Restart: ok=%v err=%v", ok, err)
	}
	got, _ = repo.GetByID(dbc, job.ID)
	if got.Stage != types.StageInput || got.Status != types.StatusPending || got.Error != "" || got.Percent != 0 {
		t.Fatalf("restarted job: %+v", got)
	}
	if ok, _ := repo.Restart(dbc, job.ID); ok {
		t.Fatalf("restart of a pending job should be rejected")
	}
}

func TestContentJobRepoParkAndSelect(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewContentJobRepo(db, testutil.Logger(t))

	job := testutil.SeedJob(t, ctx, db, types.JobInput{Topic: "t", ContentType: "text"}, nil)
	if ok, _ := repo.ParkForSelection(dbc, job.ID, uuid.New(), Checkpoint{Stage: types.StageNarratives}); ok {
		t.Fatalf("park without claim should be rejected")
	}
	if ok, _ := repo.SelectNarrative(dbc, job.ID, "x"); ok {
		t.Fatalf("select on a job not awaiting selection should be rejected")
	}
	claimed, err := repo.ClaimNextRunnable(dbc, time.Hour)
	if err != nil || claimed == nil {
		t.Fatalf("claim: job=%v err=%v", claimed, err)
	}
	ok, err := repo.ParkForSelection(dbc, job.ID, *claimed.ClaimID, Checkpoint{Stage: types.StageNarratives, Percent: 80, Message: "awaiting narrative selection"})
	if err != nil || !ok {
		t.Fatalf("ParkForSelection: ok=%v err=%v", ok, err)
	}
	got, _ := repo.GetByID(dbc, job.ID)
	if !got.AwaitingSelection || got.Status != types.StatusPending || got.LockedAt != nil || got.ClaimID != nil {
		t.Fatalf("parked job: %+v", got)
	}
	if next, _ := repo.ClaimNextRunnable(dbc, time.Hour); next != nil {
		t.Fatalf("parked job must not be claimed")
	}
}

func TestContentJobRepoRejectsRetiredClaim(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	dbc := dbctx.Context{Ctx: ctx}
	repo := NewContentJobRepo(db, testutil.Logger(t))

	job := testutil.SeedJob(t, ctx, db, types.JobInput{Topic: "t", ContentType: "text"}, nil)
	first, err := repo.ClaimNextRunnable(dbc, time.Hour)
	if err != nil || first == nil {
		t.Fatalf("claim #1: job=%v err=%v", first, err)
	}
	old := *first.ClaimID

	if ok, err := repo.Abandon(dbc, job.ID); err != nil || !ok {
		t.Fatalf("Abandon: ok=%v err=%v", ok, err)
	}
	if ok, err := repo.Restart(dbc, job.ID); err != nil || !ok {
		t.Fatalf("Restart: ok=%v err=%v", ok, err)
	}
	got, _ := repo.GetByID(dbc, job.ID)
	if got.ClaimID != nil {
		t.Fatalf("restart should clear the claim: got=%v", got.ClaimID)
	}

	// The row is pending again; the old run must not be able to write to it.
	if ok, _ := repo.SaveCheckpoint(dbc, job.ID, old, Checkpoint{Stage: types.StageResearch, Percent: 40}); ok {
		t.Fatalf("checkpoint under a retired claim should be rejected")
	}
	if ok, _ := repo.MarkCompleted(dbc, job.ID, old, datatypes.JSON(`{}`), nil); ok {
		t.Fatalf("complete under a retired claim should be rejected")
	}

	second, err := repo.ClaimNextRunnable(dbc, time.Hour)
	if err != nil || second == nil {
		t.Fatalf("claim #2: job=%v err=%v", second, err)
	}
	if *second.ClaimID == old {
		t.Fatalf("claims must differ across runs")
	}
	if ok, _ := repo.MarkFailed(dbc, job.ID, old, "", "stale"); ok {
		t.Fatalf("fail under a retired claim should be rejected")
	}
	if err := repo.Heartbeat(dbc, job.ID, old); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if ok, err := repo.SaveCheckpoint(dbc, job.ID, *second.ClaimID, Checkpoint{Stage: types.StageExtraction, Percent: 10}); err != nil || !ok {
		t.Fatalf("checkpoint under the live claim: ok=%v err=%v", ok, err)
	}
	got, _ = repo.GetByID(dbc, job.ID)
	if got.Status != types.StatusProcessing || got.Stage != types.StageExtraction || !got.HeldBy(*second.ClaimID) {
		t.Fatalf("live run state: %+v", got)
	}

	// An outside timeout needs no claim.
	if ok, err := repo.MarkFailed(dbc, job.ID, uuid.Nil, "", "job timed out"); err != nil || !ok {
		t.Fatalf("observer timeout: ok=%v err=%v", ok, err)
	}
}

func TestContentJobRepoGetMissing(t *testing.T) {
	db := testutil.DB(t)
	repo := NewContentJobRepo(db, testutil.Logger(t))
	got, err := repo.GetByID(dbctx.Context{Ctx: context.Background()}, types.ContentJob{}.ID)
	if err != nil || got != nil {
		t.Fatalf("GetByID(nil id): got=%v err=%v", got, err)
	}
}
