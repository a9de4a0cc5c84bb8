package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"gorm.io/datatypes"

	repos "github.com/yungbote/narrativeforge-backend/internal/data/repos/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/data/repos/testutil"
	"github.com/yungbote/narrativeforge-backend/internal/domain/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/ctxutil"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/dbctx"
	"github.com/yungbote/narrativeforge-backend/internal/platform/apierr"
)

const parkedState = `{"version":1,"stages":{},"last_progress":80,"data":{"narratives":[
	{"id":"n1","title":"a","description":"d","angle":"heretic"},
	{"id":"n2","title":"b","description":"d","angle":"visionary"},
	{"id":"n3","title":"c","description":"d","angle":"translator"},
	{"id":"n4","title":"e","description":"d","angle":"witness"}]}}`

func newTestJobService(t *testing.T) (JobService, repos.ContentJobRepo) {
	t.Helper()
	db := testutil.DB(t)
	log := testutil.Logger(t)
	repo := repos.NewContentJobRepo(db, log)
	return NewJobService(log, repo, nil), repo
}

func ownerCtx(owner string) dbctx.Context {
	return dbctx.Context{Ctx: ctxutil.WithRequestData(context.Background(), &ctxutil.RequestData{OwnerID: owner})}
}

func wantAPIStatus(t *testing.T, err error, status int) {
	t.Helper()
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Status != status {
		t.Fatalf("error: want status=%d got=%v", status, err)
	}
}

func TestSubmitNormalizesAndValidates(t *testing.T) {
	svc, _ := newTestJobService(t)
	dbc := ownerCtx("owner-1")

	job, err := svc.Submit(dbc, jobs.JobInput{
		Topic:          "  deep work ",
		ContentType:    "Carousel",
		PreferredAngle: "HERETIC",
		ReferenceURLs:  []string{" https://example.com/a ", ""},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Status != jobs.StatusPending || job.Stage != jobs.StageInput || job.OwnerID != "owner-1" {
		t.Fatalf("job: status=%s stage=%s owner=%s", job.Status, job.Stage, job.OwnerID)
	}
	got, err := svc.Get(dbc, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := `"content_type":"carousel"`
	if !containsJSON(got.Payload, want) || !containsJSON(got.Payload, `"preferred_angle":"heretic"`) {
		t.Fatalf("payload: want %s got=%s", want, got.Payload)
	}

	bad := []jobs.JobInput{
		{ContentType: "text"},
		{Topic: "x", ContentType: "reel"},
		{Topic: "x", ContentType: "text", SlideCount: 21},
		{Topic: "x", ContentType: "text", PreferredAngle: "rebel"},
		{Topic: "x", ContentType: "text", ReferenceURLs: []string{"ftp://example.com"}},
		{Topic: "x", ContentType: "text", VideoURL: "file:///etc/passwd"},
	}
	for _, in := range bad {
		_, err := svc.Submit(dbc, in)
		wantAPIStatus(t, err, http.StatusBadRequest)
	}
}

func containsJSON(raw datatypes.JSON, frag string) bool {
	return strings.Contains(string(raw), frag)
}

func TestGetHidesOtherOwnersJobs(t *testing.T) {
	svc, _ := newTestJobService(t)
	job, err := svc.Submit(ownerCtx("owner-1"), jobs.JobInput{Topic: "x", ContentType: "text"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	_, err = svc.Get(ownerCtx("owner-2"), job.ID)
	wantAPIStatus(t, err, http.StatusNotFound)
}

func TestSelectNarrativeFlow(t *testing.T) {
	svc, repo := newTestJobService(t)
	dbc := ownerCtx("")
	job, err := svc.Submit(dbc, jobs.JobInput{Topic: "x", ContentType: "text"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = svc.SelectNarrative(dbc, job.ID, "n2")
	wantAPIStatus(t, err, http.StatusConflict)

	claimed, err := repo.ClaimNextRunnable(dbc, 0)
	if err != nil || claimed == nil {
		t.Fatalf("claim: job=%v err=%v", claimed, err)
	}
	ok, err := repo.ParkForSelection(dbc, job.ID, *claimed.ClaimID, repos.Checkpoint{Stage: jobs.StageNarratives, Percent: 80, Message: "awaiting narrative selection", State: datatypes.JSON(parkedState)})
	if err != nil || !ok {
		t.Fatalf("park: ok=%v err=%v", ok, err)
	}

	res, err := svc.Result(dbc, job.ID)
	if err != nil {
		t.Fatalf("Result: %v", err)
	}
	if !res.AwaitingSelection || len(res.Narratives) == 0 || res.Content != nil {
		t.Fatalf("result: %+v", res)
	}

	_, err = svc.SelectNarrative(dbc, job.ID, "n9")
	wantAPIStatus(t, err, http.StatusUnprocessableEntity)

	updated, err := svc.SelectNarrative(dbc, job.ID, "n2")
	if err != nil {
		t.Fatalf("SelectNarrative: %v", err)
	}
	if updated.AwaitingSelection || updated.SelectedNarrativeID != "n2" || updated.Status != jobs.StatusPending {
		t.Fatalf("selected: awaiting=%v id=%s status=%s", updated.AwaitingSelection, updated.SelectedNarrativeID, updated.Status)
	}
}

func TestAbandonTimeoutAndRestart(t *testing.T) {
	svc, _ := newTestJobService(t)
	dbc := ownerCtx("")
	job, err := svc.Submit(dbc, jobs.JobInput{Topic: "x", ContentType: "text"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	_, err = svc.Restart(dbc, job.ID)
	wantAPIStatus(t, err, http.StatusConflict)

	timedOut, err := svc.DeclareTimeout(dbc, job.ID, "no progress for 5m0s")
	if err != nil {
		t.Fatalf("DeclareTimeout: %v", err)
	}
	if timedOut.Status != jobs.StatusFailed || timedOut.Error != "job timed out: no progress for 5m0s" {
		t.Fatalf("timeout: status=%s err=%q", timedOut.Status, timedOut.Error)
	}

	// terminal jobs are left alone
	again, err := svc.Abandon(dbc, job.ID)
	if err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if again.Stage == jobs.StageAbandoned || again.Error != timedOut.Error {
		t.Fatalf("abandon after timeout: stage=%s err=%q", again.Stage, again.Error)
	}

	restarted, err := svc.Restart(dbc, job.ID)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if restarted.Status != jobs.StatusPending || restarted.Stage != jobs.StageInput || restarted.Error != "" || restarted.Percent != 0 {
		t.Fatalf("restart: %+v", restarted)
	}

	abandoned, err := svc.Abandon(dbc, job.ID)
	if err != nil {
		t.Fatalf("Abandon: %v", err)
	}
	if abandoned.Stage != jobs.StageAbandoned || abandoned.Error != jobs.ErrAbandoned {
		t.Fatalf("abandon: stage=%s err=%q", abandoned.Stage, abandoned.Error)
	}
}
