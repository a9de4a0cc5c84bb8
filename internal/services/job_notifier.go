package services

import (
	"context"
	"time"

	"github.com/yungbote/narrativeforge-backend/internal/domain/jobs"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/logger"
	"github.com/yungbote/narrativeforge-backend/internal/realtime"
	"github.com/yungbote/narrativeforge-backend/internal/realtime/bus"
)

type JobNotifier interface {
	JobCreated(job *jobs.ContentJob)
	JobProgress(job *jobs.ContentJob, stage string, percent int, message string)
	JobAwaitingSelection(job *jobs.ContentJob)
	JobFailed(job *jobs.ContentJob, stage string, errorMessage string)
	JobDone(job *jobs.ContentJob)
}

type jobNotifier struct {
	log *logger.Logger
	hub *realtime.SSEHub
	bus bus.Bus
}

// NewJobNotifier publishes through the bus when one is configured so that every
// API instance sees worker events; otherwise it broadcasts on the local hub.
func NewJobNotifier(log *logger.Logger, hub *realtime.SSEHub, b bus.Bus) JobNotifier {
	return &jobNotifier{log: log.With("service", "JobNotifier"), hub: hub, bus: b}
}

func (n *jobNotifier) JobCreated(job *jobs.ContentJob) {
	n.emit(job, realtime.SSEEventJobCreated, map[string]any{"job": job.StatusView()})
}

func (n *jobNotifier) JobProgress(job *jobs.ContentJob, stage string, percent int, message string) {
	n.emit(job, realtime.SSEEventJobProgress, map[string]any{
		"job_id":  job.ID,
		"stage":   stage,
		"percent": percent,
		"message": message,
	})
}

func (n *jobNotifier) JobAwaitingSelection(job *jobs.ContentJob) {
	n.emit(job, realtime.SSEEventJobAwaitingSelection, map[string]any{
		"job_id":  job.ID,
		"stage":   job.Stage,
		"message": job.Message,
	})
}

func (n *jobNotifier) JobFailed(job *jobs.ContentJob, stage string, errorMessage string) {
	n.emit(job, realtime.SSEEventJobFailed, map[string]any{
		"job_id": job.ID,
		"stage":  stage,
		"error":  errorMessage,
	})
}

func (n *jobNotifier) JobDone(job *jobs.ContentJob) {
	n.emit(job, realtime.SSEEventJobDone, map[string]any{
		"job_id": job.ID,
		"stage":  job.Stage,
	})
}

func (n *jobNotifier) emit(job *jobs.ContentJob, event realtime.SSEEvent, data map[string]any) {
	if job == nil {
		return
	}
	channels := []string{realtime.JobChannel(job.ID)}
	if job.OwnerID != "" {
		channels = append(channels, job.OwnerID)
	}
	for _, ch := range channels {
		msg := realtime.SSEMessage{Channel: ch, Event: event, Data: data}
		if n.bus != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err := n.bus.Publish(ctx, msg)
			cancel()
			if err == nil {
				continue
			}
			n.log.Warn("Bus publish failed; broadcasting locally", "job_id", job.ID, "event", event, "error", err)
		}
		if n.hub != nil {
			n.hub.Broadcast(msg)
		}
	}
}
