package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/narrativeforge-backend/internal/pkg/backoff"
	"github.com/yungbote/narrativeforge-backend/internal/pkg/httpx"
)

// ErrWatchTimeout is returned after the poll ceiling when the server was told
// to give up on the job.
var ErrWatchTimeout = errors.New("job did not finish before the polling ceiling")

var pollingPolicy = backoff.DefaultPolling()

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Poll a job until it finishes or needs a narrative selection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watchJob(cmd, ctx, ctx.client(), args[0])
		},
	}
}

func watchJob(cmd *cobra.Command, ctx *commandContext, client *apiClient, id string) error {
	job, err := pollJob(cmd.Context(), client, id, pollingPolicy, func(j jobView) {
		if !*ctx.jsonOut {
			fmt.Fprintf(cmd.OutOrStdout(), "[%3d%%] %s: %s\n", j.Percent, j.Stage, j.Message)
		}
	})
	if errors.Is(err, ErrWatchTimeout) {
		reason := fmt.Sprintf("client stopped polling after %s", pollingPolicy.Ceiling)
		if _, terr := client.post(cmd.Context(), id, "timeout", map[string]string{"reason": reason}); terr != nil {
			return fmt.Errorf("%w (declare timeout: %v)", err, terr)
		}
		return err
	}
	if err != nil {
		return err
	}
	if *ctx.jsonOut {
		return writeJSON(cmd, job)
	}

	out := cmd.OutOrStdout()
	switch {
	case job.Status == "failed":
		return fmt.Errorf("job %s failed at %s: %s", job.ID, job.Stage, job.Error)
	case job.AwaitingSelection:
		res, err := client.result(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("get narratives: %w", err)
		}
		fmt.Fprintln(out, renderNarratives(res.Narratives))
		fmt.Fprintf(out, "Choose one with: forgectl select %s <narrative-id>\n", job.ID)
	default:
		fmt.Fprintf(out, "Job %s completed; fetch it with: forgectl result %s\n", job.ID, job.ID)
	}
	return nil
}

// pollJob fetches the job every Interval until it is terminal or parked.
// Each fetch is retried with the policy's backoff; client errors are not
// retried.
func pollJob(ctx context.Context, client *apiClient, id string, p backoff.Polling, onUpdate func(jobView)) (jobView, error) {
	deadline := time.Now().Add(p.Ceiling)
	var last jobView
	lastSeen := ""
	for {
		var job jobView
		_, err := p.Retry.Retry(ctx, nil, nil, func(int) error {
			j, err := client.get(ctx, id)
			if err != nil {
				if !httpx.IsRetryableError(err) {
					return backoff.Permanent(err)
				}
				return err
			}
			job = j
			return nil
		})
		if err != nil {
			return last, fmt.Errorf("poll job %s: %w", id, err)
		}
		last = job
		if key := fmt.Sprintf("%s|%d|%s", job.Stage, job.Percent, job.Message); key != lastSeen && onUpdate != nil {
			lastSeen = key
			onUpdate(job)
		}
		if job.terminal() || job.AwaitingSelection {
			return job, nil
		}
		if p.Ceiling > 0 && !time.Now().Before(deadline) {
			return job, ErrWatchTimeout
		}
		if err := backoff.Sleep(ctx, p.Interval); err != nil {
			return job, err
		}
	}
}
