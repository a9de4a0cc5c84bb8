package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var (
		contentType, niche, objective, tone, audience, language string
		videoURL, angle                                        string
		slides                                                 int
		urls                                                   []string
		watch                                                  bool
	)
	cmd := &cobra.Command{
		Use:   "submit <topic>",
		Short: "Submit a new content job",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := map[string]any{
				"topic":        strings.Join(args, " "),
				"content_type": contentType,
			}
			setIf(in, "niche", niche)
			setIf(in, "objective", objective)
			setIf(in, "tone", tone)
			setIf(in, "audience", audience)
			setIf(in, "language", language)
			setIf(in, "video_url", videoURL)
			setIf(in, "preferred_angle", angle)
			if slides > 0 {
				in["slide_count"] = slides
			}
			if len(urls) > 0 {
				in["reference_urls"] = urls
			}

			client := ctx.client()
			job, err := client.submit(cmd.Context(), in)
			if err != nil {
				return fmt.Errorf("submit job: %w", err)
			}
			if watch {
				return watchJob(cmd, ctx, client, job.ID)
			}
			if *ctx.jsonOut {
				return writeJSON(cmd, job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Submitted job %s\n", job.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&contentType, "type", "t", "carousel", "Content type: carousel, text, image or video")
	cmd.Flags().StringVar(&niche, "niche", "", "Audience niche")
	cmd.Flags().StringVar(&objective, "objective", "", "What the content should achieve")
	cmd.Flags().StringVar(&tone, "tone", "", "Tone of voice")
	cmd.Flags().StringVar(&audience, "audience", "", "Target audience")
	cmd.Flags().StringVar(&language, "language", "", "Output language")
	cmd.Flags().IntVar(&slides, "slides", 0, "Carousel slide count")
	cmd.Flags().StringArrayVar(&urls, "url", nil, "Reference URL to extract (repeatable)")
	cmd.Flags().StringVar(&videoURL, "video", "", "Video URL to transcribe")
	cmd.Flags().StringVar(&angle, "angle", "", "Skip selection and use this narrative angle")
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the job after submitting")
	return cmd
}

func setIf(m map[string]any, key, value string) {
	if v := strings.TrimSpace(value); v != "" {
		m[key] = v
	}
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job's stage and progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().get(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get job: %w", err)
			}
			if *ctx.jsonOut {
				return writeJSON(cmd, job)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderJob(job))
			return nil
		},
	}
}

func newSelectCommand(ctx *commandContext) *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "select <job-id> <narrative-id>",
		Short: "Choose a narrative for a parked job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := ctx.client()
			job, err := client.post(cmd.Context(), args[0], "select", map[string]string{"narrative_id": args[1]})
			if err != nil {
				return fmt.Errorf("select narrative: %w", err)
			}
			if watch {
				return watchJob(cmd, ctx, client, job.ID)
			}
			if *ctx.jsonOut {
				return writeJSON(cmd, job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Selected %s for job %s\n", args[1], job.ID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Follow the job after selecting")
	return cmd
}

func newAbandonCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "abandon <job-id>",
		Short: "Abandon a running job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().post(cmd.Context(), args[0], "abandon", nil)
			if err != nil {
				return fmt.Errorf("abandon job: %w", err)
			}
			if *ctx.jsonOut {
				return writeJSON(cmd, job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Abandoned job %s\n", job.ID)
			return nil
		},
	}
}

func newRestartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <job-id>",
		Short: "Requeue a finished or failed job from the first stage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := ctx.client().post(cmd.Context(), args[0], "restart", nil)
			if err != nil {
				return fmt.Errorf("restart job: %w", err)
			}
			if *ctx.jsonOut {
				return writeJSON(cmd, job)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restarted job %s\n", job.ID)
			return nil
		},
	}
}

func newResultCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "result <job-id>",
		Short: "Print a job's narratives or generated content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := ctx.client().result(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("get result: %w", err)
			}
			if *ctx.jsonOut || len(res.Content) > 0 {
				return writeJSON(cmd, res)
			}
			out := cmd.OutOrStdout()
			if len(res.Narratives) == 0 {
				fmt.Fprintf(out, "Job %s is %s at stage %s; no output yet\n", res.JobID, res.Status, res.Stage)
				return nil
			}
			fmt.Fprintln(out, renderNarratives(res.Narratives))
			return nil
		},
	}
}

func renderJob(job jobView) string {
	rows := [][]string{
		{"ID", job.ID},
		{"Status", job.Status},
		{"Stage", job.Stage},
		{"Progress", strconv.Itoa(job.Percent) + "%"},
	}
	if job.Message != "" {
		rows = append(rows, []string{"Message", job.Message})
	}
	if job.Error != "" {
		rows = append(rows, []string{"Error", job.Error})
	}
	if job.AwaitingSelection {
		rows = append(rows, []string{"Awaiting", "narrative selection"})
	}
	if !job.UpdatedAt.IsZero() {
		rows = append(rows, []string{"Updated", job.UpdatedAt.Local().Format(time.DateTime)})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func renderNarratives(items []narrativeView) string {
	rows := make([][]string, 0, len(items))
	for _, n := range items {
		rows = append(rows, []string{n.ID, n.Angle, n.Title, n.Description})
	}
	return renderTable([]string{"ID", "Angle", "Title", "Description"}, rows, nil)
}
