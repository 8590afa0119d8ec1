package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"token-graph-lab/internal/analysis"
	"token-graph-lab/internal/domain"
	"token-graph-lab/internal/reporting"
)

func newAnalyzeCmd(g *globals) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "analyze TOKEN",
		Short: "Start a backend analysis job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			job, err := client.Analyze(ctx, args[0])
			if err != nil {
				return err
			}
			printJob(out, *job)
			if !wait {
				return nil
			}

			poller := analysis.NewPoller(client, analysis.PollerOptions{
				StatusInterval: g.pollInterval(),
				Logger:         g.logger,
			})
			final, err := poller.Wait(ctx, job.TokenID, func(j domain.AnalysisJob) {
				printJob(out, j)
			})
			if err != nil {
				return err
			}
			if final.Status == domain.JobStatusFailed {
				return fmt.Errorf("analysis of %s failed", final.TokenID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Poll until the job finishes")
	return cmd
}

func newStatusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "status [TOKEN]",
		Short: "Show the status of a job, or list running jobs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := g.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				job, err := client.Status(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				printJob(out, *job)
				return nil
			}

			jobs, err := client.Ongoing(cmd.Context())
			if err != nil {
				return err
			}
			if len(jobs) == 0 {
				fmt.Fprintln(out, subtle.Sprint("  No running jobs."))
				return nil
			}
			for _, j := range jobs {
				printJob(out, j)
			}
			return nil
		},
	}
}

func printJob(w io.Writer, j domain.AnalysisJob) {
	var status string
	switch j.Status {
	case domain.JobStatusCompleted:
		status = good.Sprint(j.Status)
	case domain.JobStatusFailed:
		status = bad.Sprint(j.Status)
	default:
		status = warn.Sprint(j.Status)
	}

	p := j.Progress
	if p.HoldersTotal == 0 {
		fmt.Fprintf(w, "  %-24s %s\n", j.TokenID, status)
		return
	}
	fmt.Fprintf(w, "  %-24s %s  holders %d/%d (%s)  transactions %d  elapsed %s\n",
		j.TokenID, status,
		p.HoldersProcessed, p.HoldersTotal, reporting.FormatPercent(p.HoldersPercent),
		p.TransactionsTotal,
		subtle.Sprint(reporting.FormatDuration(time.Duration(p.ElapsedSeconds*float64(time.Second)))),
	)
}
