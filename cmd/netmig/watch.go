package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"netmig/internal/engine"
	apperrors "netmig/internal/errors"
	"netmig/internal/monitor"
)

func newWatchCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <job-id>",
		Short: "Attach to an existing job and follow it to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := cli.setup(); err != nil {
				return failure(err)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			return cli.watchToCompletion(ctx, args[0])
		},
	}
}

func newStatusCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Fetch and render one snapshot of a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := cli.setup()
			if err != nil {
				return failure(err)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			jobID := args[0]
			job, err := apperrors.RetryWithResultAndLog(ctx, apperrors.DefaultRetryConfig(),
				func(ctx context.Context) (*engine.Job, error) {
					return container.Client.JobStatus(ctx, jobID)
				},
				componentLogger(container.Logger, "status"),
			)
			if err != nil {
				return failure(err)
			}

			r := newRenderer(cmd.OutOrStdout(), false, cli.verbose)
			r.Snapshot(job, monitor.Aggregate(job))

			switch job.Status {
			case engine.StatusFailed, engine.StatusCancelled, engine.StatusPartial:
				return failure(fmt.Errorf("job %s is %s", jobID, job.Status))
			}
			return nil
		},
	}
}

func newCancelCommand(cli *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Ask the engine to cancel a job",
		Long: `Request cancellation. The engine decides what happens to work already
in flight; run "netmig watch" or "netmig status" to see the outcome.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			container, err := cli.setup()
			if err != nil {
				return failure(err)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			jobID := args[0]
			err = apperrors.RetryWithLog(ctx, apperrors.DefaultRetryConfig(),
				func(ctx context.Context) error {
					return container.Monitor.Cancel(ctx, jobID)
				},
				componentLogger(container.Logger, "cancel"),
			)
			if err != nil {
				return failure(err)
			}

			fmt.Printf("Cancellation of job %s requested\n", bold(jobID))
			return nil
		},
	}
}
