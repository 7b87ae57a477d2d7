package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"netmig/internal/fleet"
)

func newAuditCommand(cli *CLI) *cobra.Command {
	var controllersFlag string
	var workers int

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Run configuration audits across a fleet of controllers",
		Long: `Start one controller_audit job per controller and follow them all.
Audits run in parallel up to the worker cap; a controller that fails or
cannot be reached never stops the others.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			controllers, err := parseListFlag(controllersFlag)
			if err != nil {
				return failure(err)
			}
			if len(controllers) == 0 {
				return fmt.Errorf("--controllers named no controllers")
			}

			container, err := cli.setup()
			if err != nil {
				return failure(err)
			}

			if workers <= 0 {
				workers = container.Settings.FleetWorkers()
			}

			runner, err := fleet.NewRunner(fleet.Config{
				Client:  container.Client,
				Monitor: container.Monitor,
				Workers: workers,
				Logger:  componentLogger(container.Logger, "fleet"),
			})
			if err != nil {
				return failure(err)
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			summary, err := runner.Audit(ctx, controllers, nil)
			if err != nil {
				return failure(err)
			}

			renderAuditSummary(cmd.OutOrStdout(), summary)

			if !summary.AllCompleted() {
				incomplete := summary.Total - summary.Completed
				return failure(fmt.Errorf("%d of %d audits did not complete", incomplete, summary.Total))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&controllersFlag, "controllers", "", "Controllers to audit: a file with one id per line, or a comma-separated list")
	cmd.Flags().IntVar(&workers, "workers", 0, "Max audits running at once (default from configuration)")
	_ = cmd.MarkFlagRequired("controllers")
	return cmd
}
