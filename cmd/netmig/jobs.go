package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"netmig/internal/engine"
	"netmig/internal/monitor"
)

func newImportCommand(cli *CLI) *cobra.Command {
	var controller string

	cmd := &cobra.Command{
		Use:   "import <csv-file>",
		Short: "Import DPSK passphrases from a CSV export",
		Long: `Start a dpsk_import job on the target controller and follow it to
completion. The CSV is handed to the engine as-is; validation and row
semantics are the engine's business.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return failure(fmt.Errorf("read csv: %w", err))
			}

			return cli.startAndWatch(cmd, engine.StartJobRequest{
				Operation:  engine.OpDPSKImport,
				Controller: controller,
				Params: map[string]any{
					"filename": filepath.Base(path),
					"content":  string(data),
				},
			})
		},
	}

	cmd.Flags().StringVar(&controller, "controller", "", "Target controller id")
	_ = cmd.MarkFlagRequired("controller")
	return cmd
}

func newRolloutCommand(cli *CLI) *cobra.Command {
	var unitsFlag string
	var controller string

	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Roll an SSID configuration out to a set of units",
		Long: `Start a parallel ssid_rollout job. The engine runs one child job per
unit; progress shows the child roll-up as units finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			units, err := parseListFlag(unitsFlag)
			if err != nil {
				return failure(err)
			}
			if len(units) == 0 {
				return fmt.Errorf("--units named no units")
			}

			return cli.startAndWatch(cmd, engine.StartJobRequest{
				Operation:  engine.OpSSIDRollout,
				Controller: controller,
				Params: map[string]any{
					"units": units,
				},
			})
		},
	}

	cmd.Flags().StringVar(&unitsFlag, "units", "", "Units to roll out to: a file with one unit per line, or a comma-separated list")
	cmd.Flags().StringVar(&controller, "controller", "", "Target controller id")
	_ = cmd.MarkFlagRequired("units")
	_ = cmd.MarkFlagRequired("controller")
	return cmd
}

// parseListFlag accepts either a file path (one item per line, #-comments
// allowed) or an inline comma-separated list.
func parseListFlag(value string) ([]string, error) {
	if info, err := os.Stat(value); err == nil && !info.IsDir() {
		data, err := os.ReadFile(value)
		if err != nil {
			return nil, fmt.Errorf("read list file: %w", err)
		}
		var items []string
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			items = append(items, line)
		}
		return items, nil
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items, nil
}

// startAndWatch submits a job and follows it to a final state.
func (cli *CLI) startAndWatch(cmd *cobra.Command, req engine.StartJobRequest) error {
	container, err := cli.setup()
	if err != nil {
		return failure(err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	jobID, err := container.Client.StartJob(ctx, req)
	if err != nil {
		return failure(err)
	}
	fmt.Printf("Started %s job %s on %s\n", req.Operation, bold(jobID), req.Controller)

	return cli.watchToCompletion(ctx, jobID)
}

// watchToCompletion renders updates for one job until it finishes, the
// watch fails, or the context is cancelled. The caller must have run
// setup already.
func (cli *CLI) watchToCompletion(ctx context.Context, jobID string) error {
	container := cli.container

	updates, cancelSub := container.Monitor.Subscribe(jobID)
	defer cancelSub()

	if err := container.Monitor.Watch(ctx, jobID); err != nil {
		return failure(err)
	}

	r := newRenderer(os.Stdout, isTTY(), cli.verbose)
	var final *monitor.Update
	for update := range updates {
		r.Update(update)
		if update.Err != nil || update.Finished {
			final = &update
		}
	}

	return watchOutcome(ctx, jobID, final)
}

func watchOutcome(ctx context.Context, jobID string, final *monitor.Update) error {
	if final == nil {
		if ctx.Err() != nil {
			return failure(fmt.Errorf("watch of job %s interrupted", jobID))
		}
		return failure(fmt.Errorf("watch of job %s ended before a final state", jobID))
	}
	if final.Err != nil {
		return failure(final.Err)
	}

	status := final.Snapshot.Status
	if status == engine.StatusCompleted {
		return nil
	}
	return failure(fmt.Errorf("job %s finished %s", jobID, status))
}
