package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// isTTY checks if the current environment has a TTY available
func isTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// Color definitions for console output
var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// CLI holds command line state shared across subcommands. The container
// is built lazily so config-only commands never touch the network stack.
type CLI struct {
	engineURL string
	token     string
	poll      bool
	verbose   bool

	container *Container
}

// setup builds the service container on first use.
func (cli *CLI) setup() (*Container, error) {
	if cli.container != nil {
		return cli.container, nil
	}

	container, err := buildContainer(buildOptions{
		engineURL: cli.engineURL,
		token:     cli.token,
		poll:      cli.poll,
	})
	if err != nil {
		return nil, err
	}
	cli.container = container
	return container, nil
}

// cleanup releases the container if one was built.
func (cli *CLI) cleanup() {
	if cli.container == nil {
		return
	}
	if err := cli.container.Cleanup(); err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup error: %v\n", err)
	}
	cli.container = nil
}

// signalContext derives a context cancelled on Ctrl+C or SIGTERM so a
// watched job detaches cleanly instead of killing the process mid-render.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// NewRootCommand creates the root cobra command and the CLI state whose
// lifecycle the caller owns.
func NewRootCommand() (*cobra.Command, *CLI) {
	cli := &CLI{}

	rootCmd := &cobra.Command{
		Use:   "netmig",
		Short: "Network migration console for the job engine",
		Long: fmt.Sprintf(`%s

netmig drives long-running network migration jobs on the backend job
engine and follows them to completion: DPSK imports, parallel SSID
rollouts across units, and controller configuration audits. Progress
arrives over a live event stream with polling as a fallback.

%s
  netmig import keys.csv --controller wlc-east   # Import DPSK passphrases
  netmig rollout --units floors.txt --controller wlc-east
  netmig audit --controllers wlc-east,wlc-west   # Fleet-wide config audit
  netmig watch 7f3a9c12                          # Attach to a running job
  netmig status 7f3a9c12                         # One-shot snapshot
  netmig config show                             # Show configuration`,
			bold("netmig "+appVersion()),
			bold("EXAMPLES:")),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cli.engineURL, "engine-url", "", "Engine base URL (overrides configuration)")
	rootCmd.PersistentFlags().StringVar(&cli.token, "token", "", "API token (overrides configuration)")
	rootCmd.PersistentFlags().BoolVar(&cli.poll, "poll", false, "Poll for status instead of streaming")
	rootCmd.PersistentFlags().BoolVarP(&cli.verbose, "verbose", "v", false, "Show advisory notes and per-item detail")

	rootCmd.AddCommand(
		newImportCommand(cli),
		newRolloutCommand(cli),
		newAuditCommand(cli),
		newWatchCommand(cli),
		newStatusCommand(cli),
		newCancelCommand(cli),
		newConfigCommand(),
		newVersionCommand(),
	)

	return rootCmd, cli
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the netmig version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "netmig %s\n", appVersion())
		},
	}
}
