package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"netmig/internal/config"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage netmig configuration",
		Long: `View and change settings stored in the netmig config file.
Environment variables prefixed NETMIG_ override the file.`,
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager()
			if err != nil {
				return failure(err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n", gray("source: "+manager.Source()))
			for _, entry := range manager.Entries() {
				value := entry.Value
				if value == "" {
					value = gray("(unset)")
				}
				fmt.Fprintf(out, "  %-26s %s\n", entry.Key, value)
			}
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set and persist a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := config.NewManager()
			if err != nil {
				return failure(err)
			}
			if err := manager.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s set\n", bold(args[0]))
			return nil
		},
	}

	configCmd.AddCommand(showCmd, setCmd)
	return configCmd
}
