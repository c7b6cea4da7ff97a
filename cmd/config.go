package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cloudsync/todocal/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init [PATH]",
		Short: "Write an annotated example configuration",
		Long: `Write the annotated example configuration to PATH, or to --config, or to
the default location. An existing file is never overwritten.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configTarget(args)
			if err := config.WriteExample(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file location",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), configTarget(nil))
		},
	})

	return cmd
}

func configTarget(args []string) string {
	switch {
	case len(args) > 0:
		return args[0]
	case globalFlags.configPath != "":
		return globalFlags.configPath
	default:
		return config.DefaultPath()
	}
}
