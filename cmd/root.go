package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cloudsync/todocal/internal/config"
	"github.com/cloudsync/todocal/internal/logging"
)

// rootCmd represents the base command for the todocal application
var rootCmd = &cobra.Command{
	Use:   "todocal",
	Short: "Google Calendar client for todocal",
	Long: `todocal signs in to a Google account and manages events on its primary
calendar.

It can run as:
  - A command-line client (login, status, events ...)
  - An MCP (Model Context Protocol) server for AI assistants (serve)`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// globalFlags are the persistent flags shared by every command.
var globalFlags struct {
	configPath string
	envFiles   []string
	logLevel   string
	logFormat  string
	storage    string
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "todocal version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.configPath, "config", "", "Config file (.yaml or .toml). Default: "+config.DefaultPath())
	pf.StringSliceVar(&globalFlags.envFiles, "env-file", nil, "Dotenv files to load before reading the environment (default: .env)")
	pf.StringVar(&globalFlags.logLevel, "log-level", "", "Log level: debug, info, warn or error. Overrides TODOCAL_LOG_LEVEL.")
	pf.StringVar(&globalFlags.logFormat, "log-format", "", "Log format: text or json. Overrides TODOCAL_LOG_FORMAT.")
	pf.StringVar(&globalFlags.storage, "storage", "", "Session storage: file, memory, badger, sqlite or valkey. Overrides TODOCAL_STORAGE_TYPE.")

	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newEventsCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// loadConfig reads .env files, the config file and the environment, then
// applies the persistent flags on top. requireClient is passed to
// Validate.
func loadConfig(requireClient bool) (*config.Config, *slog.Logger, error) {
	if err := config.LoadDotEnv(globalFlags.envFiles...); err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load(globalFlags.configPath)
	if err != nil {
		return nil, nil, err
	}
	applyFlags(cfg)

	if err := cfg.Validate(requireClient); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func applyFlags(cfg *config.Config) {
	if globalFlags.logLevel != "" {
		cfg.Log.Level = globalFlags.logLevel
	}
	if globalFlags.logFormat != "" {
		cfg.Log.Format = globalFlags.logFormat
	}
	if globalFlags.storage != "" {
		cfg.Storage.Type = globalFlags.storage
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "todocal version %s\n", version)
		},
	}
}
