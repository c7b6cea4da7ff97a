package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/cloudsync/todocal/internal/config"
	"github.com/cloudsync/todocal/internal/instrumentation"
	"github.com/cloudsync/todocal/internal/logging"
	"github.com/cloudsync/todocal/internal/resources"
	"github.com/cloudsync/todocal/internal/server"
	"github.com/cloudsync/todocal/internal/tools/auth_tools"
	"github.com/cloudsync/todocal/internal/tools/calendar_tools"
)

func newServeCmd() *cobra.Command {
	var (
		readOnly       bool
		metricsEnabled bool
		metricsAddr    string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server on stdin/stdout so an AI
assistant can read and manage the primary calendar.

The server starts immediately; the stored session is restored in the
background. If nobody is signed in, the assistant can call auth_sign_in
to open the Google consent page.

Safety Mode:
  Use --read-only to register only calendar_list_events and the auth tools.

Metrics:
  With --metrics-enabled (or METRICS_ENABLED=true) Prometheus metrics and
  /healthz, /readyz probes are served on --metrics-addr.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(true)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-enabled") {
				cfg.Metrics.Enabled = metricsEnabled
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			return runServe(cmd.Context(), cfg, logger, readOnly)
		},
	}

	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Register only tools that do not modify the calendar")
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", false, "Serve metrics and health probes. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger, readOnly bool) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version

	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(flushCtx); err != nil {
			logger.Warn("error during instrumentation shutdown", logging.Err(err))
		}
	}()

	sc, err := server.Open(shutdownCtx, cfg, server.OpenOptions{Logger: logger, Provider: provider})
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer shutdown(sc, logger)

	health := server.NewHealthChecker(sc)

	if cfg.Metrics.Enabled && provider.Enabled() {
		stop, err := startMetricsServer(cfg.Metrics.Addr, provider, health, logger)
		if err != nil {
			return err
		}
		defer stop()
	}

	// Restoring the session may validate a token and load the identity
	// library, so it runs while the MCP server is already answering.
	go func() {
		err := sc.Auth().Initialize(sc.Context(), func(signedIn bool, email string) {
			logger.Info("session changed", slog.Bool("signed_in", signedIn), logging.UserHash(email), logging.Domain(email))
		})
		health.SetSessionInitialized()
		if err != nil {
			logger.Warn("session initialization failed, auth_sign_in will retry", logging.Err(err))
		}
	}()

	// Create MCP server
	mcpSrv := mcpserver.NewMCPServer("todocal", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
	)

	if readOnly {
		logger.Info("starting server in read-only mode")
	}

	// Register all tools and resources
	if err := registerAllTools(mcpSrv, sc, readOnly); err != nil {
		return err
	}

	return runStdioServer(shutdownCtx, mcpSrv, health)
}

// startMetricsServer binds addr before returning so a port conflict fails
// the command instead of being logged from a goroutine.
func startMetricsServer(addr string, provider *instrumentation.Provider, health *server.HealthChecker, logger *slog.Logger) (func(), error) {
	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    addr,
		Enabled:                 true,
		InstrumentationProvider: provider,
		Health:                  health,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	}
	go func() {
		if err := metricsServer.Serve(ln); err != nil {
			logger.Error("metrics server stopped", logging.Err(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Warn("error during metrics server shutdown", logging.Err(err))
		}
	}, nil
}

func runStdioServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, health *server.HealthChecker) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	select {
	case err := <-serverDone:
		health.SetReady(false)
		if err != nil {
			return fmt.Errorf("server stopped with error: %w", err)
		}
		return nil
	case <-ctx.Done():
		health.SetReady(false)
		return nil
	}
}

// registerAllTools registers all MCP tools and resources
func registerAllTools(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	type toolRegistration struct {
		name     string
		register func() error
	}

	registrations := []toolRegistration{
		{
			name: "Calendar",
			register: func() error {
				return calendar_tools.RegisterCalendarTools(mcpSrv, sc, readOnly)
			},
		},
		{
			name: "Auth",
			register: func() error {
				return auth_tools.RegisterAuthTools(mcpSrv, sc)
			},
		},
		{
			name: "Session Resources",
			register: func() error {
				return resources.RegisterSessionResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}
