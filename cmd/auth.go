package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cloudsync/todocal/internal/config"
	"github.com/cloudsync/todocal/internal/logging"
	"github.com/cloudsync/todocal/internal/server"
	"github.com/cloudsync/todocal/internal/session"
)

// authUpdate is one listener notification.
type authUpdate struct {
	signedIn bool
	email    string
}

// openSession opens the configured store, session and gateway and runs
// Initialize with listener. The caller owns the returned context and must
// shut it down.
func openSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, listener session.Listener) (*server.ServerContext, error) {
	sc, err := server.Open(ctx, cfg, server.OpenOptions{Logger: logger})
	if err != nil {
		return nil, err
	}
	if err := sc.Auth().Initialize(ctx, listener); err != nil {
		_ = sc.Shutdown()
		return nil, fmt.Errorf("failed to initialize session: %w", err)
	}
	return sc, nil
}

func shutdown(sc *server.ServerContext, logger *slog.Logger) {
	if err := sc.Shutdown(); err != nil {
		logger.Warn("error during shutdown", logging.Err(err))
	}
}

func newLoginCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to Google Calendar",
		Long: `Open the Google consent page in the browser and wait until access is
granted or denied. The token is stored in the configured session storage
and reused by later commands.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runLogin(ctx, cmd.OutOrStdout(), timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "How long to wait for the consent page to be completed")

	return cmd
}

func runLogin(ctx context.Context, out io.Writer, timeout time.Duration) error {
	cfg, logger, err := loadConfig(true)
	if err != nil {
		return err
	}

	updates := make(chan authUpdate, 8)
	listener := func(signedIn bool, email string) {
		select {
		case updates <- authUpdate{signedIn: signedIn, email: email}:
		default:
		}
	}

	sc, err := openSession(ctx, cfg, logger, listener)
	if err != nil {
		return err
	}
	defer shutdown(sc, logger)

	auth := sc.Auth()
	if auth.IsSignedIn() {
		fmt.Fprintln(out, signedInLine(auth.Email()))
		return nil
	}

	// Only notifications caused by the consent flow count from here on.
	for len(updates) > 0 {
		<-updates
	}
	if err := auth.RequestAuthorization(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Complete the sign-in in your browser...")

	update, err := waitForConsent(ctx, updates, timeout)
	if err != nil {
		return err
	}
	if !update.signedIn {
		return errors.New("sign-in was not completed: access was denied or the consent page was closed")
	}
	fmt.Fprintln(out, okStyle.Render(signedInLine(update.email)))
	return nil
}

// waitForConsent returns the notification that ends the consent flow.
// The session resolves the account email before notifying.
func waitForConsent(ctx context.Context, updates <-chan authUpdate, timeout time.Duration) (authUpdate, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case update := <-updates:
		return update, nil
	case <-timer.C:
		return authUpdate{}, fmt.Errorf("sign-in not completed within %s", timeout)
	case <-ctx.Done():
		return authUpdate{}, ctx.Err()
	}
}

func signedInLine(email string) string {
	if email == "" {
		return "Signed in (account email unavailable)."
	}
	return "Signed in as " + email + "."
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and revoke the stored token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(false)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			sc, err := openSession(ctx, cfg, logger, nil)
			if err != nil && !errors.Is(err, session.ErrClientUnavailable) {
				return err
			}
			if sc == nil {
				// The client handle is only needed when no valid token
				// was restored.
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			defer shutdown(sc, logger)

			if !sc.Auth().IsSignedIn() {
				fmt.Fprintln(cmd.OutOrStdout(), "Not signed in.")
				return nil
			}
			sc.Auth().SignOut(ctx)
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

// statusView is the --json form of the status command.
type statusView struct {
	State    string `json:"state"`
	SignedIn bool   `json:"signedIn"`
	Email    string `json:"email,omitempty"`
}

func newStatusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether a Google account is signed in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(false)
			if err != nil {
				return err
			}
			sc, err := openSession(cmd.Context(), cfg, logger, nil)
			if err != nil && !errors.Is(err, session.ErrClientUnavailable) {
				return err
			}
			view := statusView{State: session.StateSignedOut.String()}
			if sc != nil {
				defer shutdown(sc, logger)
				auth := sc.Auth()
				view = statusView{State: auth.State().String(), SignedIn: auth.IsSignedIn(), Email: auth.Email()}
			}
			return writeStatus(cmd.OutOrStdout(), view, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status as JSON")

	return cmd
}

func writeStatus(out io.Writer, view statusView, asJSON bool) error {
	if asJSON {
		return writeJSON(out, view)
	}
	fmt.Fprintf(out, "State: %s\n", view.State)
	if view.SignedIn {
		fmt.Fprintln(out, okStyle.Render(signedInLine(view.Email)))
	} else {
		fmt.Fprintln(out, warnStyle.Render("Not signed in. Run 'todocal login'."))
	}
	return nil
}
