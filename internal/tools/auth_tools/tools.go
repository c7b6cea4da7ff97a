package auth_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/cloudsync/todocal/internal/server"
	"github.com/cloudsync/todocal/internal/session"
	"github.com/cloudsync/todocal/internal/tools/common"
)

const (
	// MaxWaitSeconds caps how long auth_sign_in blocks for the user.
	MaxWaitSeconds = 300

	pollInterval = 250 * time.Millisecond
)

// RegisterAuthTools registers the session tools with the MCP server
func RegisterAuthTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	statusTool := mcp.NewTool("auth_status",
		mcp.WithDescription("Report whether a Google account is signed in for calendar access"),
	)
	s.AddTool(statusTool, common.InstrumentedToolHandler("auth_status", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleStatus(ctx, request, sc)
		}))

	signInTool := mcp.NewTool("auth_sign_in",
		mcp.WithDescription("Open the Google consent page in the user's browser to authorize calendar access"),
		mcp.WithNumber("waitSeconds",
			mcp.Description(fmt.Sprintf("Wait up to this many seconds for the user to finish (0-%d, default 0)", MaxWaitSeconds)),
		),
	)
	s.AddTool(signInTool, common.InstrumentedToolHandler("auth_sign_in", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSignIn(ctx, request, sc)
		}))

	signOutTool := mcp.NewTool("auth_sign_out",
		mcp.WithDescription("Sign out of Google: forget the stored token and revoke it"),
	)
	s.AddTool(signOutTool, common.InstrumentedToolHandler("auth_sign_out", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSignOut(ctx, request, sc)
		}))

	return nil
}

func handleStatus(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(statusText(sc.Auth())), nil
}

func handleSignIn(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	wait, _, err := common.IntArg(request.GetArguments(), "waitSeconds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if wait < 0 || wait > MaxWaitSeconds {
		return mcp.NewToolResultError(fmt.Sprintf("waitSeconds must be between 0 and %d", MaxWaitSeconds)), nil
	}

	auth := sc.Auth()
	if auth.IsSignedIn() {
		return mcp.NewToolResultText("Already signed in.\n" + statusText(auth)), nil
	}

	err = auth.RequestAuthorization(ctx)
	if errors.Is(err, session.ErrNotInitialized) {
		// A failed startup leaves no client handle; try setting it up again.
		if initErr := auth.Initialize(ctx, nil); initErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Google sign-in is unavailable: %v", initErr)), nil
		}
		if auth.IsSignedIn() {
			return mcp.NewToolResultText("Already signed in.\n" + statusText(auth)), nil
		}
		err = auth.RequestAuthorization(ctx)
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to start Google sign-in: %v", err)), nil
	}

	if wait == 0 {
		return mcp.NewToolResultText("Opened the Google consent page in the browser. " +
			"Ask the user to finish signing in, then call auth_status."), nil
	}

	if waitSignedIn(ctx, auth, time.Duration(wait)*time.Second) {
		return mcp.NewToolResultText("Signed in.\n" + statusText(auth)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Sign-in not completed after %d seconds. "+
		"The consent page stays open; call auth_status to check again.", wait)), nil
}

func handleSignOut(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	auth := sc.Auth()
	if !auth.IsSignedIn() {
		return mcp.NewToolResultText("Not signed in."), nil
	}
	auth.SignOut(ctx)
	return mcp.NewToolResultText("Signed out. The stored token was removed and Google was asked to revoke it."), nil
}

// waitSignedIn polls until the session signs in, ctx ends or d elapses.
func waitSignedIn(ctx context.Context, auth server.Auth, d time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if auth.IsSignedIn() {
			return true
		}
		select {
		case <-ctx.Done():
			return auth.IsSignedIn()
		case <-ticker.C:
		}
	}
}

func statusText(auth server.Auth) string {
	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", auth.State())
	fmt.Fprintf(&b, "Signed in: %t\n", auth.IsSignedIn())
	if email := auth.Email(); email != "" {
		fmt.Fprintf(&b, "Account: %s\n", email)
	}
	return b.String()
}
