package calendar_tools

import (
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/cloudsync/todocal/internal/calendar"
	"github.com/cloudsync/todocal/internal/server"
)

// RegisterCalendarTools registers all calendar tools with the MCP server.
// In read-only mode only calendar_list_events is registered.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := RegisterEventTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register event tools: %w", err)
	}
	return nil
}

// errorResult turns a gateway error into a tool error result.
func errorResult(action string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, calendar.ErrNotSignedIn):
		return mcp.NewToolResultError("Not signed in to Google Calendar. Call auth_sign_in, complete the consent page, then retry.")
	case calendar.IsUnauthorized(err):
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: the access token was rejected (%v). Call auth_sign_in to authorize again.", action, err))
	case calendar.IsNotFound(err):
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: event not found", action))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
	}
}
