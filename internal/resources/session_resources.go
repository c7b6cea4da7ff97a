package resources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/cloudsync/todocal/internal/calendar"
	"github.com/cloudsync/todocal/internal/server"
)

// Resource URIs.
const (
	SessionURI      = "session://current"
	MonthEventsURI  = "calendar://primary/events/month"
	jsonContentType = "application/json"
)

// RegisterSessionResources registers the session and calendar resources.
func RegisterSessionResources(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	sessionResource := mcp.NewResource(
		SessionURI,
		"Current Session",
		mcp.WithResourceDescription("Sign-in state and account of the Google session"),
		mcp.WithMIMEType(jsonContentType),
	)
	s.AddResource(sessionResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleSession(ctx, request, sc)
	})

	eventsResource := mcp.NewResource(
		MonthEventsURI,
		"This Month's Events",
		mcp.WithResourceDescription("Events on the primary calendar for the current month"),
		mcp.WithMIMEType(jsonContentType),
	)
	s.AddResource(eventsResource, func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		return handleMonthEvents(ctx, request, sc)
	})

	return nil
}

type sessionView struct {
	State    string `json:"state"`
	SignedIn bool   `json:"signedIn"`
	Email    string `json:"email,omitempty"`
}

func handleSession(_ context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	auth := sc.Auth()
	return jsonContents(request.Params.URI, sessionView{
		State:    auth.State().String(),
		SignedIn: auth.IsSignedIn(),
		Email:    auth.Email(),
	})
}

func handleMonthEvents(ctx context.Context, request mcp.ReadResourceRequest, sc *server.ServerContext) ([]mcp.ResourceContents, error) {
	events, err := sc.Calendar().FetchEvents(ctx, calendar.ListOptions{})
	if err != nil {
		if errors.Is(err, calendar.ErrNotSignedIn) {
			return nil, fmt.Errorf("not signed in: call auth_sign_in first")
		}
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	if events == nil {
		events = []calendar.Event{}
	}
	return jsonContents(request.Params.URI, events)
}

func jsonContents(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal resource: %w", err)
	}
	return []mcp.ResourceContents{
		&mcp.TextResourceContents{
			URI:      uri,
			MIMEType: jsonContentType,
			Text:     string(data),
		},
	}, nil
}
