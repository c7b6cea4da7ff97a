package calendar_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/cloudsync/todocal/internal/calendar"
	"github.com/cloudsync/todocal/internal/server"
	"github.com/cloudsync/todocal/internal/tools/batch"
	"github.com/cloudsync/todocal/internal/tools/common"
)

// RegisterEventTools registers event-related tools with the MCP server
func RegisterEventTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listEventsTool := mcp.NewTool("calendar_list_events",
		mcp.WithDescription("List events on the primary calendar. Defaults to the current month."),
		mcp.WithString("timeMin",
			mcp.Description("Start of the range (RFC3339, e.g. '2026-01-01T00:00:00Z', or YYYY-MM-DD)"),
		),
		mcp.WithString("timeMax",
			mcp.Description("End of the range (RFC3339 or YYYY-MM-DD)"),
		),
		mcp.WithString("timeZone",
			mcp.Description("IANA time zone for times without an offset (default: server local time)"),
		),
		mcp.WithNumber("maxResults",
			mcp.Description(fmt.Sprintf("Maximum number of events to return (default: %d)", calendar.DefaultMaxResults)),
		),
	)
	s.AddTool(listEventsTool, common.InstrumentedToolHandler("calendar_list_events", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEvents(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	createEventTool := mcp.NewTool("calendar_create_event",
		mcp.WithDescription("Create an event on the primary calendar. Without an end time a timed event lasts one hour."),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Event title"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start (RFC3339, YYYY-MM-DDTHH:MM in timeZone, or YYYY-MM-DD for an all-day event)"),
		),
		mcp.WithString("end",
			mcp.Description("End, in the same form as start"),
		),
		mcp.WithString("timeZone",
			mcp.Description("IANA time zone, e.g. 'Asia/Taipei' (default: server local time)"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("description",
			mcp.Description("Event description"),
		),
	)
	s.AddTool(createEventTool, common.InstrumentedToolHandler("calendar_create_event", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleCreateEvent(ctx, request, sc)
		}))

	updateEventTool := mcp.NewTool("calendar_update_event",
		mcp.WithDescription("Replace an event on the primary calendar. Fields left out are cleared; a timed event given without end keeps its current length."),
		mcp.WithString("eventId",
			mcp.Required(),
			mcp.Description("The ID of the event to update"),
		),
		mcp.WithString("summary",
			mcp.Required(),
			mcp.Description("Event title"),
		),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("Start (RFC3339, YYYY-MM-DDTHH:MM in timeZone, or YYYY-MM-DD)"),
		),
		mcp.WithString("end",
			mcp.Description("End, in the same form as start"),
		),
		mcp.WithString("timeZone",
			mcp.Description("IANA time zone (default: server local time)"),
		),
		mcp.WithString("location",
			mcp.Description("Event location"),
		),
		mcp.WithString("description",
			mcp.Description("Event description"),
		),
	)
	s.AddTool(updateEventTool, common.InstrumentedToolHandler("calendar_update_event", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleUpdateEvent(ctx, request, sc)
		}))

	deleteEventTool := mcp.NewTool("calendar_delete_event",
		mcp.WithDescription("Delete one or more events from the primary calendar"),
		mcp.WithString("eventId",
			mcp.Description("The ID of the event to delete"),
		),
		mcp.WithArray("eventIds",
			mcp.Description("IDs of several events to delete; reports the outcome per event"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
	s.AddTool(deleteEventTool, common.InstrumentedToolHandler("calendar_delete_event", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteEvent(ctx, request, sc)
		}))

	return nil
}

func handleListEvents(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	loc, err := common.LocationArg(args, "timeZone")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var opts calendar.ListOptions
	if v := common.StringArg(args, "timeMin"); v != "" {
		if opts.Start, _, err = common.ParseTime(v, loc); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid timeMin: %v", err)), nil
		}
	}
	if v := common.StringArg(args, "timeMax"); v != "" {
		var allDay bool
		if opts.End, allDay, err = common.ParseTime(v, loc); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Invalid timeMax: %v", err)), nil
		}
		// A bare end date includes the whole day.
		if allDay {
			opts.End = opts.End.AddDate(0, 0, 1).Add(-time.Second)
		}
	}
	if !opts.Start.IsZero() && !opts.End.IsZero() && opts.End.Before(opts.Start) {
		return mcp.NewToolResultError("timeMax must not be before timeMin"), nil
	}
	maxResults, ok, err := common.IntArg(args, "maxResults")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if ok {
		if maxResults <= 0 {
			return mcp.NewToolResultError("maxResults must be positive"), nil
		}
		opts.MaxResults = maxResults
	}

	events, err := sc.Calendar().FetchEvents(ctx, opts)
	if err != nil {
		return errorResult("list events", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d events:\n\n", len(events))
	for i, event := range events {
		fmt.Fprintf(&b, "%d. %s\n", i+1, event.Summary)
		writeEventDetails(&b, event, "   ")
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func handleCreateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	in, err := EventInputFromArgs(request.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	event, err := sc.Calendar().CreateEvent(ctx, in)
	if err != nil {
		return errorResult("create event", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Event created: %s\n", event.Summary)
	writeEventDetails(&b, *event, "")
	return mcp.NewToolResultText(b.String()), nil
}

func handleUpdateEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	eventID, err := common.RequiredString(args, "eventId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in, err := EventInputFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if in, err = KeepDuration(ctx, sc.Calendar(), eventID, args, in); err != nil {
		return errorResult("update event", err), nil
	}

	event, err := sc.Calendar().UpdateEvent(ctx, eventID, in)
	if err != nil {
		return errorResult("update event", err), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Event updated: %s\n", event.Summary)
	writeEventDetails(&b, *event, "")
	return mcp.NewToolResultText(b.String()), nil
}

func handleDeleteEvent(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	if raw, ok := args["eventIds"]; ok && raw != nil {
		if common.StringArg(args, "eventId") != "" {
			return mcp.NewToolResultError("pass either eventId or eventIds, not both"), nil
		}
		return handleDeleteEvents(ctx, raw, sc)
	}

	eventID, err := common.RequiredString(args, "eventId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if err := sc.Calendar().DeleteEvent(ctx, eventID); err != nil {
		return errorResult("delete event", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Event %s deleted", eventID)), nil
}

func handleDeleteEvents(ctx context.Context, raw any, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ids, err := batch.ParseIDs(raw, "eventIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	results := batch.Process(ctx, ids, func(ctx context.Context, id string) (string, error) {
		if err := sc.Calendar().DeleteEvent(ctx, id); err != nil {
			return "", err
		}
		return "deleted", nil
	})
	summary := batch.Summarize(results)
	if summary.Successful == 0 {
		return mcp.NewToolResultError(batch.Format(results)), nil
	}
	return mcp.NewToolResultText(batch.Format(results)), nil
}

// EventInputFromArgs builds the event body shared by create and update
// from tool-style arguments (summary, start, end, location, description,
// timeZone). The events commands pass their flags through it as well.
func EventInputFromArgs(args map[string]any) (calendar.EventInput, error) {
	summary, err := common.RequiredString(args, "summary")
	if err != nil {
		return calendar.EventInput{}, err
	}
	startStr, err := common.RequiredString(args, "start")
	if err != nil {
		return calendar.EventInput{}, err
	}
	loc, err := common.LocationArg(args, "timeZone")
	if err != nil {
		return calendar.EventInput{}, err
	}
	start, allDay, err := common.ParseTime(startStr, loc)
	if err != nil {
		return calendar.EventInput{}, fmt.Errorf("invalid start: %w", err)
	}

	location := common.StringArg(args, "location")
	endStr := common.StringArg(args, "end")

	var in calendar.EventInput
	switch {
	case allDay:
		end := start.AddDate(0, 0, 1)
		if endStr != "" {
			e, endAllDay, err := common.ParseTime(endStr, loc)
			if err != nil {
				return calendar.EventInput{}, fmt.Errorf("invalid end: %w", err)
			}
			if !endAllDay {
				return calendar.EventInput{}, errors.New("end must be a date (YYYY-MM-DD) for an all-day event")
			}
			end = e
		}
		if !end.After(start) {
			return calendar.EventInput{}, errors.New("end must be after start")
		}
		in = calendar.EventInput{
			Summary:  summary,
			Location: location,
			Start:    calendar.On(start),
			End:      calendar.On(end),
		}

	case endStr == "":
		in = calendar.NewReminder(summary, location, start, loc)

	default:
		end, endAllDay, err := common.ParseTime(endStr, loc)
		if err != nil {
			return calendar.EventInput{}, fmt.Errorf("invalid end: %w", err)
		}
		if endAllDay {
			return calendar.EventInput{}, errors.New("end must include a time of day for a timed event")
		}
		if end.Before(start) {
			return calendar.EventInput{}, errors.New("end must not be before start")
		}
		in = calendar.EventInput{
			Summary:  summary,
			Location: location,
			Start:    calendar.At(start, loc),
			End:      calendar.At(end, loc),
		}
	}
	in.Description = common.StringArg(args, "description")
	return in, nil
}

// KeepDuration adjusts an update built by EventInputFromArgs: a timed
// event given without an end keeps the length it has now instead of the
// one-hour default.
func KeepDuration(ctx context.Context, cal server.Calendar, eventID string, args map[string]any, in calendar.EventInput) (calendar.EventInput, error) {
	if common.StringArg(args, "end") != "" || in.Start.AllDay() {
		return in, nil
	}
	start, err := in.Start.Time()
	if err != nil {
		return calendar.EventInput{}, err
	}
	loc, err := common.LocationArg(args, "timeZone")
	if err != nil {
		return calendar.EventInput{}, err
	}
	prev, err := cal.GetEvent(ctx, eventID)
	if err != nil {
		return calendar.EventInput{}, err
	}

	out := calendar.Reschedule(*prev, in.Summary, in.Location, start, loc)
	out.Description = in.Description
	return out, nil
}

func writeEventDetails(b *strings.Builder, event calendar.Event, indent string) {
	fmt.Fprintf(b, "%sID: %s\n", indent, event.ID)
	fmt.Fprintf(b, "%sStart: %s\n", indent, formatEventTime(event.Start))
	fmt.Fprintf(b, "%sEnd: %s\n", indent, formatEventTime(event.End))
	if event.Location != "" {
		fmt.Fprintf(b, "%sLocation: %s\n", indent, event.Location)
	}
	if event.Description != "" {
		fmt.Fprintf(b, "%sDescription: %s\n", indent, event.Description)
	}
	if event.HTMLLink != "" {
		fmt.Fprintf(b, "%sLink: %s\n", indent, event.HTMLLink)
	}
}

func formatEventTime(t calendar.EventTime) string {
	switch {
	case t.AllDay():
		return t.Date + " (all day)"
	case t.TimeZone != "":
		return t.DateTime + " (" + t.TimeZone + ")"
	default:
		return t.DateTime
	}
}
