package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudsync/todocal/internal/calendar"
)

func TestGetCategoryFromToolName(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"calendar_list_events", "Calendar Tools"},
		{"calendar_delete_event", "Calendar Tools"},
		{"auth_sign_in", "Auth Tools"},
		{"gmail_list_threads", "Other"},
		{"", "Other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, getCategoryFromToolName(tt.name))
		})
	}
}

func TestToolsReference(t *testing.T) {
	markdown, err := toolsReference(context.Background())
	require.NoError(t, err)

	for _, name := range []string{
		"calendar_list_events", "calendar_create_event", "calendar_update_event", "calendar_delete_event",
		"auth_status", "auth_sign_in", "auth_sign_out",
	} {
		assert.Contains(t, markdown, "### "+name)
	}
	assert.Contains(t, markdown, "## Auth Tools")
	assert.Contains(t, markdown, "## Calendar Tools")
	assert.Contains(t, markdown, "- `summary` (required)")
	assert.NotContains(t, markdown, "## Other")
}

func TestGenerateToolMarkdown(t *testing.T) {
	tool := mcp.NewTool("calendar_example",
		mcp.WithDescription("Does a thing"),
		mcp.WithString("b", mcp.Required(), mcp.Description("second")),
		mcp.WithNumber("a"),
	)

	out := generateToolMarkdown(tool)
	assert.Equal(t, "### calendar_example\n\nDoes a thing\n\n**Arguments:**\n- `a` (optional): number parameter\n- `b` (required): second\n\n", out)
}

func TestListOptions(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	tests := []struct {
		name      string
		from, to  string
		tz        string
		max       int64
		wantStart time.Time
		wantEnd   time.Time
		errMsg    string
	}{
		{
			name: "defaults leave the range open",
			max:  10,
		},
		{
			name:      "date end covers the whole day",
			from:      "2026-03-01",
			to:        "2026-03-31",
			tz:        "Europe/Berlin",
			max:       25,
			wantStart: time.Date(2026, 3, 1, 0, 0, 0, 0, berlin),
			wantEnd:   time.Date(2026, 3, 31, 23, 59, 59, 0, berlin),
		},
		{
			name:      "date-times are kept",
			from:      "2026-03-01T09:00:00Z",
			to:        "2026-03-01T17:00:00Z",
			max:       5,
			wantStart: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2026, 3, 1, 17, 0, 0, 0, time.UTC),
		},
		{name: "bad zone", tz: "Mars/Olympus", max: 10, errMsg: "invalid tz"},
		{name: "bad from", from: "yesterday", max: 10, errMsg: "invalid --from"},
		{name: "reversed", from: "2026-03-02", to: "2026-03-01", max: 10, errMsg: "--to must not be before --from"},
		{name: "non-positive max", max: 0, errMsg: "--max must be positive"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, _, err := listOptions(tt.from, tt.to, tt.tz, tt.max)
			if tt.errMsg != "" {
				assert.ErrorContains(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.max, opts.MaxResults)
			assert.True(t, tt.wantStart.Equal(opts.Start), "start %v", opts.Start)
			assert.True(t, tt.wantEnd.Equal(opts.End), "end %v", opts.End)
		})
	}
}

func TestEventFlagsInput(t *testing.T) {
	flags := eventFlags{summary: "Dentist", start: "2026-03-01T09:30", timeZone: "UTC", location: "Main St"}
	in, err := flags.input()
	require.NoError(t, err)
	assert.Equal(t, "Dentist", in.Summary)
	assert.Equal(t, "Main St", in.Location)
	assert.Equal(t, "2026-03-01T09:30:00Z", in.Start.DateTime)
	assert.Equal(t, "2026-03-01T10:30:00Z", in.End.DateTime)

	flags = eventFlags{summary: "Holiday", start: "2026-08-01", end: "2026-08-15"}
	in, err = flags.input()
	require.NoError(t, err)
	assert.Equal(t, "2026-08-01", in.Start.Date)
	assert.Equal(t, "2026-08-15", in.End.Date)

	flags = eventFlags{summary: "Broken", start: "2026-08-01T10:00", end: "2026-08-01T09:00"}
	_, err = flags.input()
	assert.ErrorContains(t, err, "end must not be before start")
}

func TestWriteEventTable(t *testing.T) {
	var buf bytes.Buffer
	writeEventTable(&buf, nil, time.UTC)
	assert.Equal(t, "No events.\n", buf.String())

	buf.Reset()
	writeEventTable(&buf, []calendar.Event{
		{ID: "a", Summary: "Holiday", Start: calendar.EventTime{Date: "2026-08-01"}},
		{ID: "b", Summary: "Dentist", Location: "Main St", Start: calendar.EventTime{DateTime: "2026-03-01T09:30:00Z"}},
	}, time.UTC)
	assert.Equal(t,
		"2026-08-01 (all day)   Holiday  [a]\n"+
			"2026-03-01 09:30 UTC   Dentist @ Main St  [b]\n",
		buf.String())
}

func TestWriteStatus(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeStatus(&buf, statusView{State: "signed_in", SignedIn: true, Email: "user@example.com"}, false))
	assert.Equal(t, "State: signed_in\nSigned in as user@example.com.\n", buf.String())

	buf.Reset()
	require.NoError(t, writeStatus(&buf, statusView{State: "signed_out"}, false))
	assert.Contains(t, buf.String(), "Not signed in.")

	buf.Reset()
	require.NoError(t, writeStatus(&buf, statusView{State: "signed_out"}, true))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, map[string]any{"state": "signed_out", "signedIn": false}, decoded)
}

func TestWaitForConsent(t *testing.T) {
	updates := make(chan authUpdate, 1)
	updates <- authUpdate{signedIn: true, email: "user@example.com"}
	got, err := waitForConsent(context.Background(), updates, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", got.email)

	_, err = waitForConsent(context.Background(), make(chan authUpdate), 10*time.Millisecond)
	assert.ErrorContains(t, err, "sign-in not completed within 10ms")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = waitForConsent(ctx, make(chan authUpdate), time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "todocal", "config.yaml")

	cmd := newConfigCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"init", path})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "google:")

	cmd = newConfigCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"init", path})
	assert.ErrorContains(t, cmd.Execute(), "already exists")
}

func TestVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "todocal version dev\n", out.String())
}
