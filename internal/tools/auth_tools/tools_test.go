package auth_tools

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudsync/todocal/internal/calendar"
	"github.com/cloudsync/todocal/internal/server"
	"github.com/cloudsync/todocal/internal/session"
)

// fakeAuth is a scripted session. RequestAuthorization pops requestErrs;
// once they run out it succeeds and, if grantAfter is set, signs in after
// that delay the way the consent callback would.
type fakeAuth struct {
	mu          sync.Mutex
	signedIn    bool
	email       string
	state       session.State
	requestErrs []error
	initErr     error
	grantAfter  time.Duration

	requests int
	inits    int
	signOuts int
}

func (f *fakeAuth) Initialize(context.Context, session.Listener) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits++
	return f.initErr
}

func (f *fakeAuth) RequestAuthorization(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if len(f.requestErrs) > 0 {
		err := f.requestErrs[0]
		f.requestErrs = f.requestErrs[1:]
		return err
	}
	if f.grantAfter > 0 {
		time.AfterFunc(f.grantAfter, func() { f.signIn("user@example.com") })
	}
	return nil
}

func (f *fakeAuth) SignOut(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	f.signedIn = false
	f.email = ""
	f.state = session.StateSignedOut
}

func (f *fakeAuth) IsSignedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signedIn
}

func (f *fakeAuth) Email() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.email
}

func (f *fakeAuth) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeAuth) signIn(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signedIn = true
	f.email = email
	f.state = session.StateSignedIn
}

func (f *fakeAuth) counts() (requests, inits, signOuts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests, f.inits, f.signOuts
}

type nopCalendar struct{}

func (nopCalendar) FetchEvents(context.Context, calendar.ListOptions) ([]calendar.Event, error) {
	return nil, nil
}

func (nopCalendar) CreateEvent(context.Context, calendar.EventInput) (*calendar.Event, error) {
	return nil, nil
}

func (nopCalendar) GetEvent(context.Context, string) (*calendar.Event, error) {
	return nil, nil
}

func (nopCalendar) UpdateEvent(context.Context, string, calendar.EventInput) (*calendar.Event, error) {
	return nil, nil
}

func (nopCalendar) DeleteEvent(context.Context, string) error { return nil }

func newTestServer(t *testing.T, auth *fakeAuth) *mcpserver.MCPServer {
	t.Helper()
	sc, err := server.NewServerContext(context.Background(), server.Components{Auth: auth, Calendar: nopCalendar{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	s := mcpserver.NewMCPServer("todocal-test", "test", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterAuthTools(s, sc))
	return s
}

func callTool(t *testing.T, s *mcpserver.MCPServer, name string, args map[string]any) (*mcp.CallToolResult, string) {
	t.Helper()
	tool, ok := s.ListTools()[name]
	require.True(t, ok, "tool %s not registered", name)

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := tool.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return result, text.Text
}

func TestAuthStatus(t *testing.T) {
	auth := &fakeAuth{state: session.StateSignedOut}
	s := newTestServer(t, auth)

	_, text := callTool(t, s, "auth_status", nil)
	assert.Contains(t, text, "State: signed_out")
	assert.Contains(t, text, "Signed in: false")
	assert.NotContains(t, text, "Account:")

	auth.signIn("user@example.com")
	_, text = callTool(t, s, "auth_status", nil)
	assert.Contains(t, text, "State: signed_in")
	assert.Contains(t, text, "Account: user@example.com")
}

func TestAuthSignIn(t *testing.T) {
	tests := []struct {
		name         string
		auth         *fakeAuth
		args         map[string]any
		wantError    bool
		wantText     string
		wantRequests int
		wantInits    int
	}{
		{
			name:         "opens consent page",
			auth:         &fakeAuth{},
			wantText:     "Opened the Google consent page",
			wantRequests: 1,
		},
		{
			name:         "already signed in",
			auth:         &fakeAuth{signedIn: true, email: "me@example.com", state: session.StateSignedIn},
			wantText:     "Already signed in",
			wantRequests: 0,
		},
		{
			name:         "initializes when no client handle exists",
			auth:         &fakeAuth{requestErrs: []error{session.ErrNotInitialized}},
			wantText:     "Opened the Google consent page",
			wantRequests: 2,
			wantInits:    1,
		},
		{
			name: "initialization fails",
			auth: &fakeAuth{
				requestErrs: []error{session.ErrNotInitialized},
				initErr:     session.ErrClientUnavailable,
			},
			wantError:    true,
			wantText:     "Google sign-in is unavailable",
			wantRequests: 1,
			wantInits:    1,
		},
		{
			name:         "start fails",
			auth:         &fakeAuth{requestErrs: []error{errors.New("listener busy")}},
			wantError:    true,
			wantText:     "Failed to start Google sign-in: listener busy",
			wantRequests: 1,
		},
		{
			name:         "waits for the user",
			auth:         &fakeAuth{grantAfter: 20 * time.Millisecond},
			args:         map[string]any{"waitSeconds": 5.0},
			wantText:     "Account: user@example.com",
			wantRequests: 1,
		},
		{
			name:      "wait out of range",
			auth:      &fakeAuth{},
			args:      map[string]any{"waitSeconds": 301.0},
			wantError: true,
			wantText:  "waitSeconds must be between 0 and 300",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, text := callTool(t, newTestServer(t, tt.auth), "auth_sign_in", tt.args)
			assert.Equal(t, tt.wantError, result.IsError)
			assert.Contains(t, text, tt.wantText)

			requests, inits, _ := tt.auth.counts()
			assert.Equal(t, tt.wantRequests, requests)
			assert.Equal(t, tt.wantInits, inits)
		})
	}
}

func TestAuthSignIn_WaitTimesOut(t *testing.T) {
	auth := &fakeAuth{}
	start := time.Now()
	_, text := callTool(t, newTestServer(t, auth), "auth_sign_in", map[string]any{"waitSeconds": 1.0})
	assert.Contains(t, text, "Sign-in not completed after 1 seconds")
	assert.GreaterOrEqual(t, time.Since(start), time.Second)
}

func TestAuthSignOut(t *testing.T) {
	auth := &fakeAuth{}
	s := newTestServer(t, auth)

	_, text := callTool(t, s, "auth_sign_out", nil)
	assert.Equal(t, "Not signed in.", text)

	auth.signIn("user@example.com")
	_, text = callTool(t, s, "auth_sign_out", nil)
	assert.Contains(t, text, "Signed out")
	assert.False(t, auth.IsSignedIn())

	_, _, signOuts := auth.counts()
	assert.Equal(t, 1, signOuts)
}
