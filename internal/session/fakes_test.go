package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cloudsync/todocal/internal/identity"
	"github.com/cloudsync/todocal/internal/tokenstore"
)

type fakeLoader struct {
	lib      *fakeLibrary
	notReady int32
	err      error
	block    chan struct{}
	calls    atomic.Int32
}

func (l *fakeLoader) Load(ctx context.Context) (identity.Library, error) {
	n := l.calls.Add(1)
	if l.block != nil {
		select {
		case <-l.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.err != nil {
		return nil, l.err
	}
	if n <= l.notReady {
		return nil, identity.ErrNotReady
	}
	return l.lib, nil
}

type fakeLibrary struct {
	mu         sync.Mutex
	clients    []*fakeTokenClient
	clientErr  error
	revoked    []string
	revokeErr  error
	revokeGate chan struct{}
	disabled   int
}

func (l *fakeLibrary) NewTokenClient(cfg identity.TokenClientConfig) (identity.TokenClient, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.clientErr != nil {
		return nil, l.clientErr
	}
	c := &fakeTokenClient{cfg: cfg}
	l.clients = append(l.clients, c)
	return c, nil
}

func (l *fakeLibrary) Revoke(ctx context.Context, token string) error {
	if l.revokeGate != nil {
		select {
		case <-l.revokeGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revoked = append(l.revoked, token)
	return l.revokeErr
}

func (l *fakeLibrary) DisableAutoSelect(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disabled++
	return nil
}

func (l *fakeLibrary) clientCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *fakeLibrary) lastClient(t *testing.T) *fakeTokenClient {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.NotEmpty(t, l.clients, "no token client was built")
	return l.clients[len(l.clients)-1]
}

func (l *fakeLibrary) revokedTokens() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.revoked...)
}

type fakeTokenClient struct {
	cfg identity.TokenClientConfig

	mu      sync.Mutex
	prompts []string
	closed  bool
	err     error
}

func (c *fakeTokenClient) RequestAccessToken(_ context.Context, prompt string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	return c.err
}

func (c *fakeTokenClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeTokenClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// respond plays the identity library delivering a token response.
func (c *fakeTokenClient) respond(resp identity.TokenResponse) {
	c.cfg.Callback(context.Background(), resp)
}

type fakeResolver struct {
	mu     sync.Mutex
	emails map[string]string
	errs   map[string]error
	calls  int
	hook   func(token string)
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{emails: map[string]string{}, errs: map[string]error{}}
}

func (r *fakeResolver) UserEmail(_ context.Context, token string) (string, error) {
	r.mu.Lock()
	r.calls++
	hook := r.hook
	email, err := r.emails[token], r.errs[token]
	r.mu.Unlock()

	if hook != nil {
		hook(token)
	}
	return email, err
}

func (r *fakeResolver) set(token, email string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails[token] = email
	r.errs[token] = err
}

func (r *fakeResolver) setHook(hook func(string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hook = hook
}

func (r *fakeResolver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type event struct {
	signedIn bool
	email    string
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) listen(signedIn bool, email string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{signedIn, email})
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) last(t *testing.T) event {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.events, "listener was never notified")
	return r.events[len(r.events)-1]
}

type fixture struct {
	session  *Session
	store    *tokenstore.Store
	loader   *fakeLoader
	library  *fakeLibrary
	resolver *fakeResolver
	events   *recorder
}

func newFixture(t *testing.T, mutate ...func(*Config)) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	store, err := tokenstore.New(tokenstore.NewMemoryBackend(), tokenstore.Options{Logger: logger})
	require.NoError(t, err)

	f := &fixture{
		store:    store,
		library:  &fakeLibrary{},
		resolver: newFakeResolver(),
		events:   &recorder{},
	}
	f.loader = &fakeLoader{lib: f.library}

	cfg := Config{
		ClientID:      "client-id",
		Scopes:        []string{"https://www.googleapis.com/auth/calendar", "email"},
		RequiredScope: "https://www.googleapis.com/auth/calendar",
		LoadAttempts:  DefaultLoadAttempts,
		LoadInterval:  time.Millisecond,
		Logger:        logger,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	f.session = New(store, f.loader, f.resolver, cfg)
	t.Cleanup(func() { _ = f.session.Close() })
	return f
}

func (f *fixture) persisted(t *testing.T) tokenstore.Record {
	t.Helper()
	rec, err := f.store.Load(context.Background())
	require.NoError(t, err)
	return rec
}

func (f *fixture) persist(t *testing.T, rec tokenstore.Record) {
	t.Helper()
	require.NoError(t, f.store.Save(context.Background(), rec))
}
