package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloudsync/todocal/internal/identity"
	"github.com/cloudsync/todocal/internal/tokenstore"
)

const calendarScope = "https://www.googleapis.com/auth/calendar"

func TestInitialize_WithoutPersistedToken(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.session.Initialize(context.Background(), f.events.listen))

	assert.False(t, f.session.IsSignedIn())
	assert.Equal(t, StateSignedOut, f.session.State())
	assert.Equal(t, event{false, ""}, f.events.last(t))
	assert.Equal(t, 0, f.resolver.count())
	assert.Equal(t, int32(1), f.loader.calls.Load())
	assert.Equal(t, 1, f.library.clientCount())
}

func TestInitialize_PollsUntilLibraryReady(t *testing.T) {
	f := newFixture(t)
	f.loader.notReady = 3

	require.NoError(t, f.session.Initialize(context.Background(), f.events.listen))

	assert.Equal(t, int32(4), f.loader.calls.Load())
	assert.Equal(t, StateSignedOut, f.session.State())
}

func TestInitialize_LibraryUnavailable(t *testing.T) {
	tests := []struct {
		name      string
		notReady  int32
		loadErr   error
		clientErr error
		wantCalls int32
		wantErr   error
	}{
		{
			name:      "never ready",
			notReady:  100,
			wantCalls: 5,
			wantErr:   identity.ErrNotReady,
		},
		{
			name:      "permanent load error",
			loadErr:   errors.New("client id missing"),
			wantCalls: 1,
		},
		{
			name:      "client construction fails",
			clientErr: errors.New("bad config"),
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, func(c *Config) { c.LoadAttempts = 5 })
			f.loader.notReady = tt.notReady
			f.loader.err = tt.loadErr
			f.library.clientErr = tt.clientErr

			err := f.session.Initialize(context.Background(), f.events.listen)

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrClientUnavailable)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, tt.wantCalls, f.loader.calls.Load())
			assert.Equal(t, event{false, ""}, f.events.last(t))
			assert.Equal(t, StateUninitialized, f.session.State())
			assert.ErrorIs(t, f.session.RequestAuthorization(context.Background()), ErrNotInitialized)
		})
	}
}

func TestInitialize_RestoresValidToken(t *testing.T) {
	f := newFixture(t)
	f.persist(t, tokenstore.Record{AccessToken: "tok1", Email: "a@example.com"})
	f.resolver.set("tok1", "a@example.com", nil)

	require.NoError(t, f.session.Initialize(context.Background(), f.events.listen))

	assert.True(t, f.session.IsSignedIn())
	assert.Equal(t, "a@example.com", f.session.Email())
	assert.Equal(t, StateSignedIn, f.session.State())
	assert.Equal(t, event{true, "a@example.com"}, f.events.last(t))
	assert.Equal(t, int32(0), f.loader.calls.Load(), "a valid token needs no library")

	token, ok := f.session.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "tok1", token)
}

func TestInitialize_RejectedPersistedToken(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "unauthorized", err: fmt.Errorf("%w: invalid credentials", identity.ErrUnauthorized)},
		{name: "network failure", err: errors.New("connection refused")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.persist(t, tokenstore.Record{AccessToken: "tok1", Email: "a@example.com"})
			f.resolver.set("tok1", "", tt.err)

			require.NoError(t, f.session.Initialize(context.Background(), f.events.listen))

			assert.False(t, f.session.IsSignedIn())
			assert.Empty(t, f.session.Email())
			assert.True(t, f.persisted(t).Empty())
			assert.Empty(t, f.persisted(t).Email)
			assert.Equal(t, event{false, ""}, f.events.last(t))
			assert.Equal(t, StateSignedOut, f.session.State())
			assert.Equal(t, 1, f.library.clientCount(), "fell through to full setup")

			// The cleared token is not validated again.
			require.NoError(t, f.session.Initialize(context.Background(), nil))
			assert.Equal(t, 1, f.resolver.count())
		})
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.session.Initialize(ctx, f.events.listen))
	require.NoError(t, f.session.Initialize(ctx, nil))

	assert.Equal(t, int32(1), f.loader.calls.Load())
	assert.Equal(t, 1, f.library.clientCount())
	assert.Equal(t, 2, f.events.count(), "every call notifies")

	replacement := &recorder{}
	require.NoError(t, f.session.Initialize(ctx, replacement.listen))
	assert.Equal(t, 2, f.events.count())
	assert.Equal(t, event{false, ""}, replacement.last(t))
}

func TestInitialize_ConcurrentCallsShareSetup(t *testing.T) {
	f := newFixture(t)
	f.loader.block = make(chan struct{})

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.session.Initialize(context.Background(), f.events.listen)
		}()
	}

	require.Eventually(t, func() bool { return f.loader.calls.Load() >= 1 }, time.Second, time.Millisecond)
	close(f.loader.block)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.loader.calls.Load())
	assert.Equal(t, 1, f.library.clientCount())
}

func TestRequestAuthorization_BeforeInitialize(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Initialize(context.Background(), f.events.listen))
	require.NoError(t, f.session.Close())

	err := f.session.RequestAuthorization(context.Background())

	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.Equal(t, event{false, ""}, f.events.last(t))
}

func TestRequestAuthorization_GrantFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolver.set("tok1", "a@example.com", nil)
	require.NoError(t, f.session.Initialize(ctx, f.events.listen))

	require.NoError(t, f.session.RequestAuthorization(ctx))
	client := f.library.lastClient(t)
	assert.Equal(t, []string{identity.PromptConsent}, client.prompts)
	assert.False(t, f.session.IsSignedIn(), "the token arrives through the callback")

	client.respond(identity.TokenResponse{AccessToken: "tok1", Scope: calendarScope + " email"})

	assert.True(t, f.session.IsSignedIn())
	assert.Equal(t, "a@example.com", f.session.Email())
	assert.Equal(t, StateSignedIn, f.session.State())
	assert.Equal(t, event{true, "a@example.com"}, f.events.last(t))
	assert.Equal(t, tokenstore.Record{AccessToken: "tok1", Email: "a@example.com"}, f.persisted(t))
}

func TestRequestAuthorization_AlreadySignedIn(t *testing.T) {
	f := newFixture(t)
	f.persist(t, tokenstore.Record{AccessToken: "tok1"})
	f.resolver.set("tok1", "a@example.com", nil)
	require.NoError(t, f.session.Initialize(context.Background(), f.events.listen))

	require.NoError(t, f.session.RequestAuthorization(context.Background()))

	assert.Equal(t, event{true, "a@example.com"}, f.events.last(t))
	assert.Equal(t, 0, f.library.clientCount())
}

func TestRequestAuthorization_StartFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Initialize(context.Background(), f.events.listen))
	f.library.lastClient(t).err = errors.New("listen tcp: address in use")

	err := f.session.RequestAuthorization(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "address in use")
	assert.Equal(t, event{false, ""}, f.events.last(t))
}

func TestTokenResponse_NotGranted(t *testing.T) {
	tests := []struct {
		name string
		resp identity.TokenResponse
	}{
		{name: "denied", resp: identity.TokenResponse{Error: "access_denied"}},
		{name: "dismissed", resp: identity.TokenResponse{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			f.resolver.set("tok1", "a@example.com", nil)
			require.NoError(t, f.session.Initialize(ctx, f.events.listen))
			client := f.library.lastClient(t)
			client.respond(identity.TokenResponse{AccessToken: "tok1", Scope: calendarScope})
			require.True(t, f.session.IsSignedIn())

			client.respond(tt.resp)

			assert.False(t, f.session.IsSignedIn())
			assert.Empty(t, f.session.Email())
			assert.True(t, f.persisted(t).Empty())
			assert.Equal(t, event{false, ""}, f.events.last(t))
			assert.False(t, client.isClosed(), "the client handle survives a denial")
			assert.Equal(t, StateSignedOut, f.session.State())
		})
	}
}

func TestTokenResponse_PersistsBeforeIdentityLookup(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.session.Initialize(context.Background(), f.events.listen))

	var atLookup tokenstore.Record
	f.resolver.set("tok1", "a@example.com", nil)
	f.resolver.setHook(func(string) { atLookup = f.persisted(t) })

	f.library.lastClient(t).respond(identity.TokenResponse{AccessToken: "tok1", Scope: calendarScope})

	assert.Equal(t, "tok1", atLookup.AccessToken)
	assert.Empty(t, atLookup.Email)
	assert.Equal(t, "a@example.com", f.persisted(t).Email)
}

func TestTokenResponse_SurvivesReload(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolver.set("tok1", "a@example.com", nil)
	require.NoError(t, f.session.Initialize(ctx, f.events.listen))

	f.library.lastClient(t).respond(identity.TokenResponse{AccessToken: "tok1", Scope: calendarScope})
	require.True(t, f.session.IsSignedIn())

	// A new process sees only the store.
	loader := &fakeLoader{lib: &fakeLibrary{}}
	reloaded := New(f.store, loader, f.resolver, Config{
		ClientID:     "client-id",
		LoadInterval: time.Millisecond,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() { _ = reloaded.Close() })
	events := &recorder{}

	require.NoError(t, reloaded.Initialize(ctx, events.listen))

	assert.True(t, reloaded.IsSignedIn())
	assert.Equal(t, "a@example.com", reloaded.Email())
	assert.Equal(t, StateSignedIn, reloaded.State())
	assert.Equal(t, event{true, "a@example.com"}, events.last(t))
	assert.Equal(t, f.session.Email(), reloaded.Email())
	assert.Equal(t, int32(0), loader.calls.Load())

	token, ok := reloaded.AccessToken()
	assert.True(t, ok)
	assert.Equal(t, "tok1", token)
}

func TestTokenResponse_MissingCalendarScopeStillSignsIn(t *testing.T) {
	f := newFixture(t)
	f.resolver.set("tok1", "a@example.com", nil)
	require.NoError(t, f.session.Initialize(context.Background(), f.events.listen))

	f.library.lastClient(t).respond(identity.TokenResponse{AccessToken: "tok1", Scope: "openid email"})

	assert.True(t, f.session.IsSignedIn())
}

func TestTokenResponse_IdentityUnauthorized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolver.set("tok1", "", fmt.Errorf("%w: token expired", identity.ErrUnauthorized))
	require.NoError(t, f.session.Initialize(ctx, f.events.listen))
	client := f.library.lastClient(t)

	client.respond(identity.TokenResponse{AccessToken: "tok1", Scope: calendarScope})

	assert.False(t, f.session.IsSignedIn())
	assert.True(t, f.persisted(t).Empty())
	assert.Equal(t, event{false, ""}, f.events.last(t))
	assert.True(t, client.isClosed())
	assert.Equal(t, StateUninitialized, f.session.State())

	// The next Initialize builds a fresh client instead of revalidating.
	require.NoError(t, f.session.Initialize(ctx, nil))
	assert.Equal(t, 2, f.library.clientCount())
	assert.Equal(t, 1, f.resolver.count())
}

func TestTokenResponse_IdentityLookupFails(t *testing.T) {
	f := newFixture(t)
	f.resolver.set("tok1", "", errors.New("userinfo: 503 Service Unavailable"))
	require.NoError(t, f.session.Initialize(context.Background(), f.events.listen))

	f.library.lastClient(t).respond(identity.TokenResponse{AccessToken: "tok1", Scope: calendarScope})

	assert.True(t, f.session.IsSignedIn(), "only a 401 invalidates the token")
	assert.Empty(t, f.session.Email())
	assert.Equal(t, tokenstore.Record{AccessToken: "tok1"}, f.persisted(t))
	assert.Equal(t, event{true, ""}, f.events.last(t))
}

func TestSignOut_ClearsBeforeRevoking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolver.set("tok1", "a@example.com", nil)
	require.NoError(t, f.session.Initialize(ctx, f.events.listen))
	f.library.lastClient(t).respond(identity.TokenResponse{AccessToken: "tok1", Scope: calendarScope})
	require.True(t, f.session.IsSignedIn())

	gate := make(chan struct{})
	f.library.revokeGate = gate

	f.session.SignOut(ctx)

	assert.False(t, f.session.IsSignedIn())
	assert.Empty(t, f.session.Email())
	assert.True(t, f.persisted(t).Empty())
	assert.Equal(t, event{false, ""}, f.events.last(t))
	assert.Empty(t, f.library.revokedTokens(), "revocation still pending")

	close(gate)
	require.NoError(t, f.session.Close())
	assert.Equal(t, []string{"tok1"}, f.library.revokedTokens())
	assert.Equal(t, 1, f.library.disabled)
	assert.Equal(t, StateUninitialized, f.session.State())
}

func TestSignOut_RevocationFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolver.set("tok1", "a@example.com", nil)
	f.library.revokeErr = errors.New("revocation endpoint returned 400")
	require.NoError(t, f.session.Initialize(ctx, f.events.listen))
	f.library.lastClient(t).respond(identity.TokenResponse{AccessToken: "tok1", Scope: calendarScope})

	f.session.SignOut(ctx)
	require.NoError(t, f.session.Close())

	assert.False(t, f.session.IsSignedIn())
	assert.Equal(t, 1, f.library.disabled)
}

func TestSignOut_RestoredSessionLoadsLibraryToRevoke(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.persist(t, tokenstore.Record{AccessToken: "tok1", Email: "a@example.com"})
	f.resolver.set("tok1", "a@example.com", nil)
	require.NoError(t, f.session.Initialize(ctx, f.events.listen))

	f.session.SignOut(ctx)
	require.NoError(t, f.session.Close())

	assert.Equal(t, []string{"tok1"}, f.library.revokedTokens())

	// Signing back in requires a full setup.
	require.NoError(t, f.session.Initialize(ctx, nil))
	assert.Equal(t, 1, f.library.clientCount())
	assert.NoError(t, f.session.RequestAuthorization(ctx))
}

func TestResolveIdentity_SignOutDuringLookupWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.persist(t, tokenstore.Record{AccessToken: "tok1"})
	f.resolver.set("tok1", "a@example.com", nil)
	require.NoError(t, f.session.Initialize(ctx, f.events.listen))

	started := make(chan struct{})
	release := make(chan struct{})
	f.resolver.setHook(func(string) {
		close(started)
		<-release
	})

	done := make(chan error, 1)
	go func() {
		_, err := f.session.ResolveIdentity(ctx, "tok1")
		done <- err
	}()

	<-started
	f.session.SignOut(ctx)
	close(release)

	assert.Error(t, <-done)
	assert.False(t, f.session.IsSignedIn())
	assert.Empty(t, f.session.Email())
	assert.True(t, f.persisted(t).Empty())
	assert.Equal(t, event{false, ""}, f.events.last(t))
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateUninitialized: "uninitialized",
		StateInitializing:  "initializing",
		StateSignedOut:     "signed_out",
		StateSignedIn:      "signed_in",
		State(42):          "unknown",
	}
	for state, want := range tests {
		assert.Equal(t, want, state.String())
	}
}
