package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/cloudsync/todocal/internal/identity"
	"github.com/cloudsync/todocal/internal/instrumentation"
	"github.com/cloudsync/todocal/internal/logging"
	"github.com/cloudsync/todocal/internal/tokenstore"
)

const (
	DefaultLoadAttempts  = 20
	DefaultLoadInterval  = 250 * time.Millisecond
	DefaultRevokeTimeout = 10 * time.Second
)

var (
	// ErrNotInitialized is returned by RequestAuthorization before a client
	// handle exists.
	ErrNotInitialized = errors.New("session not initialized: call Initialize first")

	// ErrClientUnavailable is returned by Initialize when the identity
	// library could not be loaded or refused to build a client handle.
	ErrClientUnavailable = errors.New("identity client unavailable")
)

// Listener observes the signed-in state. email is empty when unknown.
type Listener func(signedIn bool, email string)

// Store persists the token record.
type Store interface {
	Save(ctx context.Context, rec tokenstore.Record) error
	Load(ctx context.Context) (tokenstore.Record, error)
	Clear(ctx context.Context) error
}

// Config configures a Session.
type Config struct {
	ClientID string
	Scopes   []string

	// RequiredScope is checked on every grant; a grant without it is kept
	// but logged.
	RequiredScope string

	LoadAttempts  int
	LoadInterval  time.Duration
	RevokeTimeout time.Duration

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
}

type phase int

const (
	phaseIdle phase = iota
	phaseInitializing
	phaseValidated
	phaseReady
)

// Session is the single owner of authentication state.
type Session struct {
	cfg      Config
	store    Store
	loader   identity.Loader
	resolver identity.Resolver
	logger   *slog.Logger

	mu       sync.Mutex
	phase    phase
	token    string
	email    string
	library  identity.Library
	client   identity.TokenClient
	listener Listener

	init       singleflight.Group
	background sync.WaitGroup
}

// New creates a Session. Nothing is loaded until Initialize.
func New(store Store, loader identity.Loader, resolver identity.Resolver, cfg Config) *Session {
	if cfg.LoadAttempts <= 0 {
		cfg.LoadAttempts = DefaultLoadAttempts
	}
	if cfg.LoadInterval <= 0 {
		cfg.LoadInterval = DefaultLoadInterval
	}
	if cfg.RevokeTimeout <= 0 {
		cfg.RevokeTimeout = DefaultRevokeTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:      cfg,
		store:    store,
		loader:   loader,
		resolver: resolver,
		logger:   logger.With(logging.KeyService, "session"),
	}
}

// Initialize restores a persisted session and prepares the client handle
// used by RequestAuthorization. listener replaces the current listener
// when non-nil and is notified before Initialize returns.
//
// Calling Initialize on a ready session only notifies. Concurrent calls
// share a single setup and return its result.
func (s *Session) Initialize(ctx context.Context, listener Listener) error {
	s.mu.Lock()
	if listener != nil {
		s.listener = listener
	}
	ready := s.phase == phaseReady && s.client != nil
	s.mu.Unlock()

	if ready {
		s.notify(ctx)
		return nil
	}

	_, err, _ := s.init.Do("initialize", func() (any, error) {
		return nil, s.bootstrap(ctx)
	})
	return err
}

func (s *Session) bootstrap(ctx context.Context) (err error) {
	ctx, span := instrumentation.StartSpan(ctx, "session.initialize")
	defer func() { instrumentation.EndSpan(span, err) }()

	s.mu.Lock()
	if s.phase == phaseReady && s.client != nil {
		s.mu.Unlock()
		s.notify(ctx)
		return nil
	}
	s.phase = phaseInitializing
	token := s.token
	s.mu.Unlock()

	if token == "" {
		rec, err := s.store.Load(ctx)
		if err != nil {
			s.setPhase(phaseIdle)
			s.notify(ctx)
			return fmt.Errorf("failed to restore session: %w", err)
		}
		if !rec.Empty() {
			s.mu.Lock()
			if s.token == "" {
				s.token = rec.AccessToken
			}
			token = s.token
			s.mu.Unlock()
			s.logger.Debug("restored persisted token", logging.Token(token))
		}
	}

	if token != "" {
		email, err := s.resolve(ctx, token)
		if err == nil {
			s.mu.Lock()
			if s.phase == phaseInitializing {
				s.phase = phaseValidated
			}
			s.mu.Unlock()
			s.cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess, email)
			s.cfg.Audit.LogAuthEvent(ctx, instrumentation.AuthEvent{Kind: instrumentation.AuthValidated, UserEmail: email})
			s.logger.Info("persisted session is valid", logging.UserHash(email))
			s.notify(ctx)
			return nil
		}

		s.logger.Info("persisted session rejected, starting over", logging.Err(err))
		s.discard(ctx, token)
	}

	return s.setupClient(ctx)
}

// discard forgets token everywhere unless it has been replaced meanwhile.
func (s *Session) discard(ctx context.Context, token string) {
	s.mu.Lock()
	current := s.token == token || s.token == ""
	if current {
		s.token, s.email = "", ""
	}
	client := s.client
	s.client = nil
	s.mu.Unlock()

	closeClient(client)
	if current {
		if err := s.store.Clear(ctx); err != nil {
			s.logger.Warn("failed to clear rejected session", logging.Err(err))
		}
	}
}

func (s *Session) setupClient(ctx context.Context) error {
	lib, err := s.loadLibrary(ctx)
	var client identity.TokenClient
	if err == nil {
		client, err = lib.NewTokenClient(identity.TokenClientConfig{
			ClientID: s.cfg.ClientID,
			Scopes:   s.cfg.Scopes,
			Callback: s.handleTokenResponse,
		})
	}
	if err != nil {
		s.mu.Lock()
		s.phase = phaseIdle
		s.client = nil
		s.mu.Unlock()
		s.logger.Error("identity client unavailable", logging.Err(err))
		s.notify(ctx)
		return fmt.Errorf("%w: %w", ErrClientUnavailable, err)
	}

	s.mu.Lock()
	previous := s.client
	s.library = lib
	s.client = client
	s.phase = phaseReady
	s.mu.Unlock()

	closeClient(previous)
	s.logger.Debug("identity client ready")
	s.notify(ctx)
	return nil
}

// loadLibrary polls the loader while it reports ErrNotReady.
func (s *Session) loadLibrary(ctx context.Context) (identity.Library, error) {
	op := func() (identity.Library, error) {
		lib, err := s.loader.Load(ctx)
		s.cfg.Metrics.RecordLibraryLoad(ctx, instrumentation.StatusOf(err))
		if err != nil && !errors.Is(err, identity.ErrNotReady) {
			return nil, backoff.Permanent(err)
		}
		return lib, err
	}
	return backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(s.cfg.LoadInterval)),
		backoff.WithMaxTries(uint(s.cfg.LoadAttempts)),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger.Debug("identity library not ready", logging.Err(err), slog.Duration("retry_in", next))
		}),
	)
}

// RequestAuthorization asks the user to grant access. The result arrives
// asynchronously through the listener. When a token is already held it
// only notifies; otherwise it needs the client handle built by Initialize.
func (s *Session) RequestAuthorization(ctx context.Context) error {
	s.mu.Lock()
	client := s.client
	signedIn := s.token != ""
	listener := s.listener
	s.mu.Unlock()

	// A held token needs no handle, which covers a session restored from
	// storage.
	if signedIn {
		s.notify(ctx)
		return nil
	}
	if client == nil {
		s.logger.Warn("authorization requested before initialization")
		if listener != nil {
			listener(false, "")
		}
		return ErrNotInitialized
	}

	if err := client.RequestAccessToken(ctx, identity.PromptConsent); err != nil {
		s.notify(ctx)
		return fmt.Errorf("failed to start authorization: %w", err)
	}
	return nil
}

// handleTokenResponse is the callback of the client handle.
func (s *Session) handleTokenResponse(ctx context.Context, resp identity.TokenResponse) {
	if resp.Failed() {
		s.logger.Warn("authorization not granted",
			slog.String("error", resp.Error),
			slog.String("description", resp.ErrorDescription))

		s.mu.Lock()
		s.token, s.email = "", ""
		s.mu.Unlock()
		if err := s.store.Clear(ctx); err != nil {
			s.logger.Warn("failed to clear session after denied authorization", logging.Err(err))
		}
		s.cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultDenied, "")
		s.cfg.Audit.LogAuthEvent(ctx, instrumentation.AuthEvent{Kind: instrumentation.AuthDenied, Reason: resp.Error})
		s.notify(ctx)
		return
	}

	if s.cfg.RequiredScope != "" && !resp.HasScope(s.cfg.RequiredScope) {
		s.logger.Warn("granted scopes do not include calendar access, calendar calls will fail",
			slog.String("granted", resp.Scope))
	}

	s.mu.Lock()
	s.token, s.email = resp.AccessToken, ""
	s.mu.Unlock()
	if err := s.store.Save(ctx, tokenstore.Record{AccessToken: resp.AccessToken}); err != nil {
		s.logger.Warn("failed to persist access token", logging.Err(err))
	}

	email, err := s.resolve(ctx, resp.AccessToken)
	if err != nil {
		s.cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure, "")
	} else {
		s.cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess, email)
		s.cfg.Audit.LogAuthEvent(ctx, instrumentation.AuthEvent{Kind: instrumentation.AuthSignedIn, UserEmail: email})
		s.logger.Info("signed in", logging.UserHash(email))
	}
	s.notify(ctx)
}

// ResolveIdentity looks up the account behind token, updates the session
// and always notifies the listener. A rejected token signs the session out.
func (s *Session) ResolveIdentity(ctx context.Context, token string) (string, error) {
	email, err := s.resolve(ctx, token)
	s.notify(ctx)
	return email, err
}

// resolve applies the lookup result only while token is still the held
// token, so a sign-out during the lookup wins.
func (s *Session) resolve(ctx context.Context, token string) (string, error) {
	email, err := s.resolver.UserEmail(ctx, token)
	if err != nil {
		unauthorized := errors.Is(err, identity.ErrUnauthorized)

		s.mu.Lock()
		current := s.token == token
		var client identity.TokenClient
		if current {
			s.email = ""
			if unauthorized {
				s.token = ""
				if s.phase != phaseInitializing {
					s.phase = phaseIdle
					client, s.client = s.client, nil
				}
			}
		}
		s.mu.Unlock()
		closeClient(client)

		if !current {
			return "", err
		}
		if unauthorized {
			s.logger.Info("access token rejected, signing out", logging.Err(err))
			s.cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultExpired, "")
			s.cfg.Audit.LogAuthEvent(ctx, instrumentation.AuthEvent{Kind: instrumentation.AuthInvalidated, Reason: "unauthorized"})
			if cerr := s.store.Clear(ctx); cerr != nil {
				s.logger.Warn("failed to clear rejected token", logging.Err(cerr))
			}
		} else {
			s.logger.Warn("failed to resolve user identity", logging.Err(err))
			if serr := s.store.Save(ctx, tokenstore.Record{AccessToken: token}); serr != nil {
				s.logger.Warn("failed to drop stored email", logging.Err(serr))
			}
		}
		return "", err
	}

	s.mu.Lock()
	current := s.token == token
	if current {
		s.email = email
	}
	s.mu.Unlock()
	if !current {
		return "", errors.New("session changed during identity lookup")
	}

	if err := s.store.Save(ctx, tokenstore.Record{AccessToken: token, Email: email}); err != nil {
		s.logger.Warn("failed to persist user email", logging.Err(err))
	}
	return email, nil
}

// SignOut forgets the session locally, notifies the listener and then,
// without blocking the caller, revokes the token and asks the provider to
// stop auto-selecting the account.
func (s *Session) SignOut(ctx context.Context) {
	s.mu.Lock()
	token, email := s.token, s.email
	lib, client := s.library, s.client
	s.token, s.email = "", ""
	s.client = nil
	s.phase = phaseIdle
	s.mu.Unlock()

	closeClient(client)
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Warn("failed to clear persisted session", logging.Err(err))
	}
	s.cfg.Audit.LogAuthEvent(ctx, instrumentation.AuthEvent{Kind: instrumentation.AuthSignedOut, UserEmail: email})
	s.logger.Info("signed out")
	s.notify(ctx)

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RevokeTimeout)
		defer cancel()
		s.forget(bctx, lib, token)
	}()
}

// forget runs the remote half of SignOut. Failures are logged only.
func (s *Session) forget(ctx context.Context, lib identity.Library, token string) {
	if lib == nil {
		loaded, err := s.loader.Load(ctx)
		if err != nil {
			s.logger.Debug("identity library unavailable, skipping revocation", logging.Err(err))
			return
		}
		lib = loaded
	}

	if token != "" {
		err := lib.Revoke(ctx, token)
		s.cfg.Metrics.RecordTokenRevocation(ctx, instrumentation.StatusOf(err))
		if err != nil {
			s.logger.Warn("token revocation failed", logging.Err(err))
		} else {
			s.logger.Debug("token revoked")
		}
	}
	if err := lib.DisableAutoSelect(ctx); err != nil {
		s.logger.Debug("failed to disable account auto-select", logging.Err(err))
	}
}

// Close waits for background revocations and releases the client handle.
func (s *Session) Close() error {
	s.background.Wait()
	s.mu.Lock()
	client := s.client
	s.client = nil
	s.phase = phaseIdle
	s.mu.Unlock()
	closeClient(client)
	return nil
}

// IsSignedIn reports whether an access token is held.
func (s *Session) IsSignedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token != ""
}

// Email returns the resolved account email, or "".
func (s *Session) Email() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.email
}

// AccessToken returns the held token and whether there is one.
func (s *Session) AccessToken() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token, s.token != ""
}

// State returns the externally visible state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.phase == phaseInitializing:
		return StateInitializing
	case s.token != "":
		return StateSignedIn
	case s.phase == phaseIdle:
		return StateUninitialized
	default:
		return StateSignedOut
	}
}

func (s *Session) setPhase(p phase) {
	s.mu.Lock()
	s.phase = p
	s.mu.Unlock()
}

// notify calls the listener with a consistent snapshot, outside the lock.
func (s *Session) notify(ctx context.Context) {
	s.mu.Lock()
	listener := s.listener
	signedIn, email := s.token != "", s.email
	state := s.stateLocked()
	s.mu.Unlock()

	s.cfg.Metrics.RecordSessionTransition(ctx, state.String(), signedIn)
	s.logger.Debug("session state", logging.State(state), slog.Bool("signed_in", signedIn))
	if listener != nil {
		listener(signedIn, email)
	}
}

func closeClient(client identity.TokenClient) {
	if c, ok := client.(io.Closer); ok {
		_ = c.Close()
	}
}
