// Package identity describes the identity provider as todocal sees it: a
// client library that becomes available at some point, hands out token
// clients, revokes tokens and resolves who a token belongs to.
//
// The Google implementation lives in internal/google. The session package
// only depends on these interfaces.
package identity

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotReady is returned by a Loader while the library is not available yet.
	ErrNotReady = errors.New("identity library not ready")

	// ErrUnauthorized is returned by a Resolver when the provider rejects the
	// token (HTTP 401). It is the authoritative signal of an invalid token.
	ErrUnauthorized = errors.New("access token rejected by identity provider")
)

// Prompt values for RequestAccessToken.
const (
	PromptConsent       = "consent"
	PromptSelectAccount = "select_account"
)

// Loader makes the client library available. Load returns ErrNotReady
// (possibly wrapped) while the library cannot be used yet; callers poll.
type Loader interface {
	Load(ctx context.Context) (Library, error)
}

// Library is a loaded identity client library.
type Library interface {
	// NewTokenClient builds the handle used for authorization requests.
	NewTokenClient(cfg TokenClientConfig) (TokenClient, error)

	// Revoke invalidates token server side.
	Revoke(ctx context.Context, token string) error

	// DisableAutoSelect makes the next authorization flow ask for an
	// explicit account choice.
	DisableAutoSelect(ctx context.Context) error
}

// TokenClient starts authorization flows. The outcome is delivered to the
// Callback of its TokenClientConfig, never returned.
type TokenClient interface {
	RequestAccessToken(ctx context.Context, prompt string) error
}

// TokenClientConfig configures a TokenClient.
type TokenClientConfig struct {
	ClientID string
	Scopes   []string
	Callback func(ctx context.Context, resp TokenResponse)
}

// TokenResponse is what the library reports when a token is granted,
// refreshed or denied.
type TokenResponse struct {
	AccessToken      string
	Scope            string
	Error            string
	ErrorDescription string
}

// Failed reports whether the response carries an error or no token at all.
func (r TokenResponse) Failed() bool {
	return r.Error != "" || r.AccessToken == ""
}

// HasScope reports whether scope is among the granted scopes.
func (r TokenResponse) HasScope(scope string) bool {
	for _, s := range strings.Fields(r.Scope) {
		if s == scope {
			return true
		}
	}
	return false
}

// Resolver looks up the account behind a token. It returns ErrUnauthorized
// (possibly wrapped) on HTTP 401. The email may be empty.
type Resolver interface {
	UserEmail(ctx context.Context, token string) (string, error)
}
