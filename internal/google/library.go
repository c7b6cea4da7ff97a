package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/cloudsync/todocal/internal/identity"
)

// AccountChoiceStore keeps the "ask which account" flag until the next
// authorization flow takes it. *tokenstore.Store implements it.
type AccountChoiceStore interface {
	SetForceAccountChoice(ctx context.Context) error
	TakeForceAccountChoice(ctx context.Context) (bool, error)
}

// Library is the loaded Google identity library.
type Library struct {
	cfg       Config
	endpoints Endpoints
	logger    *slog.Logger

	// forceAccountChoice is set by DisableAutoSelect and consumed by the
	// next authorization flow.
	forceAccountChoice atomic.Bool
}

// Endpoints returns the endpoints in use.
func (l *Library) Endpoints() Endpoints {
	return l.endpoints
}

// NewTokenClient implements identity.Library.
func (l *Library) NewTokenClient(cfg identity.TokenClientConfig) (identity.TokenClient, error) {
	if cfg.Callback == nil {
		return nil, errors.New("token client requires a callback")
	}
	if cfg.ClientID == "" && l.cfg.ClientID == "" {
		return nil, ErrMissingClientID
	}
	return &TokenClient{lib: l, cfg: cfg}, nil
}

// Revoke implements identity.Library.
func (l *Library) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoints.RevocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := l.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("revocation request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revocation returned %s", resp.Status)
	}
	return nil
}

// DisableAutoSelect implements identity.Library.
func (l *Library) DisableAutoSelect(ctx context.Context) error {
	l.forceAccountChoice.Store(true)
	if l.cfg.AccountChoice == nil {
		return nil
	}
	return l.cfg.AccountChoice.SetForceAccountChoice(ctx)
}

// prompt returns the prompt parameter for a new flow.
func (l *Library) prompt(ctx context.Context, requested string) string {
	force := l.forceAccountChoice.Swap(false)
	if l.cfg.AccountChoice != nil {
		taken, err := l.cfg.AccountChoice.TakeForceAccountChoice(ctx)
		if err != nil {
			l.logger.Warn("failed to read account choice flag", "error", err)
		}
		force = force || taken
	}
	if force {
		if requested == "" || requested == identity.PromptSelectAccount {
			return identity.PromptSelectAccount
		}
		return identity.PromptSelectAccount + " " + requested
	}
	return requested
}
