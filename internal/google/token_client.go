package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/cloudsync/todocal/internal/identity"
)

const callbackPath = "/callback"

// TokenClient runs authorization code flows through a loopback redirect.
// Only one flow is pending at a time; starting another abandons the first.
type TokenClient struct {
	lib *Library
	cfg identity.TokenClientConfig

	mu      sync.Mutex
	pending *flow
}

// RequestAccessToken implements identity.TokenClient. It returns once the
// consent URL has been handed to the user; the outcome reaches the
// configured callback. The flow has no deadline and outlives ctx; it ends
// when the redirect arrives, a newer flow starts or Close is called.
func (c *TokenClient) RequestAccessToken(ctx context.Context, prompt string) error {
	ln, err := net.Listen("tcp", c.lib.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to start callback listener: %w", err)
	}

	redirectURL := "http://" + ln.Addr().String() + callbackPath
	f := &flow{
		client:   c,
		oauth:    oauth2Config(c.lib.cfg, c.lib.endpoints, c.cfg.ClientID, c.cfg.Scopes, redirectURL),
		state:    uuid.NewString(),
		verifier: oauth2.GenerateVerifier(),
	}
	flowCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	f.cancel = cancel

	authOpts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(f.verifier),
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
	}
	if p := c.lib.prompt(ctx, prompt); p != "" {
		authOpts = append(authOpts, oauth2.SetAuthURLParam("prompt", p))
	}
	authURL := f.oauth.AuthCodeURL(f.state, authOpts...)

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, func(w http.ResponseWriter, r *http.Request) {
		f.handleCallback(flowCtx, w, r)
	})
	f.server = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	c.mu.Lock()
	previous := c.pending
	c.pending = f
	c.mu.Unlock()
	if previous != nil {
		previous.stop()
	}

	go func() {
		if err := f.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.lib.logger.Warn("callback listener stopped", "error", err)
		}
	}()
	go func() {
		<-flowCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = f.server.Shutdown(shutdownCtx)
	}()

	c.lib.logger.Info("waiting for authorization in the browser", "redirect", redirectURL)
	if err := c.lib.cfg.OpenURL(authURL); err != nil {
		c.lib.logger.Warn("could not open browser, open the URL manually", "url", authURL, "error", err)
	}
	return nil
}

// Close abandons any pending flow without invoking the callback.
func (c *TokenClient) Close() error {
	c.mu.Lock()
	f := c.pending
	c.pending = nil
	c.mu.Unlock()
	if f != nil {
		f.stop()
	}
	return nil
}

func (c *TokenClient) finish(f *flow) {
	c.mu.Lock()
	if c.pending == f {
		c.pending = nil
	}
	c.mu.Unlock()
}

type flow struct {
	client   *TokenClient
	oauth    *oauth2.Config
	state    string
	verifier string
	server   *http.Server
	cancel   context.CancelFunc

	// once guards the callback; stop consumes it so an abandoned flow
	// never reports.
	once sync.Once
}

func (f *flow) stop() {
	f.once.Do(func() {})
	f.cancel()
}

// deliver invokes the callback at most once per flow.
func (f *flow) deliver(ctx context.Context, resp identity.TokenResponse) {
	delivered := false
	f.once.Do(func() { delivered = true })
	if !delivered {
		return
	}
	f.client.finish(f)
	f.client.cfg.Callback(ctx, resp)
	f.cancel()
}

func (f *flow) handleCallback(ctx context.Context, w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("state") != f.state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		return
	}

	if errParam := q.Get("error"); errParam != "" || q.Get("code") == "" {
		if errParam == "" {
			errParam = "access_denied"
		}
		writePage(w, http.StatusBadRequest, "Authorization failed", "You can close this window and return to the terminal.")
		f.deliver(ctx, identity.TokenResponse{Error: errParam, ErrorDescription: q.Get("error_description")})
		return
	}

	exchangeCtx := context.WithValue(ctx, oauth2.HTTPClient, f.client.lib.cfg.HTTPClient)
	tok, err := f.oauth.Exchange(exchangeCtx, q.Get("code"), oauth2.VerifierOption(f.verifier))
	if err != nil {
		writePage(w, http.StatusBadGateway, "Authorization failed", "The token exchange did not succeed.")
		f.deliver(ctx, identity.TokenResponse{Error: "token_exchange_failed", ErrorDescription: err.Error()})
		return
	}

	writePage(w, http.StatusOK, "Authorization successful", "You can close this window and return to the terminal.")
	scope, _ := tok.Extra("scope").(string)
	f.deliver(ctx, identity.TokenResponse{AccessToken: tok.AccessToken, Scope: scope})
}

func writePage(w http.ResponseWriter, status int, title, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<!DOCTYPE html><html><head><title>%s</title></head><body><h1>%s</h1><p>%s</p></body></html>", title, title, body)
}
