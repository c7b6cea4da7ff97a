package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/cloudsync/todocal/internal/identity"
)

// ErrMissingClientID is a permanent load failure.
var ErrMissingClientID = errors.New("google OAuth client ID is not configured")

// Loader makes the Google library available once discovery succeeds. The
// loaded Library is kept for the lifetime of the Loader.
type Loader struct {
	cfg    Config
	logger *slog.Logger

	mu  sync.Mutex
	lib *Library
}

// NewLoader creates a Loader for cfg.
func NewLoader(cfg Config, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{cfg: cfg.withDefaults(), logger: logger}
}

// Load implements identity.Loader. Discovery failures are reported as
// identity.ErrNotReady so callers keep polling.
func (l *Loader) Load(ctx context.Context) (identity.Library, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.lib != nil {
		return l.lib, nil
	}
	if l.cfg.ClientID == "" {
		return nil, ErrMissingClientID
	}

	eps := StaticEndpoints()
	if l.cfg.DiscoveryURL != "" {
		discovered, err := discover(ctx, l.cfg.HTTPClient, l.cfg.DiscoveryURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", identity.ErrNotReady, err)
		}
		eps = discovered
	}

	l.lib = &Library{cfg: l.cfg, endpoints: eps, logger: l.logger}
	l.logger.Debug("identity library loaded", "auth_url", eps.AuthURL)
	return l.lib, nil
}

func discover(ctx context.Context, client *http.Client, url string) (Endpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Endpoints{}, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return Endpoints{}, fmt.Errorf("discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Endpoints{}, fmt.Errorf("discovery returned %s", resp.Status)
	}

	var eps Endpoints
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&eps); err != nil {
		return Endpoints{}, fmt.Errorf("invalid discovery document: %w", err)
	}
	if eps.AuthURL == "" || eps.TokenURL == "" {
		return Endpoints{}, errors.New("discovery document lacks authorization or token endpoint")
	}
	if eps.RevocationURL == "" {
		eps.RevocationURL = RevocationURL
	}
	return eps, nil
}
