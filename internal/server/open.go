package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/cloudsync/todocal/internal/calendar"
	"github.com/cloudsync/todocal/internal/config"
	"github.com/cloudsync/todocal/internal/google"
	"github.com/cloudsync/todocal/internal/instrumentation"
	"github.com/cloudsync/todocal/internal/session"
	"github.com/cloudsync/todocal/internal/tokenstore"
)

// OpenOptions carries the process-level collaborators that do not come
// from the configuration file.
type OpenOptions struct {
	Logger   *slog.Logger
	Provider *instrumentation.Provider

	// OpenURL presents the consent URL. Defaults to the system browser.
	OpenURL func(url string) error

	// HTTPClient is used for discovery, code exchange and revocation.
	HTTPClient *http.Client
}

// Open builds the token store, session and calendar gateway described by
// cfg. The session is not initialized; callers decide when to do that.
func Open(ctx context.Context, cfg *config.Config, opts OpenOptions) (*ServerContext, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var (
		metrics *instrumentation.Metrics
		audit   *instrumentation.AuditLogger
	)
	if opts.Provider != nil {
		metrics = opts.Provider.Metrics()
		audit = opts.Provider.Audit()
	}

	key, err := cfg.EncryptionKey()
	if err != nil {
		return nil, err
	}
	backend, err := tokenstore.OpenBackend(cfg.Backend(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}
	store, err := tokenstore.New(backend, tokenstore.Options{
		EncryptionKey: key,
		Logger:        logger,
		Metrics:       metrics,
	})
	if err != nil {
		_ = backend.Close()
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}

	gcfg := google.Config{
		ClientID:      cfg.Google.ClientID,
		ClientSecret:  cfg.Google.ClientSecret,
		Scopes:        google.DefaultScopes,
		DiscoveryURL:  google.DiscoveryURL,
		ListenAddr:    cfg.Google.ListenAddr,
		OpenURL:       opts.OpenURL,
		HTTPClient:    opts.HTTPClient,
		AccountChoice: store,
	}
	sess := session.New(
		store,
		google.NewLoader(gcfg, logger),
		google.NewUserInfoClient(google.UserInfoOptions{Metrics: metrics}),
		session.Config{
			ClientID:      cfg.Google.ClientID,
			Scopes:        google.DefaultScopes,
			RequiredScope: google.CalendarScope,
			LoadAttempts:  cfg.Google.LoadAttempts,
			LoadInterval:  cfg.Google.LoadInterval(),
			Logger:        logger,
			Metrics:       metrics,
			Audit:         audit,
		},
	)
	gateway := calendar.New(sess, calendar.Options{
		RequestsPerSecond: cfg.Calendar.RequestsPerSecond,
		Burst:             cfg.Calendar.Burst,
		Logger:            logger,
		Metrics:           metrics,
	})

	return NewServerContext(ctx, Components{
		Auth:     sess,
		Calendar: gateway,
		Logger:   logger,
		Metrics:  metrics,
		// The session waits for background revocation before the store closes.
		Closers: []io.Closer{store, sess},
	})
}
