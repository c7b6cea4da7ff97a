package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cloudsync/todocal/internal/calendar"
	"github.com/cloudsync/todocal/internal/instrumentation"
	"github.com/cloudsync/todocal/internal/session"
)

// Auth is the session surface used by tools, commands and health checks.
// *session.Session implements it.
type Auth interface {
	Initialize(ctx context.Context, listener session.Listener) error
	RequestAuthorization(ctx context.Context) error
	SignOut(ctx context.Context)
	IsSignedIn() bool
	Email() string
	State() session.State
}

// Calendar is the gateway surface. *calendar.Gateway implements it.
type Calendar interface {
	FetchEvents(ctx context.Context, opts calendar.ListOptions) ([]calendar.Event, error)
	GetEvent(ctx context.Context, id string) (*calendar.Event, error)
	CreateEvent(ctx context.Context, in calendar.EventInput) (*calendar.Event, error)
	UpdateEvent(ctx context.Context, id string, in calendar.EventInput) (*calendar.Event, error)
	DeleteEvent(ctx context.Context, id string) error
}

// Components are the collaborators a ServerContext hands out.
type Components struct {
	Auth     Auth
	Calendar Calendar
	Logger   *slog.Logger
	Metrics  *instrumentation.Metrics

	// Closers are closed in reverse order on Shutdown.
	Closers []io.Closer
}

// ServerContext holds the process-wide session and gateway.
type ServerContext struct {
	ctx      context.Context
	cancel   context.CancelFunc
	auth     Auth
	calendar Calendar
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	closers  []io.Closer

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a server context from already built components.
func NewServerContext(ctx context.Context, c Components) (*ServerContext, error) {
	if c.Auth == nil {
		return nil, errors.New("auth component is required")
	}
	if c.Calendar == nil {
		return nil, errors.New("calendar component is required")
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		auth:     c.Auth,
		calendar: c.Calendar,
		logger:   logger,
		metrics:  c.Metrics,
		closers:  c.Closers,
	}, nil
}

// Context returns the server context. It is cancelled by Shutdown.
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Auth returns the session.
func (sc *ServerContext) Auth() Auth {
	return sc.auth
}

// Calendar returns the calendar gateway.
func (sc *ServerContext) Calendar() Calendar {
	return sc.calendar
}

// Logger returns the process logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder, possibly nil.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	return sc.metrics
}

// Shutdown cancels the context and closes the components. It is safe to
// call more than once; only the first call does any work.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.mu.Unlock()

	sc.cancel()

	var errs []error
	for i := len(sc.closers) - 1; i >= 0; i-- {
		if err := sc.closers[i].Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close component: %w", err))
		}
	}
	return errors.Join(errs...)
}

// IsShutdown returns whether the server is shutting down.
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}
