package calendar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/cloudsync/todocal/internal/instrumentation"
	"github.com/cloudsync/todocal/internal/logging"
)

const (
	// CalendarID is the only calendar the gateway works on.
	CalendarID = "primary"

	DefaultMaxResults = 10
	DefaultEndpoint   = "https://www.googleapis.com/calendar/v3/"
)

// TokenSource hands out the access token of the signed-in user.
// *session.Session satisfies it.
type TokenSource interface {
	AccessToken() (string, bool)
}

// Options configures a Gateway.
type Options struct {
	// Endpoint overrides the API base URL.
	Endpoint string

	// Transport is the base round tripper below the bearer token transport.
	Transport http.RoundTripper

	// RequestsPerSecond throttles outgoing requests when positive.
	RequestsPerSecond float64
	Burst             int

	Logger  *slog.Logger
	Metrics *instrumentation.Metrics

	// Now is the clock used for default list bounds.
	Now func() time.Time
}

// Gateway performs authenticated calls against the primary calendar.
type Gateway struct {
	tokens   TokenSource
	endpoint string
	base     http.RoundTripper
	limiter  *rate.Limiter
	logger   *slog.Logger
	metrics  *instrumentation.Metrics
	now      func() time.Time
}

// New creates a Gateway reading tokens from tokens.
func New(tokens TokenSource, opts Options) *Gateway {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	base := opts.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	g := &Gateway{
		tokens:   tokens,
		endpoint: endpoint,
		base:     base,
		logger:   logging.WithService(logger, instrumentation.ServiceCalendar),
		metrics:  opts.Metrics,
		now:      now,
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return g
}

// ListEvents returns the events in range, or an empty slice on any
// failure including a missing token.
func (g *Gateway) ListEvents(ctx context.Context, opts ListOptions) []Event {
	events, err := g.FetchEvents(ctx, opts)
	if err != nil {
		g.logger.Warn("listing events failed, returning none", logging.Err(err))
		return []Event{}
	}
	return events
}

// FetchEvents lists single instances of events in range ordered by start
// time. Zero bounds default to the current month.
func (g *Gateway) FetchEvents(ctx context.Context, opts ListOptions) (events []Event, err error) {
	token, err := g.token()
	if err != nil {
		return nil, err
	}
	ctx, done := g.observe(ctx, instrumentation.OperationList)
	defer func() { done(err) }()

	svc, err := g.service(ctx, token)
	if err != nil {
		return nil, err
	}

	start, end := g.bounds(opts)
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	resp, err := svc.Events.List(CalendarID).
		Context(ctx).
		TimeMin(start.Format(time.RFC3339)).
		TimeMax(end.Format(time.RFC3339)).
		MaxResults(maxResults).
		SingleEvents(true).
		OrderBy("startTime").
		Do()
	if err != nil {
		return nil, wrap("list events", err)
	}

	events = make([]Event, 0, len(resp.Items))
	for _, item := range resp.Items {
		events = append(events, eventFromAPI(item))
	}
	return events, nil
}

// GetEvent returns event id.
func (g *Gateway) GetEvent(ctx context.Context, id string) (_ *Event, err error) {
	token, err := g.token()
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrMissingEventID
	}
	ctx, done := g.observe(ctx, instrumentation.OperationGet, attribute.String(instrumentation.SpanAttrEventID, id))
	defer func() { done(err) }()

	svc, err := g.service(ctx, token)
	if err != nil {
		return nil, err
	}
	got, err := svc.Events.Get(CalendarID, id).Context(ctx).Do()
	if err != nil {
		return nil, wrap("get event", err)
	}
	ev := eventFromAPI(got)
	return &ev, nil
}

// CreateEvent inserts in into the primary calendar.
func (g *Gateway) CreateEvent(ctx context.Context, in EventInput) (_ *Event, err error) {
	token, err := g.token()
	if err != nil {
		return nil, err
	}
	ctx, done := g.observe(ctx, instrumentation.OperationCreate)
	defer func() { done(err) }()

	svc, err := g.service(ctx, token)
	if err != nil {
		return nil, err
	}
	created, err := svc.Events.Insert(CalendarID, in.toAPI()).Context(ctx).Do()
	if err != nil {
		return nil, wrap("create event", err)
	}
	ev := eventFromAPI(created)
	return &ev, nil
}

// UpdateEvent replaces event id with in.
func (g *Gateway) UpdateEvent(ctx context.Context, id string, in EventInput) (_ *Event, err error) {
	token, err := g.token()
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, ErrMissingEventID
	}
	ctx, done := g.observe(ctx, instrumentation.OperationUpdate, attribute.String(instrumentation.SpanAttrEventID, id))
	defer func() { done(err) }()

	svc, err := g.service(ctx, token)
	if err != nil {
		return nil, err
	}
	updated, err := svc.Events.Update(CalendarID, id, in.toAPI()).Context(ctx).Do()
	if err != nil {
		return nil, wrap("update event", err)
	}
	ev := eventFromAPI(updated)
	return &ev, nil
}

// DeleteEvent removes event id. Only 204 No Content counts as success.
func (g *Gateway) DeleteEvent(ctx context.Context, id string) (err error) {
	token, err := g.token()
	if err != nil {
		return err
	}
	if id == "" {
		return ErrMissingEventID
	}
	ctx, done := g.observe(ctx, instrumentation.OperationDelete, attribute.String(instrumentation.SpanAttrEventID, id))
	defer func() { done(err) }()

	if err := g.wait(ctx); err != nil {
		return err
	}

	u := g.endpoint + "calendars/" + url.PathEscape(CalendarID) + "/events/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build delete request: %w", err)
	}
	resp, err := g.httpClient(token).Do(req)
	if err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	defer googleapi.CloseBody(resp)

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := googleapi.CheckResponse(resp); err != nil {
		return asAPIError(err)
	}
	return &APIError{StatusCode: resp.StatusCode}
}

func (g *Gateway) token() (string, error) {
	if g.tokens == nil {
		return "", ErrNotSignedIn
	}
	token, ok := g.tokens.AccessToken()
	if !ok || token == "" {
		return "", ErrNotSignedIn
	}
	return token, nil
}

func (g *Gateway) wait(ctx context.Context) error {
	if g.limiter == nil {
		return nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func (g *Gateway) httpClient(token string) *http.Client {
	return &http.Client{Transport: &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
		Base:   g.base,
	}}
}

// service waits for the limiter and builds a calendar service bound to token.
func (g *Gateway) service(ctx context.Context, token string) (*calendar.Service, error) {
	if err := g.wait(ctx); err != nil {
		return nil, err
	}
	svc, err := calendar.NewService(ctx,
		option.WithHTTPClient(g.httpClient(token)),
		option.WithEndpoint(g.endpoint),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Calendar service: %w", err)
	}
	return svc, nil
}

// bounds fills missing bounds with the first and last second of the
// current month.
func (g *Gateway) bounds(opts ListOptions) (time.Time, time.Time) {
	now := g.now()
	start, end := opts.Start, opts.End
	if start.IsZero() {
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	}
	if end.IsZero() {
		end = time.Date(now.Year(), now.Month()+1, 0, 23, 59, 59, 0, now.Location())
	}
	return start, end
}

func (g *Gateway) observe(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceCalendar, op, attrs...)
	started := time.Now()
	return ctx, func(err error) {
		status := instrumentation.StatusOf(err)
		g.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceCalendar, op, status, time.Since(started))
		instrumentation.EndSpan(span, err)
		g.logger.Debug("calendar request",
			logging.Operation(op),
			logging.Status(status),
			slog.Duration(logging.KeyDuration, time.Since(started)))
	}
}

// wrap keeps API errors bare so their message is the whole error text.
func wrap(action string, err error) error {
	if apiErr := asAPIError(err); apiErr != err {
		return apiErr
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
