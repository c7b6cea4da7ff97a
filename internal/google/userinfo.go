package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/cloudsync/todocal/internal/identity"
	"github.com/cloudsync/todocal/internal/instrumentation"
)

// UserInfoClient resolves the account email behind an access token.
type UserInfoClient struct {
	endpoint string
	base     http.RoundTripper
	metrics  *instrumentation.Metrics
}

// UserInfoOptions configures a UserInfoClient.
type UserInfoOptions struct {
	// Endpoint overrides the API base URL (tests).
	Endpoint string
	// Transport is the base transport under the bearer token.
	Transport http.RoundTripper
	Metrics   *instrumentation.Metrics
}

// NewUserInfoClient creates a UserInfoClient.
func NewUserInfoClient(opts UserInfoOptions) *UserInfoClient {
	return &UserInfoClient{endpoint: opts.Endpoint, base: opts.Transport, metrics: opts.Metrics}
}

// UserEmail implements identity.Resolver.
func (c *UserInfoClient) UserEmail(ctx context.Context, token string) (email string, err error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceUserinfo, instrumentation.OperationUserinfo)
	start := time.Now()
	defer func() {
		c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceUserinfo, instrumentation.OperationUserinfo,
			instrumentation.StatusOf(err), time.Since(start))
		instrumentation.EndSpan(span, err)
	}()

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}),
			Base:   c.base,
		},
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}

	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return "", fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusUnauthorized {
			return "", fmt.Errorf("%w: %s", identity.ErrUnauthorized, gerr.Message)
		}
		return "", fmt.Errorf("userinfo lookup failed: %w", err)
	}
	return info.Email, nil
}
