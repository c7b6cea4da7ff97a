package google

import (
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Well-known Google endpoints.
const (
	DiscoveryURL     = "https://accounts.google.com/.well-known/openid-configuration"
	RevocationURL    = "https://oauth2.googleapis.com/revoke"
	DefaultListen    = "127.0.0.1:0"
	defaultHTTPLimit = 30 * time.Second
)

// Config holds the OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string

	// DiscoveryURL is fetched by the Loader. Empty means use the static
	// endpoints of golang.org/x/oauth2/google without a network probe.
	DiscoveryURL string

	// ListenAddr is the loopback address of the redirect listener.
	ListenAddr string

	// OpenURL presents the consent URL to the user. Defaults to OpenBrowser.
	OpenURL func(url string) error

	// HTTPClient is used for discovery, code exchange and revocation.
	HTTPClient *http.Client

	// AccountChoice persists DisableAutoSelect across processes. Without
	// it the flag lives as long as the loaded Library.
	AccountChoice AccountChoiceStore
}

func (c Config) withDefaults() Config {
	if len(c.Scopes) == 0 {
		c.Scopes = DefaultScopes
	}
	if c.ListenAddr == "" {
		c.ListenAddr = DefaultListen
	}
	if c.OpenURL == nil {
		c.OpenURL = OpenBrowser
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultHTTPLimit}
	}
	return c
}

// Endpoints are the provider URLs the library talks to.
type Endpoints struct {
	AuthURL       string `json:"authorization_endpoint"`
	TokenURL      string `json:"token_endpoint"`
	RevocationURL string `json:"revocation_endpoint"`
	UserInfoURL   string `json:"userinfo_endpoint"`
}

// StaticEndpoints returns Google's endpoints without discovery.
func StaticEndpoints() Endpoints {
	return Endpoints{
		AuthURL:       google.Endpoint.AuthURL,
		TokenURL:      google.Endpoint.TokenURL,
		RevocationURL: RevocationURL,
	}
}

func oauth2Config(cfg Config, eps Endpoints, clientID string, scopes []string, redirectURL string) *oauth2.Config {
	if clientID == "" {
		clientID = cfg.ClientID
	}
	if len(scopes) == 0 {
		scopes = cfg.Scopes
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: cfg.ClientSecret,
		Endpoint: oauth2.Endpoint{
			AuthURL:   eps.AuthURL,
			TokenURL:  eps.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
		RedirectURL: redirectURL,
		Scopes:      scopes,
	}
}
