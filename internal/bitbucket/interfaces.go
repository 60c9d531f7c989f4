package bitbucket

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultAPIBaseURL is the Bitbucket Cloud REST root.
	DefaultAPIBaseURL = "https://api.bitbucket.org/"
	// DefaultTokenURL is the OAuth2 token endpoint.
	DefaultTokenURL = "https://bitbucket.org/site/oauth2/access_token"
	// DefaultTimeout bounds a single HTTP exchange.
	DefaultTimeout = 30 * time.Second
)

var (
	// ErrUnreachable indicates the token endpoint failed at the transport level or answered with an unexpected status.
	ErrUnreachable = errors.New("bitbucket token endpoint unreachable")
	// ErrInvalidTokenResponse indicates the token endpoint answered 200 with an unusable body.
	ErrInvalidTokenResponse = errors.New("invalid token response")
	// ErrNoRefreshToken indicates a refresh was needed but no refresh token is stored.
	ErrNoRefreshToken = errors.New("no refresh token available")
	// ErrRefreshExhausted indicates the single allowed refresh was already spent.
	ErrRefreshExhausted = errors.New("token refresh already attempted")
	// ErrNoToken indicates a request was attempted before a token was acquired.
	ErrNoToken = errors.New("no access token")
)

// Config configures the Bitbucket client.
type Config struct {
	ClientKey    string
	ClientSecret string
	// RefreshToken seeds the provider with an externally stored refresh token.
	RefreshToken string
	HTTPClient   *http.Client
	APIBaseURL   string
	TokenURL     string
	Logger       *slog.Logger
}

// WithDefaults fills missing optional values with package defaults.
func (c Config) WithDefaults() Config {
	if c.APIBaseURL == "" {
		c.APIBaseURL = DefaultAPIBaseURL
	}
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: DefaultTimeout}
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c
}

// NewClient constructs a client. No network call is made until Authenticate.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if cfg.ClientKey == "" {
		return nil, fmt.Errorf("invalid ClientKey: empty")
	}

	tokens := newTokenProvider(cfg)
	client, err := newRESTClient(cfg, tokens)
	if err != nil {
		return nil, fmt.Errorf("create REST client: %w", err)
	}
	return client, nil
}
