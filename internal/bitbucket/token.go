package bitbucket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// tokenProvider acquires a client-credentials token and allows a single refresh.
// It is the oauth2.TokenSource behind every API request.
type tokenProvider struct {
	mu sync.Mutex

	credentials clientcredentials.Config
	refresher   oauth2.Config
	httpClient  *http.Client
	logger      *slog.Logger

	token        *oauth2.Token
	refreshToken string
	refreshed    bool
}

func newTokenProvider(cfg Config) *tokenProvider {
	return &tokenProvider{
		credentials: clientcredentials.Config{
			ClientID:     cfg.ClientKey,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		},
		refresher: oauth2.Config{
			ClientID:     cfg.ClientKey,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		httpClient:   cfg.HTTPClient,
		logger:       cfg.Logger,
		refreshToken: cfg.RefreshToken,
	}
}

// Acquire performs the client_credentials grant. A 401 falls through to one refresh.
func (p *tokenProvider) Acquire(ctx context.Context) (*oauth2.Token, error) {
	tok, err := p.credentials.Token(p.oauthContext(ctx))
	if err == nil {
		if err := checkToken(tok); err != nil {
			p.store(nil)
			return nil, fmt.Errorf("acquire token: %w", err)
		}
		p.store(tok)
		p.logger.Debug("acquired access token", "expiry", tok.Expiry)
		return tok, nil
	}

	if status, ok := retrieveStatus(err); ok && status == http.StatusUnauthorized {
		p.logger.Warn("client credentials rejected, refreshing token", "status", status)
		return p.Refresh(ctx)
	}
	return nil, classifyTokenError("acquire token", err)
}

// Refresh performs the refresh_token grant. Only the first call reaches the network.
func (p *tokenProvider) Refresh(ctx context.Context) (*oauth2.Token, error) {
	p.mu.Lock()
	if p.refreshed {
		p.mu.Unlock()
		return nil, ErrRefreshExhausted
	}
	p.refreshed = true
	refreshToken := p.refreshToken
	p.mu.Unlock()

	if refreshToken == "" {
		p.store(nil)
		return nil, fmt.Errorf("refresh token: %w", ErrNoRefreshToken)
	}

	src := p.refresher.TokenSource(p.oauthContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		p.store(nil)
		return nil, classifyTokenError("refresh token", err)
	}
	if err := checkToken(tok); err != nil {
		p.store(nil)
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	p.store(tok)
	p.logger.Info("refreshed access token", "expiry", tok.Expiry)
	return tok, nil
}

// Token implements oauth2.TokenSource. The stored token is returned as is; it is never rotated.
func (p *tokenProvider) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token == nil || p.token.AccessToken == "" {
		return nil, ErrNoToken
	}
	return p.token, nil
}

func (p *tokenProvider) store(tok *oauth2.Token) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.token = tok
	if tok != nil && tok.RefreshToken != "" {
		p.refreshToken = tok.RefreshToken
	}
}

func (p *tokenProvider) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

// checkToken requires both halves of the token pair; a body missing either is malformed.
func checkToken(tok *oauth2.Token) error {
	if tok == nil || tok.AccessToken == "" {
		return fmt.Errorf("%w: access_token missing", ErrInvalidTokenResponse)
	}
	if tok.RefreshToken == "" {
		return fmt.Errorf("%w: refresh_token missing", ErrInvalidTokenResponse)
	}
	return nil
}

func retrieveStatus(err error) (int, bool) {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		return rErr.Response.StatusCode, true
	}
	return 0, false
}

func classifyTokenError(op string, err error) error {
	if status, ok := retrieveStatus(err); ok {
		return fmt.Errorf("%s: %w", op, &statusError{
			StatusCode: status,
			Err:        fmt.Errorf("%w: %v", ErrUnreachable, err),
		})
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %v", op, ErrUnreachable, err)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrInvalidTokenResponse, err)
}
