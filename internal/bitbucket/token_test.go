package bitbucket

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticateClientCredentials(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, Config{ClientKey: "consumer-key", ClientSecret: "consumer-secret"}, func(r *http.Request) (*http.Response, error) {
		if !isTokenRequest(r) {
			return notFoundResponse(r.URL.Path), nil
		}
		assert.Equal(t, http.MethodPost, r.Method)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok, "token request must use basic auth")
		assert.Equal(t, "consumer-key", user)
		assert.Equal(t, "consumer-secret", pass)
		assert.Equal(t, "client_credentials", grantType(t, r))
		return mustJSONResponse(t, http.StatusOK, tokenBody("access-1", "refresh-1")), nil
	})

	require.NoError(t, client.Authenticate(context.Background()))

	tok, err := client.Token()
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
	assert.Equal(t, "refresh-1", tok.RefreshToken)
	assert.False(t, tok.Expiry.IsZero(), "expiry should be derived from expires_in")
}

func TestAuthenticateRefreshesAfter401(t *testing.T) {
	t.Parallel()

	var grants []string
	client := newTestClient(t, Config{RefreshToken: "stored-refresh"}, func(r *http.Request) (*http.Response, error) {
		if isTokenRequest(r) {
			grant := grantType(t, r)
			grants = append(grants, grant)
			if grant == "client_credentials" {
				return textHTTPResponse(http.StatusUnauthorized, `{"error":"invalid_client"}`), nil
			}
			assert.Equal(t, "stored-refresh", r.PostForm.Get("refresh_token"))
			return mustJSONResponse(t, http.StatusOK, tokenBody("access-2", "refresh-2")), nil
		}
		if r.URL.Path == "/2.0/workspaces/acme" {
			assert.Equal(t, "Bearer access-2", r.Header.Get("Authorization"))
			return mustJSONResponse(t, http.StatusOK, map[string]any{"slug": "acme", "name": "Acme"}), nil
		}
		return notFoundResponse(r.URL.Path), nil
	})

	require.NoError(t, client.Authenticate(context.Background()))
	assert.Equal(t, []string{"client_credentials", "refresh_token"}, grants)

	ws, err := client.Workspace(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", ws.Slug)
}

func TestAuthenticateFailures(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name       string
		cfg        Config
		respond    func(t *testing.T, r *http.Request) (*http.Response, error)
		wantErr    error
		wantStatus int
	}{
		{
			name: "malformed body",
			respond: func(t *testing.T, r *http.Request) (*http.Response, error) {
				return textHTTPResponse(http.StatusOK, `{not json`), nil
			},
			wantErr: ErrInvalidTokenResponse,
		},
		{
			name: "missing access token",
			respond: func(t *testing.T, r *http.Request) (*http.Response, error) {
				return mustJSONResponse(t, http.StatusOK, map[string]any{"refresh_token": "r"}), nil
			},
			wantErr: ErrInvalidTokenResponse,
		},
		{
			name: "missing refresh token",
			respond: func(t *testing.T, r *http.Request) (*http.Response, error) {
				return mustJSONResponse(t, http.StatusOK, map[string]any{"access_token": "a", "token_type": "bearer"}), nil
			},
			wantErr: ErrInvalidTokenResponse,
		},
		{
			name: "server error",
			respond: func(t *testing.T, r *http.Request) (*http.Response, error) {
				return textHTTPResponse(http.StatusInternalServerError, `{"error":"boom"}`), nil
			},
			wantErr:    ErrUnreachable,
			wantStatus: http.StatusInternalServerError,
		},
		{
			name: "transport failure",
			respond: func(t *testing.T, r *http.Request) (*http.Response, error) {
				return nil, errors.New("dial tcp: connection refused")
			},
			wantErr: ErrUnreachable,
		},
		{
			name: "401 without stored refresh token",
			respond: func(t *testing.T, r *http.Request) (*http.Response, error) {
				return textHTTPResponse(http.StatusUnauthorized, `{"error":"invalid_client"}`), nil
			},
			wantErr: ErrNoRefreshToken,
		},
		{
			name: "401 then refresh rejected",
			cfg:  Config{RefreshToken: "stale"},
			respond: func(t *testing.T, r *http.Request) (*http.Response, error) {
				return textHTTPResponse(http.StatusUnauthorized, `{"error":"invalid_grant"}`), nil
			},
			wantErr:    ErrUnreachable,
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client := newTestClient(t, tc.cfg, func(r *http.Request) (*http.Response, error) {
				return tc.respond(t, r)
			})

			err := client.Authenticate(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.True(t, IsAuthError(err) || errors.Is(err, ErrUnreachable), "error %v should classify as auth failure", err)
			if tc.wantStatus != 0 {
				status, ok := StatusCode(err)
				require.True(t, ok, "status code should be wrapped")
				assert.Equal(t, tc.wantStatus, status)
			}

			_, tokErr := client.Token()
			assert.ErrorIs(t, tokErr, ErrNoToken)
		})
	}
}

func TestRefreshHappensAtMostOnce(t *testing.T) {
	t.Parallel()

	refreshCalls := 0
	client := newTestClient(t, Config{RefreshToken: "stored"}, func(r *http.Request) (*http.Response, error) {
		if isTokenRequest(r) && grantType(t, r) == "refresh_token" {
			refreshCalls++
		}
		return mustJSONResponse(t, http.StatusOK, tokenBody("access", "refresh")), nil
	})

	_, err := client.tokens.Refresh(context.Background())
	require.NoError(t, err)

	_, err = client.tokens.Refresh(context.Background())
	assert.ErrorIs(t, err, ErrRefreshExhausted)
	assert.Equal(t, 1, refreshCalls)
}
