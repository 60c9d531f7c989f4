package bitbucket

import (
	"errors"
	"net/http"
)

// StatusCode extracts the wrapped HTTP status code when available.
func StatusCode(err error) (int, bool) {
	var stErr *statusError
	if errors.As(err, &stErr) {
		return stErr.StatusCode, true
	}
	return 0, false
}

// IsAuthError reports whether an error is an authentication or authorization failure.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNoToken) || errors.Is(err, ErrNoRefreshToken) ||
		errors.Is(err, ErrRefreshExhausted) || errors.Is(err, ErrInvalidTokenResponse) {
		return true
	}
	if status, ok := StatusCode(err); ok {
		return status == http.StatusUnauthorized || status == http.StatusForbidden
	}
	return false
}

// IsDecodeError reports whether err is a malformed-payload failure for a single entity.
func IsDecodeError(err error) bool {
	var dErr *DecodeError
	return errors.As(err, &dErr)
}
