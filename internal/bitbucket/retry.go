package bitbucket

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

type refreshFunc func(ctx context.Context) error

type statusError struct {
	StatusCode int
	Err        error
}

func (e *statusError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("http status %d: %v", e.StatusCode, e.Err)
}

func (e *statusError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// doWithRefresh runs fn and, when it fails with 401, refreshes the token once and runs fn again.
// There is no backoff and no further attempt.
func doWithRefresh(ctx context.Context, refresh refreshFunc, fn func() error) error {
	err := fn()
	if err == nil || refresh == nil || !needsRefresh(err) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("refresh canceled: %w", ctxErr)
	}

	if refreshErr := refresh(ctx); refreshErr != nil {
		return errors.Join(err, fmt.Errorf("refresh after 401: %w", refreshErr))
	}
	return fn()
}

func needsRefresh(err error) bool {
	var stErr *statusError
	if errors.As(err, &stErr) {
		return stErr.StatusCode == http.StatusUnauthorized
	}
	return false
}
