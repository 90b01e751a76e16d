package github

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/rs/zerolog"
)

const (
	defaultFetchAttempts = 3
	defaultRetryDelay    = 500 * time.Millisecond
)

// statusError is a non-200 response from a plain fetch.
type statusError struct {
	url  string
	code int
}

func (e *statusError) Error() string {
	return "fetch " + e.url + ": unexpected status " + strconv.Itoa(e.code)
}

// retryWithBackoff runs fn up to attempts times, doubling delay after each
// retryable failure. It stops early when ctx is done.
func retryWithBackoff(ctx context.Context, logger zerolog.Logger, attempts int, delay time.Duration, fn func(context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			logger.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("retrying fetch")
			if err := sleepCtx(ctx, delay); err != nil {
				return lastErr
			}
			delay *= 2
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr) {
			return lastErr
		}
		logger.Warn().Err(lastErr).Int("attempt", attempt).Int("max_attempts", attempts).Msg("transient fetch failure")
	}
	return lastErr
}

// isRetryableError reports transient network failures and 5xx responses.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var status *statusError
	if errors.As(err, &status) {
		return status.code >= 500 || status.code == 429
	}
	var apiErr *gh.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return apiErr.Response.StatusCode >= 500
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"eof",
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"broken pipe",
		"no such host",
		"network is unreachable",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
