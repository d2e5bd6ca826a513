package gemini

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// RetryConfig governs the transient-error retry ladder shared by Generate
// and Stream, matching the CLI client's RETRY_ENABLED/RETRY_MAX/
// RETRY_INTERVAL/RETRY_MAX_INTERVAL knobs.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig mirrors the reference client's defaults: up to 3
// retries, 1s base interval doubling up to an 8s ceiling.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   8 * time.Second,
	}
}

var retryableErrorSubstrings = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"eof",
	"timeout",
	"temporary failure",
	"no such host",
	"network is unreachable",
	"i/o timeout",
}

// isRetryableStatus reports whether statusCode is a transient upstream
// failure: 408, 425, 429, or any 5xx.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return statusCode >= 500
}

// isRetryableError classifies a transport-level error as transient. Context
// cancellation is never retryable.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr {
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.EPIPE, syscall.ETIMEDOUT,
			syscall.ENETUNREACH, syscall.EHOSTUNREACH:
			return true
		}
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Err != nil {
			return isRetryableError(opErr.Err)
		}
		return true
	}

	lower := strings.ToLower(err.Error())
	for _, pattern := range retryableErrorSubstrings {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// parseRetryAfter parses a Retry-After header, either as a delay in seconds
// or an HTTP-date, returning the remaining wait.
func parseRetryAfter(v string) (time.Duration, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			secs = 0
		}
		return time.Duration(secs) * time.Second, true
	}
	layouts := []string{time.RFC1123, time.RFC1123Z, time.RFC850, time.ANSIC}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, v); err == nil {
			d := time.Until(t)
			if d < 0 {
				d = 0
			}
			return d, true
		}
	}
	return 0, false
}

// retryDelay computes base*2^attempt capped at maxDelay, with jitter in
// [0.5x, 1.5x) to avoid every stalled account retrying in lockstep.
func retryDelay(attempt int, cfg RetryConfig) time.Duration {
	backoff := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if ceiling := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && backoff > ceiling {
		backoff = ceiling
	}
	jitter := 0.5 + rand.Float64()
	return time.Duration(backoff * jitter)
}
