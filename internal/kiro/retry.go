package kiro

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"
)

// RetryConfig governs the transient-error retry ladder shared by every
// outbound Kiro call.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryConfig matches REQUEST_MAX_RETRIES/REQUEST_BASE_DELAY's
// documented defaults: 3 retries (4 attempts in all), 1s base, exponential
// backoff.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   30 * time.Second,
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
// failure: 429 and any 5xx.
func isRetryableStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || statusCode >= 500
}

// isRetryableError classifies a transport-level error as transient. Context
// cancellation is never retryable; everything else falls back to matching
// known network-error substrings.
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

// retryDelay computes base*2^attempt capped at maxDelay, with ±30% jitter to
// avoid a thundering herd across accounts that failed at the same instant.
func retryDelay(attempt int, cfg RetryConfig) time.Duration {
	backoff := float64(cfg.BaseDelay) * math.Pow(2, float64(attempt))
	if ceiling := float64(cfg.MaxDelay); cfg.MaxDelay > 0 && backoff > ceiling {
		backoff = ceiling
	}
	jitter := 1 + (rand.Float64()*0.6 - 0.3)
	return time.Duration(backoff * jitter)
}
