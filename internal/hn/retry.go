package hn

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// RetryPolicy implements capped exponential backoff with jitter.
type RetryPolicy struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewRetryPolicy builds a policy allowing maxRetries retries after the first attempt.
func NewRetryPolicy(maxRetries int, baseDelay, maxDelay time.Duration) *RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}
	return &RetryPolicy{maxRetries: maxRetries, baseDelay: baseDelay, maxDelay: maxDelay}
}

// MaxAttempts is the total number of attempts including the first one.
func (p *RetryPolicy) MaxAttempts() int {
	return p.maxRetries + 1
}

// ShouldRetry decides whether attempt (1-based) may be followed by another one.
// parent is the caller context; a per-attempt timeout is retryable, caller cancellation is not.
func (p *RetryPolicy) ShouldRetry(parent context.Context, err error, attempt int) bool {
	if err == nil || attempt >= p.MaxAttempts() {
		return false
	}
	if parent.Err() != nil {
		return false
	}
	if errors.Is(err, ErrNotFound) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code == http.StatusTooManyRequests || statusErr.Code >= http.StatusInternalServerError
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var decodeErr *decodeError
	return !errors.As(err, &decodeErr)
}

// Backoff returns the wait before attempt+1: base * 2^(attempt-1), capped, with up to 25% jitter.
func (p *RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(p.maxDelay) {
		delay = float64(p.maxDelay)
	}
	jitter := delay / 4 * rand.Float64()
	return time.Duration(delay - jitter)
}

type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }
