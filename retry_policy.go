package reqflow

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ambiyansyah-risyal/reqflow/internal/backoff"
)

// RetryPolicy decides whether a failed round trip is retried and after how
// long. attempt is 0 for the first try.
type RetryPolicy interface {
	ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool)
}

// BackoffStrategy selects the delay algorithm of DefaultRetryPolicy.
type BackoffStrategy int

const (
	ExponentialJitter BackoffStrategy = iota
	DecorrelatedJitter
)

// String returns the strategy name.
func (s BackoffStrategy) String() string {
	switch s {
	case ExponentialJitter:
		return "exponential"
	case DecorrelatedJitter:
		return "decorrelated"
	default:
		return "unknown"
	}
}

// DefaultRetryPolicy retries network errors, 429 and 5xx responses of
// idempotent methods, honoring Retry-After when present.
type DefaultRetryPolicy struct {
	maxRetries int
	params     backoff.Params
	strategy   BackoffStrategy
	delay      backoff.Strategy

	isIdempotent func(method string) bool
}

// NewDefaultRetryPolicy creates an exponential-jitter retry policy.
func NewDefaultRetryPolicy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64) *DefaultRetryPolicy {
	return NewDefaultRetryPolicyWithStrategy(maxRetries, initialBackoff, maxBackoff, multiplier, jitter, ExponentialJitter)
}

// NewDefaultRetryPolicyWithStrategy creates a retry policy with a specific backoff strategy.
func NewDefaultRetryPolicyWithStrategy(maxRetries int, initialBackoff, maxBackoff time.Duration, multiplier, jitter float64, strategy BackoffStrategy) *DefaultRetryPolicy {
	policy := &DefaultRetryPolicy{
		maxRetries: maxRetries,
		params: backoff.Params{
			Initial:    initialBackoff,
			Max:        maxBackoff,
			Multiplier: multiplier,
			Jitter:     jitter,
		},
		strategy:     strategy,
		isIdempotent: DefaultIsIdempotent,
	}

	switch strategy {
	case DecorrelatedJitter:
		policy.delay = backoff.Decorrelated{}
	default:
		policy.strategy = ExponentialJitter
		policy.delay = backoff.Exponential{}
	}
	return policy
}

// MaxRetries returns the retry limit.
func (p *DefaultRetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// Strategy returns the configured backoff strategy.
func (p *DefaultRetryPolicy) Strategy() BackoffStrategy {
	return p.strategy
}

// ShouldRetry implements the RetryPolicy interface.
func (p *DefaultRetryPolicy) ShouldRetry(resp *http.Response, err error, attempt int) (time.Duration, bool) {
	if attempt >= p.maxRetries {
		return 0, false
	}

	// Don't retry if the method is not idempotent
	if resp != nil && resp.Request != nil && !p.isIdempotent(resp.Request.Method) {
		return 0, false
	}

	var delay time.Duration
	switch {
	case err != nil:
	case resp != nil && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500):
		delay = parseRetryAfter(resp.Header.Get("Retry-After"))
	default:
		return 0, false
	}

	if delay == 0 {
		delay = p.delay.Delay(attempt, p.params)
	}
	return delay, true
}

// DefaultIsIdempotent returns true for idempotent HTTP methods.
func DefaultIsIdempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodPut, http.MethodDelete, http.MethodOptions:
		return true
	default:
		return false
	}
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds format and HTTP-date format, capped at one hour.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
		if seconds <= 0 {
			return 0
		}
		delay := time.Duration(seconds) * time.Second
		if delay > time.Hour {
			delay = time.Hour
		}
		return delay
	}

	if t, err := http.ParseTime(value); err == nil {
		delay := time.Until(t)
		if delay > 0 && delay <= time.Hour {
			return delay
		}
	}

	return 0
}
