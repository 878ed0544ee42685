package catalog

import (
	"math"
	"net/http"
	"strconv"
	"time"
)

// retryClass classifies a response status for the retry loop.
type retryClass int

const (
	// retryNone means the response is terminal (success or hard failure).
	retryNone retryClass = iota
	// retryRateLimit means the catalog signalled rate limiting.
	retryRateLimit
	// retryTransient means a server-side or network error worth retrying.
	retryTransient
)

// classify maps an HTTP status code to a retry class. The retry policy is a
// pure function of (status, attempt) so it can be tested without a server.
func classify(status int) retryClass {
	switch {
	case status == http.StatusTooManyRequests:
		return retryRateLimit
	case status >= 500:
		return retryTransient
	default:
		return retryNone
	}
}

// backoffDelay returns the exponential backoff delay for a retry attempt.
// Attempt 0 is the first retry: base, then base*2, base*4, ...
func backoffDelay(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	return time.Duration(float64(base) * math.Pow(2, float64(attempt)))
}

// retryAfterDelay honours a Retry-After header when present and parseable
// as a second count, falling back to the computed backoff otherwise.
func retryAfterDelay(header http.Header, fallback time.Duration) time.Duration {
	raw := header.Get("Retry-After")
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
