package catalog

import (
	"errors"
	"fmt"
)

// ErrAuthentication indicates a missing or rejected API key. The pipeline
// checks for the key before issuing any remote call; the client returns this
// when the catalog rejects the key mid-run.
var ErrAuthentication = errors.New("catalog authentication failed")

// ErrWorkspaceNotFound indicates the configured workspace does not exist and
// workspace creation was not permitted.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// RequestRejectedError is a non-retryable 4xx response from the catalog.
// The remote error body is carried verbatim so the operator can diagnose
// schema or permission problems.
type RequestRejectedError struct {
	StatusCode int
	Body       []byte
}

func (e *RequestRejectedError) Error() string {
	if len(e.Body) == 0 {
		return fmt.Sprintf("catalog rejected request: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("catalog rejected request: HTTP %d: %s", e.StatusCode, e.Body)
}

// RateLimitError indicates retries were exhausted on rate-limit responses.
type RateLimitError struct {
	Attempts int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded after %d attempts", e.Attempts)
}

// TransientError indicates retries were exhausted on server errors or
// network failures.
type TransientError struct {
	Attempts   int
	StatusCode int
	Err        error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient failure after %d attempts: %v", e.Attempts, e.Err)
	}
	return fmt.Sprintf("transient failure after %d attempts: HTTP %d", e.Attempts, e.StatusCode)
}

func (e *TransientError) Unwrap() error { return e.Err }
