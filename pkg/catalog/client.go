// Package catalog implements the remote API-catalog operations behind the
// sync engine: workspace bootstrap, spec resource upsert, linked-collection
// generation, and stage environment management.
//
// All remote calls funnel through Client, which authenticates with the
// catalog API key and recovers rate-limit (429) and transient (5xx) failures
// with exponential backoff before surfacing a classified error. Non-retryable
// client errors fail immediately and carry the remote error body verbatim.
//
// The higher-level stores (SpecStore, CollectionStore, EnvironmentStore)
// implement the identity discipline of the engine: resources are resolved by
// exact name match inside a workspace, and upserts never create a second
// resource for a name that already resolved.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultBaseURL is the public endpoint of the catalog service.
const DefaultBaseURL = "https://api.getpostman.com"

const (
	defaultMaxAttempts = 5
	defaultBackoffBase = time.Second
	defaultTimeout     = 30 * time.Second
)

// Client executes HTTP calls against the catalog service.
type Client struct {
	// BaseURL is the catalog service endpoint.
	BaseURL string
	// HTTPClient is the underlying transport.
	HTTPClient *http.Client
	// MaxAttempts bounds the total number of tries per call, including the
	// first one.
	MaxAttempts int
	// BackoffBase is the initial retry delay; it doubles on each retry.
	BackoffBase time.Duration
	// OnRetry, when set, observes every scheduled retry before the wait.
	OnRetry func(status, attempt int, wait time.Duration)

	apiKey string
	sleep  func(time.Duration)
}

// NewClient creates a catalog client for the given API key.
func NewClient(apiKey string) *Client {
	return &Client{
		BaseURL:     DefaultBaseURL,
		HTTPClient:  &http.Client{Timeout: defaultTimeout},
		MaxAttempts: defaultMaxAttempts,
		BackoffBase: defaultBackoffBase,
		apiKey:      apiKey,
		sleep:       time.Sleep,
	}
}

// Do executes a single catalog API call. The request body is marshaled once
// and replayed unchanged on every retry attempt. The returned message is the
// raw response body; empty responses yield an empty JSON object.
func (c *Client) Do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("%w: no API key configured", ErrAuthentication)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	attempts := c.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}

	var lastClass retryClass
	var lastStatus int
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		resp, respBody, err := c.doOnce(ctx, method, path, payload)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			// Network-level failures are retried like server errors.
			lastClass, lastStatus, lastErr = retryTransient, 0, err
			if attempt < attempts-1 {
				c.wait(0, attempt, backoffDelay(c.BackoffBase, attempt))
			}
			continue
		}

		switch class := classify(resp.StatusCode); class {
		case retryNone:
			return c.finish(resp, respBody)
		case retryRateLimit, retryTransient:
			lastClass, lastStatus, lastErr = class, resp.StatusCode, nil
			if attempt < attempts-1 {
				wait := backoffDelay(c.BackoffBase, attempt)
				if class == retryRateLimit {
					wait = retryAfterDelay(resp.Header, wait)
				}
				c.wait(resp.StatusCode, attempt, wait)
			}
		}
	}

	if lastClass == retryRateLimit {
		return nil, &RateLimitError{Attempts: attempts}
	}
	return nil, &TransientError{Attempts: attempts, StatusCode: lastStatus, Err: lastErr}
}

// doOnce issues one HTTP attempt and reads the full response body.
func (c *Client) doOnce(ctx context.Context, method, path string, payload []byte) (*http.Response, []byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp, respBody, nil
}

// finish maps a terminal response to a result or classified error.
func (c *Client) finish(resp *http.Response, body []byte) (json.RawMessage, error) {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if len(body) == 0 {
			return json.RawMessage(`{}`), nil
		}
		return json.RawMessage(body), nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrAuthentication, resp.StatusCode, body)
	default:
		return nil, &RequestRejectedError{StatusCode: resp.StatusCode, Body: body}
	}
}

func (c *Client) wait(status, attempt int, d time.Duration) {
	if c.OnRetry != nil {
		c.OnRetry(status, attempt, d)
	}
	sleep := c.sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	sleep(d)
}

// get is a convenience wrapper unmarshalling a GET response into out.
func (c *Client) get(ctx context.Context, path string, out any) error {
	raw, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return nil
}

// send issues a mutating call and unmarshals the response into out when
// out is non-nil.
func (c *Client) send(ctx context.Context, method, path string, body, out any) error {
	raw, err := c.Do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return nil
}
