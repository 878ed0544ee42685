package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a client pointed at a test server with sleeps
// recorded instead of executed.
func newTestClient(serverURL string, slept *[]time.Duration) *Client {
	c := NewClient("test-key")
	c.BaseURL = serverURL
	c.sleep = func(d time.Duration) {
		*slept = append(*slept, d)
	}
	return c
}

func TestClient_RetriesRateLimitThenSucceeds(t *testing.T) {
	// Scenario: three 429 responses, then success, with five attempts
	// allowed. The call must succeed after three retries.
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls <= 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	var slept []time.Duration
	c := newTestClient(server.URL, &slept)

	raw, err := c.Do(context.Background(), http.MethodGet, "/specs", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(raw))
	assert.Equal(t, 4, calls)

	// Delays are non-decreasing: 1s, 2s, 4s.
	require.Len(t, slept, 3)
	for i := 1; i < len(slept); i++ {
		assert.GreaterOrEqual(t, slept[i], slept[i-1])
	}
}

func TestClient_RateLimitExhaustsAttempts(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	var slept []time.Duration
	c := newTestClient(server.URL, &slept)
	c.MaxAttempts = 3

	_, err := c.Do(context.Background(), http.MethodGet, "/specs", nil)

	var rateErr *RateLimitError
	require.ErrorAs(t, err, &rateErr)
	assert.Equal(t, 3, rateErr.Attempts)
	assert.Equal(t, 3, calls, "must never retry past the configured maximum")
}

func TestClient_HonoursRetryAfterHeader(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var slept []time.Duration
	c := newTestClient(server.URL, &slept)

	_, err := c.Do(context.Background(), http.MethodGet, "/specs", nil)
	require.NoError(t, err)
	require.Len(t, slept, 1)
	assert.Equal(t, 7*time.Second, slept[0])
}

func TestClient_ServerErrorsExhaustToTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	var slept []time.Duration
	c := newTestClient(server.URL, &slept)
	c.MaxAttempts = 2

	_, err := c.Do(context.Background(), http.MethodGet, "/specs", nil)

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, http.StatusBadGateway, transient.StatusCode)
	assert.Equal(t, 2, transient.Attempts)
}

func TestClient_ClientErrorFailsImmediately(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":{"message":"schema invalid"}}`))
	}))
	defer server.Close()

	var slept []time.Duration
	c := newTestClient(server.URL, &slept)

	_, err := c.Do(context.Background(), http.MethodPost, "/specs", map[string]string{"name": "x"})

	var rejected *RequestRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, http.StatusUnprocessableEntity, rejected.StatusCode)
	assert.Contains(t, string(rejected.Body), "schema invalid", "remote error body must surface verbatim")
	assert.Equal(t, 1, calls, "non-retryable errors must not be retried")
	assert.Empty(t, slept)
}

func TestClient_UnauthorizedMapsToAuthenticationError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	var slept []time.Duration
	c := newTestClient(server.URL, &slept)

	_, err := c.Do(context.Background(), http.MethodGet, "/specs", nil)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestClient_MissingAPIKey(t *testing.T) {
	c := NewClient("")
	_, err := c.Do(context.Background(), http.MethodGet, "/specs", nil)
	assert.ErrorIs(t, err, ErrAuthentication)
}

func TestClient_RequestBodyReplayedUnchanged(t *testing.T) {
	var bodies []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(buf))
		if len(bodies) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var slept []time.Duration
	c := newTestClient(server.URL, &slept)

	_, err := c.Do(context.Background(), http.MethodPost, "/specs", map[string]string{"name": "Refund API v1"})
	require.NoError(t, err)
	require.Len(t, bodies, 3)
	assert.Equal(t, bodies[0], bodies[1])
	assert.Equal(t, bodies[1], bodies[2])
}

func TestClient_OnRetryObservesAttempts(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	var slept []time.Duration
	c := newTestClient(server.URL, &slept)

	var observed []int
	c.OnRetry = func(status, attempt int, wait time.Duration) {
		observed = append(observed, status)
	}

	_, err := c.Do(context.Background(), http.MethodGet, "/specs", nil)
	require.NoError(t, err)
	assert.Equal(t, []int{http.StatusInternalServerError}, observed)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		status int
		want   retryClass
	}{
		{http.StatusOK, retryNone},
		{http.StatusCreated, retryNone},
		{http.StatusBadRequest, retryNone},
		{http.StatusNotFound, retryNone},
		{http.StatusTooManyRequests, retryRateLimit},
		{http.StatusInternalServerError, retryTransient},
		{http.StatusBadGateway, retryTransient},
		{http.StatusServiceUnavailable, retryTransient},
	}
	for _, tt := range tests {
		if got := classify(tt.status); got != tt.want {
			t.Errorf("classify(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestBackoffDelay_DoublesPerAttempt(t *testing.T) {
	base := time.Second
	prev := time.Duration(0)
	for attempt := 0; attempt < 5; attempt++ {
		d := backoffDelay(base, attempt)
		if d <= prev {
			t.Fatalf("delay for attempt %d (%s) not greater than previous (%s)", attempt, d, prev)
		}
		prev = d
	}
	assert.Equal(t, 4*time.Second, backoffDelay(base, 2))
}

func TestRetryAfterDelay(t *testing.T) {
	h := http.Header{}
	assert.Equal(t, time.Second, retryAfterDelay(h, time.Second))

	h.Set("Retry-After", "30")
	assert.Equal(t, 30*time.Second, retryAfterDelay(h, time.Second))

	h.Set("Retry-After", "not-a-number")
	assert.Equal(t, time.Second, retryAfterDelay(h, time.Second))
}

func TestClient_NetworkErrorRetries(t *testing.T) {
	// Point at a closed server so every attempt fails at the transport.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	var slept []time.Duration
	c := newTestClient(server.URL, &slept)
	c.MaxAttempts = 2

	_, err := c.Do(context.Background(), http.MethodGet, "/specs", nil)

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, 2, transient.Attempts)
	assert.True(t, errors.Unwrap(transient) != nil)
}
