package httpclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetryStrategy(t *testing.T) {
	tests := []struct {
		status int
		want   RetryStrategy
	}{
		{http.StatusTooManyRequests, SmartRetry},
		{http.StatusServiceUnavailable, SmartRetry},
		{http.StatusInternalServerError, ConservativeRetry},
		{http.StatusBadGateway, ConservativeRetry},
		{http.StatusBadRequest, NoRetry},
		{http.StatusUnauthorized, NoRetry},
		{http.StatusUnprocessableEntity, NoRetry},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DefaultRetryStrategy(tt.status), "status %d", tt.status)
	}
}

func TestClient_SuccessNoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New()
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RetriesServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(WithMaxRetries(3), WithBaseDelay(time.Millisecond))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(WithMaxRetries(3))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.Error(t, err)
	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, int32(1), calls.Load())
}

type closeCountingBody struct {
	io.ReadCloser
	closes *atomic.Int32
}

func (b *closeCountingBody) Close() error {
	b.closes.Add(1)
	return b.ReadCloser.Close()
}

type closeCountingTransport struct {
	base   http.RoundTripper
	closes atomic.Int32
}

func (tr *closeCountingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := tr.base.RoundTrip(req)
	if resp != nil {
		resp.Body = &closeCountingBody{ReadCloser: resp.Body, closes: &tr.closes}
	}
	return resp, err
}

func TestClient_ClosesAbandonedBodiesOnRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte("try again"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tr := &closeCountingTransport{base: http.DefaultTransport}
	c := New(WithMaxRetries(3), WithBaseDelay(time.Millisecond),
		WithRetryStrategy(func(int) RetryStrategy { return SmartRetry }),
		WithHTTPClient(&http.Client{Transport: tr}))
	req, err := http.NewRequest(http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := c.Do(req)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())

	// Every response body, including the two abandoned failures, is closed.
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(3), tr.closes.Load())
}

func TestParseOpenAIHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "7")
	h.Set("x-ratelimit-remaining-requests", "42")
	h.Set("x-ratelimit-remaining-tokens", "1000")

	info := ParseOpenAIHeaders(h)
	assert.Equal(t, 7*time.Second, info.RetryAfter)
	assert.Equal(t, 42, info.RequestsRemaining)
	assert.Equal(t, 1000, info.TokensRemaining)
}
