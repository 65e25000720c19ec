package geocode

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve_Match(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "Av. Paulista, 1578, São Paulo", q.Get("address"))
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Equal(t, "br", q.Get("region"))
		assert.Equal(t, "pt-BR", q.Get("language"))

		okResponse(w, -23.5614, -46.6559)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	result, err := c.Resolve(context.Background(), "Av. Paulista, 1578, São Paulo")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.InDelta(t, -23.5614, result.Latitude, 0.0001)
	assert.InDelta(t, -46.6559, result.Longitude, 0.0001)
	assert.Equal(t, "Av. Paulista, 1578, São Paulo", result.Address)
}

func TestResolve_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"status": "ZERO_RESULTS", "results": []}`)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	result, err := c.Resolve(context.Background(), "000 Nonexistent, Nowhere")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestResolve_ProviderErrorStatus(t *testing.T) {
	// A provider failure is absorbed into an unmatched result, never an
	// error that could abort sibling lookups.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient("bad-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	result, err := c.Resolve(context.Background(), "Rua A, 123")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestResolve_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {}))
	srv.Close() // connection refused from here on

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	result, err := c.Resolve(context.Background(), "Rua A, 123")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestResolve_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{not json`)
	}))
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	result, err := c.Resolve(context.Background(), "Rua A, 123")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestResolve_ShortCircuit(t *testing.T) {
	counting := &countingHandler{handler: func(w http.ResponseWriter, _ *http.Request) {
		okResponse(w, 1, 1)
	}}
	srv := httptest.NewServer(counting)
	defer srv.Close()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	for _, addr := range []string{"", "nan", "NaN", "NAN"} {
		result, err := c.Resolve(context.Background(), addr)
		require.NoError(t, err)
		assert.False(t, result.Matched, "address %q", addr)
	}

	assert.Equal(t, int64(0), counting.calls.Load(), "short-circuited addresses must not reach the provider")
}

func TestResolve_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		okResponse(w, 1, 1)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("test-key", WithBaseURL(srv.URL), WithRateLimit(1000))

	_, err := c.Resolve(ctx, "Rua A, 123")
	assert.Error(t, err)
}

func TestSkipLookup(t *testing.T) {
	tests := []struct {
		address string
		skip    bool
	}{
		{"", true},
		{"nan", true},
		{"NaN", true},
		{"NAN", true},
		{"Rua A, 123", false},
		{"nantes", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.skip, skipLookup(tt.address), "address=%q", tt.address)
	}
}
