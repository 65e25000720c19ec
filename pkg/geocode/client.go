// Package geocode resolves street addresses to coordinates through the
// Google Geocoding API under a shared rate limit.
package geocode

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client geocodes addresses one at a time or as an order-preserving batch.
type Client interface {
	// Resolve geocodes a single address. Provider failures and non-matches
	// are not errors; they come back as an unmatched Result. The returned
	// error is reserved for context cancellation.
	Resolve(ctx context.Context, address string) (*Result, error)

	// ResolveAll geocodes every address. The returned slice has the same
	// length as the input and result[i] corresponds to addresses[i]
	// regardless of completion order.
	ResolveAll(ctx context.Context, addresses []string) ([]Result, error)
}

// Result holds the geocoding output for one address.
type Result struct {
	Address   string // input address, carried for logging only
	Latitude  float64
	Longitude float64
	Matched   bool
}

// Option configures the geocoder.
type Option func(*geocoder)

// WithBaseURL overrides the provider endpoint (for testing).
func WithBaseURL(url string) Option {
	return func(g *geocoder) {
		g.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(g *geocoder) {
		g.httpClient = hc
	}
}

// WithRateLimit sets the requests-per-second limit shared by all lookups.
func WithRateLimit(rps float64) Option {
	return func(g *geocoder) {
		g.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRegion sets the provider region bias hint.
func WithRegion(region string) Option {
	return func(g *geocoder) {
		g.region = region
	}
}

// WithLanguage sets the provider response language hint.
func WithLanguage(language string) Option {
	return func(g *geocoder) {
		g.language = language
	}
}

// WithSerialMode switches ResolveAll to one request at a time with a fixed
// delay between requests, for providers whose terms forbid concurrent use.
// The delay replaces the token-bucket limiter.
func WithSerialMode(delay time.Duration) Option {
	return func(g *geocoder) {
		g.serial = true
		g.serialDelay = delay
		g.limiter = rate.NewLimiter(rate.Inf, 1)
	}
}

// WithBatchConcurrency bounds the number of in-flight lookups in concurrent
// mode. Zero means one task per address.
func WithBatchConcurrency(n int) Option {
	return func(g *geocoder) {
		if n > 0 {
			g.concurrency = n
		}
	}
}

type geocoder struct {
	httpClient  *http.Client
	apiKey      string
	baseURL     string
	region      string
	language    string
	limiter     *rate.Limiter
	serial      bool
	serialDelay time.Duration
	concurrency int
}

// NewClient creates a geocoding Client for the given API key.
func NewClient(apiKey string, opts ...Option) Client {
	g := &geocoder{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		apiKey:      apiKey,
		baseURL:     googleGeocodeURL,
		region:      "br",
		language:    "pt-BR",
		limiter:     rate.NewLimiter(1, 1),
		serialDelay: time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// skipLookup reports whether the address is the empty string or the textual
// null marker and must not reach the provider at all.
func skipLookup(address string) bool {
	return address == "" || strings.EqualFold(address, "nan")
}
