// Package raster samples a categorical raster asset at point locations
// through a remote sampling service.
package raster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
)

const defaultBaseURL = "https://handsampler.irc-risk.dev"

// Sampler reads raster values at point features. Implementations must key
// every returned sample by the feature's id property; points the service
// cannot read simply produce no sample.
type Sampler interface {
	// EnsureSession verifies once per process that the configured project is
	// reachable. Safe to call repeatedly; later calls return the first
	// outcome.
	EnsureSession(ctx context.Context) error

	// SamplePoints samples the asset at every feature in the collection.
	SamplePoints(ctx context.Context, points *geojson.FeatureCollection) ([]Sample, error)
}

// Sample is one successfully sampled point.
type Sample struct {
	ID    int `json:"id"`
	Value int `json:"value"`
}

// Option configures the HTTP sampler.
type Option func(*httpSampler)

// WithBaseURL overrides the service endpoint (for testing).
func WithBaseURL(url string) Option {
	return func(s *httpSampler) {
		s.baseURL = url
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *httpSampler) {
		s.http = hc
	}
}

// WithBand selects the raster band carrying the category codes.
func WithBand(band string) Option {
	return func(s *httpSampler) {
		s.band = band
	}
}

// WithScale sets the sampling scale in meters.
func WithScale(scale int) Option {
	return func(s *httpSampler) {
		s.scale = scale
	}
}

type httpSampler struct {
	baseURL string
	project string
	asset   string
	band    string
	scale   int
	http    *http.Client

	sessionOnce sync.Once
	sessionErr  error
}

// NewHTTPSampler creates a Sampler bound to a project and raster asset.
func NewHTTPSampler(project, asset string, opts ...Option) Sampler {
	s := &httpSampler{
		baseURL: defaultBaseURL,
		project: project,
		asset:   asset,
		band:    "b1",
		scale:   30,
		http:    &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureSession probes the project endpoint exactly once. An unreachable
// project is a configuration error, so callers check this before doing any
// row work.
func (s *httpSampler) EnsureSession(ctx context.Context) error {
	s.sessionOnce.Do(func() {
		reqURL := fmt.Sprintf("%s/v1/projects/%s", s.baseURL, s.project)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			s.sessionErr = eris.Wrap(err, "raster: build session request")
			return
		}

		resp, err := s.http.Do(req)
		if err != nil {
			s.sessionErr = eris.Wrapf(err, "raster: project %q unreachable", s.project)
			return
		}
		defer resp.Body.Close() //nolint:errcheck

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			s.sessionErr = eris.Errorf("raster: project %q returned status %d: %s", s.project, resp.StatusCode, string(body))
			return
		}

		zap.L().Info("raster session established", zap.String("project", s.project))
	})
	return s.sessionErr
}

type sampleRequest struct {
	Asset  string                     `json:"asset"`
	Band   string                     `json:"band"`
	Scale  int                        `json:"scale"`
	Points *geojson.FeatureCollection `json:"points"`
}

type sampleResponse struct {
	Samples []Sample `json:"samples"`
}

// SamplePoints submits the point collection and returns one sample per point
// the service could read. One request, no retries: a sampling failure fails
// the whole run.
func (s *httpSampler) SamplePoints(ctx context.Context, points *geojson.FeatureCollection) ([]Sample, error) {
	if points == nil || len(points.Features) == 0 {
		return nil, nil
	}

	if err := s.EnsureSession(ctx); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(sampleRequest{
		Asset:  s.asset,
		Band:   s.band,
		Scale:  s.scale,
		Points: points,
	})
	if err != nil {
		return nil, eris.Wrap(err, "raster: marshal sample request")
	}

	reqURL := fmt.Sprintf("%s/v1/projects/%s/image:sample", s.baseURL, s.project)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "raster: build sample request")
	}
	req.Header.Set("Content-Type", "application/json")

	zap.L().Info("sampling raster",
		zap.String("asset", s.asset),
		zap.Int("points", len(points.Features)),
	)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "raster: sample request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "raster: read sample response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, eris.Errorf("raster: sample returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed sampleResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "raster: parse sample response")
	}

	zap.L().Info("raster sampled",
		zap.Int("points", len(points.Features)),
		zap.Int("samples", len(parsed.Samples)),
	)
	return parsed.Samples, nil
}
