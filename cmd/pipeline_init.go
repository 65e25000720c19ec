package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/irc-risk/hand-cli/internal/hand"
	"github.com/irc-risk/hand-cli/internal/store"
	"github.com/irc-risk/hand-cli/pkg/geocode"
	"github.com/irc-risk/hand-cli/pkg/raster"
)

// pipelineEnv holds the initialized store, provider clients, and the
// pipeline shared by the run and serve commands.
type pipelineEnv struct {
	Store    store.Store
	Pipeline *hand.Pipeline
	Geocoder geocode.Client
	Sampler  raster.Sampler
}

// Close releases resources held by the pipeline environment.
func (pe *pipelineEnv) Close() {
	if pe.Store != nil {
		_ = pe.Store.Close()
	}
}

// initPipeline validates the configuration for the given mode, opens the
// store, builds the geocoder and raster sampler, and probes the sampling
// project so an unreachable project fails here instead of mid-run. Callers
// should defer env.Close().
func initPipeline(ctx context.Context, mode, project string) (*pipelineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	gcOpts := []geocode.Option{
		geocode.WithBaseURL(cfg.Geocoder.BaseURL),
		geocode.WithRateLimit(cfg.Geocoder.RatePerSec),
		geocode.WithRegion(cfg.Geocoder.Region),
		geocode.WithLanguage(cfg.Geocoder.Language),
		geocode.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Geocoder.TimeoutSecs) * time.Second}),
	}
	if cfg.Geocoder.Mode == "serial" {
		delay := time.Duration(cfg.Geocoder.SerialDelayMS) * time.Millisecond
		gcOpts = append(gcOpts, geocode.WithSerialMode(delay))
		zap.L().Info("serial geocoding enabled", zap.Duration("delay", delay))
	}
	geocoder := geocode.NewClient(cfg.Geocoder.APIKey, gcOpts...)

	sampler := raster.NewHTTPSampler(project, cfg.Sampler.Asset,
		raster.WithBaseURL(cfg.Sampler.BaseURL),
		raster.WithBand(cfg.Sampler.Band),
		raster.WithScale(cfg.Sampler.Scale),
		raster.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Sampler.TimeoutSecs) * time.Second}),
	)
	if err := sampler.EnsureSession(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "raster session")
	}

	var cats *hand.Categories
	if cfg.Categories.File != "" {
		cats, err = hand.LoadCategories(cfg.Categories.File)
		if err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "load category labels")
		}
		zap.L().Info("category labels loaded", zap.String("file", cfg.Categories.File))
	}

	p := hand.New(cfg, st, geocoder, sampler, cats)

	return &pipelineEnv{
		Store:    st,
		Pipeline: p,
		Geocoder: geocoder,
		Sampler:  sampler,
	}, nil
}
