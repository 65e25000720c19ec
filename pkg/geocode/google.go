package geocode

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const googleGeocodeURL = "https://maps.googleapis.com/maps/api/geocode/json"

// googleGeocodeResponse is the JSON response from the Google Geocoding API.
type googleGeocodeResponse struct {
	Results []googleResult `json:"results"`
	Status  string         `json:"status"`
}

type googleResult struct {
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	FormattedAddress string `json:"formatted_address"`
}

// Resolve geocodes a single address. One request, no retries: timeouts,
// non-2xx statuses, and provider non-matches all collapse into an unmatched
// Result so a bad row never takes the batch down with it.
func (g *geocoder) Resolve(ctx context.Context, address string) (*Result, error) {
	unmatched := &Result{Address: address, Matched: false}

	if skipLookup(address) {
		zap.L().Debug("geocode: blank address, lookup skipped", zap.String("address", address))
		return unmatched, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "geocode: rate limit")
	}

	zap.L().Info("geocoding address", zap.String("address", address))

	params := url.Values{
		"address": {address},
		"key":     {g.apiKey},
	}
	if g.region != "" {
		params.Set("region", g.region)
	}
	if g.language != "" {
		params.Set("language", g.language)
	}

	reqURL := g.baseURL + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "geocode: build request")
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "geocode: request cancelled")
		}
		zap.L().Warn("geocode: request failed",
			zap.String("address", address),
			zap.Error(err),
		)
		return unmatched, nil
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		zap.L().Warn("geocode: unexpected status",
			zap.String("address", address),
			zap.Int("status", resp.StatusCode),
		)
		return unmatched, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		zap.L().Warn("geocode: read body", zap.String("address", address), zap.Error(err))
		return unmatched, nil
	}

	var parsed googleGeocodeResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		zap.L().Warn("geocode: parse response", zap.String("address", address), zap.Error(err))
		return unmatched, nil
	}

	if parsed.Status != "OK" || len(parsed.Results) == 0 {
		zap.L().Info("address not found",
			zap.String("address", address),
			zap.String("provider_status", parsed.Status),
		)
		return unmatched, nil
	}

	loc := parsed.Results[0].Geometry.Location
	zap.L().Info("address found",
		zap.String("address", address),
		zap.Float64("lat", loc.Lat),
		zap.Float64("lng", loc.Lng),
	)
	return &Result{
		Address:   address,
		Latitude:  loc.Lat,
		Longitude: loc.Lng,
		Matched:   true,
	}, nil
}
