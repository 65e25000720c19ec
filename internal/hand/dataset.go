// Package hand builds flood-risk reports: it geocodes address tables, samples
// the HAND raster at every resolved point, and joins the sampled categories
// back onto the original rows.
package hand

import (
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/irc-risk/hand-cli/internal/table"
	"github.com/irc-risk/hand-cli/pkg/geocode"
)

// PointRecord pairs a row id with its geocoded coordinate, or marks the row
// missing when geocoding produced none. The id is the join key for every
// later stage.
type PointRecord struct {
	ID        int
	Latitude  float64
	Longitude float64
	Missing   bool
}

// BuildPoints derives one PointRecord per row from positionally aligned
// geocode results.
func BuildPoints(rows []table.Row, results []geocode.Result) ([]PointRecord, error) {
	if len(rows) != len(results) {
		return nil, eris.Errorf("hand: %d rows but %d geocode results", len(rows), len(results))
	}
	records := make([]PointRecord, len(rows))
	for i, row := range rows {
		rec := PointRecord{ID: row.ID, Missing: !results[i].Matched}
		if results[i].Matched {
			rec.Latitude = results[i].Latitude
			rec.Longitude = results[i].Longitude
		}
		records[i] = rec
	}
	return records, nil
}

// ValidPoints returns only the records with a resolved coordinate. This is
// the exact subset submitted for raster sampling.
func ValidPoints(records []PointRecord) []PointRecord {
	var valid []PointRecord
	for _, r := range records {
		if !r.Missing {
			valid = append(valid, r)
		}
	}
	return valid
}

// FeatureCollection converts records to GeoJSON point features keyed by row
// id. Geometry coordinates are longitude first; missing records are left out.
func FeatureCollection(records []PointRecord) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{}
	for _, r := range records {
		if r.Missing {
			continue
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			Geometry:   geom.NewPointFlat(geom.XY, []float64{r.Longitude, r.Latitude}),
			Properties: map[string]interface{}{"id": r.ID},
		})
	}
	return fc
}

// PointsFromFeatures recovers records from a point feature collection. The
// round trip through GeoJSON preserves ids and coordinates.
func PointsFromFeatures(fc *geojson.FeatureCollection) ([]PointRecord, error) {
	if fc == nil {
		return nil, nil
	}
	records := make([]PointRecord, 0, len(fc.Features))
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(*geom.Point)
		if !ok {
			return nil, eris.Errorf("hand: feature geometry is %T, want point", f.Geometry)
		}
		id, err := featureID(f.Properties)
		if err != nil {
			return nil, err
		}
		records = append(records, PointRecord{
			ID:        id,
			Longitude: pt.Coords()[0],
			Latitude:  pt.Coords()[1],
		})
	}
	return records, nil
}

// featureID reads the id property, tolerating the float64 that JSON decoding
// produces for numbers.
func featureID(props map[string]interface{}) (int, error) {
	v, ok := props["id"]
	if !ok {
		return 0, eris.New("hand: feature has no id property")
	}
	switch id := v.(type) {
	case int:
		return id, nil
	case float64:
		return int(id), nil
	default:
		return 0, eris.Errorf("hand: feature id is %T, want number", v)
	}
}
