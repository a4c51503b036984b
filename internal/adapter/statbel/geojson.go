// Package statbel reads the Statbel statistical sector boundaries, a zipped
// GeoJSON FeatureCollection, and dissolves them into municipalities and regions.
package statbel

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/couchcryptid/covid-map-etl/internal/domain"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Fields names the feature properties used as dissolve keys. An empty name
// disables that grouping.
type Fields struct {
	Code   string
	Region string
}

// DecodeStats counts the features seen by DecodeFeatures.
type DecodeStats struct {
	Features        int
	MissingGeometry int
}

type featureCollection struct {
	Type     string    `json:"type"`
	Features []feature `json:"features"`
}

type feature struct {
	Type       string          `json:"type"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

// ExtractGeoJSON returns the first regular *.geojson file in a zip archive
// and its name inside the archive.
func ExtractGeoJSON(archive []byte) ([]byte, string, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, "", fmt.Errorf("open zip: %w", err)
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.EqualFold(path.Ext(f.Name), ".geojson") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, "", fmt.Errorf("open %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, "", fmt.Errorf("read %s: %w", f.Name, err)
		}
		return data, f.Name, nil
	}
	return nil, "", errors.New("no .geojson entry in zip archive")
}

// DecodeFeatures decodes a FeatureCollection into sector features keyed by the
// configured properties. A missing or null property leaves that key empty, so
// the feature takes no part in that grouping. Features with a null geometry
// are skipped.
func DecodeFeatures(r io.Reader, fields Fields) ([]domain.SectorFeature, DecodeStats, error) {
	var stats DecodeStats

	dec := json.NewDecoder(r)
	dec.UseNumber()
	var fc featureCollection
	if err := dec.Decode(&fc); err != nil {
		return nil, stats, fmt.Errorf("decode feature collection: %w", err)
	}
	if fc.Type != "FeatureCollection" {
		return nil, stats, fmt.Errorf("expected FeatureCollection, got %q", fc.Type)
	}

	out := make([]domain.SectorFeature, 0, len(fc.Features))
	for i, f := range fc.Features {
		stats.Features++
		raw := bytes.TrimSpace(f.Geometry)
		if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
			stats.MissingGeometry++
			continue
		}
		var g geom.T
		if err := geojson.Unmarshal(raw, &g); err != nil {
			return nil, stats, fmt.Errorf("feature %d geometry: %w", i, err)
		}

		sf := domain.SectorFeature{Geometry: g}
		if v := property(f.Properties, fields.Code); v != nil {
			code, err := domain.NormalizeCode(v)
			if err != nil {
				return nil, stats, fmt.Errorf("feature %d: %w", i, err)
			}
			sf.Code = code
		}
		if v := property(f.Properties, fields.Region); v != nil {
			name, ok := v.(string)
			if !ok {
				return nil, stats, fmt.Errorf("feature %d: property %s is %T, want string", i, fields.Region, v)
			}
			sf.Region = name
		}
		out = append(out, sf)
	}
	return out, stats, nil
}

func property(props map[string]any, name string) any {
	if name == "" || props == nil {
		return nil
	}
	return props[name]
}

// EncodeMunicipalities writes dissolved municipality boundaries as a
// FeatureCollection with the code stored under codeField.
func EncodeMunicipalities(records []domain.GeometryRecord, codeField string) ([]byte, error) {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(records))}
	for _, r := range records {
		f, err := newFeature(r.Boundary, codeField, string(r.Code))
		if err != nil {
			return nil, fmt.Errorf("municipality %s: %w", r.Code, err)
		}
		fc.Features = append(fc.Features, f)
	}
	return json.Marshal(fc)
}

// EncodeRegions writes dissolved region boundaries as a FeatureCollection with
// the name stored under regionField.
func EncodeRegions(records []domain.RegionRecord, regionField string) ([]byte, error) {
	fc := featureCollection{Type: "FeatureCollection", Features: make([]feature, 0, len(records))}
	for _, r := range records {
		f, err := newFeature(r.Boundary, regionField, r.Name)
		if err != nil {
			return nil, fmt.Errorf("region %s: %w", r.Name, err)
		}
		fc.Features = append(fc.Features, f)
	}
	return json.Marshal(fc)
}

func newFeature(g geom.T, key, value string) (feature, error) {
	raw, err := geojson.Marshal(g)
	if err != nil {
		return feature{}, err
	}
	return feature{
		Type:       "Feature",
		Properties: map[string]any{key: value},
		Geometry:   raw,
	}, nil
}
