package geom

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/paulmach/orb/geojson"
)

// LoadGeoJSON reads a GeoJSON file.
func LoadGeoJSON(path string) (Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Collection{}, err
	}
	return ParseGeoJSON(data)
}

// ParseGeoJSON accepts a FeatureCollection, a single Feature or a bare geometry.
func ParseGeoJSON(data []byte) (Collection, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Collection{}, err
	}
	var c Collection
	switch head.Type {
	case "":
		return Collection{}, errors.New("invalid geojson: missing type")
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return Collection{}, err
		}
		for _, f := range fc.Features {
			c.Add(f.Geometry, f.Properties)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return Collection{}, err
		}
		c.Add(f.Geometry, f.Properties)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return Collection{}, err
		}
		c.Add(g.Geometry(), nil)
	}
	return c, nil
}
