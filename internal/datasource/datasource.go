// Package datasource provides the feature sources a layer draws from: vector
// files loaded into memory, SQLite tables and PostGIS queries.
package datasource

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"

	"geoexport/internal/geom"
)

// ErrUnknownType is returned by New for a type parameter it does not know.
var ErrUnknownType = errors.New("unknown datasource type")

// Query selects features by bounding box, in the layer's coordinates.
// ScaleDenominator and PixelWidth describe the frame being drawn; sources
// that template their SQL use them.
type Query struct {
	Box              orb.Bound
	ScaleDenominator float64
	PixelWidth       float64
}

// Datasource yields features for a layer.
type Datasource interface {
	Features(ctx context.Context, q Query) ([]geom.Feature, error)
	Envelope() orb.Bound
	Close() error
}

// Params are the string parameters of a stylesheet <Datasource>.
type Params map[string]string

// New opens the datasource described by p. Relative file paths resolve
// against the "base" parameter and then baseDir.
func New(ctx context.Context, p Params, baseDir string) (Datasource, error) {
	typ := strings.ToLower(p["type"])
	switch typ {
	case "geojson", "csv", "wkt":
		if inline := p["inline"]; inline != "" {
			c, err := parseInline(typ, inline)
			if err != nil {
				return nil, fmt.Errorf("%s datasource: %w", typ, err)
			}
			return NewMemory(c), nil
		}
		fallthrough
	case "kml", "ogr":
		path, err := p.file(baseDir)
		if err != nil {
			return nil, fmt.Errorf("%s datasource: %w", typ, err)
		}
		c, err := loadFile(typ, path)
		if err != nil {
			return nil, fmt.Errorf("%s datasource: %w", typ, err)
		}
		return NewMemory(c), nil
	case "sqlite":
		path, err := p.file(baseDir)
		if err != nil {
			return nil, fmt.Errorf("sqlite datasource: %w", err)
		}
		return OpenSQLite(ctx, path, p["table"], p["geometry_field"])
	case "postgis":
		return OpenPostGIS(ctx, p)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownType, p["type"])
}

func (p Params) file(baseDir string) (string, error) {
	f := p["file"]
	if f == "" {
		return "", errors.New("missing file parameter")
	}
	if b := p["base"]; b != "" && !filepath.IsAbs(f) {
		f = filepath.Join(b, f)
	}
	if !filepath.IsAbs(f) && baseDir != "" {
		f = filepath.Join(baseDir, f)
	}
	return f, nil
}

func parseInline(typ, data string) (geom.Collection, error) {
	switch typ {
	case "geojson":
		return geom.ParseGeoJSON([]byte(data))
	case "csv":
		return geom.ParseCSV(strings.NewReader(data))
	}
	return geom.ParseWKT(data)
}

func loadFile(typ, path string) (geom.Collection, error) {
	switch typ {
	case "geojson":
		return geom.LoadGeoJSON(path)
	case "csv":
		return geom.LoadCSV(path)
	case "kml":
		return geom.LoadKML(path)
	case "wkt":
		data, err := os.ReadFile(path)
		if err != nil {
			return geom.Collection{}, err
		}
		return geom.ParseWKT(string(data))
	}
	return geom.Load(path)
}
