package carto

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// ErrUnsupportedProjection is returned for projection strings other than
// spherical Mercator and geographic WGS84.
var ErrUnsupportedProjection = errors.New("unsupported projection")

// MaxLatitude is the latitude at which spherical Mercator becomes square.
const MaxLatitude = 85.0511287798066

// Projection converts between geographic coordinates and a map's coordinate system.
type Projection struct {
	srs        string
	geographic bool
}

// NewProjection parses a proj4 style definition or an EPSG code.
func NewProjection(srs string) (*Projection, error) {
	def := strings.ToLower(strings.Join(strings.Fields(srs), " "))
	params := map[string]string{}
	for _, f := range strings.Fields(def) {
		k, v, _ := strings.Cut(strings.TrimPrefix(f, "+"), "=")
		params[k] = v
	}

	code := params["init"]
	if strings.HasPrefix(def, "epsg:") {
		code = def
	}
	switch code {
	case "epsg:3857", "epsg:900913", "epsg:3785":
		return &Projection{srs: srs}, nil
	case "epsg:4326":
		return &Projection{srs: srs, geographic: true}, nil
	case "":
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProjection, srs)
	}

	switch params["proj"] {
	case "longlat", "latlong", "lonlat", "latlon":
		return &Projection{srs: srs, geographic: true}, nil
	case "merc":
		if (params["a"] == "6378137" && params["b"] == "6378137") || params["r"] == "6378137" {
			return &Projection{srs: srs}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedProjection, srs)
}

func (p *Projection) String() string { return p.srs }

// Geographic reports whether map units are degrees.
func (p *Projection) Geographic() bool { return p.geographic }

// Forward converts longitude/latitude to map coordinates.
func (p *Projection) Forward(c Coord) Coord {
	if p.geographic {
		return c
	}
	return toCoord(toMercator(orb.Point{c.X, c.Y}))
}

// Inverse converts map coordinates to longitude/latitude.
func (p *Projection) Inverse(c Coord) Coord {
	if p.geographic {
		return c
	}
	return toCoord(project.Mercator.ToWGS84(orb.Point{c.X, c.Y}))
}

func toCoord(pt orb.Point) Coord { return Coord{X: pt.X(), Y: pt.Y()} }

func toMercator(pt orb.Point) orb.Point {
	pt[1] = math.Max(-MaxLatitude, math.Min(MaxLatitude, pt[1]))
	return project.WGS84.ToMercator(pt)
}

// transform returns the orb projection from src to dst coordinates, or nil
// when both share a coordinate system.
func transform(src, dst *Projection) orb.Projection {
	switch {
	case src.geographic == dst.geographic:
		return nil
	case src.geographic:
		return toMercator
	}
	return project.Mercator.ToWGS84
}

// transformBox maps a box through f. Both supported projections are monotonic
// in each axis, so the corners are enough.
func transformBox(b Box, f orb.Projection) Box {
	if f == nil {
		return b
	}
	lo := f(orb.Point{b.MinX, b.MinY})
	hi := f(orb.Point{b.MaxX, b.MaxY})
	return NewBox(lo.X(), lo.Y(), hi.X(), hi.Y())
}
