// Package export renders a stylesheet over a geographic bounding box into a
// PNG file named after the stylesheet.
package export

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"geoexport/internal/carto"
	"geoexport/internal/ctxlog"
)

const (
	WidthPerZoom  = 500
	HeightPerZoom = 1000

	MinZoom     = 1
	MaxZoom     = 18
	DefaultZoom = 7
)

// MercatorSRS is the spherical Mercator definition the bounding box is projected with.
const MercatorSRS = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs +over"

var (
	ErrInvalidZoom    = errors.New("zoom out of range")
	ErrMissingMapfile = errors.New("mapfile is required")
)

// BBox is west, south, east, north in WGS84 degrees. It is passed through unchecked.
type BBox [4]float64

func (b BBox) West() float64  { return b[0] }
func (b BBox) South() float64 { return b[1] }
func (b BBox) East() float64  { return b[2] }
func (b BBox) North() float64 { return b[3] }

func (b BBox) String() string {
	return fmt.Sprintf("%g,%g,%g,%g", b[0], b[1], b[2], b[3])
}

// ParseBBox reads four comma separated numbers: west,south,east,north.
func ParseBBox(s string) (BBox, error) {
	var b BBox
	parts := strings.Split(s, ",")
	if len(parts) != len(b) {
		return b, fmt.Errorf("bbox needs 4 values, got %d", len(parts))
	}
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return b, fmt.Errorf("bbox value %q: %w", p, err)
		}
		b[i] = v
	}
	return b, nil
}

// Project forward-projects the south-west and north-east corners into
// spherical Mercator metres.
func (b BBox) Project() (carto.Box, error) {
	proj, err := carto.NewProjection(MercatorSRS)
	if err != nil {
		return carto.Box{}, err
	}
	lo := proj.Forward(carto.Coord{X: b.West(), Y: b.South()})
	hi := proj.Forward(carto.Coord{X: b.East(), Y: b.North()})
	return carto.NewBox(lo.X, lo.Y, hi.X, hi.Y), nil
}

// Params are the inputs of one export.
type Params struct {
	Mapfile string
	Zoom    int
	BBox    BBox
}

// Validate checks the mapfile and zoom. The bounding box is never validated.
func (p Params) Validate() error {
	if p.Mapfile == "" {
		return ErrMissingMapfile
	}
	if p.Zoom < MinZoom || p.Zoom > MaxZoom {
		return fmt.Errorf("%w: %d not in [%d,%d]", ErrInvalidZoom, p.Zoom, MinZoom, MaxZoom)
	}
	return nil
}

// OutputPath is everything in mapfile before its first "." followed by ".png".
// "./maps/x.xml" therefore yields ".png".
func OutputPath(mapfile string) string {
	stem, _, _ := strings.Cut(mapfile, ".")
	return stem + ".png"
}

// Dimensions returns the image size for zoom.
func Dimensions(zoom int) (w, h int) {
	return WidthPerZoom * zoom, HeightPerZoom * zoom
}

// Result describes a finished export.
type Result struct {
	Output  string
	Width   int
	Height  int
	Extent  carto.Box
	Elapsed time.Duration
}

// Frame loads the stylesheet into a map of the zoom's size and frames the
// projected bounding box. The caller owns the returned map.
func Frame(ctx context.Context, p Params) (*carto.Map, error) {
	logger := ctxlog.FromContext(ctx)
	w, h := Dimensions(p.Zoom)

	m := carto.NewMap(w, h)
	if err := m.LoadContext(ctx, p.Mapfile); err != nil {
		return nil, fmt.Errorf("load %s: %w", p.Mapfile, err)
	}
	logger.Debug("Stylesheet loaded.", "mapfile", p.Mapfile, "layers", len(m.Layers()), "srs", m.SRS())

	box, err := p.BBox.Project()
	if err != nil {
		m.Close()
		return nil, err
	}
	logger.Debug("Bounding box projected.", "bbox", p.BBox.String(), "projected", box.String())

	m.ZoomToBox(box)
	logger.Debug("Map framed.", "extent", m.Extent().String(), "scale_denominator", m.ScaleDenominator())
	return m, nil
}

// Run performs one export: load, project, frame, render and save.
func Run(ctx context.Context, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}
	logger := ctxlog.FromContext(ctx)
	start := time.Now()

	m, err := Frame(ctx, p)
	if err != nil {
		return Result{}, err
	}
	defer m.Close()

	img := carto.NewImage(m.Width(), m.Height())
	if err := carto.Render(ctx, m, img); err != nil {
		return Result{}, fmt.Errorf("render: %w", err)
	}

	out := OutputPath(p.Mapfile)
	if err := img.View(0, 0, m.Width(), m.Height()).Save(out, "png"); err != nil {
		return Result{}, err
	}
	res := Result{
		Output:  out,
		Width:   m.Width(),
		Height:  m.Height(),
		Extent:  m.Extent(),
		Elapsed: time.Since(start),
	}
	logger.Info("Map exported.", "output", res.Output, "width", res.Width, "height", res.Height, "duration", res.Elapsed)
	return res, nil
}
