// Package carto renders stylesheet-driven maps into raster images.
//
// A Map is sized in pixels, loads a stylesheet with its layers and
// datasources, and is framed with ZoomToBox before calling Render. A Map is
// not safe for concurrent use.
package carto

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"golang.org/x/image/font"

	"geoexport/internal/ctxlog"
	"geoexport/internal/datasource"
	"geoexport/internal/geom"
	"geoexport/internal/style"
)

// Pixel size in metres assumed by the scale denominator (OGC 0.28mm).
const pixelSize = 0.00028

// metresPerDegree at the equator of the spherical earth.
const metresPerDegree = 6378137 * 2 * math.Pi / 360

type Map struct {
	width, height int
	srs           string
	proj          *Projection
	style         *style.Map
	layers        []*mapLayer
	extent        Box
	images        map[string]image.Image
	faces         map[float64]font.Face
}

// mapLayer is a stylesheet layer with its datasource opened and styles resolved.
type mapLayer struct {
	*style.Layer
	proj   *Projection
	toMap  orb.Projection
	toData orb.Projection
	ds     datasource.Datasource
	styles []*style.Style
}

// NewMap creates an empty map of w by h pixels in geographic coordinates.
func NewMap(w, h int) *Map {
	m := &Map{width: w, height: h, images: map[string]image.Image{}}
	m.srs = style.DefaultSRS
	m.proj, _ = NewProjection(m.srs)
	return m
}

func (m *Map) Width() int  { return m.width }
func (m *Map) Height() int { return m.height }

// Resize changes the pixel size and re-fits the current extent.
func (m *Map) Resize(w, h int) {
	m.width, m.height = w, h
	m.fixAspect()
}

func (m *Map) SRS() string             { return m.srs }
func (m *Map) Projection() *Projection { return m.proj }
func (m *Map) Extent() Box             { return m.extent }
func (m *Map) Style() *style.Map       { return m.style }

// Background is the fill colour; transparent when the stylesheet sets none.
func (m *Map) Background() color.NRGBA {
	if m.style == nil {
		return color.NRGBA{}
	}
	return m.style.Background
}

func (m *Map) BufferSize() int {
	if m.style == nil {
		return 0
	}
	return m.style.BufferSize
}

// Layers returns the names of the loaded layers in drawing order.
func (m *Map) Layers() []string {
	out := make([]string, len(m.layers))
	for i, l := range m.layers {
		out[i] = l.Name
	}
	return out
}

// Load reads a stylesheet and opens its datasources.
func (m *Map) Load(path string) error {
	return m.LoadContext(context.Background(), path)
}

// LoadContext is Load with a context for datasource connections and logging.
func (m *Map) LoadContext(ctx context.Context, path string) error {
	sm, err := style.Load(path)
	if err != nil {
		return err
	}
	return m.Apply(ctx, sm)
}

// Apply binds an already parsed stylesheet to the map, replacing any layers
// loaded before.
func (m *Map) Apply(ctx context.Context, sm *style.Map) error {
	logger := ctxlog.FromContext(ctx)

	proj, err := NewProjection(sm.SRS)
	if err != nil {
		return fmt.Errorf("map srs: %w", err)
	}
	for _, u := range sm.Unsupported {
		logger.Warn("Symbolizer is not supported and will not be drawn.", "symbolizer", u)
	}

	layers := make([]*mapLayer, 0, len(sm.Layers))
	fail := func(err error) error {
		for _, l := range layers {
			if l.ds != nil {
				l.ds.Close()
			}
		}
		return err
	}
	for _, l := range sm.Layers {
		lp, err := NewProjection(l.SRS)
		if err != nil {
			return fail(fmt.Errorf("layer %q: %w", l.Name, err))
		}
		ml := &mapLayer{Layer: l, proj: lp, toMap: transform(lp, proj), toData: transform(proj, lp)}
		for _, name := range l.StyleNames {
			s, ok := sm.Styles[name]
			if !ok {
				logger.Warn("Layer references an unknown style.", "layer", l.Name, "style", name)
				continue
			}
			ml.styles = append(ml.styles, s)
		}
		if len(l.Datasource) == 0 {
			logger.Warn("Layer has no datasource.", "layer", l.Name)
		} else {
			ml.ds, err = datasource.New(ctx, datasource.Params(l.Datasource), sm.Dir)
			if err != nil {
				return fail(fmt.Errorf("layer %q: %w", l.Name, err))
			}
		}
		layers = append(layers, ml)
		logger.Debug("Layer loaded.", "layer", l.Name, "srs", l.SRS, "styles", len(ml.styles))
	}

	m.Close()
	m.style, m.srs, m.proj, m.layers = sm, sm.SRS, proj, layers
	m.images = map[string]image.Image{}
	return nil
}

// Close releases datasource connections.
func (m *Map) Close() error {
	var errs []error
	for _, l := range m.layers {
		if l.ds != nil {
			errs = append(errs, l.ds.Close())
		}
	}
	m.layers = nil
	return errors.Join(errs...)
}

// LayerEnvelope returns the union of the layer envelopes in map coordinates.
func (m *Map) LayerEnvelope() (Box, bool) {
	var (
		out Box
		ok  bool
	)
	for _, l := range m.layers {
		if l.ds == nil {
			continue
		}
		b := transformBox(BoxFromBound(l.ds.Envelope()), l.toMap)
		if !ok {
			out, ok = b, true
			continue
		}
		out = NewBox(math.Min(out.MinX, b.MinX), math.Min(out.MinY, b.MinY), math.Max(out.MaxX, b.MaxX), math.Max(out.MaxY, b.MaxY))
	}
	return out, ok
}

// ZoomToBox frames b, growing it around its centre to the map's aspect ratio.
func (m *Map) ZoomToBox(b Box) {
	m.extent = b
	m.fixAspect()
}

func (m *Map) fixAspect() {
	w, h := m.extent.Width(), m.extent.Height()
	if w <= 0 || h <= 0 || m.width <= 0 || m.height <= 0 {
		return
	}
	want := float64(m.width) / float64(m.height)
	got := w / h
	c := m.extent.Center()
	switch {
	case got > want:
		h = w / want
	case got < want:
		w = h * want
	default:
		return
	}
	m.extent = Box{MinX: c.X - w/2, MinY: c.Y - h/2, MaxX: c.X + w/2, MaxY: c.Y + h/2}
}

// Scale is the size of one pixel in map units.
func (m *Map) Scale() float64 {
	if m.width <= 0 {
		return 0
	}
	return m.extent.Width() / float64(m.width)
}

// ScaleDenominator follows the OGC convention of 0.28mm pixels.
func (m *Map) ScaleDenominator() float64 {
	d := m.Scale() / pixelSize
	if m.proj.Geographic() {
		d *= metresPerDegree
	}
	return d
}

// ToPixel converts map coordinates to image coordinates.
func (m *Map) ToPixel(c Coord) (x, y float64) {
	s := m.Scale()
	if s == 0 {
		return 0, 0
	}
	return (c.X - m.extent.MinX) / s, (m.extent.MaxY - c.Y) / s
}

// FromPixel converts image coordinates to map coordinates.
func (m *Map) FromPixel(x, y float64) Coord {
	return Coord{
		X: m.extent.MinX + x*m.Scale(),
		Y: m.extent.MaxY - y*m.Scale(),
	}
}

// LayerFeatures are the features a layer contributes to the current extent,
// in map coordinates.
type LayerFeatures struct {
	Name     string
	Visible  bool
	Features []geom.Feature
}

// Snapshot queries every layer for the current extent.
func (m *Map) Snapshot(ctx context.Context) ([]LayerFeatures, error) {
	if !m.extent.Valid() {
		return nil, nil
	}
	sd := m.ScaleDenominator()
	out := make([]LayerFeatures, 0, len(m.layers))
	for _, l := range m.layers {
		fs, err := m.query(ctx, l)
		if err != nil {
			return nil, err
		}
		out = append(out, LayerFeatures{Name: l.Name, Visible: l.VisibleAt(sd), Features: fs})
	}
	return out, nil
}

// query fetches the features of l inside the buffered extent, reprojected to
// map coordinates.
func (m *Map) query(ctx context.Context, l *mapLayer) ([]geom.Feature, error) {
	if l.ds == nil {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	box := transformBox(m.extent.Pad(float64(m.BufferSize())*m.Scale()), l.toData)
	q := datasource.Query{Box: box.Bound(), ScaleDenominator: m.ScaleDenominator()}
	if m.width > 0 {
		q.PixelWidth = box.Width() / float64(m.width)
	}
	fs, err := l.ds.Features(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("layer %q: %w", l.Name, err)
	}
	if l.toMap == nil {
		return fs, nil
	}
	out := make([]geom.Feature, len(fs))
	for i, f := range fs {
		f.Geometry = project.Geometry(orb.Clone(f.Geometry), l.toMap)
		out[i] = f
	}
	return out, nil
}
