package carto

import (
	"context"
	"image/color"
	"log/slog"
	"math"
	"time"

	"github.com/fogleman/gg"
	"github.com/paulmach/orb"

	"geoexport/internal/ctxlog"
	"geoexport/internal/geom"
	"geoexport/internal/style"
)

// Render draws m at its current extent into img. Layers are drawn in order,
// each style over every feature, and the labels of a layer after its geometry.
func Render(ctx context.Context, m *Map, img *Image) error {
	logger := ctxlog.FromContext(ctx)
	dc := gg.NewContextForRGBA(img.RGBA())
	dc.SetColor(m.Background())
	dc.Clear()

	if !m.extent.Valid() {
		logger.Debug("Extent is empty, drawing background only.", "extent", m.extent)
		return nil
	}

	r := &renderer{
		m:      m,
		dc:     dc,
		sd:     m.ScaleDenominator(),
		logger: logger,
		bounds: rect{0, 0, float64(img.Width()), float64(img.Height())},
	}
	for _, l := range m.layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !l.VisibleAt(r.sd) {
			logger.Debug("Layer hidden at this scale.", "layer", l.Name, "scale_denominator", r.sd)
			continue
		}
		start := time.Now()
		fs, err := m.query(ctx, l)
		if err != nil {
			return err
		}
		r.drawLayer(l, fs)
		logger.Debug("Layer rendered.", "layer", l.Name, "features", len(fs), "duration", time.Since(start))
	}
	return nil
}

type renderer struct {
	m      *Map
	dc     *gg.Context
	sd     float64
	logger *slog.Logger
	bounds rect
	placed []rect
	labels []label
}

type label struct {
	text string
	at   orb.Point
	sym  *style.TextSymbolizer
}

func (r *renderer) drawLayer(l *mapLayer, fs []geom.Feature) {
	for _, s := range l.styles {
		for _, f := range fs {
			kind := geom.KindOf(f.Geometry)
			for _, rule := range s.Apply(f.Props, kind, r.sd) {
				for _, sym := range rule.Symbolizers {
					r.draw(sym, f, kind)
				}
			}
		}
	}
	r.drawLabels()
}

func (r *renderer) draw(sym style.Symbolizer, f geom.Feature, kind geom.Kind) {
	switch s := sym.(type) {
	case *style.PolygonSymbolizer:
		r.fill(f.Geometry, s)
	case *style.LineSymbolizer:
		r.stroke(f.Geometry, s)
	case *style.PointSymbolizer:
		for _, pt := range anchors(f.Geometry) {
			r.point(pt, s)
		}
	case *style.TextSymbolizer:
		text := s.Name.Text(f.Props, kind)
		if text == "" {
			return
		}
		for _, pt := range anchors(f.Geometry) {
			r.labels = append(r.labels, label{text: text, at: pt, sym: s})
		}
	}
}

func (r *renderer) pixel(p orb.Point) (float64, float64) {
	return r.m.ToPixel(Coord{X: p[0], Y: p[1]})
}

func (r *renderer) path(pts []orb.Point, closed bool) {
	for i, p := range pts {
		x, y := r.pixel(p)
		if i == 0 {
			r.dc.MoveTo(x, y)
		} else {
			r.dc.LineTo(x, y)
		}
	}
	if closed && len(pts) > 0 {
		r.dc.ClosePath()
	}
}

func (r *renderer) fill(g orb.Geometry, s *style.PolygonSymbolizer) {
	polys := polygons(g, nil)
	if len(polys) == 0 {
		return
	}
	r.dc.ClearPath()
	for _, poly := range polys {
		for _, ring := range poly {
			r.path(ring, true)
		}
	}
	r.dc.SetFillRule(gg.FillRuleEvenOdd)
	r.dc.SetColor(fade(s.Fill, s.Opacity))
	r.dc.Fill()
}

func (r *renderer) stroke(g orb.Geometry, s *style.LineSymbolizer) {
	ls := lines(g, nil)
	if len(ls) == 0 || s.Width <= 0 {
		return
	}
	r.dc.ClearPath()
	for _, l := range ls {
		r.path(l.pts, l.closed)
	}
	r.dc.SetLineWidth(s.Width)
	r.dc.SetDash(s.Dash...)
	switch s.Cap {
	case "round":
		r.dc.SetLineCap(gg.LineCapRound)
	case "square":
		r.dc.SetLineCap(gg.LineCapSquare)
	default:
		r.dc.SetLineCap(gg.LineCapButt)
	}
	if s.Join == "round" {
		r.dc.SetLineJoin(gg.LineJoinRound)
	} else {
		r.dc.SetLineJoin(gg.LineJoinBevel)
	}
	r.dc.SetColor(fade(s.Stroke, s.Opacity))
	r.dc.Stroke()
	r.dc.SetDash()
}

func (r *renderer) point(p orb.Point, s *style.PointSymbolizer) {
	x, y := r.pixel(p)
	w, h := s.Width, s.Height
	img := r.m.loadImage(r.logger, s.File)
	if img != nil {
		b := img.Bounds()
		w, h = float64(b.Dx()), float64(b.Dy())
	}
	box := rect{x - w/2, y - h/2, x + w/2, y + h/2}
	if !box.overlaps(r.bounds) || (!s.AllowOverlap && r.collides(box)) {
		return
	}
	r.placed = append(r.placed, box)

	if img != nil {
		r.dc.DrawImageAnchored(img, int(math.Round(x)), int(math.Round(y)), 0.5, 0.5)
		return
	}
	r.dc.ClearPath()
	r.dc.DrawEllipse(x, y, w/2, h/2)
	r.dc.SetColor(fade(s.Fill, s.Opacity))
	if s.StrokeWidth <= 0 {
		r.dc.Fill()
		return
	}
	r.dc.FillPreserve()
	r.dc.SetLineWidth(s.StrokeWidth)
	r.dc.SetColor(fade(s.Stroke, s.Opacity))
	r.dc.Stroke()
}

// drawLabels places the pending labels in order, skipping those that would
// collide with something already placed.
func (r *renderer) drawLabels() {
	for _, lb := range r.labels {
		s := lb.sym
		r.dc.SetFontFace(r.m.face(s.Size))
		w, h := r.dc.MeasureString(lb.text)
		x, y := r.pixel(lb.at)
		x, y = x+s.DX, y+s.DY
		halo := s.HaloRadius
		box := rect{x - w/2 - halo, y - h/2 - halo, x + w/2 + halo, y + h/2 + halo}
		if !box.overlaps(r.bounds) || (!s.AllowOverlap && r.collides(box)) {
			continue
		}
		r.placed = append(r.placed, box)

		if halo > 0 && s.HaloFill.A > 0 {
			r.dc.SetColor(s.HaloFill)
			const steps = 16
			for i := 0; i < steps; i++ {
				a := 2 * math.Pi * float64(i) / steps
				r.dc.DrawStringAnchored(lb.text, x+halo*math.Cos(a), y+halo*math.Sin(a), 0.5, 0.5)
			}
		}
		r.dc.SetColor(s.Fill)
		r.dc.DrawStringAnchored(lb.text, x, y, 0.5, 0.5)
	}
	r.labels = r.labels[:0]
}

func (r *renderer) collides(b rect) bool {
	for _, p := range r.placed {
		if b.overlaps(p) {
			return true
		}
	}
	return false
}

type rect struct {
	x0, y0, x1, y1 float64
}

func (a rect) overlaps(b rect) bool {
	return a.x0 < b.x1 && b.x0 < a.x1 && a.y0 < b.y1 && b.y0 < a.y1
}

func fade(c color.NRGBA, opacity float64) color.NRGBA {
	opacity = math.Max(0, math.Min(1, opacity))
	c.A = uint8(math.Round(float64(c.A) * opacity))
	return c
}
