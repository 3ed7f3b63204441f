package tui

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"geoexport/internal/carto"
)

const (
	sidebarWidth = 28
	headerHeight = 1
	footerHeight = 2

	zoomStep = 1.2
	panStep  = 0.1
)

// canvas returns the map area origin and size in terminal cells. It must
// agree with the layout View draws.
func (m Model) canvas() (x, y, w, h int) {
	contentW := max(10, m.width)
	contentH := max(4, m.height-headerHeight-footerHeight)
	w = contentW
	if m.showSidebar {
		w -= sidebarWidth + 1
		x = sidebarWidth + 1
	}
	return x, headerHeight, max(8, w), contentH
}

// reframe sizes the map to the canvas micro grid, frames the requested view
// and re-queries the layers.
func (m *Model) reframe() {
	_, _, w, h := m.canvas()
	m.cmap.Resize(w*2, h*4)
	if m.view.Valid() {
		m.cmap.ZoomToBox(m.view)
		m.view = m.cmap.Extent()
	}
	m.refreshSnapshot()
}

func (m *Model) zoom(factor float64) {
	if !m.view.Valid() {
		return
	}
	c := m.view.Center()
	hw, hh := m.view.Width()/2/factor, m.view.Height()/2/factor
	m.view = carto.NewBox(c.X-hw, c.Y-hh, c.X+hw, c.Y+hh)
	m.reframe()
	m.status = fmt.Sprintf("scale 1:%.0f", m.cmap.ScaleDenominator())
}

// pan moves the view by fractions of its size; positive dy moves north.
func (m *Model) pan(dx, dy float64) {
	if !m.view.Valid() {
		return
	}
	ox, oy := dx*m.view.Width(), dy*m.view.Height()
	m.view = carto.NewBox(m.view.MinX+ox, m.view.MinY+oy, m.view.MaxX+ox, m.view.MaxY+oy)
	m.reframe()
}

// micro projects a map coordinate onto the micro grid.
func (m Model) micro(p orb.Point) orb.Point {
	x, y := m.cmap.ToPixel(carto.Coord{X: p[0], Y: p[1]})
	return orb.Point{x, y}
}

// cellLonLat is the geographic position under the centre of a canvas cell.
func (m Model) cellLonLat(cx, cy int) (lon, lat float64, ok bool) {
	if !m.cmap.Extent().Valid() {
		return 0, 0, false
	}
	c := m.cmap.FromPixel(float64(cx*2)+1, float64(cy*4)+2)
	ll := m.cmap.Projection().Inverse(c)
	if math.IsNaN(ll.X) || math.IsNaN(ll.Y) {
		return 0, 0, false
	}
	return ll.X, ll.Y, true
}

// eachVertex calls fn with every vertex of g.
func eachVertex(g orb.Geometry, fn func(orb.Point)) {
	switch g := g.(type) {
	case orb.Point:
		fn(g)
	case orb.MultiPoint:
		for _, p := range g {
			fn(p)
		}
	case orb.LineString:
		for _, p := range g {
			fn(p)
		}
	case orb.Ring:
		for _, p := range g {
			fn(p)
		}
	case orb.MultiLineString:
		for _, ls := range g {
			eachVertex(ls, fn)
		}
	case orb.Polygon:
		for _, r := range g {
			eachVertex(r, fn)
		}
	case orb.MultiPolygon:
		for _, p := range g {
			eachVertex(p, fn)
		}
	case orb.Collection:
		for _, c := range g {
			eachVertex(c, fn)
		}
	case orb.Bound:
		eachVertex(g.ToRing(), fn)
	}
}

// nearest finds the shown feature vertex closest to micro point (mx, my).
func (m Model) nearest(mx, my int) (layer int, feature int, at orb.Point, ok bool) {
	best := math.Inf(1)
	for li, l := range m.layers {
		if !l.shown() {
			continue
		}
		for fi, f := range l.features {
			eachVertex(f.Geometry, func(p orb.Point) {
				q := m.micro(p)
				d := (q[0]-float64(mx))*(q[0]-float64(mx)) + (q[1]-float64(my))*(q[1]-float64(my))
				if d < best {
					best, layer, feature, at, ok = d, li, fi, q, true
				}
			})
		}
	}
	return layer, feature, at, ok
}
