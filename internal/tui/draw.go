package tui

import (
	"strings"

	"github.com/paulmach/orb"
)

func (m Model) renderMap(w, h int) string {
	br := newBrailleBuf(w, h)
	for _, l := range m.layers {
		if !l.shown() {
			continue
		}
		for _, f := range l.features {
			m.plot(br, f.Geometry)
		}
	}
	lines := br.toLines()

	// hovered vertex gets an orange circle
	if m.hovering {
		cx, cy := m.hoverMicX/2, m.hoverMicY/4
		if cy >= 0 && cy < len(lines) {
			r := []rune(lines[cy])
			if cx >= 0 && cx < len(r) {
				circle := hoverStyle.Render("◯")
				lines[cy] = string(r[:cx]) + circle + string(r[cx+1:])
			}
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) plot(br *brailleBuf, g orb.Geometry) {
	switch g := g.(type) {
	case orb.Point:
		p := m.micro(g)
		br.setPixel(round(p[0]), round(p[1]))
	case orb.MultiPoint:
		for _, p := range g {
			m.plot(br, p)
		}
	case orb.LineString:
		br.polyline(m.project(g))
	case orb.MultiLineString:
		for _, ls := range g {
			m.plot(br, ls)
		}
	case orb.Ring:
		m.plot(br, orb.Polygon{g})
	case orb.Polygon:
		rings := make([][]orb.Point, 0, len(g))
		for _, r := range g {
			if len(r) >= 3 {
				rings = append(rings, m.project(r))
			}
		}
		br.fill(rings)
		for _, r := range rings {
			br.polyline(append(r, r[0]))
		}
	case orb.MultiPolygon:
		for _, p := range g {
			m.plot(br, p)
		}
	case orb.Collection:
		for _, c := range g {
			m.plot(br, c)
		}
	case orb.Bound:
		m.plot(br, g.ToPolygon())
	}
}

func (m Model) project(pts []orb.Point) []orb.Point {
	out := make([]orb.Point, len(pts))
	for i, p := range pts {
		out[i] = m.micro(p)
	}
	return out
}
