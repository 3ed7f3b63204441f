package carto

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

func polygons(g orb.Geometry, out []orb.Polygon) []orb.Polygon {
	switch g := g.(type) {
	case orb.Polygon:
		out = append(out, g)
	case orb.MultiPolygon:
		out = append(out, g...)
	case orb.Ring:
		out = append(out, orb.Polygon{g})
	case orb.Bound:
		out = append(out, g.ToPolygon())
	case orb.Collection:
		for _, c := range g {
			out = polygons(c, out)
		}
	}
	return out
}

type polyline struct {
	pts    []orb.Point
	closed bool
}

// lines lists the strokable parts of g. Polygon rings are stroked as outlines.
func lines(g orb.Geometry, out []polyline) []polyline {
	switch g := g.(type) {
	case orb.LineString:
		out = append(out, polyline{pts: g})
	case orb.MultiLineString:
		for _, l := range g {
			out = append(out, polyline{pts: l})
		}
	case orb.Ring:
		out = append(out, polyline{pts: g, closed: true})
	case orb.Polygon:
		for _, r := range g {
			out = append(out, polyline{pts: r, closed: true})
		}
	case orb.MultiPolygon:
		for _, p := range g {
			out = lines(p, out)
		}
	case orb.Bound:
		out = append(out, polyline{pts: g.ToRing(), closed: true})
	case orb.Collection:
		for _, c := range g {
			out = lines(c, out)
		}
	}
	return out
}

// anchors are the positions markers and labels are placed at: the points of
// point geometries, the middle of a line (the longest part of a multi line)
// and the centroid of areas.
func anchors(g orb.Geometry) []orb.Point {
	switch g := g.(type) {
	case orb.Point:
		return []orb.Point{g}
	case orb.MultiPoint:
		return g
	case orb.LineString:
		if len(g) == 0 {
			return nil
		}
		return []orb.Point{midpoint(g)}
	case orb.MultiLineString:
		var best orb.LineString
		bestLen := -1.0
		for _, l := range g {
			if n := planar.Length(l); n > bestLen && len(l) > 0 {
				best, bestLen = l, n
			}
		}
		if best == nil {
			return nil
		}
		return []orb.Point{midpoint(best)}
	case orb.Ring, orb.Polygon, orb.MultiPolygon, orb.Bound:
		c, _ := planar.CentroidArea(g)
		return []orb.Point{c}
	case orb.Collection:
		var out []orb.Point
		for _, c := range g {
			out = append(out, anchors(c)...)
		}
		return out
	}
	return nil
}

// midpoint walks half the length of ls.
func midpoint(ls orb.LineString) orb.Point {
	half := planar.Length(ls) / 2
	for i := 1; i < len(ls); i++ {
		d := planar.Distance(ls[i-1], ls[i])
		if d >= half && d > 0 {
			t := half / d
			return orb.Point{
				ls[i-1][0] + t*(ls[i][0]-ls[i-1][0]),
				ls[i-1][1] + t*(ls[i][1]-ls[i-1][1]),
			}
		}
		half -= d
	}
	return ls[len(ls)-1]
}
