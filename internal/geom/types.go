package geom

import "github.com/paulmach/orb"

// Kind classifies geometries the way stylesheet filters see them.
type Kind int

const (
	KindUnknown Kind = iota
	KindPoint
	KindLineString
	KindPolygon
	KindCollection
)

func (k Kind) String() string {
	switch k {
	case KindPoint:
		return "point"
	case KindLineString:
		return "linestring"
	case KindPolygon:
		return "polygon"
	case KindCollection:
		return "collection"
	}
	return "unknown"
}

// KindOf reports the kind of g. Multi geometries share the kind of their parts.
func KindOf(g orb.Geometry) Kind {
	switch g.(type) {
	case orb.Point, orb.MultiPoint:
		return KindPoint
	case orb.LineString, orb.MultiLineString:
		return KindLineString
	case orb.Ring, orb.Polygon, orb.MultiPolygon, orb.Bound:
		return KindPolygon
	case orb.Collection:
		return KindCollection
	}
	return KindUnknown
}

// Feature is a geometry with its attributes.
type Feature struct {
	ID       int
	Geometry orb.Geometry
	Props    map[string]any
}

// Collection is a list of features plus the bound covering all of them.
type Collection struct {
	Features []Feature
	Bound    orb.Bound
}

// Add appends a feature, skipping nil geometries, and grows the bound.
func (c *Collection) Add(g orb.Geometry, props map[string]any) {
	if g == nil {
		return
	}
	if props == nil {
		props = map[string]any{}
	}
	b := g.Bound()
	if len(c.Features) == 0 {
		c.Bound = b
	} else {
		c.Bound = c.Bound.Union(b)
	}
	c.Features = append(c.Features, Feature{ID: len(c.Features) + 1, Geometry: g, Props: props})
}

// Counts returns how many point, line and polygon features the collection holds.
func (c Collection) Counts() (points, lines, polygons int) {
	for _, f := range c.Features {
		switch KindOf(f.Geometry) {
		case KindPoint:
			points++
		case KindLineString:
			lines++
		case KindPolygon:
			polygons++
		}
	}
	return points, lines, polygons
}
