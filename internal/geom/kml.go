package geom

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

type kmlRing struct {
	Coordinates string `xml:"LinearRing>coordinates"`
}

type kmlPolygon struct {
	Outer kmlRing   `xml:"outerBoundaryIs"`
	Inner []kmlRing `xml:"innerBoundaryIs"`
}

type kmlGeometry struct {
	Points   []string      `xml:"Point>coordinates"`
	Lines    []string      `xml:"LineString>coordinates"`
	Polygons []kmlPolygon  `xml:"Polygon"`
	Multi    []kmlGeometry `xml:"MultiGeometry"`
}

type kmlPlacemark struct {
	Name        string `xml:"name"`
	Description string `xml:"description"`
	kmlGeometry
}

// LoadKML reads Placemarks from a KML file at any nesting depth.
func LoadKML(path string) (Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Collection{}, err
	}
	return ParseKML(data)
}

// ParseKML extracts Point, LineString, Polygon and MultiGeometry placemarks.
// KML coordinates are "lon,lat[,alt]"; altitude is dropped.
func ParseKML(data []byte) (Collection, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var c Collection
	seen := false
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Collection{}, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if se.Name.Local == "kml" {
			seen = true
		}
		if se.Name.Local != "Placemark" {
			continue
		}
		var pm kmlPlacemark
		if err := dec.DecodeElement(&pm, &se); err != nil {
			return Collection{}, err
		}
		g := pm.geometry()
		if g == nil {
			continue
		}
		props := map[string]any{}
		if pm.Name != "" {
			props["name"] = strings.TrimSpace(pm.Name)
		}
		if pm.Description != "" {
			props["description"] = strings.TrimSpace(pm.Description)
		}
		c.Add(g, props)
	}
	if !seen {
		return Collection{}, errors.New("kml: missing <kml> root")
	}
	return c, nil
}

func (k kmlGeometry) geometry() orb.Geometry {
	var parts []orb.Geometry
	for _, s := range k.Points {
		if pts := kmlCoords(s); len(pts) > 0 {
			parts = append(parts, pts[0])
		}
	}
	for _, s := range k.Lines {
		if pts := kmlCoords(s); len(pts) > 1 {
			parts = append(parts, orb.LineString(pts))
		}
	}
	for _, p := range k.Polygons {
		outer := kmlCoords(p.Outer.Coordinates)
		if len(outer) < 3 {
			continue
		}
		poly := orb.Polygon{orb.Ring(outer)}
		for _, in := range p.Inner {
			if pts := kmlCoords(in.Coordinates); len(pts) >= 3 {
				poly = append(poly, orb.Ring(pts))
			}
		}
		parts = append(parts, poly)
	}
	for _, m := range k.Multi {
		if g := m.geometry(); g != nil {
			parts = append(parts, g)
		}
	}
	switch len(parts) {
	case 0:
		return nil
	case 1:
		return parts[0]
	}
	return orb.Collection(parts)
}

// coordinates may contain several tuples separated by whitespace
func kmlCoords(s string) []orb.Point {
	var out []orb.Point
	for _, tuple := range strings.Fields(s) {
		vals := strings.Split(tuple, ",")
		if len(vals) < 2 {
			continue
		}
		lon, err1 := strconv.ParseFloat(strings.TrimSpace(vals[0]), 64)
		lat, err2 := strconv.ParseFloat(strings.TrimSpace(vals[1]), 64)
		if err1 != nil || err2 != nil {
			continue
		}
		out = append(out, orb.Point{lon, lat})
	}
	return out
}
