package geom

import (
	"encoding/csv"
	"errors"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
)

// LoadCSV reads a CSV file with either latitude/longitude columns or a WKT column.
func LoadCSV(path string) (Collection, error) {
	f, err := os.Open(path)
	if err != nil {
		return Collection{}, err
	}
	defer f.Close()
	return ParseCSV(f)
}

// ParseCSV detects columns case-insensitively: lat|latitude|y and lon|lng|long|longitude|x,
// or wkt|geometry|geom. Other columns become attributes; numeric cells become float64.
// Rows whose geometry cannot be parsed are skipped.
func ParseCSV(r io.Reader) (Collection, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	recs, err := cr.ReadAll()
	if err != nil {
		return Collection{}, err
	}
	if len(recs) == 0 {
		return Collection{}, errors.New("empty csv")
	}
	header := recs[0]
	idxLat, idxLon, idxWKT := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "lat", "latitude", "y":
			if idxLat == -1 {
				idxLat = i
			}
		case "lon", "lng", "long", "longitude", "x":
			if idxLon == -1 {
				idxLon = i
			}
		case "wkt", "geometry", "geom":
			if idxWKT == -1 {
				idxWKT = i
			}
		}
	}
	if idxWKT == -1 && (idxLat == -1 || idxLon == -1) {
		return Collection{}, errors.New("csv: no latitude/longitude or wkt columns found")
	}
	geomCol := func(i int) bool {
		if idxWKT != -1 {
			return i == idxWKT
		}
		return i == idxLat || i == idxLon
	}

	var c Collection
	for _, row := range recs[1:] {
		var g orb.Geometry
		if idxWKT != -1 {
			if idxWKT >= len(row) {
				continue
			}
			parsed, err := wkt.Unmarshal(strings.TrimSpace(row[idxWKT]))
			if err != nil {
				continue
			}
			g = parsed
		} else {
			if idxLon >= len(row) || idxLat >= len(row) {
				continue
			}
			lon, err1 := strconv.ParseFloat(strings.TrimSpace(row[idxLon]), 64)
			lat, err2 := strconv.ParseFloat(strings.TrimSpace(row[idxLat]), 64)
			if err1 != nil || err2 != nil {
				continue
			}
			g = orb.Point{lon, lat}
		}
		props := make(map[string]any, len(header))
		for i, name := range header {
			if geomCol(i) || i >= len(row) {
				continue
			}
			props[name] = csvValue(row[i])
		}
		c.Add(g, props)
	}
	return c, nil
}

func csvValue(s string) any {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}
