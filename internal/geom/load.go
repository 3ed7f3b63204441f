package geom

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load reads a vector file, picking the parser from the file extension.
func Load(path string) (Collection, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".geojson", ".json":
		return LoadGeoJSON(path)
	case ".csv":
		return LoadCSV(path)
	case ".kml":
		return LoadKML(path)
	case ".wkt":
		data, err := os.ReadFile(path)
		if err != nil {
			return Collection{}, err
		}
		return ParseWKT(string(data))
	}
	return Collection{}, fmt.Errorf("unsupported file: %q", ext)
}
