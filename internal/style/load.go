package style

import (
	"path/filepath"
	"strings"
)

// Load reads a stylesheet: .hcl files are HCL, anything else is Mapnik XML.
func Load(path string) (*Map, error) {
	if strings.EqualFold(filepath.Ext(path), ".hcl") {
		return LoadHCL(path)
	}
	return LoadXML(path)
}
