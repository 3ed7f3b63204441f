package geom

import (
	"fmt"
	"strings"

	"github.com/paulmach/orb/encoding/wkt"
)

// ParseWKT reads one geometry per line. Blank lines and lines starting with '#' are skipped.
// A document holding a single geometry is parsed as a whole first.
func ParseWKT(text string) (Collection, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Collection{}, fmt.Errorf("empty wkt")
	}
	var c Collection
	if g, err := wkt.Unmarshal(s); err == nil {
		c.Add(g, nil)
		return c, nil
	}
	for i, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		g, err := wkt.Unmarshal(line)
		if err != nil {
			return Collection{}, fmt.Errorf("wkt line %d: %w", i+1, err)
		}
		c.Add(g, nil)
	}
	return c, nil
}
