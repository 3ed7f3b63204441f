// Package style holds the stylesheet model shared by the Mapnik XML and HCL
// loaders: map settings, named styles with their rules and symbolizers, and
// layers bound to datasources.
package style

import (
	"image/color"
	"path/filepath"
	"strings"

	"geoexport/internal/geom"
)

// DefaultSRS is used for maps and layers that do not declare one.
const DefaultSRS = "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"

// Map is a parsed stylesheet.
type Map struct {
	SRS        string
	Background color.NRGBA
	BufferSize int
	Styles     map[string]*Style
	Layers     []*Layer

	// Dir is the directory relative file paths resolve against.
	Dir string

	// Unsupported lists symbolizers that were recognised but are not drawn.
	Unsupported []string
}

// Resolve makes p absolute with respect to the stylesheet directory.
func (m *Map) Resolve(p string) string {
	if p == "" || filepath.IsAbs(p) || m.Dir == "" {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// Layer binds a datasource to a list of styles.
type Layer struct {
	Name       string
	SRS        string
	Active     bool
	StyleNames []string
	MinScale   float64
	MaxScale   float64
	Datasource map[string]string
}

// VisibleAt reports whether the layer is drawn at scale denominator sd.
func (l *Layer) VisibleAt(sd float64) bool {
	return l.Active && inRange(sd, l.MinScale, l.MaxScale)
}

// Filter modes of a Style.
const (
	FilterAll   = "all"
	FilterFirst = "first"
)

// Style is a named, ordered list of rules.
type Style struct {
	Name       string
	FilterMode string
	Rules      []*Rule
}

// Apply returns the rules that fire for a feature at scale denominator sd, in
// stylesheet order. Else rules fire only when no filtered rule did.
func (s *Style) Apply(props map[string]any, kind geom.Kind, sd float64) []*Rule {
	var out, elses []*Rule
	for _, r := range s.Rules {
		if !r.ActiveAt(sd) {
			continue
		}
		if r.ElseFilter {
			elses = append(elses, r)
			continue
		}
		if r.Filter != nil && !r.Filter.Match(props, kind) {
			continue
		}
		out = append(out, r)
		if s.FilterMode == FilterFirst {
			break
		}
	}
	if len(out) == 0 {
		return elses
	}
	return out
}

// Rule is a filter with the symbolizers drawn for matching features.
type Rule struct {
	Name        string
	Filter      *Expr
	ElseFilter  bool
	MinScale    float64
	MaxScale    float64
	Symbolizers []Symbolizer
}

// ActiveAt reports whether sd falls in [MinScale, MaxScale). Zero bounds are open.
func (r *Rule) ActiveAt(sd float64) bool {
	return inRange(sd, r.MinScale, r.MaxScale)
}

func inRange(sd, lo, hi float64) bool {
	return sd >= lo && (hi <= 0 || sd < hi)
}

// Symbolizer is one of the *Symbolizer types below.
type Symbolizer interface {
	symbolizer()
}

type PolygonSymbolizer struct {
	Fill    color.NRGBA
	Opacity float64
}

type LineSymbolizer struct {
	Stroke  color.NRGBA
	Width   float64
	Opacity float64
	Dash    []float64
	Cap     string
	Join    string
}

// PointSymbolizer draws an image from File, or an ellipse marker when File is empty.
type PointSymbolizer struct {
	File         string
	Fill         color.NRGBA
	Stroke       color.NRGBA
	StrokeWidth  float64
	Width        float64
	Height       float64
	Opacity      float64
	AllowOverlap bool
}

type TextSymbolizer struct {
	Name         *Expr
	Size         float64
	Fill         color.NRGBA
	HaloFill     color.NRGBA
	HaloRadius   float64
	DX, DY       float64
	AllowOverlap bool
	Placement    string
}

func (*PolygonSymbolizer) symbolizer() {}
func (*LineSymbolizer) symbolizer()    {}
func (*PointSymbolizer) symbolizer()   {}
func (*TextSymbolizer) symbolizer()    {}

var (
	black = color.NRGBA{A: 255}
	gray  = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
	white = color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	blue  = color.NRGBA{B: 255, A: 255}
)

func newPolygon() *PolygonSymbolizer {
	return &PolygonSymbolizer{Fill: gray, Opacity: 1}
}

func newLine() *LineSymbolizer {
	return &LineSymbolizer{Stroke: black, Width: 1, Opacity: 1, Cap: "butt", Join: "miter"}
}

func newPoint(marker bool) *PointSymbolizer {
	if marker {
		return &PointSymbolizer{Fill: blue, Stroke: black, StrokeWidth: 0.5, Width: 10, Height: 10, Opacity: 1}
	}
	return &PointSymbolizer{Fill: black, Width: 4, Height: 4, Opacity: 1}
}

func newText() *TextSymbolizer {
	return &TextSymbolizer{Size: 10, Fill: black, HaloFill: white, Placement: "point"}
}

func normalizeCap(s string) string {
	switch s = strings.ToLower(s); s {
	case "round", "square":
		return s
	}
	return "butt"
}

func normalizeJoin(s string) string {
	switch s = strings.ToLower(s); s {
	case "round", "bevel":
		return s
	}
	return "miter"
}
