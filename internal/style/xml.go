package style

import (
	"fmt"
	"image/color"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// Recognised symbolizers that are not drawn.
var unsupportedSymbolizers = map[string]bool{
	"RasterSymbolizer":         true,
	"ShieldSymbolizer":         true,
	"LinePatternSymbolizer":    true,
	"PolygonPatternSymbolizer": true,
	"BuildingSymbolizer":       true,
	"GroupSymbolizer":          true,
	"DebugSymbolizer":          true,
	"DotSymbolizer":            true,
}

// LoadXML reads a Mapnik XML stylesheet.
func LoadXML(path string) (*Map, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromFile(path); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	m, err := parseXML(doc, dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseXML reads a Mapnik XML stylesheet from memory. Relative paths resolve
// against dir.
func ParseXML(data []byte, dir string) (*Map, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, err
	}
	return parseXML(doc, dir)
}

func parseXML(doc *etree.Document, dir string) (*Map, error) {
	root := doc.Root()
	if root == nil || root.Tag != "Map" {
		return nil, fmt.Errorf("root element must be <Map>")
	}
	m := &Map{
		SRS:    root.SelectAttrValue("srs", DefaultSRS),
		Styles: map[string]*Style{},
		Dir:    dir,
	}
	bg := root.SelectAttrValue("background-color", root.SelectAttrValue("bgcolor", ""))
	if bg != "" {
		c, err := ParseColor(bg)
		if err != nil {
			return nil, fmt.Errorf("map background: %w", err)
		}
		m.Background = c
	}
	if v := root.SelectAttrValue("buffer-size", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("map buffer-size: %w", err)
		}
		m.BufferSize = n
	}

	templates := map[string]map[string]string{}
	for _, el := range root.ChildElements() {
		switch el.Tag {
		case "Style":
			s, err := parseXMLStyle(m, el)
			if err != nil {
				return nil, err
			}
			m.Styles[s.Name] = s
		case "Layer":
			l, err := parseXMLLayer(el, templates)
			if err != nil {
				return nil, err
			}
			if l.SRS == "" {
				l.SRS = m.SRS
			}
			m.Layers = append(m.Layers, l)
		case "Datasource":
			name := el.SelectAttrValue("name", "")
			if name == "" {
				return nil, fmt.Errorf("map-level <Datasource> needs a name")
			}
			templates[name] = xmlParameters(el)
		case "FontSet", "Parameters", "Include":
		default:
			return nil, fmt.Errorf("unknown element <%s> in <Map>", el.Tag)
		}
	}
	return m, nil
}

func parseXMLStyle(m *Map, el *etree.Element) (*Style, error) {
	s := &Style{
		Name:       el.SelectAttrValue("name", ""),
		FilterMode: el.SelectAttrValue("filter-mode", FilterAll),
	}
	if s.Name == "" {
		return nil, fmt.Errorf("<Style> without a name")
	}
	if s.FilterMode != FilterAll && s.FilterMode != FilterFirst {
		return nil, fmt.Errorf("style %q: bad filter-mode %q", s.Name, s.FilterMode)
	}
	for _, rel := range el.ChildElements() {
		if rel.Tag != "Rule" {
			return nil, fmt.Errorf("style %q: unknown element <%s>", s.Name, rel.Tag)
		}
		r, err := parseXMLRule(m, s.Name, rel)
		if err != nil {
			return nil, fmt.Errorf("style %q: %w", s.Name, err)
		}
		s.Rules = append(s.Rules, r)
	}
	return s, nil
}

func parseXMLRule(m *Map, styleName string, el *etree.Element) (*Rule, error) {
	r := &Rule{Name: el.SelectAttrValue("name", "")}
	for _, c := range el.ChildElements() {
		var (
			sym Symbolizer
			err error
		)
		switch c.Tag {
		case "Filter":
			r.Filter, err = CompileFilter(c.Text())
		case "ElseFilter":
			r.ElseFilter = true
		case "MinScaleDenominator":
			r.MinScale, err = strconv.ParseFloat(strings.TrimSpace(c.Text()), 64)
		case "MaxScaleDenominator":
			r.MaxScale, err = strconv.ParseFloat(strings.TrimSpace(c.Text()), 64)
		case "PolygonSymbolizer":
			sym, err = xmlPolygon(symParams(c))
		case "LineSymbolizer":
			sym, err = xmlLine(symParams(c))
		case "PointSymbolizer", "MarkersSymbolizer":
			sym, err = xmlPoint(m, symParams(c), c.Tag == "MarkersSymbolizer")
		case "TextSymbolizer":
			sym, err = xmlText(symParams(c), c.Text())
		default:
			if !unsupportedSymbolizers[c.Tag] {
				return nil, fmt.Errorf("unknown element <%s> in <Rule>", c.Tag)
			}
			m.Unsupported = append(m.Unsupported, styleName+": "+c.Tag)
		}
		if err != nil {
			return nil, fmt.Errorf("<%s>: %w", c.Tag, err)
		}
		if sym != nil {
			r.Symbolizers = append(r.Symbolizers, sym)
		}
	}
	return r, nil
}

// symParams merges attributes with Mapnik 0.7 style <CssParameter> children.
func symParams(el *etree.Element) params {
	p := params{}
	for _, a := range el.Attr {
		p[a.Key] = a.Value
	}
	for _, c := range el.SelectElements("CssParameter") {
		p[c.SelectAttrValue("name", "")] = strings.TrimSpace(c.Text())
	}
	return p
}

func xmlParameters(el *etree.Element) map[string]string {
	out := map[string]string{}
	for _, c := range el.SelectElements("Parameter") {
		out[c.SelectAttrValue("name", "")] = strings.TrimSpace(c.Text())
	}
	return out
}

func parseXMLLayer(el *etree.Element, templates map[string]map[string]string) (*Layer, error) {
	l := &Layer{
		Name:       el.SelectAttrValue("name", ""),
		SRS:        el.SelectAttrValue("srs", ""),
		Active:     true,
		Datasource: map[string]string{},
	}
	switch strings.ToLower(el.SelectAttrValue("status", "on")) {
	case "off", "0", "false":
		l.Active = false
	}
	var err error
	p := params{}
	for _, a := range el.Attr {
		p[a.Key] = a.Value
	}
	if l.MinScale, err = p.float("minimum-scale-denominator", 0); err != nil {
		return nil, fmt.Errorf("layer %q: %w", l.Name, err)
	}
	if l.MinScale, err = p.float("minzoom", l.MinScale); err != nil {
		return nil, fmt.Errorf("layer %q: %w", l.Name, err)
	}
	if l.MaxScale, err = p.float("maximum-scale-denominator", 0); err != nil {
		return nil, fmt.Errorf("layer %q: %w", l.Name, err)
	}
	if l.MaxScale, err = p.float("maxzoom", l.MaxScale); err != nil {
		return nil, fmt.Errorf("layer %q: %w", l.Name, err)
	}

	for _, c := range el.ChildElements() {
		switch c.Tag {
		case "StyleName":
			l.StyleNames = append(l.StyleNames, strings.TrimSpace(c.Text()))
		case "Datasource":
			if base := c.SelectAttrValue("base", ""); base != "" {
				tmpl, ok := templates[base]
				if !ok {
					return nil, fmt.Errorf("layer %q: unknown datasource base %q", l.Name, base)
				}
				for k, v := range tmpl {
					l.Datasource[k] = v
				}
			}
			for k, v := range xmlParameters(c) {
				l.Datasource[k] = v
			}
		default:
			return nil, fmt.Errorf("layer %q: unknown element <%s>", l.Name, c.Tag)
		}
	}
	return l, nil
}

func xmlPolygon(p params) (*PolygonSymbolizer, error) {
	s := newPolygon()
	var err error
	if s.Fill, err = p.color("fill", s.Fill); err != nil {
		return nil, err
	}
	if s.Opacity, err = p.float("fill-opacity", s.Opacity); err != nil {
		return nil, err
	}
	return s, nil
}

func xmlLine(p params) (*LineSymbolizer, error) {
	s := newLine()
	var err error
	if s.Stroke, err = p.color("stroke", s.Stroke); err != nil {
		return nil, err
	}
	if s.Width, err = p.float("stroke-width", s.Width); err != nil {
		return nil, err
	}
	if s.Opacity, err = p.float("stroke-opacity", s.Opacity); err != nil {
		return nil, err
	}
	if s.Dash, err = p.floats("stroke-dasharray"); err != nil {
		return nil, err
	}
	s.Cap = normalizeCap(p["stroke-linecap"])
	s.Join = normalizeJoin(p["stroke-linejoin"])
	return s, nil
}

func xmlPoint(m *Map, p params, marker bool) (*PointSymbolizer, error) {
	s := newPoint(marker)
	s.File = m.Resolve(p["file"])
	var err error
	if s.Fill, err = p.color("fill", s.Fill); err != nil {
		return nil, err
	}
	if s.Stroke, err = p.color("stroke", s.Stroke); err != nil {
		return nil, err
	}
	if s.StrokeWidth, err = p.float("stroke-width", s.StrokeWidth); err != nil {
		return nil, err
	}
	if s.Width, err = p.float("width", s.Width); err != nil {
		return nil, err
	}
	if s.Height, err = p.float("height", s.Width); err != nil {
		return nil, err
	}
	if s.Opacity, err = p.float("opacity", s.Opacity); err != nil {
		return nil, err
	}
	s.AllowOverlap = p.bool("allow-overlap")
	return s, nil
}

func xmlText(p params, body string) (*TextSymbolizer, error) {
	s := newText()
	src := strings.TrimSpace(body)
	if src == "" {
		src = p["name"]
	}
	if src == "" {
		return nil, fmt.Errorf("missing label expression")
	}
	var err error
	if s.Name, err = CompileText(src); err != nil {
		return nil, err
	}
	if s.Size, err = p.float("size", s.Size); err != nil {
		return nil, err
	}
	if s.Fill, err = p.color("fill", s.Fill); err != nil {
		return nil, err
	}
	if s.HaloFill, err = p.color("halo-fill", s.HaloFill); err != nil {
		return nil, err
	}
	if s.HaloRadius, err = p.float("halo-radius", s.HaloRadius); err != nil {
		return nil, err
	}
	if s.DX, err = p.float("dx", 0); err != nil {
		return nil, err
	}
	if s.DY, err = p.float("dy", 0); err != nil {
		return nil, err
	}
	s.AllowOverlap = p.bool("allow-overlap")
	if v := p["placement"]; v != "" {
		s.Placement = v
	}
	return s, nil
}

// params are the string-typed settings of an XML element.
type params map[string]string

func (p params) color(key string, def color.NRGBA) (color.NRGBA, error) {
	v, ok := p[key]
	if !ok {
		return def, nil
	}
	c, err := ParseColor(v)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return c, nil
}

func (p params) float(key string, def float64) (float64, error) {
	v, ok := p[key]
	if !ok || strings.TrimSpace(v) == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

func (p params) floats(key string) ([]float64, error) {
	v := strings.TrimSpace(p[key])
	if v == "" {
		return nil, nil
	}
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]float64, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func (p params) bool(key string) bool {
	b, _ := strconv.ParseBool(p[key])
	return b
}
