package style

import (
	"fmt"
	"image/color"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// hclFile is the top-level structure of an HCL stylesheet.
type hclFile struct {
	Map    *hclMap     `hcl:"map,block"`
	Styles []*hclStyle `hcl:"style,block"`
	Layers []*hclLayer `hcl:"layer,block"`
}

type hclMap struct {
	SRS        string `hcl:"srs,optional"`
	Background string `hcl:"background_color,optional"`
	BufferSize int    `hcl:"buffer_size,optional"`
}

type hclStyle struct {
	Name       string     `hcl:"name,label"`
	FilterMode string     `hcl:"filter_mode,optional"`
	Rules      []*hclRule `hcl:"rule,block"`
}

type hclRule struct {
	Name     string         `hcl:"name,optional"`
	Filter   *hcl.Attribute `hcl:"filter,optional"`
	Else     bool           `hcl:"else,optional"`
	MinScale float64        `hcl:"min_scale,optional"`
	MaxScale float64        `hcl:"max_scale,optional"`
	Remain   hcl.Body       `hcl:",remain"`
}

type hclLayer struct {
	Name       string         `hcl:"name,label"`
	SRS        string         `hcl:"srs,optional"`
	Styles     []string       `hcl:"styles,optional"`
	Active     *bool          `hcl:"active,optional"`
	MinScale   float64        `hcl:"min_scale,optional"`
	MaxScale   float64        `hcl:"max_scale,optional"`
	Datasource *hclDatasource `hcl:"datasource,block"`
}

type hclDatasource struct {
	Remain hcl.Body `hcl:",remain"`
}

type hclPolygon struct {
	Fill    string   `hcl:"fill,optional"`
	Opacity *float64 `hcl:"opacity,optional"`
}

type hclLine struct {
	Stroke  string    `hcl:"stroke,optional"`
	Width   *float64  `hcl:"width,optional"`
	Opacity *float64  `hcl:"opacity,optional"`
	Dash    []float64 `hcl:"dasharray,optional"`
	Cap     string    `hcl:"linecap,optional"`
	Join    string    `hcl:"linejoin,optional"`
}

type hclPoint struct {
	File         string   `hcl:"file,optional"`
	Fill         string   `hcl:"fill,optional"`
	Stroke       string   `hcl:"stroke,optional"`
	StrokeWidth  *float64 `hcl:"stroke_width,optional"`
	Width        *float64 `hcl:"width,optional"`
	Height       *float64 `hcl:"height,optional"`
	Opacity      *float64 `hcl:"opacity,optional"`
	AllowOverlap bool     `hcl:"allow_overlap,optional"`
}

type hclText struct {
	Text         *hcl.Attribute `hcl:"text"`
	Size         *float64       `hcl:"size,optional"`
	Fill         string         `hcl:"fill,optional"`
	HaloFill     string         `hcl:"halo_fill,optional"`
	HaloRadius   float64        `hcl:"halo_radius,optional"`
	DX           float64        `hcl:"dx,optional"`
	DY           float64        `hcl:"dy,optional"`
	AllowOverlap bool           `hcl:"allow_overlap,optional"`
	Placement    string         `hcl:"placement,optional"`
}

var symbolizerSchema = &hcl.BodySchema{
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "polygon"},
		{Type: "line"},
		{Type: "point"},
		{Type: "text"},
	},
}

// LoadHCL reads an HCL stylesheet.
func LoadHCL(path string) (*Map, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	dir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	m, err := decodeHCL(file.Body, file.Bytes, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, err)
	}
	return m, nil
}

// ParseHCL reads an HCL stylesheet from memory. Relative paths resolve against dir.
func ParseHCL(data []byte, filename, dir string) (*Map, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, diags
	}
	return decodeHCL(file.Body, data, dir)
}

func decodeHCL(body hcl.Body, src []byte, dir string) (*Map, error) {
	var f hclFile
	if diags := gohcl.DecodeBody(body, nil, &f); diags.HasErrors() {
		return nil, diags
	}
	m := &Map{SRS: DefaultSRS, Styles: map[string]*Style{}, Dir: dir}
	if f.Map != nil {
		if f.Map.SRS != "" {
			m.SRS = f.Map.SRS
		}
		if f.Map.Background != "" {
			c, err := ParseColor(f.Map.Background)
			if err != nil {
				return nil, fmt.Errorf("map background_color: %w", err)
			}
			m.Background = c
		}
		m.BufferSize = f.Map.BufferSize
	}

	for _, hs := range f.Styles {
		s := &Style{Name: hs.Name, FilterMode: hs.FilterMode}
		if s.FilterMode == "" {
			s.FilterMode = FilterAll
		}
		if s.FilterMode != FilterAll && s.FilterMode != FilterFirst {
			return nil, fmt.Errorf("style %q: bad filter_mode %q", s.Name, s.FilterMode)
		}
		for _, hr := range hs.Rules {
			r, err := hclRuleToRule(m, hr, src)
			if err != nil {
				return nil, fmt.Errorf("style %q: %w", s.Name, err)
			}
			s.Rules = append(s.Rules, r)
		}
		m.Styles[s.Name] = s
	}

	for _, hl := range f.Layers {
		l := &Layer{
			Name:       hl.Name,
			SRS:        hl.SRS,
			Active:     hl.Active == nil || *hl.Active,
			StyleNames: hl.Styles,
			MinScale:   hl.MinScale,
			MaxScale:   hl.MaxScale,
			Datasource: map[string]string{},
		}
		if l.SRS == "" {
			l.SRS = m.SRS
		}
		if hl.Datasource != nil {
			ds, err := hclDatasourceParams(hl.Datasource.Remain)
			if err != nil {
				return nil, fmt.Errorf("layer %q: %w", l.Name, err)
			}
			l.Datasource = ds
		}
		m.Layers = append(m.Layers, l)
	}
	return m, nil
}

func hclRuleToRule(m *Map, hr *hclRule, src []byte) (*Rule, error) {
	r := &Rule{
		Name:       hr.Name,
		ElseFilter: hr.Else,
		MinScale:   hr.MinScale,
		MaxScale:   hr.MaxScale,
	}
	if hr.Filter != nil {
		r.Filter = NewExpr(string(hr.Filter.Expr.Range().SliceBytes(src)), hr.Filter.Expr)
	}
	content, diags := hr.Remain.Content(symbolizerSchema)
	if diags.HasErrors() {
		return nil, diags
	}
	for _, b := range content.Blocks {
		sym, err := hclSymbolizer(m, b, src)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.DefRange, err)
		}
		r.Symbolizers = append(r.Symbolizers, sym)
	}
	return r, nil
}

func hclSymbolizer(m *Map, b *hcl.Block, src []byte) (Symbolizer, error) {
	switch b.Type {
	case "polygon":
		var h hclPolygon
		if diags := gohcl.DecodeBody(b.Body, nil, &h); diags.HasErrors() {
			return nil, diags
		}
		s := newPolygon()
		var err error
		if s.Fill, err = colorOr(h.Fill, s.Fill); err != nil {
			return nil, err
		}
		s.Opacity = floatOr(h.Opacity, s.Opacity)
		return s, nil
	case "line":
		var h hclLine
		if diags := gohcl.DecodeBody(b.Body, nil, &h); diags.HasErrors() {
			return nil, diags
		}
		s := newLine()
		var err error
		if s.Stroke, err = colorOr(h.Stroke, s.Stroke); err != nil {
			return nil, err
		}
		s.Width = floatOr(h.Width, s.Width)
		s.Opacity = floatOr(h.Opacity, s.Opacity)
		s.Dash = h.Dash
		s.Cap = normalizeCap(h.Cap)
		s.Join = normalizeJoin(h.Join)
		return s, nil
	case "point":
		var h hclPoint
		if diags := gohcl.DecodeBody(b.Body, nil, &h); diags.HasErrors() {
			return nil, diags
		}
		s := newPoint(h.File == "")
		s.File = m.Resolve(h.File)
		var err error
		if s.Fill, err = colorOr(h.Fill, s.Fill); err != nil {
			return nil, err
		}
		if s.Stroke, err = colorOr(h.Stroke, s.Stroke); err != nil {
			return nil, err
		}
		s.StrokeWidth = floatOr(h.StrokeWidth, s.StrokeWidth)
		s.Width = floatOr(h.Width, s.Width)
		s.Height = floatOr(h.Height, s.Width)
		s.Opacity = floatOr(h.Opacity, s.Opacity)
		s.AllowOverlap = h.AllowOverlap
		return s, nil
	case "text":
		var h hclText
		if diags := gohcl.DecodeBody(b.Body, nil, &h); diags.HasErrors() {
			return nil, diags
		}
		s := newText()
		s.Name = NewExpr(string(h.Text.Expr.Range().SliceBytes(src)), h.Text.Expr)
		s.Size = floatOr(h.Size, s.Size)
		var err error
		if s.Fill, err = colorOr(h.Fill, s.Fill); err != nil {
			return nil, err
		}
		if s.HaloFill, err = colorOr(h.HaloFill, s.HaloFill); err != nil {
			return nil, err
		}
		s.HaloRadius = h.HaloRadius
		s.DX, s.DY = h.DX, h.DY
		s.AllowOverlap = h.AllowOverlap
		if h.Placement != "" {
			s.Placement = h.Placement
		}
		return s, nil
	}
	return nil, fmt.Errorf("unknown symbolizer %q", b.Type)
}

// hclDatasourceParams flattens a datasource block into string parameters.
func hclDatasourceParams(body hcl.Body) (map[string]string, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	out := make(map[string]string, len(attrs))
	for name, attr := range attrs {
		v, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		s, err := convert.Convert(v, cty.String)
		if err != nil || s.IsNull() {
			return nil, fmt.Errorf("datasource %s: must be a string, number or bool", name)
		}
		out[name] = s.AsString()
	}
	return out, nil
}

func colorOr(s string, def color.NRGBA) (color.NRGBA, error) {
	if s == "" {
		return def, nil
	}
	return ParseColor(s)
}

func floatOr(p *float64, def float64) float64 {
	if p == nil {
		return def
	}
	return *p
}
