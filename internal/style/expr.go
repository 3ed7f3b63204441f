package style

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"github.com/zclconf/go-cty/cty/gocty"
	ctyjson "github.com/zclconf/go-cty/cty/json"

	"geoexport/internal/geom"
)

// Expr is a compiled filter or label expression. Feature attributes are
// reachable as attr.<name> (or attr["name"]); geometry_type holds the Mapnik
// geometry code, comparable with the point, linestring, polygon and
// collection constants.
type Expr struct {
	src   string
	expr  hcl.Expression
	attrs []string
}

// NewExpr wraps an already parsed HCL expression.
func NewExpr(src string, e hcl.Expression) *Expr {
	return &Expr{src: src, expr: e, attrs: referencedAttrs(e)}
}

// CompileFilter compiles a Mapnik filter such as
// "[highway] = 'primary' and not ([tunnel] = 'yes')".
func CompileFilter(src string) (*Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", src, err)
	}
	fp := &filterParser{toks: toks}
	out, err := fp.logical()
	if err == nil && fp.pos < len(toks) {
		err = fmt.Errorf("unexpected %q", toks[fp.pos].text)
	}
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", src, err)
	}
	e, diags := hclsyntax.ParseExpression([]byte(out), "filter", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("filter %q: %w", src, diags)
	}
	return NewExpr(src, e), nil
}

// CompileText compiles a Mapnik label expression such as "[name] + ' (' + [ref] + ')'".
// A bare word is taken as an attribute name.
func CompileText(src string) (*Expr, error) {
	src = strings.TrimSpace(src)
	if isIdent(src) {
		src = "[" + src + "]"
	}
	toks, err := lex(src)
	if err != nil {
		return nil, fmt.Errorf("text %q: %w", src, err)
	}
	var b strings.Builder
	for _, t := range toks {
		switch {
		case t.kind == tokField:
			s, _ := t.hcl()
			b.WriteString("${" + s + "}")
		case t.kind == tokString || t.kind == tokNumber:
			b.WriteString(escapeTemplate(t.text))
		case t.kind == tokOp && t.text == "+":
		default:
			return nil, fmt.Errorf("text %q: unexpected %q", src, t.text)
		}
	}
	e, diags := hclsyntax.ParseTemplate([]byte(b.String()), "text", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, fmt.Errorf("text %q: %w", src, diags)
	}
	return NewExpr(src, e), nil
}

func (e *Expr) String() string { return e.src }

// Match evaluates the expression as a filter. Evaluation errors and non-boolean
// results count as no match.
func (e *Expr) Match(props map[string]any, kind geom.Kind) bool {
	v, diags := e.expr.Value(evalContext(props, kind, e.attrs, cty.NullVal(cty.DynamicPseudoType)))
	if diags.HasErrors() || !v.IsWhollyKnown() || v.IsNull() {
		return false
	}
	v, err := convert.Convert(v, cty.Bool)
	if err != nil {
		return false
	}
	return v.True()
}

// Text evaluates the expression as a label. Missing attributes render as empty text.
func (e *Expr) Text(props map[string]any, kind geom.Kind) string {
	v, diags := e.expr.Value(evalContext(props, kind, e.attrs, cty.StringVal("")))
	if diags.HasErrors() || !v.IsWhollyKnown() || v.IsNull() {
		return ""
	}
	v, err := convert.Convert(v, cty.String)
	if err != nil {
		return ""
	}
	return v.AsString()
}

var geometryCodes = map[string]cty.Value{
	"point":      cty.NumberIntVal(int64(geom.KindPoint)),
	"linestring": cty.NumberIntVal(int64(geom.KindLineString)),
	"polygon":    cty.NumberIntVal(int64(geom.KindPolygon)),
	"collection": cty.NumberIntVal(int64(geom.KindCollection)),
}

func evalContext(props map[string]any, kind geom.Kind, refs []string, blank cty.Value) *hcl.EvalContext {
	obj := make(map[string]cty.Value, len(props)+len(refs))
	for k, v := range props {
		obj[k] = toCty(v)
	}
	for _, k := range refs {
		if _, ok := obj[k]; !ok {
			obj[k] = blank
		}
	}
	if !blank.IsNull() {
		for k, v := range obj {
			if v.IsNull() {
				obj[k] = blank
			}
		}
	}
	vars := map[string]cty.Value{
		"attr":          cty.ObjectVal(obj),
		"geometry_type": cty.NumberIntVal(int64(kind)),
	}
	for k, v := range geometryCodes {
		vars[k] = v
	}
	return &hcl.EvalContext{Variables: vars}
}

func toCty(v any) cty.Value {
	if v == nil {
		return cty.NullVal(cty.DynamicPseudoType)
	}
	if ty, err := gocty.ImpliedType(v); err == nil {
		if val, err := gocty.ToCtyValue(v, ty); err == nil {
			return val
		}
	}
	// nested GeoJSON properties
	buf, err := json.Marshal(v)
	if err != nil {
		return cty.StringVal(fmt.Sprint(v))
	}
	ty, err := ctyjson.ImpliedType(buf)
	if err != nil {
		return cty.StringVal(string(buf))
	}
	val, err := ctyjson.Unmarshal(buf, ty)
	if err != nil {
		return cty.StringVal(string(buf))
	}
	return val
}

// referencedAttrs lists the attribute names an expression reads with a static key.
func referencedAttrs(e hcl.Expression) []string {
	var names []string
	for _, tr := range e.Variables() {
		if tr.RootName() != "attr" || len(tr) < 2 {
			continue
		}
		switch step := tr[1].(type) {
		case hcl.TraverseAttr:
			names = append(names, step.Name)
		case hcl.TraverseIndex:
			if step.Key.Type() == cty.String && step.Key.IsKnown() && !step.Key.IsNull() {
				names = append(names, step.Key.AsString())
			}
		}
	}
	return names
}

type tokKind int

const (
	tokField tokKind = iota
	tokString
	tokNumber
	tokIdent
	tokOp
	tokParen
)

type token struct {
	kind tokKind
	text string
}

// hcl renders the token in HCL expression syntax.
func (t token) hcl() (string, error) {
	switch t.kind {
	case tokField:
		if t.text == "mapnik::geometry_type" {
			return "geometry_type", nil
		}
		return "attr[" + quoteHCL(t.text) + "]", nil
	case tokString:
		return quoteHCL(t.text), nil
	case tokIdent:
		switch w := strings.ToLower(t.text); w {
		case "true", "false", "null", "point", "linestring", "polygon", "collection":
			return w, nil
		}
		return "", fmt.Errorf("unknown identifier %q", t.text)
	case tokOp:
		switch t.text {
		case "=":
			return "==", nil
		case "<>":
			return "!=", nil
		}
	}
	return t.text, nil
}

// filterParser rewrites a Mapnik filter into a fully parenthesised HCL
// expression. "and" and "or" share one precedence level and fold left to
// right; "not" negates the comparison that follows it.
type filterParser struct {
	toks []token
	pos  int
}

func (p *filterParser) peek() (token, bool) {
	if p.pos >= len(p.toks) {
		return token{}, false
	}
	return p.toks[p.pos], true
}

// accept consumes the next token when it is one of the given operators or
// keywords.
func (p *filterParser) accept(words ...string) (string, bool) {
	t, ok := p.peek()
	if !ok || (t.kind != tokOp && t.kind != tokIdent) {
		return "", false
	}
	w := strings.ToLower(t.text)
	for _, want := range words {
		if w == want {
			p.pos++
			return w, true
		}
	}
	return "", false
}

func (p *filterParser) logical() (string, error) {
	acc, err := p.not()
	if err != nil {
		return "", err
	}
	for {
		w, ok := p.accept("and", "&&", "or", "||")
		if !ok {
			return acc, nil
		}
		rhs, err := p.not()
		if err != nil {
			return "", err
		}
		op := "&&"
		if w == "or" || w == "||" {
			op = "||"
		}
		acc = "(" + acc + " " + op + " " + rhs + ")"
	}
}

func (p *filterParser) not() (string, error) {
	if _, ok := p.accept("not", "!"); ok {
		c, err := p.comparison()
		if err != nil {
			return "", err
		}
		return "!(" + c + ")", nil
	}
	return p.comparison()
}

var comparisonOps = map[string]string{
	"=": "==", "==": "==", "<>": "!=", "!=": "!=",
	"<": "<", "<=": "<=", ">": ">", ">=": ">=",
}

func (p *filterParser) comparison() (string, error) {
	lhs, err := p.binary(1)
	if err != nil {
		return "", err
	}
	t, ok := p.peek()
	if !ok || t.kind != tokOp || comparisonOps[t.text] == "" {
		return lhs, nil
	}
	p.pos++
	rhs, err := p.binary(1)
	if err != nil {
		return "", err
	}
	return "(" + lhs + " " + comparisonOps[t.text] + " " + rhs + ")", nil
}

// arithmetic levels, loosest first
var arithmeticOps = [][]string{1: {"+", "-"}, 2: {"*", "/", "%"}}

func (p *filterParser) binary(level int) (string, error) {
	if level >= len(arithmeticOps) {
		return p.unary()
	}
	acc, err := p.binary(level + 1)
	if err != nil {
		return "", err
	}
	for {
		op, ok := p.accept(arithmeticOps[level]...)
		if !ok {
			return acc, nil
		}
		rhs, err := p.binary(level + 1)
		if err != nil {
			return "", err
		}
		acc = "(" + acc + " " + op + " " + rhs + ")"
	}
}

func (p *filterParser) unary() (string, error) {
	if _, ok := p.accept("-"); ok {
		v, err := p.unary()
		if err != nil {
			return "", err
		}
		return "(-" + v + ")", nil
	}
	return p.primary()
}

func (p *filterParser) primary() (string, error) {
	t, ok := p.peek()
	if !ok {
		return "", fmt.Errorf("unexpected end of expression")
	}
	p.pos++
	switch t.kind {
	case tokParen:
		if t.text != "(" {
			return "", fmt.Errorf("unexpected %q", t.text)
		}
		inner, err := p.logical()
		if err != nil {
			return "", err
		}
		if c, ok := p.peek(); !ok || c.kind != tokParen || c.text != ")" {
			return "", fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return "(" + inner + ")", nil
	case tokOp:
		return "", fmt.Errorf("unexpected %q", t.text)
	}
	return t.hcl()
}

var operators = []string{"<>", "!=", "<=", ">=", "==", "&&", "||", "=", "<", ">", "!", "+", "-", "*", "/", "%"}

func lex(s string) ([]token, error) {
	var toks []token
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '[':
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("unterminated attribute at offset %d", i)
			}
			toks = append(toks, token{tokField, s[i+1 : i+end]})
			i += end + 1
		case c == '\'' || c == '"':
			var b strings.Builder
			j := i + 1
			for ; j < len(s) && s[j] != c; j++ {
				if s[j] == '\\' && j+1 < len(s) {
					j++
				}
				b.WriteByte(s[j])
			}
			if j >= len(s) {
				return nil, fmt.Errorf("unterminated string at offset %d", i)
			}
			toks = append(toks, token{tokString, b.String()})
			i = j + 1
		case c == '(' || c == ')':
			toks = append(toks, token{tokParen, string(c)})
			i++
		case isDigit(c) || (c == '.' && i+1 < len(s) && isDigit(s[i+1])):
			j := i
			for j < len(s) && (isDigit(s[j]) || s[j] == '.' || s[j] == 'e' || s[j] == 'E' ||
				((s[j] == '-' || s[j] == '+') && j > i && (s[j-1] == 'e' || s[j-1] == 'E'))) {
				j++
			}
			toks = append(toks, token{tokNumber, s[i:j]})
			i = j
		case isIdentByte(c, true):
			j := i
			for j < len(s) && isIdentByte(s[j], false) {
				j++
			}
			toks = append(toks, token{tokIdent, s[i:j]})
			i = j
		default:
			op := ""
			for _, o := range operators {
				if strings.HasPrefix(s[i:], o) {
					op = o
					break
				}
			}
			if op == "" {
				return nil, fmt.Errorf("unexpected %q at offset %d", c, i)
			}
			toks = append(toks, token{tokOp, op})
			i += len(op)
		}
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	return toks, nil
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentByte(c byte, first bool) bool {
	if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
		return true
	}
	return !first && (isDigit(c) || c == ':')
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isIdentByte(s[i], i == 0) {
			return false
		}
	}
	return true
}

var quoteReplacer = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
	"${", "$${",
	"%{", "%%{",
)

func quoteHCL(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}

var templateReplacer = strings.NewReplacer("${", "$${", "%{", "%%{")

func escapeTemplate(s string) string {
	return templateReplacer.Replace(s)
}
