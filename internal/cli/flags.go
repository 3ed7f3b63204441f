package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"geoexport/internal/export"
)

var (
	_ pflag.Value = (*zoomValue)(nil)
	_ pflag.Value = (*bboxValue)(nil)
)

// zoomValue is an int flag restricted to the export zoom range.
type zoomValue int

func (z *zoomValue) String() string { return strconv.Itoa(int(*z)) }

func (z *zoomValue) Set(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("%q is not an integer", s)
	}
	if n < export.MinZoom || n > export.MaxZoom {
		return fmt.Errorf("%d not in [%d,%d]", n, export.MinZoom, export.MaxZoom)
	}
	*z = zoomValue(n)
	return nil
}

func (z *zoomValue) Type() string { return "int" }

// bboxValue reads west,south,east,north.
type bboxValue export.BBox

func (b *bboxValue) String() string { return export.BBox(*b).String() }

func (b *bboxValue) Set(s string) error {
	v, err := export.ParseBBox(s)
	if err != nil {
		return err
	}
	*b = bboxValue(v)
	return nil
}

func (b *bboxValue) Type() string { return "w,s,e,n" }

// normalizeArgs rewrites "--bbox W S E N" into "--bbox=W,S,E,N" so the four
// values may be given space separated and negative. Anything that does not
// look like four numbers is left for the flag parser to reject.
func normalizeArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			return append(out, args[i:]...)
		}
		if a != "--bbox" || i+4 >= len(args) || !allNumbers(args[i+1:i+5]) {
			out = append(out, a)
			continue
		}
		vals := args[i+1 : i+5]
		out = append(out, "--bbox="+strings.Join(vals, ","))
		i += 4
	}
	return out
}

func allNumbers(vals []string) bool {
	for _, v := range vals {
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			return false
		}
	}
	return true
}
