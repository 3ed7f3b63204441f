package tui

import (
	"math"
	"sort"

	"github.com/paulmach/orb"
)

// brailleBuf is a w by h cell canvas where every cell holds a 2x4 grid of
// micro-pixels rendered as one braille glyph.
type brailleBuf struct {
	w, h int
	m    [][]uint8 // per-cell dot mask
}

func newBrailleBuf(w, h int) *brailleBuf {
	m := make([][]uint8, h)
	for i := range m {
		m[i] = make([]uint8, w)
	}
	return &brailleBuf{w: w, h: h, m: m}
}

// dots maps a micro-pixel's position inside its cell to the braille bit.
var dots = [2][4]uint8{
	{0x01, 0x02, 0x04, 0x40},
	{0x08, 0x10, 0x20, 0x80},
}

func (b *brailleBuf) setPixel(mx, my int) {
	if mx < 0 || my < 0 {
		return
	}
	cx, cy := mx/2, my/4
	if cx >= b.w || cy >= b.h {
		return
	}
	b.m[cy][cx] |= dots[mx%2][my%4]
}

func (b *brailleBuf) isSet(mx, my int) bool {
	if mx < 0 || my < 0 || mx/2 >= b.w || my/4 >= b.h {
		return false
	}
	return b.m[my/4][mx/2]&dots[mx%2][my%4] != 0
}

// line draws with Bresenham on the micro grid.
func (b *brailleBuf) line(x0, y0, x1, y1 int) {
	dx := abs(x1 - x0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	dy := -abs(y1 - y0)
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx + dy
	for {
		b.setPixel(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func (b *brailleBuf) polyline(pts []orb.Point) {
	for i := 1; i < len(pts); i++ {
		b.line(round(pts[i-1][0]), round(pts[i-1][1]), round(pts[i][0]), round(pts[i][1]))
	}
}

// fill paints the even-odd interior of rings, sampling each micro row at its
// centre. Holes stay empty.
func (b *brailleBuf) fill(rings [][]orb.Point) {
	hMic := b.h * 4
	var xs []float64
	for y := 0; y < hMic; y++ {
		yc := float64(y) + 0.5
		xs = xs[:0]
		for _, r := range rings {
			for i := range r {
				p, q := r[i], r[(i+1)%len(r)]
				if (p[1] <= yc) == (q[1] <= yc) {
					continue
				}
				t := (yc - p[1]) / (q[1] - p[1])
				xs = append(xs, p[0]+t*(q[0]-p[0]))
			}
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			lo := max(0, int(math.Ceil(xs[i]-0.5)))
			hi := min(b.w*2-1, int(math.Floor(xs[i+1]-0.5)))
			for x := lo; x <= hi; x++ {
				b.setPixel(x, y)
			}
		}
	}
}

func (b *brailleBuf) toLines() []string {
	out := make([]string, b.h)
	for y := 0; y < b.h; y++ {
		row := make([]rune, b.w)
		for x := 0; x < b.w; x++ {
			if mask := b.m[y][x]; mask == 0 {
				row[x] = ' '
			} else {
				row[x] = rune(0x2800 + int(mask))
			}
		}
		out[y] = string(row)
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func round(f float64) int { return int(math.Round(f)) }
