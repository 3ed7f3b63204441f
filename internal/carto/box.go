package carto

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

// Coord is a position in some coordinate system.
type Coord struct {
	X, Y float64
}

// Box is an axis aligned rectangle. NewBox always yields Min <= Max.
type Box struct {
	MinX, MinY, MaxX, MaxY float64
}

// NewBox builds a box from two opposite corners in any order.
func NewBox(x0, y0, x1, y1 float64) Box {
	return Box{
		MinX: math.Min(x0, x1),
		MinY: math.Min(y0, y1),
		MaxX: math.Max(x0, x1),
		MaxY: math.Max(y0, y1),
	}
}

// BoxFromBound converts an orb bound.
func BoxFromBound(b orb.Bound) Box {
	return NewBox(b.Min.X(), b.Min.Y(), b.Max.X(), b.Max.Y())
}

func (b Box) Width() float64  { return b.MaxX - b.MinX }
func (b Box) Height() float64 { return b.MaxY - b.MinY }

func (b Box) Center() Coord {
	return Coord{X: (b.MinX + b.MaxX) / 2, Y: (b.MinY + b.MaxY) / 2}
}

// Valid reports whether the box has a positive, finite area.
func (b Box) Valid() bool {
	w, h := b.Width(), b.Height()
	return w > 0 && h > 0 && !math.IsInf(w, 0) && !math.IsInf(h, 0)
}

// Pad grows the box by d on every side.
func (b Box) Pad(d float64) Box {
	return Box{MinX: b.MinX - d, MinY: b.MinY - d, MaxX: b.MaxX + d, MaxY: b.MaxY + d}
}

func (b Box) Bound() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinX, b.MinY}, Max: orb.Point{b.MaxX, b.MaxY}}
}

func (b Box) String() string {
	return fmt.Sprintf("box(%g %g, %g %g)", b.MinX, b.MinY, b.MaxX, b.MaxY)
}
