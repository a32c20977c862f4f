package raster

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Grid describes the pixel lattice shared by every band of a scene.
// West/North locate the outer corner of pixel (0, 0); rows grow southwards.
type Grid struct {
	Width     int
	Height    int
	West      float64
	North     float64
	PixelSize float64
	CRS       string
}

func (g Grid) Len() int {
	return g.Width * g.Height
}

func (g Grid) Index(x, y int) int {
	return y*g.Width + x
}

func (g Grid) XY(i int) (int, int) {
	return i % g.Width, i / g.Width
}

// Center returns the CRS coordinate of the centre of pixel i.
func (g Grid) Center(i int) orb.Point {
	x, y := g.XY(i)
	return orb.Point{
		g.West + (float64(x)+0.5)*g.PixelSize,
		g.North - (float64(y)+0.5)*g.PixelSize,
	}
}

func (g Grid) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{g.West, g.North - float64(g.Height)*g.PixelSize},
		Max: orb.Point{g.West + float64(g.Width)*g.PixelSize, g.North},
	}
}

// SameShape reports whether two grids address the same pixels.
func (g Grid) SameShape(o Grid) bool {
	return g.Width == o.Width && g.Height == o.Height &&
		g.West == o.West && g.North == o.North && g.PixelSize == o.PixelSize
}

func (g Grid) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("grid: invalid size %dx%d", g.Width, g.Height)
	}
	if g.PixelSize <= 0 {
		return fmt.Errorf("grid: invalid pixel size %v", g.PixelSize)
	}
	return nil
}
