// Package preview renders false-colour PNG quicklooks of composites.
package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/lox/tdomcomposite/internal/composite"
	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/raster"
)

// Visualization maps three reflectance bands onto RGB with a linear stretch
// followed by gamma correction.
type Visualization struct {
	Bands [3]string
	Min   [3]float64
	Max   [3]float64
	Gamma float64
}

// FalseColor is the swir1/nir/red stretch used for vegetation quicklooks.
var FalseColor = Visualization{
	Bands: [3]string{models.BandSWIR1, models.BandNIR, models.BandRed},
	Min:   [3]float64{0.05, 0.05, 0.05},
	Max:   [3]float64{0.3, 0.4, 0.4},
	Gamma: 1.6,
}

type Options struct {
	Width int // output width in pixels; height keeps the grid aspect
	Label string
	Vis   Visualization
}

const DefaultWidth = 512

// Render draws c as a PNG. Invalid pixels are transparent.
func Render(c composite.Composite, opts Options) ([]byte, error) {
	vis := opts.Vis
	if vis.Gamma == 0 {
		vis = FalseColor
	}
	width := opts.Width
	if width <= 0 {
		width = DefaultWidth
	}

	src, err := rasterize(c, vis)
	if err != nil {
		return nil, err
	}

	g := c.Grid
	height := int(math.Max(1, math.Round(float64(width)*float64(g.Height)/float64(g.Width))))
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	scaler := draw.Scaler(draw.ApproxBiLinear)
	if width >= g.Width {
		scaler = draw.NearestNeighbor
	}
	scaler.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	if opts.Label != "" {
		drawLabel(dst, opts.Label)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

func rasterize(c composite.Composite, vis Visualization) (*image.NRGBA, error) {
	var bands [3]raster.Band
	for i, name := range vis.Bands {
		b, ok := c.Band(name)
		if !ok {
			return nil, fmt.Errorf("preview: composite %s has no band %q", c.ID, name)
		}
		bands[i] = b
	}

	g := c.Grid
	img := image.NewNRGBA(image.Rect(0, 0, g.Width, g.Height))
	for i := 0; i < g.Len(); i++ {
		x, y := g.XY(i)
		var px color.NRGBA
		ok := true
		for ch, b := range bands {
			v, valid := b.At(i)
			if !valid || math.IsNaN(v) {
				ok = false
				break
			}
			s := stretch(v, vis.Min[ch], vis.Max[ch], vis.Gamma)
			switch ch {
			case 0:
				px.R = s
			case 1:
				px.G = s
			case 2:
				px.B = s
			}
		}
		if ok {
			px.A = 255
			img.SetNRGBA(x, y, px)
		}
	}
	return img, nil
}

// stretch maps v from [lo, hi] onto 0..255 with gamma correction.
func stretch(v, lo, hi, gamma float64) uint8 {
	t := (v - lo) / (hi - lo)
	t = math.Max(0, math.Min(1, t))
	return uint8(math.Round(math.Pow(t, 1/gamma) * 255))
}

func drawLabel(img *image.RGBA, text string) {
	face := basicfont.Face7x13
	b := img.Bounds()
	bg := image.Rect(b.Min.X, b.Max.Y-18, b.Max.X, b.Max.Y)
	draw.Draw(img, bg, image.NewUniform(color.RGBA{0, 0, 0, 160}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(b.Min.X + 4), Y: fixed.I(b.Max.Y - 5)},
	}
	d.DrawString(text)
}
