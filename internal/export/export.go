// Package export writes encoded composites and their metadata tables to
// local directories or object storage.
package export

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/lox/tdomcomposite/internal/composite"
	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/raster"
)

// DefaultMaxPixels matches the per-export pixel ceiling of the hosted archive.
const DefaultMaxPixels = 1e13

// ImageOptions control one raster export.
type ImageOptions struct {
	Name        string
	ScaleMeters float64
	MaxPixels   float64
	CRS         string
}

// Sink receives composites and metadata tables.
type Sink interface {
	ExportImage(ctx context.Context, enc composite.Encoded, opts ImageOptions) error
	ExportTable(ctx context.Context, table models.MetadataTable, name string) error
}

// TooManyPixelsError rejects an export larger than the configured ceiling.
type TooManyPixelsError struct {
	Name   string
	Pixels int64
	Max    float64
}

func (e *TooManyPixelsError) Error() string {
	return fmt.Sprintf("export %s: %d pixels exceeds max %.0f", e.Name, e.Pixels, e.Max)
}

// CheckMaxPixels enforces opts.MaxPixels (DefaultMaxPixels when zero).
func CheckMaxPixels(enc composite.Encoded, opts ImageOptions) error {
	limit := opts.MaxPixels
	if limit <= 0 {
		limit = DefaultMaxPixels
	}
	if n := enc.PixelCount(); float64(n) > limit {
		return &TooManyPixelsError{Name: opts.Name, Pixels: n, Max: limit}
	}
	return nil
}

// Crop returns the part of enc whose pixel centres fall inside b. Adjacent
// bounds sharing an edge partition the pixels without overlap.
func Crop(enc composite.Encoded, b orb.Bound) (composite.Encoded, error) {
	g := enc.Grid
	x0 := clamp(int(math.Ceil((b.Min[0]-g.West)/g.PixelSize-0.5)), 0, g.Width)
	x1 := clamp(int(math.Ceil((b.Max[0]-g.West)/g.PixelSize-0.5)), 0, g.Width)
	y0 := clamp(int(math.Ceil((g.North-b.Max[1])/g.PixelSize-0.5)), 0, g.Height)
	y1 := clamp(int(math.Ceil((g.North-b.Min[1])/g.PixelSize-0.5)), 0, g.Height)
	if x1 <= x0 || y1 <= y0 {
		return composite.Encoded{}, fmt.Errorf("crop %s: bound %v does not cover any pixel", enc.ID, b)
	}

	sub := raster.Grid{
		Width:     x1 - x0,
		Height:    y1 - y0,
		West:      g.West + float64(x0)*g.PixelSize,
		North:     g.North - float64(y0)*g.PixelSize,
		PixelSize: g.PixelSize,
		CRS:       g.CRS,
	}
	out := enc
	out.Grid = sub
	out.Samples = make([][]int64, len(enc.Samples))
	out.Valid = make([]raster.Mask, len(enc.Valid))
	for bi := range enc.Samples {
		samples := make([]int64, 0, sub.Len())
		valid := make(raster.Mask, 0, sub.Len())
		for y := y0; y < y1; y++ {
			row := g.Index(x0, y)
			samples = append(samples, enc.Samples[bi][row:row+sub.Width]...)
			valid = append(valid, enc.Valid[bi][row:row+sub.Width]...)
		}
		out.Samples[bi] = samples
		out.Valid[bi] = valid
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
