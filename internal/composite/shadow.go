package composite

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/lox/tdomcomposite/internal/metrics"
	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/raster"
)

// ShadowStats is the per-pixel temporal baseline of the shadowSum band.
type ShadowStats struct {
	Mean   raster.Band
	StdDev raster.Band
}

// AddShadowSum appends the shadowSum band: the sum of bands, valid only where
// every summed band is valid.
func AddShadowSum(scene models.Scene, bands []string) (models.Scene, error) {
	n := scene.Grid.Len()
	sum := raster.Band{
		Name:   models.BandShadowSum,
		Values: make([]float64, n),
		Valid:  raster.NewMask(n, true),
	}
	for _, name := range bands {
		b, ok := scene.Band(name)
		if !ok {
			return models.Scene{}, fmt.Errorf("shadow sum: scene %s has no band %q", scene.ID, name)
		}
		for i := 0; i < n; i++ {
			sum.Values[i] += b.Values[i]
			sum.Valid[i] = sum.Valid[i] && b.Valid[i]
		}
	}
	return scene.WithBand(sum), nil
}

// ComputeShadowStats computes the mean and sample standard deviation of
// shadowSum per pixel across the collection. Pixels without observations
// are invalid in both outputs.
func ComputeShadowStats(c models.Collection) ShadowStats {
	if len(c) == 0 {
		return ShadowStats{}
	}
	n := c[0].Grid.Len()
	mean := raster.NewBand("mean", n)
	std := raster.NewBand("stdDev", n)

	sums := make([]raster.Band, 0, len(c))
	for _, s := range c {
		if b, ok := s.Band(models.BandShadowSum); ok {
			sums = append(sums, b)
		}
	}

	obs := make([]float64, 0, len(sums))
	for i := 0; i < n; i++ {
		obs = obs[:0]
		for _, b := range sums {
			if b.Valid[i] {
				obs = append(obs, b.Values[i])
			}
		}
		if len(obs) == 0 {
			continue
		}
		m, sd := stat.MeanStdDev(obs, nil)
		mean.Values[i], mean.Valid[i] = m, true
		// A single observation has no sample deviation; gonum yields NaN,
		// which MaskShadow treats as "not a shadow".
		std.Values[i], std.Valid[i] = sd, true
	}
	return ShadowStats{Mean: mean, StdDev: std}
}

// ShadowFlags marks pixels whose shadowSum z-score is below zThreshold.
// Pixels with zero, NaN or missing deviation are never flagged.
func ShadowFlags(scene models.Scene, stats ShadowStats, zThreshold float64) raster.Mask {
	n := scene.Grid.Len()
	flags := raster.NewMask(n, false)
	sum, ok := scene.Band(models.BandShadowSum)
	if !ok || len(stats.Mean.Values) != n {
		return flags
	}
	for i := 0; i < n; i++ {
		v, valid := sum.At(i)
		if !valid || !stats.Mean.Valid[i] || !stats.StdDev.Valid[i] {
			continue
		}
		sd := stats.StdDev.Values[i]
		if sd == 0 || math.IsNaN(sd) {
			continue
		}
		z := (v - stats.Mean.Values[i]) / sd
		if math.IsNaN(z) || math.IsInf(z, 0) {
			continue
		}
		flags[i] = z < zThreshold
	}
	return flags
}

// MaskShadow removes temporal dark outliers (likely cloud shadow) from scene.
func MaskShadow(scene models.Scene, stats ShadowStats, zThreshold float64, shadowExpandIterations int) models.Scene {
	shadows := ShadowFlags(scene, stats, zThreshold)
	if shadowExpandIterations > 0 {
		shadows = raster.Dilate(shadows, scene.Grid, shadowExpandIterations)
	}
	metrics.PixelsMasked.WithLabelValues("shadow").Add(float64(shadows.Count()))
	return scene.WithMask(shadows.Not())
}
