package composite

import (
	"math"

	"github.com/lox/tdomcomposite/internal/cloud"
	"github.com/lox/tdomcomposite/internal/metrics"
	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/raster"
)

// negativeFloor rejects pixels whose darkest band sits at or below it;
// such values come from sensor artefacts, not surfaces.
const negativeFloor = -0.001

// MaskScene removes cloud, partially-covered and implausibly negative pixels.
// Band values are untouched; only validity shrinks.
func MaskScene(scene models.Scene, scorer cloud.Scorer, cloudThreshold float64, cloudExpandIterations int) models.Scene {
	n := scene.Grid.Len()

	cloudy := raster.NewMask(n, false)
	for i, score := range scorer.Score(scene) {
		cloudy[i] = score > cloudThreshold
	}
	if cloudExpandIterations > 0 {
		cloudy = raster.Dilate(cloudy, scene.Grid, cloudExpandIterations)
	}

	nBands := len(scene.Bands)
	keep := raster.NewMask(n, false)
	var cloudCount, partialCount, negativeCount int
	for i := 0; i < n; i++ {
		count := 0
		lowest := math.Inf(1)
		for _, b := range scene.Bands {
			if b.Valid[i] {
				count++
				lowest = min(lowest, b.Values[i])
			}
		}
		if count == 0 {
			continue
		}

		allOrNone := count >= nBands
		aboveFloor := lowest > negativeFloor
		switch {
		case cloudy[i]:
			cloudCount++
		case !allOrNone:
			partialCount++
		case !aboveFloor:
			negativeCount++
		default:
			keep[i] = true
		}
	}

	metrics.PixelsMasked.WithLabelValues("cloud").Add(float64(cloudCount))
	metrics.PixelsMasked.WithLabelValues("partial").Add(float64(partialCount))
	metrics.PixelsMasked.WithLabelValues("negative").Add(float64(negativeCount))

	return scene.WithMask(keep)
}
