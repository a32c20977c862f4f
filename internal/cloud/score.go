// Package cloud scores per-pixel cloud likelihood for remapped Landsat scenes.
package cloud

import (
	"github.com/lox/tdomcomposite/internal/models"
)

// Scorer produces a per-pixel cloud score, roughly 0 (clear) to 100 (cloud).
type Scorer interface {
	Score(scene models.Scene) []float64
}

// ScorerFunc adapts a function to Scorer.
type ScorerFunc func(scene models.Scene) []float64

func (f ScorerFunc) Score(scene models.Scene) []float64 { return f(scene) }

// SimpleScore is the Landsat "simple cloud score": each spectral test is
// rescaled into [0, 1] and the minimum across tests is taken, so a pixel
// only scores high if it is bright, cold and not snow.
type SimpleScore struct{}

func (SimpleScore) Score(scene models.Scene) []float64 {
	n := scene.Grid.Len()
	get := func(name string) []float64 {
		if b, ok := scene.Band(name); ok {
			return b.Values
		}
		return make([]float64, n)
	}
	blue, green, red := get(models.BandBlue), get(models.BandGreen), get(models.BandRed)
	nir, swir1, swir2 := get(models.BandNIR), get(models.BandSWIR1), get(models.BandSWIR2)
	temp := get(models.BandTemp)

	out := make([]float64, n)
	for i := 0; i < n; i++ {
		score := 1.0
		score = min(score, rescale(blue[i], 0.1, 0.3))
		score = min(score, rescale(red[i]+green[i]+blue[i], 0.2, 0.8))
		score = min(score, rescale(nir[i]+swir1[i]+swir2[i], 0.3, 0.8))
		score = min(score, rescale(temp[i], 300, 290))

		// Snow is bright and cold too; high NDSI pulls the score down.
		if d := green[i] + swir1[i]; d != 0 {
			ndsi := (green[i] - swir1[i]) / d
			score = min(score, rescale(ndsi, 0.8, 0.6))
		}
		out[i] = score * 100
	}
	return out
}

// rescale maps v linearly so lo->0 and hi->1, clamped to [0, 1].
func rescale(v, lo, hi float64) float64 {
	return max(0, min(1, (v-lo)/(hi-lo)))
}
