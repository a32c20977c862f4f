package composite

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/raster"
)

// Reducer collapses a scene stack into one band per requested name.
type Reducer interface {
	Reduce(c models.Collection, bands []string) []raster.Band
	// Method and Parameters are recorded in the composite metadata.
	Method() string
	Parameters() string
}

// Statistic summarises the sorted valid observations at one pixel.
type Statistic interface {
	Apply(sorted []float64) float64
	Name() string
	Param() string
}

// Percentile selects the empirical p-th percentile (0..100).
type Percentile float64

func (p Percentile) Apply(sorted []float64) float64 {
	return stat.Quantile(float64(p)/100, stat.Empirical, sorted, nil)
}

func (p Percentile) Name() string  { return "Percentile" }
func (p Percentile) Param() string { return strconv.FormatFloat(float64(p), 'f', -1, 64) }

// Median averages the two middle values for even counts.
type Median struct{}

func (Median) Apply(sorted []float64) float64 {
	m, err := stats.Median(stats.Float64Data(sorted))
	if err != nil {
		return 0
	}
	return m
}

func (Median) Name() string  { return "Median" }
func (Median) Param() string { return "" }

type Mean struct{}

func (Mean) Apply(sorted []float64) float64 { return stat.Mean(sorted, nil) }
func (Mean) Name() string                   { return "Mean" }
func (Mean) Param() string                  { return "" }

// ParseStatistic reads "percentile:50", "median" or "mean".
func ParseStatistic(spec string) (Statistic, error) {
	name, arg, _ := strings.Cut(strings.ToLower(strings.TrimSpace(spec)), ":")
	switch name {
	case "", "percentile":
		if arg == "" {
			return Percentile(50), nil
		}
		p, err := strconv.ParseFloat(arg, 64)
		if err != nil || p < 0 || p > 100 {
			return nil, &models.ConfigurationError{Field: "reducer_spec", Reason: fmt.Sprintf("invalid percentile %q", arg)}
		}
		return Percentile(p), nil
	case "median":
		return Median{}, nil
	case "mean":
		return Mean{}, nil
	default:
		return nil, &models.ConfigurationError{Field: "reducer_spec", Reason: fmt.Sprintf("unknown reducer %q", spec)}
	}
}

// StatisticalReducer applies Stat per band, per pixel, over valid observations.
type StatisticalReducer struct {
	Stat Statistic
}

func (r StatisticalReducer) Method() string     { return r.Stat.Name() }
func (r StatisticalReducer) Parameters() string { return r.Stat.Param() }

func (r StatisticalReducer) Reduce(c models.Collection, bands []string) []raster.Band {
	return reduceBands(c, bands, func(name string, n int) raster.Band {
		out := raster.NewBand(name, n)
		layers := bandLayers(c, name)
		obs := make([]float64, 0, len(layers))
		for i := 0; i < n; i++ {
			obs = obs[:0]
			for _, b := range layers {
				if b.Valid[i] {
					obs = append(obs, b.Values[i])
				}
			}
			if len(obs) == 0 {
				continue
			}
			sort.Float64s(obs)
			out.Values[i] = r.Stat.Apply(obs)
			out.Valid[i] = true
		}
		return out
	})
}

// NewestPixelReducer mosaics the stack newest-first: each pixel takes the
// most recent valid observation.
type NewestPixelReducer struct{}

func (NewestPixelReducer) Method() string     { return "NewestPixel" }
func (NewestPixelReducer) Parameters() string { return "" }

func (NewestPixelReducer) Reduce(c models.Collection, bands []string) []raster.Band {
	sorted := c.SortedNewestFirst()
	return reduceBands(sorted, bands, func(name string, n int) raster.Band {
		out := raster.NewBand(name, n)
		for _, b := range bandLayers(sorted, name) {
			for i := 0; i < n; i++ {
				if !out.Valid[i] && b.Valid[i] {
					out.Values[i] = b.Values[i]
					out.Valid[i] = true
				}
			}
		}
		return out
	})
}

// Reduction modes accepted by NewReducer.
const (
	ModeStatistical = "statistical"
	ModeNewestPixel = "newest-pixel"
)

// NewReducer builds the strategy for a reduction mode.
func NewReducer(mode, spec string) (Reducer, error) {
	switch strings.ToLower(mode) {
	case "", ModeStatistical:
		st, err := ParseStatistic(spec)
		if err != nil {
			return nil, err
		}
		return StatisticalReducer{Stat: st}, nil
	case ModeNewestPixel:
		return NewestPixelReducer{}, nil
	default:
		return nil, &models.ConfigurationError{Field: "reduction_mode", Reason: fmt.Sprintf("unknown mode %q", mode)}
	}
}

// reduceBands runs one reduction per band concurrently; bands are independent.
func reduceBands(c models.Collection, bands []string, reduce func(name string, n int) raster.Band) []raster.Band {
	if len(c) == 0 {
		return nil
	}
	n := c[0].Grid.Len()
	out := make([]raster.Band, len(bands))
	var wg sync.WaitGroup
	for i, name := range bands {
		wg.Go(func() {
			out[i] = reduce(name, n)
		})
	}
	wg.Wait()
	return out
}

// bandLayers gathers the named band from every scene that carries it.
func bandLayers(c models.Collection, name string) []raster.Band {
	layers := make([]raster.Band, 0, len(c))
	for _, s := range c {
		if b, ok := s.Band(name); ok {
			layers = append(layers, b)
		}
	}
	return layers
}
