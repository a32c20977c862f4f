package models

import (
	"time"

	"github.com/paulmach/orb"

	"github.com/lox/tdomcomposite/internal/raster"
)

// FetchResult is what a scene source returns: either scenes (Present) or
// nothing but the shape a stand-in scene must have (Empty).
type FetchResult interface {
	isFetchResult()
}

type Present struct {
	Scenes Collection
}

type Empty struct {
	Template Template
}

func (Present) isFetchResult() {}
func (Empty) isFetchResult()   {}

// Template carries enough shape to build a fully-masked stand-in scene.
type Template struct {
	Sensor     Sensor
	Grid       raster.Grid
	BandNames  []string
	AcquiredAt time.Time
}

// NewFetchResult picks Present or Empty depending on whether scenes is empty.
func NewFetchResult(scenes Collection, tmpl Template) FetchResult {
	if len(scenes) == 0 {
		return Empty{Template: tmpl}
	}
	return Present{Scenes: scenes}
}

// TemplateFor builds the native-band template for a sensor on a grid.
func TemplateFor(sensor Sensor, grid raster.Grid, at time.Time) Template {
	return Template{Sensor: sensor, Grid: grid, BandNames: sensor.NativeBands(), AcquiredAt: at}
}

// Placeholder returns a scene of the template's shape with every pixel invalid.
func (t Template) Placeholder() Scene {
	n := t.Grid.Len()
	bands := make([]raster.Band, len(t.BandNames))
	for i, name := range t.BandNames {
		bands[i] = raster.NewBand(name, n)
	}
	return Scene{
		ID:          "placeholder_" + t.Sensor.String(),
		Sensor:      t.Sensor,
		AcquiredAt:  t.AcquiredAt,
		Grid:        t.Grid,
		Bands:       bands,
		Placeholder: true,
	}
}

// TemplateOf derives a template from an existing scene.
func TemplateOf(s Scene) Template {
	return Template{Sensor: s.Sensor, Grid: s.Grid, BandNames: s.BandNames(), AcquiredAt: s.AcquiredAt}
}

// SceneQuery is one archive request: a sensor's scenes over a region grid,
// restricted by date window and day-of-year window.
type SceneQuery struct {
	Sensor Sensor
	Region string
	Bound  orb.Bound
	Grid   raster.Grid
	Dates  DateRange
	Julian JulianRange
}
