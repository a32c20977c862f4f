// Package region holds the study-area geometry used to clip and split composites.
package region

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/lox/tdomcomposite/internal/raster"
)

// Region is a named area of interest.
type Region struct {
	Name     string
	Geometry orb.Geometry
}

// Rectangle builds a rectangular region from two opposite corners,
// in the same west/north/east/south order Earth Engine rectangles use.
func Rectangle(name string, x1, y1, x2, y2 float64) Region {
	b := orb.Bound{Min: orb.Point{x1, y1}, Max: orb.Point{x1, y1}}.Extend(orb.Point{x2, y2})
	return Region{Name: name, Geometry: b.ToPolygon()}
}

// ParseGeoJSON accepts a bare Geometry, a Feature or a FeatureCollection
// (first feature) and returns its geometry.
func ParseGeoJSON(name string, data []byte) (Region, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return Region{}, fmt.Errorf("parse region %s: %w", name, err)
	}

	var geom orb.Geometry
	switch probe.Type {
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return Region{}, fmt.Errorf("parse region %s feature: %w", name, err)
		}
		geom = f.Geometry
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return Region{}, fmt.Errorf("parse region %s collection: %w", name, err)
		}
		if len(fc.Features) == 0 {
			return Region{}, fmt.Errorf("parse region %s: empty feature collection", name)
		}
		geom = fc.Features[0].Geometry
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return Region{}, fmt.Errorf("parse region %s geometry: %w", name, err)
		}
		geom = g.Geometry()
	}

	if geom == nil {
		return Region{}, fmt.Errorf("parse region %s: missing geometry", name)
	}
	switch geom.(type) {
	case orb.Polygon, orb.MultiPolygon, orb.Bound:
	default:
		return Region{}, fmt.Errorf("parse region %s: unsupported geometry %s", name, geom.GeoJSONType())
	}
	return Region{Name: name, Geometry: geom}, nil
}

func (r Region) Bound() orb.Bound {
	return r.Geometry.Bound()
}

// Contains reports whether p lies inside the region footprint.
func (r Region) Contains(p orb.Point) bool {
	switch g := r.Geometry.(type) {
	case orb.Polygon:
		return planar.PolygonContains(g, p)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(g, p)
	case orb.Bound:
		return g.Contains(p)
	default:
		return false
	}
}

// Footprint marks the grid pixels whose centre falls inside the region.
func (r Region) Footprint(g raster.Grid) raster.Mask {
	m := raster.NewMask(g.Len(), false)
	for i := range m {
		m[i] = r.Contains(g.Center(i))
	}
	return m
}

// GeoJSON renders the region geometry for export manifests.
func (r Region) GeoJSON() ([]byte, error) {
	return json.Marshal(geojson.NewGeometry(r.Geometry))
}

// Split cuts the region's bounding box into rows stacked north to south,
// each clipped back to the region by the caller. Names get _1.._n suffixes.
func (r Region) Split(rows int) []Region {
	if rows <= 1 {
		return []Region{r}
	}
	b := r.Bound()
	step := (b.Max[1] - b.Min[1]) / float64(rows)
	out := make([]Region, 0, rows)
	for i := 0; i < rows; i++ {
		north := b.Max[1] - float64(i)*step
		south := north - step
		if i == rows-1 {
			south = b.Min[1]
		}
		box := orb.Bound{Min: orb.Point{b.Min[0], south}, Max: orb.Point{b.Max[0], north}}
		out = append(out, Region{
			Name:     fmt.Sprintf("%s_%d", r.Name, i+1),
			Geometry: box.ToPolygon(),
		})
	}
	return out
}

// GridFor lays a grid of pixelSize cells over the region's bounding box.
func GridFor(r Region, pixelSize float64, crs string) raster.Grid {
	b := r.Bound()
	w := int((b.Max[0]-b.Min[0])/pixelSize + 0.5)
	h := int((b.Max[1]-b.Min[1])/pixelSize + 0.5)
	return raster.Grid{
		Width:     max(1, w),
		Height:    max(1, h),
		West:      b.Min[0],
		North:     b.Max[1],
		PixelSize: pixelSize,
		CRS:       crs,
	}
}
