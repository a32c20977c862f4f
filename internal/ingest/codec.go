package ingest

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/raster"
)

// SceneDoc is the archive wire form of one scene. Valid may be omitted when
// every pixel of a band carries data.
type SceneDoc struct {
	ID         string    `json:"id"`
	Spacecraft string    `json:"spacecraft"`
	Acquired   time.Time `json:"acquired"`
	Grid       GridDoc   `json:"grid"`
	Bands      []BandDoc `json:"bands"`
}

type GridDoc struct {
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	West      float64 `json:"west"`
	North     float64 `json:"north"`
	PixelSize float64 `json:"pixelSize"`
	CRS       string  `json:"crs"`
}

type BandDoc struct {
	Name   string    `json:"name"`
	Values []float64 `json:"values"`
	Valid  []bool    `json:"valid,omitempty"`
}

type SceneList struct {
	Scenes []SceneDoc `json:"scenes"`
}

// ToScene converts a wire document into a validated scene.
func (d SceneDoc) ToScene() (models.Scene, error) {
	sensor, ok := models.SensorForSpacecraft(d.Spacecraft)
	if !ok {
		return models.Scene{}, fmt.Errorf("scene %s: unknown spacecraft %q", d.ID, d.Spacecraft)
	}
	s := models.Scene{
		ID:         d.ID,
		Sensor:     sensor,
		AcquiredAt: d.Acquired.UTC(),
		Grid: raster.Grid{
			Width:     d.Grid.Width,
			Height:    d.Grid.Height,
			West:      d.Grid.West,
			North:     d.Grid.North,
			PixelSize: d.Grid.PixelSize,
			CRS:       d.Grid.CRS,
		},
	}
	n := s.Grid.Len()
	for _, b := range d.Bands {
		valid := raster.Mask(b.Valid)
		if valid == nil {
			valid = raster.NewMask(n, true)
		}
		s.Bands = append(s.Bands, raster.Band{Name: b.Name, Values: b.Values, Valid: valid})
	}
	if err := s.Validate(); err != nil {
		return models.Scene{}, err
	}
	return s, nil
}

// DocFromScene is the inverse of ToScene.
func DocFromScene(s models.Scene) SceneDoc {
	d := SceneDoc{
		ID:         s.ID,
		Spacecraft: s.Sensor.Spacecraft(),
		Acquired:   s.AcquiredAt,
		Grid: GridDoc{
			Width:     s.Grid.Width,
			Height:    s.Grid.Height,
			West:      s.Grid.West,
			North:     s.Grid.North,
			PixelSize: s.Grid.PixelSize,
			CRS:       s.Grid.CRS,
		},
	}
	for _, b := range s.Bands {
		bd := BandDoc{Name: b.Name, Values: b.Values}
		if b.Valid.Count() != len(b.Valid) {
			bd.Valid = b.Valid
		}
		d.Bands = append(d.Bands, bd)
	}
	return d
}

// DecodeSceneGzip reads one gzip-compressed JSON scene document.
func DecodeSceneGzip(r io.Reader) (models.Scene, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return models.Scene{}, fmt.Errorf("open gzip: %w", err)
	}
	defer gz.Close()

	var doc SceneDoc
	if err := json.NewDecoder(gz).Decode(&doc); err != nil {
		return models.Scene{}, fmt.Errorf("decode scene: %w", err)
	}
	return doc.ToScene()
}

// EncodeSceneGzip writes s in the mirror file format.
func EncodeSceneGzip(s models.Scene) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(DocFromScene(s)); err != nil {
		return nil, fmt.Errorf("encode scene: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("close gzip: %w", err)
	}
	return buf.Bytes(), nil
}

// selectScenes applies the query's date and day-of-year windows and sensor.
func selectScenes(c models.Collection, q models.SceneQuery) models.Collection {
	var out models.Collection
	for _, s := range c.FilterDate(q.Dates).FilterJulian(q.Julian) {
		if s.Sensor == q.Sensor {
			out = append(out, s)
		}
	}
	return out
}

func result(c models.Collection, q models.SceneQuery) models.FetchResult {
	return models.NewFetchResult(c, models.TemplateFor(q.Sensor, q.Grid, q.Dates.Start))
}
