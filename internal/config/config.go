// Package config loads compositing job files.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/lox/tdomcomposite/internal/composite"
	"github.com/lox/tdomcomposite/internal/export"
	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/region"
)

// Job is one compositing job: a region, the years to composite and every
// masking, reduction and export option.
type Job struct {
	Region                 RegionConfig `yaml:"region"`
	Years                  []int        `yaml:"years"`
	CompositePeriodLength  int          `yaml:"composite_period_length"`
	JulianDayRange         [2]int       `yaml:"julian_day_range"`
	ShadowLookbackYears    int          `yaml:"shadow_lookback_years"`
	ShadowLookforwardYears int          `yaml:"shadow_lookforward_years"`
	CloudThreshold         float64      `yaml:"cloud_threshold"`
	CloudExpandIterations  int          `yaml:"cloud_expand_iterations"`
	CandidateSensors       []string     `yaml:"candidate_sensors"`
	ReductionMode          string       `yaml:"reduction_mode"`
	ReducerSpec            string       `yaml:"reducer_spec"`
	ShadowBands            []string     `yaml:"shadow_bands"`
	ZShadowThreshold       float64      `yaml:"z_shadow_threshold"`
	ShadowExpandIterations int          `yaml:"shadow_expand_iterations"`
	OutputScaleFactor      float64      `yaml:"output_scale_factor"`
	OutputPixelType        string       `yaml:"output_pixel_type"`
	Export                 ExportConfig `yaml:"export"`
	Parallelism            int          `yaml:"parallelism"`
}

// RegionConfig names the study area. Exactly one of BBox or GeoJSON is set;
// GeoJSON may be inline or a path relative to the job file.
type RegionConfig struct {
	Name      string    `yaml:"name"`
	BBox      []float64 `yaml:"bbox"`
	GeoJSON   string    `yaml:"geojson"`
	PixelSize float64   `yaml:"pixel_size"`
	CRS       string    `yaml:"crs"`
	baseDir   string
}

type ExportConfig struct {
	ScaleMeters float64 `yaml:"scale_meters"`
	MaxPixels   float64 `yaml:"max_pixels"`
	CRS         string  `yaml:"crs"`
	SplitRows   int     `yaml:"split_rows"`
	Preview     bool    `yaml:"preview"`
}

// Default returns a job with the stock compositing parameters. Region and
// years must still be supplied.
func Default() *Job {
	return &Job{
		CompositePeriodLength:  2,
		JulianDayRange:         [2]int{0, 365},
		CloudThreshold:         10,
		CandidateSensors:       []string{"L5", "L7", "L8"},
		ReductionMode:          composite.ModeStatistical,
		ReducerSpec:            "percentile:50",
		ShadowBands:            []string{models.BandSWIR1, models.BandSWIR2},
		ZShadowThreshold:       -1,
		OutputScaleFactor:      10000,
		OutputPixelType:        "int16",
		Parallelism:            2,
		Region: RegionConfig{
			PixelSize: 0.00025,
			CRS:       "EPSG:4326",
		},
		Export: ExportConfig{
			ScaleMeters: 30,
			MaxPixels:   export.DefaultMaxPixels,
			CRS:         "EPSG:4326",
			SplitRows:   1,
			Preview:     true,
		},
	}
}

// Load reads a YAML job file over the defaults.
func Load(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	job, err := Parse(data)
	if err != nil {
		return nil, err
	}
	job.Region.baseDir = filepath.Dir(path)
	return job, nil
}

func Parse(data []byte) (*Job, error) {
	job := Default()
	if err := yaml.Unmarshal(data, job); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	return job, nil
}

// Validate checks every option before any scene is fetched.
func (j *Job) Validate() error {
	_, err := j.Requests()
	return err
}

// Params builds the shared compositing parameters.
func (j *Job) Params() (composite.Params, error) {
	if len(j.CandidateSensors) == 0 {
		return composite.Params{}, &models.ConfigurationError{Field: "candidate_sensors", Reason: "at least one sensor required"}
	}
	sensors := make([]models.Sensor, 0, len(j.CandidateSensors))
	for _, name := range j.CandidateSensors {
		s, err := models.ParseSensor(name)
		if err != nil {
			return composite.Params{}, err
		}
		sensors = append(sensors, s)
	}

	reducer, err := composite.NewReducer(j.ReductionMode, j.ReducerSpec)
	if err != nil {
		return composite.Params{}, err
	}
	pt, err := composite.ParsePixelType(j.OutputPixelType)
	if err != nil {
		return composite.Params{}, err
	}

	return composite.Params{
		Sensors:                sensors,
		CloudThreshold:         j.CloudThreshold,
		CloudExpandIterations:  j.CloudExpandIterations,
		ShadowBands:            j.ShadowBands,
		ZShadowThreshold:       j.ZShadowThreshold,
		ShadowExpandIterations: j.ShadowExpandIterations,
		Reducer:                reducer,
		ScaleFactor:            j.OutputScaleFactor,
		PixelType:              pt,
		CRS:                    j.Export.CRS,
	}, nil
}

// BuildRegion resolves the configured study area.
func (j *Job) BuildRegion() (region.Region, error) {
	rc := j.Region
	if rc.Name == "" {
		return region.Region{}, &models.ConfigurationError{Field: "region.name", Reason: "required"}
	}
	switch {
	case len(rc.BBox) > 0 && rc.GeoJSON != "":
		return region.Region{}, &models.ConfigurationError{Field: "region", Reason: "set either bbox or geojson, not both"}
	case len(rc.BBox) > 0:
		if len(rc.BBox) != 4 {
			return region.Region{}, &models.ConfigurationError{Field: "region.bbox", Reason: "want [x1, y1, x2, y2]"}
		}
		if rc.BBox[0] == rc.BBox[2] || rc.BBox[1] == rc.BBox[3] {
			return region.Region{}, &models.ConfigurationError{Field: "region.bbox", Reason: "zero area"}
		}
		return region.Rectangle(rc.Name, rc.BBox[0], rc.BBox[1], rc.BBox[2], rc.BBox[3]), nil
	case rc.GeoJSON != "":
		data := []byte(rc.GeoJSON)
		if !looksInline(rc.GeoJSON) {
			p := rc.GeoJSON
			if !filepath.IsAbs(p) && rc.baseDir != "" {
				p = filepath.Join(rc.baseDir, p)
			}
			var err error
			data, err = os.ReadFile(p)
			if err != nil {
				return region.Region{}, &models.ConfigurationError{Field: "region.geojson", Reason: err.Error()}
			}
		}
		r, err := region.ParseGeoJSON(rc.Name, data)
		if err != nil {
			return region.Region{}, &models.ConfigurationError{Field: "region.geojson", Reason: err.Error()}
		}
		return r, nil
	default:
		return region.Region{}, &models.ConfigurationError{Field: "region", Reason: "bbox or geojson required"}
	}
}

func looksInline(s string) bool {
	for _, c := range s {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

// Requests expands the job into one compositing request per year, in the
// order the years are listed.
func (j *Job) Requests() ([]composite.Request, error) {
	if len(j.Years) == 0 {
		return nil, &models.ConfigurationError{Field: "years", Reason: "at least one year required"}
	}
	if j.CompositePeriodLength < 1 {
		return nil, &models.ConfigurationError{Field: "composite_period_length", Reason: "must be >= 1"}
	}
	js, je := j.JulianDayRange[0], j.JulianDayRange[1]
	if js < 0 || js > 366 || je < 0 || je > 366 {
		return nil, &models.ConfigurationError{Field: "julian_day_range", Reason: fmt.Sprintf("[%d, %d] outside 0-366", js, je)}
	}
	if j.ShadowLookbackYears < 0 || j.ShadowLookforwardYears < 0 {
		return nil, &models.ConfigurationError{Field: "shadow_lookback_years", Reason: "lookback and lookforward must be >= 0"}
	}
	if j.Region.PixelSize <= 0 {
		return nil, &models.ConfigurationError{Field: "region.pixel_size", Reason: "must be > 0"}
	}
	if j.Parallelism < 0 {
		return nil, &models.ConfigurationError{Field: "parallelism", Reason: "must be >= 0"}
	}
	if j.Export.SplitRows < 0 {
		return nil, &models.ConfigurationError{Field: "export.split_rows", Reason: "must be >= 0"}
	}
	if j.Export.MaxPixels < 0 {
		return nil, &models.ConfigurationError{Field: "export.max_pixels", Reason: "must be >= 0"}
	}

	params, err := j.Params()
	if err != nil {
		return nil, err
	}
	reg, err := j.BuildRegion()
	if err != nil {
		return nil, err
	}
	grid := region.GridFor(reg, j.Region.PixelSize, j.Region.CRS)

	julian := models.JulianRange{Start: js, End: je}
	reqs := make([]composite.Request, 0, len(j.Years))
	for _, year := range j.Years {
		req := composite.Request{
			Region: reg,
			Grid:   grid,
			Period: models.NewPeriod(year, j.CompositePeriodLength, julian, j.ShadowLookbackYears, j.ShadowLookforwardYears),
			Params: params,
		}
		if err := req.Validate(); err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}
