package composite

import (
	"fmt"
	"slices"

	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/raster"
	"github.com/lox/tdomcomposite/internal/region"
)

// Params are the masking, reduction and encoding knobs shared by every
// request of a job.
type Params struct {
	Sensors                []models.Sensor
	CloudThreshold         float64
	CloudExpandIterations  int
	ShadowBands            []string
	ZShadowThreshold       float64
	ShadowExpandIterations int
	Reducer                Reducer
	ScaleFactor            float64
	PixelType              PixelType
	CRS                    string
}

// Request is one (year, period) compositing job over a region.
type Request struct {
	Region region.Region
	Grid   raster.Grid
	Period models.Period
	Params Params
}

// ID is the deterministic record identifier for the request.
func (r Request) ID() string {
	return models.RecordID(r.Region.Name, r.Period.StartYear, r.Period.EndYear, r.Period.Julian.Start, r.Period.Julian.End)
}

// Validate rejects requests that could never produce a composite.
func (r Request) Validate() error {
	p := r.Params
	if len(p.Sensors) == 0 {
		return &models.ConfigurationError{Field: "candidate_sensors", Reason: "at least one sensor required"}
	}
	for _, s := range p.Sensors {
		if !s.Valid() {
			return &models.ConfigurationError{Field: "candidate_sensors", Reason: fmt.Sprintf("unsupported sensor %v", s)}
		}
	}
	if p.CloudThreshold < 0 || p.CloudThreshold > 100 {
		return &models.ConfigurationError{Field: "cloud_threshold", Reason: fmt.Sprintf("%v outside 0-100", p.CloudThreshold)}
	}
	if p.CloudExpandIterations < 0 {
		return &models.ConfigurationError{Field: "cloud_expand_iterations", Reason: "must be >= 0"}
	}
	if p.ShadowExpandIterations < 0 {
		return &models.ConfigurationError{Field: "shadow_expand_iterations", Reason: "must be >= 0"}
	}
	if len(p.ShadowBands) == 0 {
		return &models.ConfigurationError{Field: "shadow_bands", Reason: "at least one band required"}
	}
	for _, b := range p.ShadowBands {
		if !slices.Contains(models.TargetBands, b) {
			return &models.ConfigurationError{Field: "shadow_bands", Reason: fmt.Sprintf("unknown band %q", b)}
		}
	}
	if p.Reducer == nil {
		return &models.ConfigurationError{Field: "reduction_mode", Reason: "no reducer configured"}
	}
	if p.ScaleFactor <= 0 {
		return &models.ConfigurationError{Field: "output_scale_factor", Reason: "must be > 0"}
	}
	if !p.PixelType.Valid() {
		return &models.ConfigurationError{Field: "output_pixel_type", Reason: "unsupported pixel type"}
	}
	if err := r.Grid.Validate(); err != nil {
		return &models.ConfigurationError{Field: "region", Reason: err.Error()}
	}
	if r.Region.Geometry == nil {
		return &models.ConfigurationError{Field: "region", Reason: "missing geometry"}
	}
	return nil
}
