package composite

import (
	"fmt"
	"math"
	"strings"

	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/raster"
)

// PixelType is the bounded integer type of the exported raster.
type PixelType int

const (
	Int16 PixelType = iota + 1
	UInt16
	Int32
)

func ParsePixelType(s string) (PixelType, error) {
	switch strings.ToLower(s) {
	case "", "int16":
		return Int16, nil
	case "uint16":
		return UInt16, nil
	case "int32":
		return Int32, nil
	default:
		return 0, &models.ConfigurationError{Field: "output_pixel_type", Reason: fmt.Sprintf("unsupported type %q", s)}
	}
}

func (t PixelType) Valid() bool { return t >= Int16 && t <= Int32 }

func (t PixelType) String() string {
	switch t {
	case Int16:
		return "int16"
	case UInt16:
		return "uint16"
	case Int32:
		return "int32"
	default:
		return fmt.Sprintf("PixelType(%d)", int(t))
	}
}

// Bounds is the representable range of the type.
func (t PixelType) Bounds() (lo, hi int64) {
	switch t {
	case Int16:
		return math.MinInt16, math.MaxInt16
	case UInt16:
		return 0, math.MaxUint16
	case Int32:
		return math.MinInt32, math.MaxInt32
	default:
		panic(fmt.Sprintf("composite: invalid pixel type %d", int(t)))
	}
}

// NoData is the sample written for invalid pixels: the type minimum for
// signed types, the maximum for uint16 so that zero reflectance survives.
func (t PixelType) NoData() int64 {
	lo, hi := t.Bounds()
	if t == UInt16 {
		return hi
	}
	return lo
}

// dataBounds is the range valid samples saturate to; it excludes NoData.
func (t PixelType) dataBounds() (lo, hi int64) {
	lo, hi = t.Bounds()
	if t.NoData() == lo {
		return lo + 1, hi
	}
	return lo, hi - 1
}

// Size is the encoded width in bytes.
func (t PixelType) Size() int {
	if t == Int32 {
		return 4
	}
	return 2
}

// Scale multiplies v by factor, rounds half away from zero and saturates to
// the type's range minus the NoData sentinel.
func Scale(v, factor float64, t PixelType) int64 {
	lo, hi := t.dataBounds()
	s := math.Round(v * factor)
	switch {
	case math.IsNaN(s):
		return t.NoData()
	case s <= float64(lo):
		return lo
	case s >= float64(hi):
		return hi
	default:
		return int64(s)
	}
}

// Composite is the reduced, per-band representative image of one period.
type Composite struct {
	ID     string
	Grid   raster.Grid
	Year   int
	Period models.Period
	Bands  []raster.Band
}

func (c Composite) Band(name string) (raster.Band, bool) {
	for _, b := range c.Bands {
		if b.Name == name {
			return b, true
		}
	}
	return raster.Band{}, false
}

// Encoded is the fixed-point export form of a composite, clipped to the
// region footprint.
type Encoded struct {
	ID          string
	Grid        raster.Grid
	BandNames   []string
	PixelType   PixelType
	ScaleFactor float64
	Samples     [][]int64
	Valid       []raster.Mask
}

// PixelCount is the number of samples across all bands.
func (e Encoded) PixelCount() int64 {
	return int64(e.Grid.Len()) * int64(len(e.BandNames))
}

// Counts records how many real scenes fed each stage.
type Counts struct {
	Composite int
	Shadow    int
}

// Assemble attaches the year band, encodes the export bands and builds the
// metadata record. It is a pure function of its inputs.
func Assemble(req Request, reduced []raster.Band, counts Counts) (Composite, Encoded, models.MetadataRecord, error) {
	n := req.Grid.Len()
	bands := make([]raster.Band, 0, len(reduced)+1)
	for _, b := range reduced {
		if b.Len() != n {
			return Composite{}, Encoded{}, models.MetadataRecord{}, fmt.Errorf("assemble: band %s has %d pixels, want %d", b.Name, b.Len(), n)
		}
		bands = append(bands, b)
	}
	bands = append(bands, raster.ConstantBand(models.BandYear, n, float64(req.Period.StartYear)))

	comp := Composite{
		ID:     req.ID(),
		Grid:   req.Grid,
		Year:   req.Period.StartYear,
		Period: req.Period,
		Bands:  bands,
	}

	enc, err := Encode(comp, models.ExportBands, req.Params.ScaleFactor, req.Params.PixelType, req.Region.Footprint(req.Grid))
	if err != nil {
		return Composite{}, Encoded{}, models.MetadataRecord{}, err
	}

	return comp, enc, BuildRecord(req, counts), nil
}

// Encode scales the named bands to fixed point and masks pixels outside
// footprint.
func Encode(c Composite, bandNames []string, factor float64, t PixelType, footprint raster.Mask) (Encoded, error) {
	n := c.Grid.Len()
	enc := Encoded{
		ID:          c.ID,
		Grid:        c.Grid,
		BandNames:   append([]string(nil), bandNames...),
		PixelType:   t,
		ScaleFactor: factor,
		Samples:     make([][]int64, len(bandNames)),
		Valid:       make([]raster.Mask, len(bandNames)),
	}
	for bi, name := range bandNames {
		b, ok := c.Band(name)
		if !ok {
			return Encoded{}, fmt.Errorf("encode: composite %s has no band %q", c.ID, name)
		}
		samples := make([]int64, n)
		valid := b.Valid.And(footprint)
		for i := 0; i < n; i++ {
			if !valid[i] || math.IsNaN(b.Values[i]) {
				samples[i] = t.NoData()
				valid[i] = false
				continue
			}
			samples[i] = Scale(b.Values[i], factor, t)
		}
		enc.Samples[bi] = samples
		enc.Valid[bi] = valid
	}
	return enc, nil
}

// BuildRecord describes a request's provenance.
func BuildRecord(req Request, counts Counts) models.MetadataRecord {
	p := req.Params
	return models.MetadataRecord{
		ID:                     req.ID(),
		Region:                 req.Region.Name,
		BandNames:              append([]string(nil), models.ExportBands...),
		DateStart:              req.Period.Target.Start,
		DateEnd:                req.Period.Target.End,
		JulianStart:            req.Period.Julian.Start,
		JulianEnd:              req.Period.Julian.End,
		CloudThreshold:         p.CloudThreshold,
		CompositingMethod:      p.Reducer.Method(),
		CompositingParameters:  p.Reducer.Parameters(),
		Sensors:                models.SensorNames(p.Sensors),
		BufferCloudShadow:      p.CloudExpandIterations > 0 || p.ShadowExpandIterations > 0,
		ImageCountComposite:    counts.Composite,
		ImageCountShadow:       counts.Shadow,
		CRS:                    p.CRS,
		CloudShadowStart:       req.Period.ShadowRange.Start,
		CloudShadowEnd:         req.Period.ShadowRange.End,
		ZShadowThreshold:       p.ZShadowThreshold,
		CloudExpandIterations:  p.CloudExpandIterations,
		ShadowExpandIterations: p.ShadowExpandIterations,
	}
}
