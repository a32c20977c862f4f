package composite

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/lox/tdomcomposite/internal/cloud"
	"github.com/lox/tdomcomposite/internal/ingest"
	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/raster"
	"github.com/lox/tdomcomposite/internal/region"
)

var testGrid = raster.Grid{Width: 3, Height: 3, West: 0, North: 3, PixelSize: 1, CRS: "EPSG:4326"}

func constantScorer(score float64) cloud.Scorer {
	return cloud.ScorerFunc(func(s models.Scene) []float64 {
		out := make([]float64, s.Grid.Len())
		for i := range out {
			out[i] = score
		}
		return out
	})
}

var clearSky = constantScorer(0)

// targetScene builds a remapped scene with every target band set to v.
func targetScene(t *testing.T, id string, at time.Time, v float64) models.Scene {
	t.Helper()
	s := models.Scene{ID: id, Sensor: models.SensorL8, AcquiredAt: at, Grid: testGrid}
	for _, name := range models.TargetBands {
		val := v
		if name == models.BandTemp {
			val = 295
		}
		s.Bands = append(s.Bands, raster.ConstantBand(name, testGrid.Len(), val))
	}
	return s
}

// nativeScene builds an archive scene for sensor with reflectance v.
func nativeScene(t *testing.T, sensor models.Sensor, id string, at time.Time, v float64) models.Scene {
	t.Helper()
	s := models.Scene{ID: id, Sensor: sensor, AcquiredAt: at, Grid: testGrid}
	thermal := map[string]bool{"B6": sensor != models.SensorL8, "B6_VCID_1": true, "B6_VCID_2": true, "B10": true, "B11": true}
	for _, name := range sensor.NativeBands() {
		val := v
		if thermal[name] {
			val = 295
		}
		s.Bands = append(s.Bands, raster.ConstantBand(name, testGrid.Len(), val))
	}
	return s
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validity(s models.Scene) []raster.Mask {
	out := make([]raster.Mask, len(s.Bands))
	for i, b := range s.Bands {
		out[i] = b.Valid
	}
	return out
}

func testRequest(t *testing.T, year int, sensors []models.Sensor, reducer Reducer, lookback int) Request {
	t.Helper()
	reg := region.Rectangle("test", 0, 0, 3, 3)
	return Request{
		Region: reg,
		Grid:   testGrid,
		Period: models.NewPeriod(year, 1, models.JulianRange{Start: 0, End: 365}, lookback, lookback),
		Params: Params{
			Sensors:          sensors,
			CloudThreshold:   10,
			ShadowBands:      []string{models.BandSWIR1, models.BandSWIR2},
			ZShadowThreshold: -1,
			Reducer:          reducer,
			ScaleFactor:      10000,
			PixelType:        Int16,
			CRS:              "EPSG:4326",
		},
	}
}

func TestMaskSceneCloudThreshold(t *testing.T) {
	s := targetScene(t, "a", date(2010, time.March, 1), 0.2)

	tests := []struct {
		name      string
		score     float64
		wantValid int
	}{
		{"score at threshold stays", 10, testGrid.Len()},
		{"score just above threshold is masked", 10.01, 0},
		{"clear", 0, testGrid.Len()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MaskScene(s, constantScorer(tt.score), 10, 0)
			for _, b := range got.Bands {
				if b.Valid.Count() != tt.wantValid {
					t.Errorf("band %s valid = %d, want %d", b.Name, b.Valid.Count(), tt.wantValid)
				}
			}
		})
	}
}

func TestMaskSceneCloudExpansion(t *testing.T) {
	s := targetScene(t, "a", date(2010, time.March, 1), 0.2)
	centre := testGrid.Index(1, 1)
	scorer := cloud.ScorerFunc(func(s models.Scene) []float64 {
		out := make([]float64, s.Grid.Len())
		out[centre] = 100
		return out
	})

	plain := MaskScene(s, scorer, 10, 0)
	if got := plain.Bands[0].Valid.Count(); got != 8 {
		t.Errorf("without expansion valid = %d, want 8", got)
	}
	expanded := MaskScene(s, scorer, 10, 1)
	if got := expanded.Bands[0].Valid.Count(); got != 4 {
		t.Errorf("with one expansion valid = %d, want 4 (corners)", got)
	}
	if !expanded.Bands[0].Valid[testGrid.Index(0, 0)] {
		t.Error("corner should survive a cross-shaped expansion")
	}
}

func TestMaskSceneAllOrNothing(t *testing.T) {
	s := targetScene(t, "a", date(2010, time.March, 1), 0.2)
	s.Bands[2].Valid[4] = false

	got := MaskScene(s, clearSky, 10, 0)
	for _, b := range got.Bands {
		if b.Valid[4] {
			t.Errorf("band %s still valid at partially covered pixel", b.Name)
		}
		if b.Valid.Count() != testGrid.Len()-1 {
			t.Errorf("band %s valid = %d, want %d", b.Name, b.Valid.Count(), testGrid.Len()-1)
		}
	}
}

func TestMaskSceneNegativeFloor(t *testing.T) {
	s := targetScene(t, "a", date(2010, time.March, 1), 0.2)
	s.Bands[0].Values[0] = -0.002
	s.Bands[0].Values[1] = -0.0005

	got := MaskScene(s, clearSky, 10, 0)
	if got.Bands[3].Valid[0] {
		t.Error("pixel with a band below -0.001 should be masked in every band")
	}
	if !got.Bands[3].Valid[1] {
		t.Error("pixel with a band at -0.0005 should be kept")
	}
}

func TestMaskSceneMonotoneAndIdempotent(t *testing.T) {
	s := targetScene(t, "a", date(2010, time.March, 1), 0.2)
	s = s.WithMask(raster.Mask{true, false, true, true, true, false, true, true, true})
	s.Bands[1].Values[2] = -1
	scorer := cloud.ScorerFunc(func(s models.Scene) []float64 {
		out := make([]float64, s.Grid.Len())
		out[8] = 50
		return out
	})

	once := MaskScene(s, scorer, 10, 1)
	for bi, b := range once.Bands {
		for i, v := range b.Valid {
			if v && !s.Bands[bi].Valid[i] {
				t.Errorf("band %s pixel %d became valid", b.Name, i)
			}
		}
		if diff := cmp.Diff(s.Bands[bi].Values, b.Values); diff != "" {
			t.Errorf("band %s values changed (-want +got):\n%s", b.Name, diff)
		}
	}

	twice := MaskScene(once, scorer, 10, 1)
	if diff := cmp.Diff(validity(once), validity(twice)); diff != "" {
		t.Errorf("masking is not idempotent (-once +twice):\n%s", diff)
	}
}

func TestShadowStatsAndFlags(t *testing.T) {
	var c models.Collection
	for i, v := range []float64{0.2, 0.2, 0.2, 0.2, 0.02} {
		s := targetScene(t, "s", date(2010, time.January, 1+i), v)
		summed, err := AddShadowSum(s, []string{models.BandSWIR1, models.BandSWIR2})
		if err != nil {
			t.Fatalf("AddShadowSum: %v", err)
		}
		c = append(c, summed)
	}

	stats := ComputeShadowStats(c)
	wantMean := (0.4*4 + 0.04) / 5
	if got := stats.Mean.Values[0]; math.Abs(got-wantMean) > 1e-12 {
		t.Errorf("mean = %v, want %v", got, wantMean)
	}
	if stats.StdDev.Values[0] <= 0 {
		t.Fatalf("stddev = %v, want > 0", stats.StdDev.Values[0])
	}

	dark := ShadowFlags(c[4], stats, -1)
	if dark.Count() != testGrid.Len() {
		t.Errorf("dark scene flagged %d pixels, want all %d", dark.Count(), testGrid.Len())
	}
	bright := ShadowFlags(c[0], stats, -1)
	if bright.Count() != 0 {
		t.Errorf("typical scene flagged %d pixels, want 0", bright.Count())
	}

	masked := MaskShadow(c[4], stats, -1, 0)
	for _, b := range masked.Bands {
		if b.Valid.Count() != 0 {
			t.Errorf("band %s has %d valid pixels after shadow masking", b.Name, b.Valid.Count())
		}
	}
}

func TestShadowFailOpen(t *testing.T) {
	flat := func(v float64, n int) models.Collection {
		var c models.Collection
		for i := 0; i < n; i++ {
			s, err := AddShadowSum(targetScene(t, "s", date(2010, time.January, 1+i), v), []string{models.BandSWIR1})
			if err != nil {
				t.Fatal(err)
			}
			c = append(c, s)
		}
		return c
	}

	tests := []struct {
		name string
		c    models.Collection
	}{
		{"zero deviation", flat(0.2, 4)},
		{"single observation", flat(0.2, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := ComputeShadowStats(tt.c)
			darker, err := AddShadowSum(targetScene(t, "dark", date(2010, time.June, 1), 0.01), []string{models.BandSWIR1})
			if err != nil {
				t.Fatal(err)
			}
			if n := ShadowFlags(darker, stats, -1).Count(); n != 0 {
				t.Errorf("flagged %d pixels, want none", n)
			}
		})
	}

	t.Run("no observations", func(t *testing.T) {
		placeholder := models.TemplateOf(flat(0.2, 1)[0]).Placeholder()
		stats := ComputeShadowStats(models.Collection{placeholder})
		if stats.Mean.Valid.Count() != 0 || stats.StdDev.Valid.Count() != 0 {
			t.Error("statistics over a placeholder should be fully invalid")
		}
		s, _ := AddShadowSum(targetScene(t, "x", date(2010, time.June, 1), 0.2), []string{models.BandSWIR1})
		if n := ShadowFlags(s, stats, -1).Count(); n != 0 {
			t.Errorf("flagged %d pixels against invalid statistics", n)
		}
	})
}

func TestStatisticalMedianReduction(t *testing.T) {
	var c models.Collection
	for i, v := range []float64{0.10, 0.20, 0.30} {
		c = append(c, targetScene(t, "s", date(2010, time.March, 1+i), v))
	}

	for _, tt := range []struct {
		name    string
		reducer Reducer
	}{
		{"percentile 50", StatisticalReducer{Stat: Percentile(50)}},
		{"median", StatisticalReducer{Stat: Median{}}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			bands := tt.reducer.Reduce(c, models.TargetBands)
			blue := bands[0]
			if blue.Name != models.BandBlue {
				t.Fatalf("first band = %s", blue.Name)
			}
			if math.Abs(blue.Values[0]-0.20) > 1e-12 || !blue.Valid[0] {
				t.Errorf("blue = %v (valid %v), want 0.20", blue.Values[0], blue.Valid[0])
			}
			if got := Scale(blue.Values[0], 10000, Int16); got != 2000 {
				t.Errorf("scaled = %d, want 2000", got)
			}
		})
	}
}

func TestStatisticsSkipInvalid(t *testing.T) {
	a := targetScene(t, "a", date(2010, time.March, 1), 0.1)
	b := targetScene(t, "b", date(2010, time.March, 2), 0.9)
	b = b.WithMask(raster.Mask{false, true, true, true, true, true, true, true, true})

	bands := StatisticalReducer{Stat: Mean{}}.Reduce(models.Collection{a, b}, []string{models.BandRed})
	if got := bands[0].Values[0]; got != 0.1 {
		t.Errorf("pixel 0 = %v, want 0.1 (invalid observation ignored)", got)
	}
	if got := bands[0].Values[1]; math.Abs(got-0.5) > 1e-12 {
		t.Errorf("pixel 1 = %v, want 0.5", got)
	}
}

func TestNewestPixelReduction(t *testing.T) {
	older := targetScene(t, "older", date(2010, time.March, 1), 0.1)
	newer := targetScene(t, "newer", date(2010, time.April, 1), 0.5)
	newer = newer.WithMask(raster.Mask{true, false, true, true, true, true, true, true, true})

	bands := NewestPixelReducer{}.Reduce(models.Collection{older, newer}, []string{models.BandNIR})
	if got := bands[0].Values[0]; got != 0.5 {
		t.Errorf("pixel 0 = %v, want newest 0.5", got)
	}
	if got := bands[0].Values[1]; got != 0.1 {
		t.Errorf("pixel 1 = %v, want fallback 0.1 where newest is masked", got)
	}
}

func TestReducersOnPlaceholder(t *testing.T) {
	tmpl := models.TemplateOf(targetScene(t, "a", date(2010, time.March, 1), 0.2))
	c := EnsureNonEmpty(models.Empty{Template: tmpl})
	if c.Len() != 1 || !c[0].Placeholder {
		t.Fatalf("EnsureNonEmpty(Empty) = %d scenes", c.Len())
	}

	for _, r := range []Reducer{StatisticalReducer{Stat: Percentile(50)}, StatisticalReducer{Stat: Median{}}, NewestPixelReducer{}} {
		bands := r.Reduce(c, models.TargetBands)
		if len(bands) != len(models.TargetBands) {
			t.Fatalf("%s returned %d bands", r.Method(), len(bands))
		}
		for _, b := range bands {
			if b.Valid.Count() != 0 {
				t.Errorf("%s band %s has valid pixels", r.Method(), b.Name)
			}
		}
	}
}

func TestEnsureNonEmptyPresent(t *testing.T) {
	s := targetScene(t, "a", date(2010, time.March, 1), 0.2)
	c := EnsureNonEmpty(models.NewFetchResult(models.Collection{s}, models.TemplateOf(s)))
	if c.Len() != 1 || c[0].ID != "a" || c[0].Placeholder {
		t.Errorf("Present result altered: %+v", c)
	}
}

func TestScale(t *testing.T) {
	tests := []struct {
		name   string
		v      float64
		factor float64
		t      PixelType
		want   int64
	}{
		{"round half up", 0.25, 2, Int16, 1},
		{"round half away from zero", -0.25, 2, Int16, -1},
		{"reflectance", 0.2, 10000, Int16, 2000},
		{"saturate high", 5, 10000, Int16, math.MaxInt16},
		{"saturate low above nodata", -5, 10000, Int16, math.MinInt16 + 1},
		{"uint16 floor", -0.1, 10000, UInt16, 0},
		{"uint16 range", 5, 10000, UInt16, 50000},
		{"uint16 saturate below nodata", 7, 10000, UInt16, math.MaxUint16 - 1},
		{"int32 no saturation", 5, 10000, Int32, 50000},
		{"nan is nodata", math.NaN(), 10000, Int16, math.MinInt16},
		{"nan is uint16 nodata", math.NaN(), 10000, UInt16, math.MaxUint16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Scale(tt.v, tt.factor, tt.t); got != tt.want {
				t.Errorf("Scale(%v) = %d, want %d", tt.v, got, tt.want)
			}
		})
	}
}

func TestParseStatistic(t *testing.T) {
	tests := []struct {
		spec    string
		want    string
		wantErr bool
	}{
		{"percentile:50", "Percentile", false},
		{"percentile:12.5", "Percentile", false},
		{"median", "Median", false},
		{"MEAN", "Mean", false},
		{"", "Percentile", false},
		{"percentile:101", "", true},
		{"mode", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			st, err := ParseStatistic(tt.spec)
			if tt.wantErr {
				var cfgErr *models.ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Errorf("err = %v, want ConfigurationError", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseStatistic: %v", err)
			}
			if st.Name() != tt.want {
				t.Errorf("Name = %s, want %s", st.Name(), tt.want)
			}
		})
	}
}

func TestAssembleClipsToRegion(t *testing.T) {
	req := testRequest(t, 2010, []models.Sensor{models.SensorL8}, StatisticalReducer{Stat: Percentile(50)}, 0)
	// Triangle covering the lower-left half of the grid.
	tri, err := region.ParseGeoJSON("test", []byte(`{"type":"Polygon","coordinates":[[[0,0],[3,0],[0,3],[0,0]]]}`))
	if err != nil {
		t.Fatal(err)
	}
	req.Region = tri

	var reduced []raster.Band
	for _, name := range models.TargetBands {
		reduced = append(reduced, raster.ConstantBand(name, testGrid.Len(), 0.3))
	}
	comp, enc, rec, err := Assemble(req, reduced, Counts{Composite: 1, Shadow: 2})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	year, ok := comp.Band(models.BandYear)
	if !ok || year.Values[0] != 2010 {
		t.Errorf("year band = %+v", year)
	}
	if diff := cmp.Diff(models.ExportBands, enc.BandNames); diff != "" {
		t.Errorf("export bands (-want +got):\n%s", diff)
	}
	inside := testGrid.Index(0, 2)
	outside := testGrid.Index(2, 0)
	if enc.Samples[0][inside] != 3000 || !enc.Valid[0][inside] {
		t.Errorf("inside sample = %d", enc.Samples[0][inside])
	}
	if enc.Samples[0][outside] != Int16.NoData() || enc.Valid[0][outside] {
		t.Errorf("outside sample = %d, want nodata", enc.Samples[0][outside])
	}
	if rec.ID != "test_2010_2010_0_365" || rec.ImageCountShadow != 2 {
		t.Errorf("record = %+v", rec)
	}
}

func TestRequestValidate(t *testing.T) {
	base := testRequest(t, 2010, []models.Sensor{models.SensorL8}, StatisticalReducer{Stat: Median{}}, 0)
	if err := base.Validate(); err != nil {
		t.Fatalf("valid request rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"no sensors", func(r *Request) { r.Params.Sensors = nil }, "candidate_sensors"},
		{"cloud threshold", func(r *Request) { r.Params.CloudThreshold = -1 }, "cloud_threshold"},
		{"shadow band", func(r *Request) { r.Params.ShadowBands = []string{"B5"} }, "shadow_bands"},
		{"expand", func(r *Request) { r.Params.ShadowExpandIterations = -1 }, "shadow_expand_iterations"},
		{"reducer", func(r *Request) { r.Params.Reducer = nil }, "reduction_mode"},
		{"scale", func(r *Request) { r.Params.ScaleFactor = 0 }, "output_scale_factor"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := base
			req.Params.Sensors = append([]models.Sensor(nil), base.Params.Sensors...)
			tt.mutate(&req)
			var cfgErr *models.ConfigurationError
			if err := req.Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != tt.field {
				t.Errorf("err = %v, want ConfigurationError on %s", err, tt.field)
			}
		})
	}
}

func TestPipelineCountsShadowOnlyScenes(t *testing.T) {
	// Scenes exist only in the year before the target, inside the lookback window.
	src := ingest.NewMemorySource(
		nativeScene(t, models.SensorL8, "prev1", date(2013, time.March, 1), 0.2),
		nativeScene(t, models.SensorL8, "prev2", date(2013, time.May, 1), 0.2),
	)
	p := NewPipeline(src, clearSky, nil)
	req := testRequest(t, 2014, []models.Sensor{models.SensorL8}, StatisticalReducer{Stat: Percentile(50)}, 1)

	res, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Record.ImageCountComposite != 0 {
		t.Errorf("composite count = %d, want 0", res.Record.ImageCountComposite)
	}
	if res.Record.ImageCountShadow != 2 {
		t.Errorf("shadow count = %d, want 2", res.Record.ImageCountShadow)
	}
	for _, b := range res.Composite.Bands {
		if b.Name != models.BandYear && b.Valid.Count() != 0 {
			t.Errorf("band %s has valid pixels with no target scenes", b.Name)
		}
	}
	if res.Encoded.Valid[0].Count() != 0 {
		t.Error("encoded output should be all nodata")
	}
}

func TestPipelineEmptyArchive(t *testing.T) {
	p := NewPipeline(ingest.NewMemorySource(), clearSky, nil)
	req := testRequest(t, 2014, models.AllSensors, NewestPixelReducer{}, 1)

	res, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Record.ImageCountComposite != 0 || res.Record.ImageCountShadow != 0 {
		t.Errorf("counts = %d/%d, want 0/0", res.Record.ImageCountComposite, res.Record.ImageCountShadow)
	}
	if diff := cmp.Diff([]string{"L5", "L7", "L8"}, res.Record.Sensors); diff != "" {
		t.Errorf("sensors (-want +got):\n%s", diff)
	}
}

func TestPipelineBandNamesAcrossSensors(t *testing.T) {
	var names [][]string
	for _, sensor := range models.AllSensors {
		src := ingest.NewMemorySource(nativeScene(t, sensor, "s", date(2005, time.June, 1), 0.15))
		p := NewPipeline(src, clearSky, nil)
		req := testRequest(t, 2005, []models.Sensor{sensor}, StatisticalReducer{Stat: Median{}}, 0)

		res, err := p.Run(context.Background(), req)
		if err != nil {
			t.Fatalf("%s Run: %v", sensor, err)
		}
		var got []string
		for _, b := range res.Composite.Bands {
			got = append(got, b.Name)
		}
		names = append(names, got)

		if res.Encoded.Samples[0][0] != 1500 {
			t.Errorf("%s blue sample = %d, want 1500", sensor, res.Encoded.Samples[0][0])
		}
	}
	for i := 1; i < len(names); i++ {
		if diff := cmp.Diff(names[0], names[i]); diff != "" {
			t.Errorf("band names differ between sensors (-L5 +%s):\n%s", models.AllSensors[i], diff)
		}
	}
}

func TestPipelineIdempotent(t *testing.T) {
	src := ingest.NewMemorySource(
		nativeScene(t, models.SensorL7, "a", date(2008, time.February, 1), 0.12),
		nativeScene(t, models.SensorL7, "b", date(2008, time.July, 1), 0.18),
		nativeScene(t, models.SensorL7, "c", date(2008, time.October, 1), 0.02),
	)
	p := NewPipeline(src, clearSky, nil)
	req := testRequest(t, 2008, []models.Sensor{models.SensorL7}, StatisticalReducer{Stat: Percentile(50)}, 0)

	first, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	second, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diff := cmp.Diff(first.Encoded, second.Encoded); diff != "" {
		t.Errorf("encoded output differs between runs (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(first.Record, second.Record); diff != "" {
		t.Errorf("record differs between runs (-first +second):\n%s", diff)
	}
}

func TestPipelineRejectsInvalidRequest(t *testing.T) {
	p := NewPipeline(ingest.NewMemorySource(), clearSky, nil)
	req := testRequest(t, 2010, nil, StatisticalReducer{Stat: Median{}}, 0)

	_, err := p.Run(context.Background(), req)
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}

func TestPipelineMasksShadowScene(t *testing.T) {
	// Four typical scenes and a newer, much darker one. Without shadow
	// masking the newest-pixel mosaic would pick the dark scene.
	src := ingest.NewMemorySource(
		nativeScene(t, models.SensorL8, "feb", date(2014, time.February, 1), 0.2),
		nativeScene(t, models.SensorL8, "mar", date(2014, time.March, 1), 0.2),
		nativeScene(t, models.SensorL8, "apr", date(2014, time.April, 1), 0.2),
		nativeScene(t, models.SensorL8, "may", date(2014, time.May, 1), 0.2),
		nativeScene(t, models.SensorL8, "oct", date(2014, time.October, 1), 0.02),
	)
	p := NewPipeline(src, clearSky, nil)
	req := testRequest(t, 2014, []models.Sensor{models.SensorL8}, NewestPixelReducer{}, 0)

	res, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Record.ImageCountComposite != 5 || res.Record.ImageCountShadow != 5 {
		t.Errorf("counts = %d/%d, want 5/5", res.Record.ImageCountComposite, res.Record.ImageCountShadow)
	}
	for bi, name := range res.Encoded.BandNames {
		for i, v := range res.Encoded.Samples[bi] {
			if v != 2000 || !res.Encoded.Valid[bi][i] {
				t.Fatalf("band %s pixel %d = %d (valid %v), want 2000 from the unshadowed scenes",
					name, i, v, res.Encoded.Valid[bi][i])
			}
		}
	}
}

func TestPipelineWrappingJulianSingleYear(t *testing.T) {
	src := ingest.NewMemorySource(
		nativeScene(t, models.SensorL8, "nov", date(2010, time.November, 1), 0.2),
		nativeScene(t, models.SensorL8, "jan", date(2011, time.January, 15), 0.2),
	)
	p := NewPipeline(src, clearSky, nil)
	req := testRequest(t, 2010, []models.Sensor{models.SensorL8}, StatisticalReducer{Stat: Percentile(50)}, 0)
	req.Period = models.NewPeriod(2010, 1, models.JulianRange{Start: 300, End: 60}, 1, 1)

	if err := req.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	res, err := p.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Record.ID != "test_2010_2010_300_60" {
		t.Errorf("ID = %q", res.Record.ID)
	}
	if res.Record.ImageCountComposite != 0 {
		t.Errorf("composite count = %d, want 0", res.Record.ImageCountComposite)
	}
	if res.Record.ImageCountShadow != 2 {
		t.Errorf("shadow count = %d, want 2", res.Record.ImageCountShadow)
	}
	for bi, valid := range res.Encoded.Valid {
		if valid.Count() != 0 {
			t.Errorf("band %s has %d valid pixels in an empty window", res.Encoded.BandNames[bi], valid.Count())
		}
	}
}

type nilSource struct{}

func (nilSource) FetchScenes(context.Context, models.SceneQuery) (models.FetchResult, error) {
	return nil, nil
}

func TestPipelineNilFetchResult(t *testing.T) {
	p := NewPipeline(nilSource{}, clearSky, nil)
	req := testRequest(t, 2010, []models.Sensor{models.SensorL8}, NewestPixelReducer{}, 0)

	_, err := p.Run(context.Background(), req)
	var svcErr *models.ExternalServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("err = %v, want ExternalServiceError", err)
	}
	if svcErr.Service != "scene source" {
		t.Errorf("service = %q", svcErr.Service)
	}
}
