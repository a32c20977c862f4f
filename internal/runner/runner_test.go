package runner

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	_ "modernc.org/sqlite"

	"github.com/lox/tdomcomposite/internal/cloud"
	"github.com/lox/tdomcomposite/internal/composite"
	"github.com/lox/tdomcomposite/internal/config"
	"github.com/lox/tdomcomposite/internal/export"
	"github.com/lox/tdomcomposite/internal/ingest"
	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/raster"
	"github.com/lox/tdomcomposite/internal/store"
)

const testJob = `
region:
  name: wandi
  bbox: [0, 0, 2, 2]
  pixel_size: 1
years: [2010, 2014, 2020]
composite_period_length: 1
candidate_sensors: [L8]
parallelism: 2
export:
  split_rows: 2
`

var clearSky = cloud.ScorerFunc(func(s models.Scene) []float64 { return make([]float64, s.Grid.Len()) })

// failingYear wraps a source and fails every query whose window starts in year.
type failingYear struct {
	composite.SceneSource
	year int
}

func (f failingYear) FetchScenes(ctx context.Context, q models.SceneQuery) (models.FetchResult, error) {
	if q.Dates.Start.Year() == f.year {
		return nil, &models.ExternalServiceError{Service: "archive", Op: "fetch", Err: errors.New("unavailable")}
	}
	return f.SceneSource.FetchScenes(ctx, q)
}

func l8Scene(t *testing.T, id string, at time.Time, grid raster.Grid) models.Scene {
	t.Helper()
	s := models.Scene{ID: id, Sensor: models.SensorL8, AcquiredAt: at, Grid: grid}
	for _, name := range models.SensorL8.NativeBands() {
		v := 0.2
		if name == "B10" || name == "B11" {
			v = 295
		}
		s.Bands = append(s.Bands, raster.ConstantBand(name, grid.Len(), v))
	}
	return s
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	st := store.New(db, nil)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func TestRunJob(t *testing.T) {
	job, err := config.Parse([]byte(testJob))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	reqs, err := job.Requests()
	if err != nil {
		t.Fatalf("Requests: %v", err)
	}
	grid := reqs[0].Grid

	src := ingest.NewMemorySource(
		l8Scene(t, "a", time.Date(2010, time.June, 1, 0, 0, 0, 0, time.UTC), grid),
		l8Scene(t, "b", time.Date(2010, time.August, 1, 0, 0, 0, 0, time.UTC), grid),
	)
	st := setupStore(t)
	dir := t.TempDir()
	r := New(
		composite.NewPipeline(failingYear{SceneSource: src, year: 2020}, clearSky, nil),
		st,
		export.NewDirSink(dir, nil),
		nil,
	)

	table, err := r.RunJob(context.Background(), job)

	var extErr *models.ExternalServiceError
	if !errors.As(err, &extErr) {
		t.Fatalf("err = %v, want the 2020 fetch failure", err)
	}

	var ids []string
	for _, rec := range table {
		ids = append(ids, rec.ID)
	}
	if diff := cmp.Diff([]string{"wandi_2010_2010_0_365", "wandi_2014_2014_0_365"}, ids); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
	if table[0].ImageCountComposite != 2 || table[0].ImageCountShadow != 2 {
		t.Errorf("2010 counts = %d/%d, want 2/2", table[0].ImageCountComposite, table[0].ImageCountShadow)
	}
	if table[1].ImageCountComposite != 0 || table[1].ImageCountShadow != 0 {
		t.Errorf("empty year counts = %d/%d, want 0/0", table[1].ImageCountComposite, table[1].ImageCountShadow)
	}

	stored, err := st.ListMetadata("wandi")
	if err != nil {
		t.Fatalf("ListMetadata: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored %d records, want 2", len(stored))
	}

	runs, err := st.RecentRuns(10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	failed := 0
	for _, run := range runs {
		if !run.Success {
			failed++
		}
	}
	if len(runs) != 3 || failed != 1 {
		t.Errorf("runs = %d (failed %d), want 3 (failed 1)", len(runs), failed)
	}

	for _, name := range []string{
		"wandi_2010_2010_0_365_1" + export.RasterExt,
		"wandi_2010_2010_0_365_2" + export.RasterExt,
		"wandi_2014_2014_0_365_1" + export.RasterExt,
		"wandi_metadata.csv",
	} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing export %s: %v", name, err)
		}
	}

	f, err := os.Open(filepath.Join(dir, "wandi_2010_2010_0_365_1"+export.RasterExt))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	top, err := export.ReadRaster(f)
	if err != nil {
		t.Fatalf("ReadRaster: %v", err)
	}
	if top.Grid.Height != 1 || top.Grid.Width != 2 {
		t.Errorf("top box grid = %dx%d, want 2x1", top.Grid.Width, top.Grid.Height)
	}
	if got := top.Samples[0][0]; got != 2000 {
		t.Errorf("blue sample = %d, want 2000", got)
	}

	preview, err := st.GetArtifact("wandi_2010_2010_0_365", store.ArtifactPreview)
	if err != nil {
		t.Fatalf("GetArtifact: %v", err)
	}
	if preview == nil || preview.ContentType != "image/png" {
		t.Errorf("preview = %+v", preview)
	}
}

func TestRunWithoutStoreOrSink(t *testing.T) {
	job, err := config.Parse([]byte(testJob))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	job.Years = []int{2014}

	r := New(composite.NewPipeline(ingest.NewMemorySource(), clearSky, nil), nil, nil, nil)
	table, err := r.RunJob(context.Background(), job)
	if err != nil {
		t.Fatalf("RunJob: %v", err)
	}
	if len(table) != 1 || table[0].ImageCountComposite != 0 {
		t.Errorf("table = %+v", table)
	}
}

func TestRunJobRejectsInvalidConfig(t *testing.T) {
	job, err := config.Parse([]byte(testJob))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	job.CandidateSensors = []string{"L4"}

	r := New(composite.NewPipeline(ingest.NewMemorySource(), clearSky, nil), nil, nil, nil)
	_, err = r.RunJob(context.Background(), job)
	var cfgErr *models.ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("err = %v, want ConfigurationError", err)
	}
}
