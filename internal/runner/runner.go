// Package runner evaluates a job's compositing requests, then persists and
// exports the results.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lox/tdomcomposite/internal/composite"
	"github.com/lox/tdomcomposite/internal/config"
	"github.com/lox/tdomcomposite/internal/export"
	"github.com/lox/tdomcomposite/internal/models"
	"github.com/lox/tdomcomposite/internal/preview"
	"github.com/lox/tdomcomposite/internal/store"
)

// Options control what happens to each composite after it is built.
type Options struct {
	Parallelism int
	Image       export.ImageOptions // Name is derived per composite
	SplitRows   int
	Preview     bool
	TableName   string
}

// OptionsFromJob maps a job's export section onto runner options.
func OptionsFromJob(job *config.Job) Options {
	return Options{
		Parallelism: job.Parallelism,
		Image: export.ImageOptions{
			ScaleMeters: job.Export.ScaleMeters,
			MaxPixels:   job.Export.MaxPixels,
			CRS:         job.Export.CRS,
		},
		SplitRows: job.Export.SplitRows,
		Preview:   job.Export.Preview,
		TableName: job.Region.Name + "_metadata",
	}
}

// Runner fans requests out over a Pipeline. Store and sink are optional.
type Runner struct {
	pipeline *composite.Pipeline
	store    *store.Store
	sink     export.Sink
	logger   *zap.Logger
}

func New(pipeline *composite.Pipeline, st *store.Store, sink export.Sink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{pipeline: pipeline, store: st, sink: sink, logger: logger}
}

// RunJob validates job and runs every request it describes.
func (r *Runner) RunJob(ctx context.Context, job *config.Job) (models.MetadataTable, error) {
	reqs, err := job.Requests()
	if err != nil {
		return nil, err
	}
	return r.Run(ctx, reqs, OptionsFromJob(job))
}

// Run evaluates reqs concurrently. The returned table holds one record per
// successful request, in request order; failures are joined into the error.
func (r *Runner) Run(ctx context.Context, reqs []composite.Request, opts Options) (models.MetadataTable, error) {
	results := make([]*composite.Result, len(reqs))
	errs := make([]error, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	if opts.Parallelism > 0 {
		g.SetLimit(opts.Parallelism)
	}
	for i, req := range reqs {
		g.Go(func() error {
			results[i], errs[i] = r.evaluate(gctx, req)
			return nil
		})
	}
	g.Wait()

	tables := make([]models.MetadataTable, 0, len(reqs))
	var built []int
	for i, res := range results {
		if errs[i] != nil {
			r.logger.Error("runner: request failed", zap.String("composite", reqs[i].ID()), zap.Error(errs[i]))
			continue
		}
		tables = append(tables, models.MetadataTable{res.Record})
		built = append(built, i)
	}
	table := models.Concat(tables...)

	if r.store != nil && len(table) > 0 {
		if err := r.store.UpsertMetadata(table); err != nil {
			errs = append(errs, fmt.Errorf("store metadata: %w", err))
		}
	}

	for _, i := range built {
		if err := r.publish(ctx, reqs[i], results[i], opts); err != nil {
			errs = append(errs, err)
		}
	}

	if r.sink != nil && len(table) > 0 {
		name := opts.TableName
		if name == "" {
			name = "metadata"
		}
		if err := r.sink.ExportTable(ctx, table, name); err != nil {
			errs = append(errs, fmt.Errorf("export table: %w", err))
		}
	}

	r.logger.Info("runner: finished",
		zap.Int("requests", len(reqs)), zap.Int("composites", len(table)))
	return table, errors.Join(errs...)
}

func (r *Runner) evaluate(ctx context.Context, req composite.Request) (*composite.Result, error) {
	var run *store.CompositeRun
	if r.store != nil {
		var err error
		run, err = r.store.StartCompositeRun(req.ID())
		if err != nil {
			r.logger.Warn("runner: start run audit", zap.String("composite", req.ID()), zap.Error(err))
		}
	}

	res, err := r.pipeline.Run(ctx, req)

	if r.store != nil {
		var nComposite, nShadow int
		if res != nil {
			nComposite, nShadow = res.Record.ImageCountComposite, res.Record.ImageCountShadow
		}
		if cerr := r.store.CompleteCompositeRun(run, nComposite, nShadow, err); cerr != nil {
			r.logger.Warn("runner: complete run audit", zap.String("composite", req.ID()), zap.Error(cerr))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("composite %s: %w", req.ID(), err)
	}
	return res, nil
}

// publish exports one composite, split into stacked boxes when configured,
// and stores its preview.
func (r *Runner) publish(ctx context.Context, req composite.Request, res *composite.Result, opts Options) error {
	id := res.Record.ID
	var errs []error

	if r.sink != nil {
		boxes := req.Region.Split(opts.SplitRows)
		for _, box := range boxes {
			enc := res.Encoded
			name := id
			if len(boxes) > 1 {
				var err error
				enc, err = export.Crop(res.Encoded, box.Bound())
				if err != nil {
					errs = append(errs, err)
					continue
				}
				name = id + strings.TrimPrefix(box.Name, req.Region.Name)
			}
			imgOpts := opts.Image
			imgOpts.Name = name
			if err := r.sink.ExportImage(ctx, enc, imgOpts); err != nil {
				errs = append(errs, fmt.Errorf("export %s: %w", name, err))
			}
		}
	}

	if opts.Preview && r.store != nil {
		png, err := preview.Render(res.Composite, preview.Options{Label: fmt.Sprintf("%s %d", res.Record.Region, res.Composite.Year)})
		if err != nil {
			errs = append(errs, fmt.Errorf("preview %s: %w", id, err))
		} else if _, err := r.store.StoreArtifact(id, store.ArtifactPreview, "image/png", png); err != nil {
			errs = append(errs, fmt.Errorf("store preview %s: %w", id, err))
		}
	}

	return errors.Join(errs...)
}
