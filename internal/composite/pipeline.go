package composite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lox/tdomcomposite/internal/cloud"
	"github.com/lox/tdomcomposite/internal/metrics"
	"github.com/lox/tdomcomposite/internal/models"
)

// SceneSource is the archive boundary the pipeline pulls scenes from.
type SceneSource interface {
	FetchScenes(ctx context.Context, q models.SceneQuery) (models.FetchResult, error)
}

var errNoResult = errors.New("source returned no result")

// Result is everything one request produces.
type Result struct {
	Composite Composite
	Encoded   Encoded
	Record    models.MetadataRecord
}

// Pipeline runs masking, shadow statistics, shadow masking, reduction and
// assembly for one request at a time. It holds no per-request state, so one
// Pipeline may serve concurrent requests.
type Pipeline struct {
	source SceneSource
	scorer cloud.Scorer
	logger *zap.Logger
}

func NewPipeline(source SceneSource, scorer cloud.Scorer, logger *zap.Logger) *Pipeline {
	if scorer == nil {
		scorer = cloud.SimpleScore{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{source: source, scorer: scorer, logger: logger}
}

func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	started := time.Now()
	log := p.logger.With(zap.String("composite", req.ID()))
	params := req.Params
	if !req.Period.Target.Start.Before(req.Period.Target.End) {
		// A wrapping julian range inside a one-year period selects no days;
		// the guard turns that into an all-nodata composite.
		log.Warn("composite: empty compositing window",
			zap.Time("start", req.Period.Target.Start),
			zap.Time("end", req.Period.Target.End))
	}

	// Scene masking over the whole shadow window, one sensor at a time.
	var stack models.Collection
	for _, sensor := range params.Sensors {
		scenes, err := p.fetchMasked(ctx, req, sensor)
		if err != nil {
			return nil, err
		}
		stack = stack.Merge(scenes)
	}

	withSum := make(models.Collection, 0, len(stack))
	for _, s := range stack {
		summed, err := AddShadowSum(s, params.ShadowBands)
		if err != nil {
			return nil, err
		}
		withSum = append(withSum, summed)
	}
	shadowCount := withSum.Count()
	stats := ComputeShadowStats(withSum)

	// Restrict to the target period; placeholders never count as scenes.
	target := withSum.Real().FilterDate(req.Period.Target)
	compositeCount := target.Count()
	target = EnsureNonEmptyCollection(target, models.TemplateOf(withSum[0]))
	target = target.Map(func(s models.Scene) models.Scene {
		return MaskShadow(s, stats, params.ZShadowThreshold, params.ShadowExpandIterations)
	})

	reduced := params.Reducer.Reduce(target, models.TargetBands)
	comp, enc, record, err := Assemble(req, reduced, Counts{Composite: compositeCount, Shadow: shadowCount})
	if err != nil {
		return nil, fmt.Errorf("composite %s: %w", req.ID(), err)
	}

	metrics.CompositesBuilt.WithLabelValues(params.Reducer.Method()).Inc()
	metrics.CompositeDuration.Observe(time.Since(started).Seconds())
	log.Info("composite: built",
		zap.Int("composite_scenes", compositeCount),
		zap.Int("shadow_scenes", shadowCount),
		zap.String("method", params.Reducer.Method()),
		zap.Duration("elapsed", time.Since(started)))

	return &Result{Composite: comp, Encoded: enc, Record: record}, nil
}

// fetchMasked pulls one sensor's shadow-window scenes, guards against an
// empty archive response, remaps bands and applies scene masking.
func (p *Pipeline) fetchMasked(ctx context.Context, req Request, sensor models.Sensor) (models.Collection, error) {
	q := models.SceneQuery{
		Sensor: sensor,
		Region: req.Region.Name,
		Bound:  req.Region.Bound(),
		Grid:   req.Grid,
		Dates:  req.Period.ShadowRange,
		Julian: req.Period.Julian,
	}
	res, err := p.source.FetchScenes(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("fetch %s scenes: %w", sensor, err)
	}
	if res == nil {
		return nil, &models.ExternalServiceError{Service: "scene source", Op: "fetch " + sensor.String(), Err: errNoResult}
	}
	if _, empty := res.(models.Empty); empty {
		p.logger.Debug("composite: no scenes, using placeholder",
			zap.String("sensor", sensor.String()),
			zap.Time("from", q.Dates.Start),
			zap.Time("to", q.Dates.End))
	}

	raw := EnsureNonEmpty(res)
	out := make(models.Collection, 0, len(raw))
	for _, s := range raw {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("fetch %s scenes: %w", sensor, err)
		}
		if !s.Grid.SameShape(req.Grid) {
			return nil, fmt.Errorf("fetch %s scenes: scene %s grid %dx%d does not match request grid %dx%d",
				sensor, s.ID, s.Grid.Width, s.Grid.Height, req.Grid.Width, req.Grid.Height)
		}
		remapped, err := s.Remap()
		if err != nil {
			return nil, fmt.Errorf("fetch %s scenes: %w", sensor, err)
		}
		out = append(out, MaskScene(remapped, p.scorer, req.Params.CloudThreshold, req.Params.CloudExpandIterations))
	}
	return out, nil
}
