package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArchiveCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdomcomposite_archive_calls_total",
			Help: "Total scene archive calls",
		},
		[]string{"source", "collection", "status"},
	)

	ArchiveLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tdomcomposite_archive_latency_seconds",
			Help:    "Scene archive call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source", "collection"},
	)

	ScenesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdomcomposite_scenes_fetched_total",
			Help: "Scenes returned by the archive, per sensor",
		},
		[]string{"sensor"},
	)

	PixelsMasked = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdomcomposite_pixels_masked_total",
			Help: "Pixels removed from scenes, by masking reason",
		},
		[]string{"reason"},
	)

	CompositesBuilt = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdomcomposite_composites_built_total",
			Help: "Composites assembled, by reduction method",
		},
		[]string{"method"},
	)

	CompositeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tdomcomposite_composite_duration_seconds",
			Help:    "Wall time to build one composite",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		},
	)

	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tdomcomposite_exports_total",
			Help: "Exports handed to sinks",
		},
		[]string{"sink", "kind", "status"},
	)
)
