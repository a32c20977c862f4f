package ingest

import (
	"context"
	"sync"

	"github.com/lox/tdomcomposite/internal/metrics"
	"github.com/lox/tdomcomposite/internal/models"
)

// MemorySource serves scenes held in process. Safe for concurrent use.
type MemorySource struct {
	mu     sync.RWMutex
	scenes models.Collection
}

func NewMemorySource(scenes ...models.Scene) *MemorySource {
	return &MemorySource{scenes: append(models.Collection(nil), scenes...)}
}

func (m *MemorySource) Add(scenes ...models.Scene) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scenes = append(m.scenes, scenes...)
}

func (m *MemorySource) FetchScenes(ctx context.Context, q models.SceneQuery) (models.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	selected := selectScenes(m.scenes, q)
	metrics.ScenesFetched.WithLabelValues(q.Sensor.String()).Add(float64(len(selected)))
	return result(selected, q), nil
}
