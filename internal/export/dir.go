package export

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/lox/tdomcomposite/internal/composite"
	"github.com/lox/tdomcomposite/internal/metrics"
	"github.com/lox/tdomcomposite/internal/models"
)

// DirSink writes exports into a local directory.
type DirSink struct {
	dir    string
	logger *zap.Logger
}

func NewDirSink(dir string, logger *zap.Logger) *DirSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirSink{dir: dir, logger: logger}
}

func (d *DirSink) ExportImage(ctx context.Context, enc composite.Encoded, opts ImageOptions) error {
	if err := CheckMaxPixels(enc, opts); err != nil {
		metrics.ExportsTotal.WithLabelValues("dir", "image", "rejected").Inc()
		return err
	}
	var buf bytes.Buffer
	if err := WriteRaster(&buf, enc, opts); err != nil {
		return fmt.Errorf("encode raster %s: %w", opts.Name, err)
	}
	return d.write(ctx, "image", opts.Name+RasterExt, buf.Bytes())
}

func (d *DirSink) ExportTable(ctx context.Context, table models.MetadataTable, name string) error {
	var buf bytes.Buffer
	if err := WriteTable(&buf, table); err != nil {
		return fmt.Errorf("encode table %s: %w", name, err)
	}
	return d.write(ctx, "table", name+".csv", buf.Bytes())
}

func (d *DirSink) write(ctx context.Context, kind, file string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		metrics.ExportsTotal.WithLabelValues("dir", kind, "error").Inc()
		return &models.ExternalServiceError{Service: "dir sink", Op: "mkdir", Err: err}
	}

	path := filepath.Join(d.dir, file)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		metrics.ExportsTotal.WithLabelValues("dir", kind, "error").Inc()
		return &models.ExternalServiceError{Service: "dir sink", Op: "write " + file, Err: err}
	}
	if err := os.Rename(tmp, path); err != nil {
		metrics.ExportsTotal.WithLabelValues("dir", kind, "error").Inc()
		return &models.ExternalServiceError{Service: "dir sink", Op: "rename " + file, Err: err}
	}

	metrics.ExportsTotal.WithLabelValues("dir", kind, "ok").Inc()
	d.logger.Info("export: wrote file", zap.String("path", path), zap.Int("bytes", len(data)))
	return nil
}
