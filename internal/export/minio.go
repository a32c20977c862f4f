package export

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/lox/tdomcomposite/internal/composite"
	"github.com/lox/tdomcomposite/internal/metrics"
	"github.com/lox/tdomcomposite/internal/models"
)

// MinioConfig addresses an S3-compatible bucket.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	Region    string
	Secure    bool
}

// MinioSink uploads exports to object storage.
type MinioSink struct {
	client *minio.Client
	bucket string
	prefix string
	logger *zap.Logger
}

func NewMinioSink(cfg MinioConfig, logger *zap.Logger) (*MinioSink, error) {
	if cfg.Bucket == "" {
		return nil, &models.ConfigurationError{Field: "export.bucket", Reason: "required for object storage"}
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MinioSink{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, logger: logger}, nil
}

// EnsureBucket creates the bucket if it does not already exist.
func (m *MinioSink) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return &models.ExternalServiceError{Service: "object storage", Op: "bucket exists", Err: err}
	}
	if exists {
		return nil
	}
	if err := m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		return &models.ExternalServiceError{Service: "object storage", Op: "make bucket", Err: err}
	}
	return nil
}

func (m *MinioSink) ExportImage(ctx context.Context, enc composite.Encoded, opts ImageOptions) error {
	if err := CheckMaxPixels(enc, opts); err != nil {
		metrics.ExportsTotal.WithLabelValues("minio", "image", "rejected").Inc()
		return err
	}
	var buf bytes.Buffer
	if err := WriteRaster(&buf, enc, opts); err != nil {
		return fmt.Errorf("encode raster %s: %w", opts.Name, err)
	}
	return m.put(ctx, "image", opts.Name+RasterExt, "application/gzip", buf.Bytes())
}

func (m *MinioSink) ExportTable(ctx context.Context, table models.MetadataTable, name string) error {
	var buf bytes.Buffer
	if err := WriteTable(&buf, table); err != nil {
		return fmt.Errorf("encode table %s: %w", name, err)
	}
	return m.put(ctx, "table", name+".csv", "text/csv", buf.Bytes())
}

func (m *MinioSink) put(ctx context.Context, kind, name, contentType string, data []byte) error {
	key := path.Join(m.prefix, name)
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		metrics.ExportsTotal.WithLabelValues("minio", kind, "error").Inc()
		return &models.ExternalServiceError{Service: "object storage", Op: "put " + key, Err: err}
	}
	metrics.ExportsTotal.WithLabelValues("minio", kind, "ok").Inc()
	m.logger.Info("export: uploaded object", zap.String("bucket", m.bucket), zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}
