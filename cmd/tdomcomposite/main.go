package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/lox/tdomcomposite/internal/api"
	"github.com/lox/tdomcomposite/internal/cloud"
	"github.com/lox/tdomcomposite/internal/composite"
	"github.com/lox/tdomcomposite/internal/config"
	"github.com/lox/tdomcomposite/internal/export"
	"github.com/lox/tdomcomposite/internal/ingest"
	"github.com/lox/tdomcomposite/internal/runner"
	"github.com/lox/tdomcomposite/internal/store"
)

type Globals struct {
	DB     string      `help:"Path to SQLite database." default:"data/tdomcomposite.db" env:"TDOM_DB"`
	Debug  bool        `help:"Enable development logging." env:"TDOM_DEBUG"`
	logger *zap.Logger `kong:"-"`
}

type CLI struct {
	Globals

	Composite CompositeCmd `cmd:"" help:"Build composites for every year of a job file."`
	Validate  ValidateCmd  `cmd:"" help:"Check a job file and list the requests it expands to."`
	Metadata  MetadataCmd  `cmd:"" help:"Write stored composite metadata as CSV."`
	Runs      RunsCmd      `cmd:"" help:"Show recent composite runs."`
	Cleanup   CleanupCmd   `cmd:"" help:"Delete preview artifacts older than the retention window."`
	Serve     ServeCmd     `cmd:"" help:"Serve metadata, previews, health and metrics over HTTP."`
}

type CompositeCmd struct {
	Job    string `arg:"" help:"Job file (YAML)." type:"existingfile"`
	Source string `help:"Scene source." enum:"http,ftp" default:"http" env:"TDOM_SOURCE"`

	ArchiveURL    string `help:"Scene archive base URL." env:"ARCHIVE_URL"`
	ArchiveAPIKey string `help:"Scene archive API key." env:"ARCHIVE_API_KEY"`

	FTPAddr     string `name:"ftp-addr" help:"FTP mirror host:port." env:"FTP_ADDR"`
	FTPUser     string `name:"ftp-user" help:"FTP user; anonymous when empty." env:"FTP_USER"`
	FTPPassword string `name:"ftp-password" help:"FTP password." env:"FTP_PASSWORD"`
	FTPRoot     string `name:"ftp-root" help:"FTP mirror root directory." default:"/" env:"FTP_ROOT"`

	Sink   string `help:"Export sink." enum:"dir,s3" default:"dir" env:"TDOM_SINK"`
	OutDir string `help:"Output directory for the dir sink." default:"out" env:"TDOM_OUT_DIR"`

	S3Endpoint  string `name:"s3-endpoint" help:"Object storage endpoint." env:"S3_ENDPOINT"`
	S3AccessKey string `name:"s3-access-key" help:"Object storage access key." env:"S3_ACCESS_KEY"`
	S3SecretKey string `name:"s3-secret-key" help:"Object storage secret key." env:"S3_SECRET_KEY"`
	S3Bucket    string `name:"s3-bucket" help:"Object storage bucket." env:"S3_BUCKET"`
	S3Prefix    string `name:"s3-prefix" help:"Key prefix inside the bucket." env:"S3_PREFIX"`
	S3Region    string `name:"s3-region" help:"Bucket region." env:"S3_REGION"`
	S3Insecure  bool   `name:"s3-insecure" help:"Use plain HTTP for object storage." env:"S3_INSECURE"`
}

func (c *CompositeCmd) Run(g *Globals) error {
	job, err := config.Load(c.Job)
	if err != nil {
		return err
	}
	if err := job.Validate(); err != nil {
		return err
	}

	source, err := c.source(g.logger)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sink, err := c.sink(ctx, g.logger)
	if err != nil {
		return err
	}

	st, closeDB, err := openStore(g)
	if err != nil {
		return err
	}
	defer closeDB()

	pipeline := composite.NewPipeline(source, cloud.SimpleScore{}, g.logger)
	run := runner.New(pipeline, st, sink, g.logger)

	table, err := run.RunJob(ctx, job)
	g.logger.Info("composite: job finished",
		zap.String("region", job.Region.Name),
		zap.Int("records", len(table)),
		zap.Error(err))
	return err
}

func (c *CompositeCmd) source(logger *zap.Logger) (composite.SceneSource, error) {
	switch c.Source {
	case "ftp":
		if c.FTPAddr == "" {
			return nil, fmt.Errorf("--ftp-addr (FTP_ADDR) required for the ftp source")
		}
		return ingest.NewFTPMirror(c.FTPAddr, c.FTPUser, c.FTPPassword, c.FTPRoot, logger), nil
	default:
		if c.ArchiveURL == "" {
			return nil, fmt.Errorf("--archive-url (ARCHIVE_URL) required for the http source")
		}
		return ingest.NewHTTPArchive(c.ArchiveURL, c.ArchiveAPIKey, logger), nil
	}
}

func (c *CompositeCmd) sink(ctx context.Context, logger *zap.Logger) (export.Sink, error) {
	switch c.Sink {
	case "s3":
		sink, err := export.NewMinioSink(export.MinioConfig{
			Endpoint:  c.S3Endpoint,
			AccessKey: c.S3AccessKey,
			SecretKey: c.S3SecretKey,
			Bucket:    c.S3Bucket,
			Prefix:    c.S3Prefix,
			Region:    c.S3Region,
			Secure:    !c.S3Insecure,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := sink.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return sink, nil
	default:
		if err := os.MkdirAll(c.OutDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
		return export.NewDirSink(c.OutDir, logger), nil
	}
}

type ValidateCmd struct {
	Job string `arg:"" help:"Job file (YAML)." type:"existingfile"`
}

func (c *ValidateCmd) Run(g *Globals) error {
	job, err := config.Load(c.Job)
	if err != nil {
		return err
	}
	reqs, err := job.Requests()
	if err != nil {
		return err
	}
	for _, req := range reqs {
		fmt.Printf("%s\t%s\t%s\t%dx%d\n",
			req.ID(),
			req.Period.Target.Start.Format("2006-01-02"),
			req.Period.Target.End.Format("2006-01-02"),
			req.Grid.Width, req.Grid.Height)
	}
	return nil
}

type MetadataCmd struct {
	Region string `help:"Only records for this region."`
	JSON   bool   `name:"json" help:"Write JSON instead of CSV."`
}

func (c *MetadataCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g)
	if err != nil {
		return err
	}
	defer closeDB()

	table, err := st.ListMetadata(c.Region)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(table)
	}
	return export.WriteTable(os.Stdout, table)
}

type RunsCmd struct {
	Limit int `help:"Number of runs to show." default:"20"`
}

func (c *RunsCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g)
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := st.RecentRuns(c.Limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		status := "running"
		switch {
		case r.Success:
			status = "ok"
		case r.FinishedAt.Valid:
			status = "failed: " + r.ErrorMessage.String
		}
		fmt.Printf("%d\t%s\t%s\t%s\n", r.ID, r.RecordID, r.StartedAt.Format("2006-01-02T15:04:05Z07:00"), status)
	}
	return nil
}

type CleanupCmd struct {
	Days int `help:"Retention window in days." default:"90"`
}

func (c *CleanupCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g)
	if err != nil {
		return err
	}
	defer closeDB()

	n, err := st.CleanupOldArtifacts(c.Days)
	if err != nil {
		return err
	}
	g.logger.Info("cleanup: removed artifacts", zap.Int64("count", n), zap.Int("days", c.Days))
	return nil
}

type ServeCmd struct {
	Port string `help:"HTTP server port." default:"8080" env:"PORT"`
}

func (c *ServeCmd) Run(g *Globals) error {
	st, closeDB, err := openStore(g)
	if err != nil {
		return err
	}
	defer closeDB()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return api.NewServer(st, c.Port, g.logger).Run(ctx)
}

func openStore(g *Globals) (*store.Store, func(), error) {
	if dir := filepath.Dir(g.DB); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", g.DB)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db, g.logger)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return st, func() { db.Close() }, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("tdomcomposite"),
		kong.Description("Cloud and shadow free Landsat compositing."),
		kong.UsageOnError(),
	)

	logger, err := newLogger(cli.Debug)
	ctx.FatalIfErrorf(err)
	defer logger.Sync()
	cli.Globals.logger = logger

	ctx.FatalIfErrorf(ctx.Run(&cli.Globals))
}
