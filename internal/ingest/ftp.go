package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/textproto"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"github.com/lox/tdomcomposite/internal/metrics"
	"github.com/lox/tdomcomposite/internal/models"
)

// FTPMirror reads scenes from an FTP mirror laid out as
// {root}/{collection}/{year}/{sceneID}_{yyyymmdd}.json.gz.
type FTPMirror struct {
	addr     string
	user     string
	password string
	root     string
	timeout  time.Duration
	logger   *zap.Logger
}

func NewFTPMirror(addr, user, password, root string, logger *zap.Logger) *FTPMirror {
	if user == "" {
		user, password = "anonymous", "anonymous"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FTPMirror{
		addr:     addr,
		user:     user,
		password: password,
		root:     root,
		timeout:  30 * time.Second,
		logger:   logger,
	}
}

func (m *FTPMirror) FetchScenes(ctx context.Context, q models.SceneQuery) (models.FetchResult, error) {
	collection := q.Sensor.CollectionID()
	started := time.Now()
	defer func() {
		metrics.ArchiveLatency.WithLabelValues("ftp", collection).Observe(time.Since(started).Seconds())
	}()

	conn, err := ftp.Dial(m.addr, ftp.DialWithTimeout(m.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		metrics.ArchiveCallsTotal.WithLabelValues("ftp", collection, "error").Inc()
		return nil, &models.ExternalServiceError{Service: "ftp mirror", Op: "dial", Err: err}
	}
	defer conn.Quit()

	if err := conn.Login(m.user, m.password); err != nil {
		metrics.ArchiveCallsTotal.WithLabelValues("ftp", collection, "error").Inc()
		return nil, &models.ExternalServiceError{Service: "ftp mirror", Op: "login", Err: err}
	}

	var scenes models.Collection
	for year := q.Dates.Start.Year(); year <= q.Dates.End.Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dir := path.Join(m.root, collection, fmt.Sprint(year))
		entries, err := conn.List(dir)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			metrics.ArchiveCallsTotal.WithLabelValues("ftp", collection, "error").Inc()
			return nil, &models.ExternalServiceError{Service: "ftp mirror", Op: "list " + dir, Err: err}
		}

		for _, e := range entries {
			if e.Type != ftp.EntryTypeFile {
				continue
			}
			acquired, ok := parseSceneFileDate(e.Name)
			if !ok || !q.Dates.Contains(acquired) || !q.Julian.Contains(acquired.YearDay()) {
				continue
			}
			s, err := m.retrieve(conn, path.Join(dir, e.Name))
			if err != nil {
				metrics.ArchiveCallsTotal.WithLabelValues("ftp", collection, "error").Inc()
				return nil, &models.ExternalServiceError{Service: "ftp mirror", Op: "retr " + e.Name, Err: err}
			}
			if flags := ValidateScene(s); len(flags) > 0 {
				m.logger.Warn("ftp: scene quality flags", zap.String("scene", s.ID), zap.Strings("flags", flags))
			}
			scenes = append(scenes, s)
		}
	}
	metrics.ArchiveCallsTotal.WithLabelValues("ftp", collection, "ok").Inc()

	scenes = selectScenes(scenes, q)
	metrics.ScenesFetched.WithLabelValues(q.Sensor.String()).Add(float64(len(scenes)))
	m.logger.Debug("ftp: fetched scenes", zap.String("collection", collection), zap.Int("scenes", len(scenes)))
	return result(scenes, q), nil
}

func (m *FTPMirror) retrieve(conn *ftp.ServerConn, file string) (models.Scene, error) {
	resp, err := conn.Retr(file)
	if err != nil {
		return models.Scene{}, err
	}
	defer resp.Close()
	return DecodeSceneGzip(resp)
}

// parseSceneFileDate extracts the acquisition date from {id}_{yyyymmdd}.json.gz.
func parseSceneFileDate(name string) (time.Time, bool) {
	base, ok := strings.CutSuffix(name, ".json.gz")
	if !ok {
		return time.Time{}, false
	}
	i := strings.LastIndexByte(base, '_')
	if i < 0 {
		return time.Time{}, false
	}
	t, err := time.Parse("20060102", base[i+1:])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func isNotFound(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}
