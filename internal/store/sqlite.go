package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/lox/tdomcomposite/internal/models"
)

type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

const metadataColumns = `id, region, band_names, date_start, date_end, julian_start, julian_end,
	cloud_threshold, compositing_method, compositing_parameters, sensors, buffer_cloud_shadow,
	image_count_composite, image_count_shadow, crs, cloud_shadow_start, cloud_shadow_end,
	z_shadow_threshold, cloud_expand_iterations, shadow_expand_iterations`

// UpsertMetadata stores records keyed by ID; re-running a request replaces its row.
func (s *Store) UpsertMetadata(table models.MetadataTable) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO composite_metadata (` + metadataColumns + `, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			region = excluded.region,
			band_names = excluded.band_names,
			date_start = excluded.date_start,
			date_end = excluded.date_end,
			julian_start = excluded.julian_start,
			julian_end = excluded.julian_end,
			cloud_threshold = excluded.cloud_threshold,
			compositing_method = excluded.compositing_method,
			compositing_parameters = excluded.compositing_parameters,
			sensors = excluded.sensors,
			buffer_cloud_shadow = excluded.buffer_cloud_shadow,
			image_count_composite = excluded.image_count_composite,
			image_count_shadow = excluded.image_count_shadow,
			crs = excluded.crs,
			cloud_shadow_start = excluded.cloud_shadow_start,
			cloud_shadow_end = excluded.cloud_shadow_end,
			z_shadow_threshold = excluded.z_shadow_threshold,
			cloud_expand_iterations = excluded.cloud_expand_iterations,
			shadow_expand_iterations = excluded.shadow_expand_iterations,
			updated_at = CURRENT_TIMESTAMP
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range table {
		bands, err := json.Marshal(r.BandNames)
		if err != nil {
			return fmt.Errorf("encode band names for %s: %w", r.ID, err)
		}
		sensors, err := json.Marshal(r.Sensors)
		if err != nil {
			return fmt.Errorf("encode sensors for %s: %w", r.ID, err)
		}
		if _, err := stmt.Exec(r.ID, r.Region, string(bands), r.DateStart.UTC(), r.DateEnd.UTC(),
			r.JulianStart, r.JulianEnd, r.CloudThreshold, r.CompositingMethod, r.CompositingParameters,
			string(sensors), r.BufferCloudShadow, r.ImageCountComposite, r.ImageCountShadow, r.CRS,
			r.CloudShadowStart.UTC(), r.CloudShadowEnd.UTC(), r.ZShadowThreshold,
			r.CloudExpandIterations, r.ShadowExpandIterations); err != nil {
			return fmt.Errorf("upsert %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// ListMetadata returns stored records, optionally restricted to one region,
// ordered by region then period start.
func (s *Store) ListMetadata(region string) (models.MetadataTable, error) {
	query := `SELECT ` + metadataColumns + ` FROM composite_metadata`
	var args []any
	if region != "" {
		query += ` WHERE region = ?`
		args = append(args, region)
	}
	query += ` ORDER BY region, date_start, id`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var table models.MetadataTable
	for rows.Next() {
		r, err := scanMetadata(rows)
		if err != nil {
			return nil, err
		}
		table = append(table, r)
	}
	return table, rows.Err()
}

// GetMetadata returns the record with id, or nil if none exists.
func (s *Store) GetMetadata(id string) (*models.MetadataRecord, error) {
	row := s.db.QueryRow(`SELECT `+metadataColumns+` FROM composite_metadata WHERE id = ?`, id)
	r, err := scanMetadata(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMetadata(sc scanner) (models.MetadataRecord, error) {
	var r models.MetadataRecord
	var bands, sensors string
	var params sql.NullString
	err := sc.Scan(&r.ID, &r.Region, &bands, &r.DateStart, &r.DateEnd, &r.JulianStart, &r.JulianEnd,
		&r.CloudThreshold, &r.CompositingMethod, &params, &sensors, &r.BufferCloudShadow,
		&r.ImageCountComposite, &r.ImageCountShadow, &r.CRS, &r.CloudShadowStart, &r.CloudShadowEnd,
		&r.ZShadowThreshold, &r.CloudExpandIterations, &r.ShadowExpandIterations)
	if err != nil {
		return r, err
	}
	r.CompositingParameters = params.String
	if err := json.Unmarshal([]byte(bands), &r.BandNames); err != nil {
		return r, fmt.Errorf("decode band names for %s: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(sensors), &r.Sensors); err != nil {
		return r, fmt.Errorf("decode sensors for %s: %w", r.ID, err)
	}
	return r, nil
}
