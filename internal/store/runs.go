package store

import (
	"database/sql"
	"time"
)

// CompositeRun audits one evaluation of a compositing request.
type CompositeRun struct {
	ID                  int64
	RecordID            string
	StartedAt           time.Time
	FinishedAt          sql.NullTime
	ImageCountComposite sql.NullInt64
	ImageCountShadow    sql.NullInt64
	Success             bool
	ErrorMessage        sql.NullString
}

// StartCompositeRun creates a new run record and returns it.
func (s *Store) StartCompositeRun(recordID string) (*CompositeRun, error) {
	run := &CompositeRun{
		RecordID:  recordID,
		StartedAt: time.Now().UTC(),
	}

	result, err := s.db.Exec(`
		INSERT INTO composite_runs (record_id, started_at, success)
		VALUES (?, ?, FALSE)
	`, run.RecordID, run.StartedAt)
	if err != nil {
		return nil, err
	}

	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return run, nil
}

// CompleteCompositeRun records the outcome. A nil err marks the run successful.
func (s *Store) CompleteCompositeRun(run *CompositeRun, composite, shadow int, runErr error) error {
	if run == nil {
		return nil
	}

	run.FinishedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	run.Success = runErr == nil
	if runErr != nil {
		run.ErrorMessage = sql.NullString{String: runErr.Error(), Valid: true}
	} else {
		run.ImageCountComposite = sql.NullInt64{Int64: int64(composite), Valid: true}
		run.ImageCountShadow = sql.NullInt64{Int64: int64(shadow), Valid: true}
	}

	_, err := s.db.Exec(`
		UPDATE composite_runs SET
			finished_at = ?,
			image_count_composite = ?,
			image_count_shadow = ?,
			success = ?,
			error_message = ?
		WHERE id = ?
	`, run.FinishedAt, run.ImageCountComposite, run.ImageCountShadow, run.Success, run.ErrorMessage, run.ID)
	return err
}

// RecentRuns returns the latest runs, newest first.
func (s *Store) RecentRuns(limit int) ([]CompositeRun, error) {
	rows, err := s.db.Query(`
		SELECT id, record_id, started_at, finished_at, image_count_composite, image_count_shadow, success, error_message
		FROM composite_runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []CompositeRun
	for rows.Next() {
		var r CompositeRun
		if err := rows.Scan(&r.ID, &r.RecordID, &r.StartedAt, &r.FinishedAt, &r.ImageCountComposite,
			&r.ImageCountShadow, &r.Success, &r.ErrorMessage); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
