package store

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"
	"time"
)

const (
	ArtifactPreview = "preview"
	ArtifactRaster  = "raster"
)

// Artifact is a stored blob attached to a composite record.
type Artifact struct {
	RecordID    string
	Kind        string
	ContentType string
	CreatedAt   time.Time
	Hash        string
	SizeBytes   int64
	Data        []byte
}

// StoreArtifact compresses and stores payload, replacing any artifact of the
// same kind for the record. It returns the sha256 of the uncompressed payload.
func (s *Store) StoreArtifact(recordID, kind, contentType string, payload []byte) (string, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(payload); err != nil {
		return "", fmt.Errorf("compress artifact: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("close gzip: %w", err)
	}

	hash := sha256.Sum256(payload)
	hashHex := hex.EncodeToString(hash[:])

	_, err := s.db.Exec(`
		INSERT INTO artifacts (record_id, kind, content_type, created_at, payload_compressed, payload_hash, size_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(record_id, kind) DO UPDATE SET
			content_type = excluded.content_type,
			created_at = excluded.created_at,
			payload_compressed = excluded.payload_compressed,
			payload_hash = excluded.payload_hash,
			size_bytes = excluded.size_bytes
	`, recordID, kind, contentType, time.Now().UTC(), buf.Bytes(), hashHex, len(payload))
	if err != nil {
		return "", fmt.Errorf("insert artifact: %w", err)
	}
	return hashHex, nil
}

// GetArtifact returns the decompressed artifact, or nil if none exists.
func (s *Store) GetArtifact(recordID, kind string) (*Artifact, error) {
	a := Artifact{RecordID: recordID, Kind: kind}
	var compressed []byte
	err := s.db.QueryRow(`
		SELECT content_type, created_at, payload_compressed, payload_hash, size_bytes
		FROM artifacts WHERE record_id = ? AND kind = ?
	`, recordID, kind).Scan(&a.ContentType, &a.CreatedAt, &compressed, &a.Hash, &a.SizeBytes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	a.Data, err = io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress artifact: %w", err)
	}
	return &a, nil
}

// CleanupOldArtifacts deletes artifacts older than retentionDays.
func (s *Store) CleanupOldArtifacts(retentionDays int) (int64, error) {
	result, err := s.db.Exec(`
		DELETE FROM artifacts
		WHERE created_at < ?
	`, time.Now().UTC().AddDate(0, 0, -retentionDays))
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
