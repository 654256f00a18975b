package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/technosupport/ts-vision-core/internal/config"
	"github.com/technosupport/ts-vision-core/internal/crypto"
)

// VideoSourceRecord is the database row shape for one VideoSource: the
// scalar columns the reconcile diff cares about, plus an options blob
// for the detection/stream/person-stats bag split into a jsonb tail.
type VideoSourceRecord struct {
	config.VideoSource
	CreatedAt time.Time
	UpdatedAt time.Time
}

type optionsBlob struct {
	Detection   config.DetectionOptions   `json:"detection"`
	Stream      config.StreamOptions      `json:"stream"`
	PersonStats config.PersonStatsOptions `json:"person_stats"`
}

// PostgresStore implements ConfigStore against the video_sources table.
// Stream credentials are never written in the clear: Keyring seals them
// into a CredentialEnvelope bound to the record's ID before every write,
// and opens them again on every read.
type PostgresStore struct {
	DB      DBTX
	Keyring *crypto.Keyring
}

// NewPostgresStore constructs a store over db (a *sql.DB opened with the
// pgx/v5 stdlib driver in production, or a sqlmock-backed *sql.DB in tests).
// keyring must already be loaded (see crypto.Keyring.LoadFromEnv).
func NewPostgresStore(db DBTX, keyring *crypto.Keyring) *PostgresStore {
	return &PostgresStore{DB: db, Keyring: keyring}
}

func (s *PostgresStore) ListVideoSources(ctx context.Context) ([]VideoSourceRecord, error) {
	query := `
		SELECT id, name, url, cred_envelope, width, height, fps,
		       preview_port, enabled, detection_enabled, recording_enabled,
		       options, created_at, updated_at
		FROM video_sources
		ORDER BY id`

	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list video sources: %w", err)
	}
	defer rows.Close()

	var out []VideoSourceRecord
	for rows.Next() {
		rec, err := s.scanVideoSource(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan video source: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) scanVideoSource(row rowScanner) (VideoSourceRecord, error) {
	var rec VideoSourceRecord
	var envelopeJSON []byte
	var optionsJSON []byte

	err := row.Scan(
		&rec.ID, &rec.Name, &rec.URL, &envelopeJSON, &rec.Width, &rec.Height, &rec.FPS,
		&rec.PreviewPort, &rec.Enabled, &rec.DetectionEnabled, &rec.RecordingEnabled,
		&optionsJSON, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return VideoSourceRecord{}, err
	}

	if len(envelopeJSON) > 0 {
		var env crypto.CredentialEnvelope
		if err := json.Unmarshal(envelopeJSON, &env); err != nil {
			return VideoSourceRecord{}, fmt.Errorf("unmarshal credential envelope: %w", err)
		}
		username, password, err := s.Keyring.OpenCredentials(&env, crypto.CredentialAAD(rec.ID))
		if err != nil {
			return VideoSourceRecord{}, fmt.Errorf("open credentials for %s: %w", rec.ID, err)
		}
		rec.Credentials = &config.Credentials{Username: username, Password: password}
	}

	var blob optionsBlob
	if len(optionsJSON) > 0 {
		if err := json.Unmarshal(optionsJSON, &blob); err != nil {
			return VideoSourceRecord{}, fmt.Errorf("unmarshal options: %w", err)
		}
	}
	rec.Detection = blob.Detection
	rec.Stream = blob.Stream
	rec.PersonStats = blob.PersonStats
	return rec, nil
}

// UpsertVideoSource inserts or replaces the row for rec.ID.
func (s *PostgresStore) UpsertVideoSource(ctx context.Context, rec VideoSourceRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	blob := optionsBlob{Detection: rec.Detection, Stream: rec.Stream, PersonStats: rec.PersonStats}
	optionsJSON, err := json.Marshal(blob)
	if err != nil {
		return fmt.Errorf("store: marshal options: %w", err)
	}

	var envelopeJSON []byte
	if rec.Credentials != nil {
		env, err := s.Keyring.SealCredentials(rec.Credentials.Username, rec.Credentials.Password, crypto.CredentialAAD(rec.ID))
		if err != nil {
			return fmt.Errorf("store: seal credentials for %s: %w", rec.ID, err)
		}
		envelopeJSON, err = json.Marshal(env)
		if err != nil {
			return fmt.Errorf("store: marshal credential envelope: %w", err)
		}
	}

	query := `
		INSERT INTO video_sources (
			id, name, url, cred_envelope, width, height, fps,
			preview_port, enabled, detection_enabled, recording_enabled, options, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, url = EXCLUDED.url,
			cred_envelope = EXCLUDED.cred_envelope,
			width = EXCLUDED.width, height = EXCLUDED.height, fps = EXCLUDED.fps,
			preview_port = EXCLUDED.preview_port, enabled = EXCLUDED.enabled,
			detection_enabled = EXCLUDED.detection_enabled, recording_enabled = EXCLUDED.recording_enabled,
			options = EXCLUDED.options, updated_at = now()`

	_, err = s.DB.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.URL, envelopeJSON, rec.Width, rec.Height, rec.FPS,
		rec.PreviewPort, rec.Enabled, rec.DetectionEnabled, rec.RecordingEnabled, optionsJSON,
	)
	if err != nil {
		return fmt.Errorf("store: upsert video source %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteVideoSource(ctx context.Context, id string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM video_sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("store: delete video source %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
