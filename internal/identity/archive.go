package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ArchiveStore persists globalId <-> feature associations past the hot
// cache's temporal window, for cross-camera matches that span longer
// gaps than the live registry tracks. Grounded on the same pgx/pgvector
// cosine-distance query shape as a face-recognition search endpoint.
type ArchiveStore struct {
	pool *pgxpool.Pool
}

// NewArchiveStore wraps an existing pgx pool. Schema is created out of
// band by the config store's migrations (internal/store/migrations).
func NewArchiveStore(pool *pgxpool.Pool) *ArchiveStore {
	return &ArchiveStore{pool: pool}
}

// ArchiveMatch is one cold-store candidate, ranked by cosine similarity.
type ArchiveMatch struct {
	GlobalID  string
	Score     float64
	CameraID  string
	Timestamp time.Time
}

// Insert records one observed feature under a global identity.
func (a *ArchiveStore) Insert(ctx context.Context, globalID, cameraID string, feature []float32, ts time.Time) error {
	vec := pgvector.NewVector(feature)
	_, err := a.pool.Exec(ctx,
		`INSERT INTO identity_features (global_id, camera_id, feature, observed_at) VALUES ($1, $2, $3, $4)`,
		globalID, cameraID, vec, ts)
	if err != nil {
		return fmt.Errorf("identity archive: insert: %w", err)
	}
	return nil
}

// SearchSimilar returns the closest archived identities to feature,
// using pgvector's cosine-distance operator (`<=>`), mirroring the
// `1 - (embedding <=> $1)` similarity convention from the face-search
// reference query this is grounded on.
func (a *ArchiveStore) SearchSimilar(ctx context.Context, feature []float32, minScore float64, limit int) ([]ArchiveMatch, error) {
	if limit <= 0 {
		limit = 5
	}
	vec := pgvector.NewVector(feature)

	rows, err := a.pool.Query(ctx,
		`SELECT global_id, camera_id, observed_at, 1 - (feature <=> $1) AS score
		 FROM identity_features
		 WHERE 1 - (feature <=> $1) >= $2
		 ORDER BY feature <=> $1
		 LIMIT $3`,
		vec, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("identity archive: search: %w", err)
	}
	defer rows.Close()

	var out []ArchiveMatch
	for rows.Next() {
		var m ArchiveMatch
		if err := rows.Scan(&m.GlobalID, &m.CameraID, &m.Timestamp, &m.Score); err != nil {
			return nil, fmt.Errorf("identity archive: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
