// Package identity implements the pipeline manager's cross-camera
// global identity registry: a hot, temporally-windowed feature cache
// backed by Redis for live matching, and a cold pgvector archive for
// longer-lived re-identification.
package identity

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Match is one candidate cross-camera identity hit, sorted by
// similarity descending.
type Match struct {
	GlobalID   string
	CameraID   string
	LocalTrack string
	Similarity float64
	Timestamp  time.Time
}

// HotStore is the temporally-windowed feature cache contract. RedisStore
// implements this against go-redis; tests may substitute an in-memory
// fake.
type HotStore interface {
	Record(ctx context.Context, cameraID, localTrackID, globalID string, feature []float32, ts time.Time) error
	RecentFeatures(ctx context.Context, now time.Time, window time.Duration) ([]storedFeature, error)
}

type storedFeature struct {
	CameraID   string
	LocalTrack string
	GlobalID   string
	Feature    []float32
	Timestamp  time.Time
}

type localKey struct {
	cameraID   string
	localTrack string
}

// Config holds the cross-camera ReID tunables.
type Config struct {
	Tau    float64       // similarity threshold, default 0.7, valid [0.5, 0.95]
	K      int           // max candidates returned, default 5
	Window time.Duration // temporal bound on candidates, default 30s
}

// DefaultConfig returns the documented tuning defaults.
func DefaultConfig() Config {
	return Config{Tau: 0.7, K: 5, Window: 30 * time.Second}
}

// Registry is the manager-owned global identity map. One process-wide instance; guarded by a
// single read-write lock since it is a shared resource across pipelines.
type Registry struct {
	cfg Config
	hot HotStore

	mu    sync.RWMutex
	local map[localKey]string
}

// NewRegistry constructs a registry backed by the given hot store.
func NewRegistry(cfg Config, hot HotStore) *Registry {
	if cfg.Tau == 0 {
		cfg = DefaultConfig()
	}
	if cfg.Tau < 0.5 {
		cfg.Tau = 0.5
	}
	if cfg.Tau > 0.95 {
		cfg.Tau = 0.95
	}
	return &Registry{cfg: cfg, hot: hot, local: make(map[localKey]string)}
}

// GetGlobalTrackID returns the global id for a local track, allocating
// one on first query and returning the same id thereafter.
func (r *Registry) GetGlobalTrackID(cameraID, localTrackID string) string {
	key := localKey{cameraID, localTrackID}

	r.mu.RLock()
	if id, ok := r.local[key]; ok {
		r.mu.RUnlock()
		return id
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.local[key]; ok {
		return id
	}
	id := uuid.NewString()
	r.local[key] = id
	return id
}

// BindByFeature matches the current feature against recently-active
// features from all pipelines, sorted by similarity and bounded to K
// candidates within the configured temporal window. A match
// above Tau inherits that globalTrackId; otherwise the local track
// keeps (or allocates) its own.
func (r *Registry) BindByFeature(ctx context.Context, cameraID, localTrackID string, feature []float32, ts time.Time) (string, []Match, error) {
	key := localKey{cameraID, localTrackID}

	candidates, err := r.hot.RecentFeatures(ctx, ts, r.cfg.Window)
	if err != nil {
		return "", nil, err
	}

	var matches []Match
	for _, c := range candidates {
		if c.CameraID == cameraID && c.LocalTrack == localTrackID {
			continue
		}
		sim := cosineSimilarity(feature, c.Feature)
		matches = append(matches, Match{
			GlobalID:   c.GlobalID,
			CameraID:   c.CameraID,
			LocalTrack: c.LocalTrack,
			Similarity: sim,
			Timestamp:  c.Timestamp,
		})
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	if len(matches) > r.cfg.K {
		matches = matches[:r.cfg.K]
	}

	r.mu.Lock()
	var globalID string
	if len(matches) > 0 && matches[0].Similarity >= r.cfg.Tau {
		globalID = matches[0].GlobalID
	} else if existing, ok := r.local[key]; ok {
		globalID = existing
	} else {
		globalID = uuid.NewString()
	}
	r.local[key] = globalID
	r.mu.Unlock()

	if err := r.hot.Record(ctx, cameraID, localTrackID, globalID, feature, ts); err != nil {
		return globalID, matches, err
	}
	return globalID, matches, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
