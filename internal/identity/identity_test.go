package identity

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func unitVector(dims int, peak int) []float32 {
	v := make([]float32, dims)
	v[peak%dims] = 1
	return v
}

// lean: two unit vectors at a small angle, cosine similarity ~0.82.
func leaningVectors() ([]float32, []float32) {
	a := []float32{1, 0}
	b := []float32{0.82, 0.5724}
	return a, b
}

func TestRedisStoreRecordAndRecentFeaturesRoundTrip(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, "cam1", "7", "g1", unitVector(4, 0), ts))

	got, err := store.RecentFeatures(ctx, ts.Add(5*time.Second), 30*time.Second)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "cam1", got[0].CameraID)
	require.Equal(t, "g1", got[0].GlobalID)
}

func TestRedisStorePrunesOutsideWindow(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(ctx, "cam1", "7", "g1", unitVector(4, 0), ts))

	got, err := store.RecentFeatures(ctx, ts.Add(45*time.Second), 30*time.Second)
	require.NoError(t, err)
	require.Empty(t, got)
}

// Cross-camera reid: the same physical object shows up on a second
// camera a few seconds later with a similar but not identical feature
// (cosine ~0.82). At tau=0.7 the registry should merge to one global
// identity; at tau=0.9 it should keep them distinct.
func TestCrossCameraBindMergesAboveThreshold(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	reg := NewRegistry(Config{Tau: 0.7, K: 5, Window: 30 * time.Second}, store)
	fa, fb := leaningVectors()

	idA, _, err := reg.BindByFeature(ctx, "camA", "11", fa, base)
	require.NoError(t, err)

	idB, matches, err := reg.BindByFeature(ctx, "camB", "22", fb, base.Add(3*time.Second))
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	require.Equal(t, idA, idB)
}

func TestCrossCameraBindKeepsDistinctAboveStrictThreshold(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	reg := NewRegistry(Config{Tau: 0.9, K: 5, Window: 30 * time.Second}, store)
	fa, fb := leaningVectors()

	idA, _, err := reg.BindByFeature(ctx, "camA", "11", fa, base)
	require.NoError(t, err)

	idB, _, err := reg.BindByFeature(ctx, "camB", "22", fb, base.Add(3*time.Second))
	require.NoError(t, err)
	require.NotEqual(t, idA, idB)
}

func TestBindByFeatureOutsideWindowDoesNotMerge(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisStore(client)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	reg := NewRegistry(Config{Tau: 0.5, K: 5, Window: 10 * time.Second}, store)
	fa, fb := leaningVectors()

	idA, _, err := reg.BindByFeature(ctx, "camA", "11", fa, base)
	require.NoError(t, err)

	idB, matches, err := reg.BindByFeature(ctx, "camB", "22", fb, base.Add(time.Minute))
	require.NoError(t, err)
	require.Empty(t, matches)
	require.NotEqual(t, idA, idB)
}

func TestGetGlobalTrackIDIsIdempotent(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisStore(client)
	reg := NewRegistry(DefaultConfig(), store)

	first := reg.GetGlobalTrackID("cam1", "5")
	second := reg.GetGlobalTrackID("cam1", "5")
	require.Equal(t, first, second)

	other := reg.GetGlobalTrackID("cam1", "6")
	require.NotEqual(t, first, other)
}

func TestNewRegistryClampsTau(t *testing.T) {
	client := newTestRedis(t)
	store := NewRedisStore(client)

	low := NewRegistry(Config{Tau: 0.1, K: 5, Window: time.Second}, store)
	require.Equal(t, 0.5, low.cfg.Tau)

	high := NewRegistry(Config{Tau: 0.99, K: 5, Window: time.Second}, store)
	require.Equal(t, 0.95, high.cfg.Tau)
}

func TestCosineSimilarityOrthogonalIsZero(t *testing.T) {
	require.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarityIdenticalIsOne(t *testing.T) {
	v := []float32{0.3, 0.1, 0.7}
	require.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}
