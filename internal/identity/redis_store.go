package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	activeZSetKey = "identity:active"
	featureKeyFmt = "identity:feature:%s"
)

// RedisStore is the hot cross-camera feature cache: a single sorted set
// keyed by capture time (score = unix seconds) bounds the candidate
// set to a temporal window without a background sweep.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

type featurePayload struct {
	CameraID   string    `json:"camera_id"`
	LocalTrack string    `json:"local_track"`
	GlobalID   string    `json:"global_id"`
	Feature    []float32 `json:"feature"`
	Timestamp  int64     `json:"timestamp_unix"`
}

func member(cameraID, localTrackID string) string {
	return cameraID + "|" + localTrackID
}

// Record upserts the member's entry and score, so a track re-observed
// within the window keeps sliding forward rather than expiring.
func (s *RedisStore) Record(ctx context.Context, cameraID, localTrackID, globalID string, feature []float32, ts time.Time) error {
	m := member(cameraID, localTrackID)
	payload := featurePayload{
		CameraID:   cameraID,
		LocalTrack: localTrackID,
		GlobalID:   globalID,
		Feature:    feature,
		Timestamp:  ts.Unix(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("identity: marshal feature: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.ZAdd(ctx, activeZSetKey, redis.Z{Score: float64(ts.Unix()), Member: m})
	featureKey := fmt.Sprintf(featureKeyFmt, m)
	pipe.Set(ctx, featureKey, data, 0)
	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("identity: record feature: %w", err)
	}
	return nil
}

// RecentFeatures prunes entries older than the window, then returns
// every surviving member's stored feature.
func (s *RedisStore) RecentFeatures(ctx context.Context, now time.Time, window time.Duration) ([]storedFeature, error) {
	cutoff := now.Add(-window).Unix()

	if err := s.client.ZRemRangeByScore(ctx, activeZSetKey, "-inf", fmt.Sprintf("(%d", cutoff)).Err(); err != nil {
		return nil, fmt.Errorf("identity: prune expired: %w", err)
	}

	members, err := s.client.ZRangeByScore(ctx, activeZSetKey, &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", cutoff),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("identity: range active: %w", err)
	}

	out := make([]storedFeature, 0, len(members))
	for _, m := range members {
		raw, err := s.client.Get(ctx, fmt.Sprintf(featureKeyFmt, m)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("identity: get feature %s: %w", m, err)
		}
		var payload featurePayload
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return nil, fmt.Errorf("identity: unmarshal feature %s: %w", m, err)
		}
		out = append(out, storedFeature{
			CameraID:   payload.CameraID,
			LocalTrack: payload.LocalTrack,
			GlobalID:   payload.GlobalID,
			Feature:    payload.Feature,
			Timestamp:  time.Unix(payload.Timestamp, 0).UTC(),
		})
	}
	return out, nil
}
