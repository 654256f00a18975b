package eventsink

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/technosupport/ts-vision-core/internal/behavior"
)

// DedupSink wraps a downstream Sink and drops events already seen on
// the idempotency tuple (cameraId, ruleId, localTrackId,
// timestampMs), so retried or re-delivered events from the outbox
// drainer never double-publish to the same destination.
type DedupSink struct {
	next  Sink
	cache *lru.Cache[string, struct{}]
}

// NewDedupSink builds a dedup filter in front of next with the given
// LRU capacity.
func NewDedupSink(next Sink, capacity int) (*DedupSink, error) {
	if capacity <= 0 {
		capacity = 4096
	}
	cache, err := lru.New[string, struct{}](capacity)
	if err != nil {
		return nil, fmt.Errorf("eventsink: new dedup cache: %w", err)
	}
	return &DedupSink{next: next, cache: cache}, nil
}

func dedupKey(ev behavior.BehaviorEvent) string {
	return fmt.Sprintf("%s|%s|%d|%d", ev.CameraID, ev.RuleID, ev.LocalObjectID, ev.Timestamp.UnixMilli())
}

func (d *DedupSink) Publish(ctx context.Context, ev behavior.BehaviorEvent) error {
	key := dedupKey(ev)
	if _, seen := d.cache.Get(key); seen {
		return nil
	}
	if err := d.next.Publish(ctx, ev); err != nil {
		return err
	}
	d.cache.Add(key, struct{}{})
	return nil
}
