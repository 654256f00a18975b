package eventsink

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-vision-core/internal/behavior"
)

type recordingSink struct {
	mu       sync.Mutex
	events   []behavior.BehaviorEvent
	failNext bool
}

func (r *recordingSink) Publish(ctx context.Context, ev behavior.BehaviorEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext {
		r.failNext = false
		return context.DeadlineExceeded
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func sampleEvent(track int, ts time.Time) behavior.BehaviorEvent {
	return behavior.BehaviorEvent{
		EventType:     "intrusion",
		RuleID:        "default_intrusion",
		LocalObjectID: track,
		CameraID:      "cam1",
		Box:           behavior.Box{X1: 1, Y1: 2, X2: 3, Y2: 4},
		Confidence:    0.9,
		Timestamp:     ts,
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	sink := &recordingSink{}
	q := NewQueue(sink, 2)

	base := time.Now().UTC()
	q.TryPush(sampleEvent(1, base))
	q.TryPush(sampleEvent(2, base.Add(time.Second)))
	q.TryPush(sampleEvent(3, base.Add(2*time.Second))) // evicts track 1

	stats := q.Stats()
	require.Equal(t, 2, stats.Depth)
	require.Equal(t, uint64(1), stats.Dropped)
}

func TestQueueDrainsToSink(t *testing.T) {
	sink := &recordingSink{}
	q := NewQueue(sink, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.Run(ctx)

	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		q.TryPush(sampleEvent(i, base.Add(time.Duration(i)*time.Millisecond)))
	}

	require.Eventually(t, func() bool { return sink.count() == 5 }, time.Second, 5*time.Millisecond)
}

func TestDedupSinkSuppressesRepeatedTuple(t *testing.T) {
	sink := &recordingSink{}
	dedup, err := NewDedupSink(sink, 16)
	require.NoError(t, err)

	ts := time.Now().UTC()
	ev := sampleEvent(7, ts)

	require.NoError(t, dedup.Publish(context.Background(), ev))
	require.NoError(t, dedup.Publish(context.Background(), ev))
	require.Equal(t, 1, sink.count())
}

func TestDedupSinkDistinguishesTimestamp(t *testing.T) {
	sink := &recordingSink{}
	dedup, err := NewDedupSink(sink, 16)
	require.NoError(t, err)

	base := time.Now().UTC()
	require.NoError(t, dedup.Publish(context.Background(), sampleEvent(7, base)))
	require.NoError(t, dedup.Publish(context.Background(), sampleEvent(7, base.Add(time.Second))))
	require.Equal(t, 2, sink.count())
}

func TestOutboxRoundTripPreservesFields(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	ob, err := OpenOutbox(dir+"/outbox.db", sink)
	require.NoError(t, err)
	defer ob.Close()

	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ev := behavior.BehaviorEvent{
		EventType:      "intrusion",
		RuleID:         "r1",
		LocalObjectID:  3,
		GlobalIdentity: "g-abc",
		CameraID:       "cam9",
		Box:            behavior.Box{X1: 10, Y1: 20, X2: 30, Y2: 40},
		Confidence:     0.82,
		Timestamp:      ts,
		Metadata:       map[string]any{"duration": 5.0},
	}
	require.NoError(t, ob.Publish(context.Background(), ev))

	ob.drainPending(context.Background())
	require.Equal(t, 1, sink.count())

	got := sink.events[0]
	require.Equal(t, ev.EventType, got.EventType)
	require.Equal(t, ev.RuleID, got.RuleID)
	require.Equal(t, ev.LocalObjectID, got.LocalObjectID)
	require.Equal(t, ev.GlobalIdentity, got.GlobalIdentity)
	require.Equal(t, ev.CameraID, got.CameraID)
	require.Equal(t, ev.Box, got.Box)
	require.InDelta(t, ev.Confidence, got.Confidence, 1e-9)
	require.True(t, ev.Timestamp.Equal(got.Timestamp))
}

func TestOutboxIgnoresDuplicateIdempotencyTuple(t *testing.T) {
	dir := t.TempDir()
	sink := &recordingSink{}
	ob, err := OpenOutbox(dir+"/outbox.db", sink)
	require.NoError(t, err)
	defer ob.Close()

	ts := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ev := sampleEvent(4, ts)
	require.NoError(t, ob.Publish(context.Background(), ev))
	require.NoError(t, ob.Publish(context.Background(), ev))

	var count int
	row := ob.db.QueryRow(`SELECT COUNT(*) FROM outbox_events`)
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)
}

func TestFanoutContinuesPastSinkError(t *testing.T) {
	good := &recordingSink{}
	bad := &recordingSink{failNext: true}
	fanout := NewFanout(bad, good)

	err := fanout.Publish(context.Background(), sampleEvent(1, time.Now().UTC()))
	require.Error(t, err)
	require.Equal(t, 1, good.count())
}
