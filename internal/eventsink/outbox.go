package eventsink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"

	"github.com/technosupport/ts-vision-core/internal/behavior"
)

// Outbox is a durable local store ahead of an unreliable downstream
// sink. Events are appended synchronously so a sink outage (NATS down,
// network partition) never loses an event that already cleared the
// in-memory drop-oldest queue; a background drainer republishes
// pending rows until the downstream sink accepts them. Backed by a
// SQLite table rather than a flat file so pending rows can be marked
// sent individually instead of rewriting the whole log.
type Outbox struct {
	db         *sql.DB
	downstream Sink

	pollInterval time.Duration
}

// OpenOutbox opens (creating if needed) a SQLite-backed outbox at path
// and ensures its schema exists.
func OpenOutbox(path string, downstream Sink) (*Outbox, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("eventsink: open outbox: %w", err)
	}
	ob := &Outbox{db: db, downstream: downstream, pollInterval: 5 * time.Second}
	if err := ob.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return ob, nil
}

func (o *Outbox) migrate() error {
	_, err := o.db.Exec(`
		CREATE TABLE IF NOT EXISTS outbox_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			camera_id TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			local_track_id INTEGER NOT NULL,
			timestamp_ms INTEGER NOT NULL,
			payload TEXT NOT NULL,
			sent INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			UNIQUE(camera_id, rule_id, local_track_id, timestamp_ms)
		);
		CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox_events(sent, id);
	`)
	if err != nil {
		return fmt.Errorf("eventsink: migrate outbox: %w", err)
	}
	return nil
}

// Publish appends ev to the outbox. A duplicate on the idempotency
// tuple (cameraId, ruleId, localTrackId, timestampMs) is treated as
// success rather than an error.
func (o *Outbox) Publish(ctx context.Context, ev behavior.BehaviorEvent) error {
	data, err := json.Marshal(toWireEvent(ev))
	if err != nil {
		return fmt.Errorf("eventsink: marshal for outbox: %w", err)
	}

	_, err = o.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO outbox_events
		 (camera_id, rule_id, local_track_id, timestamp_ms, payload, sent, created_at)
		 VALUES (?, ?, ?, ?, ?, 0, ?)`,
		ev.CameraID, ev.RuleID, ev.LocalObjectID, ev.Timestamp.UnixMilli(), string(data), time.Now().UTC().Unix())
	if err != nil {
		return fmt.Errorf("eventsink: append outbox: %w", err)
	}
	return nil
}

// StartDrainer periodically republishes pending rows to the downstream
// sink, marking each sent on success.
func (o *Outbox) StartDrainer(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				o.drainPending(ctx)
			}
		}
	}()
}

type pendingRow struct {
	id      int64
	payload string
}

func (o *Outbox) drainPending(ctx context.Context) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT id, payload FROM outbox_events WHERE sent = 0 ORDER BY id LIMIT 200`)
	if err != nil {
		log.Printf("eventsink: outbox drain query failed: %v", err)
		return
	}
	var pending []pendingRow
	for rows.Next() {
		var r pendingRow
		if err := rows.Scan(&r.id, &r.payload); err != nil {
			continue
		}
		pending = append(pending, r)
	}
	rows.Close()

	var sent int
	for _, r := range pending {
		var we wireEvent
		if err := json.Unmarshal([]byte(r.payload), &we); err != nil {
			continue
		}
		if err := o.downstream.Publish(ctx, fromWireEvent(we)); err != nil {
			break // stop on first failure, retry next tick
		}
		if _, err := o.db.ExecContext(ctx, `UPDATE outbox_events SET sent = 1 WHERE id = ?`, r.id); err == nil {
			sent++
		}
	}
	if sent > 0 {
		log.Printf("eventsink: outbox drained %d events", sent)
	}
}

// Close releases the underlying database handle.
func (o *Outbox) Close() error {
	return o.db.Close()
}

func fromWireEvent(we wireEvent) behavior.BehaviorEvent {
	return behavior.BehaviorEvent{
		EventType:      we.EventType,
		RuleID:         we.RuleID,
		LocalObjectID:  we.LocalObjectID,
		GlobalIdentity: we.GlobalIdentity,
		CameraID:       we.CameraID,
		Box:            behavior.Box{X1: we.Box[0], Y1: we.Box[1], X2: we.Box[2], Y2: we.Box[3]},
		Confidence:     we.Confidence,
		Timestamp:      time.UnixMilli(we.TimestampMS).UTC(),
		Metadata:       we.Metadata,
	}
}
