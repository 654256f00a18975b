package eventsink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/technosupport/ts-vision-core/internal/behavior"
)

// NATSSink publishes behavior events to a subject, retrying with a
// linear backoff on transient publish failures.
type NATSSink struct {
	conn       *nats.Conn
	subject    string
	maxRetries int
}

// NewNATSSink wraps an existing NATS connection.
func NewNATSSink(conn *nats.Conn, subject string, maxRetries int) *NATSSink {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &NATSSink{conn: conn, subject: subject, maxRetries: maxRetries}
}

func (s *NATSSink) Publish(ctx context.Context, ev behavior.BehaviorEvent) error {
	data, err := json.Marshal(toWireEvent(ev))
	if err != nil {
		return fmt.Errorf("eventsink: marshal: %w", err)
	}

	var lastErr error
	for i := 0; i <= s.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.conn.Publish(s.subject, data); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(time.Duration(i*100) * time.Millisecond)
	}
	return fmt.Errorf("eventsink: publish failed after %d retries: %w", s.maxRetries, lastErr)
}

// wireEvent is the exact-field record a BehaviorEvent serializes to on
// the wire, independent of the in-process struct's field names.
type wireEvent struct {
	EventType      string         `json:"eventType"`
	RuleID         string         `json:"ruleId"`
	LocalObjectID  int            `json:"localObjectId"`
	GlobalIdentity string         `json:"globalIdentity,omitempty"`
	CameraID       string         `json:"cameraId"`
	Box            [4]float64     `json:"box"`
	Confidence     float64        `json:"confidence"`
	TimestampMS    int64          `json:"timestampMs"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func toWireEvent(ev behavior.BehaviorEvent) wireEvent {
	return wireEvent{
		EventType:      ev.EventType,
		RuleID:         ev.RuleID,
		LocalObjectID:  ev.LocalObjectID,
		GlobalIdentity: ev.GlobalIdentity,
		CameraID:       ev.CameraID,
		Box:            [4]float64{ev.Box.X1, ev.Box.Y1, ev.Box.X2, ev.Box.Y2},
		Confidence:     ev.Confidence,
		TimestampMS:    ev.Timestamp.UnixMilli(),
		Metadata:       ev.Metadata,
	}
}
