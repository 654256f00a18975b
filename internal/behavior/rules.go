package behavior

import "time"

// IntrusionRule pairs one ROI with a dwell threshold.
type IntrusionRule struct {
	ID          string
	ROIID       string
	MinDuration time.Duration
	Confidence  float64
	Enabled     bool
}

// Box is an axis-aligned box in image pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float64
}

// RepresentativePoint is the bbox bottom-center, the default membership
// test point.
func RepresentativePoint(b Box) Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: b.Y2}
}

// ObjectState is the behavior analyzer's per-track bookkeeping.
type ObjectState struct {
	TrackID       int
	ClassName     string
	Position      Point
	Trajectory    []Point // capped at trajectoryCap points
	EntryTimes    map[string]time.Time // ROI id -> first-seen-inside timestamp
	ReIDFeature   []float32
	GlobalIdentity string
}

const trajectoryCap = 100

func (s *ObjectState) pushTrajectory(p Point) {
	s.Trajectory = append(s.Trajectory, p)
	if len(s.Trajectory) > trajectoryCap {
		s.Trajectory = s.Trajectory[len(s.Trajectory)-trajectoryCap:]
	}
}

// BehaviorEvent is an emitted intrusion event.
type BehaviorEvent struct {
	EventType      string
	RuleID         string
	LocalObjectID  int
	GlobalIdentity string
	CameraID       string
	Box            Box
	Confidence     float64
	Timestamp      time.Time
	Metadata       map[string]any
}
