package tracker

import "math"

// State is a track's position in the lifetime FSM.
type State int

const (
	StateNew State = iota
	Tracked
	Lost
	Removed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case Tracked:
		return "tracked"
	case Lost:
		return "lost"
	case Removed:
		return "removed"
	default:
		return "unknown"
	}
}

// Box is an axis-aligned box in image pixel coordinates.
type Box struct {
	X1, Y1, X2, Y2 float64
}

func boxToCenter(b Box) (cx, cy, w, h float64) {
	w = b.X2 - b.X1
	h = b.Y2 - b.Y1
	cx = b.X1 + w/2
	cy = b.Y1 + h/2
	return
}

func centerToBox(cx, cy, w, h float64) Box {
	return Box{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// Track is one per-camera tracked object. TrackID is assigned
// once at creation and never reused within the owning tracker's session.
type Track struct {
	TrackID    int
	ClassID    int
	State      State
	Box        Box
	Age        int // frames since creation
	FramesSinceUpdate int
	Appearance []float32 // L2-normalized, nil until a feature is observed

	filter *kalmanFilter
}

// newTrack seeds a fresh Kalman filter from the first observed box.
func newTrack(id int, classID int, box Box) *Track {
	cx, cy, w, h := boxToCenter(box)
	return &Track{
		TrackID: id,
		ClassID: classID,
		State:   StateNew,
		Box:     box,
		filter:  newKalmanFilter(cx, cy, w, h),
	}
}

// predict advances this track's filter one frame and updates its
// displayed box to the prediction, ahead of association.
func (t *Track) predict() {
	cx, cy, w, h := t.filter.predict()
	t.Box = centerToBox(cx, cy, w, h)
	t.Age++
	t.FramesSinceUpdate++
}

// applyMatch folds a matched detection into the filter, advances the
// FSM (New/Lost -> Tracked), and EMA-updates the appearance feature.
func (t *Track) applyMatch(box Box, feature []float32) {
	cx, cy, w, h := boxToCenter(box)
	t.filter.correct(cx, cy, w, h)
	ncx, ncy, nw, nh := t.filter.state()
	t.Box = centerToBox(ncx, ncy, nw, nh)
	t.FramesSinceUpdate = 0

	if t.State == StateNew || t.State == Lost {
		t.State = Tracked
	}

	if feature != nil {
		const alpha = 0.3
		if t.Appearance == nil {
			t.Appearance = append([]float32(nil), feature...)
		} else {
			var sum float64
			for i := range t.Appearance {
				t.Appearance[i] = alpha*feature[i] + (1-alpha)*t.Appearance[i]
				sum += float64(t.Appearance[i]) * float64(t.Appearance[i])
			}
			if sum > 0 {
				norm := float32(math.Sqrt(sum))
				for i := range t.Appearance {
					t.Appearance[i] /= norm
				}
			}
		}
	}
}

// markMissed transitions an unmatched Tracked track to Lost, and a
// sufficiently stale Lost track to Removed (maxLostFrames default 30).
func (t *Track) markMissed(maxLostFrames int) {
	if t.State == Tracked {
		t.State = Lost
	}
	if t.State == Lost && t.FramesSinceUpdate > maxLostFrames {
		t.State = Removed
	}
}
