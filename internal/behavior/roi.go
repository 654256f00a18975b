// Package behavior implements ROI-based intrusion detection: polygon
// membership, time-of-day gating, overlap conflict resolution, and
// dwell-time event emission.
package behavior

import (
	"errors"
	"time"
)

// ErrInvalidPolygon is returned by AddROI when a polygon has fewer than
// three vertices.
var ErrInvalidPolygon = errors.New("behavior: roi polygon needs at least 3 vertices")

// Point is an image-space coordinate.
type Point struct {
	X, Y float64
}

// ROI is a region of interest polygon with an optional priority and
// active-time schedule.
type ROI struct {
	ID        string
	Name      string
	Polygon   []Point
	Enabled   bool
	Priority  int // 1..5, higher wins conflicts
	StartTime string // "HH:MM[:SS]", empty means always active
	EndTime   string
}

// hasSchedule reports whether the ROI has a parseable time window —
// used as the conflict-resolution tiebreaker "explicit time window
// beats none".
func (r ROI) hasSchedule() bool {
	if r.StartTime == "" || r.EndTime == "" {
		return false
	}
	_, err1 := parseClock(r.StartTime)
	_, err2 := parseClock(r.EndTime)
	return err1 == nil && err2 == nil
}

// activeAt reports whether the ROI's schedule covers wallClock. An
// invalid or missing time string is treated as "always active".
// start == end is a zero-length interval and is never active, rather than the common "full day" interpretation of
// an empty range.
func (r ROI) activeAt(wallClock time.Time) bool {
	if r.StartTime == "" || r.EndTime == "" {
		return true
	}
	start, errS := parseClock(r.StartTime)
	end, errE := parseClock(r.EndTime)
	if errS != nil || errE != nil {
		return true
	}
	if start == end {
		return false
	}

	now := clockSeconds(wallClock)
	if start < end {
		return now >= start && now < end
	}
	// Wraps past midnight: active from start..24:00 and 00:00..end.
	return now >= start || now < end
}

// contains runs a ray-cast point-in-polygon test against p.
func (r ROI) contains(p Point) bool {
	inside := false
	n := len(r.Polygon)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		vi, vj := r.Polygon[i], r.Polygon[j]
		if (vi.Y > p.Y) != (vj.Y > p.Y) {
			xCross := (vj.X-vi.X)*(p.Y-vi.Y)/(vj.Y-vi.Y) + vi.X
			if p.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

func clockSeconds(t time.Time) int {
	h, m, s := t.Clock()
	return h*3600 + m*60 + s
}

// parseClock accepts "HH:MM" or "HH:MM:SS" and returns seconds since
// midnight.
func parseClock(s string) (int, error) {
	layouts := []string{"15:04:05", "15:04"}
	var lastErr error
	for _, layout := range layouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.Hour()*3600 + t.Minute()*60 + t.Second(), nil
		}
		lastErr = err
	}
	return 0, lastErr
}
