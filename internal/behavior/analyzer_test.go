package behavior

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func squareROI(id string, priority int) ROI {
	return ROI{
		ID:       id,
		Name:     id,
		Polygon:  []Point{{100, 100}, {500, 100}, {500, 400}, {100, 400}},
		Enabled:  true,
		Priority: priority,
	}
}

func personBox() Box {
	// center (300, 250), representative point is bottom-center.
	return Box{X1: 280, Y1: 200, X2: 320, Y2: 250}
}

func TestAddROIRejectsShortPolygon(t *testing.T) {
	a := New(Config{})
	err := a.AddROI(ROI{ID: "bad", Polygon: []Point{{0, 0}, {1, 1}}})
	require.ErrorIs(t, err, ErrInvalidPolygon)
}

func TestIntrusionHappyPath(t *testing.T) {
	a := New(Config{})
	require.NoError(t, a.AddROI(squareROI("zone", 3)))
	a.AddRule(IntrusionRule{ID: "default_intrusion", ROIID: "zone", MinDuration: 5 * time.Second, Confidence: 0.7, Enabled: true})

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var events []BehaviorEvent
	for i := 0; i < 60; i++ { // 6s at 100ms steps
		ts := base.Add(time.Duration(i) * 100 * time.Millisecond)
		evs := a.Process("cam1", 1, "person", personBox(), nil, ts)
		events = append(events, evs...)
	}

	require.Len(t, events, 1)
	require.Equal(t, "default_intrusion", events[0].RuleID)
	require.InDelta(t, 0.7, events[0].Confidence, 1e-9)
	require.InDelta(t, 5.0, events[0].Metadata["Duration"].(float64), 0.2)
}

func TestOverlapPriority(t *testing.T) {
	a := New(Config{})
	require.NoError(t, a.AddROI(squareROI("roi_a", 2)))
	require.NoError(t, a.AddROI(squareROI("roi_b", 5)))
	a.AddRule(IntrusionRule{ID: "rule_b", ROIID: "roi_b", MinDuration: 5 * time.Second, Confidence: 0.7, Enabled: true})
	a.AddRule(IntrusionRule{ID: "rule_a", ROIID: "roi_a", MinDuration: 5 * time.Second, Confidence: 0.7, Enabled: true})

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	var events []BehaviorEvent
	for i := 0; i < 60; i++ {
		ts := base.Add(time.Duration(i) * 100 * time.Millisecond)
		events = append(events, a.Process("cam1", 1, "person", personBox(), nil, ts)...)
	}

	require.Len(t, events, 1)
	require.Equal(t, "rule_b", events[0].RuleID)
	require.Equal(t, 5, events[0].Metadata["selectedPriority"])
}

func TestTimeWindowNightSchedule(t *testing.T) {
	roi := squareROI("zone", 3)
	roi.StartTime = "22:00"
	roi.EndTime = "06:00"

	noon := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.False(t, roi.activeAt(noon))

	night := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	require.True(t, roi.activeAt(night))

	earlyMorning := time.Date(2026, 1, 1, 5, 30, 0, 0, time.UTC)
	require.True(t, roi.activeAt(earlyMorning))
}

// start == end is a zero-length interval, never active.
func TestZeroLengthWindowNeverActive(t *testing.T) {
	roi := squareROI("zone", 1)
	roi.StartTime = "09:00"
	roi.EndTime = "09:00"
	for _, hour := range []int{0, 9, 12, 23} {
		ts := time.Date(2026, 1, 1, hour, 0, 0, 0, time.UTC)
		require.False(t, roi.activeAt(ts))
	}
}

// Below minimum object size yields zero events.
func TestMinimumObjectSizeGating(t *testing.T) {
	a := New(Config{MinObjectWidth: 50, MinObjectHeight: 50})
	require.NoError(t, a.AddROI(squareROI("zone", 1)))
	a.AddRule(IntrusionRule{ID: "r", ROIID: "zone", MinDuration: 0, Confidence: 0.9, Enabled: true})

	tiny := Box{X1: 290, Y1: 240, X2: 300, Y2: 250} // 10x10, below threshold
	events := a.Process("cam1", 1, "person", tiny, nil, time.Now().UTC())
	require.Empty(t, events)
}

func TestExitClearsEntryTimestamp(t *testing.T) {
	a := New(Config{})
	require.NoError(t, a.AddROI(squareROI("zone", 1)))
	a.AddRule(IntrusionRule{ID: "r", ROIID: "zone", MinDuration: 5 * time.Second, Confidence: 0.9, Enabled: true})

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a.Process("cam1", 1, "person", personBox(), nil, base)
	a.Process("cam1", 1, "person", personBox(), nil, base.Add(2*time.Second))

	outside := Box{X1: 10, Y1: 10, X2: 50, Y2: 60}
	a.Process("cam1", 1, "person", outside, nil, base.Add(3*time.Second))

	state := a.states[1]
	require.Empty(t, state.EntryTimes)
}
