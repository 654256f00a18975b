package behavior

import (
	"sort"
	"sync"
	"time"
)

// Config holds the analyzer's tunables.
type Config struct {
	MinObjectWidth  float64
	MinObjectHeight float64
}

// Analyzer runs ROI membership, conflict resolution, and dwell-time
// intrusion detection for one pipeline. All mutation happens under a
// single lock shared with the visualization read path.
type Analyzer struct {
	mu     sync.Mutex
	cfg    Config
	rois   map[string]*ROI
	rules  map[string]*IntrusionRule
	states map[int]*ObjectState
}

// New constructs an empty analyzer.
func New(cfg Config) *Analyzer {
	return &Analyzer{
		cfg:    cfg,
		rois:   make(map[string]*ROI),
		rules:  make(map[string]*IntrusionRule),
		states: make(map[int]*ObjectState),
	}
}

// AddROI registers or replaces an ROI. Rejects a polygon with fewer
// than 3 vertices.
func (a *Analyzer) AddROI(roi ROI) error {
	if len(roi.Polygon) < 3 {
		return ErrInvalidPolygon
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	r := roi
	a.rois[roi.ID] = &r
	return nil
}

// AddRule registers or replaces an intrusion rule.
func (a *Analyzer) AddRule(rule IntrusionRule) {
	a.mu.Lock()
	defer a.mu.Unlock()
	r := rule
	a.rules[rule.ID] = &r
}

// RemoveTrack drops an object's analyzer state, e.g. on track removal.
func (a *Analyzer) RemoveTrack(trackID int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.states, trackID)
}

// conflictCandidate is one ROI active and containing the object's
// representative point, carried alongside its priority for sorting.
type conflictCandidate struct {
	roi *ROI
}

// Process runs one frame's worth of ROI evaluation for a single track
// and returns zero or one BehaviorEvent. Duplicate events per object per
// frame are suppressed by selecting
// one ROI and firing at most one satisfied rule on it).
func (a *Analyzer) Process(cameraID string, trackID int, className string, box Box, feature []float32, ts time.Time) []BehaviorEvent {
	a.mu.Lock()
	defer a.mu.Unlock()

	if box.X2-box.X1 < a.cfg.MinObjectWidth || box.Y2-box.Y1 < a.cfg.MinObjectHeight {
		delete(a.states, trackID)
		return nil
	}

	state, ok := a.states[trackID]
	if !ok {
		state = &ObjectState{TrackID: trackID, EntryTimes: make(map[string]time.Time)}
		a.states[trackID] = state
	}
	state.ClassName = className
	if feature != nil {
		state.ReIDFeature = feature
	}

	point := RepresentativePoint(box)
	state.Position = point
	state.pushTrajectory(point)

	var candidates []conflictCandidate
	containing := make(map[string]bool)
	for _, roi := range a.rois {
		if !roi.Enabled || !roi.activeAt(ts) || !roi.contains(point) {
			continue
		}
		containing[roi.ID] = true
		candidates = append(candidates, conflictCandidate{roi: roi})
	}

	// Exit clears all entry timestamps for ROIs no longer containing
	// the object.
	for id := range state.EntryTimes {
		if !containing[id] {
			delete(state.EntryTimes, id)
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	selected, conflicts := resolveConflict(candidates)
	if _, has := state.EntryTimes[selected.ID]; !has {
		state.EntryTimes[selected.ID] = ts
	}
	entryTime := state.EntryTimes[selected.ID]

	var matchedRules []*IntrusionRule
	for _, rule := range a.rules {
		if rule.Enabled && rule.ROIID == selected.ID {
			matchedRules = append(matchedRules, rule)
		}
	}
	sort.Slice(matchedRules, func(i, j int) bool { return matchedRules[i].ID < matchedRules[j].ID })

	for _, rule := range matchedRules {
		if ts.Sub(entryTime) < rule.MinDuration {
			continue
		}
		event := BehaviorEvent{
			EventType:      "intrusion",
			RuleID:         rule.ID,
			LocalObjectID:  trackID,
			GlobalIdentity: state.GlobalIdentity,
			CameraID:       cameraID,
			Box:            box,
			Confidence:     rule.Confidence,
			Timestamp:      ts,
			Metadata: map[string]any{
				"selectedRoiId":   selected.ID,
				"selectedPriority": selected.Priority,
				"conflictingRois": conflictSummary(conflicts),
				"Duration":        ts.Sub(entryTime).Seconds(),
			},
		}
		delete(state.EntryTimes, selected.ID) // prevent re-firing until exit/re-entry
		return []BehaviorEvent{event}
	}
	return nil
}

// resolveConflict picks the winning ROI by (a) highest priority, (b)
// explicit time window beats none, (c) lexicographic id.
func resolveConflict(candidates []conflictCandidate) (*ROI, []conflictCandidate) {
	sort.Slice(candidates, func(i, j int) bool {
		ci, cj := candidates[i].roi, candidates[j].roi
		if ci.Priority != cj.Priority {
			return ci.Priority > cj.Priority
		}
		si, sj := ci.hasSchedule(), cj.hasSchedule()
		if si != sj {
			return si
		}
		return ci.ID < cj.ID
	})
	return candidates[0].roi, candidates
}

func conflictSummary(candidates []conflictCandidate) []map[string]any {
	out := make([]map[string]any, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, map[string]any{"roiId": c.roi.ID, "priority": c.roi.Priority})
	}
	return out
}
