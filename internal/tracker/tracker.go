package tracker

// Detection is one per-frame input to the tracker: a classified box,
// confidence, and an optional appearance feature.
type Detection struct {
	Box        Box
	Confidence float32
	ClassID    int
	Feature    []float32
}

// Config holds the tracker's explicitly named tunables.
type Config struct {
	HighConfidence float64 // tau_high, default 0.6
	TrackConfidence float64 // tau_track, default 0.5
	MatchThresholdIoU      float64 // tau_match IoU-only, default 0.8
	MatchThresholdCombined float64 // tau_match combined, default 0.5
	MaxLostFrames   int     // default 30
	MinTrackLength  int     // default 3
	MaxActiveTracks int     // 0 means unbounded
}

// DefaultConfig returns the documented tuning defaults.
func DefaultConfig() Config {
	return Config{
		HighConfidence:         0.6,
		TrackConfidence:        0.5,
		MatchThresholdIoU:      0.8,
		MatchThresholdCombined: 0.5,
		MaxLostFrames:          30,
		MinTrackLength:         3,
	}
}

// RetiredTrack records a Removed track's final stats for the pipeline's
// age-at-removal invariant checks.
type RetiredTrack struct {
	TrackID int
	Age     int
	Counted bool // true iff Age >= MinTrackLength, i.e. worth recording in stats
}

// Tracker runs one camera's worth of per-frame Kalman tracking and
// cascade association. Not safe for concurrent use — one instance per
// pipeline goroutine, matching the rest of this module's per-pipeline
// ownership model.
type Tracker struct {
	cfg     Config
	tracks  map[int]*Track
	nextID  int
	retired []RetiredTrack
}

// New constructs a tracker with the given config. A zero-value Config
// is replaced with DefaultConfig.
func New(cfg Config) *Tracker {
	if cfg.MaxLostFrames == 0 {
		cfg = DefaultConfig()
	}
	return &Tracker{cfg: cfg, tracks: make(map[int]*Track), nextID: 1}
}

// Update runs one frame of prediction, cascade association, and FSM
// transitions, returning the current set of non-Removed tracks.
func (tr *Tracker) Update(detections []Detection) []*Track {
	live := tr.liveTracks()
	for _, t := range live {
		t.predict()
	}

	var high, low []Detection
	for _, d := range detections {
		switch {
		case float64(d.Confidence) >= tr.cfg.HighConfidence:
			high = append(high, d)
		case float64(d.Confidence) >= tr.cfg.TrackConfidence:
			low = append(low, d)
		}
	}

	active := tr.tracksInState(StateNew, Tracked)
	matchedDets := make(map[int]bool)

	minScore := tr.cfg.MatchThresholdIoU
	hasAnyAppearance := false
	for _, t := range active {
		if t.Appearance != nil {
			hasAnyAppearance = true
		}
	}
	for _, d := range high {
		if d.Feature != nil {
			hasAnyAppearance = true
		}
	}
	if hasAnyAppearance {
		minScore = tr.cfg.MatchThresholdCombined
	}

	assignments := greedyAssign(len(active), len(high), func(ti, di int) float64 {
		return pairScore(active[ti].Box, active[ti].Appearance, high[di].Box, high[di].Feature)
	}, minScore)

	matchedTracks := make(map[int]bool)
	for _, a := range assignments {
		t := active[a.trackIdx]
		d := high[a.detIdx]
		t.ClassID = d.ClassID
		t.applyMatch(d.Box, d.Feature)
		matchedTracks[a.trackIdx] = true
		matchedDets[a.detIdx] = true
	}

	// Second pass: relaxed match of low-confidence detections against
	// Lost tracks, to recover short occlusions.
	lost := tr.tracksInState(Lost)
	var unmatchedLow []Detection
	lowIdx := make([]int, 0, len(low))
	for i, d := range low {
		unmatchedLow = append(unmatchedLow, d)
		lowIdx = append(lowIdx, i)
	}
	relaxed := greedyAssign(len(lost), len(unmatchedLow), func(ti, di int) float64 {
		return pairScore(lost[ti].Box, lost[ti].Appearance, unmatchedLow[di].Box, unmatchedLow[di].Feature)
	}, tr.cfg.MatchThresholdCombined*0.5)
	relaxedMatched := make(map[int]bool)
	for _, a := range relaxed {
		t := lost[a.trackIdx]
		d := unmatchedLow[a.detIdx]
		t.applyMatch(d.Box, d.Feature)
		relaxedMatched[a.trackIdx] = true
	}

	// Unmatched active tracks miss this frame; New tracks that never
	// matched are discarded rather than limping along unconfirmed.
	for i, t := range active {
		if matchedTracks[i] {
			continue
		}
		if t.State == StateNew {
			t.State = Removed
			continue
		}
		t.markMissed(tr.cfg.MaxLostFrames)
	}

	// Lost tracks not touched by the relaxed pass still age toward removal.
	for i, t := range lost {
		if relaxedMatched[i] {
			continue
		}
		t.markMissed(tr.cfg.MaxLostFrames)
	}

	// Seed new tracks from unmatched high detections.
	for i, d := range high {
		if matchedDets[i] {
			continue
		}
		t := newTrack(tr.nextID, d.ClassID, d.Box)
		tr.nextID++
		if d.Feature != nil {
			t.Appearance = append([]float32(nil), d.Feature...)
		}
		tr.tracks[t.TrackID] = t
	}

	tr.reapRemoved()
	tr.enforceCap()

	return tr.liveTracks()
}

// liveTracks returns every track not in the Removed state.
func (tr *Tracker) liveTracks() []*Track {
	var out []*Track
	for _, t := range tr.tracks {
		if t.State != Removed {
			out = append(out, t)
		}
	}
	return out
}

func (tr *Tracker) tracksInState(states ...State) []*Track {
	want := make(map[State]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	var out []*Track
	for _, t := range tr.tracks {
		if want[t.State] {
			out = append(out, t)
		}
	}
	return out
}

// reapRemoved moves every Removed track into the retired ledger and
// drops it from the live map so track ids are never revisited.
func (tr *Tracker) reapRemoved() {
	for id, t := range tr.tracks {
		if t.State == Removed {
			tr.retired = append(tr.retired, RetiredTrack{
				TrackID: t.TrackID,
				Age:     t.Age,
				Counted: t.Age >= tr.cfg.MinTrackLength,
			})
			delete(tr.tracks, id)
		}
	}
}

// enforceCap removes the oldest-lost tracks first when the active set
// exceeds MaxActiveTracks.
func (tr *Tracker) enforceCap() {
	if tr.cfg.MaxActiveTracks <= 0 || len(tr.tracks) <= tr.cfg.MaxActiveTracks {
		return
	}
	lost := tr.tracksInState(Lost)
	for len(tr.tracks) > tr.cfg.MaxActiveTracks && len(lost) > 0 {
		oldest := 0
		for i, t := range lost {
			if t.FramesSinceUpdate > lost[oldest].FramesSinceUpdate {
				oldest = i
			}
		}
		t := lost[oldest]
		t.State = Removed
		tr.retired = append(tr.retired, RetiredTrack{TrackID: t.TrackID, Age: t.Age, Counted: t.Age >= tr.cfg.MinTrackLength})
		delete(tr.tracks, t.TrackID)
		lost = append(lost[:oldest], lost[oldest+1:]...)
	}
}

// Retired returns every track removed so far, oldest first.
func (tr *Tracker) Retired() []RetiredTrack {
	return tr.retired
}
