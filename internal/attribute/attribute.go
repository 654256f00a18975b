// Package attribute implements the pipeline-side contract for the
// external person-attribute analyzer: on-demand crop analysis, gated
// to at most once per track per N frames and only above a minimum
// crop size.
package attribute

import (
	"context"
	"image"
	"time"
)

// Gender is the analyzer's gender classification.
type Gender string

const (
	GenderMale    Gender = "male"
	GenderFemale  Gender = "female"
	GenderUnknown Gender = "unknown"
)

// AgeGroup is the analyzer's coarse age bucket.
type AgeGroup string

const (
	AgeChild   AgeGroup = "child"
	AgeYoung   AgeGroup = "young"
	AgeMiddle  AgeGroup = "middle"
	AgeSenior  AgeGroup = "senior"
	AgeUnknown AgeGroup = "unknown"
)

// BBox is a pixel-space detection box in the source frame.
type BBox struct {
	X1, Y1, X2, Y2 float64
}

func (b BBox) Width() float64  { return b.X2 - b.X1 }
func (b BBox) Height() float64 { return b.Y2 - b.Y1 }

// PersonDetection is one analyzer request unit.
type PersonDetection struct {
	TrackID   int
	BBox      BBox
	Crop      image.Image
	Timestamp time.Time
}

// PersonAttributes is the analyzer's response for one PersonDetection.
type PersonAttributes struct {
	Gender       Gender
	AgeGroup     AgeGroup
	Confidences  map[string]float64
	QualityScore float64
	HasMask      bool
}

// Provider is the external attribute-analyzer capability. The pipeline
// never talks to the analyzer directly; it goes through this interface
// so the HTTP+JWT implementation can be swapped for a test double.
type Provider interface {
	Analyze(ctx context.Context, detections []PersonDetection) ([]PersonAttributes, error)
}

// GateConfig controls how often and for which crops the pipeline is
// allowed to call the provider.
type GateConfig struct {
	EveryNFrames int // default 30
	MinCropW     int // default 64
	MinCropH     int // default 64
}

// DefaultGateConfig returns the documented tuning defaults.
func DefaultGateConfig() GateConfig {
	return GateConfig{EveryNFrames: 30, MinCropW: 64, MinCropH: 64}
}

// Gate enforces the per-track call cadence and minimum crop size ahead
// of a Provider, so pipeline code can call Offer on every frame without
// worrying about over-calling the analyzer.
type Gate struct {
	cfg       GateConfig
	lastFrame map[int]int64
}

// NewGate builds a gate with zeroed cfg fields replaced by defaults.
func NewGate(cfg GateConfig) *Gate {
	d := DefaultGateConfig()
	if cfg.EveryNFrames <= 0 {
		cfg.EveryNFrames = d.EveryNFrames
	}
	if cfg.MinCropW <= 0 {
		cfg.MinCropW = d.MinCropW
	}
	if cfg.MinCropH <= 0 {
		cfg.MinCropH = d.MinCropH
	}
	return &Gate{cfg: cfg, lastFrame: make(map[int]int64)}
}

// Allow reports whether trackID should be analyzed on frameIndex given
// its crop dimensions, and records the call if it does.
func (g *Gate) Allow(trackID int, frameIndex int64, cropW, cropH int) bool {
	if cropW < g.cfg.MinCropW || cropH < g.cfg.MinCropH {
		return false
	}
	last, seen := g.lastFrame[trackID]
	if seen && frameIndex-last < int64(g.cfg.EveryNFrames) {
		return false
	}
	g.lastFrame[trackID] = frameIndex
	return true
}

// Forget drops a track's cadence state, called when a track is removed
// so a reused slot doesn't inherit a stale cadence clock.
func (g *Gate) Forget(trackID int) {
	delete(g.lastFrame, trackID)
}
