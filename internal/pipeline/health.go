package pipeline

import (
	"sync"
	"time"
)

const fpsWindow = 64

// Health tracks the rolling health signals a pipeline exposes: an FPS
// EMA over the last 64 frames, processed/dropped counters, the last
// error, connected preview client count, and a derived healthy flag.
type Health struct {
	mu sync.Mutex

	fps            float64
	fpsSeeded      bool
	lastFrameAt    time.Time
	nominalFPS     float64
	processed      uint64
	dropped        uint64
	lastErr        error
	lastFatalAt    time.Time
	previewClients int
}

// NewHealth builds a tracker for a pipeline running at nominalFPS.
func NewHealth(nominalFPS float64) *Health {
	if nominalFPS <= 0 {
		nominalFPS = 10
	}
	return &Health{nominalFPS: nominalFPS}
}

// RecordFrame updates the FPS EMA from the interval since the previous
// frame and bumps the processed counter. The EMA's smoothing factor
// (2/(N+1), N=64) is the standard exponential moving average window
// size conversion, applied per inter-frame interval rather than per
// wall-clock tick since pipelines aren't sampled on a fixed timer.
func (h *Health) RecordFrame(at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.processed++
	if !h.fpsSeeded {
		h.fpsSeeded = true
		h.lastFrameAt = at
		return
	}

	interval := at.Sub(h.lastFrameAt).Seconds()
	h.lastFrameAt = at
	if interval <= 0 {
		return
	}
	instantaneous := 1.0 / interval
	alpha := 2.0 / float64(fpsWindow+1)
	h.fps = alpha*instantaneous + (1-alpha)*h.fps
}

// RecordDrop bumps the dropped-frame counter.
func (h *Health) RecordDrop() {
	h.mu.Lock()
	h.dropped++
	h.mu.Unlock()
}

// RecordError records the most recent error; fatal errors additionally
// stamp lastFatalAt, which feeds the healthy-boolean's 30s window.
func (h *Health) RecordError(err error, fatal bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastErr = err
	if fatal {
		h.lastFatalAt = time.Now()
	}
}

// SetPreviewClients records the current connected preview client count.
func (h *Health) SetPreviewClients(n int) {
	h.mu.Lock()
	h.previewClients = n
	h.mu.Unlock()
}

// Snapshot is the read-only view of a pipeline's health at one instant.
type Snapshot struct {
	FPS            float64
	Processed      uint64
	Dropped        uint64
	LastError      error
	PreviewClients int
	Healthy        bool
}

// Snapshot computes the current health view, including the healthy
// boolean: true iff the last frame arrived within 2*(1/nominalFPS) and
// no fatal detector error occurred in the last 30s.
func (h *Health) Snapshot(now time.Time) Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	maxGap := 2 * (1.0 / h.nominalFPS)
	freshEnough := h.fpsSeeded && now.Sub(h.lastFrameAt).Seconds() <= maxGap
	noRecentFatal := h.lastFatalAt.IsZero() || now.Sub(h.lastFatalAt) > 30*time.Second

	return Snapshot{
		FPS:            h.fps,
		Processed:      h.processed,
		Dropped:        h.dropped,
		LastError:      h.lastErr,
		PreviewClients: h.previewClients,
		Healthy:        freshEnough && noRecentFatal,
	}
}
