package manager

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// ResourceSnapshot is the manager's system-level counters (CPU/GPU/NPU
// usage).
type ResourceSnapshot struct {
	CPUPercent    float64
	MemUsedBytes  uint64
	MemTotalBytes uint64
	ActiveNPU     int
	ActiveGPU     int
	ActiveCPU     int
	SampledAt     time.Time
}

// ResourceSampler periodically samples host CPU/memory counters and the
// manager's active detector backend mix. Host CPU/memory sampling is
// grounded on the dashboard's gopsutil-based memory collector, generalized
// from memory-only to CPU since no GPU/NPU hardware counters exist in any
// reference implementation; GPU/NPU load is approximated by the count of
// pipelines currently bound to that backend kind.
type ResourceSampler struct {
	manager  *Manager
	interval time.Duration

	mu   sync.RWMutex
	last ResourceSnapshot
}

// NewResourceSampler constructs a sampler for m, polling every interval
// (default 30s, matching the status_interval system key's default).
func NewResourceSampler(m *Manager, interval time.Duration) *ResourceSampler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ResourceSampler{manager: m, interval: interval}
}

// Snapshot returns the most recently sampled counters.
func (s *ResourceSampler) Snapshot() ResourceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

// Start samples once immediately, then launches a background loop that
// resamples on each tick until ctx is cancelled.
func (s *ResourceSampler) Start(ctx context.Context) {
	s.sample()
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sample()
			}
		}
	}()
}

func (s *ResourceSampler) sample() {
	snap := ResourceSnapshot{SampledAt: time.Now()}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}
	if v, err := mem.VirtualMemory(); err == nil {
		snap.MemTotalBytes = v.Total
		snap.MemUsedBytes = v.Total - v.Available
	}

	snap.ActiveNPU, snap.ActiveGPU, snap.ActiveCPU = s.manager.backendMix()

	s.mu.Lock()
	s.last = snap
	s.mu.Unlock()
}
