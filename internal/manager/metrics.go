package manager

import (
	"context"
	"time"

	"github.com/technosupport/ts-vision-core/internal/metrics"
)

// MetricsCollector polls the manager on a ticker and pushes per-camera
// health and host resource samples into Prometheus gauges.
type MetricsCollector struct {
	manager  *Manager
	sampler  *ResourceSampler
	interval time.Duration
}

// NewMetricsCollector constructs a collector for m. sampler may be nil
// if host resource metrics aren't wanted.
func NewMetricsCollector(m *Manager, sampler *ResourceSampler, interval time.Duration) *MetricsCollector {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &MetricsCollector{manager: m, sampler: sampler, interval: interval}
}

// Start samples once immediately, then resamples on each tick until ctx
// is cancelled.
func (c *MetricsCollector) Start(ctx context.Context) {
	c.collect()
	ticker := time.NewTicker(c.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.collect()
			}
		}
	}()
}

func (c *MetricsCollector) collect() {
	statuses := c.manager.Statuses()
	running := 0
	for _, s := range statuses {
		if !s.Running {
			continue
		}
		running++
		metrics.SetPipelineSnapshot(s.CameraID, s.Health.FPS, s.Health.Processed, s.Health.PreviewClients, s.Health.Healthy)
	}
	metrics.SetCamerasRunning(running)

	if c.sampler != nil {
		snap := c.sampler.Snapshot()
		metrics.SetResourceUsage(snap.CPUPercent, snap.MemUsedBytes, snap.ActiveNPU, snap.ActiveGPU, snap.ActiveCPU)
	}
}
