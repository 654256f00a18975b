package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Per-camera health gauges, polled from the Pipeline Manager on a ticker
// rather than recorded inline, since a gauge (unlike the counters in
// detection_metrics.go) represents a point-in-time snapshot of
// internal/pipeline.Health rather than an event.

var (
	pipelineFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vision_pipeline_fps",
		Help: "Current per-camera frame rate",
	}, []string{"camera"})

	pipelineHealthy = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vision_pipeline_healthy",
		Help: "1 if the pipeline is within its freshness and error-free window, else 0",
	}, []string{"camera"})

	pipelineFramesProcessed = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vision_pipeline_frames_processed_total",
		Help: "Cumulative frames processed per camera",
	}, []string{"camera"})

	pipelinePreviewClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vision_pipeline_preview_clients",
		Help: "Connected preview websocket clients per camera",
	}, []string{"camera"})

	camerasRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vision_cameras_running",
		Help: "Total cameras with a running pipeline",
	})

	resourceCPUPercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vision_resource_cpu_percent",
		Help: "Host CPU utilization percent, sampled by the manager's resource sampler",
	})

	resourceMemUsedBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vision_resource_mem_used_bytes",
		Help: "Host memory in use, sampled by the manager's resource sampler",
	})

	resourceBackendActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vision_resource_backend_pipelines",
		Help: "Number of pipelines currently bound to each detector backend kind",
	}, []string{"backend"})
)

// SetPipelineSnapshot records one camera's polled health snapshot.
func SetPipelineSnapshot(camera string, fps float64, processed uint64, previewClients int, healthy bool) {
	pipelineFPS.WithLabelValues(camera).Set(fps)
	pipelineFramesProcessed.WithLabelValues(camera).Set(float64(processed))
	pipelinePreviewClients.WithLabelValues(camera).Set(float64(previewClients))
	h := 0.0
	if healthy {
		h = 1
	}
	pipelineHealthy.WithLabelValues(camera).Set(h)
}

// SetCamerasRunning records the total number of running pipelines.
func SetCamerasRunning(n int) {
	camerasRunning.Set(float64(n))
}

// SetResourceUsage records the manager's host resource sample.
func SetResourceUsage(cpuPercent float64, memUsedBytes uint64, activeNPU, activeGPU, activeCPU int) {
	resourceCPUPercent.Set(cpuPercent)
	resourceMemUsedBytes.Set(float64(memUsedBytes))
	resourceBackendActive.WithLabelValues("npu").Set(float64(activeNPU))
	resourceBackendActive.WithLabelValues("gpu").Set(float64(activeGPU))
	resourceBackendActive.WithLabelValues("cpu").Set(float64(activeCPU))
}
