package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Low-cardinality, per-camera pipeline counters. Label sets stay bounded
// by the number of configured cameras, never by track id or object id.

var (
	// DetectionInferenceTotal counts detector invocations by camera and
	// active backend kind.
	DetectionInferenceTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vision_detection_inference_total",
			Help: "Total detector inference calls by camera and backend",
		},
		[]string{"camera", "backend"},
	)

	// DetectionLatencyMs tracks detector inference latency.
	DetectionLatencyMs = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vision_detection_latency_ms",
			Help:    "Detector inference latency in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"camera"},
	)

	// FramesDroppedTotal counts frames dropped by a saturated inter-stage
	// queue.
	FramesDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vision_frames_dropped_total",
			Help: "Total frames dropped due to a saturated pipeline stage",
		},
		[]string{"camera"},
	)

	// BehaviorEventsTotal counts published behavior events by rule.
	BehaviorEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vision_behavior_events_total",
			Help: "Total behavior events published, by rule",
		},
		[]string{"camera", "rule"},
	)

	// ReconcileErrorsTotal counts per-camera reconcile rejections.
	ReconcileErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vision_reconcile_errors_total",
			Help: "Total per-camera reconcile failures",
		},
		[]string{"camera"},
	)

	// EngineUp reports overall process health.
	EngineUp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vision_engine_up",
			Help: "Vision engine process health (1=up, 0=down)",
		},
	)
)

// RecordInference records one detector invocation for camera on backend.
func RecordInference(camera, backend string) {
	DetectionInferenceTotal.WithLabelValues(camera, backend).Inc()
}

// RecordInferenceLatency records one detector call's latency in ms.
func RecordInferenceLatency(camera string, ms float64) {
	DetectionLatencyMs.WithLabelValues(camera).Observe(ms)
}

// RecordFrameDrop records count frames dropped for camera.
func RecordFrameDrop(camera string, count int) {
	FramesDroppedTotal.WithLabelValues(camera).Add(float64(count))
}

// RecordBehaviorEvent records one published event for camera/rule.
func RecordBehaviorEvent(camera, rule string) {
	BehaviorEventsTotal.WithLabelValues(camera, rule).Inc()
}

// RecordReconcileError records one rejected reconcile for camera.
func RecordReconcileError(camera string) {
	ReconcileErrorsTotal.WithLabelValues(camera).Inc()
}

// SetEngineUp sets the process-health gauge.
func SetEngineUp(up bool) {
	if up {
		EngineUp.Set(1)
	} else {
		EngineUp.Set(0)
	}
}
