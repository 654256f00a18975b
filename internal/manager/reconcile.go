package manager

import (
	"context"
	"fmt"
	"log"

	"github.com/technosupport/ts-vision-core/internal/config"
	"github.com/technosupport/ts-vision-core/internal/metrics"
)

// ReconcileError reports one camera's failure to reconcile to its desired
// state: rejected on reconcile with a per-camera error string, while
// other cameras keep running.
type ReconcileError struct {
	CameraID string
	Err      error
}

func (e ReconcileError) Error() string {
	return fmt.Sprintf("manager: camera %s: %v", e.CameraID, e.Err)
}

func (e ReconcileError) Unwrap() error { return e.Err }

// Reconcile computes the three-way diff between the running pipeline set
// and desired, starting added cameras, stopping removed ones, and
// applying in-place updates where possible. A camera rejected by
// this call does not affect any other camera. Calling Reconcile twice
// with an unchanged desired state is a no-op on pipelines.
func (m *Manager) Reconcile(ctx context.Context, desired []config.VideoSource) []ReconcileError {
	m.mu.Lock()
	defer m.mu.Unlock()

	desiredByID := make(map[string]config.VideoSource, len(desired))
	for _, vs := range desired {
		desiredByID[vs.ID] = vs
	}

	var errs []ReconcileError

	for id, p := range m.pipelines {
		if _, ok := desiredByID[id]; ok {
			continue
		}
		p.Stop(m.opts.StopTimeout)
		delete(m.pipelines, id)
		delete(m.desired, id)
		delete(m.lastErr, id)
		log.Printf("manager: stopped pipeline %s (removed from desired state)", id)
	}

	fail := func(id string, err error) {
		errs = append(errs, ReconcileError{CameraID: id, Err: err})
		metrics.RecordReconcileError(id)
	}

	for id, vs := range desiredByID {
		if err := vs.Validate(); err != nil {
			fail(id, err)
			m.lastErr[id] = err
			continue
		}
		if !vs.Enabled {
			if p, running := m.pipelines[id]; running {
				p.Stop(m.opts.StopTimeout)
				delete(m.pipelines, id)
			}
			m.desired[id] = vs
			delete(m.lastErr, id)
			continue
		}

		existing, running := m.pipelines[id]
		if !running {
			if err := m.startLocked(ctx, vs); err != nil {
				fail(id, err)
			}
			continue
		}

		prev := m.desired[id]
		switch {
		case needsFullRestart(prev, vs):
			existing.Stop(m.opts.StopTimeout)
			delete(m.pipelines, id)
			if err := m.startLocked(ctx, vs); err != nil {
				fail(id, err)
			}
		case detectionOptionsChanged(prev, vs):
			existing.ApplyDetectionOptions(vs.Detection.ConfidenceThreshold, vs.Detection.NMSThreshold)
			m.desired[id] = vs
		default:
			m.desired[id] = vs
		}
	}

	return errs
}

// needsFullRestart reports whether changes between prev and next require
// tearing down and rebuilding the pipeline, e.g. a URL change requires a
// Frame Source restart.
func needsFullRestart(prev, next config.VideoSource) bool {
	if prev.URL != next.URL {
		return true
	}
	if !credentialsEqual(prev.Credentials, next.Credentials) {
		return true
	}
	if prev.Detection.ModelPath != next.Detection.ModelPath {
		return true
	}
	if prev.Detection.Backend != next.Detection.Backend {
		return true
	}
	if prev.FPS != next.FPS {
		return true
	}
	return false
}

// detectionOptionsChanged reports whether only the detector's in-place
// tunables changed, letting the pipeline keep its Frame Source and
// Tracker running.
func detectionOptionsChanged(prev, next config.VideoSource) bool {
	return prev.Detection.ConfidenceThreshold != next.Detection.ConfidenceThreshold ||
		prev.Detection.NMSThreshold != next.Detection.NMSThreshold
}

func credentialsEqual(a, b *config.Credentials) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
