// Package manager implements the Pipeline Manager: the
// process-wide owner of every camera's Pipeline, the cross-camera global
// identity registry, and the configuration reconcile loop that keeps
// running pipelines in sync with the configuration store.
package manager

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/technosupport/ts-vision-core/internal/attribute"
	"github.com/technosupport/ts-vision-core/internal/behavior"
	"github.com/technosupport/ts-vision-core/internal/config"
	"github.com/technosupport/ts-vision-core/internal/detector"
	"github.com/technosupport/ts-vision-core/internal/eventsink"
	"github.com/technosupport/ts-vision-core/internal/identity"
	"github.com/technosupport/ts-vision-core/internal/pipeline"
	"github.com/technosupport/ts-vision-core/internal/source"
	"github.com/technosupport/ts-vision-core/internal/tracker"
)

// AnalyzerFactory builds (or looks up) the ROI/intrusion-rule analyzer
// for one camera. Camera-level ROI documents are loaded independently of
// the VideoSource record (internal/config's YAML rules schema), so the
// manager asks for one instead of constructing it inline.
type AnalyzerFactory func(cameraID string) (*behavior.Analyzer, error)

// Options configures a Manager at construction time.
type Options struct {
	Identity            *identity.Registry
	Sink                eventsink.Sink
	AttributeProvider   attribute.Provider
	AnalyzerFactory     AnalyzerFactory
	AppearanceModelPath string

	// StopTimeout bounds how long Stop/Reconcile wait for one pipeline
	// to drain before abandoning it.
	StopTimeout time.Duration
}

// CameraStatus is the manager's per-camera status query result, combining
// the pipeline health snapshot with the last reconcile error.
type CameraStatus struct {
	CameraID  string
	Running   bool
	Health    pipeline.Snapshot
	LastError error
}

// MarshalJSON renders LastError as its message string, since error values
// otherwise carry no exported fields for the status HTTP surface to show.
func (s CameraStatus) MarshalJSON() ([]byte, error) {
	type wire struct {
		CameraID  string            `json:"cameraId"`
		Running   bool              `json:"running"`
		Health    pipeline.Snapshot `json:"health"`
		LastError string            `json:"lastError,omitempty"`
	}
	w := wire{CameraID: s.CameraID, Running: s.Running, Health: s.Health}
	if s.LastError != nil {
		w.LastError = s.LastError.Error()
	}
	return json.Marshal(w)
}

// Manager owns cameraId -> Pipeline and the cross-camera identity
// registry. A pipeline holds a back-reference to the manager only
// for global-id lookups; the manager is the only component crossing
// camera boundaries.
type Manager struct {
	opts Options

	mu        sync.RWMutex
	pipelines map[string]*pipeline.Pipeline
	desired   map[string]config.VideoSource
	lastErr   map[string]error
}

// New constructs a Manager. Call Reconcile to bring up pipelines.
func New(opts Options) *Manager {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = 5 * time.Second
	}
	return &Manager{
		opts:      opts,
		pipelines: make(map[string]*pipeline.Pipeline),
		desired:   make(map[string]config.VideoSource),
		lastErr:   make(map[string]error),
	}
}

// Identity returns the manager's global identity registry, so callers
// assembling an HTTP status surface can expose it read-only.
func (m *Manager) Identity() *identity.Registry {
	return m.opts.Identity
}

// Status returns the current status for one camera.
func (m *Manager) Status(cameraID string) (CameraStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pipelines[cameraID]
	if !ok {
		if err, hasErr := m.lastErr[cameraID]; hasErr {
			return CameraStatus{CameraID: cameraID, Running: false, LastError: err}, true
		}
		return CameraStatus{}, false
	}
	return CameraStatus{
		CameraID: cameraID,
		Running:  true,
		Health:   p.Health(),
	}, true
}

// Statuses returns the status of every camera the manager knows about,
// whether currently running or last failed to reconcile.
func (m *Manager) Statuses() []CameraStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool, len(m.pipelines)+len(m.lastErr))
	out := make([]CameraStatus, 0, len(m.pipelines)+len(m.lastErr))
	for id, p := range m.pipelines {
		out = append(out, CameraStatus{CameraID: id, Running: true, Health: p.Health()})
		seen[id] = true
	}
	for id, err := range m.lastErr {
		if seen[id] {
			continue
		}
		out = append(out, CameraStatus{CameraID: id, Running: false, LastError: err})
	}
	return out
}

// Stop signals every pipeline and waits for each up to the configured
// per-pipeline deadline, force-dropping beyond it.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	var wg sync.WaitGroup
	for id, p := range m.pipelines {
		wg.Add(1)
		go func(id string, p *pipeline.Pipeline) {
			defer wg.Done()
			p.Stop(m.opts.StopTimeout)
		}(id, p)
	}
	wg.Wait()

	m.pipelines = make(map[string]*pipeline.Pipeline)
	m.desired = make(map[string]config.VideoSource)
}

// buildPipeline assembles a Pipeline for vs, resolving its detector
// backend, tracker, analyzer, and optional attribute gate.
func (m *Manager) buildPipeline(vs config.VideoSource) (*pipeline.Pipeline, error) {
	var cred source.Credentials
	if vs.Credentials != nil {
		cred = source.Credentials{Username: vs.Credentials.Username, Password: vs.Credentials.Password}
	}
	src, err := source.New(vs.ID, vs.URL, cred, vs.FPS, 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("manager: build source for %s: %w", vs.ID, err)
	}

	det, err := detector.SelectBackend(vs.Detection.ModelPath, string(vs.Detection.Backend))
	if err != nil {
		return nil, fmt.Errorf("manager: select detector for %s: %w", vs.ID, err)
	}
	det.SetConfidenceThreshold(vs.Detection.ConfidenceThreshold)
	det.SetNMSThreshold(vs.Detection.NMSThreshold)

	if m.opts.AnalyzerFactory == nil {
		det.Cleanup()
		return nil, fmt.Errorf("manager: no analyzer factory configured for %s", vs.ID)
	}
	analyzer, err := m.opts.AnalyzerFactory(vs.ID)
	if err != nil {
		det.Cleanup()
		return nil, fmt.Errorf("manager: build analyzer for %s: %w", vs.ID, err)
	}

	var gate *attribute.Gate
	var attrProvider attribute.Provider
	if vs.PersonStats.Enabled {
		gate = attribute.NewGate(attribute.GateConfig{})
		attrProvider = m.opts.AttributeProvider
	}

	cfg := pipeline.Config{
		CameraID:          vs.ID,
		ModelPath:         vs.Detection.ModelPath,
		Source:            src,
		Detector:          det,
		Tracker:           tracker.New(tracker.Config{}),
		Analyzer:          analyzer,
		Appearance:        pipeline.NewAppearanceExtractor(m.opts.AppearanceModelPath),
		IdentityRegistry:  m.opts.Identity,
		Sink:              m.opts.Sink,
		AttributeProvider: attrProvider,
		AttributeGate:     gate,
		Preview:           pipeline.NewPreviewHub(),
		QueueCapacity:     4,
		NominalFPS:        vs.FPS,
	}
	return pipeline.New(cfg), nil
}

// backendMix tallies the detector backend kind in use across running
// pipelines, feeding the resource sampler's GPU/NPU/CPU counters.
func (m *Manager) backendMix() (npu, gpu, cpuCount int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.pipelines {
		switch p.DetectorKind() {
		case "npu":
			npu++
		case "gpu":
			gpu++
		case "cpu":
			cpuCount++
		}
	}
	return npu, gpu, cpuCount
}

func (m *Manager) startLocked(ctx context.Context, vs config.VideoSource) error {
	p, err := m.buildPipeline(vs)
	if err != nil {
		m.lastErr[vs.ID] = err
		return err
	}
	if err := p.Start(ctx); err != nil {
		m.lastErr[vs.ID] = err
		return err
	}
	m.pipelines[vs.ID] = p
	m.desired[vs.ID] = vs
	delete(m.lastErr, vs.ID)
	log.Printf("manager: started pipeline %s", vs.ID)
	return nil
}
