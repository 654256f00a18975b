// Package pipeline wires one camera's Frame Source, Detector, Tracker,
// Behavior Analyzer, and optional Attribute Provider / preview stages
// into the one-way decode -> detect -> track -> analyze -> publish flow.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/technosupport/ts-vision-core/internal/attribute"
	"github.com/technosupport/ts-vision-core/internal/behavior"
	"github.com/technosupport/ts-vision-core/internal/detector"
	"github.com/technosupport/ts-vision-core/internal/eventsink"
	"github.com/technosupport/ts-vision-core/internal/frame"
	"github.com/technosupport/ts-vision-core/internal/identity"
	"github.com/technosupport/ts-vision-core/internal/metrics"
	"github.com/technosupport/ts-vision-core/internal/source"
	"github.com/technosupport/ts-vision-core/internal/tracker"
)

// Config assembles one pipeline instance's stages and tunables.
type Config struct {
	CameraID  string
	ModelPath string

	Source   *source.FrameSource
	Detector detector.Detector
	Tracker  *tracker.Tracker
	Analyzer *behavior.Analyzer

	Appearance       *AppearanceExtractor
	IdentityRegistry *identity.Registry
	Sink             eventsink.Sink
	AttributeProvider attribute.Provider
	AttributeGate     *attribute.Gate
	Preview           *PreviewHub

	QueueCapacity int
	NominalFPS    float64
}

type detectionMsg struct {
	f   *frame.Frame
	dets []detector.Detection
}

type trackMsg struct {
	f      *frame.Frame
	tracks []*tracker.Track
}

// Pipeline runs one camera end to end. Stages run on their own
// goroutine, connected by bounded drop-newest queues; Stop() observes
// a cancelled context at every stage boundary.
type Pipeline struct {
	cfg Config

	ingestQueue *StageQueue[*frame.Frame]
	detectQueue *StageQueue[detectionMsg]
	trackQueue  *StageQueue[trackMsg]

	health *Health

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a pipeline for cfg. Call Start to begin processing.
func New(cfg Config) *Pipeline {
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 4
	}
	return &Pipeline{
		cfg:         cfg,
		ingestQueue: NewStageQueue[*frame.Frame](cfg.QueueCapacity),
		detectQueue: NewStageQueue[detectionMsg](cfg.QueueCapacity),
		trackQueue:  NewStageQueue[trackMsg](cfg.QueueCapacity),
		health:      NewHealth(cfg.NominalFPS),
	}
}

// Start opens the frame source and launches the stage goroutines.
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.cfg.Source.Open(ctx); err != nil {
		return fmt.Errorf("pipeline[%s]: open source: %w", p.cfg.CameraID, err)
	}
	if err := p.cfg.Detector.Initialize(p.cfg.ModelPath); err != nil {
		return fmt.Errorf("pipeline[%s]: init detector: %w", p.cfg.CameraID, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(4)
	go p.ingestLoop(runCtx)
	go p.detectLoop(runCtx)
	go p.trackLoop(runCtx)
	go p.analyzeLoop(runCtx)
	return nil
}

// Stop cancels the pipeline's context, observed at each stage boundary,
// and waits up to timeout for in-flight work to drain before returning.
func (p *Pipeline) Stop(timeout time.Duration) {
	if p.cancel == nil {
		return
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("pipeline[%s]: stop timed out after %s, abandoning in-flight work", p.cfg.CameraID, timeout)
	}

	p.cfg.Source.Close()
	p.cfg.Detector.Cleanup()
	if p.cfg.Preview != nil {
		p.cfg.Preview.Close()
	}
}

// ApplyDetectionOptions updates the detector's confidence/NMS thresholds
// in place, the "update in place" half of the reconcile contract for
// changes that don't require a Frame Source restart.
func (p *Pipeline) ApplyDetectionOptions(confidenceThreshold, nmsThreshold float32) {
	p.cfg.Detector.SetConfidenceThreshold(confidenceThreshold)
	p.cfg.Detector.SetNMSThreshold(nmsThreshold)
}

// DetectorKind reports the active detector backend's kind ("npu", "gpu",
// "cpu"), used by the manager's resource accounting to tally backend mix.
func (p *Pipeline) DetectorKind() string {
	return p.cfg.Detector.Describe().Kind
}

// Health returns the pipeline's current health snapshot.
func (p *Pipeline) Health() Snapshot {
	if p.cfg.Preview != nil {
		p.health.SetPreviewClients(p.cfg.Preview.ClientCount())
	}
	return p.health.Snapshot(time.Now())
}

func (p *Pipeline) ingestLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f, err := p.cfg.Source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.health.RecordError(err, true)
			continue
		}

		if !p.ingestQueue.TryPush(f) {
			f.Release()
			p.health.RecordDrop()
			metrics.RecordFrameDrop(p.cfg.CameraID, 1)
		}
	}
}

func (p *Pipeline) detectLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-p.ingestQueue.Recv():
			if !ok {
				return
			}
			p.health.RecordFrame(time.Now())

			_, span := startStageSpan(ctx, p.cfg.CameraID, "detect")
			inferStart := time.Now()
			dets, err := p.cfg.Detector.DetectObjects(detector.Frame{Img: f.Img, CameraID: f.CameraID})
			span.End()
			metrics.RecordInference(p.cfg.CameraID, p.cfg.Detector.Describe().Kind)
			metrics.RecordInferenceLatency(p.cfg.CameraID, float64(time.Since(inferStart).Milliseconds()))
			if err != nil {
				p.health.RecordError(err, false)
				f.Release()
				continue
			}

			if !p.detectQueue.TryPush(detectionMsg{f: f, dets: dets}) {
				f.Release()
				p.health.RecordDrop()
				metrics.RecordFrameDrop(p.cfg.CameraID, 1)
			}
		}
	}
}

func (p *Pipeline) trackLoop(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.detectQueue.Recv():
			if !ok {
				return
			}

			trackerDets := make([]tracker.Detection, 0, len(msg.dets))
			for _, d := range msg.dets {
				var feature []float32
				if p.cfg.Appearance != nil {
					crop := cropImage(msg.f.Img, d.Box)
					if f, err := p.cfg.Appearance.Extract(crop); err == nil {
						feature = f
					}
				}
				trackerDets = append(trackerDets, tracker.Detection{
					Box:        tracker.Box{X1: float64(d.Box.X1), Y1: float64(d.Box.Y1), X2: float64(d.Box.X2), Y2: float64(d.Box.Y2)},
					Confidence: d.Confidence,
					ClassID:    d.ClassID,
					Feature:    feature,
				})
			}

			_, span := startStageSpan(ctx, p.cfg.CameraID, "track")
			tracks := p.cfg.Tracker.Update(trackerDets)
			span.End()

			if !p.trackQueue.TryPush(trackMsg{f: msg.f, tracks: tracks}) {
				msg.f.Release()
				p.health.RecordDrop()
				metrics.RecordFrameDrop(p.cfg.CameraID, 1)
			}
		}
	}
}

func (p *Pipeline) analyzeLoop(ctx context.Context) {
	defer p.wg.Done()
	frameIdx := int64(0)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.trackQueue.Recv():
			if !ok {
				return
			}
			frameIdx++
			ts := time.Unix(0, msg.f.TimestampNs).UTC()

			_, analyzeSpan := startStageSpan(ctx, p.cfg.CameraID, "analyze")
			for _, t := range msg.tracks {
				if t.State != tracker.Tracked {
					continue
				}
				box := behavior.Box{X1: t.Box.X1, Y1: t.Box.Y1, X2: t.Box.X2, Y2: t.Box.Y2}
				className := detector.ClassName(t.ClassID)

				globalID := ""
				if p.cfg.IdentityRegistry != nil {
					globalID = p.cfg.IdentityRegistry.GetGlobalTrackID(p.cfg.CameraID, fmt.Sprintf("%d", t.TrackID))
				}

				events := p.cfg.Analyzer.Process(p.cfg.CameraID, t.TrackID, className, box, t.Appearance, ts)
				for i := range events {
					events[i].GlobalIdentity = globalID
					metrics.RecordBehaviorEvent(p.cfg.CameraID, events[i].RuleID)
					if p.cfg.Sink != nil {
						if err := p.cfg.Sink.Publish(ctx, events[i]); err != nil {
							log.Printf("pipeline[%s]: sink publish failed: %v", p.cfg.CameraID, err)
						}
					}
				}

				p.maybeAnalyzeAttributes(ctx, msg.f, t, frameIdx, ts)
			}

			analyzeSpan.End()

			if p.cfg.Preview != nil {
				p.cfg.Preview.Publish(msg.f.Img, 70)
			}
			msg.f.Release()
		}
	}
}

// maybeAnalyzeAttributes is the side channel from Tracker to the
// Attribute Provider.
func (p *Pipeline) maybeAnalyzeAttributes(ctx context.Context, f *frame.Frame, t *tracker.Track, frameIdx int64, ts time.Time) {
	if p.cfg.AttributeProvider == nil || p.cfg.AttributeGate == nil {
		return
	}
	if detector.ClassName(t.ClassID) != "person" {
		return
	}
	w := int(t.Box.X2 - t.Box.X1)
	h := int(t.Box.Y2 - t.Box.Y1)
	if !p.cfg.AttributeGate.Allow(t.TrackID, frameIdx, w, h) {
		return
	}

	crop := cropImage(f.Img, detector.Box{X1: float32(t.Box.X1), Y1: float32(t.Box.Y1), X2: float32(t.Box.X2), Y2: float32(t.Box.Y2)})
	_, err := p.cfg.AttributeProvider.Analyze(ctx, []attribute.PersonDetection{{
		TrackID:   t.TrackID,
		BBox:      attribute.BBox{X1: t.Box.X1, Y1: t.Box.Y1, X2: t.Box.X2, Y2: t.Box.Y2},
		Crop:      crop,
		Timestamp: ts,
	}})
	if err != nil {
		log.Printf("pipeline[%s]: attribute analyze failed for track %d: %v", p.cfg.CameraID, t.TrackID, err)
	}
}

func cropImage(img image.Image, box detector.Box) image.Image {
	b := img.Bounds()
	rect := image.Rect(int(box.X1), int(box.Y1), int(box.X2), int(box.Y2)).Intersect(b)
	if rect.Empty() {
		return image.NewRGBA(image.Rect(0, 0, 1, 1))
	}
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(out, out.Bounds(), img, rect.Min, draw.Src)
	return out
}
