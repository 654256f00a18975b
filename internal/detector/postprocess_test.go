package detector

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDFLExpectationOneHotBin(t *testing.T) {
	for k := 0; k < dflBins; k++ {
		bins := make([]float32, dflBins)
		for i := range bins {
			if i == k {
				bins[i] = 20 // dominant logit drives softmax to ~1 at k
			} else {
				bins[i] = 0
			}
		}
		got := DFLExpectation(bins)
		require.InDelta(t, float64(k), float64(got), 0.01)
	}
}

func TestDequantizeAffine(t *testing.T) {
	// f = (q - zp) * scale
	require.InDelta(t, 0.0, Dequantize(10, 0.5, 10), 1e-6)
	require.InDelta(t, 5.0, Dequantize(20, 0.5, 10), 1e-6)
	require.InDelta(t, -5.0, Dequantize(0, 0.5, 10), 1e-6)
}

func TestQuantizeThresholdRoundTrips(t *testing.T) {
	scale, zp := float32(0.25), int32(-5)
	q := QuantizeThreshold(0.5, scale, zp)
	back := Dequantize(q, scale, zp)
	require.InDelta(t, 0.5, back, 0.26)
}

func TestNMSKeepsExactlyOneOfOverlappingPair(t *testing.T) {
	dets := []Detection{
		{Box: Box{0, 0, 10, 10}, Confidence: 0.9, ClassID: 0},
		{Box: Box{1, 1, 11, 11}, Confidence: 0.8, ClassID: 0}, // heavy overlap, same class
		{Box: Box{50, 50, 60, 60}, Confidence: 0.7, ClassID: 0},
	}
	kept := NMS(dets, 0.45)
	require.Len(t, kept, 2)
	require.Equal(t, float32(0.9), kept[0].Confidence)
}

func TestNMSKeepsSeparateClassesIndependently(t *testing.T) {
	dets := []Detection{
		{Box: Box{0, 0, 10, 10}, Confidence: 0.9, ClassID: 0},
		{Box: Box{0, 0, 10, 10}, Confidence: 0.85, ClassID: 1}, // same box, different class
	}
	kept := NMS(dets, 0.45)
	require.Len(t, kept, 2)
}

func TestIoUIdenticalBoxesIsOne(t *testing.T) {
	b := Box{0, 0, 9, 9}
	require.InDelta(t, 1.0, IoU(b, b), 1e-6)
}

func TestIoUDisjointBoxesIsZero(t *testing.T) {
	a := Box{0, 0, 9, 9}
	b := Box{100, 100, 109, 109}
	require.Equal(t, float32(0), IoU(a, b))
}

func TestLetterboxRoundTripWithinOnePixel(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1920, 1080))
	for y := 0; y < 1080; y += 50 {
		for x := 0; x < 1920; x += 50 {
			img.Set(x, y, color.RGBA{255, 0, 0, 255})
		}
	}

	_, params := Letterbox(img, 640)

	cases := []struct{ x, y float32 }{
		{0, 0}, {1919, 1079}, {960, 540}, {100, 900},
	}
	for _, c := range cases {
		mx, my := params.Forward(c.x, c.y)
		bx, by := params.Inverse(mx, my)
		require.InDelta(t, float64(c.x), float64(bx), 1.0)
		require.InDelta(t, float64(c.y), float64(by), 1.0)
	}
}

func TestStrideOutputDecodeRespectsConfidenceThreshold(t *testing.T) {
	grid := 2
	numClasses := 3
	so := StrideOutput{
		Stride:     8,
		GridW:      grid,
		GridH:      grid,
		NumClasses: numClasses,
		BoxDFL:     make([]float32, grid*grid*4*dflBins),
		ClassScore: make([]float32, grid*grid*numClasses),
	}
	// Cell (0,0): low score everywhere -> rejected.
	// Cell (1,1): class 1 above threshold -> kept.
	cell := 1*grid + 1
	so.ClassScore[cell*numClasses+1] = 0.9

	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.5
	dets := so.Decode(cfg)
	require.Len(t, dets, 1)
	require.Equal(t, 1, dets[0].ClassID)
	require.InDelta(t, 0.9, dets[0].Confidence, 1e-6)
}

func TestStrideOutputDecodeScoreSumPrefilterSkipsCell(t *testing.T) {
	so := StrideOutput{
		Stride:     16,
		GridW:      1,
		GridH:      1,
		NumClasses: 2,
		BoxDFL:     make([]float32, 4*dflBins),
		ClassScore: []float32{0.9, 0.1},
		ScoreSum:   []float32{0.1}, // below threshold despite a high class score
	}
	cfg := DefaultConfig()
	cfg.ConfidenceThreshold = 0.5
	require.Empty(t, so.Decode(cfg))
}

func TestClassNameUnknownOutOfRange(t *testing.T) {
	require.Equal(t, "unknown", ClassName(-1))
	require.Equal(t, "unknown", ClassName(999))
	require.Equal(t, "person", ClassName(0))
}

func TestSelectFallsBackWhenHigherPriorityNotReady(t *testing.T) {
	resetRegistryForTest(t)
	Register("fake-npu", 0, func() Detector { return &stubDetector{kind: "fake-npu", ready: false} })
	Register("fake-cpu", 2, func() Detector { return &stubDetector{kind: "fake-cpu", ready: true} })

	d, err := Select("model.onnx")
	require.NoError(t, err)
	require.Equal(t, "fake-cpu", d.Describe().Kind)
}

func resetRegistryForTest(t *testing.T) {
	t.Helper()
	mu.Lock()
	saved := registry
	registry = nil
	mu.Unlock()
	t.Cleanup(func() {
		mu.Lock()
		registry = saved
		mu.Unlock()
	})
}

type stubDetector struct {
	kind  string
	ready bool
}

func (s *stubDetector) Initialize(modelPath string) error      { return nil }
func (s *stubDetector) DetectObjects(f Frame) ([]Detection, error) { return nil, nil }
func (s *stubDetector) SetConfidenceThreshold(t float32)        {}
func (s *stubDetector) SetNMSThreshold(t float32)               {}
func (s *stubDetector) SetAllowedClasses(classes []string)      {}
func (s *stubDetector) Describe() Description {
	return Description{Kind: s.kind, Ready: s.ready}
}
func (s *stubDetector) Cleanup() {}
