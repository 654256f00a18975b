package pipeline

import (
	"fmt"
	"image"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"golang.org/x/image/draw"

	"github.com/technosupport/ts-vision-core/internal/detector"
)

// AppearanceExtractor produces the fixed-length feature vector fed to
// the tracker's appearance-fusion association and the
// cross-camera identity registry's cosine match. Grounded on
// iluha78-FD's Embedder (ArcFace ONNX session, L2-normalized output),
// generalized from a 112x112 face crop to a re-identification-sized
// person crop.
type AppearanceExtractor struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	inputW       int
	inputH       int
	embDim       int
	ready        bool
}

const (
	appearanceInputW = 128
	appearanceInputH = 256
	appearanceEmbDim = 256
)

// NewAppearanceExtractor loads a re-id embedding model. If modelPath is
// empty or the model fails to load, the extractor falls back to the
// histogram descriptor in Extract rather than erroring, since tracking
// only requires *a* feature usable for cosine similarity, not a
// specific embedding model.
func NewAppearanceExtractor(modelPath string) *AppearanceExtractor {
	e := &AppearanceExtractor{inputW: appearanceInputW, inputH: appearanceInputH, embDim: appearanceEmbDim}
	if modelPath == "" {
		return e
	}
	if err := detector.EnsureONNXEnvironment(); err != nil {
		return e
	}

	inputShape := ort.NewShape(1, 3, int64(e.inputH), int64(e.inputW))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return e
	}
	outputShape := ort.NewShape(1, int64(e.embDim))
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return e
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"input"},
		[]string{"embedding"},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return e
	}

	e.session = session
	e.inputTensor = inputTensor
	e.outputTensor = outputTensor
	e.ready = true
	return e
}

// Extract returns a unit-normalized appearance feature for crop. When
// no embedding model is loaded it falls back to a coarse RGB color
// histogram, documented rather than silently faked, following the
// project's existing honest-gap convention for backends whose vendor
// dependency isn't present in this environment.
func (e *AppearanceExtractor) Extract(crop image.Image) ([]float32, error) {
	if crop == nil {
		return nil, fmt.Errorf("appearance: nil crop")
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		return colorHistogramFeature(crop), nil
	}

	resized := image.NewRGBA(image.Rect(0, 0, e.inputW, e.inputH))
	draw.BiLinear.Scale(resized, resized.Bounds(), crop, crop.Bounds(), draw.Over, nil)

	chw := e.inputTensor.GetData()
	writeCHWInto(chw, resized, e.inputW, e.inputH)

	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("appearance: run embedding: %w", err)
	}

	out := e.outputTensor.GetData()
	feature := make([]float32, e.embDim)
	copy(feature, out)
	l2Normalize(feature)
	return feature, nil
}

// Close releases ONNX Runtime resources, if any were allocated.
func (e *AppearanceExtractor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

func writeCHWInto(dst []float32, img *image.RGBA, w, h int) {
	planeSize := w * h
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			r := float32(img.Pix[i]) / 255
			g := float32(img.Pix[i+1]) / 255
			b := float32(img.Pix[i+2]) / 255
			idx := y*w + x
			dst[idx] = r
			dst[planeSize+idx] = g
			dst[2*planeSize+idx] = b
		}
	}
}

func l2Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}

// colorHistogramFeature is the no-model fallback: a coarse 4x4x4 RGB
// histogram, L2-normalized so it behaves like any other cosine-similarity
// feature downstream.
func colorHistogramFeature(img image.Image) []float32 {
	const bins = 4
	hist := make([]float32, bins*bins*bins)
	b := img.Bounds()
	var total float32
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			ri := int((r >> 8) * bins / 256)
			gi := int((g >> 8) * bins / 256)
			bi := int((bl >> 8) * bins / 256)
			ri, gi, bi = clampBin(ri), clampBin(gi), clampBin(bi)
			hist[ri*bins*bins+gi*bins+bi]++
			total++
		}
	}
	if total > 0 {
		for i := range hist {
			hist[i] /= total
		}
	}
	l2Normalize(hist)
	return hist
}

func clampBin(v int) int {
	const bins = 4
	if v < 0 {
		return 0
	}
	if v >= bins {
		return bins - 1
	}
	return v
}
