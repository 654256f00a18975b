package detector

import (
	"fmt"
	"image"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	onnxEnvOnce sync.Once
	onnxEnvErr  error
)

// sharedLibraryPath resolves the platform-specific onnxruntime shared
// library name the way cmd/worker does for the face-recognition service.
func sharedLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

func ensureOnnxEnvironment() error {
	onnxEnvOnce.Do(func() {
		ort.SetSharedLibraryPath(sharedLibraryPath())
		onnxEnvErr = ort.InitializeEnvironment()
	})
	return onnxEnvErr
}

// EnsureONNXEnvironment initializes the process-wide ONNX Runtime
// environment exactly once. Any package that builds its own
// ort.AdvancedSession (the detector backends here, and the pipeline's
// appearance embedder) must route through this instead of calling
// ort.InitializeEnvironment directly, since the runtime errors on a
// second initialization attempt.
func EnsureONNXEnvironment() error {
	return ensureOnnxEnvironment()
}

// modelStrides describes the three detection heads an anchor-free YOLO-style
// model exports at input size 640: strides 8/16/32 over 80x80, 40x40 and
// 20x20 grids respectively.
var modelStrides = []int{8, 16, 32}

// onnxDetector runs a 3-head anchor-free DFL model through ONNX Runtime.
// NewCPUDetector and NewGPUDetector both return this type, differing only
// in the ort.SessionOptions they build (execution provider selection).
type onnxDetector struct {
	kind string

	cfg       Config
	modelPath string

	session     *ort.AdvancedSession
	inputTensor *ort.Tensor[float32]
	boxTensors  []*ort.Tensor[float32]
	clsTensors  []*ort.Tensor[float32]

	newSessionOptions func() (*ort.SessionOptions, error)

	ready bool
}

func (d *onnxDetector) Initialize(modelPath string) error {
	if err := ensureOnnxEnvironment(); err != nil {
		return fmt.Errorf("%w: %v", ErrModelLoadFailed, err)
	}
	if d.cfg.InputSize == 0 {
		d.cfg = DefaultConfig()
	}
	d.modelPath = modelPath

	inputShape := ort.NewShape(1, 3, int64(d.cfg.InputSize), int64(d.cfg.InputSize))
	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return fmt.Errorf("%w: input tensor: %v", ErrModelLoadFailed, err)
	}

	numClasses := len(COCOLabels)
	outputNames := make([]string, 0, len(modelStrides)*2)
	outputValues := make([]ort.Value, 0, len(modelStrides)*2)
	boxTensors := make([]*ort.Tensor[float32], 0, len(modelStrides))
	clsTensors := make([]*ort.Tensor[float32], 0, len(modelStrides))

	cleanup := func() {
		inputTensor.Destroy()
		for _, t := range boxTensors {
			t.Destroy()
		}
		for _, t := range clsTensors {
			t.Destroy()
		}
	}

	for _, stride := range modelStrides {
		grid := d.cfg.InputSize / stride
		cells := int64(grid * grid)

		boxShape := ort.NewShape(1, cells, 4*dflBins)
		boxT, err := ort.NewEmptyTensor[float32](boxShape)
		if err != nil {
			cleanup()
			return fmt.Errorf("%w: box tensor stride %d: %v", ErrModelLoadFailed, stride, err)
		}
		boxTensors = append(boxTensors, boxT)

		clsShape := ort.NewShape(1, cells, int64(numClasses))
		clsT, err := ort.NewEmptyTensor[float32](clsShape)
		if err != nil {
			cleanup()
			return fmt.Errorf("%w: class tensor stride %d: %v", ErrModelLoadFailed, stride, err)
		}
		clsTensors = append(clsTensors, clsT)

		outputNames = append(outputNames, fmt.Sprintf("box_%d", stride), fmt.Sprintf("cls_%d", stride))
		outputValues = append(outputValues, boxT, clsT)
	}

	var opts *ort.SessionOptions
	if d.newSessionOptions != nil {
		opts, err = d.newSessionOptions()
		if err != nil {
			cleanup()
			return fmt.Errorf("%w: session options: %v", ErrModelLoadFailed, err)
		}
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{"images"},
		outputNames,
		[]ort.Value{inputTensor},
		outputValues,
		opts,
	)
	if opts != nil {
		opts.Destroy()
	}
	if err != nil {
		cleanup()
		return fmt.Errorf("%w: %v", ErrModelLoadFailed, err)
	}

	d.session = session
	d.inputTensor = inputTensor
	d.boxTensors = boxTensors
	d.clsTensors = clsTensors
	d.ready = true
	return nil
}

func (d *onnxDetector) DetectObjects(f Frame) ([]Detection, error) {
	if !d.ready {
		return nil, ErrUnavailable
	}

	letterboxed, params := Letterbox(f.Img, d.cfg.InputSize)
	writeCHW(d.inputTensor.GetData(), letterboxed, d.cfg.InputSize)

	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("detector onnx run: %w", err)
	}

	numClasses := len(COCOLabels)
	var all []Detection
	for i, stride := range modelStrides {
		grid := d.cfg.InputSize / stride
		out := StrideOutput{
			Stride:     stride,
			GridW:      grid,
			GridH:      grid,
			NumClasses: numClasses,
			BoxDFL:     d.boxTensors[i].GetData(),
			ClassScore: d.clsTensors[i].GetData(),
		}
		all = append(all, out.Decode(d.cfg)...)
	}

	kept := NMS(all, d.cfg.NMSThreshold)
	result := make([]Detection, 0, len(kept))
	b := f.Img.Bounds()
	for _, det := range kept {
		if len(d.cfg.AllowedClasses) > 0 && !d.cfg.AllowedClasses[det.ClassName] {
			continue
		}
		det.Box = params.InverseBox(det.Box)
		_ = b
		result = append(result, det)
	}
	return result, nil
}

func (d *onnxDetector) SetConfidenceThreshold(t float32) { d.cfg.ConfidenceThreshold = t }
func (d *onnxDetector) SetNMSThreshold(t float32)        { d.cfg.NMSThreshold = t }
func (d *onnxDetector) SetAllowedClasses(classes []string) {
	m := make(map[string]bool, len(classes))
	for _, c := range classes {
		m[c] = true
	}
	d.cfg.AllowedClasses = m
}

func (d *onnxDetector) Describe() Description {
	return Description{Kind: d.kind, ModelPath: d.modelPath, Ready: d.ready}
}

func (d *onnxDetector) Cleanup() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.boxTensors {
		t.Destroy()
	}
	for _, t := range d.clsTensors {
		t.Destroy()
	}
	d.ready = false
}

// writeCHW converts an RGBA letterboxed image into a normalized,
// channel-first float32 buffer ([3, size, size], RGB order, 0..1).
func writeCHW(dst []float32, img *image.RGBA, size int) {
	plane := size * size
	for y := 0; y < size; y++ {
		rowOff := img.PixOffset(0, y)
		for x := 0; x < size; x++ {
			o := rowOff + x*4
			r := float32(img.Pix[o]) / 255
			g := float32(img.Pix[o+1]) / 255
			b := float32(img.Pix[o+2]) / 255
			idx := y*size + x
			dst[idx] = r
			dst[plane+idx] = g
			dst[2*plane+idx] = b
		}
	}
}
