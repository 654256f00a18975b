package detector

import ort "github.com/yalue/onnxruntime_go"

func init() {
	Register("cpu", 2, NewCPUDetector)
}

// NewCPUDetector returns the CPU execution provider variant: an ordinary
// ONNX Runtime session with no device acceleration, using a fixed four
// intra-op threads. It registers last so Select only reaches it when no
// NPU or GPU backend is ready.
func NewCPUDetector() Detector {
	return &onnxDetector{
		kind: "cpu",
		newSessionOptions: func() (*ort.SessionOptions, error) {
			opts, err := ort.NewSessionOptions()
			if err != nil {
				return nil, err
			}
			if err := opts.SetIntraOpNumThreads(4); err != nil {
				opts.Destroy()
				return nil, err
			}
			return opts, nil
		},
	}
}
