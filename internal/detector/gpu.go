package detector

import ort "github.com/yalue/onnxruntime_go"

func init() {
	Register("gpu", 1, NewGPUDetector)
}

// NewGPUDetector returns the GPU execution provider variant. It shares
// the onnxDetector plumbing with the CPU variant but runs with a single
// intra-op thread, since the device — not the host CPU — does the
// parallel work; Select only keeps it if Initialize succeeds, which
// requires a GPU-enabled onnxruntime shared library on the host.
func NewGPUDetector() Detector {
	return &onnxDetector{
		kind: "gpu",
		newSessionOptions: func() (*ort.SessionOptions, error) {
			opts, err := ort.NewSessionOptions()
			if err != nil {
				return nil, err
			}
			if err := opts.SetIntraOpNumThreads(1); err != nil {
				opts.Destroy()
				return nil, err
			}
			return opts, nil
		},
	}
}
