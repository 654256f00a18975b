package config

import (
	"fmt"
	"strings"
)

// Backend selects the detector execution provider for one VideoSource.
type Backend string

const (
	BackendAuto Backend = "AUTO"
	BackendNPU  Backend = "NPU"
	BackendGPU  Backend = "GPU"
	BackendCPU  Backend = "CPU"
)

// DetectionOptions is the detection-tuning slice of a VideoSource's
// options bag.
type DetectionOptions struct {
	ConfidenceThreshold float32 `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	NMSThreshold        float32 `mapstructure:"nms_threshold" yaml:"nms_threshold"`
	Backend             Backend `mapstructure:"backend" yaml:"backend"`
	ModelPath           string  `mapstructure:"model_path" yaml:"model_path"`
}

// StreamOptions is the preview-stream slice of a VideoSource's options bag.
type StreamOptions struct {
	FPS       float64 `mapstructure:"fps" yaml:"fps"`
	Quality   int     `mapstructure:"quality" yaml:"quality"`
	MaxWidth  int     `mapstructure:"max_width" yaml:"max_width"`
	MaxHeight int     `mapstructure:"max_height" yaml:"max_height"`
}

// PersonStatsOptions is the per-camera attribute-analysis options bag.
type PersonStatsOptions struct {
	Enabled         bool    `mapstructure:"enabled" yaml:"enabled"`
	GenderThreshold float32 `mapstructure:"gender_threshold" yaml:"gender_threshold"`
	AgeThreshold    float32 `mapstructure:"age_threshold" yaml:"age_threshold"`
	BatchSize       int     `mapstructure:"batch_size" yaml:"batch_size"`
	EnableCaching   bool    `mapstructure:"enable_caching" yaml:"enable_caching"`
}

// Credentials is a VideoSource's optional stream auth pair. It is held in
// memory decrypted; see internal/crypto for the at-rest envelope.
type Credentials struct {
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
}

// VideoSource is one camera's stable configuration record, mutated only by the manager on config-apply.
type VideoSource struct {
	ID               string             `mapstructure:"id" yaml:"id"`
	Name             string             `mapstructure:"name" yaml:"name"`
	URL              string             `mapstructure:"url" yaml:"url"`
	Credentials      *Credentials       `mapstructure:"credentials" yaml:"credentials,omitempty"`
	Width            int                `mapstructure:"width" yaml:"width"`
	Height           int                `mapstructure:"height" yaml:"height"`
	FPS              float64            `mapstructure:"fps" yaml:"fps"`
	PreviewPort      int                `mapstructure:"preview_port" yaml:"preview_port"`
	Enabled          bool               `mapstructure:"enabled" yaml:"enabled"`
	DetectionEnabled bool               `mapstructure:"detection_enabled" yaml:"detection_enabled"`
	RecordingEnabled bool               `mapstructure:"recording_enabled" yaml:"recording_enabled"`
	Detection        DetectionOptions   `mapstructure:"detection" yaml:"detection"`
	Stream           StreamOptions      `mapstructure:"stream" yaml:"stream"`
	PersonStats      PersonStatsOptions `mapstructure:"person_stats" yaml:"person_stats"`
}

var acceptedSchemes = map[string]bool{"rtsp": true, "http": true, "file": true}

// Validate enforces VideoSource's invariants: non-empty id and a URL
// scheme in the accepted set.
func (v VideoSource) Validate() error {
	if v.ID == "" {
		return fmt.Errorf("config: video source id must not be empty")
	}
	scheme, _, ok := strings.Cut(v.URL, "://")
	if !ok || !acceptedSchemes[strings.ToLower(scheme)] {
		return fmt.Errorf("config: video source %q: unsupported url scheme %q", v.ID, scheme)
	}
	return nil
}

// ValidateUnique validates each source and rejects duplicate ids: every
// id must be non-empty and unique process-wide.
func ValidateUnique(sources []VideoSource) error {
	seen := make(map[string]bool, len(sources))
	for _, s := range sources {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return fmt.Errorf("config: duplicate video source id %q", s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}
