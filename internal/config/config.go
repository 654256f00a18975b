// Package config loads the manager's system-level keys and per-camera
// VideoSource/ROI documents, and watches the ROI document for hot reload.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// SystemConfig holds the process-wide keys read once at manager start.
type SystemConfig struct {
	OptimizedDetection bool `mapstructure:"optimized_detection"`
	DetectionThreads   int  `mapstructure:"detection_threads"`
	StatusIntervalSecs int  `mapstructure:"status_interval"`
}

// LoadSystemConfig reads SystemConfig from configPath (if non-empty) plus
// environment variables prefixed VISION_, applying defaults, then file,
// then env precedence, and clamping detection_threads to a sane range.
func LoadSystemConfig(configPath string) (*SystemConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("VISION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("optimized_detection", true)
	v.SetDefault("detection_threads", 2)
	v.SetDefault("status_interval", 30)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	}

	var cfg SystemConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if cfg.DetectionThreads < 1 {
		cfg.DetectionThreads = 1
	}
	if cfg.DetectionThreads > 8 {
		cfg.DetectionThreads = 8
	}
	return &cfg, nil
}
