package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/technosupport/ts-vision-core/internal/behavior"
)

// RulesDocument is the on-disk YAML shape for one camera's ROI and
// intrusion-rule set.
type RulesDocument struct {
	RawROIs []roiYAML  `yaml:"rois"`
	Rules []ruleYAML `yaml:"rules"`
}

type pointYAML struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type roiYAML struct {
	ID        string      `yaml:"id"`
	Name      string      `yaml:"name"`
	Polygon   []pointYAML `yaml:"polygon"`
	Enabled   bool        `yaml:"enabled"`
	Priority  int         `yaml:"priority"`
	StartTime string      `yaml:"start_time"`
	EndTime   string      `yaml:"end_time"`
}

type ruleYAML struct {
	ID          string  `yaml:"id"`
	ROIID       string  `yaml:"roi_id"`
	MinDuration float64 `yaml:"min_duration_seconds"`
	Confidence  float64 `yaml:"confidence"`
	Enabled     bool    `yaml:"enabled"`
}

// LoadRulesFile reads and parses a RulesDocument from path.
func LoadRulesFile(path string) (*RulesDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read rules file %s: %w", path, err)
	}
	var doc RulesDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("config: parse rules file %s: %w", path, err)
	}
	return &doc, nil
}

// ROIs converts the document's ROI list to behavior.ROI values.
func (d RulesDocument) ROIs() []behavior.ROI {
	out := make([]behavior.ROI, 0, len(d.RawROIs))
	for _, r := range d.RawROIs {
		polygon := make([]behavior.Point, 0, len(r.Polygon))
		for _, p := range r.Polygon {
			polygon = append(polygon, behavior.Point{X: p.X, Y: p.Y})
		}
		out = append(out, behavior.ROI{
			ID:        r.ID,
			Name:      r.Name,
			Polygon:   polygon,
			Enabled:   r.Enabled,
			Priority:  r.Priority,
			StartTime: r.StartTime,
			EndTime:   r.EndTime,
		})
	}
	return out
}

// IntrusionRules converts the document's rule list to behavior.IntrusionRule
// values, translating the YAML's seconds field to a time.Duration.
func (d RulesDocument) IntrusionRules() []behavior.IntrusionRule {
	out := make([]behavior.IntrusionRule, 0, len(d.Rules))
	for _, r := range d.Rules {
		out = append(out, behavior.IntrusionRule{
			ID:          r.ID,
			ROIID:       r.ROIID,
			MinDuration: time.Duration(r.MinDuration * float64(time.Second)),
			Confidence:  r.Confidence,
			Enabled:     r.Enabled,
		})
	}
	return out
}

// Apply loads every ROI and IntrusionRule in the document into analyzer.
// Invalid polygons surface analyzer.AddROI's error with the offending
// ROI id attached, rather than failing silently.
func (d RulesDocument) Apply(analyzer *behavior.Analyzer) error {
	for _, roi := range d.ROIs() {
		if err := analyzer.AddROI(roi); err != nil {
			return fmt.Errorf("config: roi %q: %w", roi.ID, err)
		}
	}
	for _, rule := range d.IntrusionRules() {
		analyzer.AddRule(rule)
	}
	return nil
}
