package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadSystemConfigAppliesDefaultsAndClamp(t *testing.T) {
	cfg, err := LoadSystemConfig("")
	require.NoError(t, err)
	require.True(t, cfg.OptimizedDetection)
	require.Equal(t, 2, cfg.DetectionThreads)
	require.Equal(t, 30, cfg.StatusIntervalSecs)
}

func TestLoadSystemConfigClampsOutOfRangeThreads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "system.yaml")
	require.NoError(t, os.WriteFile(path, []byte("detection_threads: 99\n"), 0o600))

	cfg, err := LoadSystemConfig(path)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.DetectionThreads)
}

func TestVideoSourceValidateRejectsEmptyID(t *testing.T) {
	v := VideoSource{URL: "rtsp://cam.local/stream"}
	require.Error(t, v.Validate())
}

func TestVideoSourceValidateRejectsUnsupportedScheme(t *testing.T) {
	v := VideoSource{ID: "cam1", URL: "ftp://cam.local/stream"}
	require.Error(t, v.Validate())
}

func TestVideoSourceValidateAcceptsKnownSchemes(t *testing.T) {
	for _, scheme := range []string{"rtsp", "http", "file"} {
		v := VideoSource{ID: "cam1", URL: scheme + "://cam.local/stream"}
		require.NoError(t, v.Validate())
	}
}

func TestValidateUniqueRejectsDuplicateIDs(t *testing.T) {
	sources := []VideoSource{
		{ID: "cam1", URL: "rtsp://a"},
		{ID: "cam1", URL: "rtsp://b"},
	}
	require.Error(t, ValidateUnique(sources))
}

func TestLoadRulesFileParsesROIsAndRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	doc := `
rois:
  - id: zone1
    name: Lobby
    enabled: true
    priority: 3
    polygon:
      - {x: 0, y: 0}
      - {x: 100, y: 0}
      - {x: 100, y: 100}
      - {x: 0, y: 100}
rules:
  - id: r1
    roi_id: zone1
    min_duration_seconds: 5
    confidence: 0.7
    enabled: true
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	parsed, err := LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, parsed.ROIs(), 1)
	require.Equal(t, "zone1", parsed.ROIs()[0].ID)
	require.Len(t, parsed.IntrusionRules(), 1)
	require.Equal(t, 5*time.Second, parsed.IntrusionRules()[0].MinDuration)
}

func TestWatchRulesFileInvokesOnChangeOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rois: []\nrules: []\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan *RulesDocument, 1)
	WatchRulesFile(ctx, path, func(d *RulesDocument) {
		select {
		case changed <- d:
		default:
		}
	})

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`
rois:
  - id: zone1
    polygon: [{x: 0, y: 0}, {x: 1, y: 0}, {x: 1, y: 1}]
    enabled: true
rules: []
`), 0o600))

	select {
	case doc := <-changed:
		require.Len(t, doc.ROIs(), 1)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
