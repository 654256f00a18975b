package detector

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Factory constructs a detector variant. Construction must not fail just
// because the backend is unavailable on this host — Describe().Ready
// reports availability, and the registry falls back to the next
// priority tier when a variant isn't ready.
type Factory func() Detector

type registryEntry struct {
	kind     string
	priority int // lower runs first
	factory  Factory
}

var (
	mu       sync.Mutex
	registry []registryEntry
)

// Register adds a backend variant factory under the given priority tier.
// NPU implementations register at priority 0, GPU at 1, CPU at 2, so
// Select tries the most capable hardware first and degrades gracefully.
func Register(kind string, priority int, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry = append(registry, registryEntry{kind: kind, priority: priority, factory: f})
	sort.SliceStable(registry, func(i, j int) bool { return registry[i].priority < registry[j].priority })
}

// Select probes each registered variant in priority order, returning the
// first one whose Initialize+Describe reports it ready: a capability
// probe of "can this backend actually run the model" rather than a
// static vendor match.
func Select(modelPath string) (Detector, error) {
	return SelectBackend(modelPath, "")
}

// SelectBackend is Select with a requested backend hint ("NPU", "GPU",
// "CPU", or "" / "AUTO" for no preference). The requested kind is tried
// first; on failure the search degrades through the remaining priority
// order exactly as Select does, so an operator's explicit backend choice
// still benefits from the same fallback behavior rather than hard-failing.
func SelectBackend(modelPath, preferred string) (Detector, error) {
	mu.Lock()
	entries := make([]registryEntry, len(registry))
	copy(entries, registry)
	mu.Unlock()

	if len(entries) == 0 {
		return nil, fmt.Errorf("detector: %w: no backends registered", ErrUnavailable)
	}

	preferred = strings.ToUpper(preferred)
	if preferred != "" && preferred != "AUTO" {
		ordered := make([]registryEntry, 0, len(entries))
		for _, e := range entries {
			if strings.EqualFold(e.kind, preferred) {
				ordered = append(ordered, e)
			}
		}
		for _, e := range entries {
			if !strings.EqualFold(e.kind, preferred) {
				ordered = append(ordered, e)
			}
		}
		entries = ordered
	}

	var lastErr error
	for _, e := range entries {
		d := e.factory()
		if err := d.Initialize(modelPath); err != nil {
			lastErr = err
			continue
		}
		if d.Describe().Ready {
			return d, nil
		}
		d.Cleanup()
	}
	if lastErr == nil {
		lastErr = ErrUnavailable
	}
	return nil, fmt.Errorf("detector: no backend could initialize %s: %w", modelPath, lastErr)
}
