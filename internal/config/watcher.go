package config

import (
	"context"
	"log"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchRulesFile watches path for writes/creates and invokes onChange with
// the freshly reloaded document. Falls back to a 60s poll when fsnotify
// can't watch the path (e.g. the file doesn't exist yet).
func WatchRulesFile(ctx context.Context, path string, onChange func(*RulesDocument)) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("config: fsnotify unavailable (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(path); err != nil {
		log.Printf("config: failed to watch %s (%v), falling back to polling", path, err)
		usePolling = true
		watcher.Close()
	}

	if !usePolling {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
						continue
					}
					time.Sleep(100 * time.Millisecond)
					reloadRulesFile(path, onChange)
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("config: watcher error: %v", err)
				}
			}
		}()
		return
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reloadRulesFile(path, onChange)
			}
		}
	}()
}

func reloadRulesFile(path string, onChange func(*RulesDocument)) {
	doc, err := LoadRulesFile(path)
	if err != nil {
		log.Printf("config: reload %s failed: %v", path, err)
		return
	}
	onChange(doc)
}
