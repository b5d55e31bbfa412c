package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher monitors the configuration file and invokes a callback when
// it changes. Rapid successive writes (editor save dances) are debounced.
type ConfigWatcher struct {
	configPath   string
	watcher      *fsnotify.Watcher
	onChange     func()
	debounceTime time.Duration
}

// NewConfigWatcher creates a watcher for configPath.
func NewConfigWatcher(configPath string, onChange func()) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return &ConfigWatcher{
		configPath:   absPath,
		watcher:      watcher,
		onChange:     onChange,
		debounceTime: 2 * time.Second,
	}, nil
}

// Start begins monitoring. Watching the containing directory is more
// reliable than watching the file itself across rename-style saves.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	if err := cw.watcher.Add(filepath.Dir(cw.configPath)); err != nil {
		return fmt.Errorf("watch config directory: %w", err)
	}
	slog.Info("Watching configuration file", "path", cw.configPath)
	go cw.watchLoop(ctx)
	return nil
}

// Stop closes the underlying watcher.
func (cw *ConfigWatcher) Stop() error {
	return cw.watcher.Close()
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Name != cw.configPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(cw.debounceTime, func() {
				slog.Info("Configuration file changed, reloading", "path", cw.configPath)
				cw.onChange()
			})
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}
