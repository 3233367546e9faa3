package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/cachesync/internal/logfields"
)

// ConfigWatcher monitors the configuration file and triggers reloads.
type ConfigWatcher struct {
	configPath   string
	reload       func()
	watcher      *fsnotify.Watcher
	stopChan     chan struct{}
	debounceTime time.Duration
}

// NewConfigWatcher creates a watcher that calls reload after the config file
// changes (debounced, since editors fire multiple events per save).
func NewConfigWatcher(configPath string, reload func()) (*ConfigWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	return &ConfigWatcher{
		configPath:   absPath,
		reload:       reload,
		watcher:      watcher,
		stopChan:     make(chan struct{}),
		debounceTime: 2 * time.Second,
	}, nil
}

// Start begins monitoring the configuration file.
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	// Watch the directory containing the config file; watching the file
	// directly breaks on editors that replace it atomically.
	configDir := filepath.Dir(cw.configPath)
	if err := cw.watcher.Add(configDir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", configDir, err)
	}

	slog.Info("Starting configuration watcher", logfields.Path(cw.configPath))
	go cw.watchLoop(ctx)
	return nil
}

// Stop stops the configuration watcher.
func (cw *ConfigWatcher) Stop() error {
	close(cw.stopChan)
	return cw.watcher.Close()
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	var debounceC <-chan time.Time

	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cw.configPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			slog.Debug("Configuration file changed", logfields.Path(event.Name))
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(cw.debounceTime)
			debounceC = debounce.C
		case <-debounceC:
			debounceC = nil
			slog.Info("Reloading configuration", logfields.Path(cw.configPath))
			cw.reload()
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Configuration watcher error", logfields.Error(err))
		case <-cw.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}
