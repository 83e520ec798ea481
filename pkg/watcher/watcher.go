// Package watcher reloads a definitions file when it changes on disk.
package watcher

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// DefaultStabilityThreshold is how long a file must stay quiet before
// the change callback fires
const DefaultStabilityThreshold = 250 * time.Millisecond

// ChangeCallback is called with the watched path after it settles
type ChangeCallback func(path string) error

// Config holds configuration for the watcher
type Config struct {
	Path               string
	StabilityThreshold time.Duration
	OnChange           ChangeCallback
}

// DefinitionsWatcher monitors one file. It watches the parent directory
// so editors that save by rename are still seen.
type DefinitionsWatcher struct {
	watcher            *fsnotify.Watcher
	path               string
	stabilityThreshold time.Duration
	onChange           ChangeCallback
	done               chan struct{}
	debounce           *time.Timer
	debounceMu         sync.Mutex
	stopOnce           sync.Once
	wg                 sync.WaitGroup
}

// New creates a watcher for cfg.Path
func New(cfg Config) (*DefinitionsWatcher, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("watch path is required")
	}
	if cfg.OnChange == nil {
		return nil, fmt.Errorf("change callback is required")
	}

	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", cfg.Path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if cfg.StabilityThreshold <= 0 {
		cfg.StabilityThreshold = DefaultStabilityThreshold
	}

	return &DefinitionsWatcher{
		watcher:            watcher,
		path:               abs,
		stabilityThreshold: cfg.StabilityThreshold,
		onChange:           cfg.OnChange,
		done:               make(chan struct{}),
	}, nil
}

// Start begins watching
func (w *DefinitionsWatcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.wg.Add(1)
	go w.eventLoop()

	log.Info().Str("path", w.path).Msg("Definitions watcher started")
	return nil
}

// Stop stops the watcher and cancels a pending callback
func (w *DefinitionsWatcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)

		w.debounceMu.Lock()
		if w.debounce != nil {
			w.debounce.Stop()
			w.debounce = nil
		}
		w.debounceMu.Unlock()

		if cerr := w.watcher.Close(); cerr != nil {
			err = fmt.Errorf("failed to close watcher: %w", cerr)
		}
		w.wg.Wait()

		log.Info().Str("path", w.path).Msg("Definitions watcher stopped")
	})
	return err
}

func (w *DefinitionsWatcher) eventLoop() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *DefinitionsWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	// A removal alone leaves nothing to load; the follow-up create fires.
	if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
		return
	}
	w.schedule()
}

// schedule restarts the debounce timer
func (w *DefinitionsWatcher) schedule() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounce != nil {
		w.debounce.Stop()
	}
	w.debounce = time.AfterFunc(w.stabilityThreshold, func() {
		select {
		case <-w.done:
			return
		default:
		}
		if err := w.onChange(w.path); err != nil {
			log.Error().Err(err).Str("path", w.path).Msg("Error reloading definitions")
			return
		}
		log.Info().Str("path", w.path).Msg("Definitions reloaded")
	})
}
