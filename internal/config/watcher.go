package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jyasuu/llm-playground/internal/logger"
)

// debounce window for editors that write config files in several events.
const watchDebounce = 250 * time.Millisecond

// Watch reloads the configuration whenever the file at path changes and
// passes the result to onChange. It returns a stop function. Reload errors
// are logged and skipped so a half-written file never kills the watcher.
func Watch(path string, onChange func(*Config)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory: most editors replace the file, which drops the
	// watch if it points at the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})

	go func() {
		var timer *time.Timer
		target := filepath.Clean(path)

		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}

				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(watchDebounce, func() {
					cfg, err := Load(path)
					if err != nil {
						logger.Warn("config reload failed: %v", err)
						return
					}
					logger.Info("config reloaded from %s", path)
					onChange(cfg)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error: %v", err)
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
