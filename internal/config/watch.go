package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc receives the result of re-validating the config file after it
// changed on disk. Exactly one of cfg and err is non-nil.
type ChangeFunc func(cfg *Config, err error)

// Watcher reports edits to the config file. The proxy rule set is fixed for
// the lifetime of the process, so a change is only validated and announced;
// applying it takes a restart.
type Watcher struct {
	path     string
	logger   *slog.Logger
	onChange ChangeFunc
	debounce time.Duration
}

// NewWatcher creates a Watcher for the given config file path. onChange may
// be nil, in which case the outcome is only logged.
func NewWatcher(path string, logger *slog.Logger, onChange ChangeFunc) *Watcher {
	return &Watcher{
		path:     path,
		logger:   logger,
		onChange: onChange,
		debounce: 300 * time.Millisecond,
	}
}

// Check loads and validates the file once, logs the outcome and notifies
// the callback. Exported so tests and the CLI can trigger it directly.
func (w *Watcher) Check() (*Config, error) {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Error("config file changed but is invalid; running config unchanged",
			"path", w.path, "error", err)
	} else {
		w.logger.Warn("config file changed; restart devproxy to apply",
			"path", w.path, "rules", len(cfg.Server.Proxy))
	}
	if w.onChange != nil {
		w.onChange(cfg, err)
	}
	return cfg, err
}

// Run watches the config file's parent directory until ctx is cancelled.
// Watching the directory catches editors that save by rename.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	w.logger.Info("config file watcher started", "path", w.path)

	target := filepath.Clean(w.path)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(w.debounce, func() {
				w.Check() //nolint:errcheck
			})
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("config file watcher error", "error", err)
		}
	}
}
