package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// debounceWindow coalesces editor write bursts into one reload.
const debounceWindow = 250 * time.Millisecond

// Watcher hot-reloads the config file and hands validated snapshots to a
// callback. Only tunables should be consumed from reloads; wiring-level
// fields (store paths, URLs) need a restart to take effect.
type Watcher struct {
	path     string
	onChange func(Config)
	log      *zap.Logger
	fw       *fsnotify.Watcher
}

// NewWatcher watches path. onChange runs on the watcher goroutine with
// each successfully reloaded config.
func NewWatcher(path string, onChange func(Config), log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	// Watch the directory, not the file: editors replace files on save
	// and the inode-level watch would go stale.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}
	return &Watcher{path: path, onChange: onChange, log: log.Named("config"), fw: fw}, nil
}

// Run blocks until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fw.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				timer.Reset(debounceWindow)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		// A half-saved or invalid file keeps the previous config.
		w.log.Warn("config reload rejected", zap.Error(err))
		return
	}
	w.log.Info("config reloaded", zap.String("path", w.path))
	w.onChange(cfg)
}
