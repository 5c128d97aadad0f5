package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/multierr"
	"go.viam.com/utils"

	"go.viam.com/dronenav/logging"
	"go.viam.com/dronenav/services/navigation"
)

// A Watcher keeps the most recent valid config read from a file. It is a
// navigation.ToleranceSource, so a navigator using it picks up tolerance edits on its next
// trajectory.
type Watcher struct {
	path   string
	logger logging.Logger
	fsw    *fsnotify.Watcher

	mu      sync.RWMutex
	current *Config

	cancel                  context.CancelFunc
	activeBackgroundWorkers sync.WaitGroup
}

var _ navigation.ToleranceSource = (*Watcher)(nil)

// NewWatcher reads the config at path and starts watching it for changes. The initial read
// must succeed; later reads that fail are logged and the previous config is kept.
func NewWatcher(path string, logger logging.Logger) (*Watcher, error) {
	cfg, err := Read(path, logger)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// the directory is watched so that editors which replace the file are noticed
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		return nil, multierr.Combine(err, fsw.Close())
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		path:    filepath.Clean(path),
		logger:  logger,
		fsw:     fsw,
		current: cfg,
		cancel:  cancel,
	}
	w.activeBackgroundWorkers.Add(1)
	utils.PanicCapturingGo(func() {
		defer w.activeBackgroundWorkers.Done()
		w.watch(ctx)
	})
	return w, nil
}

func (w *Watcher) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warnw("error watching config", "path", w.path, "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Read(w.path, w.logger)
	if err != nil {
		w.logger.Warnw("failed to reload config, keeping previous", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	w.current = cfg
	w.mu.Unlock()
	w.logger.Infow("config reloaded", "path", w.path, "tolerance", cfg.Tolerance, "yaw_tolerance", cfg.YawTolerance)
}

// Config returns the most recent valid config. It must not be modified.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Tolerances returns the tolerances of the most recent valid config.
func (w *Watcher) Tolerances() navigation.Tolerances {
	return w.Config().Tolerances()
}

// Close stops watching the file.
func (w *Watcher) Close() error {
	w.cancel()
	err := w.fsw.Close()
	w.activeBackgroundWorkers.Wait()
	return err
}
