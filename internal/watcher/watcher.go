// Package watcher keeps a store in sync with a snapshot file that other processes
// may replace.
package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultInterval = 5 * time.Second

var errMissingSyncer = errors.New("watcher: syncer is required")

// Syncer reloads the snapshot when it changed on disk.
type Syncer interface {
	EnsureLatestSnapshot(ctx context.Context) error
}

// Config configures a Watcher. A zero Interval uses five seconds; a negative one
// disables polling.
type Config struct {
	Path        string
	Interval    time.Duration
	UseFSNotify bool
	Syncer      Syncer
	Logger      *zap.Logger
}

// Watcher triggers Syncer on a ticker and, optionally, on file system events.
type Watcher struct {
	path        string
	interval    time.Duration
	useFSNotify bool
	syncer      Syncer
	logger      *zap.Logger
}

// New validates cfg.
func New(cfg Config) (*Watcher, error) {
	if cfg.Syncer == nil {
		return nil, errMissingSyncer
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		path:        cfg.Path,
		interval:    interval,
		useFSNotify: cfg.UseFSNotify && cfg.Path != "",
		syncer:      cfg.Syncer,
		logger:      logger,
	}, nil
}

// Run blocks until ctx is done. Sync failures are logged and the loop continues.
func (w *Watcher) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.useFSNotify {
		// The directory is watched: the atomic rename swaps the file itself.
		fileWatcher, err := fsnotify.NewWatcher()
		if err != nil {
			return err
		}
		defer fileWatcher.Close()
		if err := fileWatcher.Add(filepath.Dir(w.path)); err != nil {
			w.logger.Warn("snapshot directory watch failed", zap.String("path", w.path), zap.Error(err))
		} else {
			events = fileWatcher.Events
			errs = fileWatcher.Errors
		}
	}

	name := filepath.Base(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick:
			w.sync(ctx, "poll")
		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.sync(ctx, "fsnotify")
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("snapshot watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) sync(ctx context.Context, trigger string) {
	if err := w.syncer.EnsureLatestSnapshot(ctx); err != nil {
		w.logger.Error("snapshot sync failed", zap.String("trigger", trigger), zap.Error(err))
	}
}
