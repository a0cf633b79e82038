package server

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/YuminosukeSato/hotelres/pkg/errors"
	"github.com/YuminosukeSato/hotelres/pkg/log"
)

// DefaultDebounce delays a reload until writes to the bundle settle.
const DefaultDebounce = 250 * time.Millisecond

// ModelWatcher reloads the bundle when its file changes. It implements
// suture.Service.
//
// The parent directory is watched instead of the file itself: SaveModel
// replaces the file through a rename, which drops a watch on the old inode.
type ModelWatcher struct {
	holder   *ModelHolder
	debounce time.Duration
	logger   log.Logger

	ready     chan struct{}
	readyOnce sync.Once

	// reloaded is signalled after every reload attempt; tests use it.
	reloaded chan error
}

// NewModelWatcher creates a watcher for holder's bundle path.
func NewModelWatcher(holder *ModelHolder, debounce time.Duration) *ModelWatcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &ModelWatcher{
		holder:   holder,
		debounce: debounce,
		logger:   log.GetLoggerWithName("server.watcher"),
		ready:    make(chan struct{}),
	}
}

// Ready is closed once the first watch is installed. Changes made before
// that are not seen.
func (w *ModelWatcher) Ready() <-chan struct{} {
	return w.ready
}

// Serve watches until ctx is cancelled.
func (w *ModelWatcher) Serve(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer fw.Close()

	path := filepath.Clean(w.holder.Path())
	dir := filepath.Dir(path)
	if err := fw.Add(dir); err != nil {
		return errors.Wrapf(err, "failed to watch %s", dir)
	}
	w.logger.Info("Watching model file", log.PathKey, path)
	w.readyOnce.Do(func() { close(w.ready) })

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return errors.New("file watcher closed")
			}
			if filepath.Clean(ev.Name) != path || !ev.Has(fsnotify.Create|fsnotify.Write|fsnotify.Rename) {
				continue
			}
			w.logger.Debug("Model file changed", log.PathKey, path, "op", ev.Op.String())
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("file watcher closed")
			}
			w.logger.Warn("File watcher error", log.ErrAttrKey, err)

		case <-timer.C:
			err := w.holder.Load()
			if err != nil {
				w.logger.Warn("Reload failed, keeping previous model", log.ErrAttrKey, err)
			}
			if w.reloaded != nil {
				select {
				case w.reloaded <- err:
				default:
				}
			}
		}
	}
}

// String names the service in supervisor logs.
func (w *ModelWatcher) String() string {
	return "model-watcher"
}
