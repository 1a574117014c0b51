package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"go.viam.com/swerve/logging"
)

// watchDebounce is how long the file must be quiet before it is re-read. A single save often
// produces several write events.
var watchDebounce = 50 * time.Millisecond

// Watch re-reads the config at filePath whenever it is written or replaced and passes every
// valid result to onChange. Invalid configs are logged and skipped. Watch blocks until ctx is
// done.
//
// The parent directory is watched rather than the file itself since editors commonly save by
// renaming a temp file over the original.
func Watch(ctx context.Context, filePath string, logger logging.Logger, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "cannot create config watcher")
	}
	defer func() {
		if err := watcher.Close(); err != nil {
			logger.Debugw("error closing config watcher", "error", err)
		}
	}()

	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		return errors.Wrapf(err, "cannot watch %q", filePath)
	}

	reload := func() {
		cfg, err := Read(absPath)
		if err != nil {
			logger.Warnw("ignoring invalid config change", "path", filePath, "error", err)
			return
		}
		logger.Infow("config changed", "path", filePath)
		onChange(cfg)
	}
	// The debounce timer only signals; reading and logging stay on this goroutine.
	debounced := debounce.New(watchDebounce)
	settled := make(chan struct{}, 1)
	signal := func() {
		select {
		case settled <- struct{}{}:
		default:
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			debounced(signal)
		case <-settled:
			reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("config watcher error", "error", err)
		}
	}
}
