// Package watcher follows a file on disk and reports its content whenever it
// changes.
package watcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay is how long a rename or remove waits for the replacement file
// an editor writes in its place.
const settleDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the directory holding path and calls
// onChange with the file's content each time it changes, until ctx is
// cancelled. The current content is reported once at start if the file
// exists. Writes that leave the content unchanged are skipped.
//
// The directory is watched rather than the file itself because editors
// commonly save by writing a temporary file and renaming it over the
// original.
func Watch(ctx context.Context, path string, logger *slog.Logger, onChange func(content string)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("watcher: resolve %s: %w", path, err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watcher: watch %s: %w", filepath.Dir(abs), err)
	}
	logger.Info("watcher: started", slog.String("path", abs))

	var last [sha256.Size]byte
	emit := func() {
		data, err := os.ReadFile(abs)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				logger.Warn("watcher: read failed", slog.String("path", abs), slog.String("error", err.Error()))
			}
			return
		}
		sum := sha256.Sum256(data)
		if sum == last {
			return
		}
		last = sum
		logger.Debug("watcher: changed", slog.String("path", abs), slog.Int("bytes", len(data)))
		onChange(string(data))
	}
	emit()

	// settleTimer debounces reads after a rename or remove.
	var settleTimer *time.Timer
	var settleCh <-chan time.Time

	scheduleSettle := func() {
		if settleTimer == nil {
			settleTimer = time.NewTimer(settleDelay)
			settleCh = settleTimer.C
		} else {
			settleTimer.Reset(settleDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if settleTimer != nil {
				settleTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-settleCh:
			emit()

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				emit()
			case ev.Op&(fsnotify.Rename|fsnotify.Remove) != 0:
				scheduleSettle()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
