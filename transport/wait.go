package transport

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	pkgerrors "github.com/pkg/errors"

	"github.com/moffa90/go-qdl/errkind"
)

// WaitForPort blocks until the device node at path exists or timeout expires.
// Modems re-enumerate when switching execution environment, so the EDL port
// usually appears a few seconds after the switch command.
func WaitForPort(ctx context.Context, path string, timeout time.Duration) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errkind.Wrap(errkind.IO, "watch", err)
	}
	defer w.Close()

	dir := filepath.Dir(path)
	if err := w.Add(dir); err != nil {
		return errkind.Wrap(errkind.IO, "watch "+dir, err)
	}

	// the node may have appeared between Stat and Add
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	ctx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return errkind.New(errkind.IO, "watch "+dir, "watcher closed")
			}
			if filepath.Clean(ev.Name) == filepath.Clean(path) && ev.Has(fsnotify.Create) {
				return nil
			}
		case err, ok := <-w.Errors:
			if !ok {
				return errkind.New(errkind.IO, "watch "+dir, "watcher closed")
			}
			return errkind.Wrap(errkind.IO, "watch "+dir, err)
		case <-ctx.Done():
			return errkind.Wrap(errkind.Timeout, "wait for "+path,
				pkgerrors.Wrapf(ErrTimeout, "port did not appear within %s", timeout))
		}
	}
}
