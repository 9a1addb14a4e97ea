package filewatch

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch calls onModify each time the file at target is created, written, or
// replaced by rename, until ctx is done.
//
// The directory of target is watched instead of target itself, so target need not
// exist yet, and replacing it does not stop watching.
//
// # Args
//
// - ctx: context.Context. Watching stops when it is done.
//
// - target: file path to be watched.
//
// - onModify: called for each modification, one at a time.
//
// - onError: called with errors from the watcher. It can be nil.
//
// # Returns
//
// - error: error caused when it fails to start watching.
func Watch(ctx context.Context, target string, onModify func(fsnotify.Event), onError func(error)) error {
	target = filepath.Clean(target)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(filepath.Dir(target)); err != nil {
		w.Close()
		return err
	}

	go func() {
		defer w.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target || !event.Has(fsnotify.Create|fsnotify.Write) {
					continue
				}
				onModify(event)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()

	return nil
}
