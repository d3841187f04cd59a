package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceDelay = 200 * time.Millisecond

// Watch ingests the profile once, then again every time it is rewritten,
// until ctx is cancelled. Failed re-ingests are logged and watching goes on.
func (i *Ingester) Watch(ctx context.Context, opts Options) error {
	if _, err := i.Run(ctx, opts); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Tools usually replace the profile, so watch its directory.
	if err := watcher.Add(filepath.Dir(opts.ProfilePath)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(opts.ProfilePath), err)
	}
	i.log.Info("Watching %s for changes", opts.ProfilePath)

	var (
		timer  *time.Timer
		reload <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != filepath.Base(opts.ProfilePath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounceDelay)
			reload = timer.C

		case <-reload:
			reload = nil
			i.log.Progress("Profile changed, re-ingesting %s", opts.Revision)
			if _, err := i.Run(ctx, opts); err != nil {
				i.log.Error("Re-ingest failed: %v", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			i.log.Warning("Watcher error: %v", err)
		}
	}
}
