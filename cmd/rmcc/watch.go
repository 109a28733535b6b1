package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle collapses the burst of events an editor produces for one save.
const settle = 100 * time.Millisecond

// watch compiles once, then again whenever an input is written, until
// ctx is cancelled. Compilation errors are reported and watching goes on.
func (d *driver) watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Close()

	// Directories are watched rather than files so that editors which
	// replace a file by renaming keep triggering rebuilds.
	inputs := make(map[string]bool)
	dirs := make(map[string]bool)
	for _, path := range d.opts.inputs {
		abs, err := filepath.Abs(path)
		if err != nil {
			return err
		}
		inputs[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	d.rebuild(ctx)

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, inputs) {
				continue
			}
			d.logger.Debug("%s changed (%s)", ev.Name, ev.Op)
			pending = time.After(settle)

		case <-pending:
			pending = nil
			d.rebuild(ctx)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			d.logger.Warn("watcher: %v", err)
		}
	}
}

func relevant(ev fsnotify.Event, inputs map[string]bool) bool {
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	abs, err := filepath.Abs(ev.Name)
	return err == nil && inputs[abs]
}

func (d *driver) rebuild(ctx context.Context) {
	start := time.Now()
	if err := d.compile(ctx); err != nil {
		d.logger.Error("Compilation failed: %v", err)
		return
	}
	d.logger.Info("compiled %d file(s) in %s", len(d.opts.inputs), time.Since(start).Round(time.Millisecond))
}
