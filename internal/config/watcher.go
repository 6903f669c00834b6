package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDelay coalesces the burst of events a single save produces.
var reloadDelay = 200 * time.Millisecond

// Watch reloads servers.yaml whenever it changes on disk, until ctx is done.
// onReload, if set, receives the new definitions after each successful
// reload. An invalid file is logged and the previous definitions stay.
func (sm *ServerManager) Watch(ctx context.Context, onReload func([]ServerDefinition)) error {
	if err := os.MkdirAll(sm.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	// The directory is watched because saves replace the file by rename.
	if err := watcher.Add(sm.configDir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch %s: %w", sm.configDir, err)
	}

	go sm.watch(ctx, watcher, onReload)
	return nil
}

func (sm *ServerManager) watch(ctx context.Context, watcher *fsnotify.Watcher, onReload func([]ServerDefinition)) {
	defer watcher.Close()

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			sm.logger.Warn("config watcher error", "error", err)

		case evt, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(evt.Name) != serversFileName {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			timer.Reset(reloadDelay)

		case <-timer.C:
			if err := sm.Load(); err != nil {
				sm.logger.Error("failed to reload server definitions, keeping previous", "error", err)
				continue
			}
			if onReload != nil {
				onReload(sm.GetAll())
			}
		}
	}
}
