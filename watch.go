package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
)

// rapid writes of one save are folded into one reload
const reloadDebounce = 500 * time.Millisecond

// startWatcher requests a reload through the signal channel whenever
// the config file is written. The directory is watched so editors that
// replace the file are noticed as well.
func (a *App) startWatcher(cfile string) error {
	if cfile == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(cfile)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch config file: %w", err)
	}
	a.watcher = watcher

	a.shutdownWg.Add(1)
	go a.watchLoop(watcher, filepath.Clean(cfile))
	slog.Debug("Watching config file", "path", cfile)
	return nil
}

func (a *App) watchLoop(watcher *fsnotify.Watcher, cfile string) {
	defer a.shutdownWg.Done()
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != cfile || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			slog.Debug("Config file changed", "op", event.Op.String())
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, a.requestReload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}

func (a *App) requestReload() {
	select {
	case a.ossignal <- syscall.SIGHUP:
	default:
		// a signal is already pending
	}
}

func (a *App) stopWatcher() {
	if a.watcher == nil {
		return
	}
	if err := a.watcher.Close(); err != nil {
		slog.Warn("Failed to close config watcher", "error", err)
	}
	a.watcher = nil
}
