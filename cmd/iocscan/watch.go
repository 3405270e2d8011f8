package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"iocscan/internal/config"
	"iocscan/internal/textsrc"
	"iocscan/internal/watcher"
)

// watch prints a report for path, then reprints it whenever the file settles
// after a change or the config file is edited, until ctx is cancelled.
// Watching starts before the first report so no change is missed. Errors after
// the first report are logged and watching continues.
func (a *app) watch(ctx context.Context, loader *config.Loader, override func(*config.Config) error, path string, keyLength int) error {
	debounce := time.Duration(a.cfg.Watch.DebounceMs) * time.Millisecond
	w, err := watcher.New(path, debounce)
	if err != nil {
		return fmt.Errorf("%w: %w", textsrc.ErrInputUnavailable, err)
	}
	if err := w.Start(); err != nil {
		w.Stop()
		return fmt.Errorf("%w: watch %s: %w", textsrc.ErrInputUnavailable, path, err)
	}
	defer w.Stop()

	// Coalesces reload notifications; the loop reads the latest config.
	reloaded := make(chan struct{}, 1)
	if _, err := os.Stat(loader.Path()); err == nil {
		loader.OnChange(func(*config.Config) {
			select {
			case reloaded <- struct{}{}:
			default:
			}
		})
		if err := loader.Watch(); err != nil {
			a.log.Warn("config hot reload disabled", "path", loader.Path(), "error", err)
		}
	}

	if err := a.runOnce(path, keyLength); err != nil {
		return err
	}

	a.log.Info("watching", "path", w.Path(), "key_length", keyLength, "debounce", debounce)

	for {
		select {
		case <-ctx.Done():
			a.log.Info("stopped watching", "path", w.Path())
			return nil

		case ev, ok := <-w.Events():
			if !ok {
				return nil
			}
			a.log.Info("file changed", "path", ev.Path, "bytes", ev.Size, "digest", hex.EncodeToString(ev.Hash[:]))
			if err := a.runOnce(path, keyLength); err != nil {
				a.log.Error("analysis failed", "path", path, "error", err)
			}

		case <-reloaded:
			c := loader.Config().Clone()
			if err := override(c); err != nil {
				a.log.Error("ignoring reloaded config", "path", loader.Path(), "error", err)
				continue
			}
			// The history database and output file stay as opened.
			c.History = a.cfg.History
			a.cfg = c
			a.log.Info("config reloaded", "path", loader.Path(), "mode", c.Analysis.Mode, "unit", c.Analysis.Unit)
			if err := a.runOnce(path, keyLength); err != nil {
				a.log.Error("analysis failed", "path", path, "error", err)
			}

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			a.log.Warn("watch error", "path", w.Path(), "error", err)

		case err := <-loader.Errors():
			a.log.Warn("config reload failed", "path", loader.Path(), "error", err)
		}
	}
}
