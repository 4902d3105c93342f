package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces rapid file events (editors and atomic renames
// produce several per save) into one reload.
const debounceDelay = 500 * time.Millisecond

type pathed interface {
	Path() string
}

// Watch starts watching the backing file for external changes and invokes
// fn with the freshly loaded config after each debounced change. It returns
// an error when the underlying storage is not file-backed. The watcher
// stops when ctx is canceled.
//
// The parent directory is watched rather than the file itself: atomic
// saves replace the file's inode, which silently kills a file-level watch.
func (s *Store) Watch(ctx context.Context, fn func(*Config)) error {
	p, ok := s.storage.(pathed)
	if !ok {
		return fmt.Errorf("storage does not support change notifications")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(p.Path())); err != nil {
		_ = watcher.Close()
		return err
	}

	go s.watchLoop(ctx, watcher, p.Path(), fn)
	return nil
}

func (s *Store) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, path string, fn func(*Config)) {
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = watcher.Close()
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					s.notify(ctx, fn)
				})
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("config watcher error", "error", err)
		}
	}
}

func (s *Store) notify(ctx context.Context, fn func(*Config)) {
	// The debounce timer may fire after cancellation stopped the loop.
	if ctx.Err() != nil {
		return
	}
	cfg, err := s.Load(ctx)
	if err != nil {
		s.logger.Error("failed to reload config after change", "error", err)
		return
	}
	s.logger.Info("configuration reloaded")
	fn(cfg)
}
