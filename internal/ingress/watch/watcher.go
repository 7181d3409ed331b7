// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package watch implements the filesystem ingress of spec.md §4.6: a
// recursive subtree watcher per configured root that debounces create/write
// bursts before handing a stable path to the enqueue funnel, grounded on the
// teacher's fsnotify-based stability-wait helpers.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/babelarr/babelarr/internal/log"
)

// debounceCeiling bounds how long a single debounce wait may run (spec.md
// §4.6 "Abort after a 30s ceiling").
const debounceCeiling = 30 * time.Second

// EventHandler reacts to the three event kinds the watcher recognizes after
// debouncing (spec.md §4.6). A "moved" event is delivered to the handler as
// Created on the destination path.
type EventHandler interface {
	Created(path string)
	Modified(path string)
	Deleted(path string)
}

// Watcher recursively watches a set of roots for files matching a single
// suffix glob and funnels stabilized events to an EventHandler.
type Watcher struct {
	roots         []string
	suffix        string
	caseSensitive bool
	debounce      time.Duration
	handler       EventHandler

	fsw *fsnotify.Watcher

	mu     sync.Mutex
	recent map[string]time.Time
}

// New builds a Watcher over roots, matching files whose name ends in suffix.
// caseSensitive controls whether that suffix match is exact (spec.md §9's
// asymmetry: the MKV pipeline's ".mkv" check is case-sensitive, the SRT
// pipeline's source-extension check is not).
func New(roots []string, suffix string, caseSensitive bool, debounce time.Duration, handler EventHandler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		roots:         roots,
		suffix:        suffix,
		caseSensitive: caseSensitive,
		debounce:      debounce,
		handler:       handler,
		fsw:           fsw,
		recent:        make(map[string]time.Time),
	}
	for _, root := range roots {
		if err := w.addRecursive(root); err != nil {
			log.WithComponent("watch").Warn().Err(err).Str(log.FieldPath, root).
				Msg("watch: failed to add root")
		}
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Run processes events until ctx is cancelled (spec.md §5 "the watcher stops
// producing" on shutdown).
func (w *Watcher) Run(ctx context.Context) {
	logger := log.WithComponent("watch")
	for {
		select {
		case <-ctx.Done():
			_ = w.fsw.Close()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn().Err(err).Msg("watch: fsnotify error")
		}
	}
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op&fsnotify.Create == fsnotify.Create {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			// A newly created directory must be watched too (recursive subtree).
			_ = w.fsw.Add(event.Name)
			return
		}
	}

	if !w.matches(event.Name) {
		return
	}

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// spec.md §4.6 "deleted: remove corresponding queue record; do not
		// remove produced output." A rename's source half is treated the
		// same way; the destination half arrives as its own Create event.
		w.handler.Deleted(event.Name)
	case event.Op&fsnotify.Write == fsnotify.Write:
		if w.suppressedDuplicate(event.Name) {
			return
		}
		go w.waitStable(ctx, event.Name, w.handler.Modified)
	case event.Op&fsnotify.Create == fsnotify.Create:
		if w.suppressedDuplicate(event.Name) {
			return
		}
		go w.waitStable(ctx, event.Name, w.handler.Created)
	}
}

func (w *Watcher) matches(name string) bool {
	if w.caseSensitive {
		return strings.HasSuffix(name, w.suffix)
	}
	return strings.HasSuffix(strings.ToLower(name), strings.ToLower(w.suffix))
}

// suppressedDuplicate reports whether an event for path fired within the
// last debounce interval, per spec.md §4.6 "a per-path recent map suppresses
// duplicate events within one debounce interval".
func (w *Watcher) suppressedDuplicate(path string) bool {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	if last, ok := w.recent[path]; ok && now.Sub(last) < w.debounce {
		return true
	}
	w.recent[path] = now
	return false
}

// waitStable polls the file size every debounce interval until two
// consecutive samples match, then invokes fire (spec.md §4.6 "Debounce"). Past
// debounceCeiling it logs a warning and gives up without firing.
func (w *Watcher) waitStable(ctx context.Context, path string, fire func(string)) {
	deadline := time.Now().Add(debounceCeiling)
	var lastSize int64 = -1

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		fi, err := os.Stat(path)
		if err != nil {
			return // removed before it stabilized
		}
		if fi.Size() == lastSize {
			fire(path)
			return
		}
		lastSize = fi.Size()

		if time.Now().After(deadline) {
			log.WithComponent("watch").Warn().Str(log.FieldPath, path).
				Msg("watch: debounce ceiling exceeded, abandoning")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
