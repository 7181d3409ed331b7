// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mkvpipeline

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/babelarr/babelarr/internal/ignore"
	"github.com/babelarr/babelarr/internal/log"
)

// Scan walks every configured MKV root, skipping subtrees marked with
// ignore.MarkerName, and enqueues a translation task for every *.mkv file
// that still has at least one missing target language (spec.md §4.5
// "Scanner"). Errors walking an individual root are logged and the root is
// skipped; other roots still scan.
func (w *Workflow) Scan(ctx context.Context) {
	logger := log.WithComponent("mkvpipeline")
	for _, root := range w.mkvDirs {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // best-effort: skip unreadable entries
			}
			if d.IsDir() {
				if ignore.Excluded(path, root) {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".mkv" {
				return nil
			}
			if ignore.Excluded(path, root) {
				return nil
			}
			w.considerCandidate(ctx, path)
			return nil
		})
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldPath, root).Msg("mkvpipeline: scan root failed")
		}
	}
}

// considerCandidate applies the scanner's shortcuts and, failing those, the
// full stream/tag/pending-language evaluation, emitting a task only when a
// target language is truly missing (spec.md §4.5 "Scanner").
func (w *Workflow) considerCandidate(ctx context.Context, path string) {
	logger := log.WithComponent("mkvpipeline")

	mtimeNs, err := videoMtimeNs(path)
	if err != nil {
		return
	}

	if allSidecarsFresh(path, mtimeNs, w.targetLangs) {
		return
	}
	if langs, ok := w.probeCache.GetEntry(path, mtimeNs); ok {
		if coversAll(langs, w.targetLangs) {
			return
		}
	}

	pending, _, err := w.pendingTargets(ctx, path, mtimeNs)
	if err != nil {
		logger.Debug().Err(err).Str(log.FieldPath, path).Msg("mkvpipeline: candidate evaluation failed")
		return
	}
	if len(pending) == 0 {
		return
	}

	w.EnqueueTranslation(path, priorityForMtime(mtimeNs))
}

func coversAll(langs map[string]bool, targetLangs []string) bool {
	for _, l := range targetLangs {
		if !langs[l] {
			return false
		}
	}
	return true
}
