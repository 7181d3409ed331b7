// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mkvpipeline

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/babelarr/babelarr/internal/ignore"
	"github.com/babelarr/babelarr/internal/log"
)

// SidecarCleaner removes subtitle sidecars that no longer have a parent MKV
// file, grounded on the original implementation's
// babelarr/sidecar_cleanup.py SidecarCleaner.remove_orphans(): every *.srt
// under a configured root whose basename (with its trailing language and
// .srt suffixes stripped) has no sibling "<basename>.mkv" is deleted.
type SidecarCleaner struct {
	directories []string
}

// NewSidecarCleaner builds a SidecarCleaner over the given roots (the
// configured MKV directories).
func NewSidecarCleaner(directories []string) *SidecarCleaner {
	return &SidecarCleaner{directories: directories}
}

// RemoveOrphans walks every configured root and deletes any *.srt sidecar
// whose parent MKV no longer exists, skipping directories excluded by a
// ".babelarr_ignore" marker. It returns the number of files removed.
func (c *SidecarCleaner) RemoveOrphans() int {
	logger := log.WithComponent("mkvpipeline")
	removed := 0

	for _, root := range c.directories {
		fi, err := os.Stat(root)
		if err != nil || !fi.IsDir() {
			logger.Warn().Str(log.FieldPath, root).Msg("sidecar_cleanup: skipping missing root")
			continue
		}
		if ignore.Excluded(root, root) {
			logger.Info().Str(log.FieldPath, root).Msg("sidecar_cleanup: skipping ignored root")
			continue
		}

		_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != root && ignore.Excluded(path, root) {
					return filepath.SkipDir
				}
				return nil
			}
			if filepath.Ext(path) != ".srt" {
				return nil
			}
			if ignore.Excluded(path, root) {
				return nil
			}
			if hasParentMKV(path) {
				return nil
			}
			if err := os.Remove(path); err != nil {
				logger.Warn().Err(err).Str(log.FieldPath, path).Msg("sidecar_cleanup: remove failed")
				return nil
			}
			removed++
			logger.Info().Str(log.FieldPath, path).Msg("sidecar_cleanup: orphan removed")
			return nil
		})
	}

	logger.Info().Int("removed", removed).Msg("sidecar_cleanup: complete")
	return removed
}

// hasParentMKV strips a subtitle path's trailing ".srt" and, if present, one
// further dot-suffix, normally the language code (e.g. "movie.en.srt" ->
// "movie"; any other suffix is stripped the same way), then checks
// for a sibling "<base>.mkv". This mirrors sidecar_cleanup.py's double
// with_suffix("") strip, which handles both "movie.mkv" + "movie.en.srt" and
// bare "orphan.srt" layouts.
func hasParentMKV(srtPath string) bool {
	base := strings.TrimSuffix(srtPath, filepath.Ext(srtPath))
	base = strings.TrimSuffix(base, filepath.Ext(base))
	_, err := os.Stat(base + ".mkv")
	return err == nil
}
