// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package ignore implements the ".babelarr_ignore" exclusion marker
// (spec.md §4.5, §6, §8.8): its presence in a directory excludes that
// directory and its descendants from scanning and cleanup.
package ignore

import (
	"os"
	"path/filepath"
)

// MarkerName is the literal filename that marks a directory (and its
// descendants) as excluded.
const MarkerName = ".babelarr_ignore"

// Excluded reports whether path has an ancestor directory, up to (and
// including) root, containing a MarkerName file. path may be a file or a
// directory; the walk starts at its containing directory.
func Excluded(path, root string) bool {
	dir := filepath.Dir(path)
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		dir = path
	}

	root = filepath.Clean(root)
	dir = filepath.Clean(dir)

	for {
		if _, err := os.Stat(filepath.Join(dir, MarkerName)); err == nil {
			return true
		}
		if dir == root {
			return false
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached filesystem root without hitting the scan root; stop
			// rather than looping forever.
			return false
		}
		dir = parent
	}
}
