// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package supervisor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/babelarr/babelarr/internal/config"
)

func TestFilterReadableDropsMissingAndNonDirs(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	require.NoError(t, writeFile(file))

	got := filterReadable([]string{dir, file, filepath.Join(dir, "missing")})
	require.Equal(t, []string{dir}, got)
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o644)
}

type fakeCaps map[string]bool

func (f fakeCaps) IsTargetSupported(lang string) bool { return f[lang] }

func TestFilterSupportedTargetsDropsUnsupported(t *testing.T) {
	caps := fakeCaps{"en": true, "fr": true, "xx": false}
	got := filterSupportedTargets([]string{"en", "xx", "fr"}, caps)
	require.Equal(t, []string{"en", "fr"}, got)
}

func TestValidateWatchRootsFailsWhenBothEmpty(t *testing.T) {
	s := New(config.Config{})
	err := s.validateWatchRoots()
	require.ErrorIs(t, err, config.ErrNoWatchRoots)
}

func TestValidateWatchRootsPassesWithOneReadableRoot(t *testing.T) {
	dir := t.TempDir()
	s := New(config.Config{MKVDirs: []string{dir}})
	require.NoError(t, s.validateWatchRoots())
	require.Equal(t, []string{dir}, s.cfg.MKVDirs)
}
