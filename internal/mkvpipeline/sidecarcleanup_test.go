// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mkvpipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRemoveOrphansDeletesSidecarWithNoParentMKV(t *testing.T) {
	dir := t.TempDir()
	orphan := filepath.Join(dir, "movie.en.srt")
	require.NoError(t, os.WriteFile(orphan, []byte("subtitle"), 0o644))

	c := NewSidecarCleaner([]string{dir})
	assert.Equal(t, 1, c.RemoveOrphans())
	_, err := os.Stat(orphan)
	assert.True(t, os.IsNotExist(err))
}

func TestRemoveOrphansKeepsSidecarWithParentMKV(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "movie.mkv"), []byte("video"), 0o644))
	sidecar := filepath.Join(dir, "movie.es.srt")
	require.NoError(t, os.WriteFile(sidecar, []byte("subtitle"), 0o644))

	c := NewSidecarCleaner([]string{dir})
	assert.Equal(t, 0, c.RemoveOrphans())
	_, err := os.Stat(sidecar)
	assert.NoError(t, err)
}

func TestRemoveOrphansRespectsIgnoreMarker(t *testing.T) {
	dir := t.TempDir()
	ignoredDir := filepath.Join(dir, "ignored")
	require.NoError(t, os.MkdirAll(ignoredDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(ignoredDir, ".babelarr_ignore"), nil, 0o644))
	ignoredOrphan := filepath.Join(ignoredDir, "show.en.srt")
	require.NoError(t, os.WriteFile(ignoredOrphan, []byte("subtitle"), 0o644))

	activeOrphan := filepath.Join(dir, "orphan.srt")
	require.NoError(t, os.WriteFile(activeOrphan, []byte("subtitle"), 0o644))

	c := NewSidecarCleaner([]string{dir})
	assert.Equal(t, 1, c.RemoveOrphans())
	_, err := os.Stat(activeOrphan)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(ignoredOrphan)
	assert.NoError(t, err)
}

func TestHasParentMKVHandlesBareSRT(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "orphan.mkv"), []byte("video"), 0o644))
	assert.True(t, hasParentMKV(filepath.Join(dir, "orphan.srt")))
	assert.False(t, hasParentMKV(filepath.Join(dir, "missing.srt")))
}
