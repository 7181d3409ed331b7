// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mkvpipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSidecarPath(t *testing.T) {
	assert.Equal(t, "/media/Show.S01E01.es.srt", SidecarPath("/media/Show.S01E01.mkv", "es"))
}

func TestAllSidecarsFresh(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "ep.mkv")
	require.NoError(t, os.WriteFile(video, []byte("x"), 0o644))
	vfi, err := os.Stat(video)
	require.NoError(t, err)
	videoMtime := vfi.ModTime().UnixNano()

	assert.False(t, allSidecarsFresh(video, videoMtime, []string{"es"}))

	later := vfi.ModTime().Add(time.Second)
	sidecar := SidecarPath(video, "es")
	require.NoError(t, os.WriteFile(sidecar, []byte("hola"), 0o644))
	require.NoError(t, os.Chtimes(sidecar, later, later))

	assert.True(t, allSidecarsFresh(video, videoMtime, []string{"es"}))
}

func TestPriorityForMtime(t *testing.T) {
	assert.Equal(t, 0, priorityForMtime(time.Now().UnixNano()))
	assert.Equal(t, 1, priorityForMtime(time.Now().Add(-48*time.Hour).UnixNano()))
}
