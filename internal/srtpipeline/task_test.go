// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package srtpipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "/media/show.es.srt", OutputPath("/media/show.en.srt", ".en.srt", "es"))
	// Case-insensitive suffix match, stem case preserved.
	assert.Equal(t, "/media/Show.fr.srt", OutputPath("/media/Show.EN.srt", ".en.srt", "fr"))
}

func TestHasFreshSidecarAndMissingTargets(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "episode.en.srt")
	require.NoError(t, os.WriteFile(src, []byte("1\n00:00:00,000 --> 00:00:01,000\nhi\n"), 0o644))

	assert.False(t, HasFreshSidecar(src, ".en.srt", "es"))
	require.NoError(t, os.WriteFile(OutputPath(src, ".en.srt", "es"), []byte("hola"), 0o644))
	assert.True(t, HasFreshSidecar(src, ".en.srt", "es"))

	missing := MissingTargets(src, ".en.srt", []string{"es", "fr", "de"})
	assert.ElementsMatch(t, []string{"fr", "de"}, missing)
}

func TestSanitizeStripsHashOnlyLines(t *testing.T) {
	in := []byte("1\n00:00:00,000 --> 00:00:01,000\n###\nhello\n##\n")
	out := sanitize(in)
	assert.NotContains(t, string(out), "###")
	assert.Contains(t, string(out), "hello")
}

func TestSourceLangFromExt(t *testing.T) {
	assert.Equal(t, "en", sourceLangFromExt(".en.srt"))
	assert.Equal(t, "", sourceLangFromExt(".srt"))
}
