// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mkvpipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/babelarr/babelarr/internal/mkv"
)

type allowAllCaps struct{}

func (allowAllCaps) SupportsTranslation(src, dst string) bool { return true }

type denyCaps struct{ denied map[string]bool }

func (d denyCaps) SupportsTranslation(src, dst string) bool { return !d.denied[src] }

func TestSelectSourcePrefersPreferredLanguage(t *testing.T) {
	streams := []mkv.SubtitleStream{
		{FFprobeIndex: 0, SubtitleIndex: 1, Language: "eng", Codec: "subrip", CharCount: 100, CueCount: 10, DurationSecs: 60},
		{FFprobeIndex: 1, SubtitleIndex: 2, Language: "fre", Codec: "subrip", CharCount: 100, CueCount: 10, DurationSecs: 60},
	}
	src, ok := SelectSource(streams, "es", "fr", []string{"es", "de"}, allowAllCaps{})
	assert.True(t, ok)
	assert.Equal(t, 1, src.FFprobeIndex)
}

func TestSelectSourceFallsBackToTargetOrder(t *testing.T) {
	streams := []mkv.SubtitleStream{
		{FFprobeIndex: 0, SubtitleIndex: 1, Language: "eng", Codec: "subrip", CharCount: 100, CueCount: 10, DurationSecs: 60},
		{FFprobeIndex: 1, SubtitleIndex: 2, Language: "ger", Codec: "subrip", CharCount: 100, CueCount: 10, DurationSecs: 60},
	}
	// No preferred source; "de" precedes "en" in configured target order.
	src, ok := SelectSource(streams, "es", "", []string{"de", "en"}, allowAllCaps{})
	assert.True(t, ok)
	assert.Equal(t, 1, src.FFprobeIndex)
}

func TestSelectSourceSkipsUnsupportedPairs(t *testing.T) {
	streams := []mkv.SubtitleStream{
		{FFprobeIndex: 0, SubtitleIndex: 1, Language: "ger", Codec: "subrip", CharCount: 100, CueCount: 10, DurationSecs: 60},
		{FFprobeIndex: 1, SubtitleIndex: 2, Language: "eng", Codec: "subrip", CharCount: 100, CueCount: 10, DurationSecs: 60},
	}
	caps := denyCaps{denied: map[string]bool{"de": true}}
	src, ok := SelectSource(streams, "es", "", []string{"de", "en"}, caps)
	assert.True(t, ok)
	assert.Equal(t, 1, src.FFprobeIndex)
}

func TestSelectSourcePicksHigherMetricOnTie(t *testing.T) {
	streams := []mkv.SubtitleStream{
		{FFprobeIndex: 0, SubtitleIndex: 1, Language: "eng", Codec: "subrip", CharCount: 100, CueCount: 10, DurationSecs: 60},
		{FFprobeIndex: 1, SubtitleIndex: 2, Language: "eng", Codec: "subrip", CharCount: 900, CueCount: 10, DurationSecs: 60},
	}
	src, ok := SelectSource(streams, "es", "en", nil, allowAllCaps{})
	assert.True(t, ok)
	assert.Equal(t, 1, src.FFprobeIndex)
}

func TestSelectSourceNoCandidates(t *testing.T) {
	_, ok := SelectSource(nil, "es", "", nil, allowAllCaps{})
	assert.False(t, ok)
}
