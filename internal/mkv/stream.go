// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package mkv provides the subtitle-stream helpers of spec.md §4.3: enumerating
// streams of an MKV container, extracting samples/streams, and normalizing the
// language tags on them.
package mkv

import (
	"regexp"
	"strings"

	"github.com/babelarr/babelarr/internal/langtag"
)

// SubtitleStream describes one subtitle stream inside an MKV container
// (spec.md §3 "SubtitleStream descriptor").
type SubtitleStream struct {
	FFprobeIndex  int     // absolute stream index reported by ffprobe
	SubtitleIndex int     // 1-based index among subtitle streams only
	Codec         string  // e.g. "subrip", "ass", "hdmv_pgs_subtitle"
	Language      string  // raw language tag, or "" / "und" if untagged
	Title         string  // stream title metadata, if any
	Forced        bool
	Default       bool
	CharCount     int64
	CueCount      int64
	DurationSecs  float64
}

// TrackSelector returns the opaque out-of-band track selector used by the
// container editor to retag this stream (spec.md §3: "track:sN").
func (s SubtitleStream) TrackSelector() string {
	return "track:s" + itoa(s.SubtitleIndex)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// textCodecs lists subtitle codecs that carry text content translatable by
// the Translator client. Image-based formats (PGS, VobSub/DVD) are excluded
// (spec.md §4.3 "a text-codec predicate").
var textCodecs = map[string]bool{
	"subrip":              true,
	"srt":                 true,
	"ass":                 true,
	"ssa":                 true,
	"webvtt":              true,
	"mov_text":            true,
	"text":                true,
}

// IsTextCodec reports whether a subtitle codec carries text content.
func IsTextCodec(codec string) bool {
	return textCodecs[strings.ToLower(strings.TrimSpace(codec))]
}

var specializedTitleRE = regexp.MustCompile(`(?i)\b(forced|sdh|hoh|hearing\s*impaired)\b`)

// IsSpecialized reports whether a stream is a forced or SDH/HoH track, which
// should be down-weighted when selecting a source (spec.md §4.5 step 5).
func IsSpecialized(s SubtitleStream) bool {
	if s.Forced {
		return true
	}
	return specializedTitleRE.MatchString(s.Title)
}

// titleLangHint maps common English title words to ISO-639-1 codes, for
// streams whose language tag is missing or "und" but whose title names the
// language (spec.md §4.3 "title-based hint function", e.g. "Spanish track").
var titleLangHint = map[string]string{
	"english": "en", "spanish": "es", "french": "fr", "german": "de",
	"italian": "it", "portuguese": "pt", "dutch": "nl", "swedish": "sv",
	"norwegian": "no", "danish": "da", "finnish": "fi", "polish": "pl",
	"russian": "ru", "ukrainian": "uk", "czech": "cs", "slovak": "sk",
	"hungarian": "hu", "romanian": "ro", "bulgarian": "bg", "greek": "el",
	"turkish": "tr", "arabic": "ar", "hebrew": "he", "hindi": "hi",
	"thai": "th", "vietnamese": "vi", "indonesian": "id", "chinese": "zh",
	"japanese": "ja", "korean": "ko", "serbian": "sr", "croatian": "hr",
}

var titleWordRE = regexp.MustCompile(`[A-Za-z]+`)

// TitleLanguageHint extracts an ISO-639-1 language code from a stream title
// like "Spanish track", or "" if none is recognized.
func TitleLanguageHint(title string) string {
	for _, word := range titleWordRE.FindAllString(strings.ToLower(title), -1) {
		if code, ok := titleLangHint[word]; ok {
			return code
		}
	}
	return ""
}

// ResolvedLanguage returns the best-known ISO-639-1 code for a stream,
// preferring an explicit (and recognized) language tag, then the title hint.
func ResolvedLanguage(s SubtitleStream) string {
	if iso1 := langtag.NormalizeLanguageCodeISO1(s.Language); iso1 != "" {
		return iso1
	}
	return TitleLanguageHint(s.Title)
}

// Metric scores a candidate source stream so the pipeline can pick the best
// one when multiple streams share a language (spec.md §4.5 step 5):
// char_count * cue_count * duration, halved for specialized tracks.
func Metric(s SubtitleStream) float64 {
	score := float64(s.CharCount) * float64(s.CueCount) * s.DurationSecs
	if IsSpecialized(s) {
		score *= 0.5
	}
	return score
}
