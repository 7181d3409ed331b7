// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package langtag normalizes language codes between ISO-639-1 (two-letter,
// used for configuration and the Translator API) and ISO-639-2 (three-letter,
// used when writing language tags into MKV containers), per spec.md §4.3.
package langtag

import (
	"strings"

	"golang.org/x/text/language"
)

// iso1to2 is the static ISO-639-1 -> ISO-639-2/B mapping for the languages
// babelarr is expected to encounter in subtitle tracks and target-language
// configuration. Unknown input codes pass through unchanged (see
// NormalizeLanguageCode).
var iso1to2 = map[string]string{
	"en": "eng", "es": "spa", "fr": "fre", "de": "ger", "it": "ita",
	"pt": "por", "nl": "dut", "sv": "swe", "no": "nor", "da": "dan",
	"fi": "fin", "pl": "pol", "ru": "rus", "uk": "ukr", "cs": "cze",
	"sk": "slo", "hu": "hun", "ro": "rum", "bg": "bul", "el": "gre",
	"tr": "tur", "ar": "ara", "he": "heb", "hi": "hin", "th": "tha",
	"vi": "vie", "id": "ind", "ms": "may", "zh": "chi", "ja": "jpn",
	"ko": "kor", "sr": "srp", "hr": "hrv", "sl": "slv", "et": "est",
	"lv": "lav", "lt": "lit", "is": "ice", "ga": "gle", "cy": "wel",
	"ca": "cat", "eu": "baq", "gl": "glg", "sq": "alb", "mk": "mac",
	"fa": "per", "ur": "urd", "bn": "ben", "ta": "tam", "te": "tel",
	"mr": "mar", "gu": "guj", "kn": "kan", "ml": "mal", "pa": "pan",
	"sw": "swa", "af": "afr", "az": "aze", "ka": "geo", "hy": "arm",
	"am": "amh", "km": "khm", "lo": "lao", "my": "bur", "ne": "nep",
	"si": "sin", "tl": "tgl", "mn": "mon", "uz": "uzb", "kk": "kaz",
}

var iso2to1 map[string]string

func init() {
	iso2to1 = make(map[string]string, len(iso1to2))
	for k, v := range iso1to2 {
		iso2to1[v] = k
	}
}

// NormalizeLanguageCode converts an ISO-639-1 code to its ISO-639-2
// equivalent for writing into an MKV container tag. Codes already in
// ISO-639-2 form, or otherwise unrecognized, pass through unchanged
// (spec.md §4.3 "normalize_language_code(x) -> ISO-639-2-or-passthrough").
func NormalizeLanguageCode(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return code
	}
	if iso2, ok := iso1to2[code]; ok {
		return iso2
	}
	return code
}

// NormalizeLanguageCodeISO1 converts an ISO-639-2 (or already ISO-639-1)
// code to its ISO-639-1 equivalent, or returns empty if unrecognized
// (spec.md §4.3 "normalize_language_code_iso1(x) -> ISO-639-1-or-null").
func NormalizeLanguageCodeISO1(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if len(code) == 2 {
		if _, ok := iso1to2[code]; ok {
			return code
		}
		return ""
	}
	if iso1, ok := iso2to1[code]; ok {
		return iso1
	}
	return ""
}

// IsWellFormed reports whether code parses as a valid BCP-47 language tag,
// used to reject garbage TARGET_LANGS entries at configuration load (spec.md §3 "non-alphabetic tokens are rejected").
func IsWellFormed(code string) bool {
	_, err := language.Parse(strings.TrimSpace(code))
	return err == nil
}

// Equal reports whether two language codes (in any mix of ISO-639-1/2)
// denote the same language.
func Equal(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return true
	}
	na := NormalizeLanguageCodeISO1(a)
	nb := NormalizeLanguageCodeISO1(b)
	return na != "" && na == nb
}
