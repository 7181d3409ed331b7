// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mkvpipeline

import (
	"sort"

	"github.com/babelarr/babelarr/internal/mkv"
)

// capabilityChecker is the subset of translator.Client the selection
// algorithm needs, declared locally so this package's exported API does not
// force importing translator's full surface for a single predicate.
type capabilityChecker interface {
	SupportsTranslation(src, dst string) bool
}

// SelectSource implements spec.md §4.5 "Source stream selection": given the
// available streams of a video and a target language, picks the best
// candidate source stream, or ok=false if none is eligible.
func SelectSource(streams []mkv.SubtitleStream, target, preferredSrc string, targetLangs []string, caps capabilityChecker) (mkv.SubtitleStream, bool) {
	byLang := make(map[string][]mkv.SubtitleStream)
	for _, s := range streams {
		lang := mkv.ResolvedLanguage(s)
		if lang == "" || lang == target {
			continue
		}
		byLang[lang] = append(byLang[lang], s)
	}
	if len(byLang) == 0 {
		return mkv.SubtitleStream{}, false
	}

	order := candidateLangOrder(preferredSrc, target, targetLangs, byLang)
	for _, lang := range order {
		if !caps.SupportsTranslation(lang, target) {
			continue
		}
		candidates := byLang[lang]
		if len(candidates) == 0 {
			continue
		}
		return bestOfLang(candidates), true
	}
	return mkv.SubtitleStream{}, false
}

// candidateLangOrder builds the language preference order of spec.md §4.5
// steps 1-3: preferred source first, then configured targets (excluding the
// one being produced) in configured order, then every remaining available
// language in sorted order.
func candidateLangOrder(preferredSrc, target string, targetLangs []string, byLang map[string][]mkv.SubtitleStream) []string {
	var order []string
	seen := make(map[string]bool)

	add := func(lang string) {
		if lang == "" || seen[lang] {
			return
		}
		if _, ok := byLang[lang]; !ok {
			return
		}
		seen[lang] = true
		order = append(order, lang)
	}

	add(preferredSrc)
	for _, lang := range targetLangs {
		if lang == target {
			continue
		}
		add(lang)
	}

	var rest []string
	for lang := range byLang {
		if !seen[lang] {
			rest = append(rest, lang)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)
	return order
}

// bestOfLang picks the maximum-metric stream among same-language candidates
// (spec.md §4.5 step 5).
func bestOfLang(candidates []mkv.SubtitleStream) mkv.SubtitleStream {
	best := candidates[0]
	bestScore := mkv.Metric(best)
	for _, c := range candidates[1:] {
		if score := mkv.Metric(c); score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}
