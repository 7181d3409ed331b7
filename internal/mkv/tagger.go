// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mkv

import (
	"context"

	"github.com/babelarr/babelarr/internal/langtag"
	"github.com/babelarr/babelarr/internal/log"
)

// LanguageDetector is the subset of the Translator client the Tagger needs.
// Declared locally so this package never imports the translator package
// (spec.md §4.3 "Combines Extractor + Translator").
type LanguageDetector interface {
	DetectLanguage(ctx context.Context, sample []byte, minConfidence float64) (lang string, confidence float64, ok bool, err error)
}

// Tagger assigns a language code to an untagged subtitle stream by sampling
// it and asking the Translator to detect the language, retagging the
// container only when the detected code differs from what's stored
// (spec.md §4.3).
type Tagger struct {
	Extractor     *Extractor
	Detector      LanguageDetector
	MinConfidence float64
}

// NewTagger returns a Tagger with the spec's default confidence floor.
func NewTagger(extractor *Extractor, detector LanguageDetector) *Tagger {
	return &Tagger{Extractor: extractor, Detector: detector, MinConfidence: 0.5}
}

// TagResult describes the outcome of tagging one stream.
type TagResult struct {
	Stream  SubtitleStream
	Skipped bool   // codec wasn't text, nothing to do
	Tagged  bool   // the container was retagged
	Lang    string // detected ISO-639-1 code, if any
}

// Tag inspects a single stream and retags it if detection disagrees with the
// stored language. Failures are reported but never fatal to the caller
// (spec.md §4.3 "Tagging failures are reported but never fatal").
func (t *Tagger) Tag(ctx context.Context, path string, stream SubtitleStream) TagResult {
	logger := log.FromContext(ctx, "tagger")

	if !IsTextCodec(stream.Codec) {
		return TagResult{Stream: stream, Skipped: true}
	}

	sample, err := t.Extractor.ExtractSample(ctx, path, stream)
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldPath, path).Int("stream", stream.SubtitleIndex).
			Msg("tagger: sample extraction failed")
		return TagResult{Stream: stream}
	}

	lang, confidence, ok, err := t.Detector.DetectLanguage(ctx, sample, t.MinConfidence)
	if err != nil || !ok {
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldPath, path).Msg("tagger: detection failed")
		}
		return TagResult{Stream: stream}
	}

	current := langtag.NormalizeLanguageCodeISO1(stream.Language)
	if current == lang {
		return TagResult{Stream: stream, Lang: lang}
	}

	iso2 := langtag.NormalizeLanguageCode(lang)
	if err := t.Extractor.RetagStream(ctx, path, stream, iso2); err != nil {
		logger.Warn().Err(err).Str(log.FieldPath, path).Float64("confidence", confidence).
			Msg("tagger: retag failed")
		return TagResult{Stream: stream, Lang: lang}
	}

	logger.Info().Str(log.FieldPath, path).Int("stream", stream.SubtitleIndex).
		Str("lang", lang).Float64("confidence", confidence).Msg("tagger: retagged stream")
	return TagResult{Stream: stream, Tagged: true, Lang: lang}
}

// TagUntagged runs Tag on every stream whose resolved language is unknown.
func (t *Tagger) TagUntagged(ctx context.Context, path string, streams []SubtitleStream) []TagResult {
	var out []TagResult
	for _, s := range streams {
		if ResolvedLanguage(s) != "" {
			continue
		}
		out = append(out, t.Tag(ctx, path, s))
	}
	return out
}
