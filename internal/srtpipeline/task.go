// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package srtpipeline implements the sidecar SRT translation pipeline:
// enqueue policy, priority queue, and worker pool of spec.md §4.4.
package srtpipeline

import (
	"fmt"
	"os"
	"strings"
)

// Task is one (source path, target language) sidecar translation job.
type Task struct {
	SourcePath string
	TargetLang string
	Priority   int
}

// OutputPath returns the sidecar path for a given source path and target
// language: the configured source extension is replaced by ".<lang>.srt"
// (spec.md §4.4 "Output naming"). The stem's case is preserved; only the
// suffix match itself is case-insensitive.
func OutputPath(sourcePath, srcExt, targetLang string) string {
	stem := sourcePath
	if len(sourcePath) >= len(srcExt) && strings.EqualFold(sourcePath[len(sourcePath)-len(srcExt):], srcExt) {
		stem = sourcePath[:len(sourcePath)-len(srcExt)]
	}
	return fmt.Sprintf("%s.%s.srt", stem, targetLang)
}

// HasFreshSidecar reports whether the output sidecar for (sourcePath,
// targetLang) exists. Freshness-by-mtime is not part of the SRT pipeline's
// own gate (only the MKV pipeline compares mtimes); existence is sufficient
// here because a sidecar source file, once translated, never changes content
// without changing path (spec.md §4.4 "Enqueue policy").
func HasFreshSidecar(sourcePath, srcExt, targetLang string) bool {
	_, err := os.Stat(OutputPath(sourcePath, srcExt, targetLang))
	return err == nil
}

// MissingTargets returns the subset of targetLangs for which sourcePath has
// no sidecar output yet.
func MissingTargets(sourcePath, srcExt string, targetLangs []string) []string {
	var missing []string
	for _, lang := range targetLangs {
		if !HasFreshSidecar(sourcePath, srcExt, lang) {
			missing = append(missing, lang)
		}
	}
	return missing
}

// sanitize strips lines that consist only of '#' characters, a known
// translator artifact for blank/unsupported cues (spec.md §4.4 step 4).
func sanitize(content []byte) []byte {
	lines := strings.Split(string(content), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\r")
		if trimmed != "" && strings.Trim(trimmed, "#") == "" {
			continue
		}
		out = append(out, line)
	}
	return []byte(strings.Join(out, "\n"))
}
