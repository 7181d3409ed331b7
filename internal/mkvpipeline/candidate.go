// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package mkvpipeline implements the MKV reconciliation pipeline of
// spec.md §4.5: a directory scanner, per-video stream selection, and a
// worker pool that extracts, translates, and writes sidecar subtitles for
// embedded MKV streams.
package mkvpipeline

import (
	"os"
	"strings"
	"time"
)

// videoMtimeNs returns path's modification time in nanoseconds, or (0, err)
// if the path can't be stat'd.
func videoMtimeNs(path string) (int64, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.ModTime().UnixNano(), nil
}

// SidecarPath returns the output sidecar path for a video and target
// language: "<basename-without-.mkv>.<lang>.srt" (spec.md §4.5 step 6).
func SidecarPath(videoPath, lang string) string {
	stem := videoPath
	if strings.HasSuffix(strings.ToLower(videoPath), ".mkv") {
		stem = videoPath[:len(videoPath)-4]
	}
	return stem + "." + lang + ".srt"
}

// allSidecarsFresh reports whether every target language already has a
// sidecar whose mtime is at or after the video's mtime (spec.md §4.5
// Scanner bullet 1 and per-video processing step 2).
func allSidecarsFresh(videoPath string, videoMtimeNs int64, targetLangs []string) bool {
	for _, lang := range targetLangs {
		fi, err := os.Stat(SidecarPath(videoPath, lang))
		if err != nil {
			return false
		}
		if fi.ModTime().UnixNano() < videoMtimeNs {
			return false
		}
	}
	return true
}

// priorityForMtime assigns priority 0 to videos modified within the last 24h,
// priority 1 otherwise (spec.md §4.5 "Scanner").
func priorityForMtime(mtimeNs int64) int {
	if time.Since(time.Unix(0, mtimeNs)) <= 24*time.Hour {
		return 0
	}
	return 1
}
