// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mkv

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"
)

// ErrTool wraps any failure from an external probe/extract/tag subprocess
// into a single kind, per spec.md §4.3 "Errors from subprocesses are wrapped
// as a single tool error kind".
var ErrTool = errors.New("mkv: external tool failed")

// Extractor enumerates and extracts subtitle streams from MKV containers by
// shelling out to ffprobe (list) and ffmpeg (extract), mirroring how the
// teacher repo wraps its own media tooling subprocesses.
type Extractor struct {
	FFprobeBin string
	FFmpegBin  string
	Timeout    time.Duration
}

// NewExtractor returns an Extractor with the given binaries, defaulting to
// "ffprobe"/"ffmpeg" on PATH and a 30s subprocess timeout.
func NewExtractor(ffprobeBin, ffmpegBin string) *Extractor {
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	return &Extractor{FFprobeBin: ffprobeBin, FFmpegBin: ffmpegBin, Timeout: 30 * time.Second}
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	Index     int               `json:"index"`
	CodecType string            `json:"codec_type"`
	CodecName string            `json:"codec_name"`
	Tags      map[string]string `json:"tags"`
	Disposition struct {
		Forced  int `json:"forced"`
		Default int `json:"default"`
	} `json:"disposition"`
}

// ListStreams invokes ffprobe and parses the subtitle streams it reports,
// assigning each a 1-based SubtitleIndex among subtitle streams only
// (spec.md §4.3).
func (e *Extractor) ListStreams(ctx context.Context, path string) ([]SubtitleStream, error) {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	args := []string{
		"-v", "error",
		"-show_entries", "stream=index,codec_type,codec_name:stream_tags:stream_disposition",
		"-of", "json",
		path,
	}
	cmd := exec.CommandContext(ctx, e.FFprobeBin, args...) // #nosec G204
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: ffprobe %s: %v: %s", ErrTool, path, err, stderr.String())
	}

	var parsed ffprobeOutput
	if err := json.Unmarshal(stdout.Bytes(), &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse ffprobe output for %s: %v", ErrTool, path, err)
	}

	var out []SubtitleStream
	subIdx := 0
	for _, s := range parsed.Streams {
		if s.CodecType != "subtitle" {
			continue
		}
		subIdx++
		stream := SubtitleStream{
			FFprobeIndex:  s.Index,
			SubtitleIndex: subIdx,
			Codec:         s.CodecName,
			Language:      s.Tags["language"],
			Title:         s.Tags["title"],
			Forced:        s.Disposition.Forced != 0,
			Default:       s.Disposition.Default != 0,
		}
		if v, err := strconv.ParseInt(s.Tags["NUMBER_OF_BYTES"], 10, 64); err == nil {
			stream.CharCount = v
		}
		if v, err := strconv.ParseInt(s.Tags["NUMBER_OF_FRAMES"], 10, 64); err == nil {
			stream.CueCount = v
		}
		out = append(out, stream)
	}
	return out, nil
}

// ExtractStream demuxes a single subtitle stream into an SRT file at dest.
func (e *Extractor) ExtractStream(ctx context.Context, path string, stream SubtitleStream, dest string) error {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	args := []string{
		"-y", "-v", "error",
		"-i", path,
		"-map", fmt.Sprintf("0:%d", stream.FFprobeIndex),
		dest,
	}
	cmd := exec.CommandContext(ctx, e.FFmpegBin, args...) // #nosec G204
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: ffmpeg extract %s stream %d: %v: %s", ErrTool, path, stream.FFprobeIndex, err, stderr.String())
	}
	return nil
}

// ExtractSample extracts a bounded SRT sample of a stream into memory, used
// for language detection (spec.md §4.3 "extract_sample").
func (e *Extractor) ExtractSample(ctx context.Context, path string, stream SubtitleStream) ([]byte, error) {
	tmp, err := os.CreateTemp("", "babelarr-sample-*.srt")
	if err != nil {
		return nil, fmt.Errorf("%w: create sample temp file: %v", ErrTool, err)
	}
	dest := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(dest)

	if err := e.ExtractStream(ctx, path, stream, dest); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(dest) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("%w: read sample: %v", ErrTool, err)
	}
	const maxSample = 4096
	if len(data) > maxSample {
		data = data[:maxSample]
	}
	return data, nil
}

// RetagStream invokes the container editor (mkvpropedit) to persist a new
// language tag on an existing stream, using the opaque track selector
// (spec.md §4.3 "invoke the external container editor").
func (e *Extractor) RetagStream(ctx context.Context, path string, stream SubtitleStream, newLangISO2 string) error {
	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	args := []string{path, "--edit", stream.TrackSelector(), "--set", "language=" + newLangISO2}
	cmd := exec.CommandContext(ctx, "mkvpropedit", args...) // #nosec G204
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: mkvpropedit retag %s: %v: %s", ErrTool, path, err, stderr.String())
	}
	return nil
}
