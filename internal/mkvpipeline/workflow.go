// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mkvpipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/babelarr/babelarr/internal/log"
	"github.com/babelarr/babelarr/internal/mediaserver"
	"github.com/babelarr/babelarr/internal/metrics"
	"github.com/babelarr/babelarr/internal/mkv"
	"github.com/babelarr/babelarr/internal/pqueue"
	"github.com/babelarr/babelarr/internal/store"
	"github.com/babelarr/babelarr/internal/translator"
)

// pendingState tracks the in-flight/rescan bookkeeping for one video path
// (spec.md §4.5 "Workflow": "pending_paths set", "rescan intent").
type pendingState struct {
	inFlight       bool
	rescanPriority *int
}

// Config configures a Workflow.
type Config struct {
	MKVDirs             []string
	TargetLangs         []string
	PreferredSourceLang string
	IdleTimeout         time.Duration
}

// Workflow is the MKV reconciliation pipeline: a scan routine and a worker
// pool over a single priority queue of video paths (spec.md §4.5
// "Workflow").
type Workflow struct {
	mkvDirs             []string
	targetLangs         []string
	preferredSourceLang string
	idleTimeout         time.Duration

	probeCache *store.ProbeCache
	workIndex  *store.WorkIndex
	extractor  *mkv.Extractor
	tagger     *mkv.Tagger
	translator *translator.Client
	media      *mediaserver.Client

	queue *pqueue.Queue[string]

	mu      sync.Mutex
	pending map[string]*pendingState

	wg        sync.WaitGroup
	workerSeq int
}

// New constructs a Workflow over already-open stores and collaborators.
func New(cfg Config, probeCache *store.ProbeCache, workIndex *store.WorkIndex, extractor *mkv.Extractor, tagger *mkv.Tagger, t *translator.Client, media *mediaserver.Client) *Workflow {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	return &Workflow{
		mkvDirs:             cfg.MKVDirs,
		targetLangs:         cfg.TargetLangs,
		preferredSourceLang: cfg.PreferredSourceLang,
		idleTimeout:         cfg.IdleTimeout,
		probeCache:          probeCache,
		workIndex:           workIndex,
		extractor:           extractor,
		tagger:              tagger,
		translator:          t,
		media:               media,
		queue:               pqueue.New[string](),
		pending:             make(map[string]*pendingState),
	}
}

// Depth returns the current in-memory queue depth.
func (w *Workflow) Depth() int {
	return w.queue.Len()
}

// Recover repopulates the queue from WorkIndex rows left pending or
// in_progress by a previous run (spec.md §4.1 "RecoverPending", §4.7
// "startup recovery").
func (w *Workflow) Recover() error {
	items, err := w.workIndex.RecoverPending()
	if err != nil {
		return err
	}
	for _, item := range items {
		w.EnqueueTranslation(item.Path, item.Priority)
	}
	return nil
}

// EnqueueTranslation is the single funnel every ingress path uses: webhook,
// filesystem watch, periodic scan, and startup recovery all call this
// (spec.md §4.5 "Workflow"). It de-duplicates against in-flight work and
// records a rescan intent rather than queuing a duplicate entry.
func (w *Workflow) EnqueueTranslation(path string, priority int) {
	w.mu.Lock()
	state, exists := w.pending[path]
	if exists && state.inFlight {
		if state.rescanPriority == nil || priority < *state.rescanPriority {
			p := priority
			state.rescanPriority = &p
		}
		w.mu.Unlock()
		return
	}
	if exists {
		// Already queued, not yet dequeued: the call is ignored. The queued
		// entry keeps the priority it was pushed with, even when this call
		// carries a lower priority number.
		w.mu.Unlock()
		return
	}
	w.pending[path] = &pendingState{}
	w.mu.Unlock()

	if err := w.workIndex.RecordPending(path, 0, 0, priority); err != nil {
		log.WithComponent("mkvpipeline").Warn().Err(err).Str(log.FieldPath, path).
			Msg("mkvpipeline: record pending failed")
	}
	w.queue.Push(path, priority)
}

// Created implements watch.EventHandler at the default priority; the
// scanner is what actually assigns mtime-based priority, so a directly
// watched file is treated as freshly modified (spec.md §4.6 "created: ...
// then enqueue").
func (w *Workflow) Created(path string) {
	w.EnqueueTranslation(path, 0)
}

// Modified is a no-op: the MKV pipeline only reacts to discovery via the
// scanner and explicit enqueue calls, never to in-place content changes
// (spec.md §4.6 "MKV pipeline ignores modifications").
func (w *Workflow) Modified(string) {}

// Deleted implements watch.EventHandler: the work index record and any
// cached probe data are dropped, but produced sidecar output is left in
// place (spec.md §4.6 "deleted: remove corresponding queue record; do not
// remove produced output").
func (w *Workflow) Deleted(path string) {
	if err := w.workIndex.Delete(path); err != nil {
		log.WithComponent("mkvpipeline").Warn().Err(err).Str(log.FieldPath, path).
			Msg("mkvpipeline: delete work record failed")
	}
	_ = w.probeCache.DeleteEntry(path)
	w.mu.Lock()
	delete(w.pending, path)
	w.mu.Unlock()
}

// RunWorkers starts n workers draining the queue until ctx is cancelled.
func (w *Workflow) RunWorkers(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		w.workerSeq++
		go w.workerLoop(ctx, w.workerSeq)
	}
}

// Wait blocks until every started worker has exited.
func (w *Workflow) Wait() {
	w.wg.Wait()
}

func (w *Workflow) workerLoop(ctx context.Context, id int) {
	defer w.wg.Done()
	logger := log.WithComponent("mkvpipeline").With().Int("worker", id).Logger()
	metrics.WorkersActive.WithLabelValues("mkv").Inc()
	defer metrics.WorkersActive.WithLabelValues("mkv").Dec()

	for {
		if !w.translator.IsAvailable() {
			// spec.md §4.5 step 6 / §4.4 step 7 "block all workers on
			// wait_until_available()": gate every worker here, not just the
			// one that hit the transient failure.
			if err := w.translator.WaitUntilAvailable(ctx); err != nil {
				return
			}
		}

		idleCtx, cancel := context.WithTimeout(ctx, w.idleTimeout)
		path, ok := w.queue.Pop(idleCtx)
		cancel()
		if !ok {
			if ctx.Err() != nil {
				return
			}
			logger.Debug().Msg("mkvpipeline: worker idle timeout, exiting")
			return
		}
		w.handle(ctx, path)
	}
}

// handle processes one path already popped by workerLoop: it runs the
// per-video processing, updates the work index, and resolves pending state
// — including re-firing a rescan requested while the item was in flight
// (spec.md §4.5 "Workflow"). The time a path spent waiting in the queue is
// not measured.
func (w *Workflow) handle(ctx context.Context, path string) {
	ctx = log.ContextWithTaskID(ctx, uuid.NewString())
	ctx = log.ContextWithPath(ctx, path)

	w.mu.Lock()
	state := w.pending[path]
	if state == nil {
		state = &pendingState{}
		w.pending[path] = state
	}
	state.inFlight = true
	w.mu.Unlock()

	if err := w.workIndex.MarkInProgress(path); err != nil {
		log.WithComponent("mkvpipeline").Warn().Err(err).Str(log.FieldPath, path).
			Msg("mkvpipeline: mark in-progress failed")
	}

	start := time.Now()
	outcome := w.processVideo(ctx, path)
	metrics.MKVTasksTotal.WithLabelValues(string(outcome.kind)).Inc()
	metrics.QueueDepth.WithLabelValues("mkv").Set(float64(w.Depth()))
	log.FromContext(ctx, "mkvpipeline").Info().
		Dur(log.FieldDuration, time.Since(start)).Str(log.FieldOutcome, string(outcome.kind)).
		Msg("mkvpipeline: video processed")

	if err := w.workIndex.MarkFinished(path, outcome.mtimeNs, outcome.size, outcome.pending, outcome.missing); err != nil {
		log.WithComponent("mkvpipeline").Warn().Err(err).Str(log.FieldPath, path).
			Msg("mkvpipeline: mark finished failed")
	}

	w.mu.Lock()
	rescan := state.rescanPriority
	state.rescanPriority = nil
	state.inFlight = false
	if rescan == nil {
		delete(w.pending, path)
	}
	w.mu.Unlock()

	if rescan != nil {
		w.queue.Push(path, *rescan)
	}
}

type outcomeKind string

const (
	outcomeNoop      outcomeKind = "noop"
	outcomeSuccess   outcomeKind = "translated"
	outcomeMissing   outcomeKind = "missing"
	outcomeTransient outcomeKind = "requeued"
)

type videoOutcome struct {
	kind    outcomeKind
	mtimeNs int64
	size    int64
	pending bool
	missing bool
}

// processVideo runs spec.md §4.5 "Per-video processing" steps 1-8.
func (w *Workflow) processVideo(ctx context.Context, path string) videoOutcome {
	logger := log.WithComponent("mkvpipeline")

	// Step 1: current mtime.
	fi, err := os.Stat(path)
	if err != nil {
		w.probeCache.InvalidatePath(path)
		_ = w.probeCache.DeleteEntry(path)
		return videoOutcome{kind: outcomeMissing, missing: true}
	}
	mtimeNs := fi.ModTime().UnixNano()
	size := fi.Size()

	// Step 2: all sidecars already fresh.
	if allSidecarsFresh(path, mtimeNs, w.targetLangs) {
		full := make(map[string]bool, len(w.targetLangs))
		for _, l := range w.targetLangs {
			full[l] = true
		}
		_ = w.probeCache.UpdateEntry(path, mtimeNs, full)
		return videoOutcome{kind: outcomeNoop, mtimeNs: mtimeNs, size: size}
	}

	// Step 3: probe-cache completion already covers every target at this mtime.
	if langs, ok := w.probeCache.GetEntry(path, mtimeNs); ok && coversAll(langs, w.targetLangs) {
		return videoOutcome{kind: outcomeNoop, mtimeNs: mtimeNs, size: size}
	}

	// Step 4: enumerate streams, tag untagged ones.
	pending, streams, err := w.pendingTargets(ctx, path, mtimeNs)
	if err != nil {
		if errors.Is(err, store.ErrFileMissing) {
			_ = w.probeCache.DeleteEntry(path)
			return videoOutcome{kind: outcomeMissing, missing: true}
		}
		logger.Warn().Err(err).Str(log.FieldPath, path).Msg("mkvpipeline: stream enumeration failed")
		return videoOutcome{kind: outcomeTransient, mtimeNs: mtimeNs, size: size, pending: true}
	}

	// Step 5: drop stale sidecars for languages actually embedded.
	embedded := embeddedLanguages(streams)
	for lang := range embedded {
		if contains(w.targetLangs, lang) {
			_ = os.Remove(SidecarPath(path, lang))
		}
	}

	if len(pending) == 0 {
		completion := make(map[string]bool, len(w.targetLangs))
		for _, l := range w.targetLangs {
			if !contains(pending, l) {
				completion[l] = true
			}
		}
		_ = w.probeCache.UpdateEntry(path, mtimeNs, completion)
		return videoOutcome{kind: outcomeNoop, mtimeNs: mtimeNs, size: size}
	}

	// Step 6: translate each pending target, memoizing extraction per source stream.
	extracted := make(map[int][]byte)
	produced := 0
	sawTransient := false
	sawFailure := false
	completedLangs := make(map[string]bool)

	for _, target := range pending {
		src, ok := SelectSource(streams, target, w.preferredSourceLang, w.targetLangs, w.translator)
		if !ok {
			continue
		}

		content, ok := extracted[src.FFprobeIndex]
		if !ok {
			var extractErr error
			content, extractErr = w.extractFull(ctx, path, src)
			if extractErr != nil {
				logger.Warn().Err(extractErr).Str(log.FieldPath, path).Msg("mkvpipeline: extract failed")
				sawFailure = true
				continue
			}
			extracted[src.FFprobeIndex] = content
			logger.Debug().Str(log.FieldPath, path).Int("stream", src.FFprobeIndex).
				Str("size", humanize.Bytes(uint64(len(content)))).Msg("mkvpipeline: extracted subtitle stream")
		}

		srcLang := mkv.ResolvedLanguage(src)
		translated, err := w.translator.TranslateFile(ctx, content, srcLang, target)
		if err != nil {
			if errors.Is(err, translator.ErrTransient) {
				sawTransient = true
				w.translator.MarkUnavailable()
				continue
			}
			logger.Error().Err(err).Str(log.FieldPath, path).Str(log.FieldLang, target).
				Msg("mkvpipeline: translate failed")
			sawFailure = true
			continue
		}

		clean := sanitizeSRT(translated)
		outPath := SidecarPath(path, target)
		if existing, err := os.ReadFile(outPath); err == nil && bytes.Equal(existing, clean) {
			completedLangs[target] = true
			continue
		}
		if err := renameio.WriteFile(outPath, clean, 0o644); err != nil {
			logger.Error().Err(err).Str(log.FieldPath, outPath).Msg("mkvpipeline: atomic write failed")
			sawFailure = true
			continue
		}
		produced++
		completedLangs[target] = true
	}

	// Step 7: update probe cache only on clean completion; requeue as
	// pending on any transient failure.
	if !sawTransient && !sawFailure {
		for lang := range embedded {
			if contains(w.targetLangs, lang) {
				completedLangs[lang] = true
			}
		}
		_ = w.probeCache.UpdateEntry(path, mtimeNs, completedLangs)
	}

	// Step 8: refresh media server exactly once if anything was produced.
	if produced > 0 {
		w.media.NotifyPath(ctx, path)
	}

	if sawTransient {
		return videoOutcome{kind: outcomeTransient, mtimeNs: mtimeNs, size: size, pending: true}
	}
	if produced > 0 {
		return videoOutcome{kind: outcomeSuccess, mtimeNs: mtimeNs, size: size}
	}
	return videoOutcome{kind: outcomeNoop, mtimeNs: mtimeNs, size: size}
}

// extractFull demuxes a subtitle stream to a temp file and reads it back in
// full, unlike mkv.Extractor.ExtractSample's bounded sample used only for
// language detection (spec.md §4.5 step 6: "extract it once... call
// Translator" on the whole stream).
func (w *Workflow) extractFull(ctx context.Context, path string, stream mkv.SubtitleStream) ([]byte, error) {
	tmp, err := os.CreateTemp("", "babelarr-extract-*.srt")
	if err != nil {
		return nil, err
	}
	dest := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(dest)

	if err := w.extractor.ExtractStream(ctx, path, stream, dest); err != nil {
		return nil, err
	}
	return os.ReadFile(dest)
}

// pendingTargets enumerates streams via the ProbeCache, best-effort tags
// untagged ones, and returns the target languages still missing after
// accounting for embedded streams and already-fresh sidecars (spec.md §4.5
// step 4).
func (w *Workflow) pendingTargets(ctx context.Context, path string, mtimeNs int64) ([]string, []mkv.SubtitleStream, error) {
	streams, err := w.probeCache.ListStreams(ctx, path, mtimeNs)
	if err != nil {
		return nil, nil, err
	}

	results := w.tagger.TagUntagged(ctx, path, streams)
	tagged := make(map[int]string, len(results))
	for _, r := range results {
		if r.Lang != "" {
			tagged[r.Stream.SubtitleIndex] = r.Lang
		}
	}
	for i := range streams {
		if lang, ok := tagged[streams[i].SubtitleIndex]; ok {
			streams[i].Language = lang
		}
	}

	embedded := embeddedLanguages(streams)

	var pending []string
	for _, target := range w.targetLangs {
		if embedded[target] {
			continue
		}
		fi, err := os.Stat(SidecarPath(path, target))
		if err == nil && fi.ModTime().UnixNano() >= mtimeNs {
			continue
		}
		pending = append(pending, target)
	}
	return pending, streams, nil
}

func embeddedLanguages(streams []mkv.SubtitleStream) map[string]bool {
	out := make(map[string]bool, len(streams))
	for _, s := range streams {
		if lang := mkv.ResolvedLanguage(s); lang != "" {
			out[lang] = true
		}
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// sanitizeSRT strips lines consisting only of '#' characters, mirroring the
// sidecar pipeline's translator-artifact cleanup (spec.md §4.4 step 4,
// applied identically to MKV-derived output).
func sanitizeSRT(content []byte) []byte {
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
