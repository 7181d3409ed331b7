// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package srtpipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"

	"github.com/babelarr/babelarr/internal/log"
	"github.com/babelarr/babelarr/internal/mediaserver"
	"github.com/babelarr/babelarr/internal/metrics"
	"github.com/babelarr/babelarr/internal/pqueue"
	"github.com/babelarr/babelarr/internal/store"
	"github.com/babelarr/babelarr/internal/translator"
)

// key identifies one sidecar task for dedup purposes.
type key struct {
	path string
	lang string
}

// Pipeline owns the in-memory priority queue, the persisted QueueRepository,
// and the worker pool that drains it (spec.md §4.4).
type Pipeline struct {
	repo       *store.QueueRepository
	translator *translator.Client
	media      *mediaserver.Client
	srcExt     string
	targetLangs []string
	idleTimeout time.Duration

	queue *pqueue.Queue[Task]

	mu       sync.Mutex
	priority map[key]int // authoritative current priority per key; absent = not queued

	wg        sync.WaitGroup
	workerSeq int
}

// Config configures a Pipeline.
type Config struct {
	SrcExt      string
	TargetLangs []string
	IdleTimeout time.Duration
}

// New constructs a Pipeline over an already-open QueueRepository.
func New(cfg Config, repo *store.QueueRepository, t *translator.Client, media *mediaserver.Client) *Pipeline {
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	return &Pipeline{
		repo:        repo,
		translator:  t,
		media:       media,
		srcExt:      cfg.SrcExt,
		targetLangs: cfg.TargetLangs,
		idleTimeout: cfg.IdleTimeout,
		queue:       pqueue.New[Task](),
		priority:    make(map[key]int),
	}
}

// Created implements watch.EventHandler: a newly stabilized source file is
// enqueued at normal priority (spec.md §4.6 "created: ... then enqueue").
func (p *Pipeline) Created(path string) {
	p.Enqueue(path, p.targetLangs, 1)
}

// Modified implements watch.EventHandler: existing sidecar outputs are
// removed (the source content changed, so prior translations are stale)
// before the path is re-enqueued (spec.md §4.6 "modified: delete existing
// sidecar outputs for this source, debounce, then enqueue").
func (p *Pipeline) Modified(path string) {
	logger := log.WithComponent("srtpipeline")
	for _, lang := range p.targetLangs {
		out := OutputPath(path, p.srcExt, lang)
		if err := os.Remove(out); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str(log.FieldPath, out).Msg("srtpipeline: remove stale sidecar failed")
		}
	}
	p.Enqueue(path, p.targetLangs, 1)
}

// Deleted implements watch.EventHandler: the corresponding queue records are
// removed, but any already-produced sidecar output is left in place
// (spec.md §4.6 "deleted: remove corresponding queue record; do not remove
// produced output").
func (p *Pipeline) Deleted(path string) {
	for _, lang := range p.targetLangs {
		_ = p.repo.Remove(path, lang)
		p.mu.Lock()
		delete(p.priority, key{path: path, lang: lang})
		p.mu.Unlock()
	}
}

// Recover repopulates the in-memory queue from persisted state, used on
// startup (spec.md §4.7 "startup recovery").
func (p *Pipeline) Recover() error {
	records, err := p.repo.All()
	if err != nil {
		return fmt.Errorf("srtpipeline: recover: %w", err)
	}
	for _, rec := range records {
		p.enqueueMemory(rec.SourcePath, rec.TargetLang, rec.Priority)
	}
	return nil
}

// Enqueue applies the enqueue policy for a candidate source path (spec.md
// §4.4 "Enqueue policy"): the path must exist, be a regular file, and match
// the configured source extension; each configured target language missing a
// sidecar becomes its own queue record.
func (p *Pipeline) Enqueue(path string, targetLangs []string, priority int) {
	logger := log.WithComponent("srtpipeline")

	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return
	}
	if !strings.EqualFold(path[max(0, len(path)-len(p.srcExt)):], p.srcExt) {
		return
	}

	for _, lang := range MissingTargets(path, p.srcExt, targetLangs) {
		result, err := p.repo.Add(path, lang, priority)
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldPath, path).Str(log.FieldLang, lang).
				Msg("srtpipeline: enqueue failed")
			continue
		}
		switch {
		case result.Inserted:
			p.enqueueMemory(path, lang, priority)
		case result.PriorityLowered:
			p.enqueueMemory(path, lang, priority)
		}
	}
}

// enqueueMemory pushes (or re-prioritizes) a key in the in-memory queue. A
// lower priority number always wins; re-queuing at a higher or equal
// priority while already queued is a no-op (spec.md §8.6 monotonicity).
func (p *Pipeline) enqueueMemory(path, lang string, priority int) {
	k := key{path: path, lang: lang}

	p.mu.Lock()
	if existing, ok := p.priority[k]; ok && priority >= existing {
		p.mu.Unlock()
		return
	}
	p.priority[k] = priority
	p.mu.Unlock()

	p.queue.Push(Task{SourcePath: path, TargetLang: lang, Priority: priority}, priority)
}

// Depth returns the current in-memory queue depth.
func (p *Pipeline) Depth() int {
	return p.queue.Len()
}

// RunWorkers starts n workers that drain the queue until ctx is cancelled.
func (p *Pipeline) RunWorkers(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		p.workerSeq++
		go p.workerLoop(ctx, p.workerSeq)
	}
}

// Wait blocks until every started worker has exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) workerLoop(ctx context.Context, id int) {
	defer p.wg.Done()
	logger := log.WithComponent("srtpipeline").With().Int("worker", id).Logger()
	metrics.WorkersActive.WithLabelValues("srt").Inc()
	defer metrics.WorkersActive.WithLabelValues("srt").Dec()

	for {
		if !p.translator.IsAvailable() {
			// spec.md §4.4 step 7 "block all workers on wait_until_available()":
			// every worker gates here before popping a new task, not just the
			// one that hit the transient failure.
			if err := p.translator.WaitUntilAvailable(ctx); err != nil {
				return
			}
		}

		idleCtx, cancel := context.WithTimeout(ctx, p.idleTimeout)
		task, ok := p.queue.Pop(idleCtx)
		cancel()
		if !ok {
			if ctx.Err() != nil {
				return
			}
			// Idle timeout elapsed with no work (spec.md §4.4 "Idle timeout");
			// the Supervisor spins workers back up lazily on next enqueue.
			logger.Debug().Msg("srtpipeline: worker idle timeout, exiting")
			return
		}
		p.process(ctx, task)
	}
}

// process runs the per-task worker algorithm of spec.md §4.4 steps 1-8.
func (p *Pipeline) process(ctx context.Context, task Task) {
	start := time.Now()
	ctx = log.ContextWithTaskID(ctx, uuid.NewString())
	ctx = log.ContextWithPath(ctx, task.SourcePath)
	ctx = log.ContextWithLang(ctx, task.TargetLang)
	logger := log.FromContext(ctx, "srtpipeline")
	k := key{path: task.SourcePath, lang: task.TargetLang}

	clearPending := func() {
		p.mu.Lock()
		delete(p.priority, k)
		p.mu.Unlock()
	}

	// A copy pushed before its key was re-prioritized (or removed) is stale.
	p.mu.Lock()
	current, queued := p.priority[k]
	p.mu.Unlock()
	if !queued || current != task.Priority {
		return
	}

	// Step 1: source still present?
	content, err := os.ReadFile(task.SourcePath)
	if err != nil {
		logger.Info().Str(log.FieldPath, task.SourcePath).Str(log.FieldLang, task.TargetLang).
			Str(log.FieldOutcome, "skipped").Msg("srtpipeline: source missing, dropping task")
		metrics.SRTTasksTotal.WithLabelValues("skipped").Inc()
		_ = p.repo.Remove(task.SourcePath, task.TargetLang)
		clearPending()
		return
	}

	// Determine source language from the configured extension, e.g. ".en.srt" -> "en".
	srcLang := sourceLangFromExt(p.srcExt)

	// Step 2: translate.
	translated, err := p.translator.TranslateFile(ctx, content, srcLang, task.TargetLang)
	if err != nil {
		switch {
		case errors.Is(err, translator.ErrTransient):
			// Step 7: transient failure. Mark unavailable, wait, requeue at
			// original priority.
			logger.Warn().Err(err).Str(log.FieldPath, task.SourcePath).Str(log.FieldLang, task.TargetLang).
				Msg("srtpipeline: transient translate failure, requeuing")
			p.translator.MarkUnavailable()
			metrics.SRTTasksTotal.WithLabelValues("requeued").Inc()
			// Every workerLoop iteration gates on WaitUntilAvailable before its
			// next pop, so the task can go straight back onto the queue here.
			// The key is cleared first so enqueueMemory does not treat the
			// task as still queued.
			clearPending()
			p.enqueueMemory(task.SourcePath, task.TargetLang, task.Priority)
			return
		default:
			// Step 8: any other failure, drop.
			logger.Error().Err(err).Str(log.FieldPath, task.SourcePath).Str(log.FieldLang, task.TargetLang).
				Str(log.FieldOutcome, "failed").Msg("srtpipeline: translate failed, dropping task")
			metrics.SRTTasksTotal.WithLabelValues("failed").Inc()
			_ = p.repo.Remove(task.SourcePath, task.TargetLang)
			clearPending()
			return
		}
	}

	// Step 3: post-translation existence re-check.
	if _, err := os.Stat(task.SourcePath); err != nil {
		logger.Info().Str(log.FieldPath, task.SourcePath).Str(log.FieldLang, task.TargetLang).
			Str(log.FieldOutcome, "skipped").Msg("srtpipeline: source vanished mid-flight, dropping output")
		metrics.SRTTasksTotal.WithLabelValues("skipped").Inc()
		_ = p.repo.Remove(task.SourcePath, task.TargetLang)
		clearPending()
		return
	}

	// Step 4: sanitize.
	clean := sanitize(translated)

	// Step 5: atomic write.
	outPath := OutputPath(task.SourcePath, p.srcExt, task.TargetLang)
	if err := renameio.WriteFile(outPath, clean, 0o644); err != nil {
		logger.Error().Err(err).Str(log.FieldPath, outPath).Str(log.FieldOutcome, "failed").
			Msg("srtpipeline: atomic write failed, dropping task")
		metrics.SRTTasksTotal.WithLabelValues("failed").Inc()
		_ = p.repo.Remove(task.SourcePath, task.TargetLang)
		clearPending()
		return
	}

	// Step 6: success bookkeeping.
	_ = p.repo.Remove(task.SourcePath, task.TargetLang)
	clearPending()
	p.media.NotifyPath(ctx, outPath)

	duration := time.Since(start)
	metrics.SRTTasksTotal.WithLabelValues("translated").Inc()
	metrics.TranslateDuration.WithLabelValues(task.TargetLang).Observe(duration.Seconds())
	metrics.QueueDepth.WithLabelValues("srt").Set(float64(p.Depth()))
	logger.Info().Str(log.FieldPath, outPath).Str(log.FieldLang, task.TargetLang).
		Dur(log.FieldDuration, duration).Str(log.FieldQueue, "srt").Int("depth", p.Depth()).
		Str(log.FieldOutcome, "translated").Msg("srtpipeline: sidecar translated")
}

// sourceLangFromExt extracts the language code from a source extension of
// the form ".en.srt"; returns "" if the extension carries no language
// segment (spec.md §3 "source extension, e.g. .en.srt").
func sourceLangFromExt(srcExt string) string {
	parts := strings.Split(strings.Trim(srcExt, "."), ".")
	if len(parts) >= 2 {
		return parts[0]
	}
	return ""
}
