// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package supervisor owns babelarr's full runtime graph (spec.md §4.7):
// configuration, both pipelines, persistence handles, the Translator,
// Tagger, ingress collaborators, and the shutdown sequence.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/babelarr/babelarr/internal/config"
	"github.com/babelarr/babelarr/internal/ingress/watch"
	"github.com/babelarr/babelarr/internal/ingress/webhook"
	"github.com/babelarr/babelarr/internal/log"
	"github.com/babelarr/babelarr/internal/mediaserver"
	"github.com/babelarr/babelarr/internal/mkv"
	"github.com/babelarr/babelarr/internal/mkvpipeline"
	"github.com/babelarr/babelarr/internal/srtpipeline"
	"github.com/babelarr/babelarr/internal/store"
	"github.com/babelarr/babelarr/internal/translator"
)

// Supervisor owns the full set of collaborators for one run of babelarr.
type Supervisor struct {
	cfg config.Config

	queueRepo  *store.QueueRepository
	workIndex  *store.WorkIndex
	probeCache *store.ProbeCache

	translatorClient *translator.Client
	media            *mediaserver.Client
	extractor        *mkv.Extractor
	tagger           *mkv.Tagger

	srt   *srtpipeline.Pipeline
	mkvwf *mkvpipeline.Workflow

	sidecarCleaner *mkvpipeline.SidecarCleaner

	srtWatcher *watch.Watcher
	mkvWatcher *watch.Watcher
	webhookSrv *webhook.Server

	// g tracks the watchers, webhook server, and periodic scanner goroutines
	// so Shutdown can join them before closing the stores they touch (spec.md
	// §4.7 step 7 "join workers, close persistence"), the way the teacher's
	// internal/daemon.App.Run uses errgroup.WithContext for its background
	// subsystems.
	g *errgroup.Group
}

// New assembles a Supervisor from already-loaded configuration. It performs
// no I/O; call Start to open stores and begin work (spec.md §4.7 lifecycle
// steps 1-2).
func New(cfg config.Config) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// Start brings up persistence, validates the Translator's language support,
// and wires every pipeline and ingress collaborator, following spec.md
// §4.7's lifecycle steps 1-5.
func (s *Supervisor) Start(ctx context.Context) error {
	logger := log.WithComponent("supervisor")

	if err := s.validateWatchRoots(); err != nil {
		return err
	}

	var err error
	s.queueRepo, err = store.NewQueueRepository(s.cfg.QueueDB)
	if err != nil {
		return fmt.Errorf("supervisor: open queue repository: %w", err)
	}
	s.workIndex, err = store.NewWorkIndex(s.cfg.WorkIndexDB)
	if err != nil {
		return fmt.Errorf("supervisor: open work index: %w", err)
	}
	s.extractor = mkv.NewExtractor("", "")
	s.probeCache, err = store.NewProbeCache(s.cfg.ProbeCacheDB, s.cfg.ProbeCacheLRUSize, s.extractor)
	if err != nil {
		return fmt.Errorf("supervisor: open probe cache: %w", err)
	}

	s.translatorClient = translator.NewClient(translator.Config{
		BaseURL:      s.cfg.LibreTranslateURL,
		RetryCount:   s.cfg.RetryCount,
		BackoffDelay: s.cfg.BackoffDelay,
	})
	if _, err := s.translatorClient.FetchLanguages(ctx); err != nil {
		logger.Warn().Err(err).Msg("supervisor: initial language fetch failed, treating every language as supported")
	}
	s.cfg.TargetLangs = filterSupportedTargets(s.cfg.TargetLangs, s.translatorClient)
	if len(s.cfg.TargetLangs) == 0 {
		return config.ErrNoTargetLanguages
	}

	s.tagger = mkv.NewTagger(s.extractor, s.translatorClient)
	s.media = mediaserver.NewClient(s.cfg.JellyfinURL, s.cfg.JellyfinToken)

	// Step 3: MKV workflow, seeded from persisted recovery state.
	s.mkvwf = mkvpipeline.New(mkvpipeline.Config{
		MKVDirs:             s.cfg.MKVDirs,
		TargetLangs:         s.cfg.TargetLangs,
		PreferredSourceLang: s.cfg.PreferredSourceLang,
		IdleTimeout:         s.cfg.IdleTimeout,
	}, s.probeCache, s.workIndex, s.extractor, s.tagger, s.translatorClient, s.media)
	if err := s.mkvwf.Recover(); err != nil {
		logger.Warn().Err(err).Msg("supervisor: mkv recovery failed")
	}

	// Step 4: SRT pipeline; workers are started lazily below.
	s.srt = srtpipeline.New(srtpipeline.Config{
		SrcExt:      s.cfg.SrcExt,
		TargetLangs: s.cfg.TargetLangs,
		IdleTimeout: s.cfg.IdleTimeout,
	}, s.queueRepo, s.translatorClient, s.media)
	if err := s.srt.Recover(); err != nil {
		logger.Warn().Err(err).Msg("supervisor: srt recovery failed")
	}

	s.mkvwf.RunWorkers(ctx, s.cfg.Workers)
	s.srt.RunWorkers(ctx, s.cfg.Workers)

	// Step 5: watchers and webhook, tracked by an errgroup so Shutdown can
	// join them before closing the stores they touch.
	var g *errgroup.Group
	g, ctx = errgroup.WithContext(ctx)
	s.g = g

	if len(s.cfg.WatchDirs) > 0 {
		s.srtWatcher, err = watch.New(s.cfg.WatchDirs, s.cfg.SrcExt, false, s.cfg.Debounce, s.srt)
		if err != nil {
			return fmt.Errorf("supervisor: start srt watcher: %w", err)
		}
		s.g.Go(func() error {
			s.srtWatcher.Run(ctx)
			return nil
		})
	}
	if len(s.cfg.MKVDirs) > 0 {
		s.mkvWatcher, err = watch.New(s.cfg.MKVDirs, ".mkv", true, s.cfg.Debounce, s.mkvwf)
		if err != nil {
			return fmt.Errorf("supervisor: start mkv watcher: %w", err)
		}
		s.g.Go(func() error {
			s.mkvWatcher.Run(ctx)
			return nil
		})
	}

	s.webhookSrv = webhook.New(webhook.Config{
		Host:    s.cfg.WebhookHost,
		Port:    s.cfg.WebhookPort,
		Token:   s.cfg.WebhookToken,
		MKVDirs: s.cfg.MKVDirs,
	}, s.mkvwf)
	s.g.Go(func() error {
		if err := s.webhookSrv.Run(); err != nil {
			logger.Error().Err(err).Msg("supervisor: webhook server failed")
			return err
		}
		return nil
	})

	s.sidecarCleaner = mkvpipeline.NewSidecarCleaner(s.cfg.MKVDirs)

	s.g.Go(func() error {
		s.periodicScan(ctx)
		return nil
	})
	s.mkvwf.Scan(ctx) // startup replay equivalent to the first periodic tick
	s.sidecarCleaner.RemoveOrphans()

	return nil
}

// periodicScan re-walks the MKV roots on a fixed interval, equivalent to the
// startup scan (spec.md §4.6 "Periodic scanner"), and sweeps orphaned
// sidecars (original_source's babelarr/sidecar_cleanup.py) once per cycle.
func (s *Supervisor) periodicScan(ctx context.Context) {
	interval := time.Duration(s.cfg.ScanIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mkvwf.Scan(ctx)
			s.sidecarCleaner.RemoveOrphans()
		}
	}
}

// Shutdown drains every collaborator in this order: stop ingress, join
// workers, close persistence. The Translator client is not closed; its
// connections are left to the process exit.
func (s *Supervisor) Shutdown(ctx context.Context) {
	logger := log.WithComponent("supervisor")

	if s.webhookSrv != nil {
		_ = s.webhookSrv.Shutdown()
	}

	if s.g != nil {
		if err := s.g.Wait(); err != nil {
			logger.Warn().Err(err).Msg("supervisor: ingress subsystem exited with error")
		}
	}

	if s.mkvwf != nil {
		s.mkvwf.Wait()
	}
	if s.srt != nil {
		s.srt.Wait()
	}

	if s.probeCache != nil {
		_ = s.probeCache.Close()
	}
	if s.workIndex != nil {
		_ = s.workIndex.Close()
	}
	if s.queueRepo != nil {
		_ = s.queueRepo.Close()
	}

	logger.Info().Msg("supervisor: shutdown complete")
}

// validateWatchRoots resolves and filters readable watch roots, failing
// fatally if neither pipeline has anything to watch (spec.md §4.7 step 1).
func (s *Supervisor) validateWatchRoots() error {
	s.cfg.WatchDirs = filterReadable(s.cfg.WatchDirs)
	s.cfg.MKVDirs = filterReadable(s.cfg.MKVDirs)
	if len(s.cfg.WatchDirs) == 0 && len(s.cfg.MKVDirs) == 0 {
		return config.ErrNoWatchRoots
	}
	return nil
}

func filterReadable(dirs []string) []string {
	var out []string
	for _, d := range dirs {
		if fi, err := os.Stat(d); err == nil && fi.IsDir() {
			out = append(out, d)
		}
	}
	return out
}

type capabilityChecker interface {
	IsTargetSupported(lang string) bool
}

// filterSupportedTargets drops configured target languages the Translator
// does not support as a destination for any source (spec.md §4.7 step 1
// "validate languages against Translator").
func filterSupportedTargets(targets []string, caps capabilityChecker) []string {
	var out []string
	for _, t := range targets {
		if caps.IsTargetSupported(t) {
			out = append(out, t)
		}
	}
	return out
}
