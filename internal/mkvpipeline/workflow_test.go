// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package mkvpipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/babelarr/babelarr/internal/mediaserver"
	"github.com/babelarr/babelarr/internal/mkv"
	"github.com/babelarr/babelarr/internal/store"
	"github.com/babelarr/babelarr/internal/translator"
)

func newTestWorkflow(t *testing.T) *Workflow {
	t.Helper()
	dir := t.TempDir()

	workIndex, err := store.NewWorkIndex(filepath.Join(dir, "work.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = workIndex.Close() })

	extractor := mkv.NewExtractor("", "")
	probeCache, err := store.NewProbeCache(filepath.Join(dir, "probe.db"), 16, extractor)
	require.NoError(t, err)
	t.Cleanup(func() { _ = probeCache.Close() })

	tagger := mkv.NewTagger(extractor, nil)
	tc := translator.NewClient(translator.Config{BaseURL: "http://localhost:0"})
	media := mediaserver.NewClient("", "")

	return New(Config{
		MKVDirs:     []string{dir},
		TargetLangs: []string{"en", "fr"},
		IdleTimeout: time.Minute,
	}, probeCache, workIndex, extractor, tagger, tc, media)
}

func TestEnqueueTranslationDedupesQueuedPath(t *testing.T) {
	wf := newTestWorkflow(t)
	wf.EnqueueTranslation("/media/show.mkv", 1)
	wf.EnqueueTranslation("/media/show.mkv", 1)
	require.Equal(t, 1, wf.Depth())
}

func TestEnqueueTranslationRecordsRescanWhileInFlight(t *testing.T) {
	wf := newTestWorkflow(t)
	wf.mu.Lock()
	wf.pending["/media/show.mkv"] = &pendingState{inFlight: true}
	wf.mu.Unlock()

	wf.EnqueueTranslation("/media/show.mkv", 0)
	require.Equal(t, 0, wf.Depth(), "in-flight path must not be re-pushed")

	wf.mu.Lock()
	state := wf.pending["/media/show.mkv"]
	wf.mu.Unlock()
	require.NotNil(t, state.rescanPriority)
	require.Equal(t, 0, *state.rescanPriority)
}

func TestEnqueueTranslationRescanKeepsLowerPriority(t *testing.T) {
	wf := newTestWorkflow(t)
	lowered := 5
	wf.mu.Lock()
	wf.pending["/media/show.mkv"] = &pendingState{inFlight: true, rescanPriority: &lowered}
	wf.mu.Unlock()

	wf.EnqueueTranslation("/media/show.mkv", 9) // higher number, should not override

	wf.mu.Lock()
	state := wf.pending["/media/show.mkv"]
	wf.mu.Unlock()
	require.Equal(t, 5, *state.rescanPriority)
}

func TestDeletedClearsPendingAndWorkIndex(t *testing.T) {
	wf := newTestWorkflow(t)
	path := filepath.Join(t.TempDir(), "show.mkv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	wf.EnqueueTranslation(path, 1)
	wf.Deleted(path)

	wf.mu.Lock()
	_, exists := wf.pending[path]
	wf.mu.Unlock()
	require.False(t, exists)

	rows, err := wf.workIndex.Count()
	require.NoError(t, err)
	require.Equal(t, 0, rows)
}

func TestModifiedIsNoop(t *testing.T) {
	wf := newTestWorkflow(t)
	wf.Modified("/media/show.mkv")
	require.Equal(t, 0, wf.Depth())
}

func TestRecoverRepopulatesQueueFromWorkIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "show.mkv")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	wf := newTestWorkflow(t)
	require.NoError(t, wf.workIndex.RecordPending(path, 0, 0, 1))

	require.NoError(t, wf.Recover())
	require.Equal(t, 1, wf.Depth())
}

func TestWorkerLoopExitsOnIdleTimeout(t *testing.T) {
	wf := newTestWorkflow(t)
	wf.idleTimeout = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wf.RunWorkers(ctx, 1)

	done := make(chan struct{})
	go func() {
		wf.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on idle timeout")
	}
}
