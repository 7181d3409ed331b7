// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type recordingHandler struct {
	mu       sync.Mutex
	created  []string
	modified []string
	deleted  []string
}

func (h *recordingHandler) Created(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.created = append(h.created, path)
}

func (h *recordingHandler) Modified(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.modified = append(h.modified, path)
}

func (h *recordingHandler) Deleted(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deleted = append(h.deleted, path)
}

func newTestWatcher(t *testing.T, suffix string, debounce time.Duration) (*Watcher, *recordingHandler) {
	t.Helper()
	h := &recordingHandler{}
	w, err := New(nil, suffix, false, debounce, h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.fsw.Close() })
	return w, h
}

func TestMatchesIsCaseInsensitiveSuffix(t *testing.T) {
	w, _ := newTestWatcher(t, ".mkv", time.Second)
	require.True(t, w.matches("/media/Show.MKV"))
	require.True(t, w.matches("/media/show.mkv"))
	require.False(t, w.matches("/media/show.srt"))
}

func TestMatchesCaseSensitiveSuffix(t *testing.T) {
	t.Helper()
	h := &recordingHandler{}
	w, err := New(nil, ".mkv", true, time.Second, h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.fsw.Close() })

	require.True(t, w.matches("/media/show.mkv"))
	require.False(t, w.matches("/media/Show.MKV"))
	require.False(t, w.matches("/media/show.srt"))
}

func TestSuppressedDuplicateWithinDebounceWindow(t *testing.T) {
	w, _ := newTestWatcher(t, ".mkv", 50*time.Millisecond)

	require.False(t, w.suppressedDuplicate("/a.mkv"), "first event should fire")
	require.True(t, w.suppressedDuplicate("/a.mkv"), "second event within window is suppressed")

	time.Sleep(60 * time.Millisecond)
	require.False(t, w.suppressedDuplicate("/a.mkv"), "event after window should fire again")
}

func TestWaitStableFiresOnceSizeStabilizes(t *testing.T) {
	w, _ := newTestWatcher(t, ".mkv", 10*time.Millisecond)
	path := filepath.Join(t.TempDir(), "show.mkv")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	fired := make(chan string, 1)
	w.waitStable(context.Background(), path, func(p string) { fired <- p })

	select {
	case got := <-fired:
		require.Equal(t, path, got)
	case <-time.After(time.Second):
		t.Fatal("waitStable never fired")
	}
}

func TestWaitStableAbortsIfFileRemoved(t *testing.T) {
	w, _ := newTestWatcher(t, ".mkv", 10*time.Millisecond)
	path := filepath.Join(t.TempDir(), "show.mkv")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	require.NoError(t, os.Remove(path))

	fired := make(chan string, 1)
	w.waitStable(context.Background(), path, func(p string) { fired <- p })

	select {
	case <-fired:
		t.Fatal("waitStable should not fire for a removed file")
	case <-time.After(100 * time.Millisecond):
	}
}
