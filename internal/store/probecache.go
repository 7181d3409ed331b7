// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/babelarr/babelarr/internal/log"
	"github.com/babelarr/babelarr/internal/mkv"
)

// StreamLister is the subset of mkv.Extractor the ProbeCache needs to fill a
// miss (spec.md §4.1 "invokes the MKV extractor, stores the result").
type StreamLister interface {
	ListStreams(ctx context.Context, path string) ([]mkv.SubtitleStream, error)
}

type streamCacheEntry struct {
	mtimeNs int64
	streams []mkv.SubtitleStream
}

type langCacheEntry struct {
	mtimeNs int64
	langs   map[string]bool
}

// ProbeCache stores ffprobe-derived stream metadata and the set of
// already-satisfied target languages per video (spec.md §3, §4.1). An
// in-memory LRU fronts a persisted SQLite table; any read whose stored mtime
// differs from the current file mtime is treated as a miss (spec.md §8.7).
type ProbeCache struct {
	db       *sql.DB
	extract  StreamLister
	mu       sync.Mutex
	streamLRU *lru.Cache[string, streamCacheEntry]
	langLRU   *lru.Cache[string, langCacheEntry]
}

// NewProbeCache opens (and migrates) the probe-cache database, fronted by an
// in-memory LRU bounded to lruSize entries per logical table.
func NewProbeCache(path string, lruSize int, extract StreamLister) (*ProbeCache, error) {
	db, err := OpenSQLite(path, DefaultSQLiteConfig())
	if err != nil {
		return nil, err
	}
	if lruSize <= 0 {
		lruSize = 512
	}
	streamLRU, err := lru.New[string, streamCacheEntry](lruSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	langLRU, err := lru.New[string, langCacheEntry](lruSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	c := &ProbeCache{db: db, extract: extract, streamLRU: streamLRU, langLRU: langLRU}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("probecache: migrate: %w", err)
	}
	return c, nil
}

func (c *ProbeCache) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS stream_cache (
		path TEXT PRIMARY KEY,
		mtime_ns INTEGER NOT NULL,
		streams_json TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS lang_cache (
		path TEXT PRIMARY KEY,
		mtime_ns INTEGER NOT NULL,
		langs_json TEXT NOT NULL
	);`
	_, err := c.db.Exec(schema)
	return err
}

// ErrFileMissing is returned by ListStreams when the video no longer exists.
var ErrFileMissing = fmt.Errorf("probecache: file missing")

// ListStreams returns the cached subtitle streams for path if the stored
// mtime matches the current file mtime (first the in-memory LRU, then the
// persisted table); otherwise it invokes the extractor, caches, and returns
// the fresh result (spec.md §4.1).
func (c *ProbeCache) ListStreams(ctx context.Context, path string, currentMtimeNs int64) ([]mkv.SubtitleStream, error) {
	c.mu.Lock()
	if entry, ok := c.streamLRU.Get(path); ok && entry.mtimeNs == currentMtimeNs {
		c.mu.Unlock()
		return entry.streams, nil
	}
	c.mu.Unlock()

	if entry, ok := c.loadStreamRow(path); ok && entry.mtimeNs == currentMtimeNs {
		c.mu.Lock()
		c.streamLRU.Add(path, entry)
		c.mu.Unlock()
		return entry.streams, nil
	}

	if _, err := os.Stat(path); err != nil {
		c.InvalidatePath(path)
		return nil, ErrFileMissing
	}

	streams, err := c.extract.ListStreams(ctx, path)
	if err != nil {
		return nil, err
	}

	entry := streamCacheEntry{mtimeNs: currentMtimeNs, streams: streams}
	c.mu.Lock()
	c.streamLRU.Add(path, entry)
	c.mu.Unlock()
	if err := c.storeStreamRow(path, entry); err != nil {
		log.WithComponent("probecache").Warn().Err(err).Str(log.FieldPath, path).
			Msg("probecache: persist stream row failed")
	}
	return streams, nil
}

func (c *ProbeCache) loadStreamRow(path string) (streamCacheEntry, bool) {
	var mtimeNs int64
	var payload string
	err := c.db.QueryRow(`SELECT mtime_ns, streams_json FROM stream_cache WHERE path = ?`, path).
		Scan(&mtimeNs, &payload)
	if err != nil {
		return streamCacheEntry{}, false
	}
	var streams []mkv.SubtitleStream
	if err := json.Unmarshal([]byte(payload), &streams); err != nil {
		// corrupt row: drop silently (spec.md §4.1)
		_, _ = c.db.Exec(`DELETE FROM stream_cache WHERE path = ?`, path)
		return streamCacheEntry{}, false
	}
	return streamCacheEntry{mtimeNs: mtimeNs, streams: streams}, true
}

func (c *ProbeCache) storeStreamRow(path string, entry streamCacheEntry) error {
	payload, err := json.Marshal(entry.streams)
	if err != nil {
		return err
	}
	_, err = c.db.Exec(`
		INSERT INTO stream_cache (path, mtime_ns, streams_json) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET mtime_ns = excluded.mtime_ns, streams_json = excluded.streams_json
	`, path, entry.mtimeNs, string(payload))
	return err
}

// GetEntry returns the cached language-completion set for path, or ok=false
// on any miss (including a stale mtime, per spec.md §8.7).
func (c *ProbeCache) GetEntry(path string, currentMtimeNs int64) (langs map[string]bool, ok bool) {
	c.mu.Lock()
	if entry, hit := c.langLRU.Get(path); hit {
		c.mu.Unlock()
		if entry.mtimeNs != currentMtimeNs {
			return nil, false
		}
		return entry.langs, true
	}
	c.mu.Unlock()

	var mtimeNs int64
	var payload string
	err := c.db.QueryRow(`SELECT mtime_ns, langs_json FROM lang_cache WHERE path = ?`, path).
		Scan(&mtimeNs, &payload)
	if err != nil {
		return nil, false
	}
	var list []string
	if err := json.Unmarshal([]byte(payload), &list); err != nil {
		_, _ = c.db.Exec(`DELETE FROM lang_cache WHERE path = ?`, path)
		return nil, false
	}
	set := make(map[string]bool, len(list))
	for _, l := range list {
		set[l] = true
	}
	c.mu.Lock()
	c.langLRU.Add(path, langCacheEntry{mtimeNs: mtimeNs, langs: set})
	c.mu.Unlock()
	if mtimeNs != currentMtimeNs {
		return nil, false
	}
	return set, true
}

// UpdateEntry records the set of target languages considered satisfied at mtimeNs.
func (c *ProbeCache) UpdateEntry(path string, mtimeNs int64, langs map[string]bool) error {
	list := make([]string, 0, len(langs))
	for l := range langs {
		list = append(list, l)
	}
	payload, err := json.Marshal(list)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.langLRU.Add(path, langCacheEntry{mtimeNs: mtimeNs, langs: langs})
	c.mu.Unlock()

	_, err = c.db.Exec(`
		INSERT INTO lang_cache (path, mtime_ns, langs_json) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET mtime_ns = excluded.mtime_ns, langs_json = excluded.langs_json
	`, path, mtimeNs, string(payload))
	return err
}

// InvalidatePath drops both in-memory entries for path without touching the
// persisted rows (used when the file is observed missing, and by DeleteEntry
// and PruneEntries). A read that observes a stale mtime does not call it; it
// reports a miss and leaves the entry for the next writer to overwrite
// (spec.md §4.1).
func (c *ProbeCache) InvalidatePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streamLRU.Remove(path)
	c.langLRU.Remove(path)
}

// DeleteEntry removes both persisted and in-memory entries for path outright
// (used when the source file has been observed missing).
func (c *ProbeCache) DeleteEntry(path string) error {
	c.InvalidatePath(path)
	if _, err := c.db.Exec(`DELETE FROM stream_cache WHERE path = ?`, path); err != nil {
		return err
	}
	_, err := c.db.Exec(`DELETE FROM lang_cache WHERE path = ?`, path)
	return err
}

// PruneEntries deletes persisted rows whose path is not in validPaths.
func (c *ProbeCache) PruneEntries(validPaths map[string]bool) error {
	for _, table := range []string{"stream_cache", "lang_cache"} {
		rows, err := c.db.Query(`SELECT path FROM ` + table) // #nosec G202 -- table name is a compile-time constant
		if err != nil {
			return err
		}
		var stale []string
		for rows.Next() {
			var p string
			if err := rows.Scan(&p); err != nil {
				rows.Close()
				return err
			}
			if !validPaths[p] {
				stale = append(stale, p)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, p := range stale {
			if _, err := c.db.Exec(fmt.Sprintf(`DELETE FROM %s WHERE path = ?`, table), p); err != nil { // #nosec G201
				return err
			}
			c.InvalidatePath(p)
		}
	}
	return nil
}

// Close closes the underlying database handle.
func (c *ProbeCache) Close() error {
	return c.db.Close()
}
