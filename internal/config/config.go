// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads babelarr's environment-variable configuration, following
// the teacher's parse-and-log-the-source idiom (see env.go) rather than a
// generic flags/viper layer.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/babelarr/babelarr/internal/langtag"
)

// ErrNoTargetLanguages is returned when no target languages remain after validation.
var ErrNoTargetLanguages = errors.New("config: no valid target languages configured")

// ErrNoWatchRoots is returned when neither SRT nor MKV roots resolve to anything readable.
var ErrNoWatchRoots = errors.New("config: no readable watch roots configured")

// Config is the fully resolved, validated runtime configuration for babelarr.
type Config struct {
	WatchDirs []string // SRT input roots
	MKVDirs   []string // MKV input roots

	TargetLangs []string // deduplicated, lowercase ISO-639-1 codes

	SrcExt string // input suffix for the SRT pipeline, e.g. ".en.srt"

	LibreTranslateURL string

	Workers int // worker cap, clamped to [1,10]

	QueueDB      string // sidecar QueueRepository database path
	WorkIndexDB  string // MKV WorkIndex database path
	ProbeCacheDB string // ProbeCache database path

	RetryCount   int
	BackoffDelay time.Duration

	CPUCores int // used only to derive Workers when WORKERS is unset

	Debounce            time.Duration
	ScanIntervalMinutes int
	IdleTimeout         time.Duration

	PreferredSourceLang string

	JellyfinURL   string
	JellyfinToken string

	WebhookHost  string
	WebhookPort  int
	WebhookToken string

	LogLevel string
	LogFile  string

	ProbeCacheLRUSize int
}

// Load reads and validates configuration from the process environment.
func Load() (Config, error) {
	cfg := Config{
		WatchDirs:           ParseStringList("WATCH_DIRS", ":", nil),
		MKVDirs:             ParseStringList("MKV_DIRS", ":", nil),
		SrcExt:              ParseString("SRC_EXT", ".en.srt"),
		LibreTranslateURL:   ParseString("LIBRETRANSLATE_URL", "http://localhost:5000"),
		QueueDB:             ParseString("QUEUE_DB", "/data/queue.db"),
		RetryCount:          ParseInt("RETRY_COUNT", 5),
		BackoffDelay:        ParseDuration("BACKOFF_DELAY", 2*time.Second),
		CPUCores:            ParseInt("CPU_CORES", runtime.NumCPU()),
		Debounce:            ParseDuration("DEBOUNCE", 2*time.Second),
		ScanIntervalMinutes: ParseInt("SCAN_INTERVAL_MINUTES", 60),
		IdleTimeout:         ParseDuration("IDLE_TIMEOUT", 5*time.Minute),
		PreferredSourceLang: strings.ToLower(strings.TrimSpace(ParseString("PREFERRED_SOURCE_LANG", ""))),
		JellyfinURL:         ParseString("JELLYFIN_URL", ""),
		JellyfinToken:       ParseString("JELLYFIN_TOKEN", ""),
		WebhookHost:         ParseString("WEBHOOK_HOST", "0.0.0.0"),
		WebhookPort:         ParseInt("WEBHOOK_PORT", 9119),
		WebhookToken:        ParseString("WEBHOOK_TOKEN", ""),
		LogLevel:            ParseString("LOG_LEVEL", "info"),
		LogFile:             ParseString("LOG_FILE", ""),
		ProbeCacheLRUSize:   ParseInt("PROBE_CACHE_LRU_SIZE", 512),
	}

	cfg.TargetLangs = normalizeTargetLangs(ParseStringList("TARGET_LANGS", ",", nil))

	workers := ParseInt("WORKERS", 0)
	if workers <= 0 {
		workers = clamp(cfg.CPUCores/4, 1, 8)
	}
	cfg.Workers = clamp(workers, 1, 10)

	// Derive sibling database paths from QUEUE_DB's directory; the three
	// stores are distinct logical concerns (spec.md §4.1) kept in distinct
	// files.
	cfg.WorkIndexDB = deriveSiblingDB(cfg.QueueDB, "workindex.db")
	cfg.ProbeCacheDB = deriveSiblingDB(cfg.QueueDB, "probecache.db")

	if len(cfg.TargetLangs) == 0 {
		return cfg, ErrNoTargetLanguages
	}

	return cfg, nil
}

// normalizeTargetLangs lowercases, deduplicates, and rejects non-alphabetic
// or malformed BCP-47 tokens, per spec.md §3 ("Duplicates and non-alphabetic
// tokens are rejected at configuration load").
func normalizeTargetLangs(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || !isAlpha(v) || !langtag.IsWellFormed(v) {
			continue
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func isAlpha(s string) bool {
	for _, r := range s {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func deriveSiblingDB(queueDB, filename string) string {
	idx := strings.LastIndexByte(queueDB, '/')
	if idx < 0 {
		return filename
	}
	return fmt.Sprintf("%s/%s", queueDB[:idx], filename)
}
