// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/babelarr/babelarr/internal/log"
)

// QueueRecord is a single sidecar translation task as persisted by
// QueueRepository (spec.md §3 "Queue record (sidecar)").
type QueueRecord struct {
	SourcePath string
	TargetLang string
	Priority   int
}

// QueueRepository is the durable record of pending sidecar translations,
// keyed by (source_path, target_lang). All methods are safe under
// concurrent callers (spec.md §4.1).
type QueueRepository struct {
	mu sync.Mutex
	db *sql.DB
}

// NewQueueRepository opens (and migrates) the sidecar queue database.
func NewQueueRepository(path string) (*QueueRepository, error) {
	db, err := OpenSQLite(path, DefaultSQLiteConfig())
	if err != nil {
		return nil, err
	}
	r := &QueueRepository{db: db}
	if err := r.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("queue: migrate: %w", err)
	}
	return r, nil
}

func (r *QueueRepository) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS sidecar_queue (
		source_path TEXT NOT NULL,
		target_lang TEXT NOT NULL,
		priority    INTEGER NOT NULL,
		PRIMARY KEY (source_path, target_lang)
	);`
	_, err := r.db.Exec(schema)
	return err
}

// AddResult reports what Add actually did, so callers can decide whether to
// create a new in-memory task or just lower the priority of one already
// in-flight (spec.md §8.6 priority monotonicity).
type AddResult struct {
	Inserted        bool // a brand new (source_path, target_lang) record was created
	PriorityLowered bool // an existing record's priority was lowered
}

// Add inserts a record if the key is absent. A re-add with a numerically
// lower priority overwrites the stored priority; a same-or-higher priority
// re-add is a no-op (spec.md §3/§8.6).
func (r *QueueRepository) Add(sourcePath, targetLang string, priority int) (AddResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := log.WithComponent("queue")

	tx, err := r.db.Begin()
	if err != nil {
		return AddResult{}, err
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRow(`SELECT priority FROM sidecar_queue WHERE source_path = ? AND target_lang = ?`,
		sourcePath, targetLang).Scan(&existing)

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO sidecar_queue (source_path, target_lang, priority) VALUES (?, ?, ?)`,
			sourcePath, targetLang, priority); err != nil {
			return AddResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return AddResult{}, err
		}
		return AddResult{Inserted: true}, nil
	case err != nil:
		logger.Warn().Err(err).Str(log.FieldPath, sourcePath).Str(log.FieldLang, targetLang).
			Msg("queue: add failed")
		return AddResult{}, err
	case priority < existing:
		if _, err := tx.Exec(`UPDATE sidecar_queue SET priority = ? WHERE source_path = ? AND target_lang = ?`,
			priority, sourcePath, targetLang); err != nil {
			return AddResult{}, err
		}
		if err := tx.Commit(); err != nil {
			return AddResult{}, err
		}
		return AddResult{PriorityLowered: true}, nil
	default:
		return AddResult{}, tx.Commit()
	}
}

// Remove deletes a record by key; it is a no-op if absent.
func (r *QueueRepository) Remove(sourcePath, targetLang string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.Exec(`DELETE FROM sidecar_queue WHERE source_path = ? AND target_lang = ?`,
		sourcePath, targetLang)
	return err
}

// All enumerates every persisted record, used to repopulate the in-memory
// queue on startup.
func (r *QueueRepository) All() ([]QueueRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT source_path, target_lang, priority FROM sidecar_queue`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueueRecord
	for rows.Next() {
		var rec QueueRecord
		if err := rows.Scan(&rec.SourcePath, &rec.TargetLang, &rec.Priority); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Count returns the number of persisted records.
func (r *QueueRepository) Count() (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM sidecar_queue`).Scan(&n)
	return n, err
}

// Close closes the underlying database handle.
func (r *QueueRepository) Close() error {
	return r.db.Close()
}
