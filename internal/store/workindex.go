// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package store

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
)

// WorkStatus is the state of an MKV work record (spec.md §3).
type WorkStatus string

const (
	StatusPending    WorkStatus = "pending"
	StatusInProgress WorkStatus = "in_progress"
)

// WorkRecord is a persisted MKV work item.
type WorkRecord struct {
	Path     string
	MtimeNs  int64
	Size     int64
	Status   WorkStatus
	Priority int
}

// WorkIndex tracks MKV videos that still need reconciliation, keyed by path
// (spec.md §3 "MKV work record", §4.1 "WorkIndex").
type WorkIndex struct {
	mu sync.Mutex
	db *sql.DB
}

// NewWorkIndex opens (and migrates) the MKV work-index database.
func NewWorkIndex(path string) (*WorkIndex, error) {
	db, err := OpenSQLite(path, DefaultSQLiteConfig())
	if err != nil {
		return nil, err
	}
	w := &WorkIndex{db: db}
	if err := w.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("workindex: migrate: %w", err)
	}
	return w, nil
}

func (w *WorkIndex) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS mkv_work (
		path     TEXT PRIMARY KEY,
		mtime_ns INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL,
		status   TEXT NOT NULL,
		priority INTEGER NOT NULL
	);`
	_, err := w.db.Exec(schema)
	return err
}

// RecordPending upserts a pending work record. If an identical row already
// exists (same mtime/size, status pending, same-or-lower priority) this is a
// no-op; otherwise the row is overwritten with status=pending and
// priority = min(existing, new) (spec.md §4.1).
func (w *WorkIndex) RecordPending(path string, mtimeNs, size int64, priority int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx, err := w.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var existingMtime, existingSize int64
	var existingStatus string
	var existingPriority int
	err = tx.QueryRow(`SELECT mtime_ns, size_bytes, status, priority FROM mkv_work WHERE path = ?`, path).
		Scan(&existingMtime, &existingSize, &existingStatus, &existingPriority)

	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`INSERT INTO mkv_work (path, mtime_ns, size_bytes, status, priority) VALUES (?, ?, ?, ?, ?)`,
			path, mtimeNs, size, string(StatusPending), priority); err != nil {
			return err
		}
		return tx.Commit()
	case err != nil:
		return err
	}

	identical := existingMtime == mtimeNs && existingSize == size &&
		existingStatus == string(StatusPending) && existingPriority <= priority
	if identical {
		return tx.Commit()
	}

	newPriority := priority
	if existingPriority < priority {
		newPriority = existingPriority
	}
	if _, err := tx.Exec(`UPDATE mkv_work SET mtime_ns = ?, size_bytes = ?, status = ?, priority = ? WHERE path = ?`,
		mtimeNs, size, string(StatusPending), newPriority, path); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkInProgress transitions a record to in_progress.
func (w *WorkIndex) MarkInProgress(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.db.Exec(`UPDATE mkv_work SET status = ? WHERE path = ?`, string(StatusInProgress), path)
	return err
}

// MarkFinished resolves a work record after a processing attempt. If missing,
// the row is deleted outright. Else if pending, it's kept (optionally with a
// refreshed mtime/size) so the item is retried; otherwise it is deleted
// (spec.md §4.1).
func (w *WorkIndex) MarkFinished(path string, mtimeNs, size int64, pending, missing bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if missing {
		_, err := w.db.Exec(`DELETE FROM mkv_work WHERE path = ?`, path)
		return err
	}
	if pending {
		_, err := w.db.Exec(`UPDATE mkv_work SET status = ?, mtime_ns = ?, size_bytes = ? WHERE path = ?`,
			string(StatusPending), mtimeNs, size, path)
		return err
	}
	_, err := w.db.Exec(`DELETE FROM mkv_work WHERE path = ?`, path)
	return err
}

// PendingPath is a recovered work item handed back to the caller to re-enqueue.
type PendingPath struct {
	Path     string
	Priority int
}

// RecoverPending returns every row with status pending or in_progress,
// demoting in_progress to pending in place (spec.md §4.1, §8.5). Rows whose
// path no longer exists on disk are deleted and omitted.
func (w *WorkIndex) RecoverPending() ([]PendingPath, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.db.Query(`SELECT path, priority FROM mkv_work WHERE status IN (?, ?)`,
		string(StatusPending), string(StatusInProgress))
	if err != nil {
		return nil, err
	}
	type row struct {
		path     string
		priority int
	}
	var all []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.path, &r.priority); err != nil {
			rows.Close()
			return nil, err
		}
		all = append(all, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []PendingPath
	for _, r := range all {
		if _, statErr := os.Stat(r.path); statErr != nil {
			if _, err := w.db.Exec(`DELETE FROM mkv_work WHERE path = ?`, r.path); err != nil {
				return nil, err
			}
			continue
		}
		if _, err := w.db.Exec(`UPDATE mkv_work SET status = ? WHERE path = ?`, string(StatusPending), r.path); err != nil {
			return nil, err
		}
		out = append(out, PendingPath{Path: r.path, Priority: r.priority})
	}
	return out, nil
}

// Delete removes a single work record outright, used when its source file
// has been observed deleted (spec.md §4.6 "deleted: remove corresponding
// queue record").
func (w *WorkIndex) Delete(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.db.Exec(`DELETE FROM mkv_work WHERE path = ?`, path)
	return err
}

// PruneMissing deletes rows whose path is not in validPaths. An empty set
// deletes every row.
func (w *WorkIndex) PruneMissing(validPaths map[string]bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	rows, err := w.db.Query(`SELECT path FROM mkv_work`)
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
		if _, err := w.db.Exec(`DELETE FROM mkv_work WHERE path = ?`, p); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of rows currently tracked, read-only (used by the
// `babelarr status` diagnostics command; unlike RecoverPending it does not
// demote in_progress rows).
func (w *WorkIndex) Count() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	var n int
	err := w.db.QueryRow(`SELECT COUNT(*) FROM mkv_work`).Scan(&n)
	return n, err
}

// Close closes the underlying database handle.
func (w *WorkIndex) Close() error {
	return w.db.Close()
}
