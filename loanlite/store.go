// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loanlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Store is the durable, partitioned record store. Records live in a single
// _local_records table keyed by (collection, local_id); the collection set is
// fixed, so partitions exist implicitly from first open.
//
// A Store opened against an unavailable engine runs in degraded mode: writes
// become no-ops, reads return nothing, and the failure is logged once per
// operation instead of surfacing to the caller. The app stays usable
// online-only.
type Store struct {
	db      *sql.DB
	logger  *slog.Logger
	writeMu *sync.Mutex // serializes writes, shared with the queue
}

// initializeStore creates the local schema. Safe to call on every open:
// tables are only created on the first-ever open of a database file.
func initializeStore(db *sql.DB) error {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	tables := []string{
		`CREATE TABLE IF NOT EXISTS _local_records (
			table_name  TEXT NOT NULL,
			local_id    TEXT NOT NULL,
			payload     TEXT NOT NULL,
			sync_status TEXT NOT NULL DEFAULT 'pending' CHECK (sync_status IN ('pending','synced','conflict')),
			updated_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			PRIMARY KEY (table_name, local_id)
		)`,

		// Append-only intent log. Rows are never deleted by the sync
		// subsystem, only flagged synced.
		`CREATE TABLE IF NOT EXISTS _sync_queue (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			id          TEXT NOT NULL UNIQUE,
			table_name  TEXT NOT NULL,
			operation   TEXT NOT NULL CHECK (operation IN ('INSERT','UPDATE','DELETE')),
			local_id    TEXT NOT NULL,
			record_data TEXT,
			created_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ','now')),
			synced      INTEGER NOT NULL DEFAULT 0
		)`,

		`CREATE INDEX IF NOT EXISTS idx_sync_queue_pending ON _sync_queue(synced)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create local sync table: %w", err)
		}
	}

	return nil
}

// Degraded reports whether the store has no usable storage engine behind it.
func (s *Store) Degraded() bool { return s.db == nil }

// Put writes or overwrites a record under collection, keyed by its local id.
// A missing local id is generated here and written back into the record; the
// returned id is the resolved one. The record is tagged sync_status=pending.
//
// Storage unavailability degrades to a logged no-op; only programmer errors
// (unknown collection, unmarshalable payload) are returned.
func (s *Store) Put(ctx context.Context, collection Collection, record Record) (string, error) {
	localID, payload, err := s.prepare(collection, record)
	if err != nil {
		return "", err
	}
	if s.Degraded() {
		s.logger.Warn("local store unavailable, record not persisted",
			"collection", collection, "local_id", localID)
		return localID, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, putRecordSQL, collection, localID, string(payload), StatusPending); err != nil {
		s.logger.Warn("local record write failed, continuing without durability",
			"collection", collection, "local_id", localID, "error", err)
	}
	return localID, nil
}

const putRecordSQL = `
	INSERT INTO _local_records (table_name, local_id, payload, sync_status)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (table_name, local_id) DO UPDATE SET
		payload     = excluded.payload,
		sync_status = excluded.sync_status,
		updated_at  = strftime('%Y-%m-%dT%H:%M:%fZ','now')`

// putInTx is the transactional variant used by the facade write path so the
// record write and its queue entry commit atomically.
func (s *Store) putInTx(ctx context.Context, tx *sql.Tx, collection Collection, record Record) (string, error) {
	localID, payload, err := s.prepare(collection, record)
	if err != nil {
		return "", err
	}
	if _, err := tx.ExecContext(ctx, putRecordSQL, collection, localID, string(payload), StatusPending); err != nil {
		return "", fmt.Errorf("failed to write local record %s.%s: %w", collection, localID, err)
	}
	return localID, nil
}

// prepare resolves the local id, tags the record pending, and serializes it.
func (s *Store) prepare(collection Collection, record Record) (string, []byte, error) {
	if !collection.Valid() {
		return "", nil, fmt.Errorf("unknown collection %q", collection)
	}
	if record == nil {
		return "", nil, fmt.Errorf("record cannot be nil")
	}
	localID := record.LocalID()
	if localID == "" {
		localID = uuid.New().String()
		record[FieldLocalID] = localID
	}
	record[FieldSyncStatus] = string(StatusPending)
	payload, err := json.Marshal(record)
	if err != nil {
		return "", nil, fmt.Errorf("failed to marshal record %s.%s: %w", collection, localID, err)
	}
	return localID, payload, nil
}

// GetAll returns every record stored under collection, in unspecified order.
// An empty result means no entries or an unavailable store; neither is an
// error condition for callers.
func (s *Store) GetAll(ctx context.Context, collection Collection) []Record {
	if !collection.Valid() {
		s.logger.Warn("getAll on unknown collection", "collection", collection)
		return nil
	}
	if s.Degraded() {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM _local_records WHERE table_name = ?`, collection)
	if err != nil {
		s.logger.Warn("local record read failed, returning empty result",
			"collection", collection, "error", err)
		return nil
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			s.logger.Warn("failed to scan local record", "collection", collection, "error", err)
			continue
		}
		var record Record
		if err := json.Unmarshal([]byte(payload), &record); err != nil {
			s.logger.Warn("corrupt local record payload skipped", "collection", collection, "error", err)
			continue
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("local record iteration failed", "collection", collection, "error", err)
	}
	return records
}

// SetSyncStatus updates the status tag of a stored record, both in the row
// column and inside the stored payload so GetAll reflects it.
func (s *Store) SetSyncStatus(ctx context.Context, collection Collection, localID string, status SyncStatus) error {
	if s.Degraded() {
		return nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, err := s.db.ExecContext(ctx, `
		UPDATE _local_records
		SET sync_status = ?,
		    payload     = json_set(payload, '$.sync_status', ?),
		    updated_at  = strftime('%Y-%m-%dT%H:%M:%fZ','now')
		WHERE table_name = ? AND local_id = ?
	`, status, status, collection, localID)
	if err != nil {
		return fmt.Errorf("failed to update sync status for %s.%s: %w", collection, localID, err)
	}
	return nil
}
