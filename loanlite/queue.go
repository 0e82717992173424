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
	"time"

	"github.com/google/uuid"
)

// ErrStoreUnavailable is returned when a mutation intent cannot be recorded
// durably. Unlike read-path degradation, this must reach the caller of the
// originating write: an un-enqueued mutation would be silently lost.
var ErrStoreUnavailable = fmt.Errorf("local store unavailable")

// Entry is one intended mutation against the remote backend. Entries are
// appended in write order and stay in the log forever; the synced flag is the
// only thing that ever changes.
type Entry struct {
	Seq        int64
	ID         string
	Collection Collection
	Operation  Operation
	LocalID    string
	RecordData json.RawMessage
	CreatedAt  time.Time
	Synced     bool
}

// Record decodes the entry's payload snapshot.
func (e *Entry) Record() (Record, error) {
	if len(e.RecordData) == 0 {
		return Record{}, nil
	}
	var record Record
	if err := json.Unmarshal(e.RecordData, &record); err != nil {
		return nil, fmt.Errorf("failed to decode entry %s payload: %w", e.ID, err)
	}
	return record, nil
}

// Queue is the append-only intent log, backed by the _sync_queue table in the
// same SQLite file as the record store.
type Queue struct {
	db      *sql.DB
	logger  *slog.Logger
	writeMu *sync.Mutex
}

// Enqueue appends an entry with synced=false and returns its generated id.
// The snapshot is serialized at enqueue time; later mutations of the record
// do not retroactively change the queued entry.
func (q *Queue) Enqueue(ctx context.Context, collection Collection, op Operation, localID string, snapshot Record) (string, error) {
	if q.db == nil {
		return "", ErrStoreUnavailable
	}
	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	var entryID string
	err := inTx(ctx, q.db, func(tx *sql.Tx) error {
		var err error
		entryID, err = q.enqueueInTx(ctx, tx, collection, op, localID, snapshot)
		return err
	})
	if err != nil {
		return "", err
	}
	return entryID, nil
}

func (q *Queue) enqueueInTx(ctx context.Context, tx *sql.Tx, collection Collection, op Operation, localID string, snapshot Record) (string, error) {
	if !collection.Valid() {
		return "", fmt.Errorf("unknown collection %q", collection)
	}
	if !op.Valid() {
		return "", fmt.Errorf("invalid operation %q", op)
	}
	if localID == "" {
		return "", fmt.Errorf("local id is required")
	}

	var data any // NULL when there is no snapshot to carry
	if snapshot != nil {
		payload, err := json.Marshal(snapshot)
		if err != nil {
			return "", fmt.Errorf("failed to marshal snapshot for %s.%s: %w", collection, localID, err)
		}
		data = string(payload)
	}

	entryID := uuid.New().String()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO _sync_queue (id, table_name, operation, local_id, record_data)
		VALUES (?, ?, ?, ?, ?)
	`, entryID, collection, op, localID, data)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue %s %s.%s: %w", op, collection, localID, err)
	}
	return entryID, nil
}

// CountPending returns the number of entries still waiting for remote
// application. The count is computed on every call, never cached.
func (q *Queue) CountPending(ctx context.Context) (int, error) {
	if q.db == nil {
		return 0, nil
	}
	var count int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM _sync_queue WHERE synced = 0`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending entries: %w", err)
	}
	return count, nil
}

// Pending returns all unsynced entries in enqueue order.
func (q *Queue) Pending(ctx context.Context) ([]Entry, error) {
	if q.db == nil {
		return nil, nil
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT seq, id, table_name, operation, local_id, record_data, created_at, synced
		FROM _sync_queue
		WHERE synced = 0
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pending entries: %w", err)
	}
	return entries, nil
}

// All returns the full log, synced entries included, in enqueue order.
// Intended for diagnostics and audit views.
func (q *Queue) All(ctx context.Context) ([]Entry, error) {
	if q.db == nil {
		return nil, nil
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT seq, id, table_name, operation, local_id, record_data, created_at, synced
		FROM _sync_queue
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query queue log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate queue log: %w", err)
	}
	return entries, nil
}

// MarkSynced flips the synced flag for one entry. The entry stays in the log.
func (q *Queue) MarkSynced(ctx context.Context, entryID string) error {
	if q.db == nil {
		return ErrStoreUnavailable
	}
	q.writeMu.Lock()
	defer q.writeMu.Unlock()

	res, err := q.db.ExecContext(ctx, `UPDATE _sync_queue SET synced = 1 WHERE id = ?`, entryID)
	if err != nil {
		return fmt.Errorf("failed to mark entry %s synced: %w", entryID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("unknown queue entry %s", entryID)
	}
	return nil
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var entry Entry
	var data sql.NullString
	var createdAt string
	var synced int
	if err := rows.Scan(&entry.Seq, &entry.ID, &entry.Collection, &entry.Operation,
		&entry.LocalID, &data, &createdAt, &synced); err != nil {
		return Entry{}, fmt.Errorf("failed to scan queue entry: %w", err)
	}
	if data.Valid {
		entry.RecordData = json.RawMessage(data.String)
	}
	if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
		entry.CreatedAt = ts
	}
	entry.Synced = synced != 0
	return entry, nil
}

// inTx runs fn inside a transaction, rolling back on error.
func inTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
