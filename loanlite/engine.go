// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loanlite

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Engine drains pending queue entries against the remote backend, one at a
// time, in enqueue order. Drain passes are mutually exclusive: a trigger
// arriving while a pass runs is a no-op, not queued.
type Engine struct {
	store   *Store
	queue   *Queue
	monitor *Monitor
	remote  RemoteAPI
	status  *Status
	logger  *slog.Logger
	config  *Config

	inFlight int32
}

// NewEngine wires a sync engine over its collaborators. Most callers go
// through NewClient instead.
func NewEngine(store *Store, queue *Queue, monitor *Monitor, remote RemoteAPI, status *Status, config *Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if config == nil {
		config = DefaultConfig()
	}
	return &Engine{
		store:   store,
		queue:   queue,
		monitor: monitor,
		remote:  remote,
		status:  status,
		logger:  logger,
		config:  config,
	}
}

// applyFunc maps one queue operation onto the corresponding remote call.
type applyFunc func(ctx context.Context, e *Engine, entry *Entry, payload Record) error

// remoteOps is the closed dispatch table for queue operations. Collections
// are validated separately at enqueue time and again before dispatch, so the
// set of reachable (collection, operation) pairs is fixed at compile time.
var remoteOps = map[Operation]applyFunc{
	OpInsert: applyInsert,
	OpUpdate: applyUpdate,
	OpDelete: applyDelete,
}

// TriggerSync starts a drain pass without waiting for it. This is the
// command surface exposed to the UI and the connectivity monitor.
func (e *Engine) TriggerSync() {
	go func() {
		if err := e.SyncPending(context.Background()); err != nil {
			e.logger.Warn("background sync pass failed", "error", err)
		}
	}()
}

// Syncing reports whether a drain pass is currently in flight.
func (e *Engine) Syncing() bool {
	return atomic.LoadInt32(&e.inFlight) == 1
}

// SyncPending runs a single drain pass.
//
// Preconditions short-circuit to nil: a degraded store has nothing durable to
// drain, offline passes would fail every entry anyway, and a pass already in
// flight owns the queue. A pass-level failure (the pending set itself cannot
// be read) aborts and is surfaced; a per-item failure is logged and the pass
// moves on, so one poisoned entry never blocks the rest of the queue.
func (e *Engine) SyncPending(ctx context.Context) error {
	if e.store.Degraded() {
		return nil
	}
	if !e.monitor.IsOnline() {
		e.logger.Debug("sync skipped, offline")
		return nil
	}
	if !atomic.CompareAndSwapInt32(&e.inFlight, 0, 1) {
		e.logger.Debug("sync skipped, pass already in flight")
		return nil
	}
	defer atomic.StoreInt32(&e.inFlight, 0)

	e.status.setSyncing(true)
	defer e.status.setSyncing(false)

	entries, err := e.queue.Pending(ctx)
	if err != nil {
		err = fmt.Errorf("failed to read sync queue: %w", err)
		e.status.notifySync(SyncResult{Err: err})
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	applied := 0
	for i := range entries {
		entry := &entries[i]
		if err := e.applyEntry(ctx, entry); err != nil {
			e.logger.Warn("sync entry failed, will retry next pass",
				"entry", entry.ID, "collection", entry.Collection,
				"operation", entry.Operation, "local_id", entry.LocalID, "error", err)
			continue
		}
		if err := e.queue.MarkSynced(ctx, entry.ID); err != nil {
			// Remote call succeeded but the flag write failed; the entry is
			// retried next pass. Delivery is at-least-once.
			e.logger.Warn("failed to flag entry synced", "entry", entry.ID, "error", err)
			continue
		}
		if err := e.store.SetSyncStatus(ctx, entry.Collection, entry.LocalID, StatusSynced); err != nil {
			e.logger.Warn("failed to update local record status",
				"collection", entry.Collection, "local_id", entry.LocalID, "error", err)
		}
		applied++
	}

	e.publishPending(ctx)
	if applied > 0 {
		e.status.notifySync(SyncResult{Applied: applied, Failed: len(entries) - applied})
		e.logger.Info("sync pass complete", "applied", applied, "failed", len(entries)-applied)
	}
	return nil
}

// applyEntry converts one queued intent into a remote call, bounded by the
// configured per-call timeout.
func (e *Engine) applyEntry(ctx context.Context, entry *Entry) error {
	if !entry.Collection.Valid() {
		return fmt.Errorf("unknown collection %q", entry.Collection)
	}
	apply, ok := remoteOps[entry.Operation]
	if !ok {
		return fmt.Errorf("unsupported operation %q", entry.Operation)
	}

	record, err := entry.Record()
	if err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.RemoteTimeout)
	defer cancel()
	return apply(callCtx, e, entry, record.UploadPayload())
}

func applyInsert(ctx context.Context, e *Engine, entry *Entry, payload Record) error {
	if _, err := e.remote.Create(ctx, entry.Collection, payload); err != nil {
		return fmt.Errorf("remote create failed: %w", err)
	}
	return nil
}

func applyUpdate(ctx context.Context, e *Engine, entry *Entry, payload Record) error {
	id, ok := payload.RemoteID()
	if !ok {
		// Never synced under a remote id, nothing to address the update at.
		// No remote call is attempted; the entry stays pending.
		return fmt.Errorf("update entry carries no remote id")
	}
	if _, err := e.remote.Update(ctx, entry.Collection, id, payload); err != nil {
		return fmt.Errorf("remote update failed: %w", err)
	}
	return nil
}

func applyDelete(ctx context.Context, e *Engine, entry *Entry, payload Record) error {
	id, ok := payload.RemoteID()
	if !ok {
		return fmt.Errorf("delete entry carries no remote id")
	}
	if _, err := e.remote.SoftDelete(ctx, entry.Collection, id); err != nil {
		return fmt.Errorf("remote soft-delete failed: %w", err)
	}
	return nil
}

// publishPending recomputes the pending count and pushes it to subscribers.
func (e *Engine) publishPending(ctx context.Context) {
	count, err := e.queue.CountPending(ctx)
	if err != nil {
		e.logger.Warn("failed to count pending entries", "error", err)
		return
	}
	e.status.setPending(count)
}
