// Package loanlite provides the offline-first persistence and sync core of
// the Asili loan-management client: a durable SQLite-backed record store,
// an append-only sync queue, a connectivity monitor and a sync engine that
// replays buffered mutations against the remote backend on reconnect.
//
// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loanlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Config holds tuning knobs for the offline client.
type Config struct {
	RemoteTimeout time.Duration // per remote call during a drain pass
	ProbeInterval time.Duration // connectivity polling cadence for Watch
}

// DefaultConfig returns the configuration used by the app shell.
func DefaultConfig() *Config {
	return &Config{
		RemoteTimeout: 30 * time.Second,
		ProbeInterval: 30 * time.Second,
	}
}

// Client owns the local database handle and wires the store, queue, monitor
// and engine together. It is created once at application startup and injected
// into the layers that need it; tests create a fresh one per case.
type Client struct {
	db      *sql.DB
	writeMu sync.Mutex

	Store   *Store
	Queue   *Queue
	Monitor *Monitor
	Engine  *Engine
	Status  *Status

	logger *slog.Logger
}

// NewClient builds a client over an already-open database handle. Schema
// initialization is idempotent: reopening an existing file never destroys
// data. The online flag seeds the connectivity monitor from the host's
// current reachability.
func NewClient(db *sql.DB, remote RemoteAPI, online bool, config *Config, logger *slog.Logger) (*Client, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if remote == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if err := initializeStore(db); err != nil {
		return nil, fmt.Errorf("failed to initialize local store: %w", err)
	}
	return newClient(db, remote, online, config, logger), nil
}

// Open opens (or creates) the SQLite database at path and builds a client
// over it. If the storage engine is unavailable the client comes up in
// degraded, online-only mode instead of failing: local reads return empty,
// local writes are not durable, and the condition is logged.
func Open(path string, remote RemoteAPI, online bool, config *Config, logger *slog.Logger) (*Client, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite3", path)
	if err == nil {
		err = db.Ping()
	}
	if err == nil {
		err = initializeStore(db)
	}
	if err != nil {
		if db != nil {
			_ = db.Close()
		}
		logger.Warn("local storage unavailable, running online-only", "path", path, "error", err)
		return newClient(nil, remote, online, config, logger), nil
	}
	return newClient(db, remote, online, config, logger), nil
}

func newClient(db *sql.DB, remote RemoteAPI, online bool, config *Config, logger *slog.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{db: db, logger: logger}
	c.Store = &Store{db: db, logger: logger, writeMu: &c.writeMu}
	c.Queue = &Queue{db: db, logger: logger, writeMu: &c.writeMu}
	c.Status = NewStatus(online)
	c.Monitor = NewMonitor(online, logger)
	c.Monitor.OnChange(c.Status.setOnline)
	c.Engine = NewEngine(c.Store, c.Queue, c.Monitor, remote, c.Status, config, logger)
	c.Monitor.bindTrigger(c.Engine.TriggerSync)

	c.Engine.publishPending(context.Background())
	return c
}

// Close releases the database handle. The queue log is kept; teardown of
// local data on logout is the caller's responsibility.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// TriggerSync is the manual sync command exposed to the UI.
func (c *Client) TriggerSync() { c.Engine.TriggerSync() }

// CreateRecord persists a new record locally and queues an INSERT intent,
// atomically. Returns the resolved local id.
func (c *Client) CreateRecord(ctx context.Context, collection Collection, record Record) (string, error) {
	return c.write(ctx, collection, OpInsert, record)
}

// UpdateRecord overwrites a local record and queues an UPDATE intent,
// atomically. The record must already carry its remote id for the update to
// ever apply remotely; without one the queued entry stays pending.
func (c *Client) UpdateRecord(ctx context.Context, collection Collection, record Record) (string, error) {
	return c.write(ctx, collection, OpUpdate, record)
}

// DeleteRecord queues a DELETE intent carrying a snapshot of the record. The
// local row is left in place; removing it is the caller's decision, and the
// remote side only ever receives a soft delete.
func (c *Client) DeleteRecord(ctx context.Context, collection Collection, record Record) error {
	localID := record.LocalID()
	if localID == "" {
		return fmt.Errorf("record has no local id")
	}
	if _, err := c.Queue.Enqueue(ctx, collection, OpDelete, localID, record.Clone()); err != nil {
		return err
	}
	c.Engine.publishPending(ctx)
	return nil
}

// write runs the local write path: record upsert plus queue append in one
// transaction, so an intent can never be lost while its record survives.
// Enqueue failure is a correctness problem and always propagates, even when
// the record write itself degraded to a no-op.
func (c *Client) write(ctx context.Context, collection Collection, op Operation, record Record) (string, error) {
	if c.db == nil {
		// Degraded mode keeps the put no-op contract but cannot make the
		// intent durable, which the caller has to know about.
		localID, err := c.Store.Put(ctx, collection, record)
		if err != nil {
			return "", err
		}
		return localID, ErrStoreUnavailable
	}

	c.writeMu.Lock()
	var localID string
	err := inTx(ctx, c.db, func(tx *sql.Tx) error {
		var err error
		localID, err = c.Store.putInTx(ctx, tx, collection, record)
		if err != nil {
			return err
		}
		if _, err := c.Queue.enqueueInTx(ctx, tx, collection, op, localID, record); err != nil {
			return err
		}
		return nil
	})
	c.writeMu.Unlock()
	if err != nil {
		return "", err
	}

	c.Engine.publishPending(ctx)
	return localID, nil
}
