// Package loansync is the reference remote backend for the loanlite offline
// client: a Postgres-backed write API exposing create, update and soft-delete
// per collection, with JWT authentication and soft-delete retention.
//
// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loansync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Errors surfaced by the service. Handlers map them onto HTTP statuses.
var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrRecordNotFound    = errors.New("record not found")
	ErrRecordDeleted     = errors.New("record is deleted")
	ErrServiceClosed     = errors.New("service has been closed")
)

// DefaultCollections is the collection set of the loan-management app.
var DefaultCollections = []string{"clients", "assets", "loans", "payments", "staff"}

// ServiceConfig holds configuration for the backend service.
type ServiceConfig struct {
	AppName         string   // application name for logging and status
	Schema          string   // Postgres schema holding the collection tables
	Collections     []string // collections allowed for writes (default: DefaultCollections)
	MaxPayloadBytes int      // maximum JSON payload size per record (0 = unlimited)
}

// Service provides the remote write surface consumed by the offline client.
type Service struct {
	pool        *pgxpool.Pool
	logger      *slog.Logger
	config      *ServiceConfig
	collections map[string]bool

	mu     sync.RWMutex
	closed bool
}

// NewService creates the backend service and initializes its schema. Table
// creation is idempotent, so restarting against an existing database is safe.
func NewService(ctx context.Context, pool *pgxpool.Pool, config *ServiceConfig, logger *slog.Logger) (*Service, error) {
	if config == nil {
		config = &ServiceConfig{}
	}
	if config.AppName == "" {
		config.AppName = "loansync"
	}
	if config.Schema == "" {
		config.Schema = "lending"
	}
	if len(config.Collections) == 0 {
		config.Collections = DefaultCollections
	}
	if logger == nil {
		logger = slog.Default()
	}

	service := &Service{
		pool:        pool,
		logger:      logger,
		config:      config,
		collections: make(map[string]bool, len(config.Collections)),
	}
	for _, collection := range config.Collections {
		service.collections[strings.ToLower(collection)] = true
	}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return service.initializeSchemaInTx(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize backend schema: %w", err)
	}
	logger.Debug("backend schema initialized", "schema", config.Schema, "collections", config.Collections)

	return service, nil
}

// initializeSchemaInTx creates the schema and one table per registered
// collection. Table identifiers come from the fixed registered set, never
// from request input.
func (s *Service) initializeSchemaInTx(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, s.config.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", s.config.Schema, err)
	}
	for _, collection := range s.config.Collections {
		ddl := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %q.%q (
				id         UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				payload    JSONB NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
				deleted_at TIMESTAMPTZ
			)`, s.config.Schema, collection)
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return fmt.Errorf("failed to create table %s.%s: %w", s.config.Schema, collection, err)
		}
		index := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %q ON %q.%q (deleted_at)`,
			"idx_"+collection+"_deleted_at", s.config.Schema, collection)
		if _, err := tx.Exec(ctx, index); err != nil {
			return fmt.Errorf("failed to create index on %s.%s: %w", s.config.Schema, collection, err)
		}
	}
	return nil
}

// Close marks the service closed. The pool stays open; its lifecycle belongs
// to the caller.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Pool returns the underlying connection pool for advanced callers.
func (s *Service) Pool() *pgxpool.Pool { return s.pool }

// RegisteredCollections lists the collections accepted for writes.
func (s *Service) RegisteredCollections() []string {
	out := make([]string, len(s.config.Collections))
	copy(out, s.config.Collections)
	return out
}

func (s *Service) checkCollection(collection string) (string, error) {
	if err := s.checkClosed(); err != nil {
		return "", err
	}
	collection = strings.ToLower(collection)
	if !s.collections[collection] {
		return "", fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	return collection, nil
}

func (s *Service) checkClosed() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrServiceClosed
	}
	return nil
}

// Create inserts a record into a collection. When the payload carries a
// client-generated UUID id, the insert is an idempotent upsert on that id, so
// a retried create after a lost response cannot duplicate the record.
func (s *Service) Create(ctx context.Context, collection string, payload []byte) (*Record, error) {
	collection, err := s.checkCollection(collection)
	if err != nil {
		return nil, err
	}
	stored, recordID, err := normalizePayload(payload, s.config.MaxPayloadBytes)
	if err != nil {
		return nil, err
	}

	var record *Record
	err = withTxRetry(ctx, s.pool, func(tx pgx.Tx) error {
		var row pgx.Row
		if recordID != nil {
			row = tx.QueryRow(ctx, fmt.Sprintf(`
				INSERT INTO %q.%q (id, payload) VALUES ($1, $2)
				ON CONFLICT (id) DO UPDATE SET
					payload    = EXCLUDED.payload,
					updated_at = now()
				RETURNING id, payload, created_at, updated_at, deleted_at
			`, s.config.Schema, collection), *recordID, stored)
		} else {
			row = tx.QueryRow(ctx, fmt.Sprintf(`
				INSERT INTO %q.%q (payload) VALUES ($1)
				RETURNING id, payload, created_at, updated_at, deleted_at
			`, s.config.Schema, collection), stored)
		}
		record, err = scanRecord(row, collection)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create record in %s: %w", collection, err)
	}

	s.logger.Debug("record created", "collection", collection, "id", record.ID)
	return record, nil
}

// Update overwrites the payload of a live record. Updating a soft-deleted
// record is rejected rather than silently resurrecting it.
func (s *Service) Update(ctx context.Context, collection string, id uuid.UUID, payload []byte) (*Record, error) {
	collection, err := s.checkCollection(collection)
	if err != nil {
		return nil, err
	}
	stored, _, err := normalizePayload(payload, s.config.MaxPayloadBytes)
	if err != nil {
		return nil, err
	}

	var record *Record
	err = withTxRetry(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, fmt.Sprintf(`
			UPDATE %q.%q SET payload = $2, updated_at = now()
			WHERE id = $1 AND deleted_at IS NULL
			RETURNING id, payload, created_at, updated_at, deleted_at
		`, s.config.Schema, collection), id, stored)
		record, err = scanRecord(row, collection)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.classifyMissing(ctx, tx, collection, id)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update record %s in %s: %w", id, collection, err)
	}
	return record, nil
}

// SoftDelete marks a deletion timestamp on the record; rows are never hard
// deleted through this API. Deleting an already-deleted record is idempotent
// and returns the current row.
func (s *Service) SoftDelete(ctx context.Context, collection string, id uuid.UUID) (*Record, error) {
	collection, err := s.checkCollection(collection)
	if err != nil {
		return nil, err
	}

	var record *Record
	err = withTxRetry(ctx, s.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, fmt.Sprintf(`
			UPDATE %q.%q SET deleted_at = now(), updated_at = now()
			WHERE id = $1 AND deleted_at IS NULL
			RETURNING id, payload, created_at, updated_at, deleted_at
		`, s.config.Schema, collection), id)
		record, err = scanRecord(row, collection)
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}

		// Already deleted, or truly missing.
		row = tx.QueryRow(ctx, fmt.Sprintf(`
			SELECT id, payload, created_at, updated_at, deleted_at
			FROM %q.%q WHERE id = $1
		`, s.config.Schema, collection), id)
		record, err = scanRecord(row, collection)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s.%s", ErrRecordNotFound, collection, id)
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to soft-delete record %s in %s: %w", id, collection, err)
	}

	s.logger.Debug("record soft-deleted", "collection", collection, "id", record.ID)
	return record, nil
}

// classifyMissing distinguishes a missing row from a soft-deleted one so the
// API can report the difference.
func (s *Service) classifyMissing(ctx context.Context, tx pgx.Tx, collection string, id uuid.UUID) error {
	var deleted bool
	err := tx.QueryRow(ctx, fmt.Sprintf(`
		SELECT deleted_at IS NOT NULL FROM %q.%q WHERE id = $1
	`, s.config.Schema, collection), id).Scan(&deleted)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s.%s", ErrRecordNotFound, collection, id)
	}
	if err != nil {
		return err
	}
	if deleted {
		return fmt.Errorf("%w: %s.%s", ErrRecordDeleted, collection, id)
	}
	return pgx.ErrNoRows
}

func scanRecord(row pgx.Row, collection string) (*Record, error) {
	var record Record
	var payload []byte
	if err := row.Scan(&record.ID, &payload, &record.CreatedAt, &record.UpdatedAt, &record.DeletedAt); err != nil {
		return nil, err
	}
	record.Collection = collection
	record.Payload = json.RawMessage(payload)
	return &record, nil
}
