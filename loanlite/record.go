// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loanlite

import (
	"encoding/json"
	"strconv"
)

// Collection is a named partition of the local store. The set is closed:
// every partition the application syncs is declared here, and both the
// local store and the sync engine reject anything else.
type Collection string

const (
	CollectionClients  Collection = "clients"
	CollectionAssets   Collection = "assets"
	CollectionLoans    Collection = "loans"
	CollectionPayments Collection = "payments"
	CollectionStaff    Collection = "staff"
)

// Collections lists every partition created on first open.
var Collections = []Collection{
	CollectionClients,
	CollectionAssets,
	CollectionLoans,
	CollectionPayments,
	CollectionStaff,
}

var validCollections = func() map[Collection]bool {
	m := make(map[Collection]bool, len(Collections))
	for _, c := range Collections {
		m[c] = true
	}
	return m
}()

// Valid reports whether c belongs to the closed collection set.
func (c Collection) Valid() bool { return validCollections[c] }

// Operation is a mutation intent recorded in the sync queue.
// INSERT, UPDATE and DELETE are the only valid values.
type Operation string

const (
	OpInsert Operation = "INSERT"
	OpUpdate Operation = "UPDATE"
	OpDelete Operation = "DELETE"
)

// Valid reports whether op is one of the three queueable operations.
func (op Operation) Valid() bool {
	switch op {
	case OpInsert, OpUpdate, OpDelete:
		return true
	}
	return false
}

// SyncStatus tags a local record's relationship to the remote backend.
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusSynced   SyncStatus = "synced"
	StatusConflict SyncStatus = "conflict"
)

// Local-only field names carried inside record payloads. They are stripped
// before any payload leaves for the remote backend.
const (
	FieldLocalID    = "local_id"
	FieldSyncStatus = "sync_status"
	FieldRemoteID   = "id"
)

// Record is an arbitrary-shape payload as handed over by the UI layer
// (form values keyed by field name), plus the local bookkeeping fields.
type Record map[string]any

// LocalID returns the client-generated identifier, or "" when unset.
func (r Record) LocalID() string {
	id, _ := r[FieldLocalID].(string)
	return id
}

// RemoteID returns the backend-assigned identifier carried in the payload.
// JSON round-trips turn numeric ids into float64, so both shapes are accepted.
func (r Record) RemoteID() (string, bool) {
	switch v := r[FieldRemoteID].(type) {
	case string:
		if v != "" {
			return v, true
		}
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case int:
		return strconv.Itoa(v), true
	}
	return "", false
}

// UploadPayload returns a copy of the record with local-only fields removed,
// suitable for a remote create/update call.
func (r Record) UploadPayload() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if k == FieldLocalID || k == FieldSyncStatus {
			continue
		}
		out[k] = v
	}
	return out
}

// Clone returns a deep-enough copy for snapshotting: top-level keys are
// copied, nested values are shared. Queue snapshots go through JSON anyway,
// so shared nested values never leak mutations into stored entries.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
