// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loansync

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Record is a stored backend row: the client-supplied payload plus the
// columns the backend owns.
type Record struct {
	ID         uuid.UUID
	Collection string
	Payload    json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
	DeletedAt  *time.Time
}

// Deleted reports whether the record carries a soft-delete timestamp.
func (r *Record) Deleted() bool { return r.DeletedAt != nil }

// MarshalJSON flattens the record into a single JSON object: payload fields
// at the top level with the backend-owned columns overlaid. This is the wire
// shape clients see, matching hosted-backend row responses.
func (r *Record) MarshalJSON() ([]byte, error) {
	row := make(map[string]any)
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &row); err != nil {
			return nil, fmt.Errorf("failed to decode stored payload: %w", err)
		}
	}
	row["id"] = r.ID.String()
	row["created_at"] = r.CreatedAt.UTC().Format(time.RFC3339Nano)
	row["updated_at"] = r.UpdatedAt.UTC().Format(time.RFC3339Nano)
	if r.DeletedAt != nil {
		row["deleted_at"] = r.DeletedAt.UTC().Format(time.RFC3339Nano)
	} else {
		row["deleted_at"] = nil
	}
	return json.Marshal(row)
}
