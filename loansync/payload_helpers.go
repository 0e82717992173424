// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loansync

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Payload keys owned by the backend. Clients may send "id" (client-generated
// UUID creates are upserted idempotently); the timestamp columns are always
// server-assigned and silently dropped from incoming payloads.
const (
	payloadKeyID        = "id"
	payloadKeyCreatedAt = "created_at"
	payloadKeyUpdatedAt = "updated_at"
	payloadKeyDeletedAt = "deleted_at"
)

// validationError marks payload problems so the HTTP layer can answer 422
// instead of 500.
type validationError struct {
	msg string
}

func (e *validationError) Error() string { return e.msg }

func invalidPayload(format string, args ...any) error {
	return &validationError{msg: fmt.Sprintf(format, args...)}
}

// normalizePayload validates an incoming payload and splits it into the
// storable JSON object and an optional client-supplied record id.
//
// Rules: the payload must be a JSON object; within maxBytes when a limit is
// set; a present "id" must be a valid UUID; reserved timestamp keys are
// removed rather than rejected, so echoed rows can be written back verbatim.
func normalizePayload(payload []byte, maxBytes int) (json.RawMessage, *uuid.UUID, error) {
	if maxBytes > 0 && len(payload) > maxBytes {
		return nil, nil, invalidPayload("payload too large: %d bytes, limit %d", len(payload), maxBytes)
	}

	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, nil, invalidPayload("payload must be a JSON object: %v", err)
	}

	var recordID *uuid.UUID
	if raw, ok := fields[payloadKeyID]; ok {
		s, ok := raw.(string)
		if !ok {
			return nil, nil, invalidPayload("payload id must be a UUID string")
		}
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, nil, invalidPayload("payload id is not a valid UUID: %v", err)
		}
		recordID = &id
	}

	delete(fields, payloadKeyID)
	delete(fields, payloadKeyCreatedAt)
	delete(fields, payloadKeyUpdatedAt)
	delete(fields, payloadKeyDeletedAt)

	stored, err := json.Marshal(fields)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to re-encode payload: %w", err)
	}
	return stored, recordID, nil
}
