// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loansync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeBackend implements Backend in memory for handler tests.
type fakeBackend struct {
	records map[uuid.UUID]*Record
	failAll error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{records: make(map[uuid.UUID]*Record)}
}

func (f *fakeBackend) RegisteredCollections() []string { return DefaultCollections }

func (f *fakeBackend) checkCollection(collection string) error {
	if f.failAll != nil {
		return f.failAll
	}
	for _, c := range DefaultCollections {
		if c == collection {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
}

func (f *fakeBackend) Create(ctx context.Context, collection string, payload []byte) (*Record, error) {
	if err := f.checkCollection(collection); err != nil {
		return nil, err
	}
	stored, recordID, err := normalizePayload(payload, 0)
	if err != nil {
		return nil, err
	}
	id := uuid.New()
	if recordID != nil {
		id = *recordID
	}
	now := time.Now().UTC()
	record := &Record{ID: id, Collection: collection, Payload: stored, CreatedAt: now, UpdatedAt: now}
	f.records[id] = record
	return record, nil
}

func (f *fakeBackend) Update(ctx context.Context, collection string, id uuid.UUID, payload []byte) (*Record, error) {
	if err := f.checkCollection(collection); err != nil {
		return nil, err
	}
	stored, _, err := normalizePayload(payload, 0)
	if err != nil {
		return nil, err
	}
	record, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrRecordNotFound, collection, id)
	}
	if record.Deleted() {
		return nil, fmt.Errorf("%w: %s.%s", ErrRecordDeleted, collection, id)
	}
	record.Payload = stored
	record.UpdatedAt = time.Now().UTC()
	return record, nil
}

func (f *fakeBackend) SoftDelete(ctx context.Context, collection string, id uuid.UUID) (*Record, error) {
	if err := f.checkCollection(collection); err != nil {
		return nil, err
	}
	record, ok := f.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrRecordNotFound, collection, id)
	}
	if !record.Deleted() {
		now := time.Now().UTC()
		record.DeletedAt = &now
		record.UpdatedAt = now
	}
	return record, nil
}

func newTestServer(t *testing.T, backend Backend, jwtAuth *JWTAuth) *httptest.Server {
	t.Helper()
	handlers := NewHTTPHandlers(backend, "loansync-test", nil)
	server := httptest.NewServer(NewRouter(handlers, jwtAuth))
	t.Cleanup(server.Close)
	return server
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHandleCreate(t *testing.T) {
	server := newTestServer(t, newFakeBackend(), nil)

	resp, row := doRequest(t, http.MethodPost, server.URL+"/api/clients", "", `{"name":"Amara"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "Amara", row["name"])
	require.NotEmpty(t, row["id"])
	require.Nil(t, row["deleted_at"])
}

func TestHandleCreate_UnknownCollection(t *testing.T) {
	server := newTestServer(t, newFakeBackend(), nil)

	resp, body := doRequest(t, http.MethodPost, server.URL+"/api/invoices", "", `{"x":1}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "unknown_collection", body["error"])
}

func TestHandleCreate_InvalidPayload(t *testing.T) {
	server := newTestServer(t, newFakeBackend(), nil)

	resp, body := doRequest(t, http.MethodPost, server.URL+"/api/clients", "", `[1,2]`)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "validation_failed", body["error"])
}

func TestHandleUpdate(t *testing.T) {
	backend := newFakeBackend()
	server := newTestServer(t, backend, nil)

	created, err := backend.Create(context.Background(), "loans", []byte(`{"amount":500}`))
	require.NoError(t, err)

	resp, row := doRequest(t, http.MethodPatch,
		server.URL+"/api/loans/"+created.ID.String(), "", `{"amount":950}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 950, row["amount"])
}

func TestHandleUpdate_BadID(t *testing.T) {
	server := newTestServer(t, newFakeBackend(), nil)

	resp, body := doRequest(t, http.MethodPatch, server.URL+"/api/loans/not-a-uuid", "", `{"amount":1}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "invalid_request", body["error"])
}

func TestHandleUpdate_NotFound(t *testing.T) {
	server := newTestServer(t, newFakeBackend(), nil)

	resp, body := doRequest(t, http.MethodPatch,
		server.URL+"/api/loans/"+uuid.NewString(), "", `{"amount":1}`)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "record_not_found", body["error"])
}

func TestHandleSoftDelete(t *testing.T) {
	backend := newFakeBackend()
	server := newTestServer(t, backend, nil)

	created, err := backend.Create(context.Background(), "payments", []byte(`{"amount":120}`))
	require.NoError(t, err)

	resp, row := doRequest(t, http.MethodDelete,
		server.URL+"/api/payments/"+created.ID.String(), "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, row["deleted_at"], "soft delete must set a deletion timestamp")

	// The row still exists: repeated delete is idempotent, not a 404.
	resp, _ = doRequest(t, http.MethodDelete,
		server.URL+"/api/payments/"+created.ID.String(), "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHandleUpdate_DeletedRecordConflicts(t *testing.T) {
	backend := newFakeBackend()
	server := newTestServer(t, backend, nil)

	created, err := backend.Create(context.Background(), "assets", []byte(`{"serial":"A-1"}`))
	require.NoError(t, err)
	_, err = backend.SoftDelete(context.Background(), "assets", created.ID)
	require.NoError(t, err)

	resp, body := doRequest(t, http.MethodPatch,
		server.URL+"/api/assets/"+created.ID.String(), "", `{"serial":"A-2"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "record_deleted", body["error"])
}

func TestRouter_AuthRequired(t *testing.T) {
	jwtAuth := NewJWTAuth("test-secret")
	server := newTestServer(t, newFakeBackend(), jwtAuth)

	// No token.
	resp, _ := doRequest(t, http.MethodPost, server.URL+"/api/clients", "", `{"name":"Amara"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Garbage token.
	resp, _ = doRequest(t, http.MethodPost, server.URL+"/api/clients", "garbage", `{"name":"Amara"}`)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid token.
	token, err := jwtAuth.GenerateToken("staff-1", "device-1", time.Hour)
	require.NoError(t, err)
	resp, _ = doRequest(t, http.MethodPost, server.URL+"/api/clients", token, `{"name":"Amara"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestRouter_HealthAndStatusAreOpen(t *testing.T) {
	server := newTestServer(t, newFakeBackend(), NewJWTAuth("test-secret"))

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, status := doRequest(t, http.MethodGet, server.URL+"/api/status", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "healthy", status["status"])
	require.Len(t, status["collections"], len(DefaultCollections))
}
