// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loanlite

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(status int, body any) *http.Response {
	data, _ := json.Marshal(body)
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(bytes.NewReader(data)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestRemoteClient_Create(t *testing.T) {
	var captured *http.Request
	var capturedBody []byte

	rc := NewRemoteClient("http://backend.test", func(ctx context.Context) (string, error) {
		return "tok-123", nil
	}, nil)
	rc.HTTP = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		captured = r
		capturedBody, _ = io.ReadAll(r.Body)
		return jsonResponse(http.StatusCreated, map[string]any{"id": "r1", "name": "Amara"}), nil
	})}

	record, err := rc.Create(context.Background(), CollectionClients, Record{"name": "Amara"})
	require.NoError(t, err)

	require.Equal(t, http.MethodPost, captured.Method)
	require.Equal(t, "http://backend.test/api/clients", captured.URL.String())
	require.Equal(t, "Bearer tok-123", captured.Header.Get("Authorization"))
	require.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	require.JSONEq(t, `{"name":"Amara"}`, string(capturedBody))

	id, ok := record.RemoteID()
	require.True(t, ok)
	require.Equal(t, "r1", id)
}

func TestRemoteClient_Update(t *testing.T) {
	var captured *http.Request

	rc := NewRemoteClient("http://backend.test", nil, nil)
	rc.HTTP = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		captured = r
		return jsonResponse(http.StatusOK, map[string]any{"id": "l7", "amount": 950}), nil
	})}

	_, err := rc.Update(context.Background(), CollectionLoans, "l7", Record{"id": "l7", "amount": 950})
	require.NoError(t, err)
	require.Equal(t, http.MethodPatch, captured.Method)
	require.Equal(t, "http://backend.test/api/loans/l7", captured.URL.String())
	require.Empty(t, captured.Header.Get("Authorization"))
}

func TestRemoteClient_SoftDelete(t *testing.T) {
	var captured *http.Request

	rc := NewRemoteClient("http://backend.test", nil, nil)
	rc.HTTP = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		captured = r
		return jsonResponse(http.StatusOK, map[string]any{"id": "p1", "deleted_at": "2026-08-30T10:00:00Z"}), nil
	})}

	record, err := rc.SoftDelete(context.Background(), CollectionPayments, "p1")
	require.NoError(t, err)
	require.Equal(t, http.MethodDelete, captured.Method)
	require.Equal(t, "http://backend.test/api/payments/p1", captured.URL.String())
	require.Nil(t, captured.Body)
	require.Equal(t, "2026-08-30T10:00:00Z", record["deleted_at"])
}

func TestRemoteClient_ErrorEnvelope(t *testing.T) {
	rc := NewRemoteClient("http://backend.test", nil, nil)
	rc.HTTP = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnprocessableEntity, map[string]any{
			"error":   "validation_failed",
			"message": "payload must be a JSON object",
		}), nil
	})}

	_, err := rc.Create(context.Background(), CollectionClients, Record{"name": ""})
	require.Error(t, err)
	require.Contains(t, err.Error(), "payload must be a JSON object")
}

func TestRemoteClient_TokenFailureShortCircuits(t *testing.T) {
	called := false
	rc := NewRemoteClient("http://backend.test", func(ctx context.Context) (string, error) {
		return "", context.Canceled
	}, nil)
	rc.HTTP = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		called = true
		return jsonResponse(http.StatusOK, nil), nil
	})}

	_, err := rc.Create(context.Background(), CollectionClients, Record{"name": "Amara"})
	require.Error(t, err)
	require.False(t, called)
}
