// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loanlite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecord_RemoteID(t *testing.T) {
	cases := []struct {
		name string
		rec  Record
		want string
		ok   bool
	}{
		{"string id", Record{"id": "r1"}, "r1", true},
		{"empty string", Record{"id": ""}, "", false},
		{"missing", Record{"name": "Amara"}, "", false},
		{"json float", Record{"id": float64(42)}, "42", true},
		{"int", Record{"id": 7}, "7", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := tc.rec.RemoteID()
			require.Equal(t, tc.ok, ok)
			if ok {
				require.Equal(t, tc.want, got)
			}
		})
	}
}

func TestRecord_UploadPayloadStripsLocalFields(t *testing.T) {
	rec := Record{
		FieldLocalID:    "local-1",
		FieldSyncStatus: "pending",
		"id":            "r1",
		"name":          "Amara",
	}

	payload := rec.UploadPayload()
	require.NotContains(t, payload, FieldLocalID)
	require.NotContains(t, payload, FieldSyncStatus)
	require.Equal(t, "r1", payload["id"])
	require.Equal(t, "Amara", payload["name"])

	// The original record keeps its bookkeeping fields.
	require.Equal(t, "local-1", rec.LocalID())
}

func TestCollectionAndOperationValidity(t *testing.T) {
	for _, c := range Collections {
		require.True(t, c.Valid())
	}
	require.False(t, Collection("invoices").Valid())
	require.False(t, Collection("").Valid())

	require.True(t, OpInsert.Valid())
	require.True(t, OpUpdate.Valid())
	require.True(t, OpDelete.Valid())
	require.False(t, Operation("UPSERT").Valid())
}
