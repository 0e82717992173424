// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loanlite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatus_SnapshotUpdates(t *testing.T) {
	s := NewStatus(true)

	var seen []Snapshot
	s.Subscribe(func(snap Snapshot) { seen = append(seen, snap) })

	s.setPending(3)
	s.setSyncing(true)
	s.setOnline(false)

	require.Equal(t, Snapshot{PendingCount: 3, IsSyncing: true, IsOnline: false}, s.Current())
	require.Len(t, seen, 3)
	require.Equal(t, 3, seen[0].PendingCount)
	require.True(t, seen[1].IsSyncing)
	require.False(t, seen[2].IsOnline)
}

func TestStatus_SyncResultFanOut(t *testing.T) {
	s := NewStatus(true)

	var a, b []SyncResult
	s.OnSyncResult(func(r SyncResult) { a = append(a, r) })
	s.OnSyncResult(func(r SyncResult) { b = append(b, r) })

	s.notifySync(SyncResult{Applied: 2, Failed: 1})

	require.Len(t, a, 1)
	require.Len(t, b, 1)
	require.Equal(t, 2, a[0].Applied)
	require.Equal(t, 1, b[0].Failed)
}
