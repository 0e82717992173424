// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loanlite

import "sync"

// Snapshot is the observable sync state the UI binds to: the pending-count
// widget, the syncing spinner and the connectivity badge.
type Snapshot struct {
	PendingCount int
	IsSyncing    bool
	IsOnline     bool
}

// SyncResult summarizes one drain pass for notification purposes. Err is set
// only for pass-level failures (the queue itself could not be read); per-item
// failures just show up as Failed.
type SyncResult struct {
	Applied int
	Failed  int
	Err     error
}

// Status fans sync state out to UI subscribers.
type Status struct {
	mu            sync.Mutex
	snap          Snapshot
	listeners     []func(Snapshot)
	syncListeners []func(SyncResult)
}

// NewStatus creates a status hub seeded with the initial connectivity state.
func NewStatus(online bool) *Status {
	return &Status{snap: Snapshot{IsOnline: online}}
}

// Current returns the latest snapshot.
func (s *Status) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe registers a listener called with a fresh snapshot after every
// state change. Listeners run on the mutating goroutine and must not block.
func (s *Status) Subscribe(fn func(Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// OnSyncResult registers a listener for end-of-pass notifications. The engine
// stays silent on passes that synced nothing, so subscribers only hear about
// progress or pass-level failure.
func (s *Status) OnSyncResult(fn func(SyncResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncListeners = append(s.syncListeners, fn)
}

func (s *Status) setPending(count int) {
	s.update(func(snap *Snapshot) { snap.PendingCount = count })
}

func (s *Status) setSyncing(syncing bool) {
	s.update(func(snap *Snapshot) { snap.IsSyncing = syncing })
}

func (s *Status) setOnline(online bool) {
	s.update(func(snap *Snapshot) { snap.IsOnline = online })
}

func (s *Status) update(mutate func(*Snapshot)) {
	s.mu.Lock()
	mutate(&s.snap)
	snap := s.snap
	listeners := make([]func(Snapshot), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (s *Status) notifySync(result SyncResult) {
	s.mu.Lock()
	listeners := make([]func(SyncResult), len(s.syncListeners))
	copy(listeners, s.syncListeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(result)
	}
}
