// Copyright 2026 Asili Finance
// SPDX-License-Identifier: Apache-2.0

package loanlite

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Monitor is the single source of truth for online/offline state.
//
// State changes come either from the host (SetOnline) or from a polling
// probe (Watch). On the offline-to-online transition the monitor fires
// exactly one sync trigger, spawned without waiting for completion; the
// engine's in-flight guard makes overlap from repeated transitions safe.
// An online-to-offline transition never aborts an in-flight drain.
type Monitor struct {
	mu        sync.Mutex
	online    bool
	listeners []func(online bool)
	trigger   func()
	logger    *slog.Logger
}

// NewMonitor creates a monitor seeded with the host's current reachability.
func NewMonitor(initial bool, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{online: initial, logger: logger}
}

// IsOnline returns the current reachability state.
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OnChange registers a listener invoked on every transition. Listeners run
// on the transitioning goroutine and must not block.
func (m *Monitor) OnChange(fn func(online bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// bindTrigger wires the fire-and-forget sync trigger. Set once during client
// construction, before any transition can be observed.
func (m *Monitor) bindTrigger(trigger func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trigger = trigger
}

// SetOnline records a reachability change. A repeated state is a no-op.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	listeners := make([]func(bool), len(m.listeners))
	copy(listeners, m.listeners)
	trigger := m.trigger
	m.mu.Unlock()

	m.logger.Info("connectivity changed", "online", online)
	for _, fn := range listeners {
		fn(online)
	}
	if online && trigger != nil {
		go trigger()
	}
}

// Probe reports current reachability of the remote backend.
type Probe func(ctx context.Context) bool

// HTTPProbe returns a probe that considers the backend reachable when a HEAD
// request to url gets any HTTP response within the timeout.
func HTTPProbe(url string, timeout time.Duration) Probe {
	client := &http.Client{Timeout: timeout}
	return func(ctx context.Context) bool {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
		if err != nil {
			return false
		}
		resp, err := client.Do(req)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return true
	}
}

// Watch polls the probe until ctx is cancelled, feeding results into
// SetOnline. Run it on its own goroutine.
func (m *Monitor) Watch(ctx context.Context, probe Probe, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.SetOnline(probe(ctx))
		}
	}
}
